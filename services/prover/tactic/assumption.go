// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tactic

import (
	"context"

	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/stream"
)

// =============================================================================
// Assumption search
// =============================================================================

// NewAssumption closes the focus goal with the most recent hypothesis whose
// type matches it. At most one outcome.
func NewAssumption(tcs TypeCheckerFactory) Tactic {
	return assumptionSearch(tcs, "assumption", true)
}

// NewEAssumption yields one outcome per hypothesis whose type matches the
// focus goal, most recent first.
func NewEAssumption(tcs TypeCheckerFactory) Tactic {
	return assumptionSearch(tcs, "eassumption", false)
}

// assumptionSearch builds one exact attempt per hypothesis of the focus
// goal, newest first, and folds them with OrElse when conservative and
// Append otherwise.
//
// The probes run with reporting off, so a hypothesis of the wrong type is
// skipped silently. Outcomes carry the caller's reporting flag.
func assumptionSearch(tcs TypeCheckerFactory, name string, conservative bool) Tactic {
	return Func(func(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) stream.Stream[proof.State] {
		focus, ok := s.Focus()
		if !ok {
			return stream.Deterministic(func() (proof.State, bool, error) {
				return fail(ios, s, noGoal(name))
			})
		}

		hyps := focus.Hypotheses()
		var search Tactic
		for i := len(hyps) - 1; i >= 0; i-- {
			probe := NewExact(IdentityElaborator{}, tcs, hyps[i], ExactOptions{
				Name:         name,
				Conservative: conservative,
			})
			switch {
			case search == nil:
				search = probe
			case conservative:
				search = OrElse(search, probe)
			default:
				search = Append(search, probe)
			}
		}
		if search == nil {
			return stream.Empty[proof.State]()
		}

		report := s.ReportFailure()
		out := search.Run(ctx, env, ios, s.WithReportFailure(false))
		return stream.Map(out, func(r proof.State) proof.State {
			return r.WithReportFailure(report)
		})
	})
}
