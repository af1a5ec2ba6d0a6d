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

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
)

// =============================================================================
// Exact
// =============================================================================

// ExactOptions configure an exact-family tactic.
type ExactOptions struct {
	// Name is used in diagnostics. Defaults to "exact".
	Name string

	// AllowMetavars keeps unresolved placeholders in the term and turns
	// each of them into a new goal.
	AllowMetavars bool

	// EnforceType makes the goal type drive elaboration.
	EnforceType bool

	// Conservative restricts overload and coercion resolution.
	Conservative bool
}

// NewExact returns a tactic closing the focus goal with term.
//
// Description:
//
//	On the first pull of its stream the tactic:
//	  1. Fails with ErrNoGoal if there is no goal.
//	  2. Elaborates term against the focus goal's type. Unresolved
//	     metavariables are reported by the elaborator only when
//	     AllowMetavars is off, EnforceType is on and the state reports
//	     failures.
//	  3. Returns the state as is when elaboration emptied the goal list.
//	  4. Without AllowMetavars, fails with ErrUnresolvedMetavars if the
//	     elaborated term still has metavariables.
//	  5. Assigns the focus goal's placeholder to the term.
//	  6. With AllowMetavars, collects the placeholders left in the term
//	     and pushes one goal per distinct placeholder, in traversal order,
//	     in front of the remaining goals.
//
//	Every failure follows the state's reporting flag.
//
// Inputs:
//   - el: Elaborator for term.
//   - tcs: Type checker factory for the result check and the types of new
//     goals.
//   - term: The surface term.
//   - opts: Behaviour switches.
//
// Outputs:
//   - Tactic: Deterministic; at most one outcome.
func NewExact(el Elaborator, tcs TypeCheckerFactory, term expr.Expr, opts ExactOptions) Tactic {
	name := opts.Name
	if name == "" {
		name = "exact"
	}
	return Tactic01(func(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) (proof.State, bool, error) {
		focus, ok := s.Focus()
		if !ok {
			return fail(ios, s, noGoal(name))
		}

		report := !opts.AllowMetavars && opts.EnforceType && s.ReportFailure()
		e, newS, err := elaborateAgainst(ctx, env, ios, el, tcs, s, term, focus.Type(), report, opts.EnforceType, opts.Conservative)
		if err != nil {
			return fail(ios, s, elaborationFailure(name, focus, term, err))
		}
		if e == nil {
			return proof.State{}, false, nil
		}

		g, ok := newS.Focus()
		if !ok {
			return newS, true, nil
		}
		// Only metavariables in e itself are checked, not those in the types
		// of the locals it mentions.
		if !opts.AllowMetavars && e.HasMeta() {
			return fail(ios, s, unresolvedMetavars(name, g, e))
		}

		subst, err := newS.Subst().AssignGoal(g, e)
		if err != nil {
			return fail(ios, s, elaborationFailure(name, g, e, err))
		}
		if !opts.AllowMetavars {
			return newS.WithGoals(newS.Tail()).WithSubst(subst), true, nil
		}

		child, ngen := newS.NameGen().Child()
		newGoals, err := collectGoals(tcs(env, child), e)
		if err != nil {
			return fail(ios, s, typeCheckFailure(name, g, e, err))
		}
		goals := append(newGoals, newS.Tail()...)
		return newS.WithGoals(goals).WithSubst(subst).WithNameGen(ngen), true, nil
	})
}

// collectGoals turns the placeholders of e into goals.
//
// Description:
//
//	e is traversed function before argument. Subterms without metavariables
//	are skipped. A placeholder becomes a goal and is not descended into. A
//	bare metavariable is a placeholder with no hypotheses. Locals are not
//	descended into; every other subterm is. Each arm of an application is
//	decided on its own, so a non-placeholder application still yields the
//	placeholders among its arguments.
//
//	A metavariable occurring in several placeholders yields one goal, at
//	the position of its first occurrence. This departs from a plain
//	for-each over e, which would push one goal per occurrence and leave
//	duplicate goals sharing a metavariable.
func collectGoals(tc TypeChecker, e expr.Expr) ([]proof.Goal, error) {
	var (
		goals []proof.Goal
		seen  = make(map[expr.Name]bool)
		ferr  error
	)
	expr.ForEach(e, func(m expr.Expr) bool {
		if ferr != nil || !m.HasMeta() {
			return false
		}
		if expr.IsPlaceholder(m) {
			meta := expr.AppFn(m).(*expr.Meta)
			if seen[meta.Name] {
				return false
			}
			seen[meta.Name] = true
			t, err := tc.Infer(m)
			if err != nil {
				ferr = err
				return false
			}
			g, err := proof.NewGoal(m, t)
			if err != nil {
				ferr = err
				return false
			}
			goals = append(goals, g)
			return false
		}
		return !expr.IsMetavar(m) && !expr.IsLocal(m)
	})
	if ferr != nil {
		return nil, ferr
	}
	return goals, nil
}
