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
	"io"
	"log/slog"
	"os"

	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/stream"
)

// =============================================================================
// IO State
// =============================================================================

// IOState is the interactive context a tactic runs in.
//
// Description:
//
//	It carries the output and diagnostic sinks of the front end. Tactics
//	read it; they never modify it. Diagnostics are not written here by the
//	tactics themselves: they are returned as errors and the front end
//	decides where they go (see WriteDiagnostic).
type IOState struct {
	// Out receives regular output.
	Out io.Writer

	// Diagnostics receives rendered diagnostics.
	Diagnostics io.Writer

	// Logger receives structured debug logs from the engine.
	// If nil, slog.Default() is used.
	Logger *slog.Logger
}

// DefaultIOState writes to stdout/stderr and logs through slog.Default().
func DefaultIOState() IOState {
	return IOState{Out: os.Stdout, Diagnostics: os.Stderr, Logger: slog.Default()}
}

func (ios IOState) logger() *slog.Logger {
	if ios.Logger == nil {
		return slog.Default()
	}
	return ios.Logger
}

// =============================================================================
// Tactic contract
// =============================================================================

// Tactic produces the alternative outcomes of acting on a proof state.
//
// Description:
//
//	Run returns a lazy stream of proof states in preference order. An
//	empty stream is failure. A fatal failure (a diagnostic raised because
//	the input state asked for failures to be reported) is delivered as the
//	error of the stream's Next.
//
//	Run never modifies s; every outcome is a new State value.
//
// Inputs:
//   - ctx: Carries tracing. There is no cancellation: callers stop a
//     search by no longer pulling the stream.
//   - env: Declaration database.
//   - ios: Interactive context.
//   - s: The proof state to act on.
type Tactic interface {
	Run(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) stream.Stream[proof.State]
}

// Func adapts a function to a Tactic.
type Func func(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) stream.Stream[proof.State]

// Run calls f.
func (f Func) Run(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) stream.Stream[proof.State] {
	return f(ctx, env, ios, s)
}

// Tactic01 builds a deterministic tactic from a function returning at most
// one new state.
//
// f runs on the first pull. It returns (state, true, nil) on success,
// (_, false, nil) for a silent failure and a non-nil error for a reported
// failure.
func Tactic01(f func(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) (proof.State, bool, error)) Tactic {
	return Func(func(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) stream.Stream[proof.State] {
		return stream.Deterministic(func() (proof.State, bool, error) {
			return f(ctx, env, ios, s)
		})
	})
}

// OrElse tries t1 and falls back to t2 only if t1 has no outcome.
//
// The result is exactly t1's outcomes when there is at least one; t2 is
// then never run.
func OrElse(t1, t2 Tactic) Tactic {
	return Func(func(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) stream.Stream[proof.State] {
		return stream.FirstSuccessOf(t1.Run(ctx, env, ios, s), func() stream.Stream[proof.State] {
			return t2.Run(ctx, env, ios, s)
		})
	})
}

// Append exposes every outcome of t1 followed by every outcome of t2.
//
// t2 runs only after t1's outcomes are exhausted.
func Append(t1, t2 Tactic) Tactic {
	return Func(func(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) stream.Stream[proof.State] {
		return stream.Concat(t1.Run(ctx, env, ios, s), func() stream.Stream[proof.State] {
			return t2.Run(ctx, env, ios, s)
		})
	})
}

// Fail is the tactic with no outcomes.
var Fail Tactic = Func(func(context.Context, kernel.Environment, IOState, proof.State) stream.Stream[proof.State] {
	return stream.Empty[proof.State]()
})

// ID is the tactic whose only outcome is its input.
var ID Tactic = Func(func(_ context.Context, _ kernel.Environment, _ IOState, s proof.State) stream.Stream[proof.State] {
	return stream.Of(s)
})
