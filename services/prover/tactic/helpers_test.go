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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/stream"
)

var (
	natT  = expr.NewConst("Nat")
	boolT = expr.NewConst("Bool")
	zeroC = expr.NewConst("zero")
	ttC   = expr.NewConst("tt")
	succC = expr.NewConst("succ")
	addC  = expr.NewConst("add")
)

func testEnv(t *testing.T) *kernel.Env {
	t.Helper()
	env, err := kernel.NewEnv(
		kernel.Declaration{Name: "Nat", Type: expr.Type},
		kernel.Declaration{Name: "Bool", Type: expr.Type},
		kernel.Declaration{Name: "zero", Type: natT},
		kernel.Declaration{Name: "tt", Type: boolT},
		kernel.Declaration{Name: "succ", Type: expr.NewArrow(natT, natT)},
		kernel.Declaration{Name: "add", Type: expr.NewArrow(natT, expr.NewArrow(natT, natT))},
	)
	require.NoError(t, err)
	return env
}

func quietIO() IOState {
	return IOState{
		Out:         io.Discard,
		Diagnostics: io.Discard,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// goalFixture is a goal "h1 : A1, ..., hn : An ⊢ target" named g.
type goalFixture struct {
	hyps []*expr.Local
	goal proof.Goal
}

func newGoal(name expr.Name, target expr.Expr, hypTypes ...expr.Expr) goalFixture {
	hyps := make([]*expr.Local, len(hypTypes))
	for i, ty := range hypTypes {
		n := expr.Name("h" + string(rune('1'+i)))
		hyps[i] = expr.NewLocal(name.Append(string(n)), string(n), ty)
	}
	return goalFixture{hyps: hyps, goal: proof.MkGoal(name, hyps, target)}
}

// placeholder returns a fresh metavariable applied to the fixture's
// hypotheses with the given type.
func (f goalFixture) placeholder(name expr.Name, typ expr.Expr) expr.Expr {
	m := expr.NewMeta(name, expr.Pis(f.hyps, typ))
	args := make([]expr.Expr, len(f.hyps))
	for i, h := range f.hyps {
		args[i] = h
	}
	return expr.NewApp(m, args...)
}

func stateOf(goals ...proof.Goal) proof.State {
	return proof.NewState(goals, proof.NewSubstitution(), proof.NewNameGenerator("test"))
}

// recordingElaborator returns a fixed result and records its calls.
type recordingElaborator struct {
	calls    int
	expected []expr.Expr
	opts     []ElabOptions
	result   func(s proof.State, term expr.Expr) (ElabResult, error)
}

func (r *recordingElaborator) Elaborate(_ context.Context, _ kernel.Environment, _ IOState, s proof.State, term, expected expr.Expr, opts ElabOptions) (ElabResult, error) {
	r.calls++
	r.expected = append(r.expected, expected)
	r.opts = append(r.opts, opts)
	if r.result == nil {
		return ElabResult{Term: term, State: s}, nil
	}
	return r.result(s, term)
}

// returning elaborates every term to e.
func returning(e expr.Expr) *recordingElaborator {
	return &recordingElaborator{result: func(s proof.State, _ expr.Expr) (ElabResult, error) {
		return ElabResult{Term: e, State: s}, nil
	}}
}

// countingTactic counts Run calls and yields its input.
type countingTactic struct{ runs int }

func (c *countingTactic) Run(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) stream.Stream[proof.State] {
	c.runs++
	return ID.Run(ctx, env, ios, s)
}

type kernelEnv = kernel.Environment
