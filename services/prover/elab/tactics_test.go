// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package elab_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProver/services/prover/elab"
	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/stream"
	"github.com/AleutianAI/AleutianProver/services/prover/tactic"
)

type fixture struct {
	env  *kernel.Env
	reg  *tactic.Registry
	ios  tactic.IOState
	h1   *expr.Local
	h2   *expr.Local
	main proof.Goal
}

var (
	natC  = expr.NewConst("Nat")
	boolC = expr.NewConst("Bool")
	addC  = expr.NewConst("add")
)

// newFixture builds the goal "h1 : Bool, h2 : Nat ⊢ Nat".
func newFixture(t *testing.T) *fixture {
	t.Helper()
	env, err := kernel.NewEnv(
		kernel.Declaration{Name: "Nat", Type: expr.Type},
		kernel.Declaration{Name: "Bool", Type: expr.Type},
		kernel.Declaration{Name: "zero", Type: natC},
		kernel.Declaration{Name: "tt", Type: boolC},
		kernel.Declaration{Name: "add", Type: expr.NewArrow(natC, expr.NewArrow(natC, natC))},
	)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := tactic.NewRegistry()
	require.NoError(t, reg.Initialize(tactic.Deps{Elaborator: elab.New(logger), Logger: logger}))
	t.Cleanup(reg.Finalize)

	h1 := expr.NewLocal("main.h1", "h1", boolC)
	h2 := expr.NewLocal("main.h2", "h2", natC)
	return &fixture{
		env:  env,
		reg:  reg,
		ios:  tactic.IOState{Out: io.Discard, Diagnostics: io.Discard, Logger: logger},
		h1:   h1,
		h2:   h2,
		main: proof.MkGoal("main", []*expr.Local{h1, h2}, natC),
	}
}

func (f *fixture) state() proof.State {
	return proof.NewState([]proof.Goal{f.main}, proof.NewSubstitution(), proof.NewNameGenerator("s"))
}

func (f *fixture) run(t *testing.T, name string, term expr.Expr, s proof.State) ([]proof.State, error) {
	t.Helper()
	tac, err := f.reg.Build(name, term)
	require.NoError(t, err)
	return stream.Collect(tac.Run(context.Background(), f.env, f.ios, s), 0)
}

func TestRefineThenAssumption(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "refine", expr.NewApp(addC, expr.NewHole(), expr.NewHole()), f.state())
	require.NoError(t, err)
	require.Len(t, out, 1)
	s := out[0]
	require.Equal(t, 2, s.NumGoals())
	for _, g := range s.Goals() {
		assert.Equal(t, "h1 : Bool, h2 : Nat ⊢ Nat", g.String())
	}

	for s.NumGoals() > 0 {
		out, err = f.run(t, "assumption", nil, s)
		require.NoError(t, err)
		require.Len(t, out, 1)
		s = out[0]
	}
	assert.Equal(t, "(add h2 h2)", s.Instantiate(f.main.Term()).String())
}

func TestExact_ReportsUnresolvedHoles(t *testing.T) {
	f := newFixture(t)
	term := expr.NewApp(addC, expr.NewHole(), f.h2)

	_, err := f.run(t, "exact", term, f.state())
	require.Error(t, err)
	assert.True(t, errors.Is(err, tactic.ErrElaboration))
	assert.True(t, errors.Is(err, elab.ErrCannotSynthesize))

	out, err := f.run(t, "exact", term, f.state().WithReportFailure(false))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestExact_TypeMismatchThroughRegistry(t *testing.T) {
	f := newFixture(t)

	for _, name := range []string{"exact", "rexact", "refine"} {
		_, err := f.run(t, name, f.h1, f.state())
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, tactic.ErrElaboration), name)
	}

	out, err := f.run(t, "exact", f.h2, f.state())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 0, out[0].NumGoals())
}

func TestAssumption_NatBoolExample(t *testing.T) {
	f := newFixture(t)

	out, err := f.run(t, "assumption", nil, f.state())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, expr.Equal(f.h2, out[0].Instantiate(f.main.Term())))

	out, err = f.run(t, "eassumption", nil, f.state())
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.True(t, expr.Equal(f.h2, out[0].Instantiate(f.main.Term())))
}
