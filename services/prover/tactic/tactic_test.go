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
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/stream"
)

func TestOrElse(t *testing.T) {
	ctx := context.Background()
	env := testEnv(t)
	s := stateOf(newGoal("g", natT).goal)

	t.Run("first tactic wins and second never runs", func(t *testing.T) {
		second := &countingTactic{}
		out, err := stream.Collect(OrElse(ID, second).Run(ctx, env, quietIO(), s), 0)
		require.NoError(t, err)
		assert.Len(t, out, 1)
		assert.Equal(t, 0, second.runs)
	})

	t.Run("falls back when first is empty", func(t *testing.T) {
		second := &countingTactic{}
		out, err := stream.Collect(OrElse(Fail, second).Run(ctx, env, quietIO(), s), 0)
		require.NoError(t, err)
		assert.Len(t, out, 1)
		assert.Equal(t, 1, second.runs)
	})

	t.Run("run alone does no work", func(t *testing.T) {
		second := &countingTactic{}
		_ = OrElse(Fail, second).Run(ctx, env, quietIO(), s)
		assert.Equal(t, 0, second.runs)
	})
}

func TestAppend(t *testing.T) {
	ctx := context.Background()
	env := testEnv(t)
	s := stateOf(newGoal("g", natT).goal)

	mark := func(b bool) Tactic {
		return Func(func(_ context.Context, _ kernelEnv, _ IOState, s proof.State) stream.Stream[proof.State] {
			return stream.Of(s.WithReportFailure(b))
		})
	}

	out, err := stream.Collect(Append(Append(mark(true), mark(false)), mark(true)).Run(ctx, env, quietIO(), s), 0)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.True(t, out[0].ReportFailure())
	assert.False(t, out[1].ReportFailure())
	assert.True(t, out[2].ReportFailure())
}

func TestTactic01_Lazy(t *testing.T) {
	calls := 0
	tac := Tactic01(func(_ context.Context, _ kernelEnv, _ IOState, s proof.State) (proof.State, bool, error) {
		calls++
		return s, true, nil
	})
	out := tac.Run(context.Background(), testEnv(t), quietIO(), stateOf())
	assert.Equal(t, 0, calls)

	_, ok, err := out.Next()
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = out.Next()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, calls)
}

func TestDiagnostic(t *testing.T) {
	g := newGoal("g", natT, boolT)
	cause := errors.New("boom")
	d := elaborationFailure("exact", g.goal, ttC, cause)

	assert.True(t, errors.Is(d, ErrElaboration))
	assert.True(t, errors.Is(d, cause))
	assert.False(t, errors.Is(d, ErrNoGoal))
	assert.Equal(t, "elaboration failed: boom", d.Error())
	assert.Contains(t, d.Format(), "h1 : Bool ⊢ Nat")
	assert.Contains(t, d.Format(), "tt")

	var buf bytes.Buffer
	WriteDiagnostic(IOState{Diagnostics: &buf}, d)
	assert.Equal(t, d.Format()+"\n", buf.String())
}

func TestFail_RespectsReportingFlag(t *testing.T) {
	d := noGoal("exact")

	_, ok, err := fail(quietIO(), stateOf(), d)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNoGoal)

	_, ok, err = fail(quietIO(), stateOf().WithReportFailure(false), d)
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestIdentityElaborator(t *testing.T) {
	s := stateOf()
	res, err := IdentityElaborator{}.Elaborate(context.Background(), testEnv(t), quietIO(), s, zeroC, boolT, ElabOptions{})
	require.NoError(t, err)
	assert.True(t, expr.Equal(zeroC, res.Term))
	assert.Empty(t, res.Residual)
}
