// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package kernel

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
)

var (
	nat  = expr.NewConst("Nat")
	zero = expr.NewConst("zero")
	succ = expr.NewConst("succ")
)

func testEnv(t *testing.T) *Env {
	t.Helper()
	env, err := NewEnv(
		Declaration{Name: "Nat", Type: expr.Type},
		Declaration{Name: "Bool", Type: expr.Type},
		Declaration{Name: "zero", Type: nat},
		Declaration{Name: "succ", Type: expr.NewArrow(nat, nat)},
		Declaration{Name: "one", Type: nat, Value: expr.NewApp(succ, zero)},
		Declaration{Name: "N", Type: expr.Type, Value: nat},
	)
	require.NoError(t, err)
	return env
}

func TestEnv(t *testing.T) {
	env := testEnv(t)
	assert.Equal(t, 6, env.Len())

	d, ok := env.Lookup("one")
	require.True(t, ok)
	assert.True(t, d.IsDefinition())

	_, err := env.Add(Declaration{Name: "zero", Type: nat})
	assert.True(t, errors.Is(err, ErrDuplicateDecl))

	_, err = env.Add(Declaration{Name: "bad", Type: expr.NewMeta("m", expr.Type)})
	assert.True(t, errors.Is(err, ErrDeclarationClosed))

	env2, err := env.Add(Declaration{Name: "two", Type: nat})
	require.NoError(t, err)
	_, ok = env.Lookup("two")
	assert.False(t, ok, "Add must not modify the receiver")
	_, ok = env2.Lookup("two")
	assert.True(t, ok)
	assert.Equal(t, []expr.Name{"Bool", "N", "Nat", "one", "succ", "zero"}, env.Names())
}

func TestTypeChecker_Infer(t *testing.T) {
	env := testEnv(t)
	tc := NewTypeChecker(env, proof.NewNameGenerator("tc"))

	t.Run("application", func(t *testing.T) {
		ty, err := tc.Infer(expr.NewApp(succ, zero))
		require.NoError(t, err)
		assert.True(t, tc.IsDefEq(nat, ty))
	})

	t.Run("lambda", func(t *testing.T) {
		ty, err := tc.Infer(expr.NewLambda("x", nat, expr.NewApp(succ, expr.NewVar(0))))
		require.NoError(t, err)
		assert.True(t, tc.IsDefEq(expr.NewArrow(nat, nat), ty), "got %s", ty)
	})

	t.Run("placeholder applied to locals", func(t *testing.T) {
		x := expr.NewLocal("x", "", nat)
		m := expr.NewMeta("m", expr.Pis([]*expr.Local{x}, nat))
		ty, err := tc.Infer(expr.NewApp(m, x))
		require.NoError(t, err)
		assert.True(t, expr.Equal(nat, ty))
	})

	t.Run("pi lives in the larger universe", func(t *testing.T) {
		ty, err := tc.Infer(expr.NewPi("x", nat, expr.Prop))
		require.NoError(t, err)
		assert.True(t, expr.Equal(expr.Type, ty), "got %s", ty)
	})

	t.Run("pi into a proposition is a proposition", func(t *testing.T) {
		env2, err := env.Add(Declaration{Name: "True", Type: expr.Prop})
		require.NoError(t, err)
		tc2 := NewTypeChecker(env2, proof.NewNameGenerator("tc2"))
		ty, err := tc2.Infer(expr.NewPi("x", nat, expr.NewConst("True")))
		require.NoError(t, err)
		assert.True(t, expr.Equal(expr.Prop, ty), "got %s", ty)
	})

	t.Run("argument type mismatch", func(t *testing.T) {
		_, err := tc.Infer(expr.NewApp(succ, nat))
		assert.True(t, errors.Is(err, ErrTypeMismatch))
	})

	t.Run("unknown constant", func(t *testing.T) {
		_, err := tc.Infer(expr.NewConst("nope"))
		assert.True(t, errors.Is(err, ErrUnknownConstant))
		var te *TypeError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, "Infer", te.Op)
	})

	t.Run("not a function", func(t *testing.T) {
		_, err := tc.Infer(expr.NewApp(zero, zero))
		assert.True(t, errors.Is(err, ErrNotAFunction))
	})

	t.Run("surface terms are rejected", func(t *testing.T) {
		_, err := tc.Infer(expr.NewHole())
		assert.True(t, errors.Is(err, ErrSurfaceTerm))
	})
}

func TestTypeChecker_IsDefEq(t *testing.T) {
	env := testEnv(t)
	tc := NewTypeChecker(env, proof.NewNameGenerator("tc"))

	assert.True(t, tc.IsDefEq(expr.NewConst("one"), expr.NewApp(succ, zero)), "delta")
	assert.True(t, tc.IsDefEq(expr.NewConst("N"), nat), "delta on types")
	assert.True(t, tc.IsDefEq(
		expr.NewApp(expr.NewLambda("x", nat, expr.NewVar(0)), zero), zero), "beta")
	assert.True(t, tc.IsDefEq(expr.NewLambda("x", nat, expr.NewApp(succ, expr.NewVar(0))), succ), "eta")
	assert.False(t, tc.IsDefEq(nat, expr.NewConst("Bool")))
	assert.False(t, tc.IsDefEq(zero, expr.NewConst("one")))

	x := expr.NewLocal("x", "", nat).WithValue(zero)
	assert.True(t, tc.IsDefEq(x, zero), "zeta on let-bound locals")
}
