// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package elab

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/tactic"
)

var (
	nat   = expr.NewConst("Nat")
	boolT = expr.NewConst("Bool")
	zero  = expr.NewConst("zero")
	tt    = expr.NewConst("tt")
	succ  = expr.NewConst("succ")
	add   = expr.NewConst("add")
	not   = expr.NewConst("not")
)

func testEnv(t *testing.T) *kernel.Env {
	t.Helper()
	env, err := kernel.NewEnv(
		kernel.Declaration{Name: "Nat", Type: expr.Type},
		kernel.Declaration{Name: "Bool", Type: expr.Type},
		kernel.Declaration{Name: "zero", Type: nat},
		kernel.Declaration{Name: "tt", Type: boolT},
		kernel.Declaration{Name: "succ", Type: expr.NewArrow(nat, nat)},
		kernel.Declaration{Name: "not", Type: expr.NewArrow(boolT, boolT)},
		kernel.Declaration{Name: "add", Type: expr.NewArrow(nat, expr.NewArrow(nat, nat))},
		kernel.Declaration{Name: "two", Type: nat, Value: expr.NewApp(succ, expr.NewApp(succ, zero))},
	)
	require.NoError(t, err)
	return env
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// goalState returns a state with the single goal "h : Nat ⊢ target".
func goalState(target expr.Expr) (proof.State, *expr.Local) {
	h := expr.NewLocal("g.h", "h", nat)
	g := proof.MkGoal("g", []*expr.Local{h}, target)
	return proof.NewState([]proof.Goal{g}, proof.NewSubstitution(), proof.NewNameGenerator("t")), h
}

func elaborate(t *testing.T, s proof.State, term, expected expr.Expr, opts tactic.ElabOptions) (tactic.ElabResult, error) {
	t.Helper()
	return New(quiet()).Elaborate(context.Background(), testEnv(t), tactic.IOState{}, s, term, expected, opts)
}

func TestElaborate_Closed(t *testing.T) {
	s, h := goalState(nat)

	res, err := elaborate(t, s, expr.NewApp(add, h, zero), nat, tactic.ElabOptions{})
	require.NoError(t, err)
	assert.Equal(t, "(add h zero)", res.Term.String())
	assert.Empty(t, res.Residual)
	assert.NotEqual(t, s.NameGen(), res.State.NameGen(), "generator advanced")
}

func TestElaborate_TypeMismatch(t *testing.T) {
	s, _ := goalState(nat)

	_, err := elaborate(t, s, tt, nat, tactic.ElabOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTypeMismatch))
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Contains(t, err.Error(), "term has type Bool but is expected to have type Nat")

	_, err = elaborate(t, s, expr.NewApp(succ, tt), nil, tactic.ElabOptions{})
	assert.True(t, errors.Is(err, ErrTypeMismatch), "argument checked against the domain")
}

func TestElaborate_Holes(t *testing.T) {
	s, h := goalState(nat)

	t.Run("argument holes become placeholders over the hypotheses", func(t *testing.T) {
		res, err := elaborate(t, s, expr.NewApp(add, expr.NewHole(), h), nat, tactic.ElabOptions{})
		require.NoError(t, err)
		fn, args := expr.AppArgs(res.Term)
		assert.True(t, expr.Equal(add, fn))
		require.Len(t, args, 2)
		assert.True(t, expr.IsPlaceholder(args[0]))
		_, phArgs := expr.AppArgs(args[0])
		require.Len(t, phArgs, 1)
		assert.True(t, expr.Equal(h, phArgs[0]))
	})

	t.Run("unresolved holes are reported on request", func(t *testing.T) {
		_, err := elaborate(t, s, expr.NewApp(add, expr.NewHole(), h), nat, tactic.ElabOptions{ReportUnresolved: true})
		assert.True(t, errors.Is(err, ErrCannotSynthesize))
	})

	t.Run("top-level hole needs an expected type", func(t *testing.T) {
		_, err := elaborate(t, s, expr.NewHole(), nil, tactic.ElabOptions{})
		assert.True(t, errors.Is(err, ErrHoleType))

		res, err := elaborate(t, s, expr.NewHole(), nat, tactic.ElabOptions{})
		require.NoError(t, err)
		assert.True(t, expr.IsPlaceholder(res.Term))
	})

	t.Run("named holes keep their name", func(t *testing.T) {
		named := &expr.Meta{Name: "lhs"}
		res, err := elaborate(t, s, expr.NewApp(add, named, zero), nat, tactic.ElabOptions{})
		require.NoError(t, err)
		_, args := expr.AppArgs(res.Term)
		assert.Equal(t, expr.Name("lhs"), expr.AppFn(args[0]).(*expr.Meta).Name)
	})

	t.Run("binder domains need an annotation", func(t *testing.T) {
		lam := expr.NewLambda("x", expr.NewHole(), expr.NewApp(succ, expr.NewVar(0)))
		_, err := elaborate(t, s, lam, expr.NewArrow(nat, nat), tactic.ElabOptions{})
		assert.True(t, errors.Is(err, ErrHoleType))
	})
}

func TestElaborate_Lambda(t *testing.T) {
	s, _ := goalState(expr.NewArrow(nat, nat))
	lam := expr.NewLambda("x", nat, expr.NewApp(add, expr.NewVar(0), zero))

	res, err := elaborate(t, s, lam, expr.NewArrow(nat, nat), tactic.ElabOptions{})
	require.NoError(t, err)
	assert.Equal(t, "(fun (x Nat) (add x zero))", res.Term.String())
}

func TestElaborate_Choice(t *testing.T) {
	s, _ := goalState(boolT)
	c := expr.NewChoice(zero, tt)

	t.Run("first alternative of the expected type", func(t *testing.T) {
		res, err := elaborate(t, s, c, boolT, tactic.ElabOptions{})
		require.NoError(t, err)
		assert.True(t, expr.Equal(tt, res.Term))
	})

	t.Run("conservative commits to the first alternative", func(t *testing.T) {
		_, err := elaborate(t, s, c, boolT, tactic.ElabOptions{Conservative: true})
		assert.True(t, errors.Is(err, ErrTypeMismatch))
	})

	t.Run("no applicable alternative", func(t *testing.T) {
		_, err := elaborate(t, s, expr.NewChoice(zero, expr.NewApp(succ, zero)), boolT, tactic.ElabOptions{})
		assert.True(t, errors.Is(err, ErrAmbiguous))
	})

	t.Run("choice in argument position", func(t *testing.T) {
		res, err := elaborate(t, s, expr.NewApp(not, c), boolT, tactic.ElabOptions{})
		require.NoError(t, err)
		assert.Equal(t, "(not tt)", res.Term.String())
	})
}

func TestElaborate_UnknownIdentifier(t *testing.T) {
	s, _ := goalState(nat)
	_, err := elaborate(t, s, expr.NewConst("foo"), nat, tactic.ElabOptions{})
	assert.True(t, errors.Is(err, ErrUnknownConstant))
	assert.Contains(t, err.Error(), "unknown identifier 'foo'")
}

func TestElaborate_NoGoal(t *testing.T) {
	s := proof.NewState(nil, proof.NewSubstitution(), proof.NewNameGenerator("t"))
	res, err := elaborate(t, s, zero, nat, tactic.ElabOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.Term)
}

func TestUnifier(t *testing.T) {
	env := testEnv(t)
	x := expr.NewLocal("x", "x", nat)
	y := expr.NewLocal("y", "y", nat)
	newU := func() *unifier {
		return &unifier{tc: kernel.NewTypeChecker(env, proof.NewNameGenerator("u")), subst: proof.NewSubstitution()}
	}
	m := expr.NewMeta("m", expr.Pis([]*expr.Local{x}, nat))

	t.Run("pattern assignment", func(t *testing.T) {
		u := newU()
		require.True(t, u.unify(expr.NewApp(m, x), expr.NewApp(succ, x)))
		assert.Equal(t, "(succ y)", u.instantiate(expr.NewApp(m, y)).String())
	})

	t.Run("scope check", func(t *testing.T) {
		u := newU()
		assert.False(t, u.unify(expr.NewApp(m, x), y))
		assert.Equal(t, 0, u.subst.Len(), "failed attempt leaves no assignment")
	})

	t.Run("occurs check", func(t *testing.T) {
		u := newU()
		assert.False(t, u.unify(expr.NewApp(m, x), expr.NewApp(succ, expr.NewApp(m, x))))
	})

	t.Run("delta retry", func(t *testing.T) {
		u := newU()
		assert.True(t, u.unify(expr.NewConst("two"), expr.NewApp(succ, expr.NewApp(succ, zero))))
	})

	t.Run("non-pattern pairs are postponed", func(t *testing.T) {
		u := newU()
		assert.True(t, u.unify(expr.NewApp(m, zero), zero))
		require.Len(t, u.residual, 1)
	})

	t.Run("rigid mismatch", func(t *testing.T) {
		u := newU()
		assert.False(t, u.unify(nat, boolT))
	})
}
