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
	"fmt"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
)

// -----------------------------------------------------------------------------
// TypeChecker
// -----------------------------------------------------------------------------

// TypeChecker infers types and decides definitional equality.
//
// Description:
//
//	Binders are opened with fresh local constants minted from the checker's
//	own name generator, so a checker built from a child generator never
//	produces names that collide with the proof state's.
//
//	Metavariables are treated as opaque constants of their (closed) type.
//	Callers instantiate assigned metavariables before asking.
//
//	Inferred types are cached per node. The cache is private to the
//	checker and does not affect results.
//
// Thread Safety: Not safe for concurrent use. Create one per goal.
type TypeChecker struct {
	env   Environment
	ngen  proof.NameGenerator
	cache map[expr.Expr]expr.Expr
}

// NewTypeChecker returns a checker over env minting names from ngen.
func NewTypeChecker(env Environment, ngen proof.NameGenerator) *TypeChecker {
	return &TypeChecker{env: env, ngen: ngen, cache: make(map[expr.Expr]expr.Expr)}
}

// Env returns the checker's environment.
func (tc *TypeChecker) Env() Environment { return tc.env }

// FreshLocal returns a local constant with a name no other checker or
// proof state branch can produce.
func (tc *TypeChecker) FreshLocal(display string, typ expr.Expr) *expr.Local {
	var name expr.Name
	name, tc.ngen = tc.ngen.Next()
	return expr.NewLocal(name, display, typ)
}

// Infer returns the type of e.
//
// Outputs:
//   - expr.Expr: The inferred type, not normalized.
//   - error: *TypeError when e is ill-typed.
func (tc *TypeChecker) Infer(e expr.Expr) (expr.Expr, error) {
	if t, ok := tc.cache[e]; ok {
		return t, nil
	}
	t, err := tc.infer(e)
	if err != nil {
		return nil, err
	}
	tc.cache[e] = t
	return t, nil
}

func (tc *TypeChecker) infer(e expr.Expr) (expr.Expr, error) {
	switch x := e.(type) {
	case *expr.Var:
		return nil, &TypeError{Op: "Infer", Term: e, Err: ErrLooseBoundVar}
	case *expr.Sort:
		return expr.NewSort(x.Level + 1), nil
	case *expr.Const:
		d, ok := tc.env.Lookup(x.Name)
		if !ok {
			return nil, &TypeError{Op: "Infer", Term: e, Err: ErrUnknownConstant}
		}
		return d.Type, nil
	case *expr.Local:
		return x.Type, nil
	case *expr.Meta:
		return x.Type, nil
	case *expr.App:
		return tc.inferApp(x)
	case *expr.Binding:
		if x.Kind() == expr.KindLambda {
			return tc.inferLambda(x)
		}
		return tc.inferPi(x)
	}
	return nil, &TypeError{Op: "Infer", Term: e, Err: ErrSurfaceTerm}
}

func (tc *TypeChecker) inferApp(a *expr.App) (expr.Expr, error) {
	fnType, err := tc.Infer(a.Fn)
	if err != nil {
		return nil, err
	}
	pi, err := tc.EnsurePi(fnType)
	if err != nil {
		return nil, &TypeError{Op: "Infer", Term: a, Err: ErrNotAFunction}
	}
	argType, err := tc.Infer(a.Arg)
	if err != nil {
		return nil, err
	}
	if !tc.IsDefEq(argType, pi.Domain) {
		return nil, &TypeError{
			Op:   "Infer",
			Term: a,
			Err:  fmt.Errorf("%w: argument %s has type %s but is expected to have type %s", ErrTypeMismatch, a.Arg, argType, pi.Domain),
		}
	}
	return expr.Instantiate(pi.Body, a.Arg), nil
}

func (tc *TypeChecker) inferLambda(b *expr.Binding) (expr.Expr, error) {
	if _, err := tc.ensureSortOf(b.Domain); err != nil {
		return nil, err
	}
	l := tc.FreshLocal(b.Binder, b.Domain)
	bodyType, err := tc.Infer(expr.Instantiate(b.Body, l))
	if err != nil {
		return nil, err
	}
	return expr.NewPi(b.Binder, b.Domain, expr.Abstract(bodyType, l)), nil
}

func (tc *TypeChecker) inferPi(b *expr.Binding) (expr.Expr, error) {
	s1, err := tc.ensureSortOf(b.Domain)
	if err != nil {
		return nil, err
	}
	l := tc.FreshLocal(b.Binder, b.Domain)
	s2, err := tc.ensureSortOf(expr.Instantiate(b.Body, l))
	if err != nil {
		return nil, err
	}
	// Prop is impredicative.
	if s2.Level == 0 {
		return expr.Prop, nil
	}
	return expr.NewSort(max(s1.Level, s2.Level)), nil
}

func (tc *TypeChecker) ensureSortOf(e expr.Expr) (*expr.Sort, error) {
	t, err := tc.Infer(e)
	if err != nil {
		return nil, err
	}
	s, ok := tc.WHNF(t).(*expr.Sort)
	if !ok {
		return nil, &TypeError{Op: "Infer", Term: e, Err: ErrNotASort}
	}
	return s, nil
}

// EnsurePi reduces t to a Pi.
func (tc *TypeChecker) EnsurePi(t expr.Expr) (*expr.Binding, error) {
	b, ok := tc.WHNF(t).(*expr.Binding)
	if !ok || b.Kind() != expr.KindPi {
		return nil, &TypeError{Op: "EnsurePi", Term: t, Err: ErrNotAFunction}
	}
	return b, nil
}

// -----------------------------------------------------------------------------
// Reduction and conversion
// -----------------------------------------------------------------------------

// WHNF reduces e to weak head normal form: beta, unfolding of definitions
// and of let-bound locals at the head.
func (tc *TypeChecker) WHNF(e expr.Expr) expr.Expr {
	for {
		fn, args := expr.AppArgs(e)
		switch h := fn.(type) {
		case *expr.Binding:
			if h.Kind() == expr.KindLambda && len(args) > 0 {
				e = expr.HeadBeta(e)
				continue
			}
		case *expr.Const:
			if d, ok := tc.env.Lookup(h.Name); ok && d.IsDefinition() {
				e = expr.NewApp(d.Value, args...)
				continue
			}
		case *expr.Local:
			if h.Value != nil {
				e = expr.NewApp(h.Value, args...)
				continue
			}
		}
		return e
	}
}

// IsDefEq decides definitional equality of a and b.
func (tc *TypeChecker) IsDefEq(a, b expr.Expr) bool {
	if expr.Equal(a, b) {
		return true
	}
	a, b = tc.WHNF(a), tc.WHNF(b)
	if expr.Equal(a, b) {
		return true
	}
	if lam, ok := a.(*expr.Binding); ok && lam.Kind() == expr.KindLambda && !isLambda(b) {
		return tc.etaDefEq(lam, b)
	}
	if lam, ok := b.(*expr.Binding); ok && lam.Kind() == expr.KindLambda && !isLambda(a) {
		return tc.etaDefEq(lam, a)
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *expr.Sort:
		return x.Level == b.(*expr.Sort).Level
	case *expr.App:
		fa, argsA := expr.AppArgs(x)
		fb, argsB := expr.AppArgs(b)
		if len(argsA) != len(argsB) || !tc.IsDefEq(fa, fb) {
			return false
		}
		for i := range argsA {
			if !tc.IsDefEq(argsA[i], argsB[i]) {
				return false
			}
		}
		return true
	case *expr.Binding:
		y := b.(*expr.Binding)
		if !tc.IsDefEq(x.Domain, y.Domain) {
			return false
		}
		l := tc.FreshLocal(x.Binder, x.Domain)
		return tc.IsDefEq(expr.Instantiate(x.Body, l), expr.Instantiate(y.Body, l))
	}
	return false
}

// etaDefEq compares fun x, body with f by checking body = f x.
func (tc *TypeChecker) etaDefEq(lam *expr.Binding, f expr.Expr) bool {
	l := tc.FreshLocal(lam.Binder, lam.Domain)
	return tc.IsDefEq(expr.Instantiate(lam.Body, l), expr.NewApp(f, l))
}

func isLambda(e expr.Expr) bool {
	b, ok := e.(*expr.Binding)
	return ok && b.Kind() == expr.KindLambda
}
