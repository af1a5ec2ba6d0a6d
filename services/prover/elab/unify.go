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
	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/tactic"
)

// unifier solves a = b by assigning metavariables.
//
// Description:
//
//	Pairs whose sides are pattern placeholders (?m applied to distinct
//	locals) are solved by ?m := fun l1 ... ln, t after an occurs check and
//	a scope check. Pairs headed by a metavariable that is not a pattern are
//	postponed as residual constraints. Everything else is compared
//	structurally, then once more after weak head normalization, and
//	finally by the kernel's conversion check.
//
//	A failed attempt leaves the substitution as it was.
type unifier struct {
	tc       *kernel.TypeChecker
	subst    proof.Substitution
	residual []tactic.Constraint
}

type unifierMark struct {
	subst    proof.Substitution
	residual int
}

func (u *unifier) mark() unifierMark {
	return unifierMark{subst: u.subst, residual: len(u.residual)}
}

func (u *unifier) reset(m unifierMark) {
	u.subst = m.subst
	u.residual = u.residual[:m.residual]
}

func (u *unifier) instantiate(e expr.Expr) expr.Expr { return u.subst.Instantiate(e) }

// unify reports whether a and b were made equal.
func (u *unifier) unify(a, b expr.Expr) bool {
	m := u.mark()
	if u.unifyCore(a, b, true) {
		return true
	}
	u.reset(m)
	return false
}

func (u *unifier) unifyCore(a, b expr.Expr, retry bool) bool {
	a, b = u.instantiate(a), u.instantiate(b)
	if expr.Equal(a, b) {
		return true
	}
	if ok, handled := u.unifyMeta(a, b); handled {
		return ok
	}
	if ok, handled := u.unifyMeta(b, a); handled {
		return ok
	}

	if a.Kind() == b.Kind() {
		m := u.mark()
		if u.unifyStructural(a, b) {
			return true
		}
		u.reset(m)
	}

	if retry {
		wa, wb := u.tc.WHNF(a), u.tc.WHNF(b)
		if !expr.Equal(wa, a) || !expr.Equal(wb, b) {
			return u.unifyCore(wa, wb, false)
		}
	}
	if a.HasMeta() || b.HasMeta() {
		return false
	}
	return u.tc.IsDefEq(a, b)
}

// unifyMeta handles pairs whose left side is headed by an unassigned
// metavariable. handled is false when lhs is not such a term.
func (u *unifier) unifyMeta(lhs, rhs expr.Expr) (ok, handled bool) {
	fn, args := expr.AppArgs(lhs)
	m, isMeta := fn.(*expr.Meta)
	if !isMeta {
		return false, false
	}
	if locals, pattern := patternArgs(args); pattern {
		return u.assign(m, locals, rhs), true
	}
	u.residual = append(u.residual, tactic.Constraint{LHS: lhs, RHS: rhs})
	return true, true
}

func (u *unifier) assign(m *expr.Meta, locals []*expr.Local, rhs expr.Expr) bool {
	if expr.OccursMeta(m.Name, rhs) {
		return false
	}
	allowed := make(map[expr.Name]bool, len(locals))
	for _, l := range locals {
		allowed[l.Name] = true
	}
	for _, l := range expr.Locals(rhs) {
		if !allowed[l.Name] {
			return false
		}
	}
	subst, err := u.subst.Assign(m.Name, expr.Lambdas(locals, rhs))
	if err != nil {
		return false
	}
	u.subst = subst
	return true
}

func (u *unifier) unifyStructural(a, b expr.Expr) bool {
	switch x := a.(type) {
	case *expr.Sort:
		return x.Level == b.(*expr.Sort).Level
	case *expr.App:
		fa, argsA := expr.AppArgs(x)
		fb, argsB := expr.AppArgs(b)
		if len(argsA) != len(argsB) || !u.unifyCore(fa, fb, true) {
			return false
		}
		for i := range argsA {
			if !u.unifyCore(argsA[i], argsB[i], true) {
				return false
			}
		}
		return true
	case *expr.Binding:
		y := b.(*expr.Binding)
		if !u.unifyCore(x.Domain, y.Domain, true) {
			return false
		}
		l := u.tc.FreshLocal(x.Binder, u.instantiate(x.Domain))
		return u.unifyCore(expr.Instantiate(x.Body, l), expr.Instantiate(y.Body, l), true)
	}
	return false
}

// patternArgs reports whether args are distinct locals.
func patternArgs(args []expr.Expr) ([]*expr.Local, bool) {
	locals := make([]*expr.Local, len(args))
	seen := make(map[expr.Name]bool, len(args))
	for i, a := range args {
		l, ok := a.(*expr.Local)
		if !ok || seen[l.Name] {
			return nil, false
		}
		seen[l.Name] = true
		locals[i] = l
	}
	return locals, true
}
