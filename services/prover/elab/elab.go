// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package elab provides the reference elaborator used by the prover.
//
// It turns surface terms (with holes "_", named holes "?m" and overload
// choices) into kernel terms for the focus goal of a proof state. Holes
// become placeholders: fresh metavariables applied to the goal's
// hypotheses and to any binders the hole sits under.
package elab

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/tactic"
)

// Package-level error definitions.
var (
	ErrTypeMismatch     = errors.New("type mismatch")
	ErrCannotSynthesize = errors.New("don't know how to synthesize placeholder")
	ErrAmbiguous        = errors.New("none of the overloads is applicable")
	ErrHoleType         = errors.New("cannot infer the type of placeholder")
	ErrUnknownConstant  = errors.New("unknown identifier")
	ErrNotAFunction     = errors.New("function expected")
	ErrNotAType         = errors.New("type expected")
	ErrNameInUse        = errors.New("metavariable name already in use")
)

// Error describes a failure to elaborate a subterm.
type Error struct {
	Term expr.Expr
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v, at term %s", e.Err, e.Term)
}

func (e *Error) Unwrap() error { return e.Err }

// =============================================================================
// Elaborator
// =============================================================================

// Elaborator is the reference tactic.Elaborator.
//
// Thread Safety: Safe for concurrent use. Each call keeps its own state.
type Elaborator struct {
	logger *slog.Logger
}

// New returns an elaborator logging to logger, or slog.Default() if nil.
func New(logger *slog.Logger) *Elaborator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Elaborator{logger: logger.With(slog.String("component", "elaborator"))}
}

var _ tactic.Elaborator = (*Elaborator)(nil)

// Elaborate elaborates term for the focus goal of s.
//
// Description:
//
//	When expected is non-nil it drives elaboration: it types a top-level
//	hole, selects among overload alternatives and is unified with the
//	result's type. Metavariables created for holes are returned
//	unassigned unless unification solved them.
//
// Outputs:
//   - tactic.ElabResult: The elaborated term, the state carrying the
//     extended substitution and name generator, and any postponed
//     constraints. Term is nil when s has no goals.
//   - error: *Error wrapping one of the package errors.
func (el *Elaborator) Elaborate(_ context.Context, env kernel.Environment, _ tactic.IOState, s proof.State,
	term, expected expr.Expr, opts tactic.ElabOptions) (tactic.ElabResult, error) {

	g, ok := s.Focus()
	if !ok {
		return tactic.ElabResult{State: s}, nil
	}

	metaGen, ngen := s.NameGen().Child()
	tcGen, metaGen := metaGen.Child()
	st := &elabState{
		env:          env,
		u:            &unifier{tc: kernel.NewTypeChecker(env, tcGen), subst: s.Subst()},
		ngen:         metaGen,
		conservative: opts.Conservative,
		goalMetas:    make(map[expr.Name]bool, s.NumGoals()),
	}
	for _, og := range s.Goals() {
		st.goalMetas[og.Name()] = true
	}

	e, t, err := st.elab(term, expected, g.Hypotheses())
	if err != nil {
		el.logger.Debug("elaboration failed", slog.String("term", term.String()), slog.String("error", err.Error()))
		return tactic.ElabResult{}, err
	}
	if expected != nil && !st.u.unify(t, expected) {
		return tactic.ElabResult{}, st.mismatch(e, t, expected)
	}

	e = st.u.instantiate(e)
	if opts.ReportUnresolved {
		if err := st.checkResolved(e); err != nil {
			return tactic.ElabResult{}, err
		}
	}

	el.logger.Debug("elaborated",
		slog.String("goal", string(g.Name())),
		slog.String("term", e.String()),
		slog.Int("placeholders", len(st.created)),
		slog.Int("residual", len(st.u.residual)),
	)
	return tactic.ElabResult{
		Term:     e,
		State:    s.WithSubst(st.u.subst).WithNameGen(ngen),
		Residual: st.u.residual,
	}, nil
}

// elabState is the state of one Elaborate call.
type elabState struct {
	env          kernel.Environment
	u            *unifier
	ngen         proof.NameGenerator
	conservative bool
	created      []*expr.Meta

	// goalMetas are the metavariables of the open goals. Named holes may
	// not reuse them.
	goalMetas map[expr.Name]bool
}

type elabMark struct {
	u       unifierMark
	ngen    proof.NameGenerator
	created int
}

func (st *elabState) mark() elabMark {
	return elabMark{u: st.u.mark(), ngen: st.ngen, created: len(st.created)}
}

func (st *elabState) reset(m elabMark) {
	st.u.reset(m.u)
	st.ngen = m.ngen
	st.created = st.created[:m.created]
}

// elab elaborates e in the context of locals and returns the term and its
// type.
func (st *elabState) elab(e, expected expr.Expr, locals []*expr.Local) (expr.Expr, expr.Expr, error) {
	switch x := e.(type) {
	case *expr.Hole:
		name, next := st.ngen.Next()
		st.ngen = next
		return st.placeholder(e, name, expected, locals)
	case *expr.Meta:
		if x.Type == nil {
			if st.u.subst.IsAssigned(x.Name) {
				return nil, nil, &Error{Term: e, Err: proof.ErrAlreadyAssigned}
			}
			if st.goalMetas[x.Name] {
				return nil, nil, &Error{Term: e, Err: fmt.Errorf("%w: ?%s is an open goal", ErrNameInUse, x.Name)}
			}
			return st.placeholder(e, x.Name, expected, locals)
		}
		return x, st.u.instantiate(x.Type), nil
	case *expr.Var:
		return nil, nil, &Error{Term: e, Err: kernel.ErrLooseBoundVar}
	case *expr.Sort:
		return x, expr.NewSort(x.Level + 1), nil
	case *expr.Const:
		d, ok := st.env.Lookup(x.Name)
		if !ok {
			return nil, nil, &Error{Term: e, Err: fmt.Errorf("%w '%s'", ErrUnknownConstant, x.Name)}
		}
		return x, d.Type, nil
	case *expr.Local:
		return x, x.Type, nil
	case *expr.App:
		return st.elabApp(x, locals)
	case *expr.Binding:
		if x.Kind() == expr.KindLambda {
			return st.elabLambda(x, expected, locals)
		}
		return st.elabPi(x, locals)
	case *expr.Choice:
		return st.elabChoice(x, expected, locals)
	}
	return nil, nil, &Error{Term: e, Err: fmt.Errorf("unexpected term kind %s", e.Kind())}
}

// placeholder creates ?name : Π locals. expected and returns ?name locals.
func (st *elabState) placeholder(e expr.Expr, name expr.Name, expected expr.Expr, locals []*expr.Local) (expr.Expr, expr.Expr, error) {
	if expected == nil {
		return nil, nil, &Error{Term: e, Err: ErrHoleType}
	}
	expected = st.u.instantiate(expected)
	m := expr.NewMeta(name, expr.Pis(locals, expected))
	args := make([]expr.Expr, len(locals))
	for i, l := range locals {
		args[i] = l
	}
	st.created = append(st.created, m)
	return expr.NewApp(m, args...), expected, nil
}

func (st *elabState) elabApp(a *expr.App, locals []*expr.Local) (expr.Expr, expr.Expr, error) {
	fnSurface, argsSurface := expr.AppArgs(a)
	fn, fnType, err := st.elab(fnSurface, nil, locals)
	if err != nil {
		return nil, nil, err
	}
	for _, argSurface := range argsSurface {
		pi, ok := st.u.tc.WHNF(st.u.instantiate(fnType)).(*expr.Binding)
		if !ok || pi.Kind() != expr.KindPi {
			return nil, nil, &Error{Term: a, Err: fmt.Errorf("%w, %s has type %s", ErrNotAFunction, st.u.instantiate(fn), fnType)}
		}
		arg, argType, err := st.elab(argSurface, pi.Domain, locals)
		if err != nil {
			return nil, nil, err
		}
		if !st.u.unify(argType, pi.Domain) {
			return nil, nil, st.mismatch(arg, argType, pi.Domain)
		}
		fn = expr.NewApp(fn, arg)
		fnType = expr.Instantiate(pi.Body, arg)
	}
	return fn, fnType, nil
}

func (st *elabState) elabLambda(b *expr.Binding, expected expr.Expr, locals []*expr.Local) (expr.Expr, expr.Expr, error) {
	dom, err := st.elabType(b.Domain, locals)
	if err != nil {
		return nil, nil, err
	}
	l := st.u.tc.FreshLocal(b.Binder, dom)

	var bodyExpected expr.Expr
	if expected != nil {
		if pi, ok := st.u.tc.WHNF(st.u.instantiate(expected)).(*expr.Binding); ok && pi.Kind() == expr.KindPi {
			bodyExpected = expr.Instantiate(pi.Body, l)
		}
	}
	body, bodyType, err := st.elab(expr.Instantiate(b.Body, l), bodyExpected, extend(locals, l))
	if err != nil {
		return nil, nil, err
	}
	body, bodyType = st.u.instantiate(body), st.u.instantiate(bodyType)
	return expr.NewLambda(b.Binder, dom, expr.Abstract(body, l)),
		expr.NewPi(b.Binder, dom, expr.Abstract(bodyType, l)), nil
}

func (st *elabState) elabPi(b *expr.Binding, locals []*expr.Local) (expr.Expr, expr.Expr, error) {
	dom, err := st.elabType(b.Domain, locals)
	if err != nil {
		return nil, nil, err
	}
	l := st.u.tc.FreshLocal(b.Binder, dom)
	body, err := st.elabType(expr.Instantiate(b.Body, l), extend(locals, l))
	if err != nil {
		return nil, nil, err
	}
	pi := expr.NewPi(b.Binder, dom, expr.Abstract(st.u.instantiate(body), l))
	t, err := st.u.tc.Infer(pi)
	if err != nil {
		return nil, nil, &Error{Term: b, Err: err}
	}
	return pi, t, nil
}

// elabType elaborates e and checks that it is a type.
func (st *elabState) elabType(e expr.Expr, locals []*expr.Local) (expr.Expr, error) {
	t, ty, err := st.elab(e, nil, locals)
	if err != nil {
		return nil, err
	}
	if _, ok := st.u.tc.WHNF(st.u.instantiate(ty)).(*expr.Sort); !ok {
		return nil, &Error{Term: e, Err: fmt.Errorf("%w, %s has type %s", ErrNotAType, t, ty)}
	}
	return st.u.instantiate(t), nil
}

// elabChoice picks an overload alternative.
//
// Conservative elaboration commits to the first alternative. Otherwise the
// first alternative that elaborates and, when expected is known, whose
// type unifies with it is chosen.
func (st *elabState) elabChoice(c *expr.Choice, expected expr.Expr, locals []*expr.Local) (expr.Expr, expr.Expr, error) {
	if len(c.Alts) == 0 {
		return nil, nil, &Error{Term: c, Err: ErrAmbiguous}
	}
	if st.conservative {
		return st.elab(c.Alts[0], expected, locals)
	}
	var failures []string
	for _, alt := range c.Alts {
		m := st.mark()
		e, t, err := st.elab(alt, expected, locals)
		if err == nil && (expected == nil || st.u.unify(t, expected)) {
			return e, t, nil
		}
		if err != nil {
			failures = append(failures, err.Error())
		} else {
			failures = append(failures, fmt.Sprintf("%s has type %s", alt, t))
		}
		st.reset(m)
	}
	return nil, nil, &Error{Term: c, Err: fmt.Errorf("%w (%s)", ErrAmbiguous, strings.Join(failures, "; "))}
}

func (st *elabState) mismatch(e, got, want expr.Expr) error {
	return &Error{
		Term: st.u.instantiate(e),
		Err: fmt.Errorf("%w, term has type %s but is expected to have type %s",
			ErrTypeMismatch, st.u.instantiate(got), st.u.instantiate(want)),
	}
}

// checkResolved fails when e still mentions a metavariable created for a
// hole.
func (st *elabState) checkResolved(e expr.Expr) error {
	created := make(map[expr.Name]bool, len(st.created))
	for _, m := range st.created {
		created[m.Name] = true
	}
	var open []string
	for _, m := range expr.Metas(e) {
		if created[m.Name] {
			open = append(open, "?"+string(m.Name))
		}
	}
	if len(open) == 0 {
		return nil
	}
	return &Error{Term: e, Err: fmt.Errorf("%w %s", ErrCannotSynthesize, strings.Join(open, ", "))}
}

func extend(locals []*expr.Local, l *expr.Local) []*expr.Local {
	out := make([]*expr.Local, len(locals), len(locals)+1)
	copy(out, locals)
	return append(out, l)
}
