// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package kernel provides the reference declaration database and type
// checker used by the prover's tactics.
//
// The tactic engine only depends on the Environment interface and on the
// tactic.TypeChecker boundary. The implementations here are deliberately
// small: a persistent map of declarations and a locally nameless checker
// with beta, delta and zeta reduction.
package kernel

import (
	"errors"
	"fmt"
	"sort"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
)

// Package-level error definitions.
var (
	ErrUnknownConstant   = errors.New("unknown constant")
	ErrDuplicateDecl     = errors.New("duplicate declaration")
	ErrNotAFunction      = errors.New("function expected")
	ErrNotASort          = errors.New("type expected")
	ErrLooseBoundVar     = errors.New("loose bound variable")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrSurfaceTerm       = errors.New("surface term reached the kernel")
	ErrDeclarationClosed = errors.New("declaration type must be closed")
)

// TypeError wraps kernel failures with the operation and the offending term.
type TypeError struct {
	Op   string
	Term expr.Expr
	Err  error
}

func (e *TypeError) Error() string {
	if e.Term == nil {
		return "kernel." + e.Op + ": " + e.Err.Error()
	}
	return "kernel." + e.Op + ": " + e.Err.Error() + ": " + e.Term.String()
}

func (e *TypeError) Unwrap() error { return e.Err }

// =============================================================================
// Environment
// =============================================================================

// Declaration is a constant with a type and an optional definition.
type Declaration struct {
	Name  expr.Name
	Type  expr.Expr
	Value expr.Expr
}

// IsDefinition reports whether the declaration has a value to unfold.
func (d Declaration) IsDefinition() bool { return d.Value != nil }

// Environment is the read-only declaration database.
type Environment interface {
	// Lookup returns the declaration named name.
	Lookup(name expr.Name) (Declaration, bool)
}

// Env is a persistent Environment. Add returns a new Env.
//
// Thread Safety: Values are immutable and safe for concurrent use.
type Env struct {
	decls map[expr.Name]Declaration
}

// NewEnv returns an environment holding decls.
func NewEnv(decls ...Declaration) (*Env, error) {
	env := &Env{}
	for _, d := range decls {
		next, err := env.Add(d)
		if err != nil {
			return nil, err
		}
		env = next
	}
	return env, nil
}

// Add returns an environment extended with d.
//
// Description:
//
//	The declaration's type (and value, if any) must be closed: no loose
//	bound variables, no locals and no metavariables.
func (e *Env) Add(d Declaration) (*Env, error) {
	if _, ok := e.decls[d.Name]; ok {
		return nil, &TypeError{Op: "Add", Term: expr.NewConst(d.Name), Err: ErrDuplicateDecl}
	}
	for _, t := range []expr.Expr{d.Type, d.Value} {
		if t == nil {
			continue
		}
		if t.HasMeta() || expr.LooseBVarRange(t) > 0 || len(expr.Locals(t)) > 0 {
			return nil, &TypeError{Op: "Add", Term: t, Err: fmt.Errorf("%w: %s", ErrDeclarationClosed, d.Name)}
		}
	}
	m := make(map[expr.Name]Declaration, len(e.decls)+1)
	for k, v := range e.decls {
		m[k] = v
	}
	m[d.Name] = d
	return &Env{decls: m}, nil
}

// Lookup implements Environment.
func (e *Env) Lookup(name expr.Name) (Declaration, bool) {
	d, ok := e.decls[name]
	return d, ok
}

// Names returns the declared names, sorted.
func (e *Env) Names() []expr.Name {
	out := make([]expr.Name, 0, len(e.decls))
	for n := range e.decls {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of declarations.
func (e *Env) Len() int { return len(e.decls) }
