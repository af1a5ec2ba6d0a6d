// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package proof provides the immutable proof model: goals, substitutions,
// name generators and proof states.
//
// Every operation returns a new value. Two branches of a search that start
// from the same State evolve independently; nothing in this package mutates
// a value another branch can observe.
package proof

import (
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
)

// Package-level error definitions.
var (
	ErrNotPlaceholder  = errors.New("goal term is not a placeholder")
	ErrAlreadyAssigned = errors.New("metavariable already assigned")
	ErrOccurs          = errors.New("metavariable occurs in its own assignment")
)

// =============================================================================
// Goal
// =============================================================================

// Goal is an open proof obligation.
//
// Description:
//
//	A goal is the placeholder ?m l1 ... ln together with the type the
//	solution must have. The locals l1 ... ln are the goal's hypotheses, in
//	declaration order. Closing the goal assigns ?m := fun l1 ... ln, E so
//	that instantiating the placeholder yields E.
type Goal struct {
	term expr.Expr
	meta *expr.Meta
	typ  expr.Expr
	hyps []*expr.Local
}

// NewGoal builds a goal from a placeholder term and its expected type.
//
// Inputs:
//   - placeholder: ?m l1 ... ln. Must satisfy expr.IsPlaceholder.
//   - typ: The expected type in the context of the hypotheses.
//
// Outputs:
//   - Goal: The goal.
//   - error: ErrNotPlaceholder if placeholder has the wrong shape.
func NewGoal(placeholder, typ expr.Expr) (Goal, error) {
	if !expr.IsPlaceholder(placeholder) {
		return Goal{}, fmt.Errorf("%w: %s", ErrNotPlaceholder, placeholder)
	}
	fn, args := expr.AppArgs(placeholder)
	hyps := make([]*expr.Local, len(args))
	for i, a := range args {
		hyps[i] = a.(*expr.Local)
	}
	return Goal{term: placeholder, meta: fn.(*expr.Meta), typ: typ, hyps: hyps}, nil
}

// MkGoal creates a fresh goal named name over hyps with the given type.
//
// The metavariable's closed type is Π hyps. typ.
func MkGoal(name expr.Name, hyps []*expr.Local, typ expr.Expr) Goal {
	m := expr.NewMeta(name, expr.Pis(hyps, typ))
	args := make([]expr.Expr, len(hyps))
	for i, h := range hyps {
		args[i] = h
	}
	cp := make([]*expr.Local, len(hyps))
	copy(cp, hyps)
	return Goal{term: expr.NewApp(m, args...), meta: m, typ: typ, hyps: cp}
}

// Meta returns the goal's metavariable.
func (g Goal) Meta() *expr.Meta { return g.meta }

// Name returns the name of the goal's metavariable.
func (g Goal) Name() expr.Name { return g.meta.Name }

// Term returns the placeholder ?m l1 ... ln.
func (g Goal) Term() expr.Expr { return g.term }

// Type returns the expected type.
func (g Goal) Type() expr.Expr { return g.typ }

// Hypotheses returns the hypotheses in declaration order.
//
// The returned slice is a copy.
func (g Goal) Hypotheses() []*expr.Local {
	out := make([]*expr.Local, len(g.hyps))
	copy(out, g.hyps)
	return out
}

// String renders the goal as "h1 : A, h2 : B ⊢ T".
func (g Goal) String() string {
	var sb strings.Builder
	for i, h := range g.hyps {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(h.Display)
		sb.WriteString(" : ")
		sb.WriteString(h.Type.String())
		if h.Value != nil {
			sb.WriteString(" := ")
			sb.WriteString(h.Value.String())
		}
	}
	if len(g.hyps) > 0 {
		sb.WriteString(" ")
	}
	sb.WriteString("⊢ ")
	sb.WriteString(g.typ.String())
	return sb.String()
}

// =============================================================================
// Substitution
// =============================================================================

// Substitution maps metavariable names to assigned terms.
//
// Description:
//
//	Substitution is persistent: Assign copies the underlying map and leaves
//	the receiver untouched, so alternatives of a search can share a common
//	prefix without observing each other's assignments. Along one branch the
//	substitution is append-only; reassigning a name is an error.
//
// Thread Safety: Values are immutable and safe for concurrent use.
type Substitution struct {
	m map[expr.Name]expr.Expr
}

// NewSubstitution returns the empty substitution.
func NewSubstitution() Substitution { return Substitution{} }

// Len returns the number of assignments.
func (s Substitution) Len() int { return len(s.m) }

// Lookup returns the term assigned to name.
func (s Substitution) Lookup(name expr.Name) (expr.Expr, bool) {
	v, ok := s.m[name]
	return v, ok
}

// IsAssigned reports whether name has an assignment.
func (s Substitution) IsAssigned(name expr.Name) bool {
	_, ok := s.m[name]
	return ok
}

// Assign returns a substitution extended with name := v.
//
// v must not mention ?name, directly or through the assignments already
// in s; Instantiate would not terminate otherwise.
func (s Substitution) Assign(name expr.Name, v expr.Expr) (Substitution, error) {
	if _, ok := s.m[name]; ok {
		return s, fmt.Errorf("%w: ?%s", ErrAlreadyAssigned, name)
	}
	if s.occurs(name, v, make(map[expr.Name]bool)) {
		return s, fmt.Errorf("%w: ?%s in %s", ErrOccurs, name, v)
	}
	m := make(map[expr.Name]expr.Expr, len(s.m)+1)
	for k, e := range s.m {
		m[k] = e
	}
	m[name] = v
	return Substitution{m: m}, nil
}

// occurs reports whether ?name appears in v once v's assigned
// metavariables are followed.
func (s Substitution) occurs(name expr.Name, v expr.Expr, visited map[expr.Name]bool) bool {
	if !v.HasMeta() {
		return false
	}
	for _, m := range expr.Metas(v) {
		if m.Name == name {
			return true
		}
		if visited[m.Name] {
			continue
		}
		visited[m.Name] = true
		if a, ok := s.m[m.Name]; ok && s.occurs(name, a, visited) {
			return true
		}
	}
	return false
}

// AssignGoal closes g with v: ?m := fun hyps, v.
func (s Substitution) AssignGoal(g Goal, v expr.Expr) (Substitution, error) {
	return s.Assign(g.Name(), expr.Lambdas(g.hyps, v))
}

// Instantiate replaces assigned metavariables in e, beta reducing
// applications whose head was assigned.
func (s Substitution) Instantiate(e expr.Expr) expr.Expr {
	if len(s.m) == 0 || !e.HasMeta() {
		return e
	}
	return expr.Replace(e, func(sub expr.Expr, _ int) (expr.Expr, bool) {
		if !sub.HasMeta() {
			return sub, true
		}
		switch sub.(type) {
		case *expr.Meta, *expr.App:
		default:
			return nil, false
		}
		fn, args := expr.AppArgs(sub)
		m, ok := fn.(*expr.Meta)
		if !ok {
			return nil, false
		}
		v, ok := s.m[m.Name]
		if !ok {
			if len(args) == 0 {
				return sub, true
			}
			inst := make([]expr.Expr, len(args))
			for i, a := range args {
				inst[i] = s.Instantiate(a)
			}
			return expr.NewApp(fn, inst...), true
		}
		inst := make([]expr.Expr, len(args))
		for i, a := range args {
			inst[i] = s.Instantiate(a)
		}
		return s.Instantiate(expr.HeadBeta(expr.NewApp(v, inst...))), true
	})
}

// =============================================================================
// NameGenerator
// =============================================================================

// NameGenerator mints fresh names.
//
// Description:
//
//	A generator is a prefix plus a counter. Next returns prefix.k and the
//	generator advanced to k+1. Child returns a generator whose prefix is a
//	fresh name of the parent, so names minted by a child never collide
//	with names minted by the parent or by any sibling child.
//
//	The receiver is never modified. Callers must keep the advanced
//	generator returned alongside the name.
type NameGenerator struct {
	prefix expr.Name
	next   uint64
}

// DefaultPrefix is the prefix of generators created without one.
const DefaultPrefix expr.Name = "_ngen"

// NewNameGenerator returns a generator with the given prefix.
func NewNameGenerator(prefix expr.Name) NameGenerator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return NameGenerator{prefix: prefix}
}

// Prefix returns the generator's prefix.
func (g NameGenerator) Prefix() expr.Name {
	if g.prefix == "" {
		return DefaultPrefix
	}
	return g.prefix
}

// Next returns a fresh name and the advanced generator.
func (g NameGenerator) Next() (expr.Name, NameGenerator) {
	name := g.Prefix().Append(fmt.Sprintf("%d", g.next))
	return name, NameGenerator{prefix: g.Prefix(), next: g.next + 1}
}

// Child returns a child generator and the advanced parent.
func (g NameGenerator) Child() (NameGenerator, NameGenerator) {
	name, parent := g.Next()
	return NameGenerator{prefix: name}, parent
}

// =============================================================================
// State
// =============================================================================

// State is a proof state: open goals, substitution, name generator and the
// failure reporting flag.
//
// Description:
//
//	The first goal is the focus goal, the only one tactics act on. When
//	ReportFailure is true a failing tactic raises a diagnostic; when it is
//	false the failure is silent and shows up as an empty result stream, so
//	sibling alternatives of a search stay viable.
//
// Thread Safety: Values are immutable and safe for concurrent use.
type State struct {
	goals         []Goal
	subst         Substitution
	ngen          NameGenerator
	reportFailure bool
}

// NewState returns a state that reports failures.
func NewState(goals []Goal, subst Substitution, ngen NameGenerator) State {
	cp := make([]Goal, len(goals))
	copy(cp, goals)
	return State{goals: cp, subst: subst, ngen: ngen, reportFailure: true}
}

// Goals returns a copy of the goal stack.
func (s State) Goals() []Goal {
	out := make([]Goal, len(s.goals))
	copy(out, s.goals)
	return out
}

// NumGoals returns the number of open goals.
func (s State) NumGoals() int { return len(s.goals) }

// Focus returns the focus goal.
func (s State) Focus() (Goal, bool) {
	if len(s.goals) == 0 {
		return Goal{}, false
	}
	return s.goals[0], true
}

// Tail returns the goal stack without the focus goal.
func (s State) Tail() []Goal {
	if len(s.goals) == 0 {
		return nil
	}
	return s.Goals()[1:]
}

// Subst returns the substitution.
func (s State) Subst() Substitution { return s.subst }

// NameGen returns the name generator.
func (s State) NameGen() NameGenerator { return s.ngen }

// ReportFailure reports whether failures raise diagnostics.
func (s State) ReportFailure() bool { return s.reportFailure }

// WithGoals returns a copy of s with a new goal stack.
func (s State) WithGoals(goals []Goal) State {
	cp := make([]Goal, len(goals))
	copy(cp, goals)
	s.goals = cp
	return s
}

// WithSubst returns a copy of s with a new substitution.
func (s State) WithSubst(subst Substitution) State {
	s.subst = subst
	return s
}

// WithNameGen returns a copy of s with a new name generator.
func (s State) WithNameGen(ngen NameGenerator) State {
	s.ngen = ngen
	return s
}

// WithReportFailure returns a copy of s with the reporting flag set.
func (s State) WithReportFailure(report bool) State {
	s.reportFailure = report
	return s
}

// Instantiate applies the state's substitution to e.
func (s State) Instantiate(e expr.Expr) expr.Expr { return s.subst.Instantiate(e) }

// String renders the goal stack, one goal per line.
func (s State) String() string {
	if len(s.goals) == 0 {
		return "no goals"
	}
	lines := make([]string, len(s.goals))
	for i, g := range s.goals {
		lines[i] = g.String()
	}
	return strings.Join(lines, "\n")
}
