// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package problem

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
)

// MaxTermDepth bounds the nesting of a term.
const MaxTermDepth = 256

// =============================================================================
// Reader
// =============================================================================

// node is a raw s-expression.
type node struct {
	pos  int
	atom string
	list []node
}

func (n node) isAtom() bool { return n.list == nil }

type reader struct {
	src string
	pos int
}

func (r *reader) skipSpace() {
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		switch {
		case c == ';':
			for r.pos < len(r.src) && r.src[r.pos] != '\n' {
				r.pos++
			}
		case unicode.IsSpace(rune(c)):
			r.pos++
		default:
			return
		}
	}
}

func (r *reader) read(depth int) (node, error) {
	if depth > MaxTermDepth {
		return node{}, fmt.Errorf("%w: term nested deeper than %d", ErrSyntax, MaxTermDepth)
	}
	r.skipSpace()
	if r.pos >= len(r.src) {
		return node{}, fmt.Errorf("%w: unexpected end of input", ErrSyntax)
	}
	start := r.pos
	switch r.src[r.pos] {
	case ')':
		return node{}, fmt.Errorf("%w: unexpected ')' at offset %d", ErrSyntax, start)
	case '(':
		r.pos++
		list := []node{}
		for {
			r.skipSpace()
			if r.pos >= len(r.src) {
				return node{}, fmt.Errorf("%w: unclosed '(' at offset %d", ErrSyntax, start)
			}
			if r.src[r.pos] == ')' {
				r.pos++
				return node{pos: start, list: list}, nil
			}
			child, err := r.read(depth + 1)
			if err != nil {
				return node{}, err
			}
			list = append(list, child)
		}
	}
	for r.pos < len(r.src) {
		c := r.src[r.pos]
		if c == '(' || c == ')' || c == ';' || unicode.IsSpace(rune(c)) {
			break
		}
		r.pos++
	}
	return node{pos: start, atom: r.src[start:r.pos]}, nil
}

// readOne parses exactly one s-expression from src.
func readOne(src string) (node, error) {
	r := &reader{src: src}
	n, err := r.read(0)
	if err != nil {
		return node{}, err
	}
	r.skipSpace()
	if r.pos != len(r.src) {
		return node{}, fmt.Errorf("%w: trailing input at offset %d", ErrSyntax, r.pos)
	}
	return n, nil
}

// =============================================================================
// Conversion to terms
// =============================================================================

// scope resolves identifiers.
type scope struct {
	env     kernel.Environment
	hyps    []*expr.Local
	binders []string
}

// ParseExpr parses src into a surface term.
//
// Description:
//
//	Identifiers resolve to the innermost enclosing binder, then to the
//	hypotheses (latest first), then to declarations of env. "_" is a hole
//	and "?m" a named hole.
//
//	Syntax:
//
//	  Type | Prop | (Sort n) | ident | _ | ?name
//	  (f a b ...)
//	  (fun (x A) (y B) ... body)    (Pi (x A) ... B)    (-> A B ... C)
//	  (choice a b ...)
//
// Inputs:
//   - src: The source text.
//   - env: Declarations. May be nil, in which case every unresolved
//     identifier is an error.
//   - hyps: Hypotheses in scope, in declaration order.
//
// Outputs:
//   - expr.Expr: The term. Binders are locally nameless.
//   - error: ErrSyntax or ErrUnknownIdentifier.
func ParseExpr(src string, env kernel.Environment, hyps []*expr.Local) (expr.Expr, error) {
	n, err := readOne(src)
	if err != nil {
		return nil, err
	}
	sc := &scope{env: env, hyps: hyps}
	return sc.convert(n)
}

func (sc *scope) convert(n node) (expr.Expr, error) {
	if n.isAtom() {
		return sc.atom(n)
	}
	if len(n.list) == 0 {
		return nil, fmt.Errorf("%w: empty list at offset %d", ErrSyntax, n.pos)
	}
	head := n.list[0]
	if head.isAtom() {
		switch head.atom {
		case "fun", "λ":
			return sc.binding(n, expr.NewLambda)
		case "Pi", "Π", "forall", "∀":
			return sc.binding(n, expr.NewPi)
		case "->", "→":
			return sc.arrow(n)
		case "choice":
			return sc.choice(n)
		case "Sort":
			return sc.sort(n)
		}
	}
	if len(n.list) == 1 {
		return sc.convert(head)
	}
	fn, err := sc.convert(head)
	if err != nil {
		return nil, err
	}
	args := make([]expr.Expr, len(n.list)-1)
	for i, c := range n.list[1:] {
		if args[i], err = sc.convert(c); err != nil {
			return nil, err
		}
	}
	return expr.NewApp(fn, args...), nil
}

func (sc *scope) atom(n node) (expr.Expr, error) {
	switch {
	case n.atom == "Type":
		return expr.Type, nil
	case n.atom == "Prop":
		return expr.Prop, nil
	case n.atom == "_":
		return expr.NewHole(), nil
	case strings.HasPrefix(n.atom, "?"):
		name := n.atom[1:]
		if name == "" {
			return nil, fmt.Errorf("%w: empty metavariable name at offset %d", ErrSyntax, n.pos)
		}
		return &expr.Meta{Name: expr.Name(name)}, nil
	}

	for i := len(sc.binders) - 1; i >= 0; i-- {
		if sc.binders[i] == n.atom {
			return expr.NewVar(len(sc.binders) - 1 - i), nil
		}
	}
	for i := len(sc.hyps) - 1; i >= 0; i-- {
		if sc.hyps[i].Display == n.atom {
			return sc.hyps[i], nil
		}
	}
	if sc.env != nil {
		if _, ok := sc.env.Lookup(expr.Name(n.atom)); ok {
			return expr.NewConst(expr.Name(n.atom)), nil
		}
	}
	return nil, fmt.Errorf("%w '%s' at offset %d", ErrUnknownIdentifier, n.atom, n.pos)
}

type binderCtor func(binder string, domain, body expr.Expr) expr.Expr

// binding parses (fun (x A) (y B) ... body).
func (sc *scope) binding(n node, mk binderCtor) (expr.Expr, error) {
	if len(n.list) < 3 {
		return nil, fmt.Errorf("%w: %s needs at least one binder and a body at offset %d", ErrSyntax, n.list[0].atom, n.pos)
	}
	binders := n.list[1 : len(n.list)-1]
	names := make([]string, len(binders))
	domains := make([]expr.Expr, len(binders))
	saved := sc.binders
	defer func() { sc.binders = saved }()

	for i, b := range binders {
		if b.isAtom() || len(b.list) != 2 || !b.list[0].isAtom() {
			return nil, fmt.Errorf("%w: binder must be (name type) at offset %d", ErrSyntax, b.pos)
		}
		dom, err := sc.convert(b.list[1])
		if err != nil {
			return nil, err
		}
		names[i], domains[i] = b.list[0].atom, dom
		sc.binders = append(sc.binders[:len(sc.binders):len(sc.binders)], names[i])
	}
	body, err := sc.convert(n.list[len(n.list)-1])
	if err != nil {
		return nil, err
	}
	for i := len(binders) - 1; i >= 0; i-- {
		body = mk(names[i], domains[i], body)
	}
	return body, nil
}

// arrow parses (-> A B ... C), right associative.
func (sc *scope) arrow(n node) (expr.Expr, error) {
	if len(n.list) < 3 {
		return nil, fmt.Errorf("%w: -> needs at least two types at offset %d", ErrSyntax, n.pos)
	}
	parts := make([]expr.Expr, len(n.list)-1)
	for i, c := range n.list[1:] {
		p, err := sc.convert(c)
		if err != nil {
			return nil, err
		}
		parts[i] = p
	}
	out := parts[len(parts)-1]
	for i := len(parts) - 2; i >= 0; i-- {
		out = expr.NewArrow(parts[i], out)
	}
	return out, nil
}

func (sc *scope) choice(n node) (expr.Expr, error) {
	if len(n.list) < 2 {
		return nil, fmt.Errorf("%w: choice needs at least one alternative at offset %d", ErrSyntax, n.pos)
	}
	alts := make([]expr.Expr, len(n.list)-1)
	for i, c := range n.list[1:] {
		a, err := sc.convert(c)
		if err != nil {
			return nil, err
		}
		alts[i] = a
	}
	return expr.NewChoice(alts...), nil
}

func (sc *scope) sort(n node) (expr.Expr, error) {
	if len(n.list) != 2 || !n.list[1].isAtom() {
		return nil, fmt.Errorf("%w: Sort takes one level at offset %d", ErrSyntax, n.pos)
	}
	level, err := strconv.Atoi(n.list[1].atom)
	if err != nil || level < 0 {
		return nil, fmt.Errorf("%w: invalid universe level %q at offset %d", ErrSyntax, n.list[1].atom, n.list[1].pos)
	}
	return expr.NewSort(level), nil
}
