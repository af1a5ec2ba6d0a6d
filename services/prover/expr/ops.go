// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package expr

// -----------------------------------------------------------------------------
// Traversal
// -----------------------------------------------------------------------------

// ForEach visits e top-down in pre-order.
//
// Description:
//
//	visit is called on every subterm. When it returns false the children of
//	that subterm are skipped; siblings are still visited. Children are
//	visited function before argument and domain before body, so the visit
//	order of an application's arguments is left to right.
//
//	Shared subterms are visited once per occurrence. Callers that only care
//	about metavariables prune with HasMeta, which keeps revisits cheap.
func ForEach(e Expr, visit func(Expr) bool) {
	if !visit(e) {
		return
	}
	switch x := e.(type) {
	case *App:
		ForEach(x.Fn, visit)
		ForEach(x.Arg, visit)
	case *Binding:
		ForEach(x.Domain, visit)
		ForEach(x.Body, visit)
	case *Choice:
		for _, a := range x.Alts {
			ForEach(a, visit)
		}
	}
}

// Replace rebuilds e bottom-up wherever f returns a replacement.
//
// f is called top-down with the number of binders crossed so far. When it
// returns (r, true) the subterm is replaced by r and not descended into.
// Unchanged subtrees are returned as-is so sharing is preserved.
func Replace(e Expr, f func(e Expr, depth int) (Expr, bool)) Expr {
	return replace(e, 0, f)
}

func replace(e Expr, depth int, f func(Expr, int) (Expr, bool)) Expr {
	if r, ok := f(e, depth); ok {
		return r
	}
	switch x := e.(type) {
	case *App:
		fn := replace(x.Fn, depth, f)
		arg := replace(x.Arg, depth, f)
		if fn == x.Fn && arg == x.Arg {
			return e
		}
		return NewApp(fn, arg)
	case *Binding:
		dom := replace(x.Domain, depth, f)
		body := replace(x.Body, depth+1, f)
		if dom == x.Domain && body == x.Body {
			return e
		}
		return newBinding(x.kind, x.Binder, dom, body)
	case *Choice:
		changed := false
		alts := make([]Expr, len(x.Alts))
		for i, a := range x.Alts {
			alts[i] = replace(a, depth, f)
			changed = changed || alts[i] != a
		}
		if !changed {
			return e
		}
		return NewChoice(alts...)
	}
	return e
}

// -----------------------------------------------------------------------------
// De Bruijn operations
// -----------------------------------------------------------------------------

// LooseBVarRange returns one more than the largest loose de Bruijn index in
// e, or 0 when e is closed.
func LooseBVarRange(e Expr) int {
	r := 0
	var walk func(e Expr, depth int)
	walk = func(e Expr, depth int) {
		switch x := e.(type) {
		case *Var:
			if x.Idx >= depth && x.Idx-depth+1 > r {
				r = x.Idx - depth + 1
			}
		case *App:
			walk(x.Fn, depth)
			walk(x.Arg, depth)
		case *Binding:
			walk(x.Domain, depth)
			walk(x.Body, depth+1)
		case *Choice:
			for _, a := range x.Alts {
				walk(a, depth)
			}
		}
	}
	walk(e, 0)
	return r
}

// HasLooseBVar reports whether bound variable i occurs loose in e.
func HasLooseBVar(e Expr, i int) bool {
	found := false
	var walk func(e Expr, depth int)
	walk = func(e Expr, depth int) {
		if found {
			return
		}
		switch x := e.(type) {
		case *Var:
			found = x.Idx == i+depth
		case *App:
			walk(x.Fn, depth)
			walk(x.Arg, depth)
		case *Binding:
			walk(x.Domain, depth)
			walk(x.Body, depth+1)
		case *Choice:
			for _, a := range x.Alts {
				walk(a, depth)
			}
		}
	}
	walk(e, 0)
	return found
}

// Lift shifts every loose bound variable of e up by n.
func Lift(e Expr, n int) Expr {
	if n == 0 {
		return e
	}
	return Replace(e, func(s Expr, depth int) (Expr, bool) {
		v, ok := s.(*Var)
		if !ok {
			return nil, false
		}
		if v.Idx >= depth {
			return NewVar(v.Idx + n), true
		}
		return s, true
	})
}

// Instantiate substitutes arg for the loose bound variable 0 of body, the
// body of a binder.
func Instantiate(body, arg Expr) Expr {
	return Replace(body, func(s Expr, depth int) (Expr, bool) {
		v, ok := s.(*Var)
		if !ok {
			return nil, false
		}
		switch {
		case v.Idx == depth:
			return Lift(arg, depth), true
		case v.Idx > depth:
			return NewVar(v.Idx - 1), true
		}
		return s, true
	})
}

// Abstract replaces occurrences of the given locals by bound variables.
//
// The last local becomes Var 0, matching Lambdas and Pis which wrap the
// result with the last local innermost.
func Abstract(e Expr, locals ...*Local) Expr {
	if len(locals) == 0 {
		return e
	}
	idx := make(map[Name]int, len(locals))
	for i, l := range locals {
		idx[l.Name] = i
	}
	n := len(locals)
	return Replace(e, func(s Expr, depth int) (Expr, bool) {
		l, ok := s.(*Local)
		if !ok {
			return nil, false
		}
		if i, ok := idx[l.Name]; ok {
			return NewVar(depth + n - 1 - i), true
		}
		return s, true
	})
}

// Lambdas returns fun l1 ... ln, body.
func Lambdas(locals []*Local, body Expr) Expr {
	return bindAll(KindLambda, locals, body)
}

// Pis returns Π l1 ... ln, body.
func Pis(locals []*Local, body Expr) Expr {
	return bindAll(KindPi, locals, body)
}

func bindAll(kind Kind, locals []*Local, body Expr) Expr {
	r := Abstract(body, locals...)
	for i := len(locals) - 1; i >= 0; i-- {
		dom := Abstract(locals[i].Type, locals[:i]...)
		r = newBinding(kind, locals[i].Display, dom, r)
	}
	return r
}

// HeadBeta reduces (fun x, b) a ... to b[a/x] ... while the head is a lambda.
func HeadBeta(e Expr) Expr {
	fn, args := AppArgs(e)
	i := 0
	for ; i < len(args); i++ {
		b, ok := fn.(*Binding)
		if !ok || b.kind != KindLambda {
			break
		}
		fn = Instantiate(b.Body, args[i])
	}
	if i == 0 {
		return e
	}
	return HeadBeta(NewApp(fn, args[i:]...))
}

// Locals returns the distinct local constants occurring in e, in first
// occurrence order.
func Locals(e Expr) []*Local {
	var out []*Local
	seen := make(map[Name]bool)
	ForEach(e, func(s Expr) bool {
		if l, ok := s.(*Local); ok && !seen[l.Name] {
			seen[l.Name] = true
			out = append(out, l)
		}
		return true
	})
	return out
}

// Metas returns the distinct metavariables occurring in e, in first
// occurrence order.
func Metas(e Expr) []*Meta {
	var out []*Meta
	seen := make(map[Name]bool)
	ForEach(e, func(s Expr) bool {
		if !s.HasMeta() {
			return false
		}
		if m, ok := s.(*Meta); ok && !seen[m.Name] {
			seen[m.Name] = true
			out = append(out, m)
		}
		return true
	})
	return out
}

// OccursMeta reports whether the metavariable name occurs in e.
func OccursMeta(name Name, e Expr) bool {
	found := false
	ForEach(e, func(s Expr) bool {
		if found || !s.HasMeta() {
			return false
		}
		if m, ok := s.(*Meta); ok && m.Name == name {
			found = true
		}
		return !found
	})
	return found
}
