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

import "strings"

// =============================================================================
// Names
// =============================================================================

// Name identifies constants, local constants and metavariables.
//
// Hierarchical names are joined with ".", e.g. "_ngen.3.1".
type Name string

// Append returns the hierarchical name n.s.
func (n Name) Append(s string) Name {
	if n == "" {
		return Name(s)
	}
	return Name(string(n) + "." + s)
}

// String returns the name as a plain string.
func (n Name) String() string { return string(n) }

// Last returns the final component of a hierarchical name.
func (n Name) Last() string {
	s := string(n)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// =============================================================================
// Kinds
// =============================================================================

// Kind discriminates the concrete node types.
type Kind uint8

const (
	KindVar Kind = iota
	KindSort
	KindConst
	KindLocal
	KindMeta
	KindApp
	KindLambda
	KindPi
	KindHole
	KindChoice
)

var kindNames = [...]string{
	KindVar:    "var",
	KindSort:   "sort",
	KindConst:  "const",
	KindLocal:  "local",
	KindMeta:   "meta",
	KindApp:    "app",
	KindLambda: "lambda",
	KindPi:     "pi",
	KindHole:   "hole",
	KindChoice: "choice",
}

// String returns the lowercase kind name.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// =============================================================================
// Expr
// =============================================================================

// Expr is an immutable term.
//
// Implementations are the pointer types in this file. Callers switch on
// Kind() or use a type switch; they never construct nodes directly but go
// through the New* constructors so cached flags stay consistent.
type Expr interface {
	// Kind returns the node kind.
	Kind() Kind

	// HasMeta reports whether a metavariable occurs anywhere in the term.
	HasMeta() bool

	// String renders the term in s-expression syntax.
	String() string
}

// Var is a de Bruijn index. Index 0 refers to the innermost binder.
type Var struct{ Idx int }

// Sort is a universe. Sort 0 is Prop, Sort 1 is Type.
type Sort struct{ Level int }

// Const refers to a declaration in the environment.
type Const struct{ Name Name }

// Local is a free local constant: a hypothesis in scope.
//
// Value is the optional bound value of a let-style hypothesis.
type Local struct {
	Name    Name
	Display string
	Type    Expr
	Value   Expr
}

// Meta is a metavariable. Its Type is closed: a metavariable standing for a
// term in a context l1 ... ln has type Π l1 ... ln. T.
type Meta struct {
	Name Name
	Type Expr
}

// App is a binary application. Multi-argument applications nest to the left.
type App struct {
	Fn   Expr
	Arg  Expr
	meta bool
}

// Binding is a Lambda or a Pi.
type Binding struct {
	kind   Kind
	Binder string
	Domain Expr
	Body   Expr
	meta   bool
}

// Hole is the surface placeholder "_".
type Hole struct{}

// Choice is a set of overloaded surface alternatives, in preference order.
type Choice struct {
	Alts []Expr
	meta bool
}

func (*Var) Kind() Kind { return KindVar }
func (*Sort) Kind() Kind { return KindSort }
func (*Const) Kind() Kind { return KindConst }
func (*Local) Kind() Kind { return KindLocal }
func (*Meta) Kind() Kind { return KindMeta }
func (*App) Kind() Kind { return KindApp }
func (b *Binding) Kind() Kind { return b.kind }
func (*Hole) Kind() Kind { return KindHole }
func (*Choice) Kind() Kind { return KindChoice }

func (*Var) HasMeta() bool { return false }
func (*Sort) HasMeta() bool { return false }
func (*Const) HasMeta() bool { return false }
func (*Local) HasMeta() bool { return false }
func (*Meta) HasMeta() bool { return true }
func (a *App) HasMeta() bool { return a.meta }
func (b *Binding) HasMeta() bool { return b.meta }
func (*Hole) HasMeta() bool { return false }
func (c *Choice) HasMeta() bool { return c.meta }

func (e *Var) String() string { return Format(e) }
func (e *Sort) String() string { return Format(e) }
func (e *Const) String() string { return Format(e) }
func (e *Local) String() string { return Format(e) }
func (e *Meta) String() string { return Format(e) }
func (e *App) String() string { return Format(e) }
func (e *Binding) String() string { return Format(e) }
func (e *Hole) String() string { return Format(e) }
func (e *Choice) String() string { return Format(e) }

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

// Prop and Type are the two universes most terms mention.
var (
	Prop Expr = &Sort{Level: 0}
	Type Expr = &Sort{Level: 1}
)

var hole = &Hole{}

// NewVar returns the bound variable with de Bruijn index idx.
func NewVar(idx int) Expr { return &Var{Idx: idx} }

// NewSort returns the universe at the given level.
func NewSort(level int) Expr {
	switch level {
	case 0:
		return Prop
	case 1:
		return Type
	}
	return &Sort{Level: level}
}

// NewConst returns a reference to a declaration.
func NewConst(name Name) Expr { return &Const{Name: name} }

// NewLocal returns a local constant. display defaults to the last
// component of name.
func NewLocal(name Name, display string, typ Expr) *Local {
	if display == "" {
		display = name.Last()
	}
	return &Local{Name: name, Display: display, Type: typ}
}

// WithValue returns a copy of l carrying a bound value.
func (l *Local) WithValue(v Expr) *Local {
	c := *l
	c.Value = v
	return &c
}

// NewMeta returns a metavariable with a closed type.
func NewMeta(name Name, typ Expr) *Meta { return &Meta{Name: name, Type: typ} }

// NewHole returns the surface placeholder.
func NewHole() Expr { return hole }

// NewApp applies fn to args, nesting to the left.
func NewApp(fn Expr, args ...Expr) Expr {
	r := fn
	for _, a := range args {
		r = &App{Fn: r, Arg: a, meta: r.HasMeta() || a.HasMeta()}
	}
	return r
}

// NewLambda returns fun (binder : domain), body. body refers to the
// binder as Var 0.
func NewLambda(binder string, domain, body Expr) Expr {
	return newBinding(KindLambda, binder, domain, body)
}

// NewPi returns Π (binder : domain), body. body refers to the binder as
// Var 0.
func NewPi(binder string, domain, body Expr) Expr {
	return newBinding(KindPi, binder, domain, body)
}

// NewArrow returns the non-dependent function type a -> b. b must not
// refer to the (anonymous) binder.
func NewArrow(a, b Expr) Expr {
	return newBinding(KindPi, "_", a, Lift(b, 1))
}

// NewChoice returns overloaded alternatives. A single alternative is
// returned unwrapped.
func NewChoice(alts ...Expr) Expr {
	if len(alts) == 1 {
		return alts[0]
	}
	meta := false
	for _, a := range alts {
		meta = meta || a.HasMeta()
	}
	cp := make([]Expr, len(alts))
	copy(cp, alts)
	return &Choice{Alts: cp, meta: meta}
}

func newBinding(kind Kind, binder string, domain, body Expr) Expr {
	if binder == "" {
		binder = "_"
	}
	return &Binding{
		kind:   kind,
		Binder: binder,
		Domain: domain,
		Body:   body,
		meta:   domain.HasMeta() || body.HasMeta(),
	}
}

// -----------------------------------------------------------------------------
// Predicates
// -----------------------------------------------------------------------------

// IsMetavar reports whether e is a bare metavariable.
func IsMetavar(e Expr) bool { return e.Kind() == KindMeta }

// IsLocal reports whether e is a local constant.
func IsLocal(e Expr) bool { return e.Kind() == KindLocal }

// IsMetaApp reports whether the head of e is a metavariable.
func IsMetaApp(e Expr) bool { return IsMetavar(AppFn(e)) }

// IsPlaceholder reports whether e is a metavariable applied only to local
// constants. A bare metavariable is a placeholder with zero arguments.
func IsPlaceholder(e Expr) bool {
	fn, args := AppArgs(e)
	if !IsMetavar(fn) {
		return false
	}
	for _, a := range args {
		if !IsLocal(a) {
			return false
		}
	}
	return true
}

// AppFn returns the head of a (possibly nested) application.
func AppFn(e Expr) Expr {
	for {
		a, ok := e.(*App)
		if !ok {
			return e
		}
		e = a.Fn
	}
}

// AppArgs returns the head of e and its arguments in application order.
func AppArgs(e Expr) (Expr, []Expr) {
	n := 0
	for f := e; ; n++ {
		a, ok := f.(*App)
		if !ok {
			break
		}
		f = a.Fn
	}
	args := make([]Expr, n)
	for i := n - 1; i >= 0; i-- {
		a := e.(*App)
		args[i] = a.Arg
		e = a.Fn
	}
	return e, args
}

// Equal reports structural equality. Binder names are ignored, locals and
// metavariables compare by name.
func Equal(a, b Expr) bool {
	if a == b {
		return true
	}
	if a.Kind() != b.Kind() {
		return false
	}
	switch x := a.(type) {
	case *Var:
		return x.Idx == b.(*Var).Idx
	case *Sort:
		return x.Level == b.(*Sort).Level
	case *Const:
		return x.Name == b.(*Const).Name
	case *Local:
		return x.Name == b.(*Local).Name
	case *Meta:
		return x.Name == b.(*Meta).Name
	case *App:
		y := b.(*App)
		return Equal(x.Fn, y.Fn) && Equal(x.Arg, y.Arg)
	case *Binding:
		y := b.(*Binding)
		return Equal(x.Domain, y.Domain) && Equal(x.Body, y.Body)
	case *Hole:
		return true
	case *Choice:
		y := b.(*Choice)
		if len(x.Alts) != len(y.Alts) {
			return false
		}
		for i := range x.Alts {
			if !Equal(x.Alts[i], y.Alts[i]) {
				return false
			}
		}
		return true
	}
	return false
}
