// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tactic

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
)

// =============================================================================
// Presets
// =============================================================================

// Preset describes one registered entry point.
type Preset struct {
	Name          string `json:"name" yaml:"name"`
	Description   string `json:"description" yaml:"description"`
	TakesTerm     bool   `json:"takes_term" yaml:"takes_term"`
	EnforceType   bool   `json:"enforce_type" yaml:"enforce_type"`
	AllowMetavars bool   `json:"allow_metavars" yaml:"allow_metavars"`
	Conservative  bool   `json:"conservative" yaml:"conservative"`
}

// presets is the table of entry points, in registration order.
var presets = []Preset{
	{
		Name:        "exact",
		Description: "close the goal with a term of exactly the goal's type",
		TakesTerm:   true,
		EnforceType: true,
	},
	{
		Name:        "rexact",
		Description: "close the goal with a term elaborated without the goal's type",
		TakesTerm:   true,
	},
	{
		Name:          "refine",
		Description:   "close the goal with a term, turning its placeholders into new goals",
		TakesTerm:     true,
		EnforceType:   true,
		AllowMetavars: true,
	},
	{
		Name:         "assumption",
		Description:  "close the goal with the most recent matching hypothesis",
		Conservative: true,
	},
	{
		Name:        "eassumption",
		Description: "try every matching hypothesis, most recent first",
	},
}

// Presets returns the entry point table in registration order.
func Presets() []Preset {
	out := make([]Preset, len(presets))
	copy(out, presets)
	return out
}

// =============================================================================
// Registry
// =============================================================================

// Deps are the collaborators the registered tactics close over.
type Deps struct {
	// Elaborator elaborates the terms of exact, rexact and refine.
	// Required.
	Elaborator Elaborator

	// TypeCheckers builds type checkers. Defaults to KernelTypeCheckers.
	TypeCheckers TypeCheckerFactory

	// Instrument wraps built tactics with tracing and metrics.
	Instrument bool

	// Logger for lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

type entry struct {
	preset Preset
	build  func(term expr.Expr) Tactic
}

// Registry maps tactic names to builders.
//
// Description:
//
//	The registry is owned by whoever interprets tactic scripts. Initialize
//	installs the five entry points; Finalize removes them. Between the two,
//	Build resolves a name and an optional term to a Tactic.
//
// Thread Safety: Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	logger  *slog.Logger
}

// NewRegistry returns an uninitialized registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// Initialize registers the entry points.
//
// Outputs:
//   - error: ErrInvalidArgument when deps has no elaborator,
//     ErrAlreadyDefined when called twice without Finalize.
func (r *Registry) Initialize(deps Deps) error {
	if deps.Elaborator == nil {
		return fmt.Errorf("%w: elaborator is required", ErrInvalidArgument)
	}
	if deps.TypeCheckers == nil {
		deps.TypeCheckers = KernelTypeCheckers
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries != nil {
		return fmt.Errorf("%w: registry already initialized", ErrAlreadyDefined)
	}
	if deps.Logger != nil {
		r.logger = deps.Logger
	}

	r.entries = make(map[string]entry, len(presets))
	for _, p := range presets {
		r.entries[p.Name] = entry{preset: p, build: builderFor(p, deps)}
	}
	r.logger.Info("tactic registry initialized",
		slog.String("component", "tactic_registry"),
		slog.Int("tactics", len(r.entries)),
	)
	return nil
}

func builderFor(p Preset, deps Deps) func(expr.Expr) Tactic {
	wrap := func(t Tactic) Tactic {
		if deps.Instrument {
			return Instrument(p.Name, t)
		}
		return t
	}
	if !p.TakesTerm {
		if p.Conservative {
			return func(expr.Expr) Tactic { return wrap(NewAssumption(deps.TypeCheckers)) }
		}
		return func(expr.Expr) Tactic { return wrap(NewEAssumption(deps.TypeCheckers)) }
	}
	opts := ExactOptions{
		Name:          p.Name,
		AllowMetavars: p.AllowMetavars,
		EnforceType:   p.EnforceType,
		Conservative:  p.Conservative,
	}
	return func(term expr.Expr) Tactic {
		return wrap(NewExact(deps.Elaborator, deps.TypeCheckers, term, opts))
	}
}

// Finalize removes every entry. Later lookups fail with ErrRegistryClosed.
func (r *Registry) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries == nil {
		return
	}
	r.entries = nil
	r.logger.Info("tactic registry finalized", slog.String("component", "tactic_registry"))
}

// Build returns the tactic registered under name applied to term.
//
// Inputs:
//   - name: Registered tactic name.
//   - term: The term argument. Required for exact, rexact and refine;
//     must be nil for the assumption tactics.
//
// Outputs:
//   - Tactic: The built tactic.
//   - error: ErrRegistryClosed, ErrUnknownTactic or a *Diagnostic of kind
//     ErrInvalidArgument.
func (r *Registry) Build(name string, term expr.Expr) (Tactic, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.entries == nil {
		return nil, ErrRegistryClosed
	}
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTactic, name)
	}
	if e.preset.TakesTerm && term == nil {
		return nil, &Diagnostic{
			Kind:   ErrInvalidArgument,
			Tactic: name,
			Msg:    fmt.Sprintf("invalid '%s' tactic, invalid argument", name),
		}
	}
	if !e.preset.TakesTerm && term != nil {
		return nil, &Diagnostic{
			Kind:   ErrInvalidArgument,
			Tactic: name,
			Msg:    fmt.Sprintf("invalid '%s' tactic, unexpected argument", name),
			Term:   term,
		}
	}
	return e.build(term), nil
}

// Names returns the registered tactic names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Describe returns the preset registered under name.
func (r *Registry) Describe(name string) (Preset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.entries == nil {
		return Preset{}, ErrRegistryClosed
	}
	e, ok := r.entries[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownTactic, name)
	}
	return e.preset, nil
}
