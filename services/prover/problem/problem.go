// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package problem loads proof problems: a list of declarations and a list
// of goals, written in YAML with terms in a small s-expression syntax.
//
// Example:
//
//	declarations:
//	  - {name: Nat, type: Type}
//	  - {name: zero, type: Nat}
//	goals:
//	  - name: main
//	    hypotheses: [{name: h1, type: Bool}, {name: h2, type: Nat}]
//	    type: Nat
//
// Thread Safety:
//
//	A loaded Problem is immutable and safe for concurrent use.
package problem

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
)

// =============================================================================
// Constants (file size limits)
// =============================================================================

const (
	// MaxProblemSize is the maximum allowed problem file size (1MB).
	MaxProblemSize = 1024 * 1024

	// MaxDeclarations is the maximum number of declarations per problem.
	MaxDeclarations = 10000

	// MaxGoals is the maximum number of goals per problem.
	MaxGoals = 1000
)

// Package-level error definitions.
var (
	ErrSyntax            = errors.New("syntax error")
	ErrUnknownIdentifier = errors.New("unknown identifier")
	ErrInvalidProblem    = errors.New("invalid problem")
	ErrTooLarge          = errors.New("problem too large")
)

var tracer = otel.Tracer("aleutian.prover.problem")

// =============================================================================
// YAML types
// =============================================================================

// File is the root structure for YAML deserialization.
type File struct {
	Declarations []DeclarationYAML `yaml:"declarations"`
	Goals        []GoalYAML        `yaml:"goals"`
}

// DeclarationYAML is one declaration. Value is empty for axioms.
type DeclarationYAML struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value string `yaml:"value,omitempty"`
}

// GoalYAML is one goal.
type GoalYAML struct {
	Name       string           `yaml:"name"`
	Hypotheses []HypothesisYAML `yaml:"hypotheses,omitempty"`
	Type       string           `yaml:"type"`
}

// HypothesisYAML is one hypothesis of a goal. Value makes it a let-bound
// hypothesis.
type HypothesisYAML struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Value string `yaml:"value,omitempty"`
}

// =============================================================================
// Problem
// =============================================================================

// Problem is a checked environment and goal list.
type Problem struct {
	Env   *kernel.Env
	Goals []proof.Goal
}

// State returns the initial proof state: every goal open, an empty
// substitution, a fresh name generator and failure reporting on.
func (p *Problem) State() proof.State {
	goals := make([]proof.Goal, len(p.Goals))
	copy(goals, p.Goals)
	return proof.NewState(goals, proof.NewSubstitution(), proof.NewNameGenerator(proof.DefaultPrefix))
}

// ParseTerm parses src in the context of goal g.
func (p *Problem) ParseTerm(src string, g proof.Goal) (expr.Expr, error) {
	return ParseExpr(src, p.Env, g.Hypotheses())
}

// Load reads and parses a problem file.
//
// Outputs:
//   - *Problem: The checked problem.
//   - error: ErrTooLarge, ErrSyntax, ErrUnknownIdentifier,
//     ErrInvalidProblem, kernel type errors or I/O errors.
func Load(ctx context.Context, path string) (*Problem, error) {
	ctx, span := tracer.Start(ctx, "problem.Load",
		trace.WithAttributes(attribute.String("path", path)),
	)
	defer span.End()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > MaxProblemSize {
		err := fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, info.Size(), MaxProblemSize)
		span.RecordError(err)
		span.SetStatus(codes.Error, "file too large")
		return nil, err
	}
	span.SetAttributes(attribute.Int64("file_size", info.Size()))

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	p, err := Parse(ctx, data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return p, nil
}

// Parse parses and checks a problem from YAML.
func Parse(ctx context.Context, data []byte) (*Problem, error) {
	_, span := tracer.Start(ctx, "problem.Parse")
	defer span.End()

	if len(data) > MaxProblemSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, len(data), MaxProblemSize)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unmarshaling YAML: %w", err)
	}
	if len(f.Declarations) > MaxDeclarations {
		return nil, fmt.Errorf("%w: %d declarations (max %d)", ErrTooLarge, len(f.Declarations), MaxDeclarations)
	}
	if len(f.Goals) > MaxGoals {
		return nil, fmt.Errorf("%w: %d goals (max %d)", ErrTooLarge, len(f.Goals), MaxGoals)
	}

	env, err := buildEnv(f.Declarations)
	if err != nil {
		return nil, err
	}
	goals, err := buildGoals(env, f.Goals)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("problem.declarations", env.Len()),
		attribute.Int("problem.goals", len(goals)),
	)
	return &Problem{Env: env, Goals: goals}, nil
}

func buildEnv(decls []DeclarationYAML) (*kernel.Env, error) {
	env, err := kernel.NewEnv()
	if err != nil {
		return nil, err
	}
	for i, d := range decls {
		if d.Name == "" || d.Type == "" {
			return nil, fmt.Errorf("%w: declaration at index %d needs a name and a type", ErrInvalidProblem, i)
		}
		tc := kernel.NewTypeChecker(env, proof.NewNameGenerator("_problem"))
		typ, err := parseType(tc, d.Type, env, nil)
		if err != nil {
			return nil, fmt.Errorf("declaration %s: %w", d.Name, err)
		}
		decl := kernel.Declaration{Name: expr.Name(d.Name), Type: typ}
		if d.Value != "" {
			v, err := parseValue(tc, d.Value, typ, env, nil)
			if err != nil {
				return nil, fmt.Errorf("declaration %s: %w", d.Name, err)
			}
			decl.Value = v
		}
		if env, err = env.Add(decl); err != nil {
			return nil, fmt.Errorf("declaration %s: %w", d.Name, err)
		}
	}
	return env, nil
}

func buildGoals(env *kernel.Env, specs []GoalYAML) ([]proof.Goal, error) {
	goals := make([]proof.Goal, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for i, g := range specs {
		if g.Name == "" || g.Type == "" {
			return nil, fmt.Errorf("%w: goal at index %d needs a name and a type", ErrInvalidProblem, i)
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("%w: duplicate goal %s", ErrInvalidProblem, g.Name)
		}
		seen[g.Name] = true

		gname := expr.Name(g.Name)
		tc := kernel.NewTypeChecker(env, proof.NewNameGenerator(gname.Append("_check")))
		hyps := make([]*expr.Local, 0, len(g.Hypotheses))
		for _, h := range g.Hypotheses {
			if h.Name == "" || h.Type == "" {
				return nil, fmt.Errorf("%w: goal %s has a hypothesis without a name or a type", ErrInvalidProblem, g.Name)
			}
			typ, err := parseType(tc, h.Type, env, hyps)
			if err != nil {
				return nil, fmt.Errorf("goal %s, hypothesis %s: %w", g.Name, h.Name, err)
			}
			l := expr.NewLocal(gname.Append(h.Name), h.Name, typ)
			if h.Value != "" {
				v, err := parseValue(tc, h.Value, typ, env, hyps)
				if err != nil {
					return nil, fmt.Errorf("goal %s, hypothesis %s: %w", g.Name, h.Name, err)
				}
				l = l.WithValue(v)
			}
			hyps = append(hyps, l)
		}
		typ, err := parseType(tc, g.Type, env, hyps)
		if err != nil {
			return nil, fmt.Errorf("goal %s: %w", g.Name, err)
		}
		goals = append(goals, proof.MkGoal(gname, hyps, typ))
	}
	return goals, nil
}

// parseType parses src and checks that it is a type.
func parseType(tc *kernel.TypeChecker, src string, env kernel.Environment, hyps []*expr.Local) (expr.Expr, error) {
	t, err := ParseExpr(src, env, hyps)
	if err != nil {
		return nil, err
	}
	s, err := tc.Infer(t)
	if err != nil {
		return nil, err
	}
	if _, ok := tc.WHNF(s).(*expr.Sort); !ok {
		return nil, fmt.Errorf("%w: %s is not a type", ErrInvalidProblem, t)
	}
	return t, nil
}

// parseValue parses src and checks it against typ.
func parseValue(tc *kernel.TypeChecker, src string, typ expr.Expr, env kernel.Environment, hyps []*expr.Local) (expr.Expr, error) {
	v, err := ParseExpr(src, env, hyps)
	if err != nil {
		return nil, err
	}
	vt, err := tc.Infer(v)
	if err != nil {
		return nil, err
	}
	if !tc.IsDefEq(vt, typ) {
		return nil, fmt.Errorf("%w: value %s has type %s but is declared with type %s", ErrInvalidProblem, v, vt, typ)
	}
	return v, nil
}
