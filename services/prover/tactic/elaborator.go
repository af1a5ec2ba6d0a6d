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
	"context"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
)

// =============================================================================
// Collaborator boundaries
// =============================================================================

// ElabOptions control one elaboration call.
type ElabOptions struct {
	// ReportUnresolved makes the elaborator fail when metavariables it
	// introduced remain unassigned, instead of returning them.
	ReportUnresolved bool

	// Conservative restricts overload and coercion resolution to the
	// canonical choice.
	Conservative bool
}

// Constraint is a unification problem the elaborator could not solve.
type Constraint struct {
	LHS expr.Expr
	RHS expr.Expr
}

func (c Constraint) String() string { return fmt.Sprintf("%s =?= %s", c.LHS, c.RHS) }

// ElabResult is the outcome of a successful elaboration.
//
// A nil Term means the elaborator produced no result without failing.
type ElabResult struct {
	Term     expr.Expr
	State    proof.State
	Residual []Constraint
}

// Elaborator turns a surface term into a fully explicit kernel term.
//
// Description:
//
//	Elaborate works on the focus goal of s. When expected is non-nil the
//	result must have that type. Placeholders the elaborator creates are
//	metavariables applied to the focus goal's hypotheses and are recorded
//	in the returned state's substitution once assigned.
//
//	An error means the term could not be elaborated. Its message is shown
//	to the user verbatim.
type Elaborator interface {
	Elaborate(ctx context.Context, env kernel.Environment, ios IOState, s proof.State, term, expected expr.Expr, opts ElabOptions) (ElabResult, error)
}

// ElaboratorFunc adapts a function to an Elaborator.
type ElaboratorFunc func(ctx context.Context, env kernel.Environment, ios IOState, s proof.State, term, expected expr.Expr, opts ElabOptions) (ElabResult, error)

// Elaborate calls f.
func (f ElaboratorFunc) Elaborate(ctx context.Context, env kernel.Environment, ios IOState, s proof.State, term, expected expr.Expr, opts ElabOptions) (ElabResult, error) {
	return f(ctx, env, ios, s, term, expected, opts)
}

// IdentityElaborator returns its input unchanged.
//
// Hypotheses are already kernel terms, so assumption search elaborates
// them with this and relies on the post-elaboration type check.
type IdentityElaborator struct{}

// Elaborate returns term and s as-is.
func (IdentityElaborator) Elaborate(_ context.Context, _ kernel.Environment, _ IOState, s proof.State, term, _ expr.Expr, _ ElabOptions) (ElabResult, error) {
	return ElabResult{Term: term, State: s}, nil
}

// TypeChecker is the kernel surface the tactics need.
type TypeChecker interface {
	Infer(e expr.Expr) (expr.Expr, error)
	IsDefEq(a, b expr.Expr) bool
}

// TypeCheckerFactory builds a type checker minting names from ngen.
type TypeCheckerFactory func(env kernel.Environment, ngen proof.NameGenerator) TypeChecker

// KernelTypeCheckers builds kernel.TypeChecker instances.
func KernelTypeCheckers(env kernel.Environment, ngen proof.NameGenerator) TypeChecker {
	return kernel.NewTypeChecker(env, ngen)
}

// =============================================================================
// Elaboration against an expected type
// =============================================================================

// Errors from elaborateAgainst.
var (
	errResidual    = errors.New("unsolved constraints after elaboration")
	errTypeOfTerm  = errors.New("type mismatch")
	errInferResult = errors.New("failed to infer the type of the elaborated term")
)

// elaborateAgainst elaborates term for the focus goal of s and checks the
// result against expected.
//
// Description:
//
//	When enforceType is set the expected type is handed to the elaborator
//	and drives elaboration. Otherwise the term is elaborated on its own.
//	In both cases the type of the result is then checked against expected
//	with a fresh type checker, so a term of the wrong type never closes a
//	goal whatever the elaborator does.
//
// Outputs:
//   - expr.Expr: The elaborated term, instantiated with the new
//     substitution. nil when the elaborator returned no result.
//   - proof.State: The state carrying the elaborator's substitution and
//     name generator.
//   - error: Elaborator, constraint or type errors.
func elaborateAgainst(ctx context.Context, env kernel.Environment, ios IOState, el Elaborator, tcs TypeCheckerFactory,
	s proof.State, term, expected expr.Expr, report, enforceType, conservative bool) (expr.Expr, proof.State, error) {

	expected = s.Instantiate(expected)
	var elabExpected expr.Expr
	if enforceType {
		elabExpected = expected
	}

	res, err := el.Elaborate(ctx, env, ios, s, term, elabExpected, ElabOptions{
		ReportUnresolved: report,
		Conservative:     conservative,
	})
	if err != nil {
		return nil, s, err
	}
	if res.Term == nil {
		return nil, s, nil
	}
	if len(res.Residual) > 0 {
		return nil, s, fmt.Errorf("%w: %s", errResidual, res.Residual[0])
	}

	newS := res.State
	e := newS.Instantiate(res.Term)
	expected = newS.Instantiate(expected)

	child, ngen := newS.NameGen().Child()
	newS = newS.WithNameGen(ngen)
	tc := tcs(env, child)
	t, err := tc.Infer(e)
	if err != nil {
		return nil, s, fmt.Errorf("%w: %w", errInferResult, err)
	}
	if !tc.IsDefEq(expected, t) {
		return nil, s, fmt.Errorf("%w: term has type %s but is expected to have type %s", errTypeOfTerm, t, expected)
	}
	return e, newS, nil
}
