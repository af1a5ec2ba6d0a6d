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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
)

// Failure kinds. Every *Diagnostic wraps exactly one of them.
var (
	ErrNoGoal             = errors.New("no goal")
	ErrElaboration        = errors.New("elaboration failed")
	ErrUnresolvedMetavars = errors.New("unresolved metavariables")
	ErrTypeCheck          = errors.New("type check failed")
)

// Registry errors.
var (
	ErrUnknownTactic   = errors.New("unknown tactic")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrRegistryClosed  = errors.New("tactic registry is not initialized")
	ErrAlreadyDefined  = errors.New("tactic already registered")
)

// Diagnostic is a reported tactic failure tied to the focus goal.
//
// Description:
//
//	Kind is one of the failure sentinels above. Err, when set, is the
//	underlying cause (an elaborator or kernel error) whose message is
//	shown to the user verbatim. errors.Is matches both Kind and anything
//	in Err's chain.
type Diagnostic struct {
	Kind   error
	Tactic string
	Msg    string
	Goal   *proof.Goal
	Term   expr.Expr
	Err    error
}

func (d *Diagnostic) Error() string {
	if d == nil {
		return ""
	}
	msg := d.Msg
	if msg == "" {
		msg = d.Kind.Error()
	}
	if d.Err != nil {
		msg += ": " + d.Err.Error()
	}
	return msg
}

// Unwrap exposes the kind and the cause.
func (d *Diagnostic) Unwrap() []error {
	if d.Err == nil {
		return []error{d.Kind}
	}
	return []error{d.Kind, d.Err}
}

// Format renders the diagnostic with the offending term and the goal.
func (d *Diagnostic) Format() string {
	var sb strings.Builder
	sb.WriteString(d.Error())
	if d.Term != nil {
		sb.WriteString("\n  ")
		sb.WriteString(d.Term.String())
	}
	if d.Goal != nil {
		sb.WriteString("\nproof state:\n  ")
		sb.WriteString(d.Goal.String())
	}
	return sb.String()
}

// WriteDiagnostic renders err to the io state's diagnostic sink.
func WriteDiagnostic(ios IOState, err error) {
	if ios.Diagnostics == nil || err == nil {
		return
	}
	var d *Diagnostic
	if errors.As(err, &d) {
		_, _ = io.WriteString(ios.Diagnostics, d.Format()+"\n")
		return
	}
	_, _ = io.WriteString(ios.Diagnostics, err.Error()+"\n")
}

// -----------------------------------------------------------------------------
// Constructors
// -----------------------------------------------------------------------------

func noGoal(tactic string) *Diagnostic {
	return &Diagnostic{
		Kind:   ErrNoGoal,
		Tactic: tactic,
		Msg:    fmt.Sprintf("invalid '%s' tactic, there are no goals to be proved", tactic),
	}
}

func elaborationFailure(tactic string, g proof.Goal, term expr.Expr, err error) *Diagnostic {
	return &Diagnostic{Kind: ErrElaboration, Tactic: tactic, Goal: &g, Term: term, Err: err}
}

func unresolvedMetavars(tactic string, g proof.Goal, term expr.Expr) *Diagnostic {
	return &Diagnostic{
		Kind:   ErrUnresolvedMetavars,
		Tactic: tactic,
		Msg:    fmt.Sprintf("invalid '%s' tactic, term still contains metavariables after elaboration", tactic),
		Goal:   &g,
		Term:   term,
	}
}

func typeCheckFailure(tactic string, g proof.Goal, term expr.Expr, err error) *Diagnostic {
	return &Diagnostic{
		Kind:   ErrTypeCheck,
		Tactic: tactic,
		Msg:    fmt.Sprintf("invalid '%s' tactic, failed to infer the type of a new goal", tactic),
		Goal:   &g,
		Term:   term,
		Err:    err,
	}
}

// fail turns d into the outcome the state asked for: a reported error when
// s reports failures, an empty outcome otherwise.
func fail(ios IOState, s proof.State, d *Diagnostic) (proof.State, bool, error) {
	if s.ReportFailure() {
		return proof.State{}, false, d
	}
	ios.logger().Debug("tactic failure suppressed",
		slog.String("tactic", d.Tactic),
		slog.String("kind", d.Kind.Error()),
		slog.String("reason", d.Error()),
	)
	return proof.State{}, false, nil
}
