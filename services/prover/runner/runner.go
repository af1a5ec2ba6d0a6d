// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner runs one tactic against a loaded problem: it parses the
// tactic's term in the context of the focus goal, pulls a bounded number of
// proof states from the tactic and records closed goals in the journal.
//
// The CLI and the HTTP server both drive tactics through a Runner.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianProver/services/prover/elab"
	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/problem"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/store"
	"github.com/AleutianAI/AleutianProver/services/prover/stream"
	"github.com/AleutianAI/AleutianProver/services/prover/tactic"
)

// DefaultMaxSolutions bounds the states pulled when neither the request nor
// the runner sets a limit.
const DefaultMaxSolutions = 16

var tracer = otel.Tracer("aleutian.prover.runner")

// Config configures a Runner.
type Config struct {
	// MaxSolutions is the default number of states pulled per run.
	MaxSolutions int

	// ReportFailure is the default failure reporting flag.
	ReportFailure bool

	// Journal records closed goals. May be nil.
	Journal *store.Journal

	// Instrument wraps tactics with spans and Prometheus metrics.
	Instrument bool

	// Logger for run events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Request is one tactic invocation.
type Request struct {
	Problem *problem.Problem
	Tactic  string

	// Term is the tactic's argument in s-expression syntax. Empty for
	// assumption and eassumption.
	Term string

	// MaxSolutions overrides Config.MaxSolutions when positive.
	MaxSolutions int

	// ReportFailure overrides Config.ReportFailure when set.
	ReportFailure *bool

	// SessionID groups journal entries. A fresh id is used when empty.
	SessionID string
}

// Assignment is a goal closed by a solution.
type Assignment struct {
	Goal string `json:"goal"`
	Term string `json:"term"`
}

// Solution is one resulting proof state.
type Solution struct {
	State       proof.State  `json:"-"`
	Goals       []string     `json:"goals"`
	Assignments []Assignment `json:"assignments"`
}

// Result is the outcome of a run.
type Result struct {
	SessionID string
	Tactic    string
	Solutions []Solution

	// Diagnostic is the reported failure that ended the run, if any.
	// Solutions pulled before it are kept.
	Diagnostic *tactic.Diagnostic
}

// Runner drives tactics built from its own registry.
//
// Thread Safety: Safe for concurrent use; every run owns its proof states.
type Runner struct {
	registry *tactic.Registry
	cfg      Config
	logger   *slog.Logger
}

// New builds a Runner and initializes its tactic registry with the
// elaborator and the kernel type checker.
func New(cfg Config) (*Runner, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxSolutions <= 0 {
		cfg.MaxSolutions = DefaultMaxSolutions
	}
	logger := cfg.Logger.With(slog.String("component", "runner"))

	reg := tactic.NewRegistry()
	if err := reg.Initialize(tactic.Deps{
		Elaborator: elab.New(cfg.Logger),
		Instrument: cfg.Instrument,
		Logger:     cfg.Logger,
	}); err != nil {
		return nil, fmt.Errorf("initialize tactics: %w", err)
	}
	return &Runner{registry: reg, cfg: cfg, logger: logger}, nil
}

// Registry returns the runner's tactic registry.
func (r *Runner) Registry() *tactic.Registry { return r.registry }

// Close finalizes the registry.
func (r *Runner) Close() { r.registry.Finalize() }

// Run executes req.
//
// Description:
//
//	Parses req.Term against the focus goal's hypotheses (or no hypotheses
//	when there is no goal), builds the tactic and pulls up to MaxSolutions
//	states. A reported tactic failure ends the run and is returned in
//	Result.Diagnostic. Each solution's closed goals are journaled when a
//	journal is configured.
//
// Outputs:
//   - *Result: The run outcome.
//   - error: Term syntax errors, tactic.ErrUnknownTactic, a *tactic.Diagnostic
//     of kind tactic.ErrInvalidArgument, journal errors or ctx errors.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracer.Start(ctx, "runner.Run",
		trace.WithAttributes(attribute.String("tactic", req.Tactic)),
	)
	defer span.End()
	start := time.Now()

	if req.Problem == nil {
		return nil, fmt.Errorf("%w: no problem", tactic.ErrInvalidArgument)
	}
	report := r.cfg.ReportFailure
	if req.ReportFailure != nil {
		report = *req.ReportFailure
	}
	limit := r.cfg.MaxSolutions
	if req.MaxSolutions > 0 {
		limit = req.MaxSolutions
	}
	session := req.SessionID
	if session == "" {
		session = store.NewSession()
	}

	s := req.Problem.State().WithReportFailure(report)
	term, err := r.parseTerm(req, s)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	t, err := r.registry.Build(req.Tactic, term)
	if err != nil {
		recordSpanError(span, err)
		return nil, err
	}

	ios := tactic.IOState{Out: io.Discard, Diagnostics: io.Discard, Logger: r.logger}
	states, err := stream.Collect(t.Run(ctx, req.Problem.Env, ios, s), limit)
	res := &Result{SessionID: session, Tactic: req.Tactic}
	if err != nil {
		var d *tactic.Diagnostic
		if !errors.As(err, &d) {
			recordSpanError(span, err)
			return nil, err
		}
		res.Diagnostic = d
		span.SetAttributes(attribute.String("diagnostic", d.Error()))
	}

	for _, st := range states {
		entries := store.EntriesFor(session, req.Tactic, s, st)
		sol := Solution{State: st, Goals: goalStrings(st)}
		for _, e := range entries {
			sol.Assignments = append(sol.Assignments, Assignment{Goal: e.GoalName, Term: e.Term})
		}
		if r.cfg.Journal != nil && len(entries) > 0 {
			if _, err := r.cfg.Journal.Record(ctx, entries...); err != nil {
				recordSpanError(span, err)
				return nil, fmt.Errorf("journal: %w", err)
			}
		}
		res.Solutions = append(res.Solutions, sol)
	}

	span.SetAttributes(attribute.Int("solutions", len(res.Solutions)))
	r.logger.Info("tactic run",
		slog.String("tactic", req.Tactic),
		slog.String("session_id", session),
		slog.Int("solutions", len(res.Solutions)),
		slog.Bool("failed", res.Diagnostic != nil),
		slog.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (r *Runner) parseTerm(req Request, s proof.State) (expr.Expr, error) {
	if req.Term == "" {
		return nil, nil
	}
	if g, ok := s.Focus(); ok {
		return req.Problem.ParseTerm(req.Term, g)
	}
	return problem.ParseExpr(req.Term, req.Problem.Env, nil)
}

func goalStrings(s proof.State) []string {
	goals := s.Goals()
	out := make([]string, len(goals))
	for i, g := range goals {
		out[i] = g.String()
	}
	return out
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
