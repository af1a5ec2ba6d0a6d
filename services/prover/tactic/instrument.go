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
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianProver/services/prover/kernel"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
	"github.com/AleutianAI/AleutianProver/services/prover/stream"
)

// ==============================================================================
// Prometheus Metrics
// ==============================================================================

var tracer = otel.Tracer("aleutian.prover.tactic")

var (
	// tacticRuns counts tactic invocations by tactic name
	tacticRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prover_tactic_runs_total",
		Help: "Total tactic invocations by tactic",
	}, []string{"tactic"})

	// tacticResults counts proof states produced by tactic name
	tacticResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prover_tactic_results_total",
		Help: "Total proof states produced by tactic",
	}, []string{"tactic"})

	// tacticFailures counts reported failures by tactic and kind
	tacticFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prover_tactic_failures_total",
		Help: "Total reported tactic failures by tactic and kind",
	}, []string{"tactic", "kind"})

	// tacticPullDuration tracks the latency of one stream pull
	tacticPullDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prover_tactic_pull_seconds",
		Help:    "Duration of one tactic stream pull in seconds",
		Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
	}, []string{"tactic"})
)

// Instrument wraps t with tracing, metrics and debug logging.
//
// Description:
//
//	Each pull of the resulting stream runs inside a span named
//	"tactic.<name>.next" and is timed. Outcomes and reported failures are
//	counted. The stream's elements and their order are unchanged. Once the
//	inner stream is exhausted or has failed, later pulls repeat that end
//	without touching it or recording anything.
func Instrument(name string, t Tactic) Tactic {
	return Func(func(ctx context.Context, env kernel.Environment, ios IOState, s proof.State) stream.Stream[proof.State] {
		tacticRuns.WithLabelValues(name).Inc()
		inner := t.Run(ctx, env, ios, s)
		pulls := 0
		var (
			done    bool
			doneErr error
		)
		logger := ios.logger().With(slog.String("component", "tactic"), slog.String("tactic", name))

		return stream.Func[proof.State](func() (proof.State, bool, error) {
			if done {
				return proof.State{}, false, doneErr
			}
			pulls++
			_, span := tracer.Start(ctx, "tactic."+name+".next",
				trace.WithAttributes(
					attribute.String("tactic.name", name),
					attribute.Int("tactic.pull", pulls),
					attribute.Int("proof.goals", s.NumGoals()),
					attribute.Bool("proof.report_failure", s.ReportFailure()),
				),
			)
			defer span.End()

			start := time.Now()
			r, ok, err := inner.Next()
			tacticPullDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
			if err != nil || !ok {
				done, doneErr = true, err
			}

			switch {
			case err != nil:
				kind := failureKind(err)
				tacticFailures.WithLabelValues(name, kind).Inc()
				span.RecordError(err)
				span.SetStatus(codes.Error, kind)
				logger.Debug("tactic failed", slog.String("kind", kind), slog.String("error", err.Error()))
			case ok:
				tacticResults.WithLabelValues(name).Inc()
				span.SetAttributes(attribute.Int("proof.goals_after", r.NumGoals()))
				span.SetStatus(codes.Ok, "")
				logger.Debug("tactic produced state",
					slog.Int("pull", pulls),
					slog.Int("goals_after", r.NumGoals()),
				)
			default:
				span.SetStatus(codes.Ok, "exhausted")
			}
			return r, ok, err
		})
	})
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, ErrNoGoal):
		return "no_goal"
	case errors.Is(err, ErrUnresolvedMetavars):
		return "unresolved_metavars"
	case errors.Is(err, ErrTypeCheck):
		return "type_check"
	case errors.Is(err, ErrElaboration):
		return "elaboration"
	}
	return "other"
}
