// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package server exposes the prover over HTTP.
//
// Endpoints:
//
//	POST /v1/prover/run       run one tactic against a problem
//	GET  /v1/prover/tactics   list the registered tactics
//	GET  /v1/prover/health    liveness
//	GET  /metrics             Prometheus metrics
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianProver/services/prover/problem"
	"github.com/AleutianAI/AleutianProver/services/prover/runner"
	"github.com/AleutianAI/AleutianProver/services/prover/tactic"
	"github.com/AleutianAI/AleutianProver/services/prover/telemetry"
)

// =============================================================================
// Request / response types
// =============================================================================

// RunRequest is the body of POST /v1/prover/run.
type RunRequest struct {
	// Problem is the problem document in YAML.
	Problem string `json:"problem" binding:"required,max=1048576"`

	// Tactic is one of the registered tactic names.
	Tactic string `json:"tactic" binding:"required"`

	// Term is the tactic's argument, if it takes one.
	Term string `json:"term,omitempty" binding:"max=65536"`

	// MaxSolutions bounds the returned states. 0 uses the server default.
	MaxSolutions int `json:"max_solutions,omitempty" binding:"gte=0,lte=1000"`

	// ReportFailure overrides the server's failure reporting default.
	ReportFailure *bool `json:"report_failure,omitempty"`

	// SessionID groups journal entries across requests.
	SessionID string `json:"session_id,omitempty" binding:"omitempty,uuid"`
}

// RunResponse is the body returned by POST /v1/prover/run.
type RunResponse struct {
	SessionID  string            `json:"session_id"`
	Tactic     string            `json:"tactic"`
	Solutions  []runner.Solution `json:"solutions"`
	Diagnostic *DiagnosticJSON   `json:"diagnostic,omitempty"`
}

// DiagnosticJSON is a tactic failure.
type DiagnosticJSON struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

// TacticsResponse is the body of GET /v1/prover/tactics.
type TacticsResponse struct {
	Tactics []tactic.Preset `json:"tactics"`
}

// ErrorResponse is returned for request errors.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code.
	Code string `json:"code,omitempty"`

	// Details provides additional error context.
	Details string `json:"details,omitempty"`
}

// =============================================================================
// Server
// =============================================================================

// Options configures a Server.
type Options struct {
	// Service names the otelgin spans.
	Service string

	// RateLimit is the sustained rate of run requests per second.
	// 0 disables limiting.
	RateLimit float64

	// Burst is the number of run requests allowed at once. Defaults to 1
	// when RateLimit is set.
	Burst int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server routes HTTP requests to a Runner.
type Server struct {
	runner *runner.Runner
	logger *slog.Logger
	router *gin.Engine
}

// New builds the router.
func New(r *runner.Runner, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Service == "" {
		opts.Service = "aleutian-prover"
	}
	s := &Server{runner: r, logger: logger.With(slog.String("component", "server"))}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(opts.Service))

	v1 := router.Group("/v1/prover")
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		v1.POST("/run", RateLimit(rate.NewLimiter(rate.Limit(opts.RateLimit), burst)), s.HandleRun)
	} else {
		v1.POST("/run", s.HandleRun)
	}
	v1.GET("/tactics", s.HandleTactics)
	v1.GET("/health", HandleHealth)

	metrics := telemetry.MetricsHandler()
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	router.GET("/metrics", gin.WrapH(metrics))

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("prover server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("prover server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// RateLimit rejects requests beyond limiter's rate with 429.
func RateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "Too many requests",
				Code:  "RATE_LIMITED",
			})
			return
		}
		c.Next()
	}
}

// =============================================================================
// Handlers
// =============================================================================

// HandleHealth reports liveness.
func HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleTactics lists the registered tactics.
func (s *Server) HandleTactics(c *gin.Context) {
	reg := s.runner.Registry()
	names := reg.Names()
	out := make([]tactic.Preset, 0, len(names))
	for _, n := range names {
		p, err := reg.Describe(n)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	c.JSON(http.StatusOK, TacticsResponse{Tactics: out})
}

// HandleRun runs one tactic.
//
// Description:
//
//	Parses the problem, runs the tactic and returns the resulting states.
//	A tactic failure is a successful response carrying a diagnostic; only
//	malformed requests are client errors.
func (s *Server) HandleRun(c *gin.Context) {
	logger := telemetry.LoggerWithTrace(c.Request.Context(), s.logger)

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}

	p, err := problem.Parse(c.Request.Context(), []byte(req.Problem))
	if err != nil {
		logger.Warn("Invalid problem", "error", err)
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "Invalid problem",
			Code:    "INVALID_PROBLEM",
			Details: err.Error(),
		})
		return
	}

	res, err := s.runner.Run(c.Request.Context(), runner.Request{
		Problem:       p,
		Tactic:        req.Tactic,
		Term:          req.Term,
		MaxSolutions:  req.MaxSolutions,
		ReportFailure: req.ReportFailure,
		SessionID:     req.SessionID,
	})
	if err != nil {
		status, code := classify(err)
		logger.Warn("Tactic run rejected", "error", err, "code", code)
		c.JSON(status, ErrorResponse{Error: err.Error(), Code: code})
		return
	}

	resp := RunResponse{SessionID: res.SessionID, Tactic: res.Tactic, Solutions: res.Solutions}
	if resp.Solutions == nil {
		resp.Solutions = []runner.Solution{}
	}
	if d := res.Diagnostic; d != nil {
		resp.Diagnostic = &DiagnosticJSON{Kind: d.Kind.Error(), Message: d.Error(), Detail: d.Format()}
	}
	c.JSON(http.StatusOK, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, tactic.ErrUnknownTactic):
		return http.StatusNotFound, "UNKNOWN_TACTIC"
	case errors.Is(err, tactic.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, problem.ErrSyntax), errors.Is(err, problem.ErrUnknownIdentifier):
		return http.StatusBadRequest, "INVALID_TERM"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "CANCELED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
