// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianProver/pkg/logging"
	"github.com/AleutianAI/AleutianProver/pkg/ux"
	"github.com/AleutianAI/AleutianProver/services/prover/config"
	"github.com/AleutianAI/AleutianProver/services/prover/problem"
	"github.com/AleutianAI/AleutianProver/services/prover/runner"
	"github.com/AleutianAI/AleutianProver/services/prover/server"
	"github.com/AleutianAI/AleutianProver/services/prover/store"
	"github.com/AleutianAI/AleutianProver/services/prover/tactic"
	"github.com/AleutianAI/AleutianProver/services/prover/telemetry"
)

// errTacticFailed makes the process exit non-zero after a reported
// diagnostic has been printed.
var errTacticFailed = errors.New("tactic failed")

// =============================================================================
// COMMAND FLAGS
// =============================================================================

type rootFlags struct {
	configPath string
	plain      bool
}

type runFlags struct {
	problemPath  string
	tacticName   string
	term         string
	maxSolutions int
	journalDir   string
	session      string
	silent       bool
}

type journalFlags struct {
	dir     string
	session string
}

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

func newRootCmd() *cobra.Command {
	rf := &rootFlags{}
	root := &cobra.Command{
		Use:   "prover",
		Short: "Run closing tactics and assumption search against proof problems",
		Long: `prover applies the exact, rexact, refine, assumption and eassumption
tactics to the goals of a problem file and prints the resulting proof states.

Problem files are YAML documents listing declarations and goals; terms use an
s-expression syntax, for example (fun (x Nat) (add x _)).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&rf.configPath, "config", "", "config file overlaying the embedded defaults")
	root.PersistentFlags().BoolVar(&rf.plain, "plain", false, "unstyled, tab separated output for scripts (default when stdout is not a terminal)")

	root.AddCommand(newRunCmd(rf), newTacticsCmd(rf), newServeCmd(rf), newJournalCmd(rf))
	return root
}

func newRunCmd(rf *rootFlags) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one tactic against the goals of a problem",
		Long: `Run one tactic against the first goal of a problem and print every
resulting proof state, up to --max.

Examples:
  prover run --problem natbool.yaml --tactic assumption
  prover run --problem natbool.yaml --tactic refine --term "(add _ h2)"
  prover run --problem natbool.yaml --tactic exact --term h1 --silent`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTactic(cmd, rf, f)
		},
	}
	cmd.Flags().StringVarP(&f.problemPath, "problem", "p", "", "problem file (YAML)")
	cmd.Flags().StringVarP(&f.tacticName, "tactic", "t", "", "tactic name")
	cmd.Flags().StringVar(&f.term, "term", "", "tactic argument in s-expression syntax")
	cmd.Flags().IntVar(&f.maxSolutions, "max", 0, "maximum number of proof states to print (default from config)")
	cmd.Flags().StringVar(&f.journalDir, "journal", "", "record closed goals in the journal at this directory")
	cmd.Flags().StringVar(&f.session, "session", "", "journal session id (default: a new one)")
	cmd.Flags().BoolVar(&f.silent, "silent", false, "turn failure reporting off")
	_ = cmd.MarkFlagRequired("problem")
	_ = cmd.MarkFlagRequired("tactic")
	return cmd
}

func newTacticsCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tactics",
		Short: "List the registered tactics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := newPrinter(cmd, rf)
			p.Title("Tactics")
			for _, preset := range tactic.Presets() {
				p.Row(preset.Name, presetFlags(preset), preset.Description)
			}
			return nil
		},
	}
}

func newServeCmd(rf *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the prover over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(rf.configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}

func newJournalCmd(rf *rootFlags) *cobra.Command {
	f := &journalFlags{}
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List journal sessions, or the goals closed in one session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return showJournal(cmd, rf, f)
		},
	}
	cmd.Flags().StringVar(&f.dir, "dir", "", "journal directory (default from config)")
	cmd.Flags().StringVar(&f.session, "session", "", "session id to list")
	return cmd
}

// =============================================================================
// COMMAND IMPLEMENTATIONS
// =============================================================================

func runTactic(cmd *cobra.Command, rf *rootFlags, f *runFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(rf.configPath)
	if err != nil {
		return err
	}
	logger := logging.New(quietConsole(cfg.LoggingConfig("prover")))
	defer logger.Close()

	prob, err := problem.Load(ctx, f.problemPath)
	if err != nil {
		return err
	}

	var journal *store.Journal
	if f.journalDir != "" {
		jc := store.DefaultConfig(f.journalDir)
		jc.Logger = logger.Slog()
		if journal, err = store.Open(jc); err != nil {
			return err
		}
		defer journal.Close()
	}

	r, err := runner.New(runner.Config{
		MaxSolutions:  cfg.Search.MaxSolutions,
		ReportFailure: cfg.Search.ReportFailure,
		Journal:       journal,
		Logger:        logger.Slog(),
	})
	if err != nil {
		return err
	}
	defer r.Close()

	req := runner.Request{
		Problem:      prob,
		Tactic:       f.tacticName,
		Term:         f.term,
		MaxSolutions: f.maxSolutions,
		SessionID:    f.session,
	}
	if f.silent {
		off := false
		req.ReportFailure = &off
	}
	res, err := r.Run(ctx, req)
	if err != nil {
		return err
	}

	p := newPrinter(cmd, rf)
	printResult(p, res, journal != nil)
	if res.Diagnostic != nil {
		return errTacticFailed
	}
	return nil
}

func printResult(p *ux.Printer, res *runner.Result, journaled bool) {
	p.Title(fmt.Sprintf("%s: %d solution(s)", res.Tactic, len(res.Solutions)))
	for i, sol := range res.Solutions {
		var body strings.Builder
		for _, a := range sol.Assignments {
			fmt.Fprintf(&body, "%s := %s\n", a.Goal, a.Term)
		}
		if len(sol.Goals) == 0 {
			body.WriteString("no goals")
		}
		for j, g := range sol.Goals {
			if j > 0 {
				body.WriteString("\n")
			}
			if p.Plain() {
				body.WriteString(g)
			} else {
				body.WriteString(ux.Goal(g))
			}
		}
		p.Box(fmt.Sprintf("solution %d", i+1), strings.TrimRight(body.String(), "\n"))
	}
	if res.Diagnostic != nil {
		p.ErrorBox(res.Tactic, res.Diagnostic.Format())
		return
	}
	if len(res.Solutions) == 0 {
		p.Info("no solutions")
	}
	if journaled {
		p.Info("session " + res.SessionID)
	}
}

func showJournal(cmd *cobra.Command, rf *rootFlags, f *journalFlags) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	jc := store.DefaultConfig(f.dir)
	if f.dir == "" {
		cfg, err := config.Load(rf.configPath)
		if err != nil {
			return err
		}
		jc = cfg.StoreConfig()
	}
	jc.GCInterval = 0
	j, err := store.Open(jc)
	if err != nil {
		return err
	}
	defer j.Close()

	p := newPrinter(cmd, rf)
	if f.session == "" {
		sessions, err := j.Sessions(ctx)
		if err != nil {
			return err
		}
		p.Title("Sessions")
		for _, s := range sessions {
			p.Row(s)
		}
		return nil
	}

	entries, err := j.List(ctx, f.session)
	if err != nil {
		return err
	}
	p.Title("Session " + f.session)
	for _, e := range entries {
		p.Row(e.GoalName, e.Tactic, e.Term, fmt.Sprintf("remaining=%d", e.Remaining))
	}
	return nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.LoggingConfig("prover-server"))
	defer logger.Close()

	shutdown, err := telemetry.Init(ctx, cfg.TelemetryConfig())
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdown(context.Background())

	var journal *store.Journal
	if cfg.Journal.Enabled {
		jc := cfg.StoreConfig()
		jc.Logger = logger.Slog()
		if journal, err = store.Open(jc); err != nil {
			return err
		}
		defer journal.Close()
	}

	r, err := runner.New(runner.Config{
		MaxSolutions:  cfg.Search.MaxSolutions,
		ReportFailure: cfg.Search.ReportFailure,
		Journal:       journal,
		Instrument:    true,
		Logger:        logger.Slog(),
	})
	if err != nil {
		return err
	}
	defer r.Close()

	srv := server.New(r, server.Options{
		Service:   cfg.Telemetry.ServiceName,
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
		Logger:    logger.Slog(),
	})
	return srv.ListenAndServe(ctx, cfg.Server.Addr)
}

// =============================================================================
// HELPERS
// =============================================================================

func newPrinter(cmd *cobra.Command, rf *rootFlags) *ux.Printer {
	w := cmd.OutOrStdout()
	return ux.NewPrinter(w, rf.plain || !isTerminal(w))
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// quietConsole keeps CLI runs free of info logs unless debug is asked for.
func quietConsole(c logging.Config) logging.Config {
	if c.Level < logging.LevelWarn && c.Level != logging.LevelDebug {
		c.Level = logging.LevelWarn
	}
	return c
}

func presetFlags(p tactic.Preset) string {
	var flags []string
	if p.TakesTerm {
		flags = append(flags, "term")
	}
	if p.EnforceType {
		flags = append(flags, "enforce_type")
	}
	if p.AllowMetavars {
		flags = append(flags, "allow_metavars")
	}
	if p.Conservative {
		flags = append(flags, "conservative")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}
