// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store provides the proof journal: a BadgerDB-backed record of
// every goal closed by a tactic, grouped by session.
//
// Key layout:
//
//	goal/<session>/<seq>   JSON Entry, seq zero-padded so keys sort in
//	                       recording order
//	seq/journal            BadgerDB sequence leasing entry numbers
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianProver/services/prover/proof"
)

const (
	goalPrefix   = "goal/"
	sequenceKey  = "seq/journal"
	seqBandwidth = 128
)

// Package-level error definitions.
var (
	ErrClosed       = errors.New("journal is closed")
	ErrPathRequired = errors.New("path is required for a persistent journal")
	ErrInvalidEntry = errors.New("invalid journal entry")
)

// Config holds configuration for a journal.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. If nil they are dropped.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns defaults for a persistent journal at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration for tests and throwaway sessions.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// =============================================================================
// Entry
// =============================================================================

// Entry records one closed goal.
type Entry struct {
	Session   string `json:"session"`
	Seq       uint64 `json:"seq"`
	Tactic    string `json:"tactic"`
	GoalName  string `json:"goal_name"`
	Goal      string `json:"goal"`
	Term      string `json:"term"`
	Remaining int    `json:"remaining"`
	ClosedAt  int64  `json:"closed_at"` // Unix milliseconds
}

// ClosedGoals returns the goals of before that are assigned in after.
func ClosedGoals(before, after proof.State) []proof.Goal {
	var closed []proof.Goal
	for _, g := range before.Goals() {
		if after.Subst().IsAssigned(g.Name()) {
			closed = append(closed, g)
		}
	}
	return closed
}

// EntriesFor builds the entries for the goals a tactic step closed.
func EntriesFor(session, tactic string, before, after proof.State) []Entry {
	closed := ClosedGoals(before, after)
	entries := make([]Entry, len(closed))
	for i, g := range closed {
		entries[i] = Entry{
			Session:   session,
			Tactic:    tactic,
			GoalName:  string(g.Name()),
			Goal:      g.String(),
			Term:      after.Instantiate(g.Term()).String(),
			Remaining: after.NumGoals(),
		}
	}
	return entries
}

// NewSession returns a fresh session id.
func NewSession() string { return uuid.NewString() }

// =============================================================================
// Journal
// =============================================================================

// Journal is the BadgerDB-backed proof journal.
//
// Thread Safety: Safe for concurrent use.
type Journal struct {
	db     *badger.DB
	seq    *badger.Sequence
	gc     *gcRunner
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open opens a journal.
//
// Description:
//
//	Opens the BadgerDB database at cfg.Path (created if missing), or in
//	memory, leases entry numbers from a BadgerDB sequence and starts value
//	log garbage collection when configured.
//
// Outputs:
//   - *Journal: The journal. Caller must call Close.
//   - error: ErrPathRequired or BadgerDB errors.
func Open(cfg Config) (*Journal, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, ErrPathRequired
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create journal directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("lease journal sequence: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{db: db, seq: seq, logger: logger.With(slog.String("component", "journal"))}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		j.gc = newGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, j.logger)
		j.gc.start()
	}
	return j, nil
}

// Record stores entries and returns them with Seq and ClosedAt filled in.
//
// All entries are written in one transaction.
func (j *Journal) Record(ctx context.Context, entries ...Entry) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	out := make([]Entry, len(entries))
	err := j.db.Update(func(txn *badger.Txn) error {
		for i, e := range entries {
			if e.Session == "" || strings.Contains(e.Session, "/") {
				return fmt.Errorf("%w: bad session id %q", ErrInvalidEntry, e.Session)
			}
			n, err := j.seq.Next()
			if err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}
			e.Seq = n
			if e.ClosedAt == 0 {
				e.ClosedAt = now
			}
			data, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("marshal entry: %w", err)
			}
			if err := txn.Set(entryKey(e.Session, e.Seq), data); err != nil {
				return err
			}
			out[i] = e
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	j.logger.Debug("journal entries recorded", slog.Int("count", len(out)))
	return out, nil
}

// List returns the entries of session in recording order.
func (j *Journal) List(ctx context.Context, session string) ([]Entry, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	var out []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(goalPrefix + session + "/")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) }); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			out = append(out, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Sessions returns the ids of every session with at least one entry,
// sorted.
func (j *Journal) Sessions(ctx context.Context) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return nil, ErrClosed
	}

	var out []string
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(goalPrefix)
		last := ""
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := strings.TrimPrefix(string(it.Item().Key()), goalPrefix)
			session, _, _ := strings.Cut(rest, "/")
			if session != last {
				out = append(out, session)
				last = session
			}
		}
		return nil
	})
	return out, err
}

// Close releases the sequence, stops GC and closes the database.
// Safe to call multiple times.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if j.gc != nil {
		j.gc.stop()
	}
	var errs []error
	if err := j.seq.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release sequence: %w", err))
	}
	if err := j.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close badger database: %w", err))
	}
	return errors.Join(errs...)
}

func entryKey(session string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", goalPrefix, session, seq))
}

// =============================================================================
// Value log GC
// =============================================================================

// gcRunner runs periodic value log garbage collection.
type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	stopCh   chan struct{}
	doneCh   chan struct{}
	logger   *slog.Logger
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		logger:   logger,
	}
}

func (r *gcRunner) start() { go r.run() }

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) run() {
	defer close(r.doneCh)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			// ErrNoRewrite means there was nothing to collect.
			if err := r.db.RunValueLogGC(r.ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				r.logger.Warn("journal value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}
