// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProver/services/prover/elab"
	"github.com/AleutianAI/AleutianProver/services/prover/problem"
	"github.com/AleutianAI/AleutianProver/services/prover/store"
	"github.com/AleutianAI/AleutianProver/services/prover/tactic"
)

const natBool = `
declarations:
  - {name: Nat, type: Type}
  - {name: Bool, type: Type}
  - {name: zero, type: Nat}
  - {name: add, type: "(-> Nat Nat Nat)"}
goals:
  - name: main
    hypotheses:
      - {name: h1, type: Bool}
      - {name: h2, type: Nat}
    type: Nat
  - name: side
    type: Bool
`

const twoNats = `
declarations:
  - {name: Nat, type: Type}
goals:
  - name: g
    hypotheses:
      - {name: a, type: Nat}
      - {name: b, type: Nat}
    type: Nat
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	cfg.Logger = quietLogger()
	r, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(r.Close)
	return r
}

func load(t *testing.T, src string) *problem.Problem {
	t.Helper()
	p, err := problem.Parse(context.Background(), []byte(src))
	require.NoError(t, err)
	return p
}

func TestRun_Assumption(t *testing.T) {
	r := newRunner(t, Config{ReportFailure: true})
	res, err := r.Run(context.Background(), Request{Problem: load(t, natBool), Tactic: "assumption"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SessionID)
	assert.Nil(t, res.Diagnostic)
	require.Len(t, res.Solutions, 1)
	sol := res.Solutions[0]
	assert.Equal(t, []string{"⊢ Bool"}, sol.Goals)
	assert.Equal(t, []Assignment{{Goal: "main", Term: "h2"}}, sol.Assignments)
}

func TestRun_Refine(t *testing.T) {
	r := newRunner(t, Config{ReportFailure: true})
	res, err := r.Run(context.Background(), Request{Problem: load(t, natBool), Tactic: "refine", Term: "(add _ h2)"})
	require.NoError(t, err)

	require.Len(t, res.Solutions, 1)
	sol := res.Solutions[0]
	require.Len(t, sol.Goals, 2)
	assert.Equal(t, "h1 : Bool, h2 : Nat ⊢ Nat", sol.Goals[0])
	assert.Equal(t, "⊢ Bool", sol.Goals[1])
	require.Len(t, sol.Assignments, 1)
	assert.Equal(t, "main", sol.Assignments[0].Goal)
}

func TestRun_NamedHoleReusingGoal(t *testing.T) {
	p := load(t, natBool)
	r := newRunner(t, Config{ReportFailure: true})

	for _, term := range []string{"?main", "?side", "(add ?side h2)"} {
		t.Run(term, func(t *testing.T) {
			res, err := r.Run(context.Background(), Request{Problem: p, Tactic: "refine", Term: term})
			require.NoError(t, err)
			assert.Empty(t, res.Solutions)
			require.NotNil(t, res.Diagnostic)
			assert.True(t, errors.Is(res.Diagnostic, tactic.ErrElaboration))
			assert.True(t, errors.Is(res.Diagnostic, elab.ErrNameInUse), "got %v", res.Diagnostic)
		})
	}

	t.Run("fresh name", func(t *testing.T) {
		res, err := r.Run(context.Background(), Request{Problem: p, Tactic: "refine", Term: "(add ?lhs h2)"})
		require.NoError(t, err)
		require.Nil(t, res.Diagnostic)
		require.Len(t, res.Solutions, 1)
		assert.Equal(t, []string{"h1 : Bool, h2 : Nat ⊢ Nat", "⊢ Bool"}, res.Solutions[0].Goals)
	})
}

func TestRun_Failures(t *testing.T) {
	p := load(t, natBool)

	t.Run("reported", func(t *testing.T) {
		r := newRunner(t, Config{ReportFailure: true})
		res, err := r.Run(context.Background(), Request{Problem: p, Tactic: "exact", Term: "h1"})
		require.NoError(t, err)
		assert.Empty(t, res.Solutions)
		require.NotNil(t, res.Diagnostic)
		assert.True(t, errors.Is(res.Diagnostic, tactic.ErrElaboration))
		assert.Equal(t, "exact", res.Diagnostic.Tactic)
	})

	t.Run("silent", func(t *testing.T) {
		r := newRunner(t, Config{ReportFailure: true})
		off := false
		res, err := r.Run(context.Background(), Request{Problem: p, Tactic: "exact", Term: "h1", ReportFailure: &off})
		require.NoError(t, err)
		assert.Empty(t, res.Solutions)
		assert.Nil(t, res.Diagnostic)
	})

	t.Run("no goals", func(t *testing.T) {
		r := newRunner(t, Config{ReportFailure: true})
		empty := load(t, "declarations: [{name: Nat, type: Type}, {name: zero, type: Nat}]")
		res, err := r.Run(context.Background(), Request{Problem: empty, Tactic: "exact", Term: "zero"})
		require.NoError(t, err)
		require.NotNil(t, res.Diagnostic)
		assert.True(t, errors.Is(res.Diagnostic, tactic.ErrNoGoal))
	})
}

func TestRun_RequestErrors(t *testing.T) {
	r := newRunner(t, Config{})
	p := load(t, natBool)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown tactic", Request{Problem: p, Tactic: "intro"}, tactic.ErrUnknownTactic},
		{"missing term", Request{Problem: p, Tactic: "exact"}, tactic.ErrInvalidArgument},
		{"unexpected term", Request{Problem: p, Tactic: "assumption", Term: "h2"}, tactic.ErrInvalidArgument},
		{"syntax", Request{Problem: p, Tactic: "exact", Term: "(add"}, problem.ErrSyntax},
		{"unknown identifier", Request{Problem: p, Tactic: "exact", Term: "nope"}, problem.ErrUnknownIdentifier},
		{"no problem", Request{Tactic: "exact", Term: "zero"}, tactic.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Run(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestRun_MaxSolutions(t *testing.T) {
	r := newRunner(t, Config{MaxSolutions: 1})
	p := load(t, twoNats)

	res, err := r.Run(context.Background(), Request{Problem: p, Tactic: "eassumption"})
	require.NoError(t, err)
	require.Len(t, res.Solutions, 1)
	assert.Equal(t, "b", res.Solutions[0].Assignments[0].Term)

	res, err = r.Run(context.Background(), Request{Problem: p, Tactic: "eassumption", MaxSolutions: 5})
	require.NoError(t, err)
	require.Len(t, res.Solutions, 2)
	assert.Equal(t, "a", res.Solutions[1].Assignments[0].Term)
}

func TestRun_Journal(t *testing.T) {
	j, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	defer j.Close()

	r := newRunner(t, Config{Journal: j})
	session := store.NewSession()
	res, err := r.Run(context.Background(), Request{
		Problem:   load(t, twoNats),
		Tactic:    "eassumption",
		SessionID: session,
	})
	require.NoError(t, err)
	assert.Equal(t, session, res.SessionID)
	require.Len(t, res.Solutions, 2)

	entries, err := j.List(context.Background(), session)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b", entries[0].Term)
	assert.Equal(t, "a", entries[1].Term)
	assert.Equal(t, "eassumption", entries[0].Tactic)
	assert.Equal(t, 0, entries[0].Remaining)
}
