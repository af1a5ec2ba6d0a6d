// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProver/services/prover/expr"
	"github.com/AleutianAI/AleutianProver/services/prover/proof"
)

func openInMemory(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestJournal_RecordAndList(t *testing.T) {
	ctx := context.Background()
	j := openInMemory(t)
	a, b := NewSession(), NewSession()

	recorded, err := j.Record(ctx,
		Entry{Session: a, Tactic: "exact", GoalName: "main", Term: "zero"},
		Entry{Session: b, Tactic: "assumption", GoalName: "g", Term: "h2"},
		Entry{Session: a, Tactic: "refine", GoalName: "side", Term: "(succ _)", Remaining: 1},
	)
	require.NoError(t, err)
	require.Len(t, recorded, 3)
	assert.Less(t, recorded[0].Seq, recorded[2].Seq)
	assert.NotZero(t, recorded[0].ClosedAt)

	entries, err := j.List(ctx, a)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "main", entries[0].GoalName)
	assert.Equal(t, "side", entries[1].GoalName)
	assert.Equal(t, 1, entries[1].Remaining)

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, sessions)

	none, err := j.List(ctx, NewSession())
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestJournal_InvalidSession(t *testing.T) {
	j := openInMemory(t)
	_, err := j.Record(context.Background(), Entry{Session: "a/b"})
	assert.True(t, errors.Is(err, ErrInvalidEntry))
	_, err = j.Record(context.Background(), Entry{})
	assert.True(t, errors.Is(err, ErrInvalidEntry))
}

func TestJournal_Closed(t *testing.T) {
	j, err := Open(InMemoryConfig())
	require.NoError(t, err)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	_, err = j.Record(context.Background(), Entry{Session: NewSession()})
	assert.True(t, errors.Is(err, ErrClosed))
	_, err = j.List(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrClosed))
}

func TestJournal_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	session := NewSession()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0
	j, err := Open(cfg)
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{Session: session, Tactic: "exact", GoalName: "main"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(cfg)
	require.NoError(t, err)
	defer j.Close()
	entries, err := j.List(ctx, session)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "main", entries[0].GoalName)

	_, err = Open(Config{})
	assert.True(t, errors.Is(err, ErrPathRequired))
}

func TestEntriesFor(t *testing.T) {
	nat := expr.NewConst("Nat")
	h := expr.NewLocal("main.h", "h", nat)
	main := proof.MkGoal("main", []*expr.Local{h}, nat)
	side := proof.MkGoal("side", nil, nat)
	before := proof.NewState([]proof.Goal{main, side}, proof.NewSubstitution(), proof.NewNameGenerator("t"))

	subst, err := before.Subst().AssignGoal(main, h)
	require.NoError(t, err)
	after := before.WithGoals(before.Tail()).WithSubst(subst)

	session := NewSession()
	_, err = uuid.Parse(session)
	require.NoError(t, err)

	entries := EntriesFor(session, "assumption", before, after)
	require.Len(t, entries, 1)
	assert.Equal(t, "main", entries[0].GoalName)
	assert.Equal(t, "h : Nat ⊢ Nat", entries[0].Goal)
	assert.Equal(t, "h", entries[0].Term)
	assert.Equal(t, 1, entries[0].Remaining)
	assert.Equal(t, "assumption", entries[0].Tactic)
}
