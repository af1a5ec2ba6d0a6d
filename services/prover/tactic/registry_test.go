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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Initialize(Deps{Elaborator: IdentityElaborator{}, Logger: quietIO().Logger}))
	return r
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()

	_, err := r.Build("exact", zeroC)
	assert.ErrorIs(t, err, ErrRegistryClosed)

	assert.ErrorIs(t, r.Initialize(Deps{}), ErrInvalidArgument)

	require.NoError(t, r.Initialize(Deps{Elaborator: IdentityElaborator{}, Logger: quietIO().Logger}))
	assert.ErrorIs(t, r.Initialize(Deps{Elaborator: IdentityElaborator{}}), ErrAlreadyDefined)
	assert.Equal(t, []string{"assumption", "eassumption", "exact", "refine", "rexact"}, r.Names())

	r.Finalize()
	_, err = r.Build("exact", zeroC)
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.Empty(t, r.Names())
	r.Finalize()

	require.NoError(t, r.Initialize(Deps{Elaborator: IdentityElaborator{}, Logger: quietIO().Logger}))
	_, err = r.Build("exact", zeroC)
	assert.NoError(t, err)
}

func TestRegistry_Build(t *testing.T) {
	r := newTestRegistry(t)

	t.Run("term tactic without a term", func(t *testing.T) {
		for _, name := range []string{"exact", "rexact", "refine"} {
			_, err := r.Build(name, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
			assert.Equal(t, "invalid '"+name+"' tactic, invalid argument", err.Error())
		}
	})

	t.Run("assumption with a term", func(t *testing.T) {
		_, err := r.Build("assumption", zeroC)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("unknown tactic", func(t *testing.T) {
		_, err := r.Build("simp", nil)
		assert.ErrorIs(t, err, ErrUnknownTactic)
	})

	t.Run("built tactics run", func(t *testing.T) {
		g := newGoal("g", natT, natT)
		for _, tc := range []struct {
			name string
			term bool
		}{
			{"exact", true}, {"rexact", true}, {"refine", true}, {"assumption", false}, {"eassumption", false},
		} {
			term := zeroC
			if !tc.term {
				term = nil
			}
			tac, err := r.Build(tc.name, term)
			require.NoError(t, err, tc.name)
			out, err := runAll(t, tac, stateOf(g.goal))
			require.NoError(t, err, tc.name)
			require.NotEmpty(t, out, tc.name)
			assert.Equal(t, 0, out[0].NumGoals(), tc.name)

			_, err = runAll(t, tac, stateOf())
			assert.ErrorIs(t, err, ErrNoGoal, tc.name)
		}
	})
}

func TestRegistry_Describe(t *testing.T) {
	r := newTestRegistry(t)

	p, err := r.Describe("refine")
	require.NoError(t, err)
	assert.True(t, p.TakesTerm)
	assert.True(t, p.EnforceType)
	assert.True(t, p.AllowMetavars)
	assert.False(t, p.Conservative)

	p, err = r.Describe("rexact")
	require.NoError(t, err)
	assert.False(t, p.EnforceType)

	p, err = r.Describe("assumption")
	require.NoError(t, err)
	assert.True(t, p.Conservative)
	assert.False(t, p.TakesTerm)

	_, err = r.Describe("nope")
	assert.ErrorIs(t, err, ErrUnknownTactic)

	assert.Len(t, Presets(), 5)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := newTestRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Build("eassumption", nil)
			assert.NoError(t, err)
			assert.Len(t, r.Names(), 5)
		}()
	}
	wg.Wait()
}
