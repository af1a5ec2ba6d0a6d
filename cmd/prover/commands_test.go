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
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianProver/services/prover/tactic"
)

const natBool = `
declarations:
  - {name: Nat, type: Type}
  - {name: Bool, type: Type}
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

func writeProblem(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "natbool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(natBool), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--plain"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()
	assert.False(t, isTerminal(f))
}

func TestTacticsCmd(t *testing.T) {
	out, err := execute(t, "tactics")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, len(tactic.Presets()))
	assert.True(t, strings.HasPrefix(lines[0], "exact\tterm,enforce_type\t"))
	assert.True(t, strings.HasPrefix(lines[2], "refine\tterm,enforce_type,allow_metavars\t"))
	assert.True(t, strings.HasPrefix(lines[4], "eassumption\t-\t"))
}

func TestRunCmd(t *testing.T) {
	problemPath := writeProblem(t)

	t.Run("assumption", func(t *testing.T) {
		out, err := execute(t, "run", "--problem", problemPath, "--tactic", "assumption")
		require.NoError(t, err)
		assert.Equal(t, "solution 1:\nmain := h2\n⊢ Bool\n", out)
	})

	t.Run("refine", func(t *testing.T) {
		out, err := execute(t, "run", "-p", problemPath, "-t", "refine", "--term", "(add h2 _)")
		require.NoError(t, err)
		assert.Contains(t, out, "h1 : Bool, h2 : Nat ⊢ Nat\n⊢ Bool")
	})

	t.Run("reported failure", func(t *testing.T) {
		out, err := execute(t, "run", "-p", problemPath, "-t", "exact", "--term", "h1")
		assert.True(t, errors.Is(err, errTacticFailed))
		assert.Contains(t, out, "ERROR exact:")
		assert.Contains(t, out, "proof state:")
	})

	t.Run("silent failure", func(t *testing.T) {
		out, err := execute(t, "run", "-p", problemPath, "-t", "exact", "--term", "h1", "--silent")
		require.NoError(t, err)
		assert.Equal(t, "no solutions\n", out)
	})

	t.Run("missing flags", func(t *testing.T) {
		_, err := execute(t, "run", "--tactic", "assumption")
		assert.Error(t, err)
	})

	t.Run("unknown tactic", func(t *testing.T) {
		_, err := execute(t, "run", "-p", problemPath, "-t", "intro")
		assert.True(t, errors.Is(err, tactic.ErrUnknownTactic))
	})
}

func TestRunCmd_Journal(t *testing.T) {
	problemPath := writeProblem(t)
	dir := filepath.Join(t.TempDir(), "journal")
	session := "0b6c8a36-3f7e-4a57-9d1e-0c6f1d3c2a10"

	out, err := execute(t, "run", "-p", problemPath, "-t", "assumption", "--journal", dir, "--session", session)
	require.NoError(t, err)
	assert.Contains(t, out, "session "+session)

	out, err = execute(t, "journal", "--dir", dir)
	require.NoError(t, err)
	assert.Equal(t, session+"\n", out)

	out, err = execute(t, "journal", "--dir", dir, "--session", session)
	require.NoError(t, err)
	assert.Equal(t, "main\tassumption\th2\tremaining=1\n", out)
}
