// Copyright 2026 The Palisade Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSuite(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return path
}

func TestLoadTestSuite(t *testing.T) {
	path := writeSuite(t, `
policy: palisade.yaml
cases:
  - name: allows npm
    command: npm install
    want: allow
  - name: blocks rm
    command: rm -rf /
    want: block
    reason_contains: allowlist
`)

	suite, err := LoadTestSuite(path)
	require.NoError(t, err)
	assert.Len(t, suite.Cases, 2)
	// Relative policy paths resolve against the suite file.
	assert.Equal(t, filepath.Join(filepath.Dir(path), "palisade.yaml"), suite.Policy)
}

func TestLoadTestSuiteEmpty(t *testing.T) {
	path := writeSuite(t, `cases: []`)
	_, err := LoadTestSuite(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cases")
}

func TestLoadTestSuiteBadVerdict(t *testing.T) {
	path := writeSuite(t, `
cases:
  - name: bad
    command: ls
    want: maybe
`)
	_, err := LoadTestSuite(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown verdict")
}

func TestRunTests(t *testing.T) {
	eng := setupEngine(t)

	suite := &TestSuite{Cases: []TestCase{
		{Name: "allows npm", Command: "npm install", Want: VerdictAllow},
		{Name: "blocks rm", Command: "rm -rf /", Want: VerdictBlock, ReasonContains: "allowlist"},
		{Name: "wrong expectation", Command: "ls", Want: VerdictBlock},
		{Name: "wrong reason", Command: "rm -rf /", Want: VerdictBlock, ReasonContains: "chmod"},
		{Name: "other tool passes", Tool: "Read", Want: VerdictAllow},
	}}

	results := RunTests(eng, suite)
	require.Len(t, results, 5)
	assert.True(t, results[0].Passed)
	assert.True(t, results[1].Passed)
	assert.False(t, results[2].Passed)
	assert.False(t, results[3].Passed)
	assert.True(t, results[4].Passed)
}

func TestRunTestsMissingCommand(t *testing.T) {
	eng := setupEngine(t)

	results := RunTests(eng, &TestSuite{Cases: []TestCase{{Name: "empty"}}})
	require.Len(t, results, 1)
	require.Error(t, results[0].Error)
	assert.Contains(t, results[0].Error.Error(), "command is required")
}
