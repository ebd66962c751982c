// Copyright 2026 The Palisade Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package gate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lintFixture(t *testing.T, yaml string) LintResult {
	t.Helper()
	path := filepath.Join(t.TempDir(), "palisade.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	return LintPolicyFile(path)
}

func TestLintCleanConfig(t *testing.T) {
	result := lintFixture(t, `
version: "1"
allowlist: [ls, cat, npm, node]
kill_targets: [node, npm, vite]
`)
	assert.False(t, result.HasErrors())
	assert.Zero(t, result.Warnings)
	assert.Contains(t, result.Summary("palisade.yaml"), "no issues")
}

func TestLintDangerousEntries(t *testing.T) {
	result := lintFixture(t, `
allowlist: [ls, rm, curl, bash]
kill_targets: [node]
`)
	assert.False(t, result.HasErrors())
	assert.Equal(t, 3, result.Warnings)

	var msgs []string
	for _, f := range result.Findings {
		msgs = append(msgs, f.Message)
	}
	joined := strings.Join(msgs, "\n")
	assert.Contains(t, joined, `"rm"`)
	assert.Contains(t, joined, `"curl"`)
	assert.Contains(t, joined, `"bash"`)
}

func TestLintEmptyKillTargets(t *testing.T) {
	result := lintFixture(t, `
allowlist: [ls]
`)
	assert.False(t, result.HasErrors())
	require.NotZero(t, result.Infos)
	assert.Contains(t, result.Findings[0].Message, "every pkill will be blocked")
}

func TestLintShortKillTarget(t *testing.T) {
	result := lintFixture(t, `
allowlist: [ls]
kill_targets: [go]
`)
	assert.NotZero(t, result.Warnings)
}

func TestLintUnknownField(t *testing.T) {
	result := lintFixture(t, `
allowlist: [ls]
whitelist: [cat]
`)
	require.NotZero(t, result.Warnings)
	var found bool
	for _, f := range result.Findings {
		if strings.Contains(f.Message, `did you mean "allowlist"`) {
			found = true
		}
	}
	assert.True(t, found, "expected typo suggestion, findings: %v", result.Findings)
}

func TestLintInvalidSchema(t *testing.T) {
	result := lintFixture(t, `version: "1"`)
	assert.True(t, result.HasErrors())
}

func TestLintUnreadableFile(t *testing.T) {
	result := LintPolicyFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, result.HasErrors())
}
