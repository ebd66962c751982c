// Copyright 2026 The Palisade Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePolicyPrefersFlagOverEnv(t *testing.T) {
	flagPath := writeTestPolicy(t)
	envPath := filepath.Join(t.TempDir(), "env.yaml")
	require.NoError(t, os.WriteFile(envPath, []byte("version: \"1\"\nallowlist: [ls]\n"), 0o644))
	t.Setenv("PALISADE_CONFIG", envPath)

	data, source, err := resolvePolicy(flagPath)
	require.NoError(t, err)
	assert.Equal(t, flagPath, source)
	assert.Contains(t, string(data), "git")
}

func TestResolvePolicyUsesEnvWithoutFlag(t *testing.T) {
	envPath := writeTestPolicy(t)
	t.Setenv("PALISADE_CONFIG", envPath)

	_, source, err := resolvePolicy("")
	require.NoError(t, err)
	assert.Equal(t, envPath, source)
}

func TestResolvePolicyUsesWorkingDirFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, defaultConfigFile), []byte(testPolicyYAML), 0o644))
	t.Chdir(dir)
	t.Setenv("PALISADE_CONFIG", "")

	_, source, err := resolvePolicy("")
	require.NoError(t, err)
	assert.Equal(t, defaultConfigFile, source)
}

func TestResolvePolicyFallsBackToEmbedded(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PALISADE_CONFIG", "")

	data, source, err := resolvePolicy("")
	require.NoError(t, err)
	assert.Equal(t, embeddedSource, source)
	assert.Contains(t, string(data), "allowlist:")
}

func TestResolvePolicyMissingFlagFile(t *testing.T) {
	_, _, err := resolvePolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read policy file")
}

func TestLoadEngineRejectsInvalidPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "palisade.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: \"9\"\nallowlist: [ls]\n"), 0o644))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, _, err := loadEngine(path, logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config version")
	assert.Contains(t, err.Error(), path)
}

func TestExpandHome(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	tests := []struct {
		in   string
		want string
	}{
		{"~", "/home/tester"},
		{"~/.palisade/audit", "/home/tester/.palisade/audit"},
		{"/var/log/palisade", "/var/log/palisade"},
		{"relative/dir", "relative/dir"},
		{"  /padded  ", "/padded"},
	}

	for _, tt := range tests {
		got, err := expandHome(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "expandHome(%q)", tt.in)
	}

	_, err := expandHome("")
	require.Error(t, err)
}
