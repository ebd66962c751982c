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

package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(`
allowlist: [ls, cat]
kill_targets: [node]
`))
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.Version)
	assert.Equal(t, "init.sh", cfg.InitScript)
	assert.Equal(t, ParserLine, cfg.Parser)
}

func TestParseConfigRejects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"empty allowlist", `{version: "1"}`, "allowlist is empty"},
		{"blank entry", `{allowlist: ["ls", ""]}`, "empty entry"},
		{"path entry", `{allowlist: ["/usr/bin/ls"]}`, "base name"},
		{"spaced entry", `{allowlist: ["ls -la"]}`, "base name"},
		{"duplicate entry", `{allowlist: [ls, ls]}`, "duplicate allowlist entry"},
		{"blank kill target", `{allowlist: [ls], kill_targets: [""]}`, "empty entry"},
		{"duplicate kill target", `{allowlist: [ls], kill_targets: [node, node]}`, "duplicate kill_targets"},
		{"bad version", `{version: "2", allowlist: [ls]}`, "unsupported config version"},
		{"bad parser", `{allowlist: [ls], parser: regex}`, "unknown parser"},
		{"init script path", `{allowlist: [ls], init_script: "scripts/init.sh"}`, "base name"},
		{"not yaml", `:{`, "parse policy yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "palisade.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
allowlist: [ls, cat, npm]
kill_targets: [node]
init_script: init.sh
parser: line
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Allowlist, 3)
	assert.Equal(t, []string{"node"}, cfg.KillTargets)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read policy file")
}
