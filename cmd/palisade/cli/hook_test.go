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
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/holt/palisade/internal/audit"
	"github.com/holt/palisade/internal/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookAllowsPermittedCommand(t *testing.T) {
	policyPath := writeTestPolicy(t)
	auditDir := t.TempDir()

	input := `{"tool_name":"Bash","tool_input":{"command":"git status"},"session_id":"sess-1"}`
	stdout, stderr, err := runCLIWithStdin(t, input, "--config", policyPath, "hook", "--audit-dir", auditDir)
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"allow"}`, stdout)
	assert.NotContains(t, stderr, "Palisade blocked")
}

func TestHookBlocksDisallowedCommand(t *testing.T) {
	policyPath := writeTestPolicy(t)
	auditDir := t.TempDir()

	input := `{"tool_name":"Bash","tool_input":{"command":"rm -rf /"},"session_id":"sess-1"}`
	stdout, stderr, err := runCLIWithStdin(t, input, "--config", policyPath, "hook", "--audit-dir", auditDir)
	require.NoError(t, err)

	var resp gate.HookResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, gate.VerdictBlock, resp.Decision)
	assert.Contains(t, resp.Reason, `"rm" is not in the allowlist`)
	assert.Contains(t, stderr, "Palisade blocked")
}

// Unparseable input answers block with exit code 0. The harness treats a
// non-zero exit as a hook crash and runs the command anyway, so the
// refusal has to travel in the response body.
func TestHookMalformedInputBlocksWithoutError(t *testing.T) {
	policyPath := writeTestPolicy(t)

	stdout, _, err := runCLIWithStdin(t, "this is not json", "--config", policyPath, "hook", "--audit-dir", t.TempDir())
	require.NoError(t, err)

	var resp gate.HookResponse
	require.NoError(t, json.Unmarshal([]byte(stdout), &resp))
	assert.Equal(t, gate.VerdictBlock, resp.Decision)
	assert.Contains(t, resp.Reason, "hook input rejected")
}

func TestHookMissingToolNameBlocks(t *testing.T) {
	policyPath := writeTestPolicy(t)

	input := `{"tool_input":{"command":"ls"}}`
	stdout, _, err := runCLIWithStdin(t, input, "--config", policyPath, "hook", "--audit-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, `"decision":"block"`)
	assert.Contains(t, stdout, "no tool_name")
}

func TestHookNonStringCommandBlocks(t *testing.T) {
	policyPath := writeTestPolicy(t)

	input := `{"tool_name":"Bash","tool_input":{"command":42}}`
	stdout, _, err := runCLIWithStdin(t, input, "--config", policyPath, "hook", "--audit-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, `"decision":"block"`)
	assert.Contains(t, stdout, "want string")
}

func TestHookNonBashToolPassesThrough(t *testing.T) {
	policyPath := writeTestPolicy(t)
	auditDir := t.TempDir()

	input := `{"tool_name":"Read","tool_input":{"file_path":"/etc/hosts"},"session_id":"sess-1"}`
	stdout, _, err := runCLIWithStdin(t, input, "--config", policyPath, "hook", "--audit-dir", auditDir)
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"allow"}`, stdout)
}

func TestHookUnloadablePolicyBlocks(t *testing.T) {
	badPolicy := filepath.Join(t.TempDir(), "palisade.yaml")
	require.NoError(t, os.WriteFile(badPolicy, []byte("allowlist: [\n"), 0o644))

	input := `{"tool_name":"Bash","tool_input":{"command":"git status"}}`
	stdout, _, err := runCLIWithStdin(t, input, "--config", badPolicy, "hook", "--audit-dir", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, stdout, `"decision":"block"`)
	assert.Contains(t, stdout, "policy unavailable")
}

func TestHookInvalidModeErrors(t *testing.T) {
	policyPath := writeTestPolicy(t)

	_, _, err := runCLIWithStdin(t, "{}", "--config", policyPath, "hook", "--mode", "yolo", "--audit-dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid mode")
}

func TestHookMonitorModeAllowsButAuditsVerdict(t *testing.T) {
	policyPath := writeTestPolicy(t)
	auditDir := t.TempDir()

	input := `{"tool_name":"Bash","tool_input":{"command":"rm -rf /"},"session_id":"sess-9"}`
	stdout, stderr, err := runCLIWithStdin(t, input, "--config", policyPath, "hook", "--audit-dir", auditDir, "--mode", "monitor")
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"allow"}`, stdout)
	assert.NotContains(t, stderr, "Palisade blocked")

	events := readAuditTrail(t, auditDir)
	require.Len(t, events, 1)
	assert.Equal(t, "block", events[0].Verdict)
	assert.Equal(t, "monitor", events[0].Mode)
	assert.Equal(t, "rm -rf /", events[0].Command)
}

func TestHookWritesAuditEvent(t *testing.T) {
	policyPath := writeTestPolicy(t)
	auditDir := t.TempDir()

	input := `{"tool_name":"Bash","tool_input":{"command":"git status"},"session_id":"sess-7"}`
	_, _, err := runCLIWithStdin(t, input, "--config", policyPath, "hook", "--audit-dir", auditDir)
	require.NoError(t, err)

	events := readAuditTrail(t, auditDir)
	require.Len(t, events, 1)
	event := events[0]
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "sess-7", event.Session)
	assert.Equal(t, "Bash", event.Tool)
	assert.Equal(t, "git status", event.Command)
	assert.Equal(t, "allow", event.Verdict)
	assert.Equal(t, gate.RuleAllowlist, event.Rule)
	assert.Equal(t, "enforce", event.Mode)
	assert.NotEmpty(t, event.Hash)
}

// Each hook invocation is a separate process with a fresh sink, so chain
// continuity across invocations depends on recovering the head from the
// anchor written by the previous one.
func TestHookChainsEventsAcrossInvocations(t *testing.T) {
	policyPath := writeTestPolicy(t)
	auditDir := t.TempDir()

	first := `{"tool_name":"Bash","tool_input":{"command":"git status"},"session_id":"sess-1"}`
	_, _, err := runCLIWithStdin(t, first, "--config", policyPath, "hook", "--audit-dir", auditDir)
	require.NoError(t, err)

	second := `{"tool_name":"Bash","tool_input":{"command":"rm -rf /"},"session_id":"sess-1"}`
	_, _, err = runCLIWithStdin(t, second, "--config", policyPath, "hook", "--audit-dir", auditDir)
	require.NoError(t, err)

	events := readAuditTrail(t, auditDir)
	require.Len(t, events, 2)
	assert.NotEmpty(t, events[0].Hash)
	assert.Equal(t, events[0].Hash, events[1].PrevHash)

	latest, err := audit.LatestFile(auditDir)
	require.NoError(t, err)
	res, err := audit.VerifyChain(latest)
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, 2, res.Events)
}

func readAuditTrail(t *testing.T, dir string) []audit.Event {
	t.Helper()

	latest, err := audit.LatestFile(dir)
	require.NoError(t, err)
	events, err := audit.ReadEvents(latest)
	require.NoError(t, err)
	return events
}
