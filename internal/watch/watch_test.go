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

package watch

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holt/palisade/internal/audit"
)

func TestFormatEventLineTruncates(t *testing.T) {
	evt := audit.Event{
		Timestamp: time.Now().Add(-5 * time.Second),
		Tool:      "Bash",
		Command:   "pkill -f a-very-long-process-pattern-that-keeps-going-and-going",
		Verdict:   "block",
		Rule:      "process-kill",
	}
	line := formatEventLine(evt, 40, time.Now())
	assert.LessOrEqual(t, len([]rune(line)), 40)
	assert.True(t, strings.Contains(line, "🔴"))
}

func TestFormatEventLineShowsBlockReason(t *testing.T) {
	evt := audit.Event{
		Timestamp: time.Now(),
		Tool:      "Bash",
		Command:   "killall node",
		Verdict:   "block",
		Rule:      "process-kill",
		Reason:    "killall is too broad, use pkill with a dev-process target",
	}
	line := formatEventLine(evt, 200, time.Now())
	assert.Contains(t, line, `"killall node"`)
	assert.Contains(t, line, "[process-kill]")
	assert.Contains(t, line, "too broad")
}

func TestFormatEventLineAllowOmitsReason(t *testing.T) {
	evt := audit.Event{
		Timestamp: time.Now(),
		Tool:      "Bash",
		Command:   "git push",
		Verdict:   "allow",
		Rule:      "allowlist",
		Reason:    "should not render",
	}
	line := formatEventLine(evt, 200, time.Now())
	assert.Contains(t, line, "✅")
	assert.NotContains(t, line, "should not render")
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "now", relativeTime(now, now))
	assert.Equal(t, "42s ago", relativeTime(now, now.Add(-42*time.Second)))
	assert.Equal(t, "3m ago", relativeTime(now, now.Add(-3*time.Minute)))
	assert.Equal(t, "2h ago", relativeTime(now, now.Add(-2*time.Hour)))
}

func TestModelUpdateCountsAndScroll(t *testing.T) {
	m := NewModel(Config{AuditFile: "/tmp/does-not-matter", Policy: "standard"})
	m.events = []audit.Event{}
	m.scroll = 0

	evt := audit.Event{
		Timestamp: time.Now(),
		Tool:      "Bash",
		Command:   "git push",
		Verdict:   "allow",
		Rule:      "allowlist",
	}

	updatedModel, _ := m.Update(tailerMsg{event: evt})
	updated, ok := updatedModel.(*Model)
	require.True(t, ok)
	assert.Equal(t, 1, updated.stats.Total)
	assert.Equal(t, 1, updated.stats.Allow)
	assert.Len(t, updated.events, 1)

	updatedModel, _ = updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	updated, ok = updatedModel.(*Model)
	require.True(t, ok)
	assert.GreaterOrEqual(t, updated.scroll, 0)
}

func TestModelBlockFlashAndVerdictFilter(t *testing.T) {
	m := NewModel(Config{AuditFile: "/tmp/audit.jsonl", Verdict: "block"})

	allowEvt := audit.Event{Timestamp: time.Now(), Tool: "Bash", Command: "git status", Verdict: "allow"}
	updatedModel, _ := m.Update(tailerMsg{event: allowEvt})
	updated := updatedModel.(*Model)
	assert.Equal(t, 1, updated.stats.Total, "filtered events still count")
	assert.Empty(t, updated.events, "filtered events do not display")

	blockEvt := audit.Event{
		Timestamp: time.Now(),
		Tool:      "Bash",
		Command:   "killall node",
		Verdict:   "block",
		Rule:      "process-kill",
	}
	updatedModel, _ = updated.Update(tailerMsg{event: blockEvt})
	updated = updatedModel.(*Model)
	assert.Equal(t, 1, updated.stats.Block)
	require.Len(t, updated.events, 1)
	_, flashing := updated.blockFlash[0]
	assert.True(t, flashing)
}

func TestVisibleEventsRespectsScroll(t *testing.T) {
	m := NewModel(Config{AuditFile: "/tmp/audit.jsonl"})
	for i := 0; i < 6; i++ {
		m.events = append(m.events, audit.Event{Tool: "Bash", Command: "cmd", Verdict: "allow"})
	}
	m.scroll = 2
	visible := m.visibleEvents(2)
	require.Len(t, visible, 2)
}

func TestViewRendersFrame(t *testing.T) {
	m := NewModel(Config{AuditFile: "/tmp/audit.jsonl", Policy: "standard", Mode: "enforce"})
	m.events = []audit.Event{{
		Timestamp: time.Now(),
		Tool:      "Bash",
		Command:   "npm run build",
		Verdict:   "allow",
		Rule:      "allowlist",
	}}

	view := m.View()
	assert.Contains(t, view, "Palisade Watch")
	assert.Contains(t, view, "LIVE FEED")
	assert.Contains(t, view, "POLICY: standard")
}

func TestEventsURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"localhost:8787", "ws://localhost:8787/v1/events"},
		{"http://localhost:8787", "ws://localhost:8787/v1/events"},
		{"https://gate.internal", "wss://gate.internal/v1/events"},
		{"ws://localhost:8787/", "ws://localhost:8787/v1/events"},
		{"wss://gate.internal", "wss://gate.internal/v1/events"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, eventsURL(tt.in), "input %q", tt.in)
	}
}
