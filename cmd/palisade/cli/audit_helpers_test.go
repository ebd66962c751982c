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
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/holt/palisade/internal/audit"
)

func TestParseSinceDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"24h", 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"1h30m", 90 * time.Minute, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"2d12h", 60 * time.Hour, false},
		{"d", 0, true},
		{"2d30x", 0, true},
		{"yesterday", 0, true},
	}

	for _, tt := range tests {
		got, err := parseSinceDuration(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseSinceDuration(%q): expected error, got %v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseSinceDuration(%q): unexpected error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseSinceDuration(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBlockedProgram(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"rm -rf /", "rm"},
		{"FOO=bar rm -rf /", "rm"},
		{"/usr/bin/python3 script.py", "python3"},
		{"  pkill -f node  ", "pkill"},
		{"", "(empty)"},
		{"A=1 B=2", "(empty)"},
	}

	for _, tt := range tests {
		if got := blockedProgram(tt.command); got != tt.want {
			t.Errorf("blockedProgram(%q) = %q, want %q", tt.command, got, tt.want)
		}
	}
}

func TestSortedKeysByCount(t *testing.T) {
	m := map[string]int{"curl": 1, "rm": 3, "bash": 1}
	got := sortedKeysByCount(m)
	want := []string{"rm", "bash", "curl"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sortedKeysByCount = %v, want %v", got, want)
	}
}

func TestMatchesAuditFilters(t *testing.T) {
	event := audit.Event{Verdict: "block", Rule: "allowlist", Session: "sess-1"}

	tests := []struct {
		name    string
		verdict string
		rule    string
		session string
		want    bool
	}{
		{"no filters", "", "", "", true},
		{"verdict match is case-insensitive", "BLOCK", "", "", true},
		{"verdict mismatch", "allow", "", "", false},
		{"rule match is case-insensitive", "", "ALLOWLIST", "", true},
		{"rule mismatch", "", "chmod", "", false},
		{"session match is exact", "", "", "sess-1", true},
		{"session mismatch", "", "", "SESS-1", false},
	}

	for _, tt := range tests {
		if got := matchesAuditFilters(event, tt.verdict, tt.rule, tt.session); got != tt.want {
			t.Errorf("%s: matchesAuditFilters = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestEventMatchesQuery(t *testing.T) {
	event := audit.Event{
		Command: "git push origin main",
		Reason:  `command "git" exceeded its jurisdiction`,
	}

	tests := []struct {
		query string
		want  bool
	}{
		{"", true},
		{"git push", true},
		{"jurisdiction", true},
		{"postgres", false},
	}

	for _, tt := range tests {
		if got := eventMatchesQuery(event, tt.query); got != tt.want {
			t.Errorf("eventMatchesQuery(%q) = %v, want %v", tt.query, got, tt.want)
		}
	}
}

func TestRenderAuditEventLine(t *testing.T) {
	ts := time.Date(2026, 2, 13, 9, 30, 0, 0, time.UTC)

	allow := audit.Event{Timestamp: ts, Command: "git status", Verdict: "allow", Rule: "allowlist"}
	line := renderAuditEventLine(allow, true)
	if !strings.Contains(line, "2026-02-13 09:30:00") {
		t.Errorf("allow line missing timestamp: %q", line)
	}
	if !strings.Contains(line, `"git status"`) || !strings.Contains(line, "[allowlist]") {
		t.Errorf("allow line missing command or rule: %q", line)
	}
	if strings.Contains(line, "\033") {
		t.Errorf("line contains color escapes with color disabled: %q", line)
	}

	block := audit.Event{
		Timestamp: ts, Command: "rm -rf /", Verdict: "block",
		Rule: "allowlist", Reason: `command "rm" is not in the allowlist`,
	}
	line = renderAuditEventLine(block, true)
	if !strings.Contains(line, `command "rm" is not in the allowlist`) {
		t.Errorf("block line missing reason: %q", line)
	}
}

func TestFilterEventsBySince(t *testing.T) {
	now := time.Now().UTC()
	events := []audit.Event{
		{Command: "old", Timestamp: now.Add(-48 * time.Hour)},
		{Command: "new", Timestamp: now.Add(-time.Hour)},
	}

	kept, label, err := filterEventsBySince(events, "")
	if err != nil || label != "all time" || len(kept) != 2 {
		t.Errorf("empty since: kept=%d label=%q err=%v", len(kept), label, err)
	}

	kept, label, err = filterEventsBySince(events, "24h")
	if err != nil || label != "last 24h" {
		t.Errorf("24h since: label=%q err=%v", label, err)
	}
	if len(kept) != 1 || kept[0].Command != "new" {
		t.Errorf("24h since kept wrong events: %v", kept)
	}

	if _, _, err := filterEventsBySince(events, "soon"); err == nil {
		t.Error("invalid window: expected error")
	}
}

func TestComputeAuditStats(t *testing.T) {
	events := []audit.Event{
		{Verdict: "allow", Rule: "allowlist", Command: "git status"},
		{Verdict: "block", Rule: "allowlist", Command: "rm -rf /"},
		{Verdict: "block", Rule: "process-kill", Command: "pkill -f postgres"},
		{Verdict: "block", Rule: "allowlist", Command: "rm x"},
	}

	stats := computeAuditStats(events)
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4", stats.Total)
	}
	if stats.ByVerdict["allow"] != 1 || stats.ByVerdict["block"] != 3 {
		t.Errorf("ByVerdict = %v", stats.ByVerdict)
	}
	if stats.ByRule["allowlist"] != 3 || stats.ByRule["process-kill"] != 1 {
		t.Errorf("ByRule = %v", stats.ByRule)
	}
	if stats.TopBlocked["rm"] != 2 || stats.TopBlocked["pkill"] != 1 {
		t.Errorf("TopBlocked = %v", stats.TopBlocked)
	}
}

func TestFormatAuditStats(t *testing.T) {
	stats := computeAuditStats([]audit.Event{
		{Verdict: "allow", Rule: "allowlist", Command: "git status"},
		{Verdict: "block", Rule: "allowlist", Command: "rm -rf /"},
	})

	out := formatAuditStats(stats, "all time", true)
	for _, want := range []string{"Audit stats (all time)", "Total events: 2", "50.0%", "Top blocked programs:"} {
		if !strings.Contains(out, want) {
			t.Errorf("stats output missing %q:\n%s", want, out)
		}
	}

	empty := formatAuditStats(computeAuditStats(nil), "all time", true)
	if !strings.Contains(empty, "Total events: 0") {
		t.Errorf("empty stats output: %q", empty)
	}
	if strings.Contains(empty, "By verdict:") {
		t.Errorf("empty stats should stop after the total: %q", empty)
	}
}
