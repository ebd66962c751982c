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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/holt/palisade/internal/audit"
)

// renderAuditEventLine formats one event for terminal output.
func renderAuditEventLine(event audit.Event, disableColor bool) string {
	icon := "•"
	color := ""
	reset := ""
	switch event.Verdict {
	case "allow":
		icon = "✅"
		if !disableColor {
			color, reset = colorGreen, colorReset
		}
	case "block":
		icon = "🔴"
		if !disableColor {
			color, reset = colorRed, colorReset
		}
	}

	ts := event.Timestamp.UTC().Format("2006-01-02 15:04:05")
	line := fmt.Sprintf("%s  %s %s%-5s%s %q", ts, icon, color, event.Verdict, reset, event.Command)
	if event.Rule != "" {
		line += fmt.Sprintf(" [%s]", event.Rule)
	}
	if event.Verdict == "block" && event.Reason != "" {
		line += " " + event.Reason
	}
	return line
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("audit: stat %s: %w", path, err)
	}
	return info.Size(), nil
}

// readAllAuditEvents reads every event from every audit file in dir, in
// chain order.
func readAllAuditEvents(dir string) ([]audit.Event, error) {
	files, err := audit.ListFiles(dir)
	if err != nil {
		return nil, err
	}

	var events []audit.Event
	for _, file := range files {
		fileEvents, err := audit.ReadEvents(file)
		if err != nil {
			return nil, err
		}
		events = append(events, fileEvents...)
	}
	return events, nil
}

// parseSinceDuration parses a duration that may carry a day prefix,
// e.g. "7d", "24h", "1h30m", "2d12h".
func parseSinceDuration(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, nil
	}

	if idx := strings.IndexByte(trimmed, 'd'); idx > 0 {
		if days, err := strconv.Atoi(trimmed[:idx]); err == nil {
			total := time.Duration(days) * 24 * time.Hour
			if rest := trimmed[idx+1:]; rest != "" {
				more, restErr := time.ParseDuration(rest)
				if restErr != nil {
					return 0, fmt.Errorf("audit: invalid --since %q", s)
				}
				total += more
			}
			return total, nil
		}
	}

	d, err := time.ParseDuration(trimmed)
	if err != nil {
		return 0, fmt.Errorf("audit: invalid --since %q", s)
	}
	return d, nil
}

// filterEventsBySince drops events older than the given window. Returns
// the kept events and a label describing the window.
func filterEventsBySince(events []audit.Event, since string) ([]audit.Event, string, error) {
	window, err := parseSinceDuration(since)
	if err != nil {
		return nil, "", err
	}
	if window == 0 {
		return events, "all time", nil
	}

	cutoff := time.Now().UTC().Add(-window)
	kept := make([]audit.Event, 0, len(events))
	for _, event := range events {
		if event.Timestamp.After(cutoff) {
			kept = append(kept, event)
		}
	}
	return kept, "last " + strings.TrimSpace(since), nil
}

type auditStats struct {
	Total      int
	ByVerdict  map[string]int
	ByRule     map[string]int
	TopBlocked map[string]int
}

func computeAuditStats(events []audit.Event) auditStats {
	stats := auditStats{
		ByVerdict:  make(map[string]int),
		ByRule:     make(map[string]int),
		TopBlocked: make(map[string]int),
	}

	for _, event := range events {
		stats.Total++
		stats.ByVerdict[event.Verdict]++
		if event.Rule != "" {
			stats.ByRule[event.Rule]++
		}
		if event.Verdict == "block" {
			stats.TopBlocked[blockedProgram(event.Command)]++
		}
	}
	return stats
}

// blockedProgram guesses the leading program of a blocked command for
// display grouping. Assignment prefixes are skipped the way the gate
// skips them.
func blockedProgram(command string) string {
	for _, field := range strings.Fields(command) {
		if strings.Contains(field, "=") {
			continue
		}
		return filepath.Base(field)
	}
	return "(empty)"
}

func formatAuditStats(stats auditStats, windowLabel string, disableColor bool) string {
	var b strings.Builder

	title := fmt.Sprintf("Audit stats (%s)", windowLabel)
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("-", len(title)) + "\n")
	fmt.Fprintf(&b, "Total events: %d\n", stats.Total)

	if stats.Total == 0 {
		return b.String()
	}

	b.WriteString("\nBy verdict:\n")
	for _, verdict := range sortedKeysByCount(stats.ByVerdict) {
		count := stats.ByVerdict[verdict]
		pct := float64(count) / float64(stats.Total) * 100
		color, reset := "", ""
		if !disableColor {
			switch verdict {
			case "allow":
				color, reset = colorGreen, colorReset
			case "block":
				color, reset = colorRed, colorReset
			}
		}
		fmt.Fprintf(&b, "  %s%-7s%s %4d (%.1f%%)\n", color, verdict, reset, count, pct)
	}

	if len(stats.ByRule) > 0 {
		b.WriteString("\nBy rule:\n")
		for _, rule := range sortedKeysByCount(stats.ByRule) {
			fmt.Fprintf(&b, "  %-13s %4d\n", rule, stats.ByRule[rule])
		}
	}

	if len(stats.TopBlocked) > 0 {
		b.WriteString("\nTop blocked programs:\n")
		for _, program := range sortedKeysByCount(stats.TopBlocked) {
			fmt.Fprintf(&b, "  %-13s %4d\n", program, stats.TopBlocked[program])
		}
	}

	return b.String()
}

// sortedKeysByCount orders map keys by descending count, then name, so
// output is deterministic.
func sortedKeysByCount(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	return keys
}

func matchesAuditFilters(event audit.Event, verdict, rule, session string) bool {
	if verdict != "" && !strings.EqualFold(event.Verdict, verdict) {
		return false
	}
	if rule != "" && !strings.EqualFold(event.Rule, rule) {
		return false
	}
	if session != "" && event.Session != session {
		return false
	}
	return true
}

// eventMatchesQuery reports whether the lowercased query appears in the
// event's command or reason.
func eventMatchesQuery(event audit.Event, query string) bool {
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(event.Command), query) {
		return true
	}
	return strings.Contains(strings.ToLower(event.Reason), query)
}

// verifyAnchor cross-checks the persisted chain anchor against the trail.
// Returns a human-readable note on success.
func verifyAnchor(dir string) (string, error) {
	anchor, err := audit.ReadAnchor(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "none written yet", nil
		}
		return "", err
	}

	events, err := audit.ReadEvents(filepath.Join(dir, anchor.File))
	if err != nil {
		return "", fmt.Errorf("audit: anchor names unreadable file %s: %w", anchor.File, err)
	}

	for _, event := range events {
		if event.ID == anchor.EventID {
			if event.Hash != anchor.Hash {
				return "", fmt.Errorf("audit: anchor hash mismatch for event %s in %s", anchor.EventID, anchor.File)
			}
			return fmt.Sprintf("matches event %s in %s", anchor.EventID, anchor.File), nil
		}
	}
	return "", fmt.Errorf("audit: anchor event %s not found in %s", anchor.EventID, anchor.File)
}
