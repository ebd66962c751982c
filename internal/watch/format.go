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
	"fmt"
	"strings"
	"time"

	"github.com/holt/palisade/internal/audit"
)

const (
	maxVisibleEvents = 1000
	maxCommandWidth  = 80
)

func verdictIcon(verdict string) string {
	switch strings.ToLower(strings.TrimSpace(verdict)) {
	case "allow":
		return "✅"
	case "block":
		return "\U0001f534"
	default:
		return "•"
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 1 {
		return string(runes[:max])
	}
	return string(runes[:max-1]) + "…"
}

// relativeTime formats the elapsed time as a human-readable string.
func relativeTime(now, ts time.Time) string {
	d := now.Sub(ts)
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm ago", h, m)
		}
		return fmt.Sprintf("%dh ago", h)
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// formatEventLine renders one feed row: icon, relative time, command,
// deciding rule, and for blocks the reason.
func formatEventLine(event audit.Event, width int, now time.Time) string {
	icon := verdictIcon(event.Verdict)
	timePart := fmt.Sprintf("%-8s", relativeTime(now, event.Timestamp))

	command := strings.TrimSpace(event.Command)
	if command == "" {
		command = "-"
	}
	command = truncateRunes(command, maxCommandWidth)

	rule := strings.TrimSpace(event.Rule)
	if rule == "" {
		rule = "-"
	}

	base := fmt.Sprintf("%s %s %q [%s]", icon, timePart, command, rule)
	if strings.EqualFold(strings.TrimSpace(event.Verdict), "block") && event.Reason != "" {
		base += " " + event.Reason
	}
	return truncateRunes(base, width)
}

func trimEvents(events []audit.Event) []audit.Event {
	if len(events) <= maxVisibleEvents {
		return events
	}
	trimmed := make([]audit.Event, maxVisibleEvents)
	copy(trimmed, events[:maxVisibleEvents])
	return trimmed
}
