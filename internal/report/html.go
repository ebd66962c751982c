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

// Package report renders audit events into a self-contained HTML digest.
package report

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/holt/palisade/internal/audit"
)

// ReportData contains all the data needed to generate an HTML report.
type ReportData struct {
	Title          string
	GeneratedAt    time.Time
	StartTime      time.Time
	EndTime        time.Time
	ChainValid     bool
	TotalEvents    int
	AllowedEvents  int
	BlockedEvents  int
	MonitorEvents  int
	AllowedPercent float64
	BlockedPercent float64
	MonitorPercent float64
	Timeline       []TimelineEntry
	TopBlocked     []CommandCount
	TopRules       []RuleCount
	Events         []ReportEvent
}

// TimelineEntry represents an hour's worth of events for the timeline chart.
type TimelineEntry struct {
	Hour     string
	Allowed  int
	Blocked  int
	Monitor  int
	Total    int
	MaxWidth int // For CSS width calculation
}

// CommandCount represents the count of a specific blocked command.
type CommandCount struct {
	Command string
	Count   int
}

// RuleCount represents how often a rule produced a block.
type RuleCount struct {
	Rule  string
	Count int
}

// ReportEvent represents an event formatted for display in the report.
type ReportEvent struct {
	Time     string
	Session  string
	Command  string
	Verdict  string
	Rule     string
	Reason   string
	CSSClass string
}

// GenerateHTMLReport renders a self-contained HTML report from audit
// events. Events must be in chain order, oldest first.
func GenerateHTMLReport(events []audit.Event, startTime, endTime time.Time, writer io.Writer) error {
	data := prepareReportData(events, startTime, endTime)

	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("report: parse HTML template: %w", err)
	}

	if err := tmpl.Execute(writer, data); err != nil {
		return fmt.Errorf("report: execute template: %w", err)
	}

	return nil
}

// category buckets an event for the summary cards. A block that was only
// observed in monitor mode counts separately from an enforced block.
func category(event audit.Event) string {
	if event.Verdict != "block" {
		return "allow"
	}
	if event.Mode == "monitor" {
		return "monitor"
	}
	return "block"
}

// prepareReportData processes events into the data structure needed for
// the HTML template.
func prepareReportData(events []audit.Event, startTime, endTime time.Time) *ReportData {
	data := &ReportData{
		Title:       "Palisade Audit Report",
		GeneratedAt: time.Now(),
		StartTime:   startTime,
		EndTime:     endTime,
		TotalEvents: len(events),
	}

	data.ChainValid = verifyHashChain(events)

	commandCounts := make(map[string]int)
	ruleCounts := make(map[string]int)
	timelineCounts := make(map[string]map[string]int)

	for _, event := range events {
		cat := category(event)
		switch cat {
		case "allow":
			data.AllowedEvents++
		case "block":
			data.BlockedEvents++
		case "monitor":
			data.MonitorEvents++
		}

		if event.Verdict == "block" {
			commandCounts[event.Command]++
			if event.Rule != "" {
				ruleCounts[event.Rule]++
			}
		}

		hour := event.Timestamp.Format("2006-01-02 15:00")
		if timelineCounts[hour] == nil {
			timelineCounts[hour] = make(map[string]int)
		}
		timelineCounts[hour][cat]++
	}

	if data.TotalEvents > 0 {
		data.AllowedPercent = float64(data.AllowedEvents) / float64(data.TotalEvents) * 100
		data.BlockedPercent = float64(data.BlockedEvents) / float64(data.TotalEvents) * 100
		data.MonitorPercent = float64(data.MonitorEvents) / float64(data.TotalEvents) * 100
	}

	data.Timeline = prepareTimeline(timelineCounts)
	data.TopBlocked = topBlockedCommands(commandCounts)
	data.TopRules = topBlockRules(ruleCounts)
	data.Events = prepareEventList(events)

	return data
}

// verifyHashChain recomputes every event hash and checks each prev_hash
// link, in the order given. The first event is exempt from the link
// check: a report window may start mid-chain.
func verifyHashChain(events []audit.Event) bool {
	for i, event := range events {
		valid, err := event.VerifyHash()
		if err != nil || !valid {
			return false
		}

		if i > 0 && event.PrevHash != events[i-1].Hash {
			return false
		}
	}
	return true
}

// prepareTimeline creates timeline entries from the per-hour counts.
func prepareTimeline(timelineCounts map[string]map[string]int) []TimelineEntry {
	var timeline []TimelineEntry
	maxTotal := 0

	hours := make([]string, 0, len(timelineCounts))
	for hour := range timelineCounts {
		hours = append(hours, hour)
	}
	sort.Strings(hours)

	for _, hour := range hours {
		counts := timelineCounts[hour]
		allowed := counts["allow"]
		blocked := counts["block"]
		monitor := counts["monitor"]
		total := allowed + blocked + monitor

		if total > maxTotal {
			maxTotal = total
		}

		timeline = append(timeline, TimelineEntry{
			Hour:    hour,
			Allowed: allowed,
			Blocked: blocked,
			Monitor: monitor,
			Total:   total,
		})
	}

	for i := range timeline {
		if maxTotal > 0 {
			timeline[i].MaxWidth = (timeline[i].Total * 100) / maxTotal
		}
	}

	return timeline
}

// topBlockedCommands creates a sorted list of the most-blocked commands.
func topBlockedCommands(commandCounts map[string]int) []CommandCount {
	var commands []CommandCount
	for cmd, count := range commandCounts {
		commands = append(commands, CommandCount{
			Command: cmd,
			Count:   count,
		})
	}

	sort.Slice(commands, func(i, j int) bool {
		if commands[i].Count != commands[j].Count {
			return commands[i].Count > commands[j].Count
		}
		return commands[i].Command < commands[j].Command
	})

	if len(commands) > 10 {
		commands = commands[:10]
	}

	return commands
}

// topBlockRules creates a sorted list of the rules that blocked most.
func topBlockRules(ruleCounts map[string]int) []RuleCount {
	var rules []RuleCount
	for rule, count := range ruleCounts {
		rules = append(rules, RuleCount{
			Rule:  rule,
			Count: count,
		})
	}

	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Count != rules[j].Count {
			return rules[i].Count > rules[j].Count
		}
		return rules[i].Rule < rules[j].Rule
	})

	if len(rules) > 10 {
		rules = rules[:10]
	}

	return rules
}

// prepareEventList formats events for display in the report table.
func prepareEventList(events []audit.Event) []ReportEvent {
	var reportEvents []ReportEvent

	for _, event := range events {
		command := event.Command
		if len(command) > 80 {
			command = command[:77] + "..."
		}

		cat := category(event)
		verdict := event.Verdict
		if cat == "monitor" {
			verdict = "block (monitor)"
		}

		reportEvents = append(reportEvents, ReportEvent{
			Time:     event.Timestamp.Format("2006-01-02 15:04:05"),
			Session:  event.Session,
			Command:  command,
			Verdict:  verdict,
			Rule:     event.Rule,
			Reason:   event.Reason,
			CSSClass: "verdict-" + cat,
		})
	}

	return reportEvents
}

// htmlTemplate is the complete HTML template for the audit report.
const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * {
            margin: 0;
            padding: 0;
            box-sizing: border-box;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Helvetica, Arial, sans-serif;
            background-color: #0d1117;
            color: #c9d1d9;
            line-height: 1.5;
            min-height: 100vh;
        }

        .container {
            max-width: 1200px;
            margin: 0 auto;
            padding: 20px;
        }

        .header {
            text-align: center;
            margin-bottom: 30px;
            padding: 20px;
            background-color: #161b22;
            border-radius: 8px;
        }

        .header h1 {
            font-size: 2em;
            margin-bottom: 10px;
        }

        .header .meta {
            color: #7d8590;
            font-size: 0.9em;
        }

        .chain-status {
            display: inline-block;
            padding: 4px 8px;
            border-radius: 4px;
            font-size: 0.8em;
            margin-left: 10px;
        }

        .chain-valid {
            background-color: #238636;
            color: white;
        }

        .chain-broken {
            background-color: #da3633;
            color: white;
        }

        .summary {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
            gap: 20px;
            margin-bottom: 30px;
        }

        .card {
            background-color: #161b22;
            border-radius: 8px;
            padding: 20px;
            text-align: center;
            border-left: 4px solid #21262d;
        }

        .card.total { border-left-color: #58a6ff; }
        .card.allow { border-left-color: #3fb950; }
        .card.block { border-left-color: #f85149; }
        .card.monitor { border-left-color: #d29922; }

        .card-number {
            font-size: 2em;
            font-weight: bold;
            margin-bottom: 5px;
        }

        .card-label {
            color: #7d8590;
            font-size: 0.9em;
        }

        .card-percent {
            font-size: 0.8em;
            color: #7d8590;
            margin-top: 5px;
        }

        .section {
            background-color: #161b22;
            border-radius: 8px;
            padding: 20px;
            margin-bottom: 30px;
        }

        .section h2 {
            margin-bottom: 20px;
            font-size: 1.3em;
        }

        .timeline {
            margin-bottom: 20px;
        }

        .timeline-entry {
            margin-bottom: 8px;
        }

        .timeline-hour {
            font-size: 0.8em;
            color: #7d8590;
            margin-bottom: 4px;
        }

        .timeline-bar {
            height: 20px;
            border-radius: 3px;
            overflow: hidden;
            display: flex;
        }

        .bar-segment {
            height: 100%;
        }

        .bar-allow { background-color: #3fb950; }
        .bar-block { background-color: #f85149; }
        .bar-monitor { background-color: #d29922; }

        .timeline-counts {
            font-size: 0.8em;
            color: #7d8590;
            margin-top: 2px;
        }

        table {
            width: 100%;
            border-collapse: collapse;
        }

        th, td {
            padding: 8px 12px;
            text-align: left;
            border-bottom: 1px solid #21262d;
        }

        th {
            background-color: #21262d;
            font-weight: 600;
            cursor: pointer;
            user-select: none;
        }

        th:hover {
            background-color: #2d333b;
        }

        tr:hover {
            background-color: #21262d;
        }

        .command {
            font-family: "SF Mono", Monaco, "Cascadia Code", "Roboto Mono", Consolas, "Courier New", monospace;
            font-size: 0.85em;
        }

        .verdict {
            padding: 2px 6px;
            border-radius: 3px;
            font-size: 0.8em;
            font-weight: 500;
        }

        .verdict-allow {
            background-color: #238636;
            color: white;
        }

        .verdict-block {
            background-color: #da3633;
            color: white;
        }

        .verdict-monitor {
            background-color: #bf8700;
            color: white;
        }

        @media (max-width: 768px) {
            .container {
                padding: 10px;
            }

            .summary {
                grid-template-columns: repeat(2, 1fr);
            }

            table {
                font-size: 0.9em;
            }

            th, td {
                padding: 6px 8px;
            }
        }
    </style>
</head>
<body>
    <div class="container">
        <div class="header">
            <h1>{{.Title}}</h1>
            <div class="meta">
                {{.StartTime.Format "2006-01-02 15:04"}} to {{.EndTime.Format "2006-01-02 15:04"}}
                <br>
                Generated: {{.GeneratedAt.Format "2006-01-02 15:04:05 MST"}}
                <span class="chain-status {{if .ChainValid}}chain-valid{{else}}chain-broken{{end}}">
                    {{if .ChainValid}}Chain intact ✓{{else}}Chain broken ✗{{end}}
                </span>
            </div>
        </div>

        <div class="summary">
            <div class="card total">
                <div class="card-number">{{.TotalEvents}}</div>
                <div class="card-label">Total Events</div>
            </div>
            <div class="card allow">
                <div class="card-number">{{.AllowedEvents}}</div>
                <div class="card-label">Allowed</div>
                <div class="card-percent">{{printf "%.1f%%" .AllowedPercent}}</div>
            </div>
            <div class="card block">
                <div class="card-number">{{.BlockedEvents}}</div>
                <div class="card-label">Blocked</div>
                <div class="card-percent">{{printf "%.1f%%" .BlockedPercent}}</div>
            </div>
            <div class="card monitor">
                <div class="card-number">{{.MonitorEvents}}</div>
                <div class="card-label">Monitor Only</div>
                <div class="card-percent">{{printf "%.1f%%" .MonitorPercent}}</div>
            </div>
        </div>

        {{if .Timeline}}
        <div class="section">
            <h2>Timeline</h2>
            <div class="timeline">
                {{range .Timeline}}
                <div class="timeline-entry">
                    <div class="timeline-hour">{{.Hour}}</div>
                    <div class="timeline-bar" style="width: {{.MaxWidth}}%;">
                        {{if .Allowed}}<div class="bar-segment bar-allow" style="flex: {{.Allowed}};"></div>{{end}}
                        {{if .Blocked}}<div class="bar-segment bar-block" style="flex: {{.Blocked}};"></div>{{end}}
                        {{if .Monitor}}<div class="bar-segment bar-monitor" style="flex: {{.Monitor}};"></div>{{end}}
                    </div>
                    <div class="timeline-counts">
                        {{if .Allowed}}Allow: {{.Allowed}} {{end}}
                        {{if .Blocked}}Block: {{.Blocked}} {{end}}
                        {{if .Monitor}}Monitor: {{.Monitor}}{{end}}
                    </div>
                </div>
                {{end}}
            </div>
        </div>
        {{end}}

        {{if .TopBlocked}}
        <div class="section">
            <h2>Top Blocked Commands</h2>
            <table>
                <thead>
                    <tr>
                        <th>Command</th>
                        <th>Count</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .TopBlocked}}
                    <tr>
                        <td class="command">{{.Command}}</td>
                        <td>{{.Count}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        {{if .TopRules}}
        <div class="section">
            <h2>Blocks by Rule</h2>
            <table>
                <thead>
                    <tr>
                        <th>Rule</th>
                        <th>Count</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .TopRules}}
                    <tr>
                        <td>{{.Rule}}</td>
                        <td>{{.Count}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}

        <div class="section">
            <h2>Full Event Log</h2>
            <table id="eventTable">
                <thead>
                    <tr>
                        <th onclick="sortTable(0)">Time ↕</th>
                        <th onclick="sortTable(1)">Session ↕</th>
                        <th onclick="sortTable(2)">Command ↕</th>
                        <th onclick="sortTable(3)">Verdict ↕</th>
                        <th onclick="sortTable(4)">Rule ↕</th>
                        <th onclick="sortTable(5)">Reason ↕</th>
                    </tr>
                </thead>
                <tbody>
                    {{range .Events}}
                    <tr>
                        <td>{{.Time}}</td>
                        <td>{{.Session}}</td>
                        <td class="command">{{.Command}}</td>
                        <td><span class="verdict {{.CSSClass}}">{{.Verdict}}</span></td>
                        <td>{{.Rule}}</td>
                        <td>{{.Reason}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
    </div>

    <script>
        function sortTable(columnIndex) {
            const table = document.getElementById('eventTable');
            const tbody = table.querySelector('tbody');
            const rows = Array.from(tbody.querySelectorAll('tr'));

            const isAscending = table.dataset.sortOrder !== 'asc' || table.dataset.sortColumn !== columnIndex.toString();

            rows.sort((a, b) => {
                const aVal = a.cells[columnIndex].textContent.trim();
                const bVal = b.cells[columnIndex].textContent.trim();

                if (isAscending) {
                    return aVal.localeCompare(bVal);
                } else {
                    return bVal.localeCompare(aVal);
                }
            });

            tbody.innerHTML = '';
            rows.forEach(row => tbody.appendChild(row));

            table.dataset.sortOrder = isAscending ? 'asc' : 'desc';
            table.dataset.sortColumn = columnIndex.toString();
        }
    </script>
</body>
</html>`
