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
	"fmt"
	"os"
	"time"

	"github.com/holt/palisade/internal/audit"
	"github.com/holt/palisade/internal/report"
	"github.com/spf13/cobra"
)

func newAuditReportCmd() *cobra.Command {
	var auditDir string
	var output string
	var since string

	cmd := &cobra.Command{
		Use:   "report [file]",
		Short: "Generate a self-contained HTML audit report",
		Long: `Render audit events into a single HTML file with summary cards,
an hourly timeline, top blocked commands, and a sortable event log.
The output has no external assets and can be opened directly in a
browser or attached to a review.

With a file argument, reports on that one audit file. Without, reads
every audit file in --audit-dir in chain order.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var events []audit.Event
			var err error
			if len(args) == 1 {
				events, err = audit.ReadEvents(args[0])
			} else {
				var dir string
				dir, err = expandHome(auditDir)
				if err != nil {
					return err
				}
				events, err = readAllAuditEvents(dir)
			}
			if err != nil {
				return err
			}

			filtered, windowLabel, err := filterEventsBySince(events, since)
			if err != nil {
				return err
			}
			if len(filtered) == 0 {
				return fmt.Errorf("audit: no events to report (%s)", windowLabel)
			}

			// The window start comes from --since when given, otherwise
			// from the oldest event.
			end := time.Now().UTC()
			start := filtered[0].Timestamp
			if window, _ := parseSinceDuration(since); window > 0 {
				start = end.Add(-window)
			}

			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("audit: create report file: %w", err)
			}
			if err := report.GenerateHTMLReport(filtered, start, end, f); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("audit: close report file: %w", err)
			}

			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "✓ Report written: %s (%d events, %s)\n", output, len(filtered), windowLabel); err != nil {
				return fmt.Errorf("audit: write report output: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&auditDir, "audit-dir", "~/.palisade/audit", "Directory containing audit JSONL files")
	cmd.Flags().StringVar(&output, "out", "palisade-report.html", "Output HTML file path")
	cmd.Flags().StringVar(&since, "since", "", "Only include events within this duration (e.g. 24h, 7d, 1h30m)")

	return cmd
}
