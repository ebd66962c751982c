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
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/holt/palisade/internal/audit"
	"github.com/spf13/cobra"
)

const tailPollInterval = 200 * time.Millisecond

func newAuditCmd(_ *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail inspection commands",
	}

	cmd.AddCommand(newAuditTailCmd())
	cmd.AddCommand(newAuditVerifyCmd())
	cmd.AddCommand(newAuditStatsCmd())
	cmd.AddCommand(newAuditSearchCmd())
	cmd.AddCommand(newAuditReportCmd())

	return cmd
}

func newAuditTailCmd() *cobra.Command {
	var auditDir string
	var lines int
	var follow bool
	var noColorFlag bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show recent audit events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if lines <= 0 {
				return fmt.Errorf("audit: --lines must be > 0")
			}

			dir, err := expandHome(auditDir)
			if err != nil {
				return err
			}

			file, err := audit.LatestFile(dir)
			if err != nil {
				return err
			}

			events, err := audit.ReadEvents(file)
			if err != nil {
				return err
			}

			disableColor := noColorFlag || noColor()
			start := max(0, len(events)-lines)
			for _, event := range events[start:] {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), renderAuditEventLine(event, disableColor)); err != nil {
					return fmt.Errorf("audit: write tail output: %w", err)
				}
			}

			if !follow {
				return nil
			}

			return followAuditDir(cmd, dir, file, disableColor)
		},
	}

	cmd.Flags().StringVar(&auditDir, "audit-dir", "~/.palisade/audit", "Directory containing audit JSONL files")
	cmd.Flags().IntVar(&lines, "lines", 20, "Number of events to print")
	cmd.Flags().BoolVar(&follow, "follow", false, "Keep printing new events")
	cmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable color output")

	return cmd
}

func followAuditDir(cmd *cobra.Command, dir, startFile string, disableColor bool) error {
	currentFile := startFile
	offset, err := fileSize(currentFile)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
			latest, latestErr := audit.LatestFile(dir)
			if latestErr == nil && latest != currentFile {
				currentFile = latest
				offset = 0
			}

			events, newOffset, readErr := audit.ReadEventsFromOffset(currentFile, offset)
			if readErr != nil {
				if os.IsNotExist(readErr) {
					continue
				}
				return readErr
			}

			for _, event := range events {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), renderAuditEventLine(event, disableColor)); err != nil {
					return fmt.Errorf("audit: write tail follow output: %w", err)
				}
			}
			offset = newOffset
		}
	}
}

func newAuditVerifyCmd() *cobra.Command {
	var auditDir string

	cmd := &cobra.Command{
		Use:   "verify [file]",
		Short: "Verify audit hash-chain integrity",
		Long: `Recompute every event hash and check each prev_hash link.

With a file argument, verifies that one file in isolation. Without,
walks every audit file in --audit-dir in chain order and cross-checks
the persisted anchor.

Exit code: 1 when the chain is broken.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return verifyAuditFile(cmd.OutOrStdout(), args[0])
			}

			dir, err := expandHome(auditDir)
			if err != nil {
				return err
			}
			return verifyAuditDir(cmd.OutOrStdout(), dir)
		},
	}

	cmd.Flags().StringVar(&auditDir, "audit-dir", "~/.palisade/audit", "Directory containing audit JSONL files")
	return cmd
}

func verifyAuditFile(w io.Writer, path string) error {
	res, err := audit.VerifyChain(path)
	if err != nil {
		return err
	}
	if res.Break != nil {
		return chainBreakError(path, res.Break)
	}

	continued := ""
	if res.Continued {
		continued = " (continues an earlier file)"
	}
	if _, err := fmt.Fprintf(w, "✓ Chain verified: %d events%s\n", res.Events, continued); err != nil {
		return fmt.Errorf("audit: write verify output: %w", err)
	}
	return nil
}

func verifyAuditDir(w io.Writer, dir string) error {
	files, err := audit.ListFiles(dir)
	if err != nil {
		return err
	}

	totalEvents := 0
	prevLast := ""
	for i, file := range files {
		res, err := audit.VerifyChain(file)
		if err != nil {
			return err
		}
		if res.Break != nil {
			return chainBreakError(file, res.Break)
		}

		// An empty file carries no link to check.
		hasLink := res.Events > 0 || res.Continued

		if i == 0 && hasLink && res.HeadHash != "" {
			return fmt.Errorf("audit: %s starts mid-chain (head links to %.16s...)", filepath.Base(file), res.HeadHash)
		}
		if i > 0 && hasLink && prevLast != "" && res.HeadHash != prevLast {
			return fmt.Errorf("audit: chain broken between %s and %s: head %.16s... does not match preceding hash %.16s...",
				filepath.Base(files[i-1]), filepath.Base(file), res.HeadHash, prevLast)
		}

		totalEvents += res.Events
		if res.LastHash != "" {
			prevLast = res.LastHash
		}
	}

	anchorNote, err := verifyAnchor(dir)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(w, "✓ Chain verified: %d events across %d files, no tampering detected\n", totalEvents, len(files)); err != nil {
		return fmt.Errorf("audit: write verify output: %w", err)
	}
	if _, err := fmt.Fprintf(w, "✓ Anchor: %s\n", anchorNote); err != nil {
		return fmt.Errorf("audit: write verify output: %w", err)
	}
	return nil
}

func chainBreakError(file string, brk *audit.ChainBreak) error {
	if brk.EventID != "" {
		return fmt.Errorf("audit: chain broken in %s at line %d (event %s): %s", filepath.Base(file), brk.Line, brk.EventID, brk.Detail)
	}
	return fmt.Errorf("audit: chain broken in %s at line %d: %s", filepath.Base(file), brk.Line, brk.Detail)
}

func newAuditStatsCmd() *cobra.Command {
	var auditDir string
	var since string
	var noColorFlag bool

	cmd := &cobra.Command{
		Use:   "stats [file]",
		Short: "Show audit summary statistics",
		Args:  cobra.MaximumNArgs(1),
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

			stats := computeAuditStats(filtered)
			disableColor := noColorFlag || noColor()
			if _, err := fmt.Fprint(cmd.OutOrStdout(), formatAuditStats(stats, windowLabel, disableColor)); err != nil {
				return fmt.Errorf("audit: write stats output: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&auditDir, "audit-dir", "~/.palisade/audit", "Directory containing audit JSONL files")
	cmd.Flags().StringVar(&since, "since", "", "Only include events within this duration (e.g. 24h, 7d, 1h30m)")
	cmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable color output")
	return cmd
}

func newAuditSearchCmd() *cobra.Command {
	var auditDir string
	var verdict string
	var rule string
	var session string
	var noColorFlag bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search audit events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.ToLower(args[0])

			dir, err := expandHome(auditDir)
			if err != nil {
				return err
			}
			events, err := readAllAuditEvents(dir)
			if err != nil {
				return err
			}

			disableColor := noColorFlag || noColor()
			count := 0
			for _, event := range events {
				if !matchesAuditFilters(event, verdict, rule, session) {
					continue
				}
				if !eventMatchesQuery(event, query) {
					continue
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), renderAuditEventLine(event, disableColor)); err != nil {
					return fmt.Errorf("audit: write search output: %w", err)
				}
				count++
			}

			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Found %d matching events\n", count); err != nil {
				return fmt.Errorf("audit: write search count: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&auditDir, "audit-dir", "~/.palisade/audit", "Directory containing audit JSONL files")
	cmd.Flags().StringVar(&verdict, "verdict", "", "Filter by verdict (allow|block)")
	cmd.Flags().StringVar(&rule, "rule", "", "Filter by rule (allowlist, chmod, init-script, process-kill, parse)")
	cmd.Flags().StringVar(&session, "session", "", "Filter by session ID")
	cmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable color output")
	return cmd
}
