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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/holt/palisade/internal/gate"
	"github.com/spf13/cobra"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var (
		toolName    string
		asJSON      bool
		noColorFlag bool
	)

	cmd := &cobra.Command{
		Use:   "check <command>",
		Short: "Evaluate a command against policy without executing it",
		Long: `Dry-run a shell command through the gate and show the decision.

Pipelines and chains are split the way the hook splits them, and every
sub-command is shown with its own verdict.

Exit code: 0 on allow, 1 on block.

Examples:
  palisade check "git status"
  palisade check "cat a.txt | grep x && rm -rf /"
  palisade check --json "npm install"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, opts, args[0], toolName, asJSON, noColorFlag)
		},
	}

	cmd.Flags().StringVar(&toolName, "tool", gate.ToolBash, "Tool name to evaluate as")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the decision as JSON")
	cmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable color output")

	return cmd
}

func runCheck(cmd *cobra.Command, opts *rootOptions, command, toolName string, asJSON, noColorFlag bool) error {
	// Engine startup chatter would pollute the report.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	eng, source, err := loadEngine(opts.configPath, logger)
	if err != nil {
		return err
	}

	segments, decision := eng.Explain(gate.Request{Tool: toolName, Command: command})

	out := cmd.OutOrStdout()
	if asJSON {
		if err := json.NewEncoder(out).Encode(decision); err != nil {
			return fmt.Errorf("check: write decision: %w", err)
		}
	} else {
		useColor := !noColorFlag && !noColor()
		printCheckTrace(out, segments, useColor)
		printCheckResult(out, decision, source, useColor)
	}

	if decision.Blocked() {
		return exitCodeError{code: 1}
	}
	return nil
}

func printCheckTrace(w io.Writer, segments []gate.SegmentDecision, useColor bool) {
	if len(segments) == 0 {
		return
	}

	for _, seg := range segments {
		icon, color := "✅", colorGreen
		if seg.Blocked() {
			icon, color = "🔴", colorRed
		}
		label := seg.Verdict.String()
		if useColor {
			fmt.Fprintf(w, "  %s %s%-5s%s %s\n", icon, color, label, colorReset, seg.Segment)
		} else {
			fmt.Fprintf(w, "  %s %-5s %s\n", icon, label, seg.Segment)
		}
		if seg.Blocked() && seg.Reason != "" {
			if useColor {
				fmt.Fprintf(w, "      %s%s%s\n", colorDim, seg.Reason, colorReset)
			} else {
				fmt.Fprintf(w, "      %s\n", seg.Reason)
			}
		}
	}
	fmt.Fprintln(w)
}

func printCheckResult(w io.Writer, d gate.Decision, source string, useColor bool) {
	icon, color, label := "✅", colorGreen, "ALLOW"
	if d.Blocked() {
		icon, color, label = "🔴", colorRed, "BLOCK"
	}

	msg := d.Reason
	if msg == "" {
		msg = "permitted by policy"
	}

	if useColor {
		fmt.Fprintf(w, "%s %s%s%s: %s\n", icon, color, label, colorReset, msg)
	} else {
		fmt.Fprintf(w, "%s %s: %s\n", icon, label, msg)
	}
	if d.Rule != "" {
		fmt.Fprintf(w, "   Rule: %s\n", d.Rule)
	}
	fmt.Fprintf(w, "   Policy: %s\n", source)
	fmt.Fprintf(w, "   Eval: %s\n", formatEvalDuration(d.EvalDuration))
}

func formatEvalDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%dms", d.Milliseconds())
}
