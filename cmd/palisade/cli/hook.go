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

	"github.com/holt/palisade/internal/audit"
	"github.com/holt/palisade/internal/gate"
	"github.com/spf13/cobra"
)

// maxHookInput caps how much stdin the hook reads. Matches the serve
// request body limit.
const maxHookInput = 1 << 20

func newHookCmd(opts *rootOptions) *cobra.Command {
	var auditDir string
	var mode string

	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Agent hook: read a tool call from stdin, answer allow or block",
		Long: `Run as a pre-execution hook for an agent harness.

Reads one JSON tool call from stdin and writes the decision to stdout:

  {"decision":"allow"}
  {"decision":"block","reason":"..."}

stdout carries only the response; diagnostics go to stderr. Input that
cannot be parsed is blocked, not waved through: a gate that fails open
is not a gate.

Claude Code setup (add to ~/.claude/settings.json):
{
  "hooks": {
    "PreToolUse": [
      {
        "matcher": "Bash",
        "hooks": [{ "type": "command", "command": "palisade hook" }]
      }
    ]
  }
}`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHook(cmd, opts, auditDir, mode)
		},
	}

	cmd.Flags().StringVar(&auditDir, "audit-dir", "~/.palisade/audit", "Directory for audit JSONL files")
	cmd.Flags().StringVar(&mode, "mode", "enforce", "Mode: enforce | monitor (monitor answers allow but audits the real verdict)")

	return cmd
}

func runHook(cmd *cobra.Command, opts *rootOptions, auditDir, mode string) error {
	if mode != "enforce" && mode != "monitor" {
		return fmt.Errorf("hook: invalid mode %q (must be enforce or monitor)", mode)
	}

	// Logger goes to stderr; stdout is reserved for the response.
	logLevel := slog.LevelWarn
	if opts.verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: logLevel}))

	input, err := io.ReadAll(io.LimitReader(cmd.InOrStdin(), maxHookInput))
	if err != nil {
		logger.Error("hook: read stdin", "error", err)
		return writeHookResponse(cmd, gate.BlockResponse(fmt.Sprintf("hook input unreadable: %v", err)))
	}

	req, err := gate.ParseHookInput(input)
	if err != nil {
		logger.Warn("hook: rejecting unparseable input", "error", err)
		return writeHookResponse(cmd, gate.BlockResponse(fmt.Sprintf("hook input rejected: %v", err)))
	}

	eng, source, err := loadEngine(opts.configPath, logger)
	if err != nil {
		logger.Error("hook: policy unavailable", "error", err)
		return writeHookResponse(cmd, gate.BlockResponse(fmt.Sprintf("policy unavailable: %v", err)))
	}
	logger.Debug("hook: policy loaded", "source", source)

	decision := eng.Evaluate(req)

	writeAuditEvent(logger, auditDir, req, decision, mode)

	resp := gate.HookResponseFor(decision)
	if mode == "monitor" {
		resp = gate.HookResponse{Decision: gate.VerdictAllow}
	} else if decision.Blocked() {
		fmt.Fprint(cmd.ErrOrStderr(), formatBlockMessage(req.Command, decision.Reason))
	}

	return writeHookResponse(cmd, resp)
}

// writeAuditEvent appends the decision to the audit trail. Audit failures
// degrade to a stderr log line; the decision has already been made and a
// full disk must not take the whole agent down with it.
func writeAuditEvent(logger *slog.Logger, auditDir string, req gate.Request, d gate.Decision, mode string) {
	dir, err := expandHome(auditDir)
	if err != nil {
		logger.Error("hook: resolve audit dir", "error", err)
		return
	}

	// Anchor after every event: the hook lives for one decision, so the
	// next invocation recovers the chain head straight from the anchor.
	sink, err := audit.NewJSONLSink(dir, audit.WithLogger(logger), audit.WithAnchorInterval(1))
	if err != nil {
		logger.Error("hook: open audit sink", "error", err)
		return
	}
	defer func() {
		if err := sink.Close(); err != nil {
			logger.Error("hook: close audit sink", "error", err)
		}
	}()

	event := audit.Event{
		ID:         audit.NewEventID(),
		Timestamp:  time.Now().UTC(),
		Session:    req.Session,
		Tool:       req.Tool,
		Command:    req.Command,
		Verdict:    d.Verdict.String(),
		Reason:     d.Reason,
		Rule:       d.Rule,
		Mode:       mode,
		EvalMicros: d.EvalDuration.Microseconds(),
	}
	if err := sink.Write(event); err != nil {
		logger.Error("hook: write audit event", "error", err)
	}
}

func writeHookResponse(cmd *cobra.Command, resp gate.HookResponse) error {
	if err := json.NewEncoder(cmd.OutOrStdout()).Encode(resp); err != nil {
		return fmt.Errorf("hook: write response: %w", err)
	}
	return nil
}
