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

package gate

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Verdict is the outcome of evaluating a command or one of its
// sub-commands.
type Verdict int

const (
	// VerdictAllow permits the command to run.
	VerdictAllow Verdict = iota

	// VerdictBlock refuses the command.
	VerdictBlock
)

// String returns the wire form of the verdict.
func (v Verdict) String() string {
	switch v {
	case VerdictAllow:
		return "allow"
	case VerdictBlock:
		return "block"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// ParseVerdict converts a wire string into a Verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "allow":
		return VerdictAllow, nil
	case "block":
		return VerdictBlock, nil
	default:
		return VerdictBlock, fmt.Errorf("gate: unknown verdict %q", s)
	}
}

// MarshalJSON renders the verdict as its wire string.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON parses the wire string form.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseVerdict(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// UnmarshalYAML parses the wire string form, used by policy test suites.
func (v *Verdict) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseVerdict(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Rule names identify which check produced a decision.
const (
	// RuleTool covers non-shell tools passed through without evaluation.
	RuleTool = "tool"

	// RuleParse covers splitting and extraction failures.
	RuleParse = "parse"

	// RuleAllowlist is the base-name membership check.
	RuleAllowlist = "allowlist"

	// RuleChmod is the execute-only chmod grammar check.
	RuleChmod = "chmod"

	// RuleInitScript is the direct-execution check for the init script.
	RuleInitScript = "init-script"

	// RuleProcessKill is the dev-process restriction on pkill/killall.
	RuleProcessKill = "process-kill"
)

// ToolBash is the harness tool name whose input this engine governs.
const ToolBash = "Bash"

// Request is one tool invocation proposed by the agent harness.
type Request struct {
	// Tool is the harness tool name, e.g. "Bash". Non-Bash tools are
	// outside this engine's jurisdiction and pass through as allow.
	Tool string `json:"tool"`

	// Command is the raw shell command text for Bash-class tools.
	Command string `json:"command"`

	// Session identifies the harness session, when the harness sends one.
	Session string `json:"session,omitempty"`

	// Raw preserves the original tool_input fields for auditing.
	Raw map[string]any `json:"-"`
}

// Decision is the engine's answer for one request. Block decisions
// always carry a non-empty reason.
type Decision struct {
	Verdict Verdict `json:"verdict"`

	// Reason is the human-readable explanation surfaced to the agent.
	Reason string `json:"reason,omitempty"`

	// Rule names the check that decided.
	Rule string `json:"rule,omitempty"`

	// EvalDuration is how long evaluation took.
	EvalDuration time.Duration `json:"eval_duration,omitempty"`
}

// Blocked reports whether the decision refuses the command.
func (d Decision) Blocked() bool {
	return d.Verdict == VerdictBlock
}

// SegmentDecision is the decision for a single sub-command, produced by
// Explain.
type SegmentDecision struct {
	// Segment is the trimmed sub-command text.
	Segment string `json:"segment"`

	Decision
}

func allowDecision(rule string) Decision {
	return Decision{Verdict: VerdictAllow, Rule: rule}
}

func blockDecision(rule, reason string) Decision {
	return Decision{Verdict: VerdictBlock, Rule: rule, Reason: reason}
}

func blockDecisionf(rule, format string, args ...any) Decision {
	return blockDecision(rule, fmt.Sprintf(format, args...))
}
