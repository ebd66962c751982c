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

// Package gate implements the pre-execution decision engine for agent
// shell commands: compound-command splitting, invocation extraction,
// and the validators that together produce an allow/block verdict with
// a human-readable reason.
package gate

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Engine evaluates tool-call requests against an immutable policy. It
// holds no mutable state and performs no I/O, so a single Engine is
// safe for any number of concurrent Evaluate calls without locking.
type Engine struct {
	cfg      Config
	allowed  map[string]struct{}
	splitter Splitter
	logger   *slog.Logger
}

// New builds an Engine from a policy config. The config is copied and
// validated; the caller's struct is not retained.
func New(cfg *Config, logger *slog.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("gate: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := *cfg
	c.Allowlist = append([]string(nil), cfg.Allowlist...)
	c.KillTargets = append([]string(nil), cfg.KillTargets...)
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("gate: invalid config: %w", err)
	}

	allowed := make(map[string]struct{}, len(c.Allowlist))
	for _, name := range c.Allowlist {
		allowed[name] = struct{}{}
	}

	var splitter Splitter
	switch c.Parser {
	case ParserSyntax:
		splitter = SyntaxSplitter{}
	default:
		splitter = LineSplitter{}
	}

	return &Engine{
		cfg:      c,
		allowed:  allowed,
		splitter: splitter,
		logger:   logger,
	}, nil
}

// Config returns a copy of the engine's effective policy.
func (e *Engine) Config() Config {
	c := e.cfg
	c.Allowlist = append([]string(nil), e.cfg.Allowlist...)
	c.KillTargets = append([]string(nil), e.cfg.KillTargets...)
	return c
}

// Evaluate decides one request. Every sub-command must pass; the first
// failing sub-command determines the block reason. Re-evaluating the
// same request always yields the same verdict.
func (e *Engine) Evaluate(req Request) Decision {
	start := time.Now()
	d := e.evaluate(req)
	d.EvalDuration = time.Since(start)

	e.logger.Debug("gate: evaluated",
		"tool", req.Tool,
		"verdict", d.Verdict.String(),
		"rule", d.Rule,
		"reason", d.Reason,
		"eval_duration", d.EvalDuration,
	)
	return d
}

// Explain evaluates every sub-command without short-circuiting and
// returns the per-segment trace along with the overall decision. The
// overall verdict matches Evaluate for the same request.
func (e *Engine) Explain(req Request) ([]SegmentDecision, Decision) {
	start := time.Now()

	if req.Tool != ToolBash {
		d := allowDecision(RuleTool)
		d.EvalDuration = time.Since(start)
		return nil, d
	}

	segments, err := e.splitter.Split(req.Command)
	if err != nil {
		d := blockDecisionf(RuleParse, "cannot parse command: %v", err)
		d.EvalDuration = time.Since(start)
		return nil, d
	}
	if len(segments) == 0 {
		d := blockDecision(RuleParse, "no command found")
		d.EvalDuration = time.Since(start)
		return nil, d
	}

	trace := make([]SegmentDecision, 0, len(segments))
	overall := allowDecision(RuleAllowlist)
	for _, seg := range segments {
		d := e.evaluateSegment(seg)
		trace = append(trace, SegmentDecision{Segment: seg, Decision: d})
		if d.Blocked() && !overall.Blocked() {
			overall = d
		}
	}
	overall.EvalDuration = time.Since(start)
	return trace, overall
}

// Programs resolves each sub-command of a raw command to its program
// base name, in order.
func (e *Engine) Programs(command string) ([]string, error) {
	segments, err := e.splitter.Split(command)
	if err != nil {
		return nil, err
	}
	programs := make([]string, 0, len(segments))
	for _, seg := range segments {
		inv, ok := ExtractInvocation(seg)
		if !ok {
			continue
		}
		programs = append(programs, inv.Base)
	}
	return programs, nil
}

func (e *Engine) evaluate(req Request) Decision {
	// Only shell execution is governed here; other tools pass through.
	if req.Tool != ToolBash {
		return allowDecision(RuleTool)
	}

	segments, err := e.splitter.Split(req.Command)
	if err != nil {
		return blockDecisionf(RuleParse, "cannot parse command: %v", err)
	}
	if len(segments) == 0 {
		return blockDecision(RuleParse, "no command found")
	}

	for _, seg := range segments {
		if d := e.evaluateSegment(seg); d.Blocked() {
			return d
		}
	}
	return allowDecision(RuleAllowlist)
}

// evaluateSegment dispatches one sub-command to the validator that
// governs it. chmod is checked before the init-script rule so that
// "chmod +x init.sh" is judged as a chmod, not as a script reference.
func (e *Engine) evaluateSegment(segment string) Decision {
	inv, ok := ExtractInvocation(segment)
	if !ok {
		return blockDecision(RuleParse, "no command found")
	}

	switch {
	case inv.Base == "chmod":
		return ValidateChmod(inv.Args)
	case ReferencesScript(inv, e.cfg.InitScript):
		return ValidateInitScript(inv, e.cfg.InitScript)
	case inv.Base == "pkill" || inv.Base == "killall":
		return ValidateProcessKill(inv, e.cfg.KillTargets)
	}

	if _, ok := e.allowed[inv.Base]; !ok {
		return blockDecisionf(RuleAllowlist, "command %q is not in the allowlist", inv.Base)
	}
	return allowDecision(RuleAllowlist)
}
