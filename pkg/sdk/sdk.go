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

package sdk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/holt/palisade/internal/audit"
	"github.com/holt/palisade/internal/gate"
)

// contextKey is an unexported type for context keys, preventing collisions
// with keys from other packages.
type contextKey string

// SessionKey is the context key for the harness session identifier.
// When set, evaluations carry the session into audit events.
const SessionKey contextKey = "palisade-session"

// ToolFunc is a runtime tool function wrapped by Palisade policy checks.
type ToolFunc func(ctx context.Context, params map[string]any) (any, error)

// AuditSink receives audit events emitted by SDK tool wrappers.
// Implemented by audit.JSONLSink.
type AuditSink interface {
	// Write records a single audit event.
	Write(event audit.Event) error
}

// SDK wraps the gate engine for agent runtime integrations.
type SDK struct {
	engine *gate.Engine
	sink   AuditSink
	logger *slog.Logger
}

// NewSDK creates a new SDK from a policy file path.
func NewSDK(policyPath string) (*SDK, error) {
	cfg, err := gate.LoadConfig(policyPath)
	if err != nil {
		return nil, fmt.Errorf("sdk: load policy: %w", err)
	}

	eng, err := gate.New(cfg, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("sdk: create engine: %w", err)
	}

	return &SDK{
		engine: eng,
		logger: slog.Default(),
	}, nil
}

// SetAuditSink routes every Wrap evaluation into sink. Preflight checks
// are what-if queries and are never audited.
func (s *SDK) SetAuditSink(sink AuditSink) {
	s.sink = sink
}

// Wrap returns a policy-enforced wrapper for a tool function. Bash-class
// tool inputs are evaluated against the policy before the function runs;
// other tools pass through. A blocked command returns *ErrBlocked without
// calling fn.
func (s *SDK) Wrap(toolName string, fn ToolFunc) ToolFunc {
	return func(ctx context.Context, params map[string]any) (any, error) {
		start := time.Now()
		req := buildRequest(ctx, toolName, params)
		decision := s.engine.Evaluate(req)

		s.logger.Info("sdk: tool evaluated",
			"tool", toolName,
			"session", req.Session,
			"verdict", decision.Verdict.String(),
			"rule", decision.Rule,
			"eval_duration", decision.EvalDuration,
		)
		s.audit(req, decision)

		if decision.Blocked() {
			return nil, &ErrBlocked{Tool: toolName, Rule: decision.Rule, Reason: decision.Reason}
		}

		result, err := fn(ctx, params)
		s.logger.Info("sdk: tool completed",
			"tool", toolName,
			"total_duration", time.Since(start),
			"error", err,
		)
		return result, err
	}
}

// Preflight checks whether a tool call would be allowed without executing
// it. Agents can use this to plan around policy restrictions before
// attempting a command that would be refused.
func (s *SDK) Preflight(ctx context.Context, toolName string, params map[string]any) PreflightResult {
	req := buildRequest(ctx, toolName, params)
	decision := s.engine.Evaluate(req)

	return PreflightResult{
		Allowed:  !decision.Blocked(),
		Verdict:  decision.Verdict.String(),
		Rule:     decision.Rule,
		Reason:   decision.Reason,
		EvalTime: decision.EvalDuration,
	}
}

// PreflightResult is the outcome of a preflight policy check.
type PreflightResult struct {
	// Allowed is true if the tool call would proceed.
	Allowed bool

	// Verdict is the wire form of the decision (allow or block).
	Verdict string

	// Rule names the check that decided.
	Rule string

	// Reason is the human-readable explanation for a block.
	Reason string

	// EvalTime is how long evaluation took.
	EvalTime time.Duration
}

// audit writes the decision to the configured sink. Sink failures degrade
// to a log line; the decision stands either way.
func (s *SDK) audit(req gate.Request, d gate.Decision) {
	if s.sink == nil {
		return
	}

	event := audit.Event{
		ID:         audit.NewEventID(),
		Timestamp:  time.Now().UTC(),
		Session:    req.Session,
		Tool:       req.Tool,
		Command:    req.Command,
		Verdict:    d.Verdict.String(),
		Reason:     d.Reason,
		Rule:       d.Rule,
		Mode:       "enforce",
		EvalMicros: d.EvalDuration.Microseconds(),
	}
	if err := s.sink.Write(event); err != nil {
		s.logger.Error("sdk: write audit event", "error", err)
	}
}

// buildRequest creates a gate.Request from context and tool params.
func buildRequest(ctx context.Context, toolName string, params map[string]any) gate.Request {
	if params == nil {
		params = make(map[string]any)
	}

	command, _ := params["command"].(string)
	return gate.Request{
		Tool:    toolName,
		Command: command,
		Session: sessionFromContext(ctx),
		Raw:     params,
	}
}

// sessionFromContext returns the session identifier carried by ctx, or
// the empty string.
func sessionFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(SessionKey).(string)
	return value
}
