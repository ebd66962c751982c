// Copyright 2026 The Palisade Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package gate

import (
	"encoding/json"
	"fmt"
)

// hookInput is the JSON the agent harness sends on stdin for
// pre-tool-use hooks.
type hookInput struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	SessionID string         `json:"session_id"`
}

// HookResponse is the JSON answer the harness expects on stdout. Any
// decision other than "block" is treated as allow, so allow responses
// omit the reason.
type HookResponse struct {
	Decision Verdict `json:"decision"`
	Reason   string  `json:"reason,omitempty"`
}

// HookResponseFor converts an engine decision into the wire response.
func HookResponseFor(d Decision) HookResponse {
	resp := HookResponse{Decision: d.Verdict}
	if d.Blocked() {
		resp.Reason = d.Reason
	}
	return resp
}

// BlockResponse builds a block response for input that could not be
// evaluated at all.
func BlockResponse(reason string) HookResponse {
	return HookResponse{Decision: VerdictBlock, Reason: reason}
}

// ParseHookInput decodes one harness hook payload into a Request. It
// fails on malformed JSON, a missing tool name, or a command that is
// not a string; callers answer those failures with a block.
func ParseHookInput(data []byte) (Request, error) {
	var in hookInput
	if err := json.Unmarshal(data, &in); err != nil {
		return Request{}, fmt.Errorf("gate: decode hook input: %w", err)
	}
	if in.ToolName == "" {
		return Request{}, fmt.Errorf("gate: hook input has no tool_name")
	}
	req := Request{
		Tool:    in.ToolName,
		Session: in.SessionID,
		Raw:     in.ToolInput,
	}
	if raw, ok := in.ToolInput["command"]; ok {
		s, ok := raw.(string)
		if !ok {
			return Request{}, fmt.Errorf("gate: tool_input command is %T, want string", raw)
		}
		req.Command = s
	}
	return req, nil
}
