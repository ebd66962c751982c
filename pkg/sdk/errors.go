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

// Package sdk provides the public API for embedding Palisade's command
// gate in agent runtimes.
//
// The SDK wraps tool functions with a pre-execution policy check. When a
// wrapped function is called with a Bash-class tool input, Palisade
// evaluates the shell command against the loaded policy and either lets
// the call proceed or returns an error without executing it.
//
// Basic usage:
//
//	s, err := sdk.NewSDK("palisade.yaml")
//	safeBash := s.Wrap("Bash", runBash)
//	result, err := safeBash(ctx, map[string]any{"command": "git push"})
//	// If blocked: err is *ErrBlocked
package sdk

import "fmt"

// ErrBlocked is returned when a command is refused by policy.
// It carries the rule that decided and a human-readable reason.
type ErrBlocked struct {
	// Tool is the harness tool whose call was refused (e.g. "Bash").
	Tool string

	// Rule names the check that produced the block.
	Rule string

	// Reason is the human-readable explanation of the refusal.
	Reason string
}

// Error implements the error interface.
func (e *ErrBlocked) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("palisade: blocked %q by rule %q: %s", e.Tool, e.Rule, e.Reason)
	}
	return fmt.Sprintf("palisade: blocked %q: %s", e.Tool, e.Reason)
}
