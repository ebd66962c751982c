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

import "strings"

// ValidateProcessKill restricts process-termination commands to
// development server processes. killall is refused outright since it
// matches by exact process name across the whole host; pkill must name
// a target containing one of the configured dev-process identifiers.
// Flag tokens (including -f, which only widens the match to the full
// command line) are not part of the target pattern.
func ValidateProcessKill(inv Invocation, killTargets []string) Decision {
	if inv.Base == "killall" {
		return blockDecision(RuleProcessKill,
			"killall is not allowed; use pkill with a dev-process target")
	}

	var parts []string
	for _, a := range inv.Args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		parts = append(parts, a)
	}
	pattern := strings.Join(parts, " ")
	if pattern == "" {
		return blockDecision(RuleProcessKill, "pkill requires a target pattern")
	}

	for _, target := range killTargets {
		if target != "" && strings.Contains(pattern, target) {
			return allowDecision(RuleProcessKill)
		}
	}
	return blockDecisionf(RuleProcessKill,
		"process termination target %q not in dev-process allowlist", pattern)
}
