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
	"regexp"
	"strings"
)

var (
	// chmodExecMode is the only permitted mode shape: an optional
	// subject set from {u,g,o,a} granting execute, e.g. +x, u+x, ug+x.
	chmodExecMode = regexp.MustCompile(`^[ugoa]*\+x$`)

	// chmodOctal matches numeric modes like 777 or 0755.
	chmodOctal = regexp.MustCompile(`^[0-7]+$`)

	// chmodSymbolic matches any other symbolic mode expression (revoke,
	// set, non-execute permissions, clause lists).
	chmodSymbolic = regexp.MustCompile(`^[ugoa]*[+=-][rwxXst,+=ugoa-]*$`)
)

// ValidateChmod checks a chmod invocation against the execute-only grant
// policy: no recursion, exactly one [ugoa]*+x mode, at least one target.
// args are the tokens following the program name.
func ValidateChmod(args []string) Decision {
	for _, a := range args {
		if a == "-R" || a == "--recursive" {
			return blockDecision(RuleChmod, "recursive chmod not allowed")
		}
	}

	modes := 0
	targets := 0
	offending := ""
	for _, a := range args {
		switch {
		case chmodExecMode.MatchString(a):
			modes++
		case chmodOctal.MatchString(a) || chmodSymbolic.MatchString(a):
			if offending == "" {
				offending = a
			}
		case strings.HasPrefix(a, "-"):
			// Unrelated flag, ignored.
		default:
			targets++
		}
	}

	switch {
	case offending != "":
		return blockDecisionf(RuleChmod, "disallowed chmod mode %q", offending)
	case modes == 0:
		return blockDecision(RuleChmod, "missing mode specifier")
	case modes > 1:
		return blockDecision(RuleChmod, "multiple mode specifiers")
	case targets == 0:
		return blockDecision(RuleChmod, "missing target file")
	}
	return allowDecision(RuleChmod)
}
