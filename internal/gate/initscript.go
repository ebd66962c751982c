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

// ReferencesScript reports whether the invocation mentions the named
// script at all: as the program token or as any argument, either the
// bare name or a path ending in it. A true result puts the invocation
// under the init-script rule's jurisdiction.
func ReferencesScript(inv Invocation, script string) bool {
	if isScriptToken(inv.Program, script) {
		return true
	}
	for _, a := range inv.Args {
		if isScriptToken(a, script) {
			return true
		}
	}
	return false
}

// ValidateInitScript permits only direct path execution of the script:
// the program token must itself be a path ending in the script name
// ("./init.sh", "/srv/app/init.sh", "../env/init.sh"). Handing the
// script to an interpreter ("bash init.sh") or referencing it from
// another command's argument list is refused, as is the bare name with
// no path prefix (which would resolve through PATH).
func ValidateInitScript(inv Invocation, script string) Decision {
	if strings.HasSuffix(inv.Program, "/"+script) {
		return allowDecision(RuleInitScript)
	}
	return blockDecision(RuleInitScript,
		script+" must be executed directly, not via an interpreter")
}

// isScriptToken matches the bare script name or any path ending in it.
func isScriptToken(token, script string) bool {
	return token == script || strings.HasSuffix(token, "/"+script)
}
