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
	"fmt"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorDim    = "\033[2m"
	colorRed    = "\033[1;31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[1;33m"
)

// noColor returns true when the NO_COLOR environment variable is set.
func noColor() bool {
	_, ok := os.LookupEnv("NO_COLOR")
	return ok
}

// isTerminal reports whether f is attached to a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// stderrSupportsColor returns true when stderr supports ANSI colors.
// Respects the NO_COLOR convention (https://no-color.org/).
func stderrSupportsColor() bool {
	if noColor() {
		return false
	}
	return isTerminal(os.Stderr)
}

// formatBlockMessage returns a branded block message suitable for stderr.
// The machine-readable response goes to stdout; this line is for the
// human watching the session.
func formatBlockMessage(command, reason string) string {
	if stderrSupportsColor() {
		return fmt.Sprintf("🛡️ %sPalisade blocked: %s%s\n   %s%s%s\n",
			colorRed, command, colorReset,
			colorDim, reason, colorReset,
		)
	}
	return fmt.Sprintf("🛡️ Palisade blocked: %s\n   %s\n", command, reason)
}
