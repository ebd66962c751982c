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
	"strings"
)

// Splitter breaks a raw command into its top-level sub-commands. The
// engine evaluates each sub-command independently, so a splitter that
// over-splits is safe while one that under-splits is not.
type Splitter interface {
	Split(raw string) ([]string, error)
}

// LineSplitter is the default splitter: a quote-aware left-to-right scan
// that divides on the shell composition operators &&, ||, | and ;.
// Newlines and a single & are treated as separators too, since either
// would otherwise smuggle a second command into the first one's argument
// list. Escaped or quoted delimiters are not split on.
//
// This is intentionally not a full bash parser. Substitution syntax like
// $(...) is left in place, which makes its opening token fail the
// allowlist downstream.
type LineSplitter struct{}

// Split implements Splitter. It never returns an error; unparseable
// input simply yields segments that fail validation downstream.
func (LineSplitter) Split(raw string) ([]string, error) {
	return splitCompound(raw), nil
}

// splitCompound splits a shell command on unquoted separators, returning
// each segment trimmed. Empty segments (e.g. around a trailing ";") are
// discarded.
func splitCompound(cmd string) []string {
	var segments []string
	var cur strings.Builder
	i := 0
	inSingle := false
	inDouble := false
	escaped := false

	flush := func() {
		s := strings.TrimSpace(cur.String())
		if s != "" {
			segments = append(segments, s)
		}
		cur.Reset()
	}

	for i < len(cmd) {
		ch := cmd[i]

		if escaped {
			cur.WriteByte(ch)
			escaped = false
			i++
			continue
		}

		if ch == '\\' && !inSingle {
			cur.WriteByte(ch)
			escaped = true
			i++
			continue
		}

		if ch == '\'' && !inDouble {
			inSingle = !inSingle
			cur.WriteByte(ch)
			i++
			continue
		}

		if ch == '"' && !inSingle {
			inDouble = !inDouble
			cur.WriteByte(ch)
			i++
			continue
		}

		if inSingle || inDouble {
			cur.WriteByte(ch)
			i++
			continue
		}

		// Check for && and ||.
		if i+1 < len(cmd) {
			two := cmd[i : i+2]
			if two == "&&" || two == "||" {
				flush()
				i += 2
				continue
			}
		}

		// Single-character separators.
		if ch == ';' || ch == '|' || ch == '&' || ch == '\n' {
			flush()
			i++
			continue
		}

		cur.WriteByte(ch)
		i++
	}

	flush()
	return segments
}
