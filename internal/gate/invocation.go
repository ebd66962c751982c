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
	"unicode"
)

// Invocation is one resolved program call within a sub-command.
type Invocation struct {
	// Program is the first token after environment-assignment prefixes,
	// before base-name reduction. It may carry a path ("./init.sh",
	// "/usr/bin/node").
	Program string

	// Base is the final path segment of Program, the allowlist key
	// ("/usr/bin/node" reduces to "node").
	Base string

	// Args are the remaining tokens, quotes stripped.
	Args []string
}

// ExtractInvocation derives the Invocation for one sub-command. ok is
// false when no program token remains after stripping leading VAR=value
// assignments, in which case the caller blocks (fail closed).
func ExtractInvocation(segment string) (Invocation, bool) {
	tokens := tokenize(segment)

	start := 0
	for start < len(tokens) && isEnvAssignment(tokens[start]) {
		start++
	}
	tokens = tokens[start:]

	if len(tokens) == 0 {
		return Invocation{}, false
	}

	prog := tokens[0]
	return Invocation{
		Program: prog,
		Base:    baseName(prog),
		Args:    tokens[1:],
	}, true
}

// baseName reduces a program token to its final path segment.
// "/usr/local/bin/node" → "node", "./init.sh" → "init.sh". A token with
// no separator is returned unchanged.
func baseName(token string) string {
	if idx := strings.LastIndexByte(token, '/'); idx >= 0 {
		return token[idx+1:]
	}
	return token
}

// isEnvAssignment returns true if token looks like VAR=value.
func isEnvAssignment(token string) bool {
	eq := strings.IndexByte(token, '=')
	if eq <= 0 {
		return false
	}
	name := token[:eq]
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	// First char must be letter or underscore.
	first := rune(name[0])
	return unicode.IsLetter(first) || first == '_'
}

// tokenize splits a sub-command into whitespace-separated tokens,
// stripping quotes and resolving backslash escapes. A quoted region
// keeps its interior whitespace, so "pkill -f 'node server.js'" yields
// the single target token "node server.js".
func tokenize(cmd string) []string {
	var tokens []string
	var cur strings.Builder
	i := 0

	for i < len(cmd) {
		ch := cmd[i]

		// Skip whitespace between tokens.
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
			i++
			continue
		}

		// Single-quoted string: everything literal until closing quote.
		if ch == '\'' {
			i++
			for i < len(cmd) && cmd[i] != '\'' {
				cur.WriteByte(cmd[i])
				i++
			}
			if i < len(cmd) {
				i++ // skip closing quote
			}
			continue
		}

		// Double-quoted string: backslash escapes work inside.
		if ch == '"' {
			i++
			for i < len(cmd) && cmd[i] != '"' {
				if cmd[i] == '\\' && i+1 < len(cmd) {
					i++
					cur.WriteByte(cmd[i])
					i++
					continue
				}
				cur.WriteByte(cmd[i])
				i++
			}
			if i < len(cmd) {
				i++ // skip closing quote
			}
			continue
		}

		// Backslash escape outside quotes.
		if ch == '\\' && i+1 < len(cmd) {
			i++
			cur.WriteByte(cmd[i])
			i++
			continue
		}

		cur.WriteByte(ch)
		i++
	}

	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens
}
