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
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// SyntaxSplitter splits commands with a real bash grammar instead of
// the line scan. Statements joined by &&, ||, | and newlines/semicolons
// become separate segments; anything the grammar rejects becomes a
// split error, which the engine turns into a block. Constructs the
// validators do not understand (subshells, substitutions) are printed
// back as-is, so their opening token fails the allowlist downstream.
type SyntaxSplitter struct{}

// Split implements Splitter.
func (SyntaxSplitter) Split(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	// The parser is not safe for concurrent use, so each call gets its
	// own. Parsing a single command line is cheap.
	parser := syntax.NewParser(syntax.KeepComments(false), syntax.Variant(syntax.LangBash))
	file, err := parser.Parse(strings.NewReader(raw), "")
	if err != nil {
		return nil, fmt.Errorf("parse command: %w", err)
	}

	printer := syntax.NewPrinter()
	var segments []string
	for _, stmt := range file.Stmts {
		collectSegments(printer, stmt, &segments)
	}
	return segments, nil
}

// collectSegments descends through pipeline and logical operators,
// appending the source text of each leaf statement.
func collectSegments(printer *syntax.Printer, stmt *syntax.Stmt, out *[]string) {
	if stmt == nil || stmt.Cmd == nil {
		return
	}

	if bin, ok := stmt.Cmd.(*syntax.BinaryCmd); ok {
		switch bin.Op {
		case syntax.AndStmt, syntax.OrStmt, syntax.Pipe, syntax.PipeAll:
			collectSegments(printer, bin.X, out)
			collectSegments(printer, bin.Y, out)
			return
		}
	}

	var sb strings.Builder
	if err := printer.Print(&sb, stmt.Cmd); err != nil {
		return
	}
	seg := strings.TrimSpace(sb.String())
	if seg != "" {
		*out = append(*out, seg)
	}
}
