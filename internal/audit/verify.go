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

package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ChainBreak describes the first verification failure found in an audit file.
type ChainBreak struct {
	Line    int    `json:"line"`
	EventID string `json:"event_id,omitempty"`
	Detail  string `json:"detail"`
}

// VerifyResult is the outcome of verifying one audit file.
type VerifyResult struct {
	Events    int         `json:"events"`
	Continued bool        `json:"continued"`
	HeadHash  string      `json:"head_hash,omitempty"`
	LastHash  string      `json:"last_hash,omitempty"`
	Break     *ChainBreak `json:"break,omitempty"`
}

// OK reports whether the file verified cleanly.
func (r *VerifyResult) OK() bool {
	return r.Break == nil
}

// VerifyChain walks one audit file, recomputes every event hash, and checks
// each prev_hash link. It stops at the first break. A chain continuation
// header on the first line supplies the expected head link; without one, the
// first event's own prev_hash is taken as the head (a fresh sink appends to
// the daily file without a header, so the head link can only be checked
// against the anchor or the previous file).
func VerifyChain(path string) (*VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	defer f.Close()

	result := &VerifyResult{}
	var (
		prev    string
		prevSet bool
	)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if lineNo == 1 {
			var header struct {
				ChainContinue *string `json:"chain_continue"`
			}
			if err := json.Unmarshal([]byte(line), &header); err == nil && header.ChainContinue != nil {
				result.Continued = true
				prev = *header.ChainContinue
				prevSet = true
				result.HeadHash = prev
				continue
			}
		}

		var event Event
		if err := json.Unmarshal([]byte(line), &event); err != nil || event.ID == "" {
			result.Break = &ChainBreak{Line: lineNo, Detail: "malformed event line"}
			return result, nil
		}

		if !prevSet {
			prev = event.PrevHash
			prevSet = true
			result.HeadHash = prev
		}
		if event.PrevHash != prev {
			result.Break = &ChainBreak{
				Line:    lineNo,
				EventID: event.ID,
				Detail:  fmt.Sprintf("prev_hash %q does not match preceding hash %q", event.PrevHash, prev),
			}
			return result, nil
		}

		ok, err := event.VerifyHash()
		if err != nil {
			return nil, fmt.Errorf("audit: verify line %d: %w", lineNo, err)
		}
		if !ok {
			result.Break = &ChainBreak{Line: lineNo, EventID: event.ID, Detail: "hash does not match event content"}
			return result, nil
		}

		result.Events++
		result.LastHash = event.Hash
		prev = event.Hash
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan %s: %w", path, err)
	}

	return result, nil
}
