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

// Package audit records gate decisions in a tamper-evident JSONL trail.
// Every event carries the hash of its predecessor, so removing, editing,
// or reordering a line breaks the chain at a verifiable point.
package audit

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Event is one recorded gate decision.
type Event struct {
	// ID is a ULID, sortable by creation time.
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`

	// Session is the agent session identifier, when the hook input carried one.
	Session string `json:"session,omitempty"`

	Tool    string `json:"tool"`
	Command string `json:"command,omitempty"`

	Verdict string `json:"verdict"`
	Reason  string `json:"reason,omitempty"`
	Rule    string `json:"rule,omitempty"`

	// Mode records whether the decision was enforced or only observed.
	Mode string `json:"mode"`

	EvalMicros int64 `json:"eval_us,omitempty"`

	// PrevHash is the hash of the previous event in the chain.
	// Empty for the first event of a chain.
	PrevHash string `json:"prev_hash,omitempty"`

	// Hash is "sha256:" + hex over PrevHash plus the event's canonical
	// JSON serialized with Hash cleared.
	Hash string `json:"hash,omitempty"`
}

// ComputeHash fills in the event's Hash from its content and PrevHash.
func (e *Event) ComputeHash() error {
	e.Hash = ""
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal event for hash: %w", err)
	}

	payload := append([]byte(e.PrevHash), data...)
	sum := sha256.Sum256(payload)
	e.Hash = "sha256:" + hex.EncodeToString(sum[:])
	return nil
}

// VerifyHash recomputes the event's hash and reports whether it matches
// the stored one. The comparison is constant-time.
func (e *Event) VerifyHash() (bool, error) {
	expected := e.Hash
	if expected == "" {
		return false, nil
	}

	if err := e.ComputeHash(); err != nil {
		e.Hash = expected
		return false, err
	}
	actual := e.Hash
	e.Hash = expected

	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1, nil
}

// ChainAnchor is a periodically persisted checkpoint of the chain head.
// It lets a restarted sink resume the chain without rescanning every file.
type ChainAnchor struct {
	EventID    string    `json:"event_id"`
	Hash       string    `json:"hash"`
	EventCount int64     `json:"event_count"`
	Timestamp  time.Time `json:"ts"`
	File       string    `json:"file"`
}
