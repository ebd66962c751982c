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
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// readLastLineHash reads the last non-empty line of a JSONL file and extracts
// the chain head it carries: the "hash" field of an event, or "chain_continue"
// when the file ends on a rotation header. Returns the hash and true if
// successful.
func readLastLineHash(path string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	var lastLine string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			lastLine = line
		}
	}
	if lastLine == "" {
		return "", false
	}
	var partial struct {
		Hash          string `json:"hash"`
		ChainContinue string `json:"chain_continue"`
	}
	if err := json.Unmarshal([]byte(lastLine), &partial); err != nil {
		return "", false
	}
	if partial.Hash != "" {
		return partial.Hash, true
	}
	return partial.ChainContinue, partial.ChainContinue != ""
}

// countLinesInDir counts non-empty lines across all .jsonl files in dir
// using streaming IO to avoid loading entire files into memory.
func countLinesInDir(dir string) int64 {
	var count int64
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		f, err := os.Open(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if len(scanner.Bytes()) > 0 {
				count++
			}
		}
		_ = f.Close()
	}
	return count
}

// JSONLSink is an append-only JSONL audit sink with hash chaining.
// Events land in daily files named "audit-hook-YYYY-MM-DD.jsonl".
type JSONLSink struct {
	mu sync.Mutex

	dir            string
	file           *os.File
	currentFile    string
	currentSize    int64
	lastHash       string
	eventCount     int64
	fsync          bool
	rotateSize     int64
	anchorInterval int
	closed         bool
	logger         *slog.Logger
}

// NewJSONLSink creates a JSONL-backed audit sink in dir. If the directory
// already holds a trail, the chain head is recovered from the anchor file,
// falling back to a line count when the anchor is missing or untrusted.
func NewJSONLSink(dir string, opts ...SinkOption) (*JSONLSink, error) {
	if dir == "" {
		return nil, fmt.Errorf("audit: sink dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("audit: create sink dir: %w", err)
	}

	cfg := defaultSinkConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	sink := &JSONLSink{
		dir:            dir,
		fsync:          cfg.fsync,
		rotateSize:     cfg.rotateSize,
		anchorInterval: cfg.anchorInterval,
		logger:         logger,
	}

	// Recover state from the anchor file if it exists.
	anchorPath := filepath.Join(dir, anchorFilename)
	anchorTrusted := false
	if data, err := os.ReadFile(anchorPath); err == nil {
		var anchor ChainAnchor
		if err := json.Unmarshal(data, &anchor); err == nil {
			// Trust the anchor only if its hash matches the last line of
			// the log file it points at.
			if anchor.File != "" {
				if lastHash, ok := readLastLineHash(filepath.Join(dir, anchor.File)); ok {
					if lastHash == anchor.Hash {
						anchorTrusted = true
					} else {
						logger.Warn("audit: anchor hash does not match log tail, falling back to line count",
							"anchor_hash", anchor.Hash,
							"file_hash", lastHash,
							"file", anchor.File,
						)
					}
				}
			}
			if anchorTrusted {
				sink.lastHash = anchor.Hash
				sink.eventCount = anchor.EventCount
				logger.Info("audit: recovered state from anchor",
					"event_count", anchor.EventCount,
					"hash", anchor.Hash,
				)
			}
		}
	}
	if !anchorTrusted {
		// No trusted anchor. Recover the chain head from the tail of the
		// newest log file so short-lived writers keep one continuous chain,
		// and count non-empty lines to recover an approximate eventCount.
		if latest, err := LatestFile(dir); err == nil {
			if lastHash, ok := readLastLineHash(latest); ok {
				sink.lastHash = lastHash
			}
		}
		sink.eventCount = countLinesInDir(dir)
		if sink.eventCount > 0 {
			logger.Info("audit: recovered state from log files",
				"event_count", sink.eventCount,
				"hash", sink.lastHash,
			)
		}
	}

	if err := sink.openNewFileLocked(false, ""); err != nil {
		return nil, err
	}
	return sink, nil
}

// NewEventID returns a new ULID event identifier.
func NewEventID() string {
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), rand.Reader)
	if err == nil {
		return id.String()
	}

	slog.Error("audit: generate event id", "error", err)
	return ulid.Make().String()
}

// Write appends a single event to the JSONL audit trail.
func (s *JSONLSink) Write(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("audit: write on closed sink")
	}
	if event.ID == "" {
		event.ID = NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	event.PrevHash = s.lastHash
	if err := event.ComputeHash(); err != nil {
		return fmt.Errorf("audit: compute hash: %w", err)
	}

	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: marshal event: %w", err)
	}
	line = append(line, '\n')

	if s.shouldRotateLocked(len(line)) || s.dayChangedLocked() {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}
	if _, err := s.file.Write(line); err != nil {
		return fmt.Errorf("audit: write event: %w", err)
	}

	s.currentSize += int64(len(line))

	if s.fsync {
		if err := s.file.Sync(); err != nil {
			return fmt.Errorf("audit: fsync event: %w", err)
		}
	}

	s.lastHash = event.Hash
	s.eventCount++
	if s.shouldAnchorLocked() {
		if err := s.writeAnchorLocked(event); err != nil {
			return err
		}
	}

	s.logger.Debug("audit: wrote event",
		"event_id", event.ID,
		"event_count", s.eventCount,
		"file", s.currentFile,
	)

	return nil
}

// Flush flushes pending data to disk.
func (s *JSONLSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: flush sink: %w", err)
	}
	return nil
}

// Close flushes and closes the sink.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.file == nil {
		return nil
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: close sync: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("audit: close sink file: %w", err)
	}
	s.file = nil
	return nil
}

// CurrentFile returns the path of the file the sink is writing to.
func (s *JSONLSink) CurrentFile() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filepath.Join(s.dir, s.currentFile)
}

func (s *JSONLSink) filePath() string {
	return filepath.Join(s.dir, s.currentFile)
}
