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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ReadEventsFromOffset reads audit events from path starting at the given
// byte offset. Returns the parsed events, the new file offset, and any error.
// If the file has been truncated (offset > size), it resets to the beginning.
// Partial (unterminated) lines are not consumed: the offset stays before them
// so they can be re-read once complete. Lines that are not events, such as
// chain continuation headers, are skipped.
func ReadEventsFromOffset(path string, offset int64) ([]Event, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("audit: stat %s: %w", path, err)
	}
	if offset > info.Size() {
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("audit: seek %s: %w", path, err)
	}

	reader := bufio.NewReader(f)
	cursor := offset
	events := make([]Event, 0, 8)

	for {
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, cursor, fmt.Errorf("audit: read line: %w", err)
		}

		// EOF with no data: done.
		if line == "" && errors.Is(err, io.EOF) {
			return events, cursor, nil
		}

		// Partial line (no trailing newline): don't consume it.
		if !strings.HasSuffix(line, "\n") {
			return events, cursor, nil
		}

		cursor += int64(len(line))
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if errors.Is(err, io.EOF) {
				return events, cursor, nil
			}
			continue
		}

		var evt Event
		if unmarshalErr := json.Unmarshal([]byte(trimmed), &evt); unmarshalErr == nil && evt.ID != "" {
			events = append(events, evt)
		}

		if errors.Is(err, io.EOF) {
			return events, cursor, nil
		}
	}
}

// ReadEvents reads every event in an audit file.
func ReadEvents(path string) ([]Event, error) {
	events, _, err := ReadEventsFromOffset(path, 0)
	return events, err
}

// ListFiles returns every audit file in dir in chain order: daily files by
// date, sequenced rotations after their base file. Returns os.ErrNotExist
// when the directory holds no audit files.
func ListFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("audit: read dir %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("audit: no audit files in %s: %w", dir, os.ErrNotExist)
	}

	sort.Slice(names, func(i, j int) bool {
		di, si := splitSequence(names[i])
		dj, sj := splitSequence(names[j])
		if di != dj {
			return di < dj
		}
		return si < sj
	})

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}
	return paths, nil
}

// LatestFile returns the path of the most recent audit file in dir.
func LatestFile(dir string) (string, error) {
	files, err := ListFiles(dir)
	if err != nil {
		return "", err
	}
	return files[len(files)-1], nil
}

// splitSequence splits "audit-hook-YYYY-MM-DD.pN.jsonl" into its date part and
// sequence number. Base daily files sort as sequence 0.
func splitSequence(name string) (string, int) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".jsonl")
	date, seqPart, found := strings.Cut(trimmed, ".p")
	if !found {
		return trimmed, 0
	}
	seq := 0
	for _, r := range seqPart {
		if r < '0' || r > '9' {
			return date, 0
		}
		seq = seq*10 + int(r-'0')
	}
	return date, seq
}
