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
	"log/slog"
	"os"
	"strings"

	"github.com/holt/palisade/internal/gate"
	"github.com/holt/palisade/policies"
)

// defaultConfigFile is the policy file looked up in the working directory
// when neither --config nor PALISADE_CONFIG names one.
const defaultConfigFile = "palisade.yaml"

// embeddedSource labels decisions made against the built-in standard
// profile, so status output never claims a file that does not exist.
const embeddedSource = "embedded:standard"

// resolvePolicy returns the policy bytes and a label for where they came
// from. Resolution order: --config flag, $PALISADE_CONFIG, ./palisade.yaml,
// then the embedded standard profile.
func resolvePolicy(configPath string) ([]byte, string, error) {
	if path := strings.TrimSpace(configPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("cli: read policy file %s: %w", path, err)
		}
		return data, path, nil
	}

	if path := strings.TrimSpace(os.Getenv("PALISADE_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("cli: read policy file %s (from PALISADE_CONFIG): %w", path, err)
		}
		return data, path, nil
	}

	data, err := os.ReadFile(defaultConfigFile)
	if err == nil {
		return data, defaultConfigFile, nil
	}
	if !os.IsNotExist(err) {
		return nil, "", fmt.Errorf("cli: read policy file %s: %w", defaultConfigFile, err)
	}

	data, err = policies.Profile("standard")
	if err != nil {
		return nil, "", fmt.Errorf("cli: load embedded standard profile: %w", err)
	}
	return data, embeddedSource, nil
}

// loadEngine resolves the policy and builds an engine from it. The
// returned source is the path the policy came from, or embeddedSource.
func loadEngine(configPath string, logger *slog.Logger) (*gate.Engine, string, error) {
	data, source, err := resolvePolicy(configPath)
	if err != nil {
		return nil, "", err
	}

	cfg, err := gate.ParseConfig(data)
	if err != nil {
		return nil, "", fmt.Errorf("cli: policy %s: %w", source, err)
	}

	eng, err := gate.New(cfg, logger)
	if err != nil {
		return nil, "", fmt.Errorf("cli: policy %s: %w", source, err)
	}
	return eng, source, nil
}

// expandHome resolves a leading ~/ against the current user's home
// directory.
func expandHome(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("cli: path is empty")
	}
	if !strings.HasPrefix(trimmed, "~/") && trimmed != "~" {
		return trimmed, nil
	}

	home, err := homeDir()
	if err != nil {
		return "", err
	}
	if trimmed == "~" {
		return home, nil
	}
	return home + trimmed[1:], nil
}

func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cli: resolve home directory: %w", err)
	}
	if strings.TrimSpace(home) == "" {
		return "", fmt.Errorf("cli: home directory is empty")
	}
	return home, nil
}
