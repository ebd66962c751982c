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
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Parser selects the Splitter implementation.
const (
	// ParserLine is the default quote-aware scan splitter.
	ParserLine = "line"

	// ParserSyntax parses the command with a real bash grammar and
	// blocks anything it cannot parse.
	ParserSyntax = "syntax"
)

// DefaultInitScript is the script name governed by the direct-execution
// rule when the config does not name one.
const DefaultInitScript = "init.sh"

// Config is the policy the engine enforces. It is loaded once at
// process start and never mutated afterward; there is no runtime
// reload.
type Config struct {
	// Version identifies the schema; currently "1".
	Version string `yaml:"version"`

	// Allowlist holds the permitted program base names. Membership is
	// exact string match; no argument inspection for ordinary entries.
	Allowlist []string `yaml:"allowlist"`

	// KillTargets are the dev-process identifiers a pkill target must
	// contain. An empty list refuses every pkill.
	KillTargets []string `yaml:"kill_targets"`

	// InitScript is the script filename under the direct-execution
	// rule. Defaults to "init.sh".
	InitScript string `yaml:"init_script"`

	// Parser selects the splitter: "line" (default) or "syntax".
	Parser string `yaml:"parser"`
}

// LoadConfig reads and validates a policy file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gate: read policy file: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("gate: policy file %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig parses policy YAML, applies defaults, and validates.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse policy yaml: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// normalize fills defaulted fields in place.
func (c *Config) normalize() {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.InitScript == "" {
		c.InitScript = DefaultInitScript
	}
	if c.Parser == "" {
		c.Parser = ParserLine
	}
}

// Validate checks the config for shapes the engine refuses to run with.
func (c *Config) Validate() error {
	if c.Version != "1" {
		return fmt.Errorf("unsupported config version %q", c.Version)
	}
	if len(c.Allowlist) == 0 {
		return fmt.Errorf("allowlist is empty")
	}

	seen := make(map[string]struct{}, len(c.Allowlist))
	for _, name := range c.Allowlist {
		if err := checkBaseName("allowlist", name); err != nil {
			return err
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate allowlist entry %q", name)
		}
		seen[name] = struct{}{}
	}

	seenTargets := make(map[string]struct{}, len(c.KillTargets))
	for _, target := range c.KillTargets {
		if strings.TrimSpace(target) == "" {
			return fmt.Errorf("kill_targets contains an empty entry")
		}
		if _, dup := seenTargets[target]; dup {
			return fmt.Errorf("duplicate kill_targets entry %q", target)
		}
		seenTargets[target] = struct{}{}
	}

	if err := checkBaseName("init_script", c.InitScript); err != nil {
		return err
	}

	if c.Parser != ParserLine && c.Parser != ParserSyntax {
		return fmt.Errorf("unknown parser %q (want %q or %q)", c.Parser, ParserLine, ParserSyntax)
	}
	return nil
}

// checkBaseName rejects entries that are not plain base names.
func checkBaseName(field, name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s contains an empty entry", field)
	}
	if strings.ContainsAny(name, "/ \t") {
		return fmt.Errorf("%s entry %q must be a base name without paths or spaces", field, name)
	}
	return nil
}
