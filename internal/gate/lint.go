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

// LintSeverity ranks lint findings.
type LintSeverity int

const (
	LintInfo LintSeverity = iota
	LintWarning
	LintError
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "info"
	case LintWarning:
		return "warning"
	case LintError:
		return "error"
	default:
		return "unknown"
	}
}

// LintFinding is a single lint diagnostic.
type LintFinding struct {
	File     string
	Severity LintSeverity
	Message  string
}

func (f LintFinding) String() string {
	return fmt.Sprintf("%s: %s: %s", f.File, f.Severity, f.Message)
}

// LintResult is the output of linting a policy file.
type LintResult struct {
	Findings []LintFinding
	Errors   int
	Warnings int
	Infos    int
}

// dangerousAllowlistEntries are programs that defeat the gate's purpose
// if allowlisted: destructive tools, network fetchers, interpreters
// that can relaunch arbitrary commands, and unrestricted kill forms.
var dangerousAllowlistEntries = map[string]string{
	"rm":       "can delete arbitrary files",
	"dd":       "can overwrite block devices",
	"curl":     "fetches arbitrary remote content",
	"wget":     "fetches arbitrary remote content",
	"bash":     "relaunches arbitrary commands, bypassing per-command checks",
	"sh":       "relaunches arbitrary commands, bypassing per-command checks",
	"zsh":      "relaunches arbitrary commands, bypassing per-command checks",
	"eval":     "evaluates arbitrary strings as commands",
	"exec":     "replaces the process with an arbitrary command",
	"kill":     "terminates arbitrary PIDs",
	"killall":  "terminates processes by name host-wide",
	"pkill":    "bypasses the dev-process target restriction",
	"chmod":    "bypasses the execute-only mode restriction",
	"sudo":     "escalates privileges",
	"shutdown": "halts the host",
	"reboot":   "restarts the host",
}

// knownConfigFields are the recognized top-level keys.
var knownConfigFields = map[string]bool{
	"version":      true,
	"allowlist":    true,
	"kill_targets": true,
	"init_script":  true,
	"parser":       true,
}

// commonFieldTypos maps frequent misspellings to the intended key.
var commonFieldTypos = map[string]string{
	"allow_list":   "allowlist",
	"whitelist":    "allowlist",
	"killtargets":  "kill_targets",
	"kill_target":  "kill_targets",
	"initscript":   "init_script",
	"init_scripts": "init_script",
	"parsers":      "parser",
}

// LintPolicyFile lints a policy YAML file and returns findings. Schema
// violations that LoadConfig would reject are reported as errors;
// entries that are valid but undermine the policy are warnings.
func LintPolicyFile(path string) LintResult {
	var result LintResult

	data, err := os.ReadFile(path)
	if err != nil {
		result.add(LintFinding{File: path, Severity: LintError, Message: fmt.Sprintf("cannot read file: %v", err)})
		return result
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		result.add(LintFinding{File: path, Severity: LintError, Message: fmt.Sprintf("invalid yaml: %v", err)})
		return result
	}
	lintRawKeys(&root, path, &result)

	cfg, err := ParseConfig(data)
	if err != nil {
		result.add(LintFinding{File: path, Severity: LintError, Message: err.Error()})
		return result
	}
	lintConfig(path, cfg, &result)
	return result
}

// lintConfig checks a structurally valid config for policy smells.
func lintConfig(filename string, cfg *Config, result *LintResult) {
	for _, name := range cfg.Allowlist {
		if why, bad := dangerousAllowlistEntries[name]; bad {
			result.add(LintFinding{
				File:     filename,
				Severity: LintWarning,
				Message:  fmt.Sprintf("allowlist entry %q %s", name, why),
			})
		}
	}

	if len(cfg.KillTargets) == 0 {
		result.add(LintFinding{
			File:     filename,
			Severity: LintInfo,
			Message:  "kill_targets is empty: every pkill will be blocked",
		})
	}
	for _, target := range cfg.KillTargets {
		if len(target) < 3 {
			result.add(LintFinding{
				File:     filename,
				Severity: LintWarning,
				Message:  fmt.Sprintf("kill target %q is short enough to match unrelated processes", target),
			})
		}
	}

	if !strings.HasSuffix(cfg.InitScript, ".sh") {
		result.add(LintFinding{
			File:     filename,
			Severity: LintInfo,
			Message:  fmt.Sprintf("init_script %q does not look like a shell script", cfg.InitScript),
		})
	}
}

// lintRawKeys flags unknown top-level keys, suggesting fixes for
// common typos.
func lintRawKeys(root *yaml.Node, filename string, result *LintResult) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return
	}
	mapping := root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key := mapping.Content[i].Value
		if knownConfigFields[key] {
			continue
		}
		msg := fmt.Sprintf("unknown field %q", key)
		if fix, ok := commonFieldTypos[key]; ok {
			msg = fmt.Sprintf("unknown field %q (did you mean %q?)", key, fix)
		}
		result.add(LintFinding{File: filename, Severity: LintWarning, Message: msg})
	}
}

func (r *LintResult) add(f LintFinding) {
	r.Findings = append(r.Findings, f)
	switch f.Severity {
	case LintError:
		r.Errors++
	case LintWarning:
		r.Warnings++
	case LintInfo:
		r.Infos++
	}
}

// Summary returns a human-readable summary line.
func (r LintResult) Summary(filename string) string {
	var parts []string
	if r.Errors > 0 {
		parts = append(parts, fmt.Sprintf("%d error(s)", r.Errors))
	}
	if r.Warnings > 0 {
		parts = append(parts, fmt.Sprintf("%d warning(s)", r.Warnings))
	}
	if r.Infos > 0 {
		parts = append(parts, fmt.Sprintf("%d info(s)", r.Infos))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: no issues found", filename)
	}
	return fmt.Sprintf("%s: %s", filename, strings.Join(parts, ", "))
}

// HasErrors returns true if any error-level findings exist.
func (r LintResult) HasErrors() bool {
	return r.Errors > 0
}
