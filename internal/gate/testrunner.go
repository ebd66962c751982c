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
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TestSuite is a set of command expectations to run against a policy.
type TestSuite struct {
	// Policy is the path to the policy file to test against, resolved
	// relative to the suite file. Empty means the caller supplies the
	// engine.
	Policy string `yaml:"policy"`

	// Cases is the list of expectations.
	Cases []TestCase `yaml:"cases"`
}

// TestCase defines a single expectation.
type TestCase struct {
	// Name describes what this case verifies.
	Name string `yaml:"name"`

	// Command is the raw shell command to evaluate.
	Command string `yaml:"command"`

	// Tool overrides the tool name (default "Bash").
	Tool string `yaml:"tool,omitempty"`

	// Want is the expected verdict: allow or block.
	Want Verdict `yaml:"want"`

	// ReasonContains optionally asserts a substring of the reason.
	ReasonContains string `yaml:"reason_contains,omitempty"`
}

// TestResult holds the outcome of one case.
type TestResult struct {
	Case     TestCase
	Passed   bool
	Decision Decision
	Error    error
}

// LoadTestSuite reads a suite from a YAML file.
func LoadTestSuite(path string) (*TestSuite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gate: read test suite: %w", err)
	}

	var suite TestSuite
	if err := yaml.Unmarshal(data, &suite); err != nil {
		return nil, fmt.Errorf("gate: parse test suite: %w", err)
	}
	if len(suite.Cases) == 0 {
		return nil, fmt.Errorf("gate: test suite %s contains no cases", path)
	}

	// Resolve the policy path relative to the suite file's directory.
	if suite.Policy != "" && !filepath.IsAbs(suite.Policy) {
		suite.Policy = filepath.Join(filepath.Dir(path), suite.Policy)
	}
	return &suite, nil
}

// RunTests evaluates every case in the suite against the engine.
func RunTests(eng *Engine, suite *TestSuite) []TestResult {
	results := make([]TestResult, 0, len(suite.Cases))
	for _, tc := range suite.Cases {
		results = append(results, runSingleCase(eng, tc))
	}
	return results
}

func runSingleCase(eng *Engine, tc TestCase) TestResult {
	if tc.Command == "" && tc.Tool == "" {
		return TestResult{Case: tc, Error: fmt.Errorf("case %q: command is required", tc.Name)}
	}

	tool := tc.Tool
	if tool == "" {
		tool = ToolBash
	}

	d := eng.Evaluate(Request{Tool: tool, Command: tc.Command})

	passed := d.Verdict == tc.Want
	if passed && tc.ReasonContains != "" {
		passed = strings.Contains(d.Reason, tc.ReasonContains)
	}
	return TestResult{Case: tc, Passed: passed, Decision: d}
}
