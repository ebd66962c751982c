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
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/holt/palisade/internal/gate"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// defaultSuiteFile is the expectation suite looked up when `policy test`
// gets no argument.
const defaultSuiteFile = "palisade_tests.yaml"

func newPolicyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Policy utilities",
	}

	cmd.AddCommand(newPolicyShowCmd(opts))
	cmd.AddCommand(newPolicyLintCmd(opts))
	cmd.AddCommand(newPolicyTestCmd(opts))

	return cmd
}

func newPolicyShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective policy and where it came from",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			eng, source, err := loadEngine(opts.configPath, logger)
			if err != nil {
				return err
			}

			cfg := eng.Config()
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("policy: marshal config: %w", err)
			}

			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "# source: %s\n%s", source, data); err != nil {
				return fmt.Errorf("policy: write show output: %w", err)
			}
			return nil
		},
	}
}

func newPolicyLintCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lint [file]",
		Short: "Lint a policy file for common mistakes",
		Long: `Lint a policy YAML file for errors, warnings, and suggestions.

Checks for:
  - Invalid YAML syntax and schema violations
  - Allowlist entries that defeat the gate (rm, curl, bash, eval, ...)
  - Duplicate allowlist and kill-target entries
  - An empty kill_targets list, which refuses every pkill
  - Unknown top-level fields (with typo suggestions)

Without an argument, lints the policy file the gate would load.

Exit code: 1 if errors found, 0 if only warnings/info.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				resolved, err := lintTargetPath(opts.configPath)
				if err != nil {
					return err
				}
				path = resolved
			}

			if _, err := os.Stat(path); os.IsNotExist(err) {
				return fmt.Errorf("policy: file not found: %s", path)
			}

			result := gate.LintPolicyFile(path)
			for _, f := range result.Findings {
				fmt.Fprintln(cmd.OutOrStdout(), f.String())
			}
			fmt.Fprintln(cmd.OutOrStdout(), result.Summary(path))

			if result.HasErrors() {
				return exitCodeError{code: 1}
			}
			return nil
		},
	}
}

// lintTargetPath picks the file to lint when none is given. The embedded
// profile is not lintable; there is no file to point findings at.
func lintTargetPath(configPath string) (string, error) {
	if path := strings.TrimSpace(configPath); path != "" {
		return path, nil
	}
	if path := strings.TrimSpace(os.Getenv("PALISADE_CONFIG")); path != "" {
		return path, nil
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile, nil
	}
	return "", fmt.Errorf("policy: no policy file to lint (pass a path or create %s)", defaultConfigFile)
}

func newPolicyTestCmd(opts *rootOptions) *cobra.Command {
	var noColorFlag bool

	cmd := &cobra.Command{
		Use:   "test [suite.yaml]",
		Short: "Run a YAML expectation suite against the policy",
		Long: `Run a suite of commands with expected verdicts.

The suite is YAML:

  policy: ./palisade.yaml   # optional; default is the resolved policy
  cases:
    - name: blocks recursive delete
      command: rm -rf /
      want: block
      reason_contains: allowlist
    - name: allows git status
      command: git status
      want: allow

Without an argument, loads ` + defaultSuiteFile + ` from the working
directory.

Exit code: 1 when any case fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suitePath := defaultSuiteFile
			if len(args) == 1 {
				suitePath = args[0]
			}
			return runPolicyTest(cmd, opts, suitePath, noColorFlag)
		},
	}

	cmd.Flags().BoolVar(&noColorFlag, "no-color", false, "Disable color output")
	return cmd
}

func runPolicyTest(cmd *cobra.Command, opts *rootOptions, suitePath string, noColorFlag bool) error {
	suite, err := gate.LoadTestSuite(suitePath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var eng *gate.Engine
	if suite.Policy != "" {
		cfg, loadErr := gate.LoadConfig(suite.Policy)
		if loadErr != nil {
			return loadErr
		}
		eng, err = gate.New(cfg, logger)
		if err != nil {
			return err
		}
	} else {
		eng, _, err = loadEngine(opts.configPath, logger)
		if err != nil {
			return err
		}
	}

	results := gate.RunTests(eng, suite)

	useColor := !noColorFlag && !noColor()
	w := cmd.OutOrStdout()

	passed, failed := 0, 0
	for _, res := range results {
		status, color := "PASS", colorGreen
		if res.Error != nil || !res.Passed {
			status, color = "FAIL", colorRed
			failed++
		} else {
			passed++
		}

		if useColor {
			fmt.Fprintf(w, "%s%-4s%s %-34s %s\n", color, status, colorReset, res.Case.Name, res.Case.Command)
		} else {
			fmt.Fprintf(w, "%-4s %-34s %s\n", status, res.Case.Name, res.Case.Command)
		}

		switch {
		case res.Error != nil:
			fmt.Fprintf(w, "     %v\n", res.Error)
		case !res.Passed:
			detail := res.Decision.Reason
			if detail == "" {
				detail = "no reason given"
			}
			fmt.Fprintf(w, "     want %s, got %s: %s\n", res.Case.Want, res.Decision.Verdict, detail)
		}
	}

	fmt.Fprintf(w, "\n%d passed, %d failed (%d cases)\n", passed, failed, len(results))

	if failed > 0 {
		return exitCodeError{code: 1}
	}
	return nil
}
