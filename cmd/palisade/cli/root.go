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
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// Execute runs the palisade CLI command tree.
func Execute() error {
	cmd := NewRootCmd(context.Background(), os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		var ec interface{ ExitCode() int }
		if !errors.As(err, &ec) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
		}
		return err
	}
	return nil
}

// ExitCode returns the process exit code implied by err.
// Non-nil errors default to exit code 1 unless they expose ExitCode().
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		code := ec.ExitCode()
		if code > 0 {
			return code
		}
	}

	return 1
}

// exitCodeError carries a specific process exit code through RunE without
// printing anything; the decision output has already been written.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func (e exitCodeError) ExitCode() int {
	if e.code < 1 {
		return 1
	}
	return e.code
}

// NewRootCmd builds the palisade root command.
func NewRootCmd(ctx context.Context, outWriter, errWriter io.Writer) *cobra.Command {
	opts := &rootOptions{}
	var showVersion bool
	if ctx == nil {
		ctx = context.Background()
	}

	cmd := &cobra.Command{
		Use:           "palisade",
		Short:         "Pre-execution policy gate for AI agent shell commands",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if showVersion {
				return writeVersion(cmd.OutOrStdout())
			}
			return cmd.Help()
		},
	}
	cmd.SetContext(ctx)
	cmd.SetOut(outWriter)
	cmd.SetErr(errWriter)

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to policy file (default: $PALISADE_CONFIG, ./palisade.yaml, embedded standard)")
	cmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&showVersion, "version", false, "Print version information and exit")

	const (
		groupGate    = "gate"
		groupPolicy  = "policy"
		groupObserve = "observe"
		groupSetup   = "setup"
	)
	cmd.AddGroup(
		&cobra.Group{ID: groupGate, Title: "Gate"},
		&cobra.Group{ID: groupPolicy, Title: "Policy"},
		&cobra.Group{ID: groupObserve, Title: "Observe"},
		&cobra.Group{ID: groupSetup, Title: "Setup"},
	)

	versionCmd := newVersionCmd()
	hookCmd := newHookCmd(opts)
	checkCmd := newCheckCmd(opts)
	serveCmd := newServeCmd(opts, nil)
	policyCmd := newPolicyCmd(opts)
	auditCmd := newAuditCmd(opts)
	watchCmd := newWatchCmd(opts)
	initCmd := newInitCmd(opts)

	hookCmd.GroupID = groupGate
	checkCmd.GroupID = groupGate
	serveCmd.GroupID = groupGate

	policyCmd.GroupID = groupPolicy

	auditCmd.GroupID = groupObserve
	watchCmd.GroupID = groupObserve

	initCmd.GroupID = groupSetup

	cmd.AddCommand(versionCmd)
	cmd.AddCommand(hookCmd)
	cmd.AddCommand(checkCmd)
	cmd.AddCommand(serveCmd)
	cmd.AddCommand(policyCmd)
	cmd.AddCommand(auditCmd)
	cmd.AddCommand(watchCmd)
	cmd.AddCommand(initCmd)

	return cmd
}
