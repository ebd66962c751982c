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
	"os"
	"path/filepath"
	"strings"

	"github.com/holt/palisade/policies"
	"github.com/spf13/cobra"
)

func newInitCmd(opts *rootOptions) *cobra.Command {
	var force bool
	var profile string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter policy and show the hook wiring",
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected := strings.TrimSpace(strings.ToLower(profile))
			if !isSupportedProfile(selected) {
				return fmt.Errorf("cli: invalid profile %q (valid: %s)", profile, strings.Join(policies.ProfileNames, ", "))
			}

			content, err := policies.Profile(selected)
			if err != nil {
				return fmt.Errorf("cli: read embedded profile %s: %w", selected, err)
			}

			path := opts.configPath
			if path == "" {
				path = defaultConfigFile
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("cli: policy file already exists at %s (use --force to overwrite)", path)
			} else if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("cli: check policy file %s: %w", path, err)
			}

			if err := ensurePalisadeDirs(); err != nil {
				return err
			}

			if err := os.WriteFile(path, content, 0o644); err != nil {
				return fmt.Errorf("cli: write policy file %s: %w", path, err)
			}

			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "Created %s with the %s profile\n\n%s", path, selected, hookSettingsSnippet()); err != nil {
				return fmt.Errorf("cli: write init output: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing policy file")
	cmd.Flags().StringVar(&profile, "profile", "standard", "Policy profile: "+strings.Join(policies.ProfileNames, ", "))

	return cmd
}

func ensurePalisadeDirs() error {
	home, err := homeDir()
	if err != nil {
		return err
	}

	dir := filepath.Join(home, ".palisade", "audit")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cli: create directory %s: %w", dir, err)
	}
	return nil
}

func isSupportedProfile(profile string) bool {
	for _, name := range policies.ProfileNames {
		if name == profile {
			return true
		}
	}
	return false
}

// hookSettingsSnippet is the harness wiring printed after init so the
// user can paste it straight into their agent settings.
func hookSettingsSnippet() string {
	return `Add to ~/.claude/settings.json to gate every shell command:

{
  "hooks": {
    "PreToolUse": [
      {
        "matcher": "Bash",
        "hooks": [{ "type": "command", "command": "palisade hook" }]
      }
    ]
  }
}
`
}
