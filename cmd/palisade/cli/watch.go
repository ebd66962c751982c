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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/holt/palisade/internal/audit"
	"github.com/holt/palisade/internal/watch"
	"github.com/spf13/cobra"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var auditDir string
	var serverURL string
	var token string
	var mode string
	var verdict string
	var rule string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live terminal view of gate decisions",
		Long: `Tail the audit trail in a full-screen terminal view.

By default, follows the newest audit file in --audit-dir. With --server,
subscribes to a running 'palisade serve' event feed instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := watch.Config{
				ServerURL: serverURL,
				Token:     token,
				Mode:      mode,
				Verdict:   verdict,
				Rule:      rule,
				Out:       cmd.OutOrStdout(),
			}

			_, source, err := resolvePolicy(opts.configPath)
			if err != nil {
				return err
			}
			cfg.Policy = source

			if cfg.Token == "" {
				cfg.Token = os.Getenv("PALISADE_TOKEN")
			}

			if serverURL == "" {
				dir, err := expandHome(auditDir)
				if err != nil {
					return err
				}
				dir = filepath.Clean(dir)
				if err := os.MkdirAll(dir, 0o700); err != nil {
					return fmt.Errorf("watch: create audit dir: %w", err)
				}

				file, err := latestAuditFile(dir)
				if err != nil {
					return fmt.Errorf("watch: find audit file: %w", err)
				}
				cfg.AuditFile = file
			}

			return watch.Run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&auditDir, "audit-dir", "~/.palisade/audit", "Directory containing audit JSONL files")
	cmd.Flags().StringVar(&serverURL, "server", "", "Subscribe to a palisade serve event feed (e.g. http://127.0.0.1:8787)")
	cmd.Flags().StringVar(&token, "token", "", "Bearer token for --server (default: $PALISADE_TOKEN)")
	cmd.Flags().StringVar(&mode, "mode", "enforce", "Display mode label")
	cmd.Flags().StringVar(&verdict, "verdict", "", "Only display events with this verdict (allow|block)")
	cmd.Flags().StringVar(&rule, "rule", "", "Only display events decided by this rule")

	return cmd
}

// latestAuditFile returns the newest audit file in dir, falling back to
// the predicted daily filename so the tailer has a path to watch before
// the first event lands.
func latestAuditFile(dir string) (string, error) {
	file, err := audit.LatestFile(dir)
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	today := time.Now().UTC().Format("2006-01-02")
	return filepath.Join(dir, "audit-hook-"+today+".jsonl"), nil
}
