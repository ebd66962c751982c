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
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/holt/palisade/internal/audit"
	"github.com/holt/palisade/internal/serve"
	"github.com/spf13/cobra"
)

const defaultServePort = 8787

type serveDeps struct {
	notifyContext func(context.Context, ...os.Signal) (context.Context, context.CancelFunc)
}

func defaultServeDeps() serveDeps {
	return serveDeps{notifyContext: signal.NotifyContext}
}

type serveSettings struct {
	listenAddr string
	port       int
	mode       string
	auditDir   string
	token      string
	metrics    bool
}

func newServeCmd(opts *rootOptions, deps *serveDeps) *cobra.Command {
	var settings serveSettings

	resolvedDeps := defaultServeDeps()
	if deps != nil && deps.notifyContext != nil {
		resolvedDeps.notifyContext = deps.notifyContext
	}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gate as an HTTP checkpoint",
		Long: `Serve the gate over HTTP for editor integrations and remote harnesses.

Routes:
  POST /v1/check   evaluate a tool call, hook-protocol JSON in and out
  GET  /v1/events  WebSocket feed of decisions (for 'palisade watch --server')
  GET  /healthz    liveness
  GET  /metrics    Prometheus metrics (with --metrics)

The bearer token comes from --token or $PALISADE_TOKEN. Without one the
server answers anybody who can reach the port.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, resolvedDeps, settings)
		},
	}

	cmd.Flags().StringVar(&settings.listenAddr, "addr", "127.0.0.1", "Bind address (use 0.0.0.0 to accept remote connections)")
	cmd.Flags().IntVar(&settings.port, "port", defaultServePort, "Listen port")
	cmd.Flags().StringVar(&settings.mode, "mode", "enforce", "Mode: enforce | monitor")
	cmd.Flags().StringVar(&settings.auditDir, "audit-dir", "~/.palisade/audit", "Directory for audit JSONL files")
	cmd.Flags().StringVar(&settings.token, "token", "", "Bearer token required on every request (default: $PALISADE_TOKEN)")
	cmd.Flags().BoolVar(&settings.metrics, "metrics", false, "Enable Prometheus metrics on /metrics")

	return cmd
}

func runServe(cmd *cobra.Command, opts *rootOptions, deps serveDeps, settings serveSettings) error {
	if settings.mode != "enforce" && settings.mode != "monitor" {
		return fmt.Errorf("serve: invalid mode %q (must be enforce or monitor)", settings.mode)
	}
	if settings.listenAddr != "" && net.ParseIP(settings.listenAddr) == nil {
		return fmt.Errorf("serve: invalid --addr %q (must be an IP address, e.g. 127.0.0.1 or ::1)", settings.listenAddr)
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	eng, source, err := loadEngine(opts.configPath, logger)
	if err != nil {
		return err
	}

	dir, err := expandHome(settings.auditDir)
	if err != nil {
		return err
	}

	// The checkpoint is long-lived: skip per-event fsync and flush on
	// shutdown instead.
	sink, err := audit.NewJSONLSink(dir, audit.WithLogger(logger), audit.WithFsync(false))
	if err != nil {
		return fmt.Errorf("serve: create audit sink: %w", err)
	}

	token := settings.token
	if token == "" {
		token = os.Getenv("PALISADE_TOKEN")
	}

	srv := serve.New(eng, sink,
		serve.WithMode(settings.mode),
		serve.WithLogger(logger),
		serve.WithToken(token),
		serve.WithMetrics(settings.metrics),
		serve.WithConfigSource(source),
	)

	addr := fmt.Sprintf("%s:%d", settings.listenAddr, settings.port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(addr)
	}()

	fmt.Fprintf(cmd.ErrOrStderr(), "serve: listening on %s (policy: %s, mode: %s)\n", addr, source, settings.mode)

	sigCtx, stop := deps.notifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		logger.Info("serve: shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("serve: shutdown failed", "error", err)
		}

		if err := sink.Flush(); err != nil {
			logger.Error("serve: flush audit sink failed", "error", err)
		}
		if err := sink.Close(); err != nil {
			logger.Error("serve: close audit sink failed", "error", err)
		}
		return nil
	case err := <-errCh:
		closeErr := sink.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		if closeErr != nil {
			return fmt.Errorf("serve: close audit sink: %w", closeErr)
		}
		return nil
	}
}
