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

// Package serve exposes the gate over HTTP so editor integrations and
// remote harnesses can ask for decisions without spawning the hook
// binary per call.
package serve

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/holt/palisade/internal/audit"
	"github.com/holt/palisade/internal/build"
	"github.com/holt/palisade/internal/gate"
)

const defaultMode = "enforce"

// maxRequestBody is the maximum allowed request body size (1MB).
const maxRequestBody = 1 << 20

var upgrader = websocket.Upgrader{}

// Server answers gate checks over HTTP and streams decisions to
// WebSocket subscribers.
type Server struct {
	engine         *gate.Engine
	sink           audit.Sink
	token          string
	mode           string
	configSource   string
	logger         *slog.Logger
	hub            *hub
	mu             sync.Mutex
	server         *http.Server
	listenAddr     string
	startedAt      time.Time
	metricsEnabled bool
}

// Option configures a serve server.
type Option func(*Server)

// WithToken sets the bearer auth token. An empty token leaves the
// server open, which is the default for loopback use.
func WithToken(token string) Option {
	return func(s *Server) {
		s.token = strings.TrimSpace(token)
	}
}

// WithMode sets the operation mode: enforce or monitor.
func WithMode(mode string) Option {
	return func(s *Server) {
		s.mode = mode
	}
}

// WithLogger sets the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics enables the /metrics Prometheus endpoint.
func WithMetrics(enabled bool) Option {
	return func(s *Server) {
		s.metricsEnabled = enabled
	}
}

// WithConfigSource sets the policy source string shown in /healthz.
// Use "embedded:standard" when the embedded default policy is active.
func WithConfigSource(source string) Option {
	return func(s *Server) {
		s.configSource = source
	}
}

// New creates a new serve server.
func New(eng *gate.Engine, sink audit.Sink, opts ...Option) *Server {
	s := &Server{
		engine:    eng,
		sink:      sink,
		mode:      defaultMode,
		logger:    slog.Default(),
		startedAt: time.Now().UTC(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.mode == "" {
		s.mode = defaultMode
	}
	s.hub = newHub(s.logger)

	if s.token == "" {
		s.logger.Warn("serve: no auth token configured, accepting unauthenticated requests")
	} else if len(s.token) > 4 {
		s.logger.Info("serve: auth token", "prefix", s.token[:4]+"…")
	}
	return s
}

// ListenAndServe starts serving HTTP requests at addr.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("serve: listen: %w", err)
	}
	return s.Serve(listener)
}

// Serve starts serving HTTP requests on an existing listener.
func (s *Server) Serve(listener net.Listener) error {
	s.listenAddr = listener.Addr().String()
	srv := s.newHTTPServer(s.listenAddr, s.handler())

	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	if err := srv.Serve(listener); err != nil {
		return fmt.Errorf("serve: serve: %w", err)
	}
	return nil
}

// newHTTPServer creates an *http.Server with standard timeouts. The
// read and write timeouts do not apply to hijacked WebSocket
// connections, whose lifetime the hub manages with ping deadlines.
func (s *Server) newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Shutdown gracefully stops the server and disconnects event clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	s.hub.closeAll()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("serve: shutdown: %w", err)
	}
	return nil
}

// Addr returns the bound listen address, useful with ":0".
func (s *Server) Addr() string {
	return s.listenAddr
}

func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/check", s.handleCheck)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsEnabled {
		mux.Handle("GET /metrics", MetricsHandler())
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	var handler http.Handler = mux
	if s.metricsEnabled {
		handler = promhttp.InstrumentHandlerCounter(httpRequestsTotal, handler)
	}
	return http.MaxBytesHandler(handler, maxRequestBody)
}

// handleCheck evaluates one proposed tool call and answers with the
// same JSON the stdin hook would emit. The HTTP status is 200 for any
// well-formed request; the verdict lives in the body, not the status.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, gate.BlockResponse(fmt.Sprintf("unreadable request body: %v", err)))
		return
	}

	req, err := gate.ParseHookInput(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, gate.BlockResponse(err.Error()))
		return
	}

	decision := s.engine.Evaluate(req)

	if s.metricsEnabled {
		RecordDecision(decision.Verdict.String(), decision.Rule, decision.EvalDuration)
	}

	event := s.writeAudit(req, decision)
	s.hub.broadcast(event)

	if decision.Blocked() {
		s.logger.Info("serve: command blocked",
			"rule", decision.Rule,
			"command", req.Command,
			"reason", decision.Reason,
		)
	}

	resp := gate.HookResponseFor(decision)
	if s.mode == "monitor" {
		resp = gate.HookResponse{Decision: gate.VerdictAllow}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvents upgrades the connection and subscribes it to the
// decision feed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.checkAuth(w, r) {
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("serve: websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := s.hub.register(conn)
	s.logger.Debug("serve: event client connected", "remote", r.RemoteAddr, "clients", s.hub.count())

	go c.writePump()
	go c.readPump(s.hub)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	uptime := int(time.Since(s.startedAt).Seconds())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"mode":           s.mode,
		"policy":         s.configSource,
		"uptime_seconds": uptime,
		"version":        build.Version,
	})
}

// writeAudit records the decision and returns the event so the caller
// can broadcast the exact bytes that were persisted.
func (s *Server) writeAudit(req gate.Request, d gate.Decision) audit.Event {
	event := audit.Event{
		ID:         audit.NewEventID(),
		Timestamp:  time.Now().UTC(),
		Session:    req.Session,
		Tool:       req.Tool,
		Command:    req.Command,
		Verdict:    d.Verdict.String(),
		Reason:     d.Reason,
		Rule:       d.Rule,
		Mode:       s.mode,
		EvalMicros: d.EvalDuration.Microseconds(),
	}

	if s.sink != nil {
		if err := s.sink.Write(event); err != nil {
			s.logger.Error("serve: audit write failed", "error", err)
		}
	}
	return event
}

// checkAuth validates the bearer token. Returns false if auth fails
// (error already written). A server with no token accepts everything.
func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if s.token == "" {
		return true
	}

	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		writeError(w, http.StatusUnauthorized, "missing authorization header")
		return false
	}

	token := strings.TrimPrefix(auth, "Bearer ")
	if token == auth || subtle.ConstantTimeCompare([]byte(token), []byte(s.token)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid authorization token")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
