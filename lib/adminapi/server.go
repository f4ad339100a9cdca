// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package adminapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bureau-foundation/nodewatch/lib/metrics"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/scheduler"
	"github.com/bureau-foundation/nodewatch/lib/version"
)

// StatusSource is the read side of the scheduler.
type StatusSource interface {
	Networks() []string
	Status(network string) (scheduler.NetworkStatus, bool)
}

// Config configures a Server.
type Config struct {
	// Address is the TCP listen address, e.g. "127.0.0.1:9380".
	Address string
	Status  StatusSource
	// Metrics is optional; without it /metrics is not routed.
	Metrics *metrics.Metrics
	// ShutdownTimeout defaults to 10 seconds.
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Server is the admin HTTP server. Serve blocks until its context is
// cancelled and in-flight requests drain.
type Server struct {
	address         string
	handler         http.Handler
	shutdownTimeout time.Duration
	logger          *slog.Logger

	ready chan struct{}
	addr  net.Addr
}

// New builds the server and its routes.
func New(config Config) (*Server, error) {
	if config.Address == "" {
		return nil, errors.New("adminapi: Address is required")
	}
	if config.Status == nil {
		return nil, errors.New("adminapi: Status is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	timeout := config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Server{
		address:         config.Address,
		handler:         NewRouter(config.Status, config.Metrics, logger),
		shutdownTimeout: timeout,
		logger:          logger,
		ready:           make(chan struct{}),
	}, nil
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Addr is the bound address. Valid after Ready is closed.
func (s *Server) Addr() net.Addr { return s.addr }

// Serve listens and serves until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("adminapi: listening on %s: %w", s.address, err)
	}
	s.addr = listener.Addr()
	close(s.ready)

	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("admin http listening", "address", s.addr.String())

	serveDone := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveDone <- err
		}
		close(serveDone)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveDone:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("adminapi: shutdown: %w", err)
	}
	s.logger.Info("admin http stopped")
	return nil
}

// NewRouter returns the admin routes. Exposed for tests and for
// mounting under another server.
func NewRouter(status StatusSource, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	h := &handlers{status: status, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger))

	router.Get("/healthz", h.health)
	if m != nil {
		router.Method(http.MethodGet, "/metrics", m.Handler())
	}
	router.Route("/v1/networks", func(r chi.Router) {
		r.Get("/", h.listNetworks)
		r.Get("/{network}/nodes", h.listNodes)
		r.Get("/{network}/nodes/{id}", h.getNode)
	})
	return router
}

type handlers struct {
	status StatusSource
	logger *slog.Logger
}

// NetworkSummary is one entry of GET /v1/networks.
type NetworkSummary struct {
	Network            string                  `json:"network"`
	State              scheduler.State         `json:"state"`
	IntervalSeconds    float64                 `json:"interval_seconds"`
	DefaultBootMinutes int                     `json:"default_boot_minutes"`
	Nodes              int                     `json:"nodes"`
	StatusCounts       map[string]int          `json:"status_counts"`
	LastCycle          *scheduler.CycleSummary `json:"last_cycle,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	body := version.Full()
	body["status"] = "ok"
	writeJSON(w, http.StatusOK, body)
}

func (h *handlers) listNetworks(w http.ResponseWriter, _ *http.Request) {
	summaries := []NetworkSummary{}
	for _, name := range h.status.Networks() {
		status, ok := h.status.Status(name)
		if !ok {
			continue
		}
		counts := make(map[string]int)
		for _, view := range status.Nodes {
			counts[view.Status.String()]++
		}
		summaries = append(summaries, NetworkSummary{
			Network:            name,
			State:              status.State,
			IntervalSeconds:    status.Interval.Seconds(),
			DefaultBootMinutes: status.DefaultBootMinutes,
			Nodes:              len(status.Nodes),
			StatusCounts:       counts,
			LastCycle:          status.LastCycle,
		})
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *handlers) listNodes(w http.ResponseWriter, r *http.Request) {
	status, ok := h.network(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, status.Nodes)
}

func (h *handlers) getNode(w http.ResponseWriter, r *http.Request) {
	status, ok := h.network(w, r)
	if !ok {
		return
	}
	id, err := node.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, view := range status.Nodes {
		if view.NodeID == id {
			writeJSON(w, http.StatusOK, view)
			return
		}
	}
	writeError(w, http.StatusNotFound, fmt.Sprintf("node %d is not tracked in %s", id, status.Network))
}

func (h *handlers) network(w http.ResponseWriter, r *http.Request) (scheduler.NetworkStatus, bool) {
	name := chi.URLParam(r, "network")
	status, ok := h.status.Status(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown network %q", name))
	}
	return status, ok
}

func writeJSON(w http.ResponseWriter, code int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

// requestLogger logs each request through slog at debug level, with
// the chi request id.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(wrapped, r)
			logger.Debug("admin request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.Status(),
				"bytes", wrapped.BytesWritten(),
				"elapsed", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
