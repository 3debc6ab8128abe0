// Package web serves the relay's HTTP surface: the health and metrics
// endpoints, the filtered WebSocket stream, and the database snapshot
// and download endpoints.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SUNET/ais-data-relay/errors"
	"github.com/SUNET/ais-data-relay/metric"
	"github.com/SUNET/ais-data-relay/relay"
	"github.com/SUNET/ais-data-relay/storage"
)

// ServerConfig holds the HTTP server's collaborators
type ServerConfig struct {
	Port     int
	Pipeline *relay.Pipeline
	Rotator  *storage.Rotator
	Gate     *relay.CredentialGate
	Registry *metric.MetricsRegistry
	Logger   *slog.Logger
}

// Server is the relay's HTTP front. Everything shares one mux and one
// port; the WebSocket stream and the database endpoints sit behind the
// web credential gate, health and metrics stay open for probes.
type Server struct {
	cfg    ServerConfig
	logger *slog.Logger

	lifecycleMu sync.Mutex
	started     bool
	server      *http.Server
	serveErr    chan error
}

// NewServer creates the HTTP server
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		cfg:    cfg,
		logger: logger.With("component", "web"),
	}
}

// Start begins serving. The listener failure surfaces on the first
// Stop call or is logged if the server dies while running.
func (s *Server) Start(_ context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started {
		return errors.ErrAlreadyStarted
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(
		s.cfg.Registry.PrometheusRegistry(),
		promhttp.HandlerOpts{EnableOpenMetrics: true},
	))
	mux.Handle("/ws/ais", relay.NewWSHandler(s.cfg.Gate, s.cfg.Pipeline.Hub(), s.logger))
	mux.HandleFunc("GET /db/snapshot", s.requireAuth(s.handleSnapshot))
	mux.HandleFunc("GET /db/files", s.requireAuth(s.handleFiles))
	mux.HandleFunc("GET /db/download/{name}", s.requireAuth(s.handleDownload))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serveErr = make(chan error, 1)

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server failed", "error", err)
			s.serveErr <- err
		}
		close(s.serveErr)
	}()

	s.started = true
	s.logger.Info("HTTP server listening", "port", s.cfg.Port)
	return nil
}

// Stop shuts the server down gracefully within the timeout
func (s *Server) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started {
		return errors.ErrNotStarted
	}
	s.started = false

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return errors.WrapTransient(err, "web", "Stop", "shutdown HTTP server")
	}
	if err, ok := <-s.serveErr; ok && err != nil {
		return errors.WrapFatal(err, "web", "Stop", "serve HTTP")
	}
	return nil
}

// requireAuth wraps a handler with the web credential gate
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Gate.CheckBasic(r) {
			relay.RequireBasic(w)
			return
		}
		next(w, r)
	}
}

type healthResponse struct {
	TCPClients   int  `json:"tcp_clients"`
	WSClients    int  `json:"ws_clients"`
	AISConnected bool `json:"ais_connected"`
	QueueDepth   int  `json:"queue_depth"`
	QueueSize    int  `json:"queue_size"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	tcp, ws := s.cfg.Pipeline.Hub().Counts()
	stats := s.cfg.Pipeline.QueueStats()

	resp := healthResponse{
		TCPClients:   tcp,
		WSClients:    ws,
		AISConnected: s.cfg.Pipeline.Connector().Connected(),
		QueueDepth:   stats.QueueDepth,
		QueueSize:    stats.QueueSize,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to write health response", "error", err)
	}
}
