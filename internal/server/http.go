package server

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatemail-dev/gatemail/internal/logging"
)

const (
	// DefaultHTTPAddr is the default bind address for the app HTTP server.
	DefaultHTTPAddr = ":8080"

	// maxInboundSize caps a single raw inbound message (headers, bodies,
	// and encoded attachments).
	maxInboundSize = 25 << 20
)

// HTTPServerConfig configures the application HTTP server.
type HTTPServerConfig struct {
	Addr string
	// IngestToken guards POST /ingest/inbound. Empty disables the endpoint.
	IngestToken string
}

// HTTPServer exposes the inbound ingestion endpoint, the delivery-status
// callback endpoint, and the health probes. It is separate from the metrics
// server so operational surfaces never share a port with mail traffic.
type HTTPServer struct {
	httpServer *http.Server
	addr       string
	sc         *ServerContext
	health     *HealthChecker
	token      string
}

// NewHTTPServer creates the application HTTP server.
func NewHTTPServer(cfg HTTPServerConfig, sc *ServerContext, health *HealthChecker) *HTTPServer {
	if cfg.Addr == "" {
		cfg.Addr = DefaultHTTPAddr
	}
	return &HTTPServer{
		addr:   cfg.Addr,
		sc:     sc,
		health: health,
		token:  cfg.IngestToken,
	}
}

// Start runs the server until it fails or is shut down. Call in a goroutine
// for non-blocking operation.
func (s *HTTPServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ingest/inbound", s.handleInbound)
	mux.Handle("/webhooks/delivery", s.sc.DeliveryListener())
	if s.health != nil {
		s.health.RegisterHealthEndpoints(mux)
	}

	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.sc.Logger().Info("starting http server", slog.String("addr", s.addr))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// Addr returns the configured bind address.
func (s *HTTPServer) Addr() string { return s.addr }

// handleInbound accepts raw RFC 5322 bytes and runs them through the
// ingestion pipeline. Responses carry only identifiers; an unapproved
// message's content is not echoed back.
func (s *HTTPServer) handleInbound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.ingestAuthorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxInboundSize+1))
	if err != nil {
		http.Error(w, "reading request body", http.StatusBadRequest)
		return
	}
	if len(raw) == 0 {
		http.Error(w, "empty message", http.StatusBadRequest)
		return
	}
	if len(raw) > maxInboundSize {
		http.Error(w, "message too large", http.StatusRequestEntityTooLarge)
		return
	}

	msg, err := s.sc.Pipeline().IngestRaw(r.Context(), raw)
	if err != nil {
		s.sc.Logger().Error("inbound ingestion failed", logging.Err(err))
		http.Error(w, "ingestion failed", http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte(`{"id":"` + msg.ID + `","thread_id":"` + msg.ThreadID + `"}`))
}

func (s *HTTPServer) ingestAuthorized(r *http.Request) bool {
	if s.token == "" {
		return false
	}
	got := r.Header.Get("Authorization")
	want := "Bearer " + s.token
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
