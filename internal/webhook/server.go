// Package webhook implements the Webhook Intake & Control Plane: a small
// HTTP surface that decodes conferencing-platform control events and
// dispatches them to the session state machine.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsframe/meetbridge/internal/health"
	"github.com/opsframe/meetbridge/internal/observe"
	"github.com/opsframe/meetbridge/internal/session"
)

const serviceName = "meetbridge"

// Server serves the webhook intake and health endpoints for one Session.
//
// Dispatch is serialized per session: a single mutex ensures at most one
// ControlEvent is being applied to the state machine at a time, matching
// the contract that control events are processed in HTTP arrival order
// with no cross-event concurrency. The HTTP response is sent only after
// dispatch completes, giving the caller natural back-pressure.
type Server struct {
	addr string
	sess *session.Session

	// onGateOpen is invoked at most once, synchronously during dispatch,
	// the moment a control event opens the gate (Remote mode). Local mode's
	// gate-open is driven directly by the ingress connection instead.
	onGateOpen func()

	metrics *observe.Metrics

	dispatchMu sync.Mutex
	httpServer *http.Server
}

// Config configures a new webhook Server.
type Config struct {
	Addr       string
	Session    *session.Session
	OnGateOpen func()
	Metrics    *observe.Metrics
}

// NewServer creates a webhook Server. It does not start listening until
// ListenAndServe is called.
func NewServer(cfg Config) *Server {
	s := &Server{
		addr:       cfg.Addr,
		sess:       cfg.Session,
		onGateOpen: cfg.OnGateOpen,
		metrics:    cfg.Metrics,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/{platform}", s.handleWebhook)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	health.New(health.Checker{
		Name: "session",
		Check: func(_ context.Context) error {
			if s.sess.State() == session.FatalError {
				return fmt.Errorf("session %s is in FatalError state", s.sess.ID())
			}
			return nil
		},
	}).Register(mux)

	var handler http.Handler = mux
	if s.metrics != nil {
		handler = observe.Middleware(s.metrics)(handler)
	}
	s.httpServer = &http.Server{Addr: s.addr, Handler: recoverMiddleware(handler)}
	return s
}

// ListenAndServe starts serving. It blocks until shut down, returning
// http.ErrServerClosed on a clean Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("webhook: listening", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	platform := r.PathValue("platform")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read request body", err)
		return
	}

	evt, err := decodePayload(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook payload", err)
		return
	}

	s.dispatchMu.Lock()
	state, startBridge := s.sess.ApplyControlEvent(evt)
	s.dispatchMu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordWebhookEvent(r.Context(), string(evt.Kind))
	}
	slog.Info("webhook: dispatched control event", "platform", platform, "kind", evt.Kind, "state", state)

	if startBridge && s.onGateOpen != nil {
		s.onGateOpen()
	}

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC(),
	})
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	writeJSON(w, status, errorResponse{Error: msg, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// recoverMiddleware converts a panicking handler into a 500 response, per
// the error taxonomy's "handler exceptions return 500" rule.
func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("webhook: handler panic", "recovered", rec)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
