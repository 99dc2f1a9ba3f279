package ingress

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/opsframe/meetbridge/internal/observe"
	"github.com/opsframe/meetbridge/internal/session"
	"github.com/opsframe/meetbridge/internal/sink"
)

// sendTimeout bounds how long a single outbound write to an ingress client
// may take before it is treated as a failed delivery.
const sendTimeout = 5 * time.Second

// Server accepts WebSocket connections on a configured host:port and
// demultiplexes each into registration, speaker-metadata, and PCM frames for
// one Session.
type Server struct {
	addr string

	sess      *session.Session
	forwarder Forwarder
	registry  sink.Registry
	journal   DroppedFrameJournal
	metrics   *observe.Metrics

	// OnGateOpen is invoked at most once, the moment the session transitions
	// to Streaming as a direct result of an ingress connection (Local mode
	// first-connect). The Provider Bridge startup triggered by a webhook
	// gate-open is driven by the webhook package instead.
	onGateOpen func()

	httpServer *http.Server
}

// Config configures a new ingress Server.
type Config struct {
	Addr       string
	Session    *session.Session
	Forwarder  Forwarder
	Registry   sink.Registry
	Journal    DroppedFrameJournal // optional
	Metrics    *observe.Metrics
	OnGateOpen func()
}

// NewServer creates an ingress Server. It does not start listening until
// ListenAndServe is called.
func NewServer(cfg Config) *Server {
	s := &Server{
		addr:       cfg.Addr,
		sess:       cfg.Session,
		forwarder:  cfg.Forwarder,
		registry:   cfg.Registry,
		journal:    cfg.Journal,
		metrics:    cfg.Metrics,
		onGateOpen: cfg.OnGateOpen,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	var handler http.Handler = mux
	if s.metrics != nil {
		handler = observe.Middleware(s.metrics)(handler)
	}
	s.httpServer = &http.Server{Addr: s.addr, Handler: handler}
	return s
}

// ListenAndServe starts serving WebSocket connections. It blocks until the
// server is shut down, returning http.ErrServerClosed on a clean Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("ingress: listening", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops accepting new connections.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("ingress: accept failed", "err", err)
		return
	}

	c := newConnection(conn, s.sess, s.forwarder, s.registry, s.journal, s.metrics, s.onGateOpen)
	c.run(r.Context())
}
