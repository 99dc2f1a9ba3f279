// Package app wires meetbridge's subsystems into a running mediator
// instance: one Session, its Provider Bridge, the audio ingress and webhook
// HTTP servers, the transcript sink, and the journal writers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opsframe/meetbridge/internal/bridge"
	"github.com/opsframe/meetbridge/internal/config"
	"github.com/opsframe/meetbridge/internal/ingress"
	"github.com/opsframe/meetbridge/internal/journal"
	"github.com/opsframe/meetbridge/internal/observe"
	"github.com/opsframe/meetbridge/internal/session"
	"github.com/opsframe/meetbridge/internal/sink"
	"github.com/opsframe/meetbridge/internal/webhook"
	"github.com/opsframe/meetbridge/pkg/sttadapter"
	"golang.org/x/sync/errgroup"
)

// App owns the lifetime of one meeting's full mediator stack. In the
// process-per-meeting deployment model there is exactly one Session per App.
type App struct {
	cfg     *config.Config
	sess    *session.Session
	bridge  *bridge.Bridge
	sink    *sink.Sink
	journal *journal.Writer
	index   *journal.PostgresIndex

	ingressSrv *ingress.Server
	webhookSrv *webhook.Server

	metrics *observe.Metrics

	// closers run in order during Shutdown.
	closers []func() error

	startBridgeOnce sync.Once
	stopOnce        sync.Once
}

// New wires every subsystem from cfg. It performs all initialization
// synchronously: provider registry, Session, journal writers, the
// Provider Bridge, the Transcript Sink, and both HTTP servers.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	a.metrics = observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	adapter, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("app: create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}

	mode := session.ModeRemote
	if cfg.Server.Mode == config.ModeLocal {
		mode = session.ModeLocal
	}
	a.sess = session.New(session.Config{
		Mode:       mode,
		ProviderID: cfg.Providers.STT.Name,
		AudioFormat: session.AudioFormat{
			SampleRateHz: cfg.Audio.SampleRateHz,
			Channels:     cfg.Audio.Channels,
			BitDepth:     cfg.Audio.BitDepth,
		},
	})

	if err := a.initJournal(ctx); err != nil {
		return nil, err
	}

	a.sink = sink.New(sink.Config{Journal: a.journal, Metrics: a.metrics})

	// a.journal is a typed *journal.Writer; only assign it into the narrower
	// DroppedFrameJournal interfaces when non-nil, for the same reason as
	// initJournal's Index guard below — otherwise a disabled transcript log
	// would still make bridge/ingress's "is a journal configured" check true.
	var bridgeJournal bridge.DroppedFrameJournal
	var ingressJournal ingress.DroppedFrameJournal
	if a.journal != nil {
		bridgeJournal = a.journal
		ingressJournal = a.journal
	}

	a.bridge = bridge.New(bridge.Config{
		Adapter: adapter,
		Session: a.sess,
		Sink:    a.sink,
		Journal: bridgeJournal,
		Metrics: a.metrics,
		AudioCfg: sttadapter.StreamConfig{
			Encoding:     sttadapter.EncodingPCMS16LE,
			SampleRateHz: cfg.Audio.SampleRateHz,
			Channels:     cfg.Audio.Channels,
			Language:     cfg.Providers.STT.Language,
		},
	})
	a.closers = append(a.closers, func() error {
		cctx, cancel := context.WithTimeout(context.Background(), a.sess.TeardownDeadline())
		defer cancel()
		a.bridge.Close(cctx)
		return nil
	})

	var forwarder ingress.Forwarder = a.bridge
	if cfg.Recording.Enabled {
		wav, err := journal.NewWAVWriter(cfg.Recording.Dir, a.sess.CreatedAt(), cfg.Audio.SampleRateHz, cfg.Audio.Channels)
		if err != nil {
			return nil, fmt.Errorf("app: init wav recorder: %w", err)
		}
		forwarder = &recordingForwarder{next: a.bridge, wav: wav}
		a.closers = append(a.closers, wav.Close)
	}

	ingressAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	a.ingressSrv = ingress.NewServer(ingress.Config{
		Addr:       ingressAddr,
		Session:    a.sess,
		Forwarder:  forwarder,
		Registry:   a.sink,
		Journal:    ingressJournal,
		Metrics:    a.metrics,
		OnGateOpen: a.startBridge,
	})
	a.closers = append(a.closers, func() error {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.ingressSrv.Shutdown(cctx)
	})

	if cfg.Server.WebhookAddr != "" {
		a.webhookSrv = webhook.NewServer(webhook.Config{
			Addr:       cfg.Server.WebhookAddr,
			Session:    a.sess,
			OnGateOpen: a.startBridge,
			Metrics:    a.metrics,
		})
		a.closers = append(a.closers, func() error {
			cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.webhookSrv.Shutdown(cctx)
		})
	}

	// Local mode opens the gate (and therefore the bridge) the moment the
	// first ingress connection registers, with no webhook involved: the
	// ingress server's OnGateOpen callback starts the bridge then.

	return a, nil
}

func (a *App) initJournal(ctx context.Context) error {
	if a.cfg.Memory.PostgresDSN != "" {
		idx, err := journal.NewPostgresIndex(ctx, a.cfg.Memory.PostgresDSN)
		if err != nil {
			return fmt.Errorf("app: init postgres session index: %w", err)
		}
		a.index = idx
		a.closers = append(a.closers, func() error {
			idx.Close()
			return nil
		})
	}

	if !a.cfg.Transcript.LoggingEnabled {
		return nil
	}

	// a.index is a typed *journal.PostgresIndex; only assign it to the
	// Index interface field when non-nil, or a nil-pointer-in-non-nil-
	// interface would make the journal.Writer's "is an index configured"
	// check always true.
	var idx journal.Index
	if a.index != nil {
		idx = a.index
	}

	w, err := journal.New(journal.Config{
		BaseDir:    a.cfg.Transcript.Dir,
		SessionID:  a.sess.ID(),
		ProviderID: a.cfg.Providers.STT.Name,
		StartedAt:  a.sess.CreatedAt(),
		Index:      idx,
	})
	if err != nil {
		return fmt.Errorf("app: init journal: %w", err)
	}
	a.journal = w
	a.closers = append(a.closers, func() error {
		return w.Close(context.Background(), time.Now())
	})
	return nil
}

// startBridge starts the Provider Bridge exactly once, the first time any
// gate-open trigger (Local-mode first connect, or a Remote-mode control
// event) fires.
func (a *App) startBridge() {
	a.startBridgeOnce.Do(func() {
		slog.Info("app: starting provider bridge", "session_id", a.sess.ID(), "provider", a.sess.ProviderID())
		a.bridge.Start(context.Background())
	})
}

// Run starts both HTTP servers concurrently via an errgroup, the same
// bounded concurrent fan-out pattern used elsewhere in this codebase. It
// blocks until the session drains, ctx is cancelled, or a server exits,
// whichever comes first; the servers themselves keep running until Shutdown
// calls their own Shutdown methods.
func (a *App) Run(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		if err := a.ingressSrv.ListenAndServe(); err != nil {
			return fmt.Errorf("ingress server: %w", err)
		}
		return nil
	})

	if a.webhookSrv != nil {
		g.Go(func() error {
			if err := a.webhookSrv.ListenAndServe(); err != nil {
				return fmt.Errorf("webhook server: %w", err)
			}
			return nil
		})
	}

	errCh := make(chan error, 1)
	go func() { errCh <- g.Wait() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-a.sess.Draining():
		slog.Info("app: session draining")
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown tears down every subsystem in registration order, bounded by
// ctx's deadline.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		a.sess.AckBridgeClosed()
		a.sess.AckPersistenceFlushed()
	})
	return shutdownErr
}

// Session returns the mediator's single Session, for tests and diagnostics.
func (a *App) Session() *session.Session { return a.sess }
