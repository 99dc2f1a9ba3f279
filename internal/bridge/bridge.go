// Package bridge implements the Provider Bridge: it owns the single live STT
// adapter session for a meeting, forwards gated PCM audio to it in arrival
// order, and relays the adapter's ordered event stream to the Transcript
// Sink without reordering or deduplication.
package bridge

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/opsframe/meetbridge/internal/observe"
	"github.com/opsframe/meetbridge/internal/session"
	"github.com/opsframe/meetbridge/internal/transcript/phonetic"
	"github.com/opsframe/meetbridge/pkg/sttadapter"
	"github.com/opsframe/meetbridge/pkg/types"
)

// maxInitErrorMessage bounds the displayed length of an InitError message,
// per the Provider Bridge's init-failure handling rule.
const maxInitErrorMessage = 128

// EventSink receives TranscriptEvents produced by the provider, in the order
// they were emitted. Implemented by internal/sink.Sink.
type EventSink interface {
	Deliver(types.TranscriptEvent)
}

// DroppedFrameJournal records a dropped PCM frame for the session summary.
// Implemented by internal/journal.Writer. Optional.
type DroppedFrameJournal interface {
	RecordDroppedFrame()
}

// Bridge wraps a single sttadapter.Adapter and the one Session it serves.
// Start must be called at most once; ForwardPCM and Close are safe for
// concurrent use with each other and with Start.
type Bridge struct {
	adapter sttadapter.Adapter
	sess    *session.Session
	sink    EventSink
	journal DroppedFrameJournal
	metrics *observe.Metrics
	cfg     sttadapter.StreamConfig

	phoneticMatcher *phonetic.Matcher
	keywordVocab    []string

	startOnce sync.Once

	mu     sync.Mutex
	handle sttadapter.Session
	opened bool

	closeOnce sync.Once
}

// Config constructs a Bridge.
type Config struct {
	Adapter  sttadapter.Adapter
	Session  *session.Session
	Sink     EventSink
	Journal  DroppedFrameJournal // optional
	Metrics  *observe.Metrics
	AudioCfg sttadapter.StreamConfig
}

// New creates a Bridge bound to one session and adapter.
func New(cfg Config) *Bridge {
	vocab := make([]string, 0, len(cfg.AudioCfg.Keywords))
	for _, kw := range cfg.AudioCfg.Keywords {
		vocab = append(vocab, kw.Keyword)
	}

	b := &Bridge{
		adapter:      cfg.Adapter,
		sess:         cfg.Session,
		sink:         cfg.Sink,
		journal:      cfg.Journal,
		metrics:      cfg.Metrics,
		cfg:          cfg.AudioCfg,
		keywordVocab: vocab,
	}
	if len(vocab) > 0 {
		b.phoneticMatcher = phonetic.New()
	}
	return b
}

// Start opens the adapter session exactly once. On InitError it publishes a
// truncated fatal error to the Session and never starts the read loop. On
// success it starts the read loop that relays the adapter's Events channel
// to the Sink.
func (b *Bridge) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		handle, err := b.adapter.Open(ctx, b.cfg)
		if err != nil {
			b.handleInitError(err)
			return
		}

		b.mu.Lock()
		b.handle = handle
		b.opened = true
		b.mu.Unlock()

		go b.readLoop(handle)
	})
}

func (b *Bridge) handleInitError(err error) {
	if b.metrics != nil {
		b.metrics.RecordProviderInitError(context.Background(), b.sess.ProviderID())
	}
	msg, cause := err.Error(), error(nil)
	var initErr *sttadapter.InitError
	if errors.As(err, &initErr) {
		msg, cause = initErr.Message, initErr.Cause
	}
	if len(msg) > maxInitErrorMessage {
		msg = msg[:maxInitErrorMessage]
	}
	slog.Error("bridge: provider init failed", "session_id", b.sess.ID(), "provider", b.sess.ProviderID(), "error", msg)
	b.sess.BridgeFatal(&sttadapter.InitError{Message: msg, Cause: cause})
}

// ForwardPCM delivers one PCM chunk to the provider if a session is open.
// Frames arriving before open has completed are dropped with a counter, not
// buffered, per the Provider Bridge's ordering rule.
func (b *Bridge) ForwardPCM(chunk []byte) {
	b.mu.Lock()
	handle, opened := b.handle, b.opened
	b.mu.Unlock()

	if !opened {
		if b.metrics != nil {
			b.metrics.RecordDroppedFrame(context.Background(), "provider_not_open")
		}
		if b.journal != nil {
			b.journal.RecordDroppedFrame()
		}
		return
	}

	if err := handle.SendAudio(chunk); err != nil {
		if b.metrics != nil {
			b.metrics.RecordProviderTransportError(context.Background(), b.sess.ProviderID())
		}
		slog.Warn("bridge: send_audio failed, dropping frame", "session_id", b.sess.ID(), "err", err)
	}
}

// readLoop relays handle.Events() to the sink in emission order until the
// channel closes.
func (b *Bridge) readLoop(handle sttadapter.Session) {
	for ev := range handle.Events() {
		switch {
		case ev.Err != nil:
			if b.metrics != nil {
				b.metrics.RecordProviderTransportError(context.Background(), b.sess.ProviderID())
			}
			slog.Warn("bridge: provider reported a mid-stream error", "session_id", b.sess.ID(), "err", ev.Err)

		case ev.Closed:
			slog.Info("bridge: provider closed the stream", "session_id", b.sess.ID())
			b.sess.Interrupt()

		case ev.Transcript != nil:
			b.deliver(*ev.Transcript)
		}
	}
}

func (b *Bridge) deliver(t sttadapter.Transcript) {
	text, words := b.correctKeywords(t.Text, t.Words)
	b.sink.Deliver(types.TranscriptEvent{
		Text:       text,
		IsFinal:    t.IsFinal,
		ReceivedAt: time.Now(),
		Speaker:    b.sess.CurrentSpeaker(),
		Confidence: t.Confidence,
		Words:      words,
	})
}

// correctKeywords phonetically corrects each word against the configured
// keyword-boost vocabulary, then rebuilds Text from the corrected words when
// any correction was applied. A provider's own keyword boosting (set via
// StreamConfig.Keywords) still runs first; this is a second-pass correction
// for the cases it misses.
func (b *Bridge) correctKeywords(text string, words []types.WordDetail) (string, []types.WordDetail) {
	if b.phoneticMatcher == nil || len(words) == 0 {
		return text, words
	}

	corrected := make([]types.WordDetail, len(words))
	changed := false
	parts := make([]string, len(words))
	for i, w := range words {
		corrected[i] = w
		if match, _, ok := b.phoneticMatcher.Match(w.Word, b.keywordVocab); ok && match != w.Word {
			corrected[i].Word = match
			changed = true
		}
		parts[i] = corrected[i].Word
	}

	if !changed {
		return text, words
	}
	return strings.Join(parts, " "), corrected
}

// Close half-closes the provider session: stops accepting new audio (the
// caller is expected to stop calling ForwardPCM), flushes any in-flight
// send, and waits for the provider to acknowledge, bounded by the session's
// teardown deadline. A timeout force-abandons the handle.
func (b *Bridge) Close(ctx context.Context) {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		handle, opened := b.handle, b.opened
		b.mu.Unlock()
		if !opened {
			return
		}

		deadline := b.sess.TeardownDeadline()
		cctx, cancel := context.WithTimeout(ctx, deadline)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- handle.Close(cctx) }()

		select {
		case err := <-done:
			if err != nil {
				slog.Warn("bridge: provider close returned an error", "session_id", b.sess.ID(), "err", err)
			}
		case <-cctx.Done():
			slog.Warn("bridge: provider close timed out, abandoning handle", "session_id", b.sess.ID(), "deadline", deadline)
		}
	})
}
