// Package sink implements the Transcript Sink & Router: it fans a session's
// ordered TranscriptEvent stream out to every interested subscriber without
// letting a slow or broken one block the others.
package sink

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opsframe/meetbridge/internal/observe"
	"github.com/opsframe/meetbridge/pkg/types"
)

// Subscriber receives transcript envelopes. Implemented by
// internal/ingress.Connection for bot-registered clients.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
}

// Registry tracks the set of currently-registered Subscribers.
type Registry interface {
	Register(sub Subscriber)
	Unregister(id string)
}

// Journal receives every TranscriptEvent for durable persistence. Append
// must not block the caller for long; the Sink enqueues to it before
// fanning the event out to network subscribers, per the ordering
// invariant that no event reaches a subscriber before its persistence is
// enqueued.
type Journal interface {
	Append(types.TranscriptEvent)
}

// Observer receives every TranscriptEvent for in-process use (e.g. a local
// CLI display). Optional.
type Observer interface {
	Observe(types.TranscriptEvent)
}

// transcriptionEnvelope is the JSON wire format delivered to bot-registered
// subscribers.
type transcriptionEnvelope struct {
	Type string              `json:"type"`
	Data transcriptionFields `json:"data"`
}

type transcriptionFields struct {
	Text      string `json:"text"`
	IsFinal   bool   `json:"isFinal"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

// subEntry pairs a Subscriber with the mailbox a dedicated goroutine drains
// on its behalf, so one slow Subscriber.Send cannot stall delivery to the
// others.
type subEntry struct {
	sub  Subscriber
	mbox *mailbox
}

// Sink implements Registry and fans out TranscriptEvents delivered via
// Deliver. It satisfies internal/bridge.EventSink.
//
// Registration bookkeeping is guarded by a mutex; each registered
// Subscriber gets its own bounded, drop-oldest mailbox and drain goroutine,
// decoupling Deliver from any single subscriber's write latency.
type Sink struct {
	mu   sync.RWMutex
	subs map[string]*subEntry

	journal  Journal
	observer Observer
	metrics  *observe.Metrics
}

// Config constructs a Sink.
type Config struct {
	Journal  Journal
	Observer Observer
	Metrics  *observe.Metrics
}

// New creates a Sink. Journal and Observer are both optional.
func New(cfg Config) *Sink {
	return &Sink{
		subs:     make(map[string]*subEntry),
		journal:  cfg.Journal,
		observer: cfg.Observer,
		metrics:  cfg.Metrics,
	}
}

// Register implements Registry. It starts a drain goroutine that delivers
// queued payloads to sub in order until Unregister is called.
func (s *Sink) Register(sub Subscriber) {
	entry := &subEntry{sub: sub, mbox: newMailbox(defaultMailboxSize)}

	s.mu.Lock()
	if old, ok := s.subs[sub.ID()]; ok {
		old.mbox.close()
	}
	s.subs[sub.ID()] = entry
	s.mu.Unlock()

	go entry.drain()
}

// Unregister implements Registry.
func (s *Sink) Unregister(id string) {
	s.mu.Lock()
	entry, ok := s.subs[id]
	delete(s.subs, id)
	s.mu.Unlock()
	if ok {
		entry.mbox.close()
	}
}

// drain delivers queued payloads to the subscriber in order until the
// mailbox is closed. Send failures are logged; the subscriber is never
// removed as a result (only an explicit Unregister does that).
func (e *subEntry) drain() {
	for {
		payload, ok := e.mbox.pop()
		if !ok {
			return
		}
		if err := e.sub.Send(payload); err != nil {
			slog.Warn("sink: delivery failed", "subscriber", e.sub.ID(), "err", err)
		}
	}
}

// Deliver implements internal/bridge.EventSink. It enqueues the event to the
// journal first, then snapshots the current subscriber list and pushes the
// encoded envelope onto each subscriber's mailbox — a non-blocking,
// best-effort enqueue. A full mailbox silently drops its oldest entry
// rather than applying backpressure to this call.
func (s *Sink) Deliver(evt types.TranscriptEvent) {
	if s.journal != nil {
		s.journal.Append(evt)
	}
	if s.observer != nil {
		s.observer.Observe(evt)
	}

	if s.metrics != nil {
		s.metrics.RecordTranscriptEvent(context.Background(), evt.IsFinal, 0)
	}

	entries := s.snapshot()
	if len(entries) == 0 {
		return
	}

	payload, err := encodeEnvelope(evt)
	if err != nil {
		slog.Error("sink: encode transcript envelope", "err", err)
		return
	}

	for _, entry := range entries {
		if dropped := entry.mbox.push(payload); dropped {
			slog.Warn("sink: mailbox full, dropped oldest entry", "subscriber", entry.sub.ID())
		}
	}
}

func (s *Sink) snapshot() []*subEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*subEntry, 0, len(s.subs))
	for _, entry := range s.subs {
		out = append(out, entry)
	}
	return out
}

func encodeEnvelope(evt types.TranscriptEvent) ([]byte, error) {
	var start, end time.Duration
	if n := len(evt.Words); n > 0 {
		start = evt.Words[0].Start
		end = evt.Words[n-1].End
	}
	return json.Marshal(transcriptionEnvelope{
		Type: "transcription",
		Data: transcriptionFields{
			Text:      evt.Text,
			IsFinal:   evt.IsFinal,
			StartTime: start.Milliseconds(),
			EndTime:   end.Milliseconds(),
		},
	})
}
