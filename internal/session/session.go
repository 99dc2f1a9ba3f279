package session

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opsframe/meetbridge/pkg/types"
)

// Default timing parameters from the transition table.
const (
	// DefaultGraceWindow is how long FatalError is held before teardown, so
	// observers can display the error.
	DefaultGraceWindow = 3 * time.Second

	// DefaultTeardownDeadline bounds how long Draining may take before a
	// task is abandoned and logged.
	DefaultTeardownDeadline = 5 * time.Second
)

// AudioFormat describes the PCM format asserted to the provider and used for
// the WAV header.
type AudioFormat struct {
	SampleRateHz int
	Channels     int
	BitDepth     int
}

// Config are the construction parameters for a Session.
type Config struct {
	// ID is the session identifier. If empty, New generates a UUID.
	ID string

	Mode        Mode
	ProviderID  string
	AudioFormat AudioFormat

	// GraceWindow overrides DefaultGraceWindow. Zero uses the default.
	GraceWindow time.Duration

	// TeardownDeadline overrides DefaultTeardownDeadline. Zero uses the default.
	TeardownDeadline time.Duration
}

// Session owns one meeting's state machine, startup gate, and current
// speaker. It is the single writer of both; every other component reads
// through the accessors below.
//
// Safe for concurrent use.
type Session struct {
	id          string
	mode        Mode
	providerID  string
	audioFormat AudioFormat
	createdAt   time.Time

	graceWindow      time.Duration
	teardownDeadline time.Duration

	mu    sync.Mutex
	state State

	ingressCount int
	bridgeClosed bool
	flushed      bool

	gate     gate
	speakers speakerTracker

	fatalCh        chan error
	drainCh        chan struct{}
	drainOnce      sync.Once
	terminated     chan struct{}
	terminatedOnce sync.Once
}

// New creates a Session in the Idle state and immediately transitions it to
// AwaitingIngress, mirroring the "server started" trigger.
func New(cfg Config) *Session {
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	grace := cfg.GraceWindow
	if grace <= 0 {
		grace = DefaultGraceWindow
	}
	deadline := cfg.TeardownDeadline
	if deadline <= 0 {
		deadline = DefaultTeardownDeadline
	}

	s := &Session{
		id:               id,
		mode:             cfg.Mode,
		providerID:       cfg.ProviderID,
		audioFormat:      cfg.AudioFormat,
		createdAt:        time.Now(),
		graceWindow:      grace,
		teardownDeadline: deadline,
		state:            AwaitingIngress,
		fatalCh:          make(chan error, 1),
		drainCh:          make(chan struct{}),
		terminated:       make(chan struct{}),
	}
	return s
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// Mode returns the configured mode.
func (s *Session) Mode() Mode { return s.mode }

// ProviderID returns the configured STT provider id.
func (s *Session) ProviderID() string { return s.providerID }

// AudioFormat returns the negotiated audio format.
func (s *Session) AudioFormat() AudioFormat { return s.audioFormat }

// CreatedAt returns when the session was constructed.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// GateOpen reports whether Audio Ingress may currently forward PCM to the
// Provider Bridge. Safe to call from the audio hot path without locking.
func (s *Session) GateOpen() bool {
	return s.gate.Open()
}

// CurrentSpeaker returns a snapshot of the current speaker, or nil.
func (s *Session) CurrentSpeaker() *types.SpeakerInfo {
	return s.speakers.Current()
}

// UpdateSpeaker applies a SpeakerMeta observation and reports whether it
// changed current_speaker (a rising edge).
func (s *Session) UpdateSpeaker(info types.SpeakerInfo) bool {
	return s.speakers.Update(info)
}

// Draining returns a channel closed the moment the session enters Draining,
// from any trigger. Components select on it to begin unwinding.
func (s *Session) Draining() <-chan struct{} {
	return s.drainCh
}

// Terminated returns a channel closed once the session reaches Terminated.
func (s *Session) Terminated() <-chan struct{} {
	return s.terminated
}

// FatalErr returns a channel that receives at most one error, published when
// the Provider Bridge reports an unrecoverable init failure.
func (s *Session) FatalErr() <-chan error {
	return s.fatalCh
}

// IngressOpened records a newly accepted ingress connection. It returns the
// resulting state and whether the caller should request Provider Bridge
// startup (true exactly once: on the first connection in Local mode, or
// later when the gate opens in Remote mode).
func (s *Session) IngressOpened() (State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ingressCount++
	if s.state != AwaitingIngress {
		// Reconnection during Streaming (or any later state) adds a
		// subscriber; it does not reset the session.
		return s.state, false
	}

	if s.mode == ModeLocal {
		s.state = Streaming
		s.gate.set(true)
		return s.state, true
	}

	s.state = AwaitingGate
	return s.state, false
}

// IngressClosed records a closed ingress connection and returns the
// resulting state. Closing the last connection while Streaming triggers
// Draining.
func (s *Session) IngressClosed() State {
	s.mu.Lock()
	if s.ingressCount > 0 {
		s.ingressCount--
	}
	lastClosedWhileStreaming := s.ingressCount == 0 && s.state == Streaming
	s.mu.Unlock()

	if lastClosedWhileStreaming {
		return s.triggerDrain()
	}
	return s.State()
}

// ApplyControlEvent dispatches a decoded webhook ControlEvent to the state
// machine. It returns the resulting state and whether the caller should
// request Provider Bridge startup. Events are applied in AwaitingGate and
// also in AwaitingIngress, so a webhook that arrives before the first
// ingress connection is not lost; in any other state they are ignored.
func (s *Session) ApplyControlEvent(evt types.ControlEvent) (State, bool) {
	s.mu.Lock()
	if s.state != AwaitingGate && s.state != AwaitingIngress {
		st := s.state
		s.mu.Unlock()
		return st, false
	}

	switch {
	case evt.Kind == types.EventBotStatusChange && evt.StatusCode == types.StatusInCallNotRecording:
		s.state = Streaming
		s.gate.set(true)
		s.mu.Unlock()
		return Streaming, true

	case evt.Kind == types.EventBotRecordingPermissionDenied, evt.Kind == types.EventMeetingEnded:
		s.mu.Unlock()
		return s.triggerDrain(), false

	default:
		st := s.state
		s.mu.Unlock()
		return st, false
	}
}

// BridgeFatal reports an unrecoverable Provider Bridge init failure. It
// transitions to FatalError, publishes err on FatalErr (best-effort, never
// blocks), and schedules Draining after the grace window.
func (s *Session) BridgeFatal(err error) State {
	s.mu.Lock()
	if s.state == FatalError || s.state == Draining || s.state == Terminated {
		st := s.state
		s.mu.Unlock()
		return st
	}
	s.state = FatalError
	s.mu.Unlock()

	select {
	case s.fatalCh <- err:
	default:
	}

	slog.Error("session: provider bridge fatal error", "session_id", s.id, "err", err, "grace", s.graceWindow)
	time.AfterFunc(s.graceWindow, func() {
		s.triggerDrain()
	})
	return FatalError
}

// Interrupt handles an external interrupt (or provider mid-stream closure
// before drain): unconditionally triggers Draining.
func (s *Session) Interrupt() State {
	return s.triggerDrain()
}

// triggerDrain moves the session into Draining exactly once, regardless of
// how many triggers fire concurrently (invariant 5).
func (s *Session) triggerDrain() State {
	s.drainOnce.Do(func() {
		s.mu.Lock()
		if s.state != Terminated {
			s.state = Draining
		}
		s.mu.Unlock()
		close(s.drainCh)
	})
	return s.State()
}

// AckBridgeClosed records that the Provider Bridge close has been
// acknowledged. Combined with AckPersistenceFlushed, this completes the
// Draining → Terminated transition.
func (s *Session) AckBridgeClosed() State {
	s.mu.Lock()
	s.bridgeClosed = true
	ready := s.bridgeClosed && s.flushed
	s.mu.Unlock()
	return s.maybeTerminate(ready)
}

// AckPersistenceFlushed records that the journal has been flushed to disk.
func (s *Session) AckPersistenceFlushed() State {
	s.mu.Lock()
	s.flushed = true
	ready := s.bridgeClosed && s.flushed
	s.mu.Unlock()
	return s.maybeTerminate(ready)
}

func (s *Session) maybeTerminate(ready bool) State {
	if !ready {
		return s.State()
	}
	s.mu.Lock()
	if s.state != Terminated {
		s.state = Terminated
	}
	st := s.state
	s.mu.Unlock()

	s.terminatedOnce.Do(func() { close(s.terminated) })
	return st
}

// TeardownDeadline returns the bounded time allotted for Draining before a
// task is abandoned and logged.
func (s *Session) TeardownDeadline() time.Duration { return s.teardownDeadline }

// String implements fmt.Stringer for log lines.
func (s *Session) String() string {
	return fmt.Sprintf("session(id=%s mode=%s state=%s)", s.id, s.mode, s.State())
}
