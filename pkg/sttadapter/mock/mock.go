// Package mock provides test doubles for the sttadapter package interfaces.
//
// Use Adapter to verify that the caller opens sessions with the expected
// StreamConfig. Use Session to feed controlled Event values and inspect which
// audio chunks were delivered.
//
// Example:
//
//	sess := &mock.Session{EventsCh: make(chan sttadapter.Event, 4)}
//	a := &mock.Adapter{Session: sess}
//	handle, _ := a.Open(ctx, cfg)
package mock

import (
	"context"
	"sync"

	"github.com/opsframe/meetbridge/pkg/sttadapter"
)

// OpenCall records a single invocation of Adapter.Open.
type OpenCall struct {
	Ctx context.Context
	Cfg sttadapter.StreamConfig
}

// Adapter is a mock implementation of sttadapter.Adapter.
type Adapter struct {
	mu sync.Mutex

	// Session is the Session returned by Open. If nil, Open returns a new
	// default Session with a buffered event channel.
	Session sttadapter.Session

	// OpenErr, if non-nil, is returned as the error from Open.
	OpenErr error

	// OpenCalls records every call to Open.
	OpenCalls []OpenCall
}

// Open records the call and returns Session, OpenErr.
func (a *Adapter) Open(ctx context.Context, cfg sttadapter.StreamConfig) (sttadapter.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.OpenCalls = append(a.OpenCalls, OpenCall{Ctx: ctx, Cfg: cfg})
	if a.OpenErr != nil {
		return nil, a.OpenErr
	}
	if a.Session != nil {
		return a.Session, nil
	}
	return &Session{EventsCh: make(chan sttadapter.Event, 16)}, nil
}

// Reset clears all recorded calls. Thread-safe.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.OpenCalls = nil
}

var _ sttadapter.Adapter = (*Adapter)(nil)

// SendAudioCall records a single invocation of Session.SendAudio.
type SendAudioCall struct {
	// Chunk is a copy of the audio bytes passed to SendAudio.
	Chunk []byte
}

// Session is a mock implementation of sttadapter.Session. Callers should
// pre-populate EventsCh with the Event values they want the consumer to
// receive, then close it when done.
type Session struct {
	mu sync.Mutex

	// EventsCh is the channel returned by Events(). Callers own this channel
	// and are responsible for sending to and closing it in tests.
	EventsCh chan sttadapter.Event

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls records every call to SendAudio in order.
	SendAudioCalls []SendAudioCall

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SendAudioCalls = append(s.SendAudioCalls, SendAudioCall{Chunk: cp})
	return s.SendAudioErr
}

// Events returns EventsCh.
func (s *Session) Events() <-chan sttadapter.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.EventsCh
}

// Close records the call and returns CloseErr.
func (s *Session) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

// SendAudioCallCount returns the number of SendAudio calls. Thread-safe.
func (s *Session) SendAudioCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.SendAudioCalls)
}

// ResetCalls clears all recorded calls. Thread-safe.
func (s *Session) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = nil
	s.CloseCallCount = 0
}

var _ sttadapter.Session = (*Session)(nil)
