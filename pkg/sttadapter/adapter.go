// Package sttadapter defines the Adapter contract for streaming speech-to-text
// backends. An Adapter wraps a real-time transcription service (Deepgram,
// Google Cloud Speech, Azure Cognitive Services Speech, or an offline
// whisper.cpp model) and exposes a uniform streaming interface to the
// provider bridge.
//
// The central abstraction is Session: once opened, a session accepts raw PCM
// audio and emits a single ordered Event stream. Events are never reordered
// or deduplicated by an Adapter implementation — the provider bridge relies
// on that ordering guarantee when appending to the transcript journal.
//
// Implementations must be safe for concurrent use between SendAudio and Close
// calls from different goroutines.
package sttadapter

import (
	"context"
	"fmt"

	"github.com/opsframe/meetbridge/pkg/types"
)

// Encoding identifies the PCM sample encoding negotiated with a provider.
type Encoding int

const (
	// EncodingPCMS16LE is signed 16-bit little-endian PCM, the only encoding
	// the mediator's ingress produces.
	EncodingPCMS16LE Encoding = iota
)

// StreamConfig describes the audio format and recognition hints for a new STT
// session. All fields must be compatible with what the underlying provider
// supports; see each adapter's documentation for valid ranges.
type StreamConfig struct {
	// Encoding is the PCM sample encoding. Always EncodingPCMS16LE today.
	Encoding Encoding

	// SampleRateHz is the audio sample rate in Hz. Default 16000.
	SampleRateHz int

	// Channels is the channel count. 1 = mono, required by most providers.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "en-US").
	// Empty lets the provider auto-detect, if supported.
	Language string

	// InterimResults requests low-latency partial results in addition to
	// finals, when the provider supports it.
	InterimResults bool

	// Keywords is a list of vocabulary hints that increase recognition
	// probability for uncommon words. Not every provider honors it.
	Keywords []types.KeywordBoost
}

// Event is a single item from a Session's ordered event stream. Exactly one
// of Transcript, Err, or Closed is meaningful, matching the Adapter
// contract's `stream of TranscriptEvent | ProviderError | Closed`.
type Event struct {
	// Transcript is set for a transcript result.
	Transcript *Transcript

	// Err is set when the provider reported an error mid-stream. A
	// *ProviderError distinguishes a provider-originated failure from a
	// transport-level one.
	Err error

	// Closed is true exactly once, as the final Event before the channel
	// closes, when the provider ended the stream on its own (not via Close).
	Closed bool
}

// Transcript is a single speech-to-text result from a provider. Both partial
// (interim) and final results use this type.
type Transcript struct {
	// Text is the transcribed content.
	Text string

	// IsFinal distinguishes an authoritative result from an interim one.
	IsFinal bool

	// Confidence is the provider's reported confidence, or 0 if unreported.
	Confidence float64

	// Words contains per-word detail when available.
	Words []types.WordDetail
}

// InitError is returned by Adapter.Open when a session cannot be
// established at all (authentication failure, unsupported configuration,
// provider unreachable). It is always fatal for the session.
type InitError struct {
	// Message is a human-readable description, displayed truncated to 128
	// characters by the provider bridge.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *InitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("sttadapter: init: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("sttadapter: init: %s", e.Message)
}

func (e *InitError) Unwrap() error { return e.Cause }

// TransportError is returned by Session.SendAudio when a single audio frame
// could not be delivered. It is never fatal: the caller logs, counts, and
// drops the frame without retrying.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("sttadapter: transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// ProviderError is delivered through a Session's Event stream when the
// provider reports a mid-stream failure that does not by itself close the
// connection (e.g. a malformed-request warning).
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("sttadapter: provider error: %s", e.Message)
}

// Session represents an open STT streaming session. It is an interface so
// test code can provide a mock implementation without a live provider
// connection.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type Session interface {
	// SendAudio delivers a chunk of raw PCM audio to the provider. Audio
	// arriving before Open has returned is never possible by construction;
	// audio sent after Close returns a *TransportError.
	SendAudio(chunk []byte) error

	// Events returns the session's ordered event stream. The channel is
	// closed once the session has fully wound down, after at most one
	// Event{Closed: true} or Event{Err: ...} if the provider initiated the
	// end of stream.
	Events() <-chan Event

	// Close half-closes the session: it stops accepting new audio, flushes
	// any in-flight send, and waits for the provider to acknowledge before
	// returning. Calling Close more than once is safe and returns nil after
	// the first call completes.
	Close(ctx context.Context) error
}

// Adapter is the capability set implemented by each STT backend. New
// providers are added by implementing Adapter, never by editing the bridge.
type Adapter interface {
	// Open establishes a new streaming transcription session with the given
	// audio format and recognition configuration. The returned Session is
	// ready to accept audio immediately.
	//
	// Returns a *InitError if the provider cannot establish the session.
	// The caller owns the Session and must call Close when done.
	Open(ctx context.Context, cfg StreamConfig) (Session, error)
}
