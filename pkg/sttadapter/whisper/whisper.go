// Package whisper provides an offline STT adapter backed by whisper.cpp Go
// bindings (CGO). It implements the sttadapter.Adapter interface without any
// network dependency, trading word-level latency for no-API-key operation.
//
// whisper.cpp has no incremental streaming decode API, so this adapter
// buffers audio while an RMS energy detector indicates speech and flushes the
// buffer to a fresh whisper.cpp inference context once a silence gap is
// observed (or a max-buffer duration is exceeded). Each flush emits the same
// decoded text as both an interim and a final Transcript, since whisper.cpp
// cannot itself distinguish the two.
//
// The whisper.cpp static library (libwhisper.a) and headers (whisper.h) must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/opsframe/meetbridge/pkg/sttadapter"
)

const (
	defaultLanguage            = "en"
	defaultSampleRate          = 16000
	defaultSilenceThresholdMs  = 500
	defaultMaxBufferDurationMs = 10_000
	defaultRMSThreshold        = 500
	bitsPerSample              = 16
)

// Adapter implements sttadapter.Adapter using whisper.cpp Go bindings. The
// model is loaded once at startup and shared across all sessions.
type Adapter struct {
	model    whisperlib.Model
	language string

	sampleRate          int
	silenceThresholdMs  int
	maxBufferDurationMs int
}

// Option is a functional option for configuring an Adapter.
type Option func(*Adapter)

// WithLanguage sets the BCP-47 language code for transcription. Default "en".
func WithLanguage(lang string) Option {
	return func(a *Adapter) { a.language = lang }
}

// WithSampleRate sets the audio sample rate in Hz. Must match the PCM
// delivered via SendAudio. Default 16000.
func WithSampleRate(rate int) Option {
	return func(a *Adapter) { a.sampleRate = rate }
}

// WithSilenceThresholdMs sets the consecutive-silence duration (ms) that
// triggers a flush of the accumulated speech buffer. Default 500ms.
func WithSilenceThresholdMs(ms int) Option {
	return func(a *Adapter) { a.silenceThresholdMs = ms }
}

// WithMaxBufferDurationMs sets the maximum buffered audio duration (ms)
// before a forced flush. Default 10000ms.
func WithMaxBufferDurationMs(ms int) Option {
	return func(a *Adapter) { a.maxBufferDurationMs = ms }
}

// New loads the whisper.cpp model from modelPath. The model is loaded once
// and shared across all concurrent sessions. Call Close when the adapter is
// no longer needed.
func New(modelPath string, opts ...Option) (*Adapter, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	a := &Adapter{
		model:               model,
		language:            defaultLanguage,
		sampleRate:          defaultSampleRate,
		silenceThresholdMs:  defaultSilenceThresholdMs,
		maxBufferDurationMs: defaultMaxBufferDurationMs,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Close releases the whisper model.
func (a *Adapter) Close() error {
	if a.model != nil {
		return a.model.Close()
	}
	return nil
}

// Open creates a new transcription session. Each session gets its own
// whisper.cpp context derived from the shared model, so sessions run
// concurrently without interference.
func (a *Adapter) Open(ctx context.Context, cfg sttadapter.StreamConfig) (sttadapter.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &sttadapter.InitError{Message: "context already cancelled", Cause: err}
	}

	lang := cfg.Language
	if lang == "" {
		lang = a.language
	}
	sr := cfg.SampleRateHz
	if sr <= 0 {
		sr = a.sampleRate
	}
	ch := cfg.Channels
	if ch <= 0 {
		ch = 1
	}

	s := &session{
		model:               a.model,
		language:            lang,
		sampleRate:          sr,
		channels:            ch,
		silenceThresholdMs:  a.silenceThresholdMs,
		maxBufferDurationMs: a.maxBufferDurationMs,

		audioCh: make(chan []byte, 256),
		events:  make(chan sttadapter.Event, 64),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

var _ sttadapter.Adapter = (*Adapter)(nil)

// ---- session ----

// session is a live whisper transcription session. It implements
// sttadapter.Session. All mutable state driving silence detection and
// buffering is confined to the processLoop goroutine.
type session struct {
	model               whisperlib.Model
	language            string
	sampleRate          int
	channels            int
	silenceThresholdMs  int
	maxBufferDurationMs int

	audioCh chan []byte
	events  chan sttadapter.Event

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a chunk of raw 16-bit little-endian signed PCM audio for
// silence analysis and buffering.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return &sttadapter.TransportError{Cause: errors.New("whisper: session is closed")}
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return &sttadapter.TransportError{Cause: errors.New("whisper: session is closed")}
	}
}

// Events returns the session's ordered event stream.
func (s *session) Events() <-chan sttadapter.Event { return s.events }

// Close terminates the session, flushing any pending speech audio first.
func (s *session) Close(_ context.Context) error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop is the single goroutine responsible for silence detection,
// audio buffering, and inference dispatch.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	var (
		buffer    []byte
		hadSpeech bool
		silenceMs int
	)

	bytesPerMs := s.sampleRate * s.channels * (bitsPerSample / 8) / 1000
	if bytesPerMs <= 0 {
		bytesPerMs = 32
	}
	maxBufferBytes := s.maxBufferDurationMs * bytesPerMs

	doFlush := func() {
		if len(buffer) == 0 || !hadSpeech {
			buffer = nil
			hadSpeech = false
			silenceMs = 0
			return
		}

		pcm := buffer
		buffer = nil
		hadSpeech = false
		silenceMs = 0

		text, err := s.infer(pcm)
		if err != nil {
			slog.Error("whisper inference failed", "error", err)
			return
		}
		if text == "" {
			return
		}

		// whisper.cpp cannot distinguish interim from final; emit the same
		// decoded text as both so the Adapter contract stays uniform.
		interim := sttadapter.Transcript{Text: text, IsFinal: false}
		final := sttadapter.Transcript{Text: text, IsFinal: true}
		select {
		case s.events <- sttadapter.Event{Transcript: &interim}:
		case <-s.done:
			return
		}
		select {
		case s.events <- sttadapter.Event{Transcript: &final}:
		case <-s.done:
		}
	}

	for {
		select {
		case <-ctx.Done():
			doFlush()
			return

		case <-s.done:
			doFlush()
			return

		case chunk, ok := <-s.audioCh:
			if !ok {
				doFlush()
				return
			}

			rms := computeRMS(chunk)
			chunkMs := chunkDurationMs(chunk, s.sampleRate, s.channels)

			if rms < defaultRMSThreshold {
				if hadSpeech {
					silenceMs += chunkMs
					buffer = append(buffer, chunk...)
					if silenceMs >= s.silenceThresholdMs {
						doFlush()
					}
				}
			} else {
				hadSpeech = true
				silenceMs = 0
				buffer = append(buffer, chunk...)
				if maxBufferBytes > 0 && len(buffer) >= maxBufferBytes {
					doFlush()
				}
			}
		}
	}
}

// infer converts the buffered PCM audio to float32, runs whisper.cpp
// inference in a fresh context, and returns the concatenated segment text.
func (s *session) infer(pcm []byte) (string, error) {
	samples := pcmToFloat32Mono(pcm, s.channels)

	// Each context is not thread-safe, but the model can be shared across
	// goroutines, so every flush gets its own.
	wctx, err := s.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(s.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", s.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}

var _ sttadapter.Session = (*session)(nil)
