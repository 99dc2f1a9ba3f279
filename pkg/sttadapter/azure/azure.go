// Package azure provides an STT adapter backed by the Microsoft Cognitive
// Services Speech SDK for Go. Audio is pushed into a PushAudioInputStream and
// recognition results arrive via the SDK's Recognizing/Recognized/Canceled
// callbacks, which this adapter funnels into a single ordered event channel.
package azure

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
	"github.com/opsframe/meetbridge/pkg/sttadapter"
)

const defaultLanguage = "en-US"

// Option is a functional option for configuring an Adapter.
type Option func(*Adapter)

// WithLanguage sets the default recognition language. Default "en-US".
func WithLanguage(lang string) Option {
	return func(a *Adapter) { a.language = lang }
}

// WithEndpoint overrides the regional endpoint used instead of deriving one
// from subscriptionKey/region (useful for sovereign clouds or private links).
func WithEndpoint(endpoint string) Option {
	return func(a *Adapter) { a.endpoint = endpoint }
}

// Adapter implements sttadapter.Adapter backed by Azure Cognitive Services
// Speech-to-Text.
type Adapter struct {
	subscriptionKey string
	region          string
	endpoint        string
	language        string
}

// New creates an Adapter from an Azure Speech subscription key and region;
// both must be non-empty. WithEndpoint replaces the region-derived endpoint
// (for a private endpoint), and the subscription key is still used with it.
func New(subscriptionKey, region string, opts ...Option) (*Adapter, error) {
	if subscriptionKey == "" {
		return nil, errors.New("azure: subscription_key must not be empty")
	}
	if region == "" {
		return nil, errors.New("azure: region must not be empty")
	}
	a := &Adapter{
		subscriptionKey: subscriptionKey,
		region:          region,
		language:        defaultLanguage,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// speechConfig builds the SDK SpeechConfig for this adapter, honoring
// WithEndpoint if set.
func (a *Adapter) speechConfig() (*speech.SpeechConfig, error) {
	if a.endpoint != "" {
		return speech.NewSpeechConfigFromEndpoint(a.endpoint, a.subscriptionKey)
	}
	return speech.NewSpeechConfigFromSubscription(a.subscriptionKey, a.region)
}

// Open establishes a streaming recognition session. The pushed audio format
// is fixed at 16kHz mono 16-bit PCM per cfg.SampleRateHz/cfg.Channels, or the
// adapter defaults when unset.
func (a *Adapter) Open(ctx context.Context, cfg sttadapter.StreamConfig) (sttadapter.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &sttadapter.InitError{Message: "context already cancelled", Cause: err}
	}

	sr := uint32(cfg.SampleRateHz)
	if sr == 0 {
		sr = 16000
	}
	ch := uint8(cfg.Channels)
	if ch == 0 {
		ch = 1
	}

	format, err := audio.GetWaveFormatPCM(sr, 16, ch)
	if err != nil {
		return nil, &sttadapter.InitError{Message: "build wave format", Cause: err}
	}
	defer format.Close()

	stream, err := audio.CreatePushAudioInputStreamFromFormat(format)
	if err != nil {
		return nil, &sttadapter.InitError{Message: "create push audio stream", Cause: err}
	}

	audioCfg, err := audio.NewAudioConfigFromStreamInput(stream)
	if err != nil {
		stream.Close()
		return nil, &sttadapter.InitError{Message: "create audio config", Cause: err}
	}
	defer audioCfg.Close()

	sc, err := a.speechConfig()
	if err != nil {
		stream.Close()
		return nil, &sttadapter.InitError{Message: "create speech config", Cause: err}
	}
	defer sc.Close()

	lang := cfg.Language
	if lang == "" {
		lang = a.language
	}
	if err := sc.SetSpeechRecognitionLanguage(lang); err != nil {
		stream.Close()
		return nil, &sttadapter.InitError{Message: "set recognition language", Cause: err}
	}
	sc.SetSpeechSynthesisOutputFormat(common.Raw16Khz16BitMonoPcm)

	recognizer, err := speech.NewSpeechRecognizerFromConfig(sc, audioCfg)
	if err != nil {
		stream.Close()
		return nil, &sttadapter.InitError{Message: "create speech recognizer", Cause: err}
	}

	s := &session{
		recognizer: recognizer,
		stream:     stream,
		events:     make(chan sttadapter.Event, 64),
		done:       make(chan struct{}),
	}

	recognizer.Recognizing(s.onRecognizing)
	recognizer.Recognized(s.onRecognized)
	recognizer.Canceled(s.onCanceled)
	recognizer.SessionStopped(s.onSessionStopped)

	if err := <-recognizer.StartContinuousRecognitionAsync(); err != nil {
		recognizer.Close()
		stream.Close()
		return nil, &sttadapter.InitError{Message: "start continuous recognition", Cause: err}
	}

	return s, nil
}

var _ sttadapter.Adapter = (*Adapter)(nil)

// ---- session ----

// session is a live Azure streaming recognition session. It implements
// sttadapter.Session.
type session struct {
	recognizer interface {
		StopContinuousRecognitionAsync() chan error
		Close()
	}
	stream *audio.PushAudioInputStream
	events chan sttadapter.Event

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio writes a PCM chunk into the push stream feeding the recognizer.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return &sttadapter.TransportError{Cause: errors.New("azure: session is closed")}
	default:
	}
	if err := s.stream.Write(chunk); err != nil {
		return &sttadapter.TransportError{Cause: err}
	}
	return nil
}

// Events returns the session's ordered event stream.
func (s *session) Events() <-chan sttadapter.Event { return s.events }

// Close stops continuous recognition, closes the push stream, and closes the
// events channel. Idempotent.
func (s *session) Close(_ context.Context) error {
	var closeErr error
	s.once.Do(func() {
		close(s.done)
		closeErr = <-s.recognizer.StopContinuousRecognitionAsync()
		s.stream.CloseStream()
		s.recognizer.Close()
		close(s.events)
	})
	return closeErr
}

// emit sends ev unless the session has already been closed.
func (s *session) emit(ev sttadapter.Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *session) onRecognizing(event speech.SpeechRecognitionEventArgs) {
	defer event.Close()
	text := event.Result.Text
	if text == "" {
		return
	}
	t := sttadapter.Transcript{Text: text, IsFinal: false}
	s.emit(sttadapter.Event{Transcript: &t})
}

func (s *session) onRecognized(event speech.SpeechRecognitionEventArgs) {
	defer event.Close()
	text := event.Result.Text
	if text == "" {
		return
	}
	t := sttadapter.Transcript{Text: text, IsFinal: true}
	s.emit(sttadapter.Event{Transcript: &t})
}

func (s *session) onCanceled(event speech.SpeechRecognitionCanceledEventArgs) {
	defer event.Close()
	if event.Reason == common.Error {
		s.emit(sttadapter.Event{Err: &sttadapter.ProviderError{
			Message: fmt.Sprintf("azure: canceled: %s", event.ErrorDetails),
		}})
	}
}

func (s *session) onSessionStopped(event speech.SessionEventArgs) {
	defer event.Close()
	s.emit(sttadapter.Event{Closed: true})
}

var _ sttadapter.Session = (*session)(nil)
