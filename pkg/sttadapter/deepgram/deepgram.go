// Package deepgram provides a Deepgram-backed STT adapter using the Deepgram
// streaming WebSocket API. It implements the sttadapter.Adapter interface.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/opsframe/meetbridge/pkg/sttadapter"
	"github.com/opsframe/meetbridge/pkg/types"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Deepgram Adapter.
type Option func(*Adapter)

// WithModel sets the Deepgram model to use (e.g. "nova-3", "base").
func WithModel(model string) Option {
	return func(a *Adapter) { a.model = model }
}

// WithLanguage sets the default BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(a *Adapter) { a.language = language }
}

// WithSampleRate sets the provider-level default audio sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(a *Adapter) { a.sampleRate = rate }
}

// Adapter implements sttadapter.Adapter backed by the Deepgram streaming API.
type Adapter struct {
	apiKey     string
	model      string
	language   string
	sampleRate int
}

// New creates a new Deepgram Adapter. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Adapter, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	a := &Adapter{
		apiKey:     apiKey,
		model:      defaultModel,
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Open establishes a streaming transcription session with Deepgram. It
// respects cfg.SampleRateHz, cfg.Language, and cfg.Keywords.
func (a *Adapter) Open(ctx context.Context, cfg sttadapter.StreamConfig) (sttadapter.Session, error) {
	wsURL, err := a.buildURL(cfg)
	if err != nil {
		return nil, &sttadapter.InitError{Message: "build deepgram url", Cause: err}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+a.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, &sttadapter.InitError{Message: "dial deepgram", Cause: err}
	}

	sess := &session{
		conn:   conn,
		events: make(chan sttadapter.Event, 64),
		audio:  make(chan []byte, 256),
		done:   make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (a *Adapter) buildURL(cfg sttadapter.StreamConfig) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = a.language
	}
	sr := cfg.SampleRateHz
	if sr == 0 {
		sr = a.sampleRate
	}

	q := u.Query()
	q.Set("model", a.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	if cfg.InterimResults {
		q.Set("interim_results", "true")
	}
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	for _, kw := range cfg.Keywords {
		// Deepgram keyword format: word:boost (e.g. "Bridgewater:5").
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements sttadapter.Session.
type session struct {
	conn   *websocket.Conn
	events chan sttadapter.Event
	audio  chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return &sttadapter.TransportError{Cause: errors.New("deepgram: session is closed")}
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return &sttadapter.TransportError{Cause: errors.New("deepgram: session is closed")}
	}
}

// Events returns the session's ordered event stream.
func (s *session) Events() <-chan sttadapter.Event { return s.events }

// Close terminates the session cleanly.
func (s *session) Close(_ context.Context) error {
	s.once.Do(func() {
		close(s.done)
		// Send a close message to Deepgram to flush pending audio.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.done:
			// Drain the audio channel before exiting so the in-flight send
			// at Close time is not lost.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them to the
// events channel in arrival order.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancellation — report end of stream.
			select {
			case s.events <- sttadapter.Event{Closed: true}:
			case <-s.done:
			}
			return
		}

		t, ok := parseDeepgramResponse(msg)
		if !ok {
			continue
		}

		select {
		case s.events <- sttadapter.Event{Transcript: &t}:
		case <-s.done:
			return
		}
	}
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message into a
// Transcript. Returns (Transcript, true) on success, or (zero, false) if the
// message should be ignored.
func parseDeepgramResponse(data []byte) (sttadapter.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return sttadapter.Transcript{}, false
	}
	if resp.Type != "Results" {
		return sttadapter.Transcript{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return sttadapter.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]types.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, types.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return sttadapter.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Words:      words,
	}, true
}

var _ sttadapter.Adapter = (*Adapter)(nil)
