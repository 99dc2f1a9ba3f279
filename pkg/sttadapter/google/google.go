// Package google provides a Google Cloud Speech-to-Text v2 streaming
// adapter. It implements the sttadapter.Adapter interface using the
// bidirectional StreamingRecognize RPC.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv2"
	"cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/opsframe/meetbridge/pkg/sttadapter"
	"github.com/opsframe/meetbridge/pkg/types"
	"google.golang.org/api/option"
)

const (
	defaultLanguageCode = "en-US"
	defaultModel        = "long"
)

// Option is a functional option for configuring an Adapter.
type Option func(*Adapter)

// WithLanguageCode sets the default BCP-47 language code for recognition.
func WithLanguageCode(code string) Option {
	return func(a *Adapter) { a.languageCode = code }
}

// WithModel sets the Google Speech recognition model (e.g. "long", "short").
func WithModel(model string) Option {
	return func(a *Adapter) { a.model = model }
}

// WithRegion pins the recognizer to a specific region instead of "global".
func WithRegion(region string) Option {
	return func(a *Adapter) { a.region = region }
}

// Adapter implements sttadapter.Adapter backed by Google Cloud Speech-to-Text v2.
type Adapter struct {
	client       *speech.Client
	projectID    string
	region       string
	languageCode string
	model        string
}

// New creates an Adapter using Application Default Credentials or the
// credentials JSON supplied via opts. projectID selects the recognizer's
// parent project.
func New(ctx context.Context, projectID string, opts []option.ClientOption, adapterOpts ...Option) (*Adapter, error) {
	if projectID == "" {
		return nil, errors.New("google: projectID must not be empty")
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("google: new client: %w", err)
	}

	a := &Adapter{
		client:       client,
		projectID:    projectID,
		region:       "global",
		languageCode: defaultLanguageCode,
		model:        defaultModel,
	}
	for _, o := range adapterOpts {
		o(a)
	}
	return a, nil
}

// Close releases the underlying gRPC client.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// recognizer returns the fully qualified recognizer resource name for the
// configured project and region.
func (a *Adapter) recognizer() string {
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", a.projectID, a.region)
}

// Open establishes a streaming recognition session. It respects
// cfg.SampleRateHz, cfg.Channels, and cfg.Language.
func (a *Adapter) Open(ctx context.Context, cfg sttadapter.StreamConfig) (sttadapter.Session, error) {
	stream, err := a.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, &sttadapter.InitError{Message: "open streaming recognize", Cause: err}
	}

	lang := cfg.Language
	if lang == "" {
		lang = a.languageCode
	}
	sr := int32(cfg.SampleRateHz)
	if sr == 0 {
		sr = 16000
	}
	ch := int32(cfg.Channels)
	if ch == 0 {
		ch = 1
	}

	streamingCfg := &speechpb.StreamingRecognitionConfig{
		Config: &speechpb.RecognitionConfig{
			DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
				ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
					Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
					SampleRateHertz:   sr,
					AudioChannelCount: ch,
				},
			},
			Features: &speechpb.RecognitionFeatures{
				EnableAutomaticPunctuation: true,
				EnableWordConfidence:       true,
			},
			LanguageCodes: []string{lang},
			Model:         a.model,
		},
		StreamingFeatures: &speechpb.StreamingRecognitionFeatures{
			InterimResults: cfg.InterimResults,
		},
	}

	initReq := &speechpb.StreamingRecognizeRequest{
		Recognizer: a.recognizer(),
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: streamingCfg,
		},
	}
	if err := stream.Send(initReq); err != nil {
		return nil, &sttadapter.InitError{Message: "send streaming config", Cause: err}
	}

	s := &session{
		stream: stream,
		events: make(chan sttadapter.Event, 64),
		audio:  make(chan []byte, 256),
		done:   make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()

	return s, nil
}

var _ sttadapter.Adapter = (*Adapter)(nil)

// ---- session ----

// recognizeStream is the subset of the bidi streaming client used here, so
// tests can substitute a fake.
type recognizeStream interface {
	Send(*speechpb.StreamingRecognizeRequest) error
	Recv() (*speechpb.StreamingRecognizeResponse, error)
	CloseSend() error
}

// session is a live Google Speech streaming session. It implements
// sttadapter.Session.
type session struct {
	stream recognizeStream
	events chan sttadapter.Event
	audio  chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM audio chunk for delivery to Google Speech.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return &sttadapter.TransportError{Cause: errors.New("google: session is closed")}
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return &sttadapter.TransportError{Cause: errors.New("google: session is closed")}
	}
}

// Events returns the session's ordered event stream.
func (s *session) Events() <-chan sttadapter.Event { return s.events }

// Close half-closes the stream and waits for both loops to finish.
func (s *session) Close(_ context.Context) error {
	s.once.Do(func() {
		close(s.done)
		_ = s.stream.CloseSend()
		s.wg.Wait()
	})
	return nil
}

// writeLoop forwards queued audio chunks as StreamingRecognizeRequests.
func (s *session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			req := &speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: chunk},
			}
			if err := s.stream.Send(req); err != nil {
				return
			}
		case <-s.done:
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					req := &speechpb.StreamingRecognizeRequest{
						StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: chunk},
					}
					_ = s.stream.Send(req)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives recognition results and dispatches them to the events
// channel in arrival order.
func (s *session) readLoop() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			select {
			case s.events <- sttadapter.Event{Closed: true}:
			case <-s.done:
			}
			return
		}
		if err != nil {
			select {
			case s.events <- sttadapter.Event{Err: &sttadapter.ProviderError{Message: err.Error()}}:
			case <-s.done:
			}
			return
		}

		for _, result := range resp.GetResults() {
			t, ok := convertResult(result)
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
}

// convertResult converts a single StreamingRecognitionResult into a
// Transcript. Returns (Transcript, false) when the result carries no
// alternatives.
func convertResult(result *speechpb.StreamingRecognitionResult) (sttadapter.Transcript, bool) {
	alts := result.GetAlternatives()
	if len(alts) == 0 {
		return sttadapter.Transcript{}, false
	}
	top := alts[0]

	words := make([]types.WordDetail, 0, len(top.GetWords()))
	for _, w := range top.GetWords() {
		words = append(words, types.WordDetail{
			Word:       w.GetWord(),
			Start:      w.GetStartOffset().AsDuration(),
			End:        w.GetEndOffset().AsDuration(),
			Confidence: float64(top.GetConfidence()),
		})
	}

	return sttadapter.Transcript{
		Text:       top.GetTranscript(),
		IsFinal:    result.GetIsFinal(),
		Confidence: float64(top.GetConfidence()),
		Words:      words,
	}, true
}

var _ sttadapter.Session = (*session)(nil)
