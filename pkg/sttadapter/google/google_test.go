package google

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/opsframe/meetbridge/pkg/sttadapter"
)

// fakeStream is a recognizeStream test double that replays a canned sequence
// of responses and records sent requests.
type fakeStream struct {
	sent      []*speechpb.StreamingRecognizeRequest
	responses []*speechpb.StreamingRecognizeResponse
	recvIdx   int
	sendErr   error
	closeErr  error
}

func (f *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	if f.recvIdx >= len(f.responses) {
		return nil, io.EOF
	}
	resp := f.responses[f.recvIdx]
	f.recvIdx++
	return resp, nil
}

func (f *fakeStream) CloseSend() error { return f.closeErr }

func TestConvertResult_NoAlternatives(t *testing.T) {
	_, ok := convertResult(&speechpb.StreamingRecognitionResult{})
	if ok {
		t.Fatal("expected ok=false for result with no alternatives")
	}
}

func TestConvertResult_Final(t *testing.T) {
	result := &speechpb.StreamingRecognitionResult{
		IsFinal: true,
		Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{Transcript: "hello world", Confidence: 0.91},
		},
	}
	got, ok := convertResult(result)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got.Text != "hello world" || !got.IsFinal || got.Confidence != float64(float32(0.91)) {
		t.Errorf("unexpected transcript: %+v", got)
	}
}

func TestConvertResult_Interim(t *testing.T) {
	result := &speechpb.StreamingRecognitionResult{
		IsFinal: false,
		Alternatives: []*speechpb.SpeechRecognitionAlternative{
			{Transcript: "hel", Confidence: 0.2},
		},
	}
	got, ok := convertResult(result)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got.IsFinal {
		t.Error("expected IsFinal=false for interim result")
	}
}

func TestSessionReadLoop_EmitsTranscriptsInOrder(t *testing.T) {
	stream := &fakeStream{
		responses: []*speechpb.StreamingRecognizeResponse{
			{Results: []*speechpb.StreamingRecognitionResult{
				{IsFinal: false, Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hel"}}},
			}},
			{Results: []*speechpb.StreamingRecognitionResult{
				{IsFinal: true, Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hello"}}},
			}},
		},
	}
	s := &session{
		stream: stream,
		events: make(chan sttadapter.Event, 8),
		audio:  make(chan []byte, 8),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()

	ev1 := <-s.events
	if ev1.Transcript == nil || ev1.Transcript.Text != "hel" || ev1.Transcript.IsFinal {
		t.Fatalf("unexpected first event: %+v", ev1)
	}
	ev2 := <-s.events
	if ev2.Transcript == nil || ev2.Transcript.Text != "hello" || !ev2.Transcript.IsFinal {
		t.Fatalf("unexpected second event: %+v", ev2)
	}
	ev3 := <-s.events
	if !ev3.Closed {
		t.Fatalf("expected Closed event after EOF, got %+v", ev3)
	}
}

func TestSessionReadLoop_RecvErrorEmitsProviderError(t *testing.T) {
	stream := &fakeStream{}
	stream.recvIdx = 0
	// force a non-EOF error path by overriding Recv via a wrapping type.
	errStream := &errorStream{err: errors.New("boom")}
	s := &session{
		stream: errStream,
		events: make(chan sttadapter.Event, 8),
		audio:  make(chan []byte, 8),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop()

	select {
	case ev := <-s.events:
		if ev.Err == nil {
			t.Fatalf("expected error event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error event")
	}
}

type errorStream struct {
	err error
}

func (e *errorStream) Send(*speechpb.StreamingRecognizeRequest) error { return nil }
func (e *errorStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	return nil, e.err
}
func (e *errorStream) CloseSend() error { return nil }

func TestSessionSendAudio_AfterClose_ReturnsTransportError(t *testing.T) {
	stream := &fakeStream{}
	s := &session{
		stream: stream,
		events: make(chan sttadapter.Event, 8),
		audio:  make(chan []byte, 8),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()

	s.Close(context.Background())
	if err := s.SendAudio([]byte{0, 1}); err == nil {
		t.Fatal("expected error sending audio after close")
	}
}

func TestNew_EmptyProjectID(t *testing.T) {
	_, err := New(context.Background(), "", nil)
	if err == nil {
		t.Fatal("expected error for empty projectID")
	}
}

func TestAdapter_Recognizer(t *testing.T) {
	a := &Adapter{projectID: "proj", region: "us-central1"}
	want := "projects/proj/locations/us-central1/recognizers/_"
	if got := a.recognizer(); got != want {
		t.Errorf("recognizer() = %q; want %q", got, want)
	}
}
