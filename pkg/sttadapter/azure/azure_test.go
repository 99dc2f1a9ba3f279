package azure

import (
	"context"
	"testing"
	"time"

	"github.com/opsframe/meetbridge/pkg/sttadapter"
)

func TestNew_EmptySubscriptionKey(t *testing.T) {
	_, err := New("", "westus")
	if err == nil {
		t.Fatal("expected error for empty subscription key")
	}
}

func TestNew_EmptyRegion(t *testing.T) {
	_, err := New("key", "")
	if err == nil {
		t.Fatal("expected error for empty region")
	}
}

func TestNew_Defaults(t *testing.T) {
	a, err := New("key", "westus")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.language != defaultLanguage {
		t.Errorf("language = %q; want %q", a.language, defaultLanguage)
	}
	if a.endpoint != "" {
		t.Errorf("expected empty endpoint by default, got %q", a.endpoint)
	}
}

func TestNew_WithOptions(t *testing.T) {
	a, err := New("key", "westus",
		WithLanguage("fr-FR"),
		WithEndpoint("wss://private.example.com/speech"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.language != "fr-FR" {
		t.Errorf("language = %q; want fr-FR", a.language)
	}
	if a.endpoint != "wss://private.example.com/speech" {
		t.Errorf("endpoint = %q; want the configured private endpoint", a.endpoint)
	}
}

// fakeRecognizer is a minimal stand-in for the subset of
// speech.SpeechRecognizer that session.Close depends on.
type fakeRecognizer struct {
	stopCh    chan error
	closeCall int
}

func (f *fakeRecognizer) StopContinuousRecognitionAsync() chan error {
	return f.stopCh
}

func (f *fakeRecognizer) Close() { f.closeCall++ }

// fakePushStream is a minimal stand-in for audio.PushAudioInputStream.
type fakePushStream struct {
	writes    [][]byte
	writeErr  error
	closeCall int
}

func (f *fakePushStream) Write(buf []byte) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, buf)
	return nil
}

func (f *fakePushStream) CloseStream() { f.closeCall++ }

func TestSessionEmit_SkipsAfterClose(t *testing.T) {
	s := &session{
		events: make(chan sttadapter.Event, 1),
		done:   make(chan struct{}),
	}
	close(s.done)

	done := make(chan struct{})
	go func() {
		s.emit(sttadapter.Event{Closed: true})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked after session was closed")
	}

	select {
	case ev := <-s.events:
		t.Fatalf("expected no event delivered after close, got %+v", ev)
	default:
	}
}

func TestSessionSendAudio_AfterDone_ReturnsTransportError(t *testing.T) {
	s := &session{
		events: make(chan sttadapter.Event, 1),
		done:   make(chan struct{}),
	}
	close(s.done)

	if err := s.SendAudio([]byte{0, 1}); err == nil {
		t.Fatal("expected error sending audio after session done")
	}
}

func TestOpen_CancelledContext_ReturnsInitError(t *testing.T) {
	a, err := New("key", "westus")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.Open(ctx, sttadapter.StreamConfig{SampleRateHz: 16000, Channels: 1})
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if _, ok := err.(*sttadapter.InitError); !ok {
		t.Errorf("expected *sttadapter.InitError, got %T", err)
	}
}
