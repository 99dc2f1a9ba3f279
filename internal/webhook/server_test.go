package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/opsframe/meetbridge/internal/session"
)

func newTestServer(t *testing.T, sess *session.Session, onGateOpen func()) *httptest.Server {
	t.Helper()
	srv := NewServer(Config{Session: sess, OnGateOpen: onGateOpen})
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func TestHandleWebhook_InCallNotRecordingOpensGate(t *testing.T) {
	sess := session.New(session.Config{Mode: session.ModeRemote})
	var gateOpened atomic.Bool
	ts := newTestServer(t, sess, func() { gateOpened.Store(true) })

	body := `{"event":"bot.status_change","data":{"bot_id":"b1","status":"in_call_not_recording"}}`
	resp, err := http.Post(ts.URL+"/webhooks/zoom", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !gateOpened.Load() {
		t.Error("expected the gate-open callback to fire")
	}
	if !sess.GateOpen() {
		t.Error("expected the session gate to be open")
	}
}

func TestHandleWebhook_MalformedBodyReturns400(t *testing.T) {
	sess := session.New(session.Config{Mode: session.ModeRemote})
	ts := newTestServer(t, sess, nil)

	resp, err := http.Post(ts.URL+"/webhooks/zoom", "application/json", strings.NewReader("not json"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleWebhook_UnrecognizedKindReturns400(t *testing.T) {
	sess := session.New(session.Config{Mode: session.ModeRemote})
	ts := newTestServer(t, sess, nil)

	resp, err := http.Post(ts.URL+"/webhooks/zoom", "application/json", strings.NewReader(`{"event":"bot.teleported","data":{}}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleWebhook_MeetingEndedDrainsWithoutGateOpenCallback(t *testing.T) {
	sess := session.New(session.Config{Mode: session.ModeRemote})
	var gateOpened atomic.Bool
	ts := newTestServer(t, sess, func() { gateOpened.Store(true) })

	resp, err := http.Post(ts.URL+"/webhooks/zoom", "application/json", strings.NewReader(`{"event":"meeting.ended","data":{}}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	select {
	case <-sess.Draining():
	default:
		t.Error("expected meeting.ended to trigger draining")
	}
	if gateOpened.Load() {
		t.Error("meeting.ended must not open the gate")
	}
}

func TestHandleHealth(t *testing.T) {
	sess := session.New(session.Config{Mode: session.ModeRemote})
	ts := newTestServer(t, sess, nil)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
