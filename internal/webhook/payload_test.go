package webhook

import (
	"testing"

	"github.com/opsframe/meetbridge/pkg/types"
)

func TestDecodePayload_StatusChangeBareString(t *testing.T) {
	body := []byte(`{"event":"bot.status_change","data":{"bot_id":"b1","status":"in_call_not_recording"}}`)
	evt, err := decodePayload(body)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if evt.Kind != types.EventBotStatusChange {
		t.Errorf("Kind = %v", evt.Kind)
	}
	if evt.BotID != "b1" {
		t.Errorf("BotID = %q", evt.BotID)
	}
	if evt.StatusCode != types.StatusInCallNotRecording {
		t.Errorf("StatusCode = %q", evt.StatusCode)
	}
}

func TestDecodePayload_StatusChangeObjectForm(t *testing.T) {
	body := []byte(`{"event":"bot.status_change","data":{"bot_id":"b1","status":{"code":"in_call_not_recording","message":"now recording"}}}`)
	evt, err := decodePayload(body)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if evt.StatusCode != "in_call_not_recording" || evt.StatusMessage != "now recording" {
		t.Errorf("evt = %+v", evt)
	}
}

func TestDecodePayload_MeetingEnded(t *testing.T) {
	body := []byte(`{"event":"meeting.ended","data":{}}`)
	evt, err := decodePayload(body)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if evt.Kind != types.EventMeetingEnded {
		t.Errorf("Kind = %v", evt.Kind)
	}
}

func TestDecodePayload_MalformedJSON(t *testing.T) {
	_, err := decodePayload([]byte(`not json`))
	if err == nil {
		t.Fatal("expected an error for malformed json")
	}
}

func TestDecodePayload_UnrecognizedEventKind(t *testing.T) {
	_, err := decodePayload([]byte(`{"event":"bot.teleported","data":{}}`))
	if err == nil {
		t.Fatal("expected an error for an unrecognized event kind")
	}
}

func TestDecodePayload_MissingEventField(t *testing.T) {
	_, err := decodePayload([]byte(`{"data":{}}`))
	if err == nil {
		t.Fatal("expected an error for a missing event field")
	}
}
