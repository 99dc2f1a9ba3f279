package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/opsframe/meetbridge/pkg/types"
)

// rawPayload is the wire shape of a webhook POST body:
// {"event": "...", "data": {...}, "timestamp": "..."}. timestamp is
// optional; when absent the intake stamps ReceivedAt with time.Now().
type rawPayload struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp *time.Time      `json:"timestamp"`
}

// statusField covers both shapes a bot.status_change event's "status" field
// may arrive in: a bare string, or an {code, message} object.
type statusField struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type statusChangeData struct {
	BotID  string          `json:"bot_id"`
	Status json.RawMessage `json:"status"`
}

// decodePayload parses body into a types.ControlEvent. It returns an error
// for a malformed body or an unrecognized event kind; both are 400s at the
// HTTP layer.
func decodePayload(body []byte) (types.ControlEvent, error) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return types.ControlEvent{}, fmt.Errorf("webhook: malformed json: %w", err)
	}
	if raw.Event == "" {
		return types.ControlEvent{}, fmt.Errorf("webhook: missing \"event\" field")
	}

	kind := types.ControlEventKind(raw.Event)
	if !kind.IsRecognized() {
		return types.ControlEvent{}, fmt.Errorf("webhook: unrecognized event %q", raw.Event)
	}

	evt := types.ControlEvent{Kind: kind, ReceivedAt: time.Now()}
	if raw.Timestamp != nil {
		evt.ReceivedAt = *raw.Timestamp
	}

	if len(raw.Data) > 0 {
		var dataMap map[string]any
		if err := json.Unmarshal(raw.Data, &dataMap); err != nil {
			return types.ControlEvent{}, fmt.Errorf("webhook: malformed \"data\" field: %w", err)
		}
		evt.Data = dataMap
	}

	if kind == types.EventBotStatusChange {
		var scd statusChangeData
		if err := json.Unmarshal(raw.Data, &scd); err != nil {
			return types.ControlEvent{}, fmt.Errorf("webhook: malformed status_change data: %w", err)
		}
		evt.BotID = scd.BotID

		code, msg, err := decodeStatus(scd.Status)
		if err != nil {
			return types.ControlEvent{}, err
		}
		evt.StatusCode = code
		evt.StatusMessage = msg
	}

	return evt, nil
}

// decodeStatus accepts either a bare JSON string ("in_call_not_recording")
// or an object ({"code": "...", "message": "..."}).
func decodeStatus(raw json.RawMessage) (code, message string, err error) {
	if len(raw) == 0 {
		return "", "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, "", nil
	}

	var obj statusField
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", "", fmt.Errorf("webhook: malformed \"status\" field: %w", err)
	}
	return obj.Code, obj.Message, nil
}
