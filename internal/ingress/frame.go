// Package ingress implements the Audio Ingress server: it accepts persistent
// streaming connections from a conferencing bot, classifies each inbound
// message, updates the session's current speaker, and forwards PCM audio to
// the Provider Bridge when the session's gate is open.
package ingress

import (
	"encoding/json"
	"time"

	"github.com/opsframe/meetbridge/pkg/types"
)

// registerFrame is the `{"type":"register","client":"bot"}` subscription
// shape.
type registerFrame struct {
	Type   string `json:"type"`
	Client string `json:"client"`
}

// speakerMetaElement is the first element of a speaker-metadata JSON array.
type speakerMetaElement struct {
	Name       string    `json:"name"`
	ID         int       `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	IsSpeaking bool      `json:"isSpeaking"`
}

// classifyText inspects a WebSocket text message and returns the decoded
// AudioFrame for non-PCM shapes, or reports that the caller should treat the
// payload as raw PCM.
//
// Classification policy: attempt a JSON parse of the payload; if it matches
// a recognized structured shape, use it; otherwise (including malformed
// JSON) the payload is treated as PCM. Binary WebSocket messages are never
// passed to classifyText — they are always PCM by construction.
func classifyText(payload []byte) (types.AudioFrame, bool) {
	var reg registerFrame
	if err := json.Unmarshal(payload, &reg); err == nil && reg.Type == "register" {
		return types.AudioFrame{Kind: types.FrameRegister, ReceivedAt: time.Now()}, true
	}

	var meta []speakerMetaElement
	if err := json.Unmarshal(payload, &meta); err == nil && len(meta) > 0 {
		return types.AudioFrame{Kind: types.FrameSpeakerMeta, ReceivedAt: time.Now()}, true
	}

	return types.AudioFrame{}, false
}

// speakerInfoFromPayload decodes a speaker-metadata frame's first element
// into a types.SpeakerInfo. Returns false if the payload does not match the
// expected shape.
func speakerInfoFromPayload(payload []byte) (types.SpeakerInfo, bool) {
	var meta []speakerMetaElement
	if err := json.Unmarshal(payload, &meta); err != nil || len(meta) == 0 {
		return types.SpeakerInfo{}, false
	}
	el := meta[0]
	return types.SpeakerInfo{
		Name:       el.Name,
		ID:         el.ID,
		Timestamp:  el.Timestamp,
		IsSpeaking: el.IsSpeaking,
	}, true
}

// pcmFrame wraps a raw binary payload as a PCM AudioFrame.
func pcmFrame(payload []byte) types.AudioFrame {
	return types.AudioFrame{
		Kind:       types.FramePCM,
		PCM:        payload,
		ReceivedAt: time.Now(),
	}
}
