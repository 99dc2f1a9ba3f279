// Package types defines the shared types used across meetbridge's components.
//
// These form the lingua franca between ingress, the provider bridge, the
// transcript sink, and the webhook control plane. They are intentionally
// minimal — each package defines its own internal detail, but values that
// cross package boundaries live here to avoid circular imports.
package types

import "time"

// FrameKind classifies an inbound Audio Ingress message.
type FrameKind int

const (
	// FramePCM is a raw 16-bit little-endian PCM audio chunk.
	FramePCM FrameKind = iota

	// FrameSpeakerMeta is a JSON array describing the active speaker.
	FrameSpeakerMeta

	// FrameRegister is a `{"type":"register","client":"bot"}` subscription frame.
	FrameRegister
)

// AudioFrame is a single inbound message from the audio ingress socket,
// classified by Kind. PCM is only meaningful when Kind is FramePCM.
type AudioFrame struct {
	// PCM holds raw signed 16-bit little-endian audio samples.
	PCM []byte

	// ReceivedAt is when the frame was read off the socket.
	ReceivedAt time.Time

	// Kind is the classification result.
	Kind FrameKind
}

// SpeakerInfo describes the meeting participant a SpeakerMeta frame refers to.
type SpeakerInfo struct {
	// Name is the participant's display name.
	Name string

	// ID is the provider-assigned numeric participant id.
	ID int

	// Timestamp is when the platform reported this speaking state.
	Timestamp time.Time

	// IsSpeaking is true while the participant is actively speaking.
	IsSpeaking bool
}

// TranscriptEvent is a speech-to-text result enriched with the session
// context (current speaker) it was observed under.
type TranscriptEvent struct {
	// Text is the transcribed content.
	Text string

	// IsFinal distinguishes an authoritative result from an interim one.
	IsFinal bool

	// ReceivedAt is when the mediator observed this event from the provider.
	ReceivedAt time.Time

	// Speaker is a snapshot of the session's current speaker at ReceivedAt,
	// or nil if no speaker has been identified yet.
	Speaker *SpeakerInfo

	// Confidence is the provider's reported confidence, or 0 if not reported.
	Confidence float64

	// Words contains per-word detail when the provider reports it.
	Words []WordDetail
}

// WordDetail holds per-word metadata from providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a vocabulary hint that increases recognition probability
// for uncommon words. Not every provider honors it.
type KeywordBoost struct {
	// Keyword is the text to boost.
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// ControlEventKind enumerates the closed set of control events a conferencing
// platform may deliver over the webhook endpoint.
type ControlEventKind string

const (
	EventBotJoining                    ControlEventKind = "bot.joining"
	EventBotInWaitingRoom              ControlEventKind = "bot.in_waiting_room"
	EventBotJoined                     ControlEventKind = "bot.joined"
	EventBotLeft                       ControlEventKind = "bot.left"
	EventBotRecordingPermissionAllowed ControlEventKind = "bot.recording_permission_allowed"
	EventBotRecordingPermissionDenied  ControlEventKind = "bot.recording_permission_denied"
	EventRecordingStarted              ControlEventKind = "recording.started"
	EventRecordingReady                ControlEventKind = "recording.ready"
	EventRecordingFailed               ControlEventKind = "recording.failed"
	EventTranscriptionReady            ControlEventKind = "transcription.ready"
	EventTranscriptionFailed           ControlEventKind = "transcription.failed"
	EventMeetingEnded                  ControlEventKind = "meeting.ended"
	EventBotStatusChange               ControlEventKind = "bot.status_change"
)

// recognizedEvents is the closed set of event kinds the webhook intake accepts.
var recognizedEvents = map[ControlEventKind]bool{
	EventBotJoining:                    true,
	EventBotInWaitingRoom:              true,
	EventBotJoined:                     true,
	EventBotLeft:                       true,
	EventBotRecordingPermissionAllowed: true,
	EventBotRecordingPermissionDenied:  true,
	EventRecordingStarted:              true,
	EventRecordingReady:                true,
	EventRecordingFailed:               true,
	EventTranscriptionReady:            true,
	EventTranscriptionFailed:           true,
	EventMeetingEnded:                  true,
	EventBotStatusChange:               true,
}

// IsRecognized reports whether k is a member of the closed event enum.
func (k ControlEventKind) IsRecognized() bool {
	return recognizedEvents[k]
}

// StatusInCallNotRecording is the only status code that has a state-machine
// effect: it opens a Session's startup gate.
const StatusInCallNotRecording = "in_call_not_recording"

// ControlEvent is a decoded webhook payload, dispatched to the session state
// machine and to observational handlers.
type ControlEvent struct {
	// Kind is the event type.
	Kind ControlEventKind

	// BotID identifies which bot instance the event concerns, if present.
	BotID string

	// StatusCode is the status code from a `status` field on bot.status_change
	// events; status may arrive as a bare string or as {code, message}.
	StatusCode string

	// StatusMessage is the human-readable message when status arrived as an
	// object.
	StatusMessage string

	// Data holds the raw decoded `data` object, for observational handlers.
	Data map[string]any

	// ReceivedAt is when the webhook request was accepted.
	ReceivedAt time.Time
}
