package app

import (
	"log/slog"

	"github.com/opsframe/meetbridge/internal/ingress"
	"github.com/opsframe/meetbridge/internal/journal"
)

// recordingForwarder tees every PCM chunk to a WAVWriter before handing it to
// the Provider Bridge. A WAV write failure is logged and never blocks
// forwarding: the raw recording is best-effort, the live transcript is not.
type recordingForwarder struct {
	next ingress.Forwarder
	wav  *journal.WAVWriter
}

func (r *recordingForwarder) ForwardPCM(chunk []byte) {
	if err := r.wav.Write(chunk); err != nil {
		slog.Warn("app: wav write failed", "err", err)
	}
	r.next.ForwardPCM(chunk)
}
