package session

import (
	"sync"

	"github.com/opsframe/meetbridge/pkg/types"
)

// speakerTracker holds the single-writer current_speaker field. Ingress
// calls Update per SpeakerMeta frame; the orchestrator and the bridge read
// the snapshot via Current.
//
// Safe for concurrent use.
type speakerTracker struct {
	mu      sync.RWMutex
	current *types.SpeakerInfo
}

// Update applies a SpeakerMeta observation. It mutates current_speaker only
// on a rising edge: info.IsSpeaking is true and info.Name differs from the
// speaker already recorded. Returns true when a change was applied.
func (t *speakerTracker) Update(info types.SpeakerInfo) bool {
	if !info.IsSpeaking {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil && t.current.Name == info.Name {
		return false
	}

	snap := info
	t.current = &snap
	return true
}

// Current returns a snapshot of the current speaker, or nil if none has been
// observed yet.
func (t *speakerTracker) Current() *types.SpeakerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.current == nil {
		return nil
	}
	snap := *t.current
	return &snap
}
