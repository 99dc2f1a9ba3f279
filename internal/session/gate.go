package session

import "sync/atomic"

// gate is the startup-gate predicate consulted by Audio Ingress on every PCM
// frame. It is single-writer (the orchestrator, on a state transition) and
// multi-reader (every ingress connection goroutine), implemented as an
// atomic so the audio hot path never takes a lock.
type gate struct {
	open atomic.Bool
}

// Open reports whether audio frames may currently be forwarded to the
// Provider Bridge.
func (g *gate) Open() bool {
	return g.open.Load()
}

// set is called only by the orchestrator on the transition into Streaming:
// on the gate-opening webhook in Remote mode, or on the first ingress
// connection in Local mode.
func (g *gate) set(v bool) {
	g.open.Store(v)
}
