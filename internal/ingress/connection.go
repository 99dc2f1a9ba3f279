package ingress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/opsframe/meetbridge/internal/observe"
	"github.com/opsframe/meetbridge/internal/session"
	"github.com/opsframe/meetbridge/internal/sink"
	"github.com/opsframe/meetbridge/pkg/types"
)

// Forwarder delivers a PCM chunk to the Provider Bridge. Implemented by
// internal/bridge.Bridge; declared here to keep ingress from depending on
// the bridge package directly.
type Forwarder interface {
	ForwardPCM(chunk []byte)
}

// DroppedFrameJournal records a dropped PCM frame for the session summary.
// Implemented by internal/journal.Writer. Optional.
type DroppedFrameJournal interface {
	RecordDroppedFrame()
}

// Connection adapts one accepted WebSocket connection to the Audio Ingress
// contract: classify each message, update the session's current speaker,
// forward PCM when the gate is open, and relay transcripts back to
// bot-registered clients.
//
// Connection bookkeeping — a done channel closed exactly once, guarded by
// sync.Once — follows the same idiom used elsewhere for demuxing a single
// external socket into per-purpose internal channels.
type Connection struct {
	id   string
	conn *websocket.Conn

	sess      *session.Session
	forwarder Forwarder
	registry  sink.Registry
	journal   DroppedFrameJournal
	metrics   *observe.Metrics

	onGateOpen func()

	registered bool
	mu         sync.Mutex

	done      chan struct{}
	closeOnce sync.Once
}

// newConnection wraps an accepted WebSocket connection.
func newConnection(conn *websocket.Conn, sess *session.Session, fw Forwarder, reg sink.Registry, j DroppedFrameJournal, m *observe.Metrics, onGateOpen func()) *Connection {
	return &Connection{
		id:         uuid.NewString(),
		conn:       conn,
		sess:       sess,
		forwarder:  fw,
		registry:   reg,
		journal:    j,
		metrics:    m,
		onGateOpen: onGateOpen,
		done:       make(chan struct{}),
	}
}

// ID implements Subscriber.
func (c *Connection) ID() string { return c.id }

// Send implements Subscriber: it writes a transcript envelope as a text
// WebSocket message. Errors are returned for the Sink to log; failed
// delivery never removes the subscriber.
func (c *Connection) Send(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

// run reads messages until the connection closes or ctx is cancelled. It
// never returns an error: all failures are logged and treated as a normal
// peer socket closure (per the error taxonomy, a closed socket is routine).
func (c *Connection) run(ctx context.Context) {
	defer c.Close()

	startBridge := c.handleOpened()
	if startBridge && c.onGateOpen != nil {
		c.onGateOpen()
	}

	for {
		select {
		case <-c.done:
			return
		default:
		}

		mt, payload, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		switch mt {
		case websocket.MessageText:
			c.handleText(payload)
		case websocket.MessageBinary:
			c.handlePCM(payload)
		}
	}
}

func (c *Connection) handleOpened() bool {
	_, startBridge := c.sess.IngressOpened()
	return startBridge
}

func (c *Connection) handleText(payload []byte) {
	frame, ok := classifyText(payload)
	if !ok {
		// Malformed or unrecognized JSON: treat as PCM per the ingress
		// contract's forward-compatibility rule.
		c.handlePCM(payload)
		return
	}

	switch frame.Kind {
	case types.FrameRegister:
		c.register()
	case types.FrameSpeakerMeta:
		if info, ok := speakerInfoFromPayload(payload); ok {
			c.sess.UpdateSpeaker(info)
		}
	}
}

func (c *Connection) register() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered {
		return
	}
	c.registered = true
	c.registry.Register(c)
}

func (c *Connection) handlePCM(chunk []byte) {
	if !c.sess.GateOpen() {
		if c.metrics != nil {
			c.metrics.RecordDroppedFrame(context.Background(), "gate_closed")
		}
		if c.journal != nil {
			c.journal.RecordDroppedFrame()
		}
		return
	}
	c.forwarder.ForwardPCM(chunk)
}

// Close half-closes the WebSocket connection and notifies the session that
// an ingress connection went away. Safe to call more than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		registered := c.registered
		c.mu.Unlock()
		if registered {
			c.registry.Unregister(c.id)
		}

		c.sess.IngressClosed()
		err = c.conn.Close(websocket.StatusNormalClosure, "session closed")
		if err != nil {
			slog.Debug("ingress: connection close", "id", c.id, "err", err)
			err = nil // peer socket closure is a normal event
		}
	})
	return err
}
