package core

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ConnState is the protocol state of a connection.
type ConnState int

const (
	StateUnjoined ConnState = iota
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Transport is the live network connection behind a Conn.
type Transport interface {
	// Ping sends a control-frame probe and returns once the reply arrived.
	Ping(ctx context.Context) error
	// Close tears the transport down without waiting for the peer.
	Close(reason string) error
}

// Identity is a user identity verified before the upgrade.
type Identity struct {
	UserID int64
	Role   string
}

// Conn is one accepted transport as seen by the core layer.
type Conn struct {
	ID       string
	Identity *Identity

	events    chan *Event
	done      chan struct{}
	closeOnce sync.Once
	transport Transport

	alive atomic.Bool

	mu        sync.Mutex
	state     ConnState
	sessionID int64
	userID    int64
}

// NewConn constructs a connection with a bounded outbound queue.
// identity may be nil when the deployment does not authenticate upgrades.
func NewConn(t Transport, identity *Identity, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = 32
	}
	c := &Conn{
		ID:        uuid.NewString(),
		Identity:  identity,
		events:    make(chan *Event, queueSize),
		done:      make(chan struct{}),
		transport: t,
	}
	c.alive.Store(true)
	return c
}

// Events returns the outbound queue drained by the transport writer.
// The channel is never closed; use Done to stop draining.
func (c *Conn) Events() <-chan *Event {
	return c.events
}

// Done is closed once the connection has left the registry.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// State returns the current protocol state.
func (c *Conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns the joined session and user. ok is false until joined.
func (c *Conn) Session() (sessionID, userID int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateJoined {
		return 0, 0, false
	}
	return c.sessionID, c.userID, true
}

// send enqueues an event without blocking. It reports false when the
// connection is closed or its queue is full.
func (c *Conn) send(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	default:
		return false
	}
}

// bind moves the connection to StateJoined. The binding is one-shot.
func (c *Conn) bind(sessionID, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateJoined:
		return ErrAlreadyJoined
	case StateClosed:
		return ErrConnClosed
	}
	c.state = StateJoined
	c.sessionID = sessionID
	c.userID = userID
	return nil
}

// close moves the connection to StateClosed and returns the session it was
// joined to, if any.
func (c *Conn) close() (sessionID int64, joined bool) {
	c.mu.Lock()
	joined = c.state == StateJoined
	sessionID = c.sessionID
	c.state = StateClosed
	c.mu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
	})
	return sessionID, joined
}
