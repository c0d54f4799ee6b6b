package core

import "sync"

// Registry tracks every live connection and keeps session membership in
// step with it. All membership changes go through the registry lock, so a
// join can never race a deregister into leaving a ghost member behind.
type Registry struct {
	mu       sync.Mutex
	conns    map[*Conn]struct{}
	sessions *Multiplexer
}

// NewRegistry constructs a registry that maintains membership in sessions.
func NewRegistry(sessions *Multiplexer) *Registry {
	return &Registry{
		conns:    make(map[*Conn]struct{}),
		sessions: sessions,
	}
}

// Register starts tracking a connection.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c] = struct{}{}
}

// MarkJoined binds the connection to a session and adds it to the session's
// members. It fails with ErrAlreadyJoined on a second call and with
// ErrConnClosed once the connection has been deregistered.
func (r *Registry) MarkJoined(c *Conn, sessionID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; !ok {
		return ErrConnClosed
	}
	if err := c.bind(sessionID, userID); err != nil {
		return err
	}
	r.sessions.Join(sessionID, c)
	return nil
}

// Deregister stops tracking a connection and removes it from its session.
// It is idempotent; only the first call returns true.
func (r *Registry) Deregister(c *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; !ok {
		return false
	}
	delete(r.conns, c)

	if sessionID, joined := c.close(); joined {
		r.sessions.Leave(sessionID, c)
	}
	return true
}

// IsAlive reports whether the connection answered the last liveness probe.
func (r *Registry) IsAlive(c *Conn) bool {
	return c.alive.Load()
}

// MarkAlive records a probe reply.
func (r *Registry) MarkAlive(c *Conn) {
	c.alive.Store(true)
}

// MarkSuspect clears the alive flag before a new probe goes out.
func (r *Registry) MarkSuspect(c *Conn) {
	c.alive.Store(false)
}

// Snapshot returns a copy of the registered connections.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}
