package core

import "sync"

// Multiplexer maps a session ID to the connections currently joined to it.
// Sessions with no members are dropped from the index.
type Multiplexer struct {
	mu       sync.RWMutex
	sessions map[int64]map[*Conn]struct{}
}

// NewMultiplexer constructs an empty session index.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{
		sessions: make(map[int64]map[*Conn]struct{}),
	}
}

// Join inserts a connection into a session. Returns true if newly added.
func (m *Multiplexer) Join(sessionID int64, c *Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.sessions[sessionID]
	if !ok {
		members = make(map[*Conn]struct{})
		m.sessions[sessionID] = members
	}
	if _, exists := members[c]; exists {
		return false
	}
	members[c] = struct{}{}
	return true
}

// Leave deletes a connection from a session. Returns true if removed.
func (m *Multiplexer) Leave(sessionID int64, c *Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.sessions[sessionID]
	if !ok {
		return false
	}
	if _, exists := members[c]; !exists {
		return false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(m.sessions, sessionID)
	}
	return true
}

// MembersOf returns a copy of the session's members, so callers can iterate
// without holding the lock while peers come and go.
func (m *Multiplexer) MembersOf(sessionID int64) []*Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := m.sessions[sessionID]
	out := make([]*Conn, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// Count returns the number of members in a session.
func (m *Multiplexer) Count(sessionID int64) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}

// Len returns the number of sessions with at least one member.
func (m *Multiplexer) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
