package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistryMarkJoinedIsOneShot(t *testing.T) {
	sessions := NewMultiplexer()
	r := NewRegistry(sessions)
	c := NewConn(newFakeTransport(), nil, 1)
	r.Register(c)

	require.NoError(t, r.MarkJoined(c, 42, 7))
	require.Equal(t, StateJoined, c.State())

	err := r.MarkJoined(c, 43, 7)
	require.ErrorIs(t, err, ErrAlreadyJoined)

	sessionID, userID, ok := c.Session()
	require.True(t, ok)
	require.Equal(t, int64(42), sessionID, "session binding must not switch")
	require.Equal(t, int64(7), userID)
	require.Zero(t, sessions.Count(43))
}

func TestRegistryDeregisterIsIdempotent(t *testing.T) {
	sessions := NewMultiplexer()
	r := NewRegistry(sessions)
	c := NewConn(newFakeTransport(), nil, 1)
	r.Register(c)
	require.NoError(t, r.MarkJoined(c, 1, 1))

	require.True(t, r.Deregister(c))
	require.False(t, r.Deregister(c))

	require.Equal(t, StateClosed, c.State())
	require.Zero(t, r.Len())
	require.Zero(t, sessions.Len())

	select {
	case <-c.Done():
	default:
		t.Fatal("done channel not closed after deregister")
	}
}

func TestRegistryJoinAfterDeregisterFails(t *testing.T) {
	sessions := NewMultiplexer()
	r := NewRegistry(sessions)
	c := NewConn(newFakeTransport(), nil, 1)
	r.Register(c)
	r.Deregister(c)

	require.ErrorIs(t, r.MarkJoined(c, 1, 1), ErrConnClosed)
	require.Zero(t, sessions.Len(), "no ghost membership after close")
}

func TestRegistryLivenessFlags(t *testing.T) {
	r := NewRegistry(NewMultiplexer())
	c := NewConn(newFakeTransport(), nil, 1)
	r.Register(c)

	require.True(t, r.IsAlive(c), "new connections start alive")
	r.MarkSuspect(c)
	require.False(t, r.IsAlive(c))
	r.MarkAlive(c)
	require.True(t, r.IsAlive(c))
}

func TestRegistryConcurrentJoinAndDeregister(t *testing.T) {
	sessions := NewMultiplexer()
	r := NewRegistry(sessions)

	const n = 100
	conns := make([]*Conn, n)
	for i := range conns {
		conns[i] = NewConn(newFakeTransport(), nil, 1)
		r.Register(conns[i])
	}

	var wg sync.WaitGroup
	for i, c := range conns {
		wg.Add(2)
		go func(c *Conn, i int) {
			defer wg.Done()
			_ = r.MarkJoined(c, int64(i%3)+1, int64(i)+1)
		}(c, i)
		go func(c *Conn) {
			defer wg.Done()
			r.Deregister(c)
		}(c)
	}
	wg.Wait()

	require.Zero(t, r.Len())
	require.Zero(t, sessions.Len(), "every join racing a deregister must be cleaned up")
}
