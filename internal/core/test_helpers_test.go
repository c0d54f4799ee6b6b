package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vovakirdan/caserelay/internal/store"
)

type fakeTransport struct {
	pingErr atomic.Value // error
	pings   atomic.Int32
	closed  atomic.Bool
	reason  atomic.Value // string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) failPings(err error) {
	t.pingErr.Store(err)
}

func (t *fakeTransport) Ping(context.Context) error {
	t.pings.Add(1)
	if err, ok := t.pingErr.Load().(error); ok && err != nil {
		return err
	}
	return nil
}

func (t *fakeTransport) Close(reason string) error {
	t.closed.Store(true)
	t.reason.Store(reason)
	return nil
}

var errStoreDown = errors.New("store down")

// memStore is an in-memory store.MessageStore.
type memStore struct {
	mu       sync.Mutex
	messages []*store.Message
	fail     bool
}

func (s *memStore) CreateMessage(_ context.Context, msg store.NewMessage) (*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errStoreDown
	}
	out := &store.Message{
		ID:        int64(len(s.messages) + 1),
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		Type:      msg.Type,
		Content:   msg.Content,
		CreatedAt: time.Now().UTC(),
	}
	s.messages = append(s.messages, out)
	return out, nil
}

func (s *memStore) ListMessages(_ context.Context, sessionID int64, _ int, _ *int64) ([]*store.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Message
	for _, m := range s.messages {
		if m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func (s *memStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func mustEvent(t *testing.T, c *Conn, kind EventKind) *Event {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("expected event kind %v not received", kind)
			return nil
		}
	}
}

func mustNoEvent(t *testing.T, c *Conn) {
	t.Helper()

	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
