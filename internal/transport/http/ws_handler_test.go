package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/caserelay/internal/config"
	"github.com/vovakirdan/caserelay/internal/core"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestHealthEndpoint(t *testing.T) {
	env := startTestServer(t, nil)

	resp, err := env.ts.Client().Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRelayBroadcastsToPeersOnly(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := testContext(t)

	alice := env.dial(t, ctx, nil)
	bob := env.dial(t, ctx, nil)
	env.join(t, ctx, alice, 42, 1)
	env.join(t, ctx, bob, 42, 2)

	sendJSON(t, ctx, alice, map[string]any{"type": "chat", "content": "hello"})

	got := readBroadcast(t, ctx, bob)
	assert.Equal(t, "chat", got.Type)
	assert.Equal(t, int64(42), got.Message.SessionID)
	assert.Equal(t, int64(1), got.Message.SenderID)
	assert.Equal(t, "chat", got.Message.Type)
	assert.Equal(t, "hello", got.Message.Content)
	assert.False(t, got.Message.CreatedAt.IsZero())

	// The message was stored before anyone saw it.
	stored, err := env.store.ListMessages(ctx, 42, 10, nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, stored[0].ID, got.Message.ID)

	// Alice's first inbound frame is Bob's reply, not an echo of her own message.
	sendJSON(t, ctx, bob, map[string]any{"type": "note", "content": "ack"})
	reply := readBroadcast(t, ctx, alice)
	assert.Equal(t, "note", reply.Type)
	assert.Equal(t, int64(2), reply.Message.SenderID)
	assert.Equal(t, "ack", reply.Message.Content)
}

func TestRelayIsolatesSessions(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := testContext(t)

	a := env.dial(t, ctx, nil)
	b := env.dial(t, ctx, nil)
	c := env.dial(t, ctx, nil)
	d := env.dial(t, ctx, nil)
	env.join(t, ctx, a, 1, 10)
	env.join(t, ctx, b, 1, 11)
	env.join(t, ctx, c, 2, 20)
	env.join(t, ctx, d, 2, 21)

	sendJSON(t, ctx, a, map[string]any{"type": "diagnostic", "content": "session one"})
	assert.Equal(t, "session one", readBroadcast(t, ctx, b).Message.Content)

	sendJSON(t, ctx, c, map[string]any{"type": "chat", "content": "session two"})
	got := readBroadcast(t, ctx, d)
	assert.Equal(t, "session two", got.Message.Content)
	assert.Equal(t, int64(2), got.Message.SessionID)
}

func TestRelayRejectsFramesBeforeJoin(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := testContext(t)

	conn := env.dial(t, ctx, nil)
	peer := env.dial(t, ctx, nil)

	sendJSON(t, ctx, conn, map[string]any{"type": "chat", "content": "too early"})
	assert.Equal(t, core.MsgInvalidFormat, readError(t, ctx, conn))

	sendJSON(t, ctx, conn, map[string]any{"type": "ping"})
	assert.Equal(t, core.MsgInvalidFormat, readError(t, ctx, conn))

	env.join(t, ctx, conn, 5, 1)
	env.join(t, ctx, peer, 5, 2)

	// Keep-alives after joining are silent.
	sendJSON(t, ctx, conn, map[string]any{"type": "ping"})
	sendJSON(t, ctx, conn, map[string]any{"type": "chat", "content": "now"})
	assert.Equal(t, "now", readBroadcast(t, ctx, peer).Message.Content)

	stored, err := env.store.ListMessages(ctx, 5, 10, nil)
	require.NoError(t, err)
	require.Len(t, stored, 1)
}

func TestRelayMalformedFramesKeepConnectionOpen(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := testContext(t)

	conn := env.dial(t, ctx, nil)
	peer := env.dial(t, ctx, nil)
	env.join(t, ctx, conn, 9, 1)
	env.join(t, ctx, peer, 9, 2)

	for _, frame := range []string{`not json`, `{"type":"video"}`, `{"content":"x"}`, `[1,2]`} {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
		assert.Equal(t, core.MsgInvalidFormat, readError(t, ctx, conn), "frame %s", frame)
	}
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, []byte(`{"type":"ping"}`)))
	assert.Equal(t, core.MsgInvalidFormat, readError(t, ctx, conn))

	sendJSON(t, ctx, conn, map[string]any{"type": "chat", "content": "   "})
	assert.Equal(t, core.MsgInvalidFormat, readError(t, ctx, conn))

	sendJSON(t, ctx, conn, map[string]any{"type": "note", "content": "still here"})
	assert.Equal(t, "still here", readBroadcast(t, ctx, peer).Message.Content)
}

func TestRelaySecondJoinIsRejected(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := testContext(t)

	conn := env.dial(t, ctx, nil)
	env.join(t, ctx, conn, 3, 1)

	sendJSON(t, ctx, conn, map[string]any{"type": "session", "sessionId": 4, "userId": 1})
	assert.Equal(t, core.MsgAlreadyJoined, readError(t, ctx, conn))
	assert.Equal(t, 1, env.hub.Sessions().Count(3))
	assert.Equal(t, 0, env.hub.Sessions().Count(4))
}

func TestRelayDisconnectLeavesSession(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := testContext(t)

	conn := env.dial(t, ctx, nil)
	env.join(t, ctx, conn, 7, 1)
	require.Equal(t, 1, env.hub.Registry().Len())

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	require.Eventually(t, func() bool {
		return env.hub.Sessions().Count(7) == 0 && env.hub.Registry().Len() == 0
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelayUpgradeRegistersConnection(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := testContext(t)

	conn := env.dial(t, ctx, nil)
	require.Eventually(t, func() bool {
		return env.hub.Registry().Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	env.join(t, ctx, conn, 42, 1)
	assert.Equal(t, 1, env.hub.Sessions().Count(42))
}

func TestRelayRejectsViteHMRSubprotocol(t *testing.T) {
	env := startTestServer(t, nil)
	ctx := testContext(t)

	for _, offered := range [][]string{
		{"vite-hmr"},
		{"vite-hmr-v2"},
		{"json", "vite-hmr"},
	} {
		_, resp, err := websocket.Dial(ctx, env.wsURL(), &websocket.DialOptions{
			Subprotocols: offered,
		})
		require.Error(t, err, "offered %v", offered)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "offered %v", offered)
	}
	assert.Equal(t, 0, env.hub.Registry().Len())

	// Other subprotocols are still accepted.
	env.dial(t, ctx, &websocket.DialOptions{Subprotocols: []string{"json"}})
	require.Eventually(t, func() bool {
		return env.hub.Registry().Len() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRelayFrameRateLimit(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.Relay.FrameRateLimit = 2
	})
	ctx := testContext(t)

	conn := env.dial(t, ctx, nil)
	env.join(t, ctx, conn, 1, 1)
	sendJSON(t, ctx, conn, map[string]any{"type": "ping"})
	sendJSON(t, ctx, conn, map[string]any{"type": "ping"})

	assert.Equal(t, core.MsgRateLimited, readError(t, ctx, conn))
}

func TestRelayAuthentication(t *testing.T) {
	env := startTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Enabled = true
	})
	ctx := testContext(t)

	t.Run("missing token", func(t *testing.T) {
		_, resp, err := websocket.Dial(ctx, env.wsURL(), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("role not allowed", func(t *testing.T) {
		_, resp, err := websocket.Dial(ctx, env.wsURL()+"?token="+makeToken(t, 5, "patient"), nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("identity mismatch", func(t *testing.T) {
		conn := env.dial(t, ctx, &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + makeToken(t, 5, "doctor")}},
		})
		sendJSON(t, ctx, conn, map[string]any{"type": "session", "sessionId": 1, "userId": 6})
		assert.Equal(t, core.MsgIdentityMismatch, readError(t, ctx, conn))

		env.join(t, ctx, conn, 1, 5)
	})
}
