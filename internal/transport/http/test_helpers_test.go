package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vovakirdan/caserelay/internal/auth"
	"github.com/vovakirdan/caserelay/internal/config"
	"github.com/vovakirdan/caserelay/internal/core"
	"github.com/vovakirdan/caserelay/internal/proto"
	"github.com/vovakirdan/caserelay/internal/store/sqlite"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	ts    *httptest.Server
	hub   *core.Hub
	store *sqlite.SQLiteStore
	cfg   config.Config
}

// startTestServer runs the full router over an in-memory SQLite store.
func startTestServer(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Auth.JWTSecret = testSecret
	if mutate != nil {
		mutate(&cfg)
	}

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	logger := zerolog.Nop()
	hub := core.NewHub(st, core.Options{
		PingInterval:  cfg.Relay.PingInterval,
		SendQueueSize: cfg.Relay.SendQueueSize,
	}, &logger)

	ts := httptest.NewServer(NewRouter(hub, st, &cfg, nil, &logger))
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, hub: hub, store: st, cfg: cfg}
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + e.cfg.Relay.Path
}

func (e *testEnv) dial(t *testing.T, ctx context.Context, opts *websocket.DialOptions) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, e.wsURL(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

// join binds conn and waits until the hub has seen the membership change.
func (e *testEnv) join(t *testing.T, ctx context.Context, conn *websocket.Conn, sessionID, userID int64) {
	t.Helper()
	before := e.hub.Sessions().Count(sessionID)
	sendJSON(t, ctx, conn, map[string]any{"type": "session", "sessionId": sessionID, "userId": userID})
	require.Eventually(t, func() bool {
		return e.hub.Sessions().Count(sessionID) == before+1
	}, 2*time.Second, 5*time.Millisecond)
}

func sendJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, wsjson.Write(ctx, conn, v))
}

func readBroadcast(t *testing.T, ctx context.Context, conn *websocket.Conn) proto.Broadcast {
	t.Helper()
	var raw json.RawMessage
	require.NoError(t, wsjson.Read(ctx, conn, &raw))
	var out proto.Broadcast
	require.NoError(t, json.Unmarshal(raw, &out), "frame: %s", raw)
	require.NotZero(t, out.Message.ID, "expected a message frame, got %s", raw)
	return out
}

func readError(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()
	var out proto.Error
	require.NoError(t, wsjson.Read(ctx, conn, &out))
	require.NotEmpty(t, out.Error)
	return out.Error
}

func makeToken(t *testing.T, userID int64, role string) string {
	t.Helper()
	defaults := config.Default().Auth
	token, err := auth.GenerateToken(&auth.JWTConfig{
		Secret:   []byte(testSecret),
		Issuer:   defaults.Issuer,
		Audience: defaults.Audience,
		TTL:      time.Hour,
	}, userID, role)
	require.NoError(t, err)
	return token
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
