package http

import (
	"context"
	"errors"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/caserelay/internal/auth"
	"github.com/vovakirdan/caserelay/internal/config"
	"github.com/vovakirdan/caserelay/internal/core"
	"github.com/vovakirdan/caserelay/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Conn.
type WSHandler struct {
	hub *core.Hub
	cfg config.RelayConfig
	jwt *auth.JWTConfig
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler. jwtCfg is nil when upgrades
// are not authenticated.
func NewWSHandler(hub *core.Hub, cfg config.RelayConfig, jwtCfg *auth.JWTConfig, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{hub: hub, cfg: cfg, jwt: jwtCfg, log: logger}
}

// wsTransport adapts a websocket connection to core.Transport.
type wsTransport struct {
	conn *websocket.Conn
}

func (t wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t wsTransport) Close(_ string) error {
	return t.conn.CloseNow()
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	if sub, ok := h.rejectedSubprotocol(r); ok {
		h.log.Debug().Str("subprotocol", sub).Str("remote", r.RemoteAddr).Msg("rejecting upgrade")
		stdhttp.Error(w, stdhttp.StatusText(stdhttp.StatusUnauthorized), stdhttp.StatusUnauthorized)
		return
	}

	var identity *core.Identity
	if h.jwt != nil {
		token, ok := bearerToken(r)
		if !ok {
			stdhttp.Error(w, stdhttp.StatusText(stdhttp.StatusUnauthorized), stdhttp.StatusUnauthorized)
			return
		}
		claims, err := auth.Authorize(h.jwt, token)
		if err != nil {
			h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("upgrade not authorized")
			status := authStatus(err)
			stdhttp.Error(w, stdhttp.StatusText(status), status)
			return
		}
		identity = &core.Identity{UserID: claims.UserID, Role: claims.Role}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     h.cfg.AllowedOrigins,
		InsecureSkipVerify: len(h.cfg.AllowedOrigins) == 0,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()

	if h.cfg.MaxFrameBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxFrameBytes)
	}

	c := h.hub.Connect(wsTransport{conn: conn}, identity)
	defer h.hub.Disconnect(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writeDone := make(chan error, 1)
	go func() {
		writeDone <- h.writeLoop(ctx, conn, c)
	}()

	err = h.readLoop(ctx, conn, c)
	h.hub.Disconnect(c)
	cancel()
	<-writeDone

	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		h.log.Debug().Str("conn_id", c.ID).Msg("ws connection closed by peer")
	case errors.Is(err, context.Canceled):
	default:
		h.log.Debug().Err(err).Str("conn_id", c.ID).Msg("ws connection closed")
	}
	_ = conn.Close(websocket.StatusNormalClosure, "closing")
}

// rejectedSubprotocol reports the first offered subprotocol containing a
// rejected name, so "vite-hmr" also covers variants such as "vite-hmr-v2".
func (h *WSHandler) rejectedSubprotocol(r *stdhttp.Request) (string, bool) {
	for _, header := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(header, ",") {
			p = strings.TrimSpace(p)
			for _, rejected := range h.cfg.RejectedSubprotocols {
				if rejected != "" && strings.Contains(p, rejected) {
					return p, true
				}
			}
		}
	}
	return "", false
}

// readLoop handles frames sequentially so one connection's messages are
// persisted and broadcast in arrival order.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, c *core.Conn) error {
	limiter := newRateLimiter(h.cfg.FrameRateLimit)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !limiter.allow() {
			h.hub.Reject(c, core.RateLimited())
			continue
		}
		if typ != websocket.MessageText {
			h.hub.Reject(c, core.InvalidFormat())
			continue
		}

		frame, err := proto.Decode(data)
		if err != nil {
			h.log.Debug().Err(err).Str("conn_id", c.ID).Msg("undecodable frame")
			h.hub.Reject(c, core.InvalidFormat())
			continue
		}
		h.hub.Handle(ctx, c, frameToCommand(frame))
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, c *core.Conn) error {
	for {
		select {
		case event := <-c.Events():
			if err := h.write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Warn().Err(err).Str("conn_id", c.ID).Msg("write ws event")
				return err
			}
		case <-c.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	timeout := h.cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return wsjson.Write(wctx, conn, v)
}
