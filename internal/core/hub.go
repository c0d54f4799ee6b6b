package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/caserelay/internal/store"
)

// DefaultPersistTimeout bounds a single durable write.
const DefaultPersistTimeout = 10 * time.Second

// Options tune the hub.
type Options struct {
	PingInterval   time.Duration
	PersistTimeout time.Duration
	SendQueueSize  int
	Metrics        Metrics
}

// Hub drives the relay protocol: it validates commands against each
// connection's state, persists content and fans it out to session peers.
type Hub struct {
	registry   *Registry
	sessions   *Multiplexer
	dispatcher *Dispatcher
	monitor    *Monitor
	messages   store.MessageStore
	metrics    Metrics
	log        *zerolog.Logger

	persistTimeout time.Duration
	queueSize      int
}

// NewHub creates a hub persisting through messages.
func NewHub(messages store.MessageStore, opts Options, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	persistTimeout := opts.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}

	sessions := NewMultiplexer()
	registry := NewRegistry(sessions)

	return &Hub{
		registry:       registry,
		sessions:       sessions,
		dispatcher:     NewDispatcher(sessions, metrics, logger),
		monitor:        NewMonitor(registry, opts.PingInterval, metrics, logger),
		messages:       messages,
		metrics:        metrics,
		log:            logger,
		persistTimeout: persistTimeout,
		queueSize:      opts.SendQueueSize,
	}
}

// Run starts the liveness monitor and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	h.log.Info().Dur("interval", h.monitor.interval).Msg("liveness monitor started")
	h.monitor.Run(ctx)
	h.log.Info().Msg("liveness monitor stopped")
}

// Registry exposes the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Sessions exposes the session index.
func (h *Hub) Sessions() *Multiplexer { return h.sessions }

// Connect registers a freshly accepted transport.
func (h *Hub) Connect(t Transport, identity *Identity) *Conn {
	c := NewConn(t, identity, h.queueSize)
	h.registry.Register(c)
	h.metrics.ConnOpened()
	h.log.Debug().Str("conn_id", c.ID).Msg("connection registered")
	return c
}

// Disconnect deregisters a connection after its transport closed.
// Safe to call more than once and after an eviction.
func (h *Hub) Disconnect(c *Conn) {
	if !h.registry.Deregister(c) {
		return
	}
	h.metrics.ConnClosed()
	h.log.Debug().Str("conn_id", c.ID).Msg("connection deregistered")
}

// Reject reports a protocol error to c only.
func (h *Hub) Reject(c *Conn, err *CoreError) {
	h.metrics.ProtocolError(err.Code)
	h.log.Debug().Str("conn_id", c.ID).Str("code", err.Code).Msg("protocol error")
	if !c.send(errorEvent(err)) {
		h.log.Warn().Str("conn_id", c.ID).Msg("dropping error frame: send queue unavailable")
	}
}

// Handle processes one command to completion. Callers serialize commands
// per connection, which keeps that connection's messages in persisted order.
func (h *Hub) Handle(ctx context.Context, c *Conn, cmd Command) {
	state := c.State()
	if state == StateClosed {
		return
	}

	switch cmd := cmd.(type) {
	case JoinCommand:
		h.handleJoin(c, cmd)
	case KeepAliveCommand:
		if state != StateJoined {
			h.Reject(c, notJoined())
		}
	case PostCommand:
		h.handlePost(ctx, c, cmd)
	default:
		h.Reject(c, InvalidFormat())
	}
}

func (h *Hub) handleJoin(c *Conn, cmd JoinCommand) {
	if cmd.SessionID <= 0 || cmd.UserID <= 0 {
		h.Reject(c, InvalidFormat())
		return
	}
	if c.Identity != nil && c.Identity.UserID != cmd.UserID {
		h.Reject(c, coreError(ErrCodeIdentityMismatch, MsgIdentityMismatch))
		return
	}

	if err := h.registry.MarkJoined(c, cmd.SessionID, cmd.UserID); err != nil {
		if errors.Is(err, ErrAlreadyJoined) {
			h.Reject(c, coreError(ErrCodeAlreadyJoined, MsgAlreadyJoined))
		}
		// ErrConnClosed: the transport went away meanwhile, nobody to answer.
		return
	}

	h.log.Info().
		Str("conn_id", c.ID).
		Int64("session_id", cmd.SessionID).
		Int64("user_id", cmd.UserID).
		Int("members", h.sessions.Count(cmd.SessionID)).
		Msg("joined session")
}

func (h *Hub) handlePost(ctx context.Context, c *Conn, cmd PostCommand) {
	sessionID, userID, ok := c.Session()
	if !ok {
		h.Reject(c, notJoined())
		return
	}
	if !cmd.Type.Valid() || strings.TrimSpace(cmd.Content) == "" {
		h.Reject(c, InvalidFormat())
		return
	}

	// Persistence outlives the sender's connection context.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.persistTimeout)
	defer cancel()

	msg, err := h.messages.CreateMessage(pctx, store.NewMessage{
		SessionID: sessionID,
		SenderID:  userID,
		Type:      cmd.Type,
		Content:   cmd.Content,
	})
	if err != nil {
		h.metrics.PersistFailed()
		h.log.Error().Err(err).
			Str("conn_id", c.ID).
			Int64("session_id", sessionID).
			Msg("failed to persist message")
		h.Reject(c, coreError(ErrCodePersistFailed, MsgPersistFailed))
		return
	}
	h.metrics.Persisted(msg.Type)

	delivered := h.dispatcher.Broadcast(sessionID, c, messageEvent(msg))
	h.log.Debug().
		Int64("message_id", msg.ID).
		Int64("session_id", sessionID).
		Int("delivered", delivered).
		Msg("message relayed")
}
