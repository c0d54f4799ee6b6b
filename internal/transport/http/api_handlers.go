package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/caserelay/internal/proto"
	"github.com/vovakirdan/caserelay/internal/store"
)

// APIHandlers provides HTTP handlers for REST API endpoints.
type APIHandlers struct {
	messages store.MessageStore
	log      *zerolog.Logger
}

// NewAPIHandlers creates a new API handlers instance.
func NewAPIHandlers(messages store.MessageStore, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{
		messages: messages,
		log:      logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

type historyURI struct {
	SessionID int64 `uri:"sessionId" binding:"required,gt=0"`
}

type historyQuery struct {
	Limit  int    `form:"limit" binding:"omitempty,gt=0"`
	Before *int64 `form:"before" binding:"omitempty,gt=0"`
}

// ListMessages returns a session's history in creation order.
// GET /api/collaboration/messages/:sessionId?limit=&before=
func (h *APIHandlers) ListMessages(c *gin.Context) {
	var uri historyURI
	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid session id"})
		return
	}
	var query historyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid query parameters"})
		return
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), uri.SessionID, store.ClampLimit(query.Limit), query.Before)
	if err != nil {
		h.log.Error().Err(err).Int64("session_id", uri.SessionID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch messages"})
		return
	}

	out := make([]proto.Message, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messageToProto(msg))
	}
	c.JSON(http.StatusOK, out)
}

// Health reports liveness of the process.
// GET /health
func (h *APIHandlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
