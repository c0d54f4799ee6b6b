package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	InboundTypeSession    = "session"
	InboundTypePing       = "ping"
	InboundTypeChat       = "chat"
	InboundTypeDiagnostic = "diagnostic"
	InboundTypeNote       = "note"
)

var (
	// ErrMalformed is returned for frames that are not a single JSON object.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnknownType is returned for frames whose type tag is not recognized.
	ErrUnknownType = errors.New("unknown frame type")
	// ErrMissingField is returned when a required field is absent.
	ErrMissingField = errors.New("missing required field")
)

var validate = validator.New()

// Frame is a decoded inbound frame. Implementations: JoinFrame, PingFrame,
// ContentFrame.
type Frame interface {
	frame()
}

// JoinFrame binds the connection to a session.
type JoinFrame struct {
	SessionID int64 `json:"sessionId" validate:"required,gt=0"`
	UserID    int64 `json:"userId" validate:"required,gt=0"`
}

// PingFrame is the client keep-alive.
type PingFrame struct{}

// ContentFrame carries chat, diagnostic or note content.
type ContentFrame struct {
	Type    string `json:"-"`
	Content string `json:"content"`
}

func (JoinFrame) frame()    {}
func (PingFrame) frame()    {}
func (ContentFrame) frame() {}

type envelope struct {
	Type      string  `json:"type"`
	SessionID *int64  `json:"sessionId,omitempty"`
	UserID    *int64  `json:"userId,omitempty"`
	Content   *string `json:"content,omitempty"`
}

// Decode parses one text frame into its tagged variant.
func Decode(data []byte) (Frame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, ErrMalformed
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case InboundTypeSession:
		if env.SessionID == nil || env.UserID == nil {
			return nil, fmt.Errorf("%w: sessionId and userId", ErrMissingField)
		}
		join := JoinFrame{SessionID: *env.SessionID, UserID: *env.UserID}
		if err := validate.Struct(join); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMissingField, err)
		}
		return join, nil
	case InboundTypePing:
		return PingFrame{}, nil
	case InboundTypeChat, InboundTypeDiagnostic, InboundTypeNote:
		if env.Content == nil {
			return nil, fmt.Errorf("%w: content", ErrMissingField)
		}
		return ContentFrame{Type: env.Type, Content: *env.Content}, nil
	case "":
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

// Error is the frame sent only to the offending connection.
type Error struct {
	Error string `json:"error"`
}

// Message is a persisted message as seen on the wire.
type Message struct {
	ID        int64     `json:"id"`
	SessionID int64     `json:"sessionId"`
	SenderID  int64     `json:"senderId"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Broadcast fans a persisted message out to session peers.
type Broadcast struct {
	Type    string  `json:"type"`
	Message Message `json:"message"`
}
