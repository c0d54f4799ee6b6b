package store

import (
	"context"
	"time"
)

// MessageType tags the kind of content exchanged in a collaboration session.
type MessageType string

const (
	MessageTypeChat       MessageType = "chat"
	MessageTypeDiagnostic MessageType = "diagnostic"
	MessageTypeNote       MessageType = "note"
)

// Valid reports whether t is one of the known content types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeChat, MessageTypeDiagnostic, MessageTypeNote:
		return true
	default:
		return false
	}
}

const (
	// DefaultListLimit is used when a caller does not ask for a page size.
	DefaultListLimit = 100
	// MaxListLimit caps a single history page.
	MaxListLimit = 500
)

// ClampLimit normalizes a requested page size into [1, MaxListLimit].
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

// NewMessage is a validated message that has not been persisted yet.
type NewMessage struct {
	SessionID int64
	SenderID  int64
	Type      MessageType
	Content   string
}

// Message represents a persisted collaboration message.
// It is immutable once returned by the store.
type Message struct {
	ID        int64
	SessionID int64
	SenderID  int64
	Type      MessageType
	Content   string
	CreatedAt time.Time
}

// MessageStore handles message persistence.
type MessageStore interface {
	// CreateMessage durably appends a message and returns it with its
	// server-assigned ID and creation timestamp.
	CreateMessage(ctx context.Context, msg NewMessage) (*Message, error)

	// ListMessages retrieves messages of a session in creation order.
	// If beforeID is provided, only messages older than that ID are considered.
	// Limit determines max number of messages to return.
	ListMessages(ctx context.Context, sessionID int64, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates storage operations used by the relay.
type Store interface {
	MessageStore

	// Migrate applies the schema if it is missing.
	Migrate(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
