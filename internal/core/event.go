package core

import "github.com/vovakirdan/caserelay/internal/store"

// EventKind is a notification the core emits to connections.
type EventKind int

const (
	// EventMessage delivers a persisted message to session peers.
	EventMessage EventKind = iota
	// EventError notifies the offending connection about a protocol error.
	EventError
)

// Event is sent to connections to describe what happened in the system.
type Event struct {
	Kind    EventKind
	Message *store.Message
	Error   *CoreError
}

func messageEvent(msg *store.Message) *Event {
	return &Event{Kind: EventMessage, Message: msg}
}

func errorEvent(err *CoreError) *Event {
	return &Event{Kind: EventError, Error: err}
}
