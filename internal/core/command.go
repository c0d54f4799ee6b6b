package core

import "github.com/vovakirdan/caserelay/internal/store"

// Command is an inbound action requested by a connection.
// The set of implementations is closed: JoinCommand, KeepAliveCommand
// and PostCommand.
type Command interface {
	command()
}

// JoinCommand binds a connection to a session and a user identity.
type JoinCommand struct {
	SessionID int64
	UserID    int64
}

// KeepAliveCommand is the client-side heartbeat. It carries no content.
type KeepAliveCommand struct{}

// PostCommand submits content to the joined session.
type PostCommand struct {
	Type    store.MessageType
	Content string
}

func (JoinCommand) command()      {}
func (KeepAliveCommand) command() {}
func (PostCommand) command()      {}
