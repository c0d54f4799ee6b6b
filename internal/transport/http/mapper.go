package http

import (
	"github.com/vovakirdan/caserelay/internal/core"
	"github.com/vovakirdan/caserelay/internal/proto"
	"github.com/vovakirdan/caserelay/internal/store"
)

func frameToCommand(frame proto.Frame) core.Command {
	switch f := frame.(type) {
	case proto.JoinFrame:
		return core.JoinCommand{SessionID: f.SessionID, UserID: f.UserID}
	case proto.PingFrame:
		return core.KeepAliveCommand{}
	case proto.ContentFrame:
		return core.PostCommand{Type: store.MessageType(f.Type), Content: f.Content}
	default:
		return nil
	}
}

func messageToProto(msg *store.Message) proto.Message {
	return proto.Message{
		ID:        msg.ID,
		SessionID: msg.SessionID,
		SenderID:  msg.SenderID,
		Type:      string(msg.Type),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

func outboundFromEvent(event *core.Event) any {
	switch event.Kind {
	case core.EventMessage:
		return proto.Broadcast{
			Type:    string(event.Message.Type),
			Message: messageToProto(event.Message),
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Error{Error: core.MsgInvalidFormat}
		}
		return proto.Error{Error: event.Error.Message}
	default:
		return proto.Error{Error: core.MsgInvalidFormat}
	}
}
