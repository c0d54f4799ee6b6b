package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/caserelay/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

// run joins two connections to one session, sends from the first and
// expects exactly the persisted message on the second.
func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	session := flag.Int64("session", 1, "session id")
	text := flag.String("text", "hello from smoke test", "message content to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sender, err := dialAndJoin(ctx, *addr, *session, 1)
	if err != nil {
		return err
	}
	defer sender.Close(websocket.StatusNormalClosure, "bye")

	receiver, err := dialAndJoin(ctx, *addr, *session, 2)
	if err != nil {
		return err
	}
	defer receiver.Close(websocket.StatusNormalClosure, "bye")

	// Joins carry no acknowledgement; give the relay a moment to bind both.
	time.Sleep(200 * time.Millisecond)

	if err := wsjson.Write(ctx, sender, map[string]string{"type": proto.InboundTypeChat, "content": *text}); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	var frame struct {
		Error   string         `json:"error"`
		Type    string         `json:"type"`
		Message *proto.Message `json:"message"`
	}
	if err := wsjson.Read(ctx, receiver, &frame); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if frame.Error != "" {
		return fmt.Errorf("relay error: %s", frame.Error)
	}
	if frame.Message == nil {
		return errors.New("frame carried no message")
	}
	if frame.Message.Content != *text || frame.Message.SenderID != 1 {
		return fmt.Errorf("unexpected message: %+v", *frame.Message)
	}

	fmt.Printf("ok: message #%d type=%s session=%d createdAt=%s\n",
		frame.Message.ID, frame.Type, frame.Message.SessionID, frame.Message.CreatedAt.Format(time.RFC3339))
	return nil
}

func dialAndJoin(ctx context.Context, addr string, sessionID, userID int64) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	if err := wsjson.Write(ctx, conn, map[string]any{
		"type":      proto.InboundTypeSession,
		"sessionId": sessionID,
		"userId":    userID,
	}); err != nil {
		conn.CloseNow()
		return nil, fmt.Errorf("join: %w", err)
	}
	return conn, nil
}
