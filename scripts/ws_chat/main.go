package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/caserelay/internal/proto"
)

// Mirrors the browser client's keep-alive cadence.
const keepAliveInterval = 25 * time.Second

func main() {
	if err := run(); err != nil {
		log.Printf("ws_chat: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	session := flag.Int64("session", 1, "session id to join")
	user := flag.Int64("user", 1, "user id to join as")
	token := flag.String("token", "", "bearer token when the relay authenticates upgrades")
	flag.Parse()

	baseCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	var opts *websocket.DialOptions
	if *token != "" {
		opts = &websocket.DialOptions{HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}}}
	}
	conn, _, err := websocket.Dial(ctx, *addr, opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, map[string]any{
		"type":      proto.InboundTypeSession,
		"sessionId": *session,
		"userId":    *user,
	}); err != nil {
		return fmt.Errorf("join: %w", err)
	}

	fmt.Printf("Connected to %s as user %d in session %d\n", *addr, *user, *session)
	fmt.Println("Type messages and press Enter to send. Prefix with /diag or /note to change type. Ctrl+C to exit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()
	go keepAlive(ctx, conn)

	writeLoop(ctx, conn)

	stop()
	cancel()
	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wsjson.Write(ctx, conn, map[string]string{"type": proto.InboundTypePing}); err != nil {
				return
			}
		}
	}
}

// inboundFrame covers both outbound frame shapes the relay emits.
type inboundFrame struct {
	Error   string         `json:"error"`
	Type    string         `json:"type"`
	Message *proto.Message `json:"message"`
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame inboundFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			// Treat expected shutdowns quietly.
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			log.Printf("read error: %v", err)
			return
		}

		switch {
		case frame.Error != "":
			fmt.Printf("error: %s\n", frame.Error)
		case frame.Message != nil:
			m := frame.Message
			fmt.Printf("[session %d] %s #%d from %d: %s\n", m.SessionID, m.Type, m.ID, m.SenderID, m.Content)
		default:
			fmt.Printf("unexpected frame type=%q\n", frame.Type)
		}
	}
}

func parseLine(line string) (msgType, content string) {
	switch {
	case strings.HasPrefix(line, "/diag "):
		return proto.InboundTypeDiagnostic, strings.TrimSpace(strings.TrimPrefix(line, "/diag "))
	case strings.HasPrefix(line, "/note "):
		return proto.InboundTypeNote, strings.TrimSpace(strings.TrimPrefix(line, "/note "))
	default:
		return proto.InboundTypeChat, line
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}

			msgType, content := parseLine(text)
			if err := wsjson.Write(ctx, conn, map[string]string{"type": msgType, "content": content}); err != nil {
				log.Printf("send error: %v", err)
				return
			}
		}
	}
}
