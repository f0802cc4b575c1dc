// chat-client is a terminal chat client. Outgoing messages go through
// the durable outbox over HTTP; incoming traffic arrives on the live
// socket, which reconnects on its own after a drop.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"gorelay/internal/client/api"
	"gorelay/internal/client/outbox"
	"gorelay/internal/client/socket"
	"gorelay/internal/client/status"
	"gorelay/internal/common"
	"gorelay/internal/config"
	"gorelay/internal/protocol"
)

func main() {
	cfg := config.LoadConfig()

	userID := envOr("RELAY_USER", "")
	token := envOr("RELAY_TOKEN", "")
	serverURL := envOr("RELAY_SERVER", "http://localhost:"+cfg.Server.Port)
	if userID == "" || token == "" {
		log.Fatal("RELAY_USER and RELAY_TOKEN must be set")
	}

	store, err := outbox.Open(cfg.Outbox.Path)
	if err != nil {
		log.Fatalf("Failed to open outbox: %v", err)
	}
	defer store.Close()

	client := api.NewClient(serverURL, token)
	tracker := status.NewTracker(userID, func(id string, s status.Status) {
		fmt.Printf("  [%s] %s\n", s, id)
	})

	mgr := socket.NewManager(cfg.Socket.URL, token, socket.Options{
		HandshakeTimeout: time.Duration(cfg.Socket.HandshakeTimeout) * time.Second,
		MaxAttempts:      cfg.Socket.MaxAttempts,
		BaseDelay:        time.Duration(cfg.Socket.BaseDelay) * time.Second,
		MaxDelay:         time.Duration(cfg.Socket.MaxDelay) * time.Second,
		OnState:          func(s socket.State) { fmt.Printf("* socket %s\n", s) },
	}, func(f *protocol.ServerFrame) {
		tracker.HandleServerFrame(f)
		printFrame(f, userID)
	})

	processor := outbox.NewProcessor(store, client, outbox.Options{
		Interval:       cfg.OutboxPassInterval(),
		BaseDelay:      time.Duration(cfg.Outbox.BaseDelay) * time.Second,
		MaxDelay:       time.Duration(cfg.Outbox.MaxDelay) * time.Second,
		MaxRetries:     cfg.Outbox.MaxRetries,
		AttemptTimeout: time.Duration(cfg.Outbox.AttemptTimeout) * time.Second,
	}, tracker.HandleOutboxEvent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go processor.Run(ctx)

	if err := mgr.Connect(ctx); err != nil {
		log.Printf("Socket connect failed, messages will queue: %v", err)
	}
	defer mgr.Disconnect()

	go repl(ctx, store, tracker, mgr, userID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Println("bye")
}

// repl reads commands from stdin. /join and /leave manage rooms, /retry
// recovers the socket from the error state, plain text sends to the
// current room.
func repl(ctx context.Context, store outbox.Store, tracker *status.Tracker, mgr *socket.Manager, userID string) {
	room := ""
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "/join "):
			room = strings.TrimSpace(strings.TrimPrefix(line, "/join "))
			if err := mgr.Join(room); err != nil {
				fmt.Printf("join queued until reconnect: %v\n", err)
			}
		case strings.HasPrefix(line, "/leave "):
			r := strings.TrimSpace(strings.TrimPrefix(line, "/leave "))
			if err := mgr.Leave(r); err != nil {
				fmt.Printf("leave failed: %v\n", err)
			}
			if r == room {
				room = ""
			}
		case line == "/retry":
			if err := mgr.Retry(ctx); err != nil {
				fmt.Printf("retry failed: %v\n", err)
			}
		case line == "/status":
			for id, s := range tracker.Snapshot() {
				fmt.Printf("  %s: %s\n", id, s)
			}
		default:
			if room == "" {
				fmt.Println("join a room first: /join <room>")
				continue
			}
			msg := &protocol.Message{
				ID:        uuid.NewString(),
				RoomID:    room,
				SenderID:  userID,
				Content:   protocol.Content{Type: common.ContentTypeText, Text: line},
				CreatedAt: time.Now().UTC(),
			}
			if _, err := store.Enqueue(ctx, msg); err != nil {
				fmt.Printf("enqueue failed: %v\n", err)
				continue
			}
			tracker.Track(msg.ID)
		}
	}
}

func printFrame(f *protocol.ServerFrame, selfID string) {
	switch f.Type {
	case protocol.FrameNewMessage:
		msg := f.NewMessage.Message
		if msg != nil && msg.SenderID != selfID {
			fmt.Printf("[%s] %s: %s\n", msg.RoomID, msg.SenderID, msg.Content.Text)
		}
	case protocol.FrameUserTyping:
		if f.UserTyping.IsTyping {
			fmt.Printf("[%s] %s is typing...\n", f.UserTyping.RoomID, f.UserTyping.UserID)
		}
	case protocol.FramePresenceUpdate:
		fmt.Printf("* %s is %s\n", f.PresenceUpdate.UserID, f.PresenceUpdate.Status)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
