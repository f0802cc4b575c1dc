package service

import (
	"context"
	"fmt"
	"time"

	"gorelay/internal/common"
	"gorelay/internal/dbmysql"
	"gorelay/internal/message/repository"
	"gorelay/internal/protocol"
)

// MessageService defines the interface exposed to the handler layer
type MessageService interface {
	Ingest(ctx context.Context, msg *protocol.Message) (*protocol.Message, bool, error)
	History(ctx context.Context, roomID, userID string, limit, offset int) ([]*protocol.Message, error)
	MarkRead(ctx context.Context, messageID, readerID string) error
}

// Broadcaster is the fan-out side consumed after a successful persist.
// Implemented by the gateway dispatcher.
type Broadcaster interface {
	Broadcast(msg *protocol.Message, excludeUserID string)
	PushUser(userID string, frame protocol.ServerFrame)
}

type messageService struct {
	repo      repository.MessageRepository
	directory common.RoomDirectory
	dispatch  Broadcaster
}

// Constructor used in DI/wire
func NewMessageService(r repository.MessageRepository, dir common.RoomDirectory, d Broadcaster) MessageService {
	return &messageService{repo: r, directory: dir, dispatch: d}
}

// Ingest validates, persists and broadcasts one message from the reliable
// channel. Redelivery of an already-persisted client id returns the
// original persisted message and broadcasts nothing. This is the
// idempotent-delivery contract the client outbox relies on.
func (s *messageService) Ingest(ctx context.Context, msg *protocol.Message) (*protocol.Message, bool, error) {
	if msg.ID == "" {
		return nil, false, fmt.Errorf("%w: message id cannot be empty", common.ErrInvalidMessage)
	}
	if msg.RoomID == "" {
		return nil, false, fmt.Errorf("%w: room ID cannot be empty", common.ErrInvalidMessage)
	}
	if msg.SenderID == "" {
		return nil, false, fmt.Errorf("%w: sender ID cannot be empty", common.ErrInvalidMessage)
	}
	if err := msg.Content.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", common.ErrInvalidMessage, err)
	}

	member, err := s.directory.IsMember(ctx, msg.RoomID, msg.SenderID)
	if err != nil {
		return nil, false, fmt.Errorf("membership lookup failed: %w", err)
	}
	if !member {
		return nil, false, common.ErrNotRoomMember
	}

	row := toModel(msg)
	row.ReceivedAt = time.Now().UTC()

	saved, duplicate, err := s.repo.SaveIdempotent(ctx, row)
	if err != nil {
		return nil, false, err
	}

	out := toWire(saved)
	if !duplicate {
		s.dispatch.Broadcast(out, "")
	}

	return out, duplicate, nil
}

// History returns a room's messages in room order, membership-checked.
// Used both for room-open rendering and reconnect backfill.
func (s *messageService) History(ctx context.Context, roomID, userID string, limit, offset int) ([]*protocol.Message, error) {
	if roomID == "" {
		return nil, fmt.Errorf("%w: room ID is required", common.ErrInvalidMessage)
	}

	member, err := s.directory.IsMember(ctx, roomID, userID)
	if err != nil {
		return nil, fmt.Errorf("membership lookup failed: %w", err)
	}
	if !member {
		return nil, common.ErrNotRoomMember
	}

	rows, err := s.repo.History(ctx, roomID, limit, offset)
	if err != nil {
		return nil, err
	}

	messages := make([]*protocol.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, toWire(row))
	}
	return messages, nil
}

// MarkRead records a read receipt and pushes it to the sender's live
// connections, which drives the sender's status tracker to READ.
func (s *messageService) MarkRead(ctx context.Context, messageID, readerID string) error {
	row, err := s.repo.ByClientID(ctx, messageID)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("%w: unknown message %s", common.ErrInvalidMessage, messageID)
	}

	member, err := s.directory.IsMember(ctx, row.RoomID, readerID)
	if err != nil {
		return fmt.Errorf("membership lookup failed: %w", err)
	}
	if !member {
		return common.ErrNotRoomMember
	}

	s.dispatch.PushUser(row.SenderID, protocol.ReadReceiptFrame(row.ClientID, row.RoomID, readerID))
	return nil
}

func toModel(msg *protocol.Message) *dbmysql.Message {
	return &dbmysql.Message{
		ClientID:    msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		ContentType: msg.Content.Type.String(),
		Body:        msg.Content.Text,
		MediaID:     msg.Content.MediaID,
		Filename:    msg.Content.Filename,
		DurationMs:  msg.Content.DurationMs,
		ReplyTo:     msg.ReplyTo,
		CreatedAt:   msg.CreatedAt,
	}
}

func toWire(row *dbmysql.Message) *protocol.Message {
	return &protocol.Message{
		ID:       row.ClientID,
		ServerID: row.ServerID,
		RoomID:   row.RoomID,
		SenderID: row.SenderID,
		Content: protocol.Content{
			Type:       common.ContentType(row.ContentType),
			Text:       row.Body,
			MediaID:    row.MediaID,
			Filename:   row.Filename,
			DurationMs: row.DurationMs,
		},
		CreatedAt: row.CreatedAt,
		ReplyTo:   row.ReplyTo,
	}
}
