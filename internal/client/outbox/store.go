// Package outbox is the client-side durable queue of not-yet-confirmed
// outgoing messages. Entries live in a local sqlite file so they survive
// process restarts; a row is deleted only once the server has confirmed
// the message over the reliable channel.
package outbox

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gorelay/internal/common"
	"gorelay/internal/protocol"
)

// Status is the outbox entry lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusFailed    Status = "failed"
	StatusAbandoned Status = "abandoned" // terminal, manual retry only
)

// Entry wraps one queued message plus its retry bookkeeping.
type Entry struct {
	ID          string `gorm:"primaryKey;size:36"` // client message UUID
	RoomID      string `gorm:"size:36"`
	SenderID    string `gorm:"size:36"`
	ContentType string `gorm:"size:16"`
	Body        string `gorm:"type:text"`
	MediaID     string `gorm:"size:64"`
	Filename    string `gorm:"size:255"`
	DurationMs  int
	ReplyTo     string `gorm:"size:36"`
	CreatedAt   time.Time
	Status      Status `gorm:"index;size:16"`
	RetryCount  int    // completed attempts
	LastAttemptAt *time.Time
}

// Message rebuilds the wire message from the stored entry.
func (e *Entry) Message() *protocol.Message {
	return &protocol.Message{
		ID:       e.ID,
		RoomID:   e.RoomID,
		SenderID: e.SenderID,
		Content: protocol.Content{
			Type:       common.ContentType(e.ContentType),
			Text:       e.Body,
			MediaID:    e.MediaID,
			Filename:   e.Filename,
			DurationMs: e.DurationMs,
		},
		CreatedAt: e.CreatedAt,
		ReplyTo:   e.ReplyTo,
	}
}

// Store is the durable outbox contract. All writes are synchronous with
// respect to the caller: once a method returns nil the state change is on
// disk.
type Store interface {
	Enqueue(ctx context.Context, msg *protocol.Message) (*Entry, error)
	ListPending(ctx context.Context) ([]*Entry, error)
	MarkAttempt(ctx context.Context, id string, retryCount int, at time.Time) error
	MarkFailed(ctx context.Context, id string) error
	MarkSent(ctx context.Context, id string, serverID uint64) error
	MarkAbandoned(ctx context.Context, id string) error
	ListAbandoned(ctx context.Context) ([]*Entry, error)
	Requeue(ctx context.Context, id string) error
}

// SQLiteStore implements Store on a local sqlite database.
type SQLiteStore struct {
	db *gorm.DB
}

// Open opens (or creates) the outbox database at path. A failure here is
// fatal for the client: without local storage there is no durability.
func Open(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot open outbox database: %w", err)
	}
	if err := db.AutoMigrate(&Entry{}); err != nil {
		return nil, fmt.Errorf("outbox migration failed: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) Enqueue(ctx context.Context, msg *protocol.Message) (*Entry, error) {
	entry := &Entry{
		ID:          msg.ID,
		RoomID:      msg.RoomID,
		SenderID:    msg.SenderID,
		ContentType: msg.Content.Type.String(),
		Body:        msg.Content.Text,
		MediaID:     msg.Content.MediaID,
		Filename:    msg.Content.Filename,
		DurationMs:  msg.Content.DurationMs,
		ReplyTo:     msg.ReplyTo,
		CreatedAt:   msg.CreatedAt,
		Status:      StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to enqueue message: %w", err)
	}
	return entry, nil
}

// ListPending returns entries eligible for the next processor pass,
// oldest first. Entries mid-flight from a crashed process show up as
// "sending" and are retried too.
func (s *SQLiteStore) ListPending(ctx context.Context) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.WithContext(ctx).
		Where("status IN ?", []Status{StatusPending, StatusSending, StatusFailed}).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *SQLiteStore) MarkAttempt(ctx context.Context, id string, retryCount int, at time.Time) error {
	return s.update(ctx, id, map[string]any{
		"status":          StatusSending,
		"retry_count":     retryCount,
		"last_attempt_at": at,
	})
}

func (s *SQLiteStore) MarkFailed(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{"status": StatusFailed})
}

// MarkSent removes the entry: the server round-trip is complete, the
// durability obligation is discharged.
func (s *SQLiteStore) MarkSent(ctx context.Context, id string, serverID uint64) error {
	return s.db.WithContext(ctx).Delete(&Entry{}, "id = ?", id).Error
}

func (s *SQLiteStore) MarkAbandoned(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{"status": StatusAbandoned})
}

func (s *SQLiteStore) ListAbandoned(ctx context.Context) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.WithContext(ctx).
		Where("status = ?", StatusAbandoned).
		Order("created_at ASC, id ASC").
		Find(&entries).Error
	return entries, err
}

// Requeue resets an abandoned entry for a user-initiated manual retry.
func (s *SQLiteStore) Requeue(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{
		"status":          StatusPending,
		"retry_count":     0,
		"last_attempt_at": nil,
	})
}

func (s *SQLiteStore) update(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&Entry{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("outbox entry %s not found", id)
	}
	return nil
}
