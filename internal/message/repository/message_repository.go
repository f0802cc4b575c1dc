package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gorelay/internal/dbmysql"
)

// MessageRepository persists messages with idempotent redelivery
// semantics: the client id carries a unique index, so retrying the same
// message can never create a second row.
type MessageRepository interface {
	SaveIdempotent(ctx context.Context, msg *dbmysql.Message) (saved *dbmysql.Message, duplicate bool, err error)
	History(ctx context.Context, roomID string, limit, offset int) ([]*dbmysql.Message, error)
	ByClientID(ctx context.Context, clientID string) (*dbmysql.Message, error)
}

type messageRepo struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepo{db: db}
}

// SaveIdempotent inserts msg unless a row with the same client id already
// exists, in which case the existing row is returned with duplicate=true.
// The unique index closes the check-then-insert race: a concurrent insert
// of the same client id fails and is resolved by re-reading.
func (r *messageRepo) SaveIdempotent(ctx context.Context, msg *dbmysql.Message) (*dbmysql.Message, bool, error) {
	existing, err := r.ByClientID(ctx, msg.ClientID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, true, nil
	}

	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		// Lost the race against a concurrent retry of the same id.
		existing, lookupErr := r.ByClientID(ctx, msg.ClientID)
		if lookupErr == nil && existing != nil {
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("failed to persist message: %w", err)
	}

	return msg, false, nil
}

// History returns a room's messages in room order: ascending client
// timestamp, ties broken by client id.
func (r *messageRepo) History(ctx context.Context, roomID string, limit, offset int) ([]*dbmysql.Message, error) {
	var messages []*dbmysql.Message
	q := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("created_at ASC, client_id ASC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *messageRepo) ByClientID(ctx context.Context, clientID string) (*dbmysql.Message, error) {
	var msg dbmysql.Message
	err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}
