package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gorelay/internal/dbmysql"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "messages.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&dbmysql.Message{}))
	return db
}

func row(clientID, roomID string, createdAt time.Time) *dbmysql.Message {
	return &dbmysql.Message{
		ClientID:    clientID,
		RoomID:      roomID,
		SenderID:    "u1",
		ContentType: "text",
		Body:        "hello",
		CreatedAt:   createdAt,
		ReceivedAt:  createdAt,
	}
}

func TestMessageRepository_SaveIdempotent(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	saved, duplicate, err := repo.SaveIdempotent(ctx, row("m1", "general", at))
	require.NoError(t, err)
	assert.False(t, duplicate)
	assert.NotZero(t, saved.ServerID)

	// redelivery of the same client id returns the original row
	again, duplicate, err := repo.SaveIdempotent(ctx, row("m1", "general", at))
	require.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, saved.ServerID, again.ServerID)

	history, err := repo.History(ctx, "general", 0, 0)
	require.NoError(t, err)
	assert.Len(t, history, 1, "retries never create a second row")
}

func TestMessageRepository_HistoryOrder(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// inserted out of order, ties on created_at broken by client id
	for _, m := range []*dbmysql.Message{
		row("m-c", "general", base.Add(time.Second)),
		row("m-a", "general", base.Add(time.Second)),
		row("m-b", "general", base),
		row("m-x", "other", base),
	} {
		_, _, err := repo.SaveIdempotent(ctx, m)
		require.NoError(t, err)
	}

	history, err := repo.History(ctx, "general", 0, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "m-b", history[0].ClientID)
	assert.Equal(t, "m-a", history[1].ClientID)
	assert.Equal(t, "m-c", history[2].ClientID)
}

func TestMessageRepository_HistoryPaging(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, _, err := repo.SaveIdempotent(ctx, row(
			"m"+string(rune('0'+i)), "general", base.Add(time.Duration(i)*time.Second)))
		require.NoError(t, err)
	}

	page, err := repo.History(ctx, "general", 2, 1)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m1", page[0].ClientID)
	assert.Equal(t, "m2", page[1].ClientID)
}

func TestMessageRepository_ByClientIDMissing(t *testing.T) {
	repo := NewMessageRepository(openTestDB(t))

	msg, err := repo.ByClientID(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, msg)
}
