package dbmysql

import (
	"time"
)

// Message is the persisted form of a chat message. ServerID is the
// canonical server-assigned id; ClientID is the client-generated UUID and
// carries the unique index that makes redelivery idempotent.
type Message struct {
	ServerID    uint64 `gorm:"primaryKey;autoIncrement"`
	ClientID    string `gorm:"uniqueIndex;size:36"`
	RoomID      string `gorm:"index;size:36"`
	SenderID    string `gorm:"index;size:36"`
	ContentType string `gorm:"size:16"`
	Body        string `gorm:"type:text"`
	MediaID     string `gorm:"size:64"`
	Filename    string `gorm:"size:255"`
	DurationMs  int
	ReplyTo     string    `gorm:"size:36"`
	CreatedAt   time.Time `gorm:"index"` // client clock
	ReceivedAt  time.Time
}
