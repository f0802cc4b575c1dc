package dbmysql

import (
	"time"
)

// RoomMember is the membership ACL row. The gateway's joined-set is a
// per-connection runtime cache; this table is the source of truth.
type RoomMember struct {
	RoomID    string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"primaryKey;size:36"`
	CreatedAt time.Time
}
