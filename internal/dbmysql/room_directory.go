package dbmysql

import (
	"context"

	"gorm.io/gorm"

	"gorelay/internal/common"
)

// RoomDirectoryRepo backs the RoomDirectory collaborator with the
// room_members table.
type RoomDirectoryRepo struct {
	db *gorm.DB
}

func NewRoomDirectory(db *gorm.DB) common.RoomDirectory {
	return &RoomDirectoryRepo{db: db}
}

func (r *RoomDirectoryRepo) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RoomMember{}).
		Where("room_id = ? AND user_id = ?", roomID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *RoomDirectoryRepo) Members(ctx context.Context, roomID string) ([]string, error) {
	var userIDs []string
	err := r.db.WithContext(ctx).
		Model(&RoomMember{}).
		Where("room_id = ?", roomID).
		Pluck("user_id", &userIDs).Error
	return userIDs, err
}
