package common

import (
	"context"
)

// SessionValidator resolves a bearer credential to a user id, or rejects it.
type SessionValidator interface {
	Validate(token string) (userID string, err error)
}

// RoomDirectory is the source of truth for room membership ACLs. The
// gateway's joined-set is only a runtime cache of who is listening on a
// live connection; authorization decisions go through this interface.
type RoomDirectory interface {
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	Members(ctx context.Context, roomID string) ([]string, error)
}

// Presence receives online/offline transitions from the connection
// registry. Offline fires only when a user's last handle goes away.
type Presence interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (string, error)
}
