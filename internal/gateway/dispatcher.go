package gateway

import (
	"log"

	"gorelay/internal/protocol"
)

// Dispatcher fans persisted messages out to the live handles the registry
// resolves for a room. Fan-out is best-effort: a dead or slow handle is
// dropped and unregistered, never allowed to abort delivery to the rest.
// Offline users are not handled here; they backfill via history on
// reconnect.
type Dispatcher struct {
	registry *Registry
}

func NewDispatcher(registry *Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Broadcast pushes a new-message frame to every handle joined to the
// message's room, optionally excluding the originating user's handles.
// Push order follows call order, which follows server-persist order.
func (d *Dispatcher) Broadcast(msg *protocol.Message, excludeUserID string) {
	d.BroadcastFrame(msg.RoomID, protocol.NewMessageFrame(msg), excludeUserID)
}

// BroadcastFrame fans an arbitrary server frame out to a room.
func (d *Dispatcher) BroadcastFrame(roomID string, frame protocol.ServerFrame, excludeUserID string) {
	for _, c := range d.registry.Resolve(roomID) {
		if excludeUserID != "" && c.UserID() == excludeUserID {
			continue
		}
		d.push(c, frame)
	}
}

// PushUser delivers a frame to every live handle of one user.
func (d *Dispatcher) PushUser(userID string, frame protocol.ServerFrame) {
	for _, c := range d.registry.HandlesFor(userID) {
		d.push(c, frame)
	}
}

func (d *Dispatcher) push(c *Conn, frame protocol.ServerFrame) {
	if err := c.Push(frame); err != nil {
		log.Printf("dropping handle for %s: %v", c.UserID(), err)
		d.registry.Unregister(c.UserID(), c)
		c.Close()
	}
}
