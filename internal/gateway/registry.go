package gateway

import (
	"context"
	"log"
	"sync"
	"time"

	"gorelay/internal/common"
)

// Registry is the single concurrency-safe view of who is connected and
// which rooms they are listening on. Every connection goroutine goes
// through it; nothing else mutates this state. The joined-sets are a
// runtime cache rebuilt per connection, not the membership ACL.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[*Conn]struct{}  // userID -> live handles
	rooms  map[string]map[string]struct{} // roomID -> joined userIDs
	joined map[string]map[string]struct{} // userID -> joined roomIDs

	presence   common.Presence // optional, may be nil
	onPresence func(userID, status string, rooms []string)
}

func NewRegistry(presence common.Presence) *Registry {
	return &Registry{
		conns:    make(map[string]map[*Conn]struct{}),
		rooms:    make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
		presence: presence,
	}
}

// SetPresenceHook installs the callback fired on online/offline
// transitions, outside the registry lock.
func (r *Registry) SetPresenceHook(fn func(userID, status string, rooms []string)) {
	r.onPresence = fn
}

// Register adds a live handle for a user.
func (r *Registry) Register(userID string, c *Conn) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[*Conn]struct{})
		r.conns[userID] = set
	}
	first := len(set) == 0
	set[c] = struct{}{}
	r.mu.Unlock()

	if first {
		r.notifyPresence(userID, "online", nil)
	}
}

// Unregister removes a handle. When the user's last handle goes away the
// user leaves all joined rooms and a presence-offline event is emitted.
func (r *Registry) Unregister(userID string, c *Conn) {
	r.mu.Lock()
	set, ok := r.conns[userID]
	if ok {
		delete(set, c)
	}
	if !ok || len(set) > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.conns, userID)

	var rooms []string
	for roomID := range r.joined[userID] {
		rooms = append(rooms, roomID)
		if members, ok := r.rooms[roomID]; ok {
			delete(members, userID)
			if len(members) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	delete(r.joined, userID)
	r.mu.Unlock()

	r.notifyPresence(userID, "offline", rooms)
}

// Join marks the user as listening on a room.
func (r *Registry) Join(userID, roomID string) {
	r.mu.Lock()
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = make(map[string]struct{})
	}
	r.rooms[roomID][userID] = struct{}{}
	if _, ok := r.joined[userID]; !ok {
		r.joined[userID] = make(map[string]struct{})
	}
	r.joined[userID][roomID] = struct{}{}
	r.mu.Unlock()
}

// Leave removes the user from a room's joined-set.
func (r *Registry) Leave(userID, roomID string) {
	r.mu.Lock()
	if members, ok := r.rooms[roomID]; ok {
		delete(members, userID)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	if rooms, ok := r.joined[userID]; ok {
		delete(rooms, roomID)
	}
	r.mu.Unlock()
}

// Resolve returns a snapshot of every live handle for a room: the union
// of handles across all joined users. Broadcast code only ever sees this
// copy, never the underlying maps.
func (r *Registry) Resolve(roomID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var handles []*Conn
	for userID := range r.rooms[roomID] {
		for c := range r.conns[userID] {
			handles = append(handles, c)
		}
	}
	return handles
}

// HandlesFor returns a snapshot of one user's live handles.
func (r *Registry) HandlesFor(userID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]*Conn, 0, len(r.conns[userID]))
	for c := range r.conns[userID] {
		handles = append(handles, c)
	}
	return handles
}

// Rooms returns the rooms a user is currently joined to.
func (r *Registry) Rooms(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.joined[userID]))
	for roomID := range r.joined[userID] {
		rooms = append(rooms, roomID)
	}
	return rooms
}

func (r *Registry) notifyPresence(userID, status string, rooms []string) {
	if r.presence != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		var err error
		if status == "online" {
			err = r.presence.MarkOnline(ctx, userID)
		} else {
			err = r.presence.MarkOffline(ctx, userID)
		}
		if err != nil {
			// presence is best-effort, never surfaced to connections
			log.Printf("presence update failed for %s: %v", userID, err)
		}
	}
	if r.onPresence != nil {
		r.onPresence(userID, status, rooms)
	}
}
