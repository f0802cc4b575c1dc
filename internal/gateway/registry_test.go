package gateway

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresence struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePresence) MarkOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "online:"+userID)
	return nil
}

func (f *fakePresence) MarkOffline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "offline:"+userID)
	return nil
}

func (f *fakePresence) Status(context.Context, string) (string, error) { return "online", nil }

func (f *fakePresence) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func TestRegistry_ResolveUnionsJoinedUsers(t *testing.T) {
	reg := NewRegistry(nil)

	u1a := newConn("u1", nil)
	u1b := newConn("u1", nil) // second device
	u2 := newConn("u2", nil)
	u3 := newConn("u3", nil) // online but not joined

	reg.Register("u1", u1a)
	reg.Register("u1", u1b)
	reg.Register("u2", u2)
	reg.Register("u3", u3)

	reg.Join("u1", "r1")
	reg.Join("u2", "r1")
	reg.Join("u3", "r2")

	handles := reg.Resolve("r1")
	assert.Len(t, handles, 3) // both of u1's devices plus u2

	seen := map[*Conn]bool{}
	for _, c := range handles {
		seen[c] = true
	}
	assert.True(t, seen[u1a])
	assert.True(t, seen[u1b])
	assert.True(t, seen[u2])
	assert.False(t, seen[u3])

	assert.Empty(t, reg.Resolve("no-such-room"))
}

func TestRegistry_OfflineOnlyOnLastHandle(t *testing.T) {
	presence := &fakePresence{}
	reg := NewRegistry(presence)

	c1 := newConn("u1", nil)
	c2 := newConn("u1", nil)

	reg.Register("u1", c1)
	reg.Register("u1", c2)
	assert.Equal(t, []string{"online:u1"}, presence.recorded())

	reg.Join("u1", "r1")
	reg.Join("u1", "r2")

	reg.Unregister("u1", c1)
	assert.Equal(t, []string{"online:u1"}, presence.recorded(), "offline must not fire while a handle remains")
	assert.Len(t, reg.Resolve("r1"), 1)

	reg.Unregister("u1", c2)
	assert.Equal(t, []string{"online:u1", "offline:u1"}, presence.recorded())

	// joined-sets are per-connection cache: gone once the user is gone
	assert.Empty(t, reg.Resolve("r1"))
	assert.Empty(t, reg.Resolve("r2"))
	assert.Empty(t, reg.Rooms("u1"))
}

func TestRegistry_PresenceHookReportsRooms(t *testing.T) {
	reg := NewRegistry(nil)

	var mu sync.Mutex
	var gotStatus string
	var gotRooms []string
	reg.SetPresenceHook(func(userID, status string, rooms []string) {
		mu.Lock()
		defer mu.Unlock()
		gotStatus = status
		gotRooms = rooms
	})

	c := newConn("u1", nil)
	reg.Register("u1", c)
	reg.Join("u1", "r1")
	reg.Join("u1", "r2")
	reg.Unregister("u1", c)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "offline", gotStatus)
	assert.ElementsMatch(t, []string{"r1", "r2"}, gotRooms)
}

func TestRegistry_Leave(t *testing.T) {
	reg := NewRegistry(nil)
	c := newConn("u1", nil)
	reg.Register("u1", c)
	reg.Join("u1", "r1")
	require.Len(t, reg.Resolve("r1"), 1)

	reg.Leave("u1", "r1")
	assert.Empty(t, reg.Resolve("r1"))
	assert.Empty(t, reg.Rooms("u1"))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry(&fakePresence{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("u%d", i%10)
			c := newConn(userID, nil)
			reg.Register(userID, c)
			reg.Join(userID, "r1")
			reg.Resolve("r1")
			reg.HandlesFor(userID)
			reg.Rooms(userID)
			reg.Unregister(userID, c)
		}(i)
	}
	wg.Wait()
}
