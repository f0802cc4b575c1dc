package outbox_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"gorelay/internal/client/outbox"
	"gorelay/internal/client/outbox/mocks"
	"gorelay/internal/common"
	"gorelay/internal/protocol"
)

func openOutbox(t *testing.T) *outbox.SQLiteStore {
	t.Helper()
	store, err := outbox.Open(filepath.Join(t.TempDir(), "outbox.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func queued(id string, createdAt time.Time) *protocol.Message {
	return &protocol.Message{
		ID:        id,
		RoomID:    "r1",
		SenderID:  "u1",
		Content:   protocol.Content{Type: common.ContentTypeText, Text: "hello " + id},
		CreatedAt: createdAt,
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []outbox.Event
}

func (r *eventRecorder) record(e outbox.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []outbox.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]outbox.Event(nil), r.events...)
}

// fakeClock lets tests drive the backoff schedule deterministically.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func TestProcessor_DrainsOldestFirst(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openOutbox(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := store.Enqueue(ctx, queued("m1", base))
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, queued("m2", base.Add(time.Second)))
	require.NoError(t, err)

	sender := mocks.NewMockSender(ctrl)
	first := sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(uint64(101), nil)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).After(first).Return(uint64(102), nil)

	rec := &eventRecorder{}
	p := outbox.NewProcessor(store, sender, outbox.Options{}, rec.record)
	p.RunPass(ctx)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "confirmed entries are deleted")

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, outbox.EventSent, events[0].Type)
	assert.Equal(t, "m1", events[0].EntryID)
	assert.Equal(t, uint64(101), events[0].ServerID)
	assert.Equal(t, "m2", events[1].EntryID)
}

func TestProcessor_TransientFailureBackoffUntilAbandoned(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openOutbox(t)
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	_, err := store.Enqueue(ctx, queued("m1", clock.now()))
	require.NoError(t, err)

	sender := mocks.NewMockSender(ctrl)
	// exactly maxRetries+1 attempts, then never again
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(uint64(0), common.NewTransientError(errors.New("connection reset"))).
		Times(6)

	rec := &eventRecorder{}
	p := outbox.NewProcessor(store, sender, outbox.Options{MaxRetries: 5, Now: clock.now}, rec.record)

	// Drive many passes; the clock jumps past any backoff delay each time,
	// so only the attempt budget stops the retries.
	for i := 0; i < 12; i++ {
		p.RunPass(ctx)
		clock.advance(32 * time.Second)
	}

	events := rec.all()
	require.Len(t, events, 6)
	for i := 0; i < 5; i++ {
		assert.Equal(t, outbox.EventRetrying, events[i].Type)
		assert.Equal(t, i+1, events[i].Attempts)
	}
	assert.Equal(t, outbox.EventAbandoned, events[5].Type)
	assert.Equal(t, 6, events[5].Attempts)

	abandoned, err := store.ListAbandoned(ctx)
	require.NoError(t, err)
	require.Len(t, abandoned, 1)
	assert.Equal(t, "m1", abandoned[0].ID)
}

func TestProcessor_EntryNotDueIsSkipped(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openOutbox(t)
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	_, err := store.Enqueue(ctx, queued("m1", clock.now()))
	require.NoError(t, err)

	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(uint64(0), common.NewTransientError(errors.New("timeout"))).
		Times(1)

	p := outbox.NewProcessor(store, sender, outbox.Options{BaseDelay: time.Second, Now: clock.now}, nil)

	p.RunPass(ctx) // attempt 1 fails
	p.RunPass(ctx) // 0s elapsed of the 1s backoff: skipped

	clock.advance(time.Second)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(uint64(7), nil).Times(1)
	p.RunPass(ctx) // due again, succeeds

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessor_ServerRejectionAbandonsImmediately(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openOutbox(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, queued("m1", time.Now().UTC()))
	require.NoError(t, err)

	sender := mocks.NewMockSender(ctrl)
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(uint64(0), common.NewRejectedError(403, errors.New("not a member of room"))).
		Times(1)

	rec := &eventRecorder{}
	p := outbox.NewProcessor(store, sender, outbox.Options{}, rec.record)
	p.RunPass(ctx)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.EventAbandoned, events[0].Type)
	assert.Equal(t, 1, events[0].Attempts, "a rejection burns no retry budget beyond the first attempt")

	abandoned, err := store.ListAbandoned(ctx)
	require.NoError(t, err)
	require.Len(t, abandoned, 1)
}

func TestProcessor_PassesNeverOverlap(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockStore(ctrl)
	started := make(chan struct{})
	release := make(chan struct{})

	// Exactly one ListPending: the second RunPass must bail out on the
	// guard flag while the first is still inside.
	store.EXPECT().
		ListPending(gomock.Any()).
		DoAndReturn(func(context.Context) ([]*outbox.Entry, error) {
			close(started)
			<-release
			return nil, nil
		}).
		Times(1)

	p := outbox.NewProcessor(store, mocks.NewMockSender(ctrl), outbox.Options{}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.RunPass(context.Background())
	}()

	<-started
	p.RunPass(context.Background()) // must return immediately
	close(release)
	wg.Wait()
}

func TestProcessor_OfflineThenRestoredScenario(t *testing.T) {
	// User sends while offline; the network comes back; the next pass
	// delivers and the entry leaves the outbox with the server id.
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := openOutbox(t)
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	_, err := store.Enqueue(ctx, queued("m1", clock.now()))
	require.NoError(t, err)

	sender := mocks.NewMockSender(ctrl)
	offline := sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(uint64(0), common.NewTransientError(errors.New("dial tcp: connection refused")))
	sender.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		After(offline).
		Return(uint64(501), nil)

	rec := &eventRecorder{}
	p := outbox.NewProcessor(store, sender, outbox.Options{Now: clock.now}, rec.record)

	p.RunPass(ctx)
	clock.advance(time.Second)
	p.RunPass(ctx)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, outbox.EventRetrying, events[0].Type)
	assert.Equal(t, outbox.EventSent, events[1].Type)
	assert.Equal(t, uint64(501), events[1].ServerID)

	pending, err := store.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
