package socket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorelay/internal/protocol"
)

// wsServer fakes the relay gateway: it runs the authenticate handshake
// and records every frame each connection sends afterwards.
type wsServer struct {
	t        *testing.T
	httpSrv  *httptest.Server
	upgrader websocket.Upgrader
	accepted chan *serverConn
	refuse   atomic.Bool
}

type serverConn struct {
	ws     *websocket.Conn
	frames chan protocol.ClientFrame
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	s := &wsServer{
		t:        t,
		accepted: make(chan *serverConn, 8),
	}
	s.httpSrv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.httpSrv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.httpSrv.URL, "http")
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	if s.refuse.Load() {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	var auth protocol.ClientFrame
	if err := ws.ReadJSON(&auth); err != nil || auth.Type != protocol.FrameAuthenticate {
		ws.Close()
		return
	}
	if err := ws.WriteJSON(protocol.ConnectedFrame("u1")); err != nil {
		ws.Close()
		return
	}

	sc := &serverConn{ws: ws, frames: make(chan protocol.ClientFrame, 16)}
	s.accepted <- sc
	go func() {
		defer ws.Close()
		for {
			var f protocol.ClientFrame
			if err := ws.ReadJSON(&f); err != nil {
				close(sc.frames)
				return
			}
			sc.frames <- f
		}
	}()
}

func (sc *serverConn) nextFrame(t *testing.T) protocol.ClientFrame {
	t.Helper()
	select {
	case f, ok := <-sc.frames:
		require.True(t, ok, "connection closed before the expected frame")
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return protocol.ClientFrame{}
	}
}

func (s *wsServer) nextConn(t *testing.T) *serverConn {
	t.Helper()
	select {
	case sc := <-s.accepted:
		return sc
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func waitState(t *testing.T, m *Manager, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("manager never reached state %s, stuck in %s", want, m.State())
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestManager_ConnectRunsHandshake(t *testing.T) {
	srv := newWSServer(t)

	var mu sync.Mutex
	var received []*protocol.ServerFrame
	m := NewManager(srv.url(), "tok-1", Options{}, func(f *protocol.ServerFrame) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, f)
	})

	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()
	srv.nextConn(t)

	assert.Equal(t, StateConnected, m.State())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, protocol.FrameConnected, received[0].Type)
	assert.Equal(t, "u1", received[0].Connected.UserID)
}

func TestManager_ConnectFailureIsReturned(t *testing.T) {
	srv := newWSServer(t)
	srv.refuse.Store(true)

	m := NewManager(srv.url(), "tok-1", Options{}, nil)
	err := m.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_RejoinsOpenRoomsAfterDrop(t *testing.T) {
	srv := newWSServer(t)

	m := NewManager(srv.url(), "tok-1", Options{}, nil)
	m.sleep = noSleep

	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()
	first := srv.nextConn(t)

	require.NoError(t, m.Join("beta"))
	require.NoError(t, m.Join("alpha"))
	assert.Equal(t, protocol.FrameJoinRoom, first.nextFrame(t).Type)
	assert.Equal(t, protocol.FrameJoinRoom, first.nextFrame(t).Type)

	// sending a typing signal later proves rejoins came first
	first.ws.Close()

	second := srv.nextConn(t)
	waitState(t, m, StateConnected)
	require.NoError(t, m.SendTyping("alpha", true))

	f1 := second.nextFrame(t)
	require.Equal(t, protocol.FrameJoinRoom, f1.Type)
	assert.Equal(t, "alpha", f1.JoinRoom.RoomID)
	f2 := second.nextFrame(t)
	require.Equal(t, protocol.FrameJoinRoom, f2.Type)
	assert.Equal(t, "beta", f2.JoinRoom.RoomID)
	f3 := second.nextFrame(t)
	assert.Equal(t, protocol.FrameTyping, f3.Type)
}

func TestManager_ReconnectBudgetExhaustedEndsInError(t *testing.T) {
	srv := newWSServer(t)

	states := make(chan State, 32)
	m := NewManager(srv.url(), "tok-1", Options{
		MaxAttempts: 3,
		OnState:     func(s State) { states <- s },
	}, nil)
	m.sleep = noSleep

	require.NoError(t, m.Connect(context.Background()))
	first := srv.nextConn(t)

	srv.refuse.Store(true)
	first.ws.Close()

	waitState(t, m, StateError)

	var seen []State
	for len(states) > 0 {
		seen = append(seen, <-states)
	}
	assert.Contains(t, seen, StateReconnecting)
	assert.Equal(t, StateError, seen[len(seen)-1])
}

func TestManager_RetryRecoversFromError(t *testing.T) {
	srv := newWSServer(t)

	m := NewManager(srv.url(), "tok-1", Options{MaxAttempts: 1}, nil)
	m.sleep = noSleep

	require.NoError(t, m.Connect(context.Background()))
	first := srv.nextConn(t)

	srv.refuse.Store(true)
	first.ws.Close()
	waitState(t, m, StateError)

	// retry is rejected while still down, then succeeds once the
	// server is back
	require.Error(t, m.Retry(context.Background()))
	srv.refuse.Store(false)
	require.NoError(t, m.Retry(context.Background()))
	defer m.Disconnect()
	srv.nextConn(t)
	assert.Equal(t, StateConnected, m.State())
}

func TestManager_DisconnectSuppressesReconnect(t *testing.T) {
	srv := newWSServer(t)

	m := NewManager(srv.url(), "tok-1", Options{}, nil)
	m.sleep = noSleep

	require.NoError(t, m.Connect(context.Background()))
	srv.nextConn(t)

	m.Disconnect()
	assert.Equal(t, StateDisconnected, m.State())

	// no new connection shows up
	select {
	case <-srv.accepted:
		t.Fatal("manager reconnected after an intentional disconnect")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManager_BackoffDelaySequence(t *testing.T) {
	m := NewManager("ws://unused", "tok-1", Options{BaseDelay: time.Second, MaxDelay: 32 * time.Second}, nil)

	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 32 * time.Second, 32 * time.Second,
	}
	for i, w := range want {
		assert.Equal(t, w, m.backoffDelay(i+1), "attempt=%d", i+1)
	}
}
