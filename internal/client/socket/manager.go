// Package socket maintains the client's live notification socket. The
// socket only carries server pushes and lightweight signals; message
// submission stays on the HTTP channel, so a dropped socket never loses
// a message, only delays notifications.
package socket

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gorelay/internal/protocol"
)

// State is the connection lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	// StateError means the automatic reconnect budget ran out; only an
	// explicit Retry leaves this state.
	StateError State = "error"
)

var errNotConnected = errors.New("socket not connected")

const writeTimeout = 5 * time.Second

// Options tunes the reconnect policy. Zero values fall back to defaults.
type Options struct {
	HandshakeTimeout time.Duration
	MaxAttempts      int
	BaseDelay        time.Duration
	MaxDelay         time.Duration
	// OnState observes lifecycle transitions. Called with the manager's
	// lock held, so it must not call back into the manager.
	OnState func(State)
}

func (o Options) withDefaults() Options {
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 10
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = time.Second
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = 32 * time.Second
	}
	return o
}

// Manager owns at most one live socket at a time. It authenticates on
// connect, rejoins every open room after a reconnect, and backs off
// between attempts the same way the outbox does.
type Manager struct {
	url     string
	token   string
	opts    Options
	dialer  *websocket.Dialer
	onFrame func(*protocol.ServerFrame)

	mu       sync.Mutex
	state    State
	conn     *websocket.Conn
	rooms    map[string]struct{}
	gen      int // bumped on every connect/disconnect to invalidate stale read loops
	closed   bool
	attempts int

	writeMu sync.Mutex

	sleep func(ctx context.Context, d time.Duration) error
}

func NewManager(url, token string, opts Options, onFrame func(*protocol.ServerFrame)) *Manager {
	if onFrame == nil {
		onFrame = func(*protocol.ServerFrame) {}
	}
	opts = opts.withDefaults()
	return &Manager{
		url:     url,
		token:   token,
		opts:    opts,
		onFrame: onFrame,
		dialer: &websocket.Dialer{
			HandshakeTimeout: opts.HandshakeTimeout,
		},
		state: StateDisconnected,
		rooms: make(map[string]struct{}),
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	if m.opts.OnState != nil {
		m.opts.OnState(s)
	}
}

// Connect establishes the socket and starts receiving frames. A failure
// here is returned to the caller; automatic reconnection only covers
// drops of an already established connection.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateConnected || m.state == StateConnecting || m.state == StateReconnecting {
		m.mu.Unlock()
		return fmt.Errorf("connect not valid in state %s", m.state)
	}
	m.closed = false
	m.attempts = 0
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	if err := m.establish(ctx); err != nil {
		m.mu.Lock()
		m.setStateLocked(StateDisconnected)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Retry leaves the error state and tries to connect again with a fresh
// attempt budget.
func (m *Manager) Retry(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateError {
		m.mu.Unlock()
		return fmt.Errorf("retry not valid in state %s", m.state)
	}
	m.closed = false
	m.attempts = 0
	m.setStateLocked(StateConnecting)
	m.mu.Unlock()

	if err := m.establish(ctx); err != nil {
		m.mu.Lock()
		m.setStateLocked(StateError)
		m.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect closes the socket on purpose. No reconnection follows.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.closed = true
	m.gen++
	conn := m.conn
	m.conn = nil
	m.setStateLocked(StateDisconnected)
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

// Join marks the room as open and announces it to the server. The room
// is rejoined automatically after every reconnect until Leave is called.
func (m *Manager) Join(roomID string) error {
	m.mu.Lock()
	m.rooms[roomID] = struct{}{}
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected {
		return nil
	}
	return m.writeFrame(protocol.JoinRoomFrame(roomID))
}

// Leave closes the room subscription.
func (m *Manager) Leave(roomID string) error {
	m.mu.Lock()
	delete(m.rooms, roomID)
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected {
		return nil
	}
	return m.writeFrame(protocol.LeaveRoomFrame(roomID))
}

// SendTyping signals a typing indicator. Best effort, drops with the socket.
func (m *Manager) SendTyping(roomID string, isTyping bool) error {
	return m.writeFrame(protocol.TypingFrame(roomID, isTyping))
}

func (m *Manager) writeFrame(f protocol.ClientFrame) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil {
		return errNotConnected
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(f)
}

// establish dials, authenticates, waits for the connected frame, then
// rejoins open rooms before any other traffic flows.
func (m *Manager) establish(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, m.opts.HandshakeTimeout)
	defer cancel()

	conn, _, err := m.dialer.DialContext(dialCtx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", m.url, err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(protocol.AuthenticateFrame(m.token)); err != nil {
		conn.Close()
		return fmt.Errorf("sending authenticate: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(m.opts.HandshakeTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return fmt.Errorf("waiting for connected frame: %w", err)
	}
	frame, err := protocol.DecodeServerFrame(data)
	if err != nil {
		conn.Close()
		return err
	}
	if frame.Type != protocol.FrameConnected {
		conn.Close()
		return fmt.Errorf("expected connected frame, got %q", frame.Type)
	}
	conn.SetReadDeadline(time.Time{})

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return errors.New("disconnected during handshake")
	}
	if m.conn != nil {
		m.conn.Close()
	}
	m.conn = conn
	m.gen++
	gen := m.gen
	m.attempts = 0
	rooms := make([]string, 0, len(m.rooms))
	for roomID := range m.rooms {
		rooms = append(rooms, roomID)
	}
	m.setStateLocked(StateConnected)
	m.mu.Unlock()

	sort.Strings(rooms)
	for _, roomID := range rooms {
		if err := m.writeFrame(protocol.JoinRoomFrame(roomID)); err != nil {
			log.Printf("socket: rejoining room %s failed: %v", roomID, err)
		}
	}

	m.onFrame(frame)
	go m.readLoop(conn, gen)
	return nil
}

func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleDrop(conn, gen, err)
			return
		}
		frame, err := protocol.DecodeServerFrame(data)
		if err != nil {
			log.Printf("socket: dropping undecodable frame: %v", err)
			continue
		}
		m.onFrame(frame)
	}
}

func (m *Manager) handleDrop(conn *websocket.Conn, gen int, cause error) {
	conn.Close()

	m.mu.Lock()
	if m.gen != gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.setStateLocked(StateReconnecting)
	m.mu.Unlock()

	log.Printf("socket: connection dropped: %v", cause)
	go m.reconnectLoop()
}

// reconnectLoop retries with doubled delays until the socket comes back
// or the attempt budget runs out.
func (m *Manager) reconnectLoop() {
	ctx := context.Background()
	for {
		m.mu.Lock()
		if m.closed {
			m.setStateLocked(StateDisconnected)
			m.mu.Unlock()
			return
		}
		m.attempts++
		attempt := m.attempts
		if attempt > m.opts.MaxAttempts {
			m.setStateLocked(StateError)
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()

		if err := m.sleep(ctx, m.backoffDelay(attempt)); err != nil {
			return
		}
		if err := m.establish(ctx); err != nil {
			log.Printf("socket: reconnect attempt %d failed: %v", attempt, err)
			continue
		}
		return
	}
}

func (m *Manager) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := m.opts.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= m.opts.MaxDelay {
			return m.opts.MaxDelay
		}
	}
	if delay > m.opts.MaxDelay {
		return m.opts.MaxDelay
	}
	return delay
}
