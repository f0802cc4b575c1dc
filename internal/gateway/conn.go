package gateway

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gorelay/internal/protocol"
)

const (
	sendBufferSize = 256
	writeTimeout   = 5 * time.Second
)

var errConnClosed = errors.New("connection closed")
var errSendBufferFull = errors.New("send buffer full")

// Conn is one live socket bound to exactly one authenticated user. A user
// may hold several at once (multi-device). Never persisted.
type Conn struct {
	userID string
	ws     *websocket.Conn
	send   chan protocol.ServerFrame
	done   chan struct{}
	once   sync.Once
}

func newConn(userID string, ws *websocket.Conn) *Conn {
	return &Conn{
		userID: userID,
		ws:     ws,
		send:   make(chan protocol.ServerFrame, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *Conn) UserID() string { return c.userID }

// Push queues a frame for delivery. It never blocks: a closed connection
// or a full buffer (slow peer) returns an error and the caller drops the
// handle instead of stalling the room.
func (c *Conn) Push(frame protocol.ServerFrame) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errSendBufferFull
	}
}

// Close shuts the socket down. Safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// writePump drains the send queue onto the socket, one goroutine per
// connection, with a short deadline per write so one dead peer cannot
// stall fan-out.
func (c *Conn) writePump() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(frame); err != nil {
				c.Close()
				return
			}
		}
	}
}
