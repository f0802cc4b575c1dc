// Package gateway owns the server side of the live socket: the websocket
// endpoint, the connection registry and the broadcast dispatcher. The
// live socket carries notifications only; message submission goes over
// the reliable HTTP channel.
package gateway

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"gorelay/internal/common"
	"gorelay/internal/protocol"
)

const handshakeTimeout = 10 * time.Second

// Gateway upgrades websocket connections, runs the authenticate
// handshake and pumps inbound client frames.
type Gateway struct {
	registry   *Registry
	dispatcher *Dispatcher
	sessions   common.SessionValidator
	directory  common.RoomDirectory
	upgrader   websocket.Upgrader
}

func NewGateway(registry *Registry, dispatcher *Dispatcher, sessions common.SessionValidator, directory common.RoomDirectory) *Gateway {
	g := &Gateway{
		registry:   registry,
		dispatcher: dispatcher,
		sessions:   sessions,
		directory:  directory,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	// When a user's last handle drops, tell the rooms they were in.
	registry.SetPresenceHook(func(userID, status string, rooms []string) {
		frame := protocol.PresenceFrame(userID, status)
		for _, roomID := range rooms {
			dispatcher.BroadcastFrame(roomID, frame, userID)
		}
	})

	return g
}

// ServeWS is the /ws endpoint. The first frame must be an authenticate
// frame within the handshake deadline; anything else closes the socket.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	userID, err := g.handshake(ws)
	if err != nil {
		log.Printf("handshake failed: %v", err)
		ws.Close()
		return
	}

	conn := newConn(userID, ws)
	g.registry.Register(userID, conn)
	go conn.writePump()

	if err := conn.Push(protocol.ConnectedFrame(userID)); err != nil {
		g.registry.Unregister(userID, conn)
		conn.Close()
		return
	}

	g.readLoop(conn)

	g.registry.Unregister(userID, conn)
	conn.Close()
}

func (g *Gateway) handshake(ws *websocket.Conn) (string, error) {
	ws.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer ws.SetReadDeadline(time.Time{})

	_, data, err := ws.ReadMessage()
	if err != nil {
		return "", err
	}

	frame, err := protocol.DecodeClientFrame(data)
	if err != nil {
		return "", err
	}
	if frame.Type != protocol.FrameAuthenticate {
		return "", common.ErrUnauthenticated
	}

	return g.sessions.Validate(frame.Authenticate.Token)
}

// handleJoin checks the membership ACL before caching the join. A join
// for a room the user doesn't belong to is logged and dropped; it is a
// registry-local concern, never surfaced to the peer as a send failure.
func (g *Gateway) handleJoin(c *Conn, roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	member, err := g.directory.IsMember(ctx, roomID, c.userID)
	if err != nil {
		log.Printf("membership lookup failed for %s in %s: %v", c.userID, roomID, err)
		return
	}
	if !member {
		log.Printf("rejected join: %s is not a member of %s", c.userID, roomID)
		return
	}

	g.registry.Join(c.userID, roomID)
	g.dispatcher.BroadcastFrame(roomID, protocol.PresenceFrame(c.userID, "online"), c.userID)
}

// readLoop is the per-connection goroutine body: it reads inbound frames
// until the socket dies. Shared state is only touched through the
// registry; it never reaches into another connection's data.
func (g *Gateway) readLoop(c *Conn) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		frame, err := protocol.DecodeClientFrame(data)
		if err != nil {
			log.Printf("ignoring bad frame from %s: %v", c.userID, err)
			continue
		}

		switch frame.Type {
		case protocol.FrameAuthenticate:
			// already authenticated; a re-auth after reconnect is harmless

		case protocol.FrameJoinRoom:
			g.handleJoin(c, frame.JoinRoom.RoomID)

		case protocol.FrameLeaveRoom:
			g.registry.Leave(c.userID, frame.LeaveRoom.RoomID)

		case protocol.FrameTyping:
			g.dispatcher.BroadcastFrame(
				frame.Typing.RoomID,
				protocol.UserTypingFrame(c.userID, frame.Typing.RoomID, frame.Typing.IsTyping),
				c.userID,
			)
		}
	}
}
