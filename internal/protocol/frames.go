// Package protocol defines the wire contracts shared by the server
// gateway and the client socket manager. Client→server and server→client
// frames are two disjoint tagged unions: a frame type that exists on one
// side does not exist on the other, so a send can never be confused with
// a receive.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClientFrameType tags frames travelling client → server.
type ClientFrameType string

const (
	FrameAuthenticate ClientFrameType = "authenticate"
	FrameJoinRoom     ClientFrameType = "join_room"
	FrameLeaveRoom    ClientFrameType = "leave_room"
	FrameTyping       ClientFrameType = "typing"
)

// ClientFrame is the client→server union. Exactly one payload pointer is
// set, matching Type. Message sending is deliberately absent: messages
// travel over the reliable HTTP channel, never over the live socket.
type ClientFrame struct {
	Type         ClientFrameType      `json:"type"`
	Authenticate *AuthenticatePayload `json:"authenticate,omitempty"`
	JoinRoom     *RoomPayload         `json:"join_room,omitempty"`
	LeaveRoom    *RoomPayload         `json:"leave_room,omitempty"`
	Typing       *TypingPayload       `json:"typing,omitempty"`
}

type AuthenticatePayload struct {
	Token string `json:"token"`
}

type RoomPayload struct {
	RoomID string `json:"room_id"`
}

type TypingPayload struct {
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

// Validate enforces the union shape after decoding.
func (f *ClientFrame) Validate() error {
	switch f.Type {
	case FrameAuthenticate:
		if f.Authenticate == nil || f.Authenticate.Token == "" {
			return fmt.Errorf("authenticate frame missing token")
		}
	case FrameJoinRoom:
		if f.JoinRoom == nil || f.JoinRoom.RoomID == "" {
			return fmt.Errorf("join_room frame missing room id")
		}
	case FrameLeaveRoom:
		if f.LeaveRoom == nil || f.LeaveRoom.RoomID == "" {
			return fmt.Errorf("leave_room frame missing room id")
		}
	case FrameTyping:
		if f.Typing == nil || f.Typing.RoomID == "" {
			return fmt.Errorf("typing frame missing room id")
		}
	default:
		return fmt.Errorf("unknown client frame type %q", f.Type)
	}
	return nil
}

// DecodeClientFrame parses and validates one client frame.
func DecodeClientFrame(data []byte) (*ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed client frame: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ServerFrameType tags frames travelling server → client.
type ServerFrameType string

const (
	FrameConnected      ServerFrameType = "connected"
	FrameNewMessage     ServerFrameType = "new_message"
	FrameUserTyping     ServerFrameType = "user_typing"
	FramePresenceUpdate ServerFrameType = "presence_update"
	FrameReadReceipt    ServerFrameType = "read_receipt"
)

// ServerFrame is the server→client union.
type ServerFrame struct {
	Type           ServerFrameType        `json:"type"`
	Connected      *ConnectedPayload      `json:"connected,omitempty"`
	NewMessage     *NewMessagePayload     `json:"new_message,omitempty"`
	UserTyping     *UserTypingPayload     `json:"user_typing,omitempty"`
	PresenceUpdate *PresenceUpdatePayload `json:"presence_update,omitempty"`
	ReadReceipt    *ReadReceiptPayload    `json:"read_receipt,omitempty"`
}

type ConnectedPayload struct {
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type NewMessagePayload struct {
	Message *Message `json:"message"`
}

type UserTypingPayload struct {
	UserID   string `json:"user_id"`
	RoomID   string `json:"room_id"`
	IsTyping bool   `json:"is_typing"`
}

type PresenceUpdatePayload struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

type ReadReceiptPayload struct {
	MessageID string `json:"message_id"`
	RoomID    string `json:"room_id"`
	ReaderID  string `json:"reader_id"`
}

// Validate enforces the union shape after decoding.
func (f *ServerFrame) Validate() error {
	switch f.Type {
	case FrameConnected:
		if f.Connected == nil {
			return fmt.Errorf("connected frame missing payload")
		}
	case FrameNewMessage:
		if f.NewMessage == nil || f.NewMessage.Message == nil {
			return fmt.Errorf("new_message frame missing message")
		}
	case FrameUserTyping:
		if f.UserTyping == nil {
			return fmt.Errorf("user_typing frame missing payload")
		}
	case FramePresenceUpdate:
		if f.PresenceUpdate == nil {
			return fmt.Errorf("presence_update frame missing payload")
		}
	case FrameReadReceipt:
		if f.ReadReceipt == nil {
			return fmt.Errorf("read_receipt frame missing payload")
		}
	default:
		return fmt.Errorf("unknown server frame type %q", f.Type)
	}
	return nil
}

// DecodeServerFrame parses and validates one server frame.
func DecodeServerFrame(data []byte) (*ServerFrame, error) {
	var f ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("malformed server frame: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Frame constructors used by the gateway and tests.

func NewMessageFrame(msg *Message) ServerFrame {
	return ServerFrame{Type: FrameNewMessage, NewMessage: &NewMessagePayload{Message: msg}}
}

func ConnectedFrame(userID string) ServerFrame {
	return ServerFrame{Type: FrameConnected, Connected: &ConnectedPayload{UserID: userID, Timestamp: time.Now().UTC()}}
}

func UserTypingFrame(userID, roomID string, isTyping bool) ServerFrame {
	return ServerFrame{Type: FrameUserTyping, UserTyping: &UserTypingPayload{UserID: userID, RoomID: roomID, IsTyping: isTyping}}
}

func PresenceFrame(userID, status string) ServerFrame {
	return ServerFrame{Type: FramePresenceUpdate, PresenceUpdate: &PresenceUpdatePayload{UserID: userID, Status: status}}
}

func ReadReceiptFrame(messageID, roomID, readerID string) ServerFrame {
	return ServerFrame{Type: FrameReadReceipt, ReadReceipt: &ReadReceiptPayload{MessageID: messageID, RoomID: roomID, ReaderID: readerID}}
}

func AuthenticateFrame(token string) ClientFrame {
	return ClientFrame{Type: FrameAuthenticate, Authenticate: &AuthenticatePayload{Token: token}}
}

func JoinRoomFrame(roomID string) ClientFrame {
	return ClientFrame{Type: FrameJoinRoom, JoinRoom: &RoomPayload{RoomID: roomID}}
}

func LeaveRoomFrame(roomID string) ClientFrame {
	return ClientFrame{Type: FrameLeaveRoom, LeaveRoom: &RoomPayload{RoomID: roomID}}
}

func TypingFrame(roomID string, isTyping bool) ClientFrame {
	return ClientFrame{Type: FrameTyping, Typing: &TypingPayload{RoomID: roomID, IsTyping: isTyping}}
}
