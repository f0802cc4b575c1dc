package protocol

import (
	"errors"
	"sort"
	"time"

	"gorelay/internal/common"
)

// Content is the message payload union. Type selects the variant; the
// media fields are only meaningful for image/file/voice.
type Content struct {
	Type       common.ContentType `json:"type"`
	Text       string             `json:"text,omitempty"`
	MediaID    string             `json:"media_id,omitempty"`
	Filename   string             `json:"filename,omitempty"`
	DurationMs int                `json:"duration_ms,omitempty"` // voice only
}

// Validate checks the content union is internally consistent.
func (c Content) Validate() error {
	if !c.Type.IsValid() {
		return errors.New("unknown content type")
	}
	if c.Type == common.ContentTypeText && c.Text == "" {
		return errors.New("text content cannot be empty")
	}
	if c.Type.IsMedia() && c.MediaID == "" {
		return errors.New("media content requires a media id")
	}
	return nil
}

// Message is the wire representation of a chat message. ID is the
// client-generated UUID and the idempotency key; ServerID is assigned on
// first successful persist and is zero until then.
type Message struct {
	ID        string    `json:"id"`
	ServerID  uint64    `json:"server_id,omitempty"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"` // client clock
	ReplyTo   string    `json:"reply_to,omitempty"`
}

// Less defines room ordering: ServerID sequencing when both sides have
// one, otherwise ascending CreatedAt with the client id as tie-break.
func (m *Message) Less(other *Message) bool {
	if m.ServerID != 0 && other.ServerID != 0 {
		return m.ServerID < other.ServerID
	}
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID < other.ID
}

// SortMessages orders a slice in room order.
func SortMessages(msgs []*Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Less(msgs[j])
	})
}
