// Package status tracks per-message delivery state on the client. The
// tracker merges two feeds: outbox events for the sending side and
// server frames for the receiving side, and only ever moves a message
// forward through the lifecycle.
package status

import (
	"sync"

	"gorelay/internal/client/outbox"
	"gorelay/internal/protocol"
)

// Status is a message's delivery state as seen by the sender.
type Status string

const (
	// StatusSending means the message sits in the outbox awaiting
	// confirmation.
	StatusSending Status = "sending"
	// StatusSent means the server acknowledged the message.
	StatusSent Status = "sent"
	// StatusDelivered means at least one recipient's device received it.
	StatusDelivered Status = "delivered"
	// StatusRead means at least one recipient read it.
	StatusRead Status = "read"
	// StatusFailed means the outbox abandoned the message.
	StatusFailed Status = "failed"
)

// rank orders the forward path. Failed is handled separately because it
// is only reachable from sending.
var rank = map[Status]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

type entry struct {
	status   Status
	serverID uint64
}

// Tracker keeps delivery state for this session's outgoing messages,
// keyed by the client-generated message id.
type Tracker struct {
	selfID   string
	onChange func(messageID string, s Status)

	mu         sync.RWMutex
	byClientID map[string]*entry
	byServerID map[uint64]string
}

// NewTracker creates a tracker for the given user. onChange fires once
// per effective transition and may be nil.
func NewTracker(selfID string, onChange func(messageID string, s Status)) *Tracker {
	if onChange == nil {
		onChange = func(string, Status) {}
	}
	return &Tracker{
		selfID:     selfID,
		onChange:   onChange,
		byClientID: make(map[string]*entry),
		byServerID: make(map[uint64]string),
	}
}

// Track registers a freshly enqueued message as sending.
func (t *Tracker) Track(messageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byClientID[messageID]; ok {
		return
	}
	t.byClientID[messageID] = &entry{status: StatusSending}
	t.onChange(messageID, StatusSending)
}

// Status returns the current state of a tracked message.
func (t *Tracker) Status(messageID string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.byClientID[messageID]
	if !ok {
		return "", false
	}
	return e.status, true
}

// Snapshot returns a copy of every tracked message's state.
func (t *Tracker) Snapshot() map[string]Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]Status, len(t.byClientID))
	for id, e := range t.byClientID {
		out[id] = e.status
	}
	return out
}

// HandleOutboxEvent advances state from the sending side: a server ack
// moves the message to sent and records the id mapping, an abandonment
// fails it. Retries leave the state alone.
func (t *Tracker) HandleOutboxEvent(ev outbox.Event) {
	switch ev.Type {
	case outbox.EventSent:
		t.mu.Lock()
		defer t.mu.Unlock()
		e := t.ensureLocked(ev.EntryID)
		e.serverID = ev.ServerID
		t.byServerID[ev.ServerID] = ev.EntryID
		t.advanceLocked(ev.EntryID, e, StatusSent)
	case outbox.EventAbandoned:
		t.mu.Lock()
		defer t.mu.Unlock()
		e := t.ensureLocked(ev.EntryID)
		// an acknowledged message can never fail afterwards
		if e.status == StatusSending {
			e.status = StatusFailed
			t.onChange(ev.EntryID, StatusFailed)
		}
	}
}

// HandleServerFrame advances state from the receiving side. Seeing our
// own message broadcast back means a recipient device has it; a read
// receipt from anyone moves it to read. First receipt wins, repeats are
// no-ops.
func (t *Tracker) HandleServerFrame(f *protocol.ServerFrame) {
	switch f.Type {
	case protocol.FrameNewMessage:
		msg := f.NewMessage.Message
		if msg == nil || msg.SenderID != t.selfID {
			return
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		e, ok := t.byClientID[msg.ID]
		if !ok {
			return
		}
		if msg.ServerID != 0 && e.serverID == 0 {
			e.serverID = msg.ServerID
			t.byServerID[msg.ServerID] = msg.ID
		}
		t.advanceLocked(msg.ID, e, StatusDelivered)
	case protocol.FrameReadReceipt:
		t.mu.Lock()
		defer t.mu.Unlock()
		id := f.ReadReceipt.MessageID
		e, ok := t.byClientID[id]
		if !ok {
			return
		}
		t.advanceLocked(id, e, StatusRead)
	}
}

func (t *Tracker) ensureLocked(messageID string) *entry {
	e, ok := t.byClientID[messageID]
	if !ok {
		e = &entry{status: StatusSending}
		t.byClientID[messageID] = e
	}
	return e
}

// advanceLocked applies a forward-only transition.
func (t *Tracker) advanceLocked(messageID string, e *entry, to Status) {
	if e.status == StatusFailed {
		return
	}
	if rank[to] <= rank[e.status] {
		return
	}
	e.status = to
	t.onChange(messageID, to)
}
