package outbox

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"gorelay/internal/common"
	"gorelay/internal/protocol"
)

// Sender is the single send abstraction the processor drains through. The
// implementation must be the reliable request/response channel: a 2xx
// answer with a server id is the only proof of acceptance. A live-socket
// send is not an acceptable implementation because its failure mode is
// indistinguishable from "never tried".
type Sender interface {
	Send(ctx context.Context, msg *protocol.Message) (serverID uint64, err error)
}

// EventType tags processor notifications consumed by the status tracker.
type EventType string

const (
	EventSent      EventType = "sent"
	EventRetrying  EventType = "retrying"
	EventAbandoned EventType = "abandoned"
)

type Event struct {
	Type     EventType
	EntryID  string
	ServerID uint64
	Attempts int
	Err      error
}

// Options tunes the retry policy. Zero values fall back to defaults.
type Options struct {
	Interval       time.Duration // pass interval
	BaseDelay      time.Duration // first retry delay
	MaxDelay       time.Duration // backoff cap
	AttemptTimeout time.Duration // per-send timeout
	MaxRetries     int           // attempts beyond which the entry is abandoned
	Now            func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Interval:       5 * time.Second,
		BaseDelay:      1 * time.Second,
		MaxDelay:       32 * time.Second,
		AttemptTimeout: 10 * time.Second,
		MaxRetries:     5,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Interval <= 0 {
		o.Interval = d.Interval
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = d.BaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = d.MaxDelay
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = d.AttemptTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = d.MaxRetries
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Processor is the single cooperative loop draining the outbox. Passes
// never overlap: a guard flag skips a tick while the previous pass is
// still running.
type Processor struct {
	store   Store
	sender  Sender
	opts    Options
	onEvent func(Event)
	busy    atomic.Bool
	now     func() time.Time
}

func NewProcessor(store Store, sender Sender, opts Options, onEvent func(Event)) *Processor {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	opts = opts.withDefaults()
	return &Processor{
		store:   store,
		sender:  sender,
		opts:    opts,
		onEvent: onEvent,
		now:     opts.Now,
	}
}

// Run ticks until ctx is cancelled. An immediate first pass drains
// anything left over from a previous process run.
func (p *Processor) Run(ctx context.Context) {
	p.RunPass(ctx)

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunPass(ctx)
		}
	}
}

// RunPass executes one pass: every eligible entry gets one send attempt,
// sequentially, oldest first. Returns immediately if a pass is already in
// flight.
func (p *Processor) RunPass(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		return
	}
	defer p.busy.Store(false)

	entries, err := p.store.ListPending(ctx)
	if err != nil {
		log.Printf("outbox: listing pending entries failed: %v", err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !p.due(entry) {
			continue
		}
		p.attempt(ctx, entry)
	}
}

// due applies the exponential backoff schedule against the last attempt.
func (p *Processor) due(e *Entry) bool {
	if e.LastAttemptAt == nil {
		return true
	}
	return p.now().Sub(*e.LastAttemptAt) >= p.backoffDelay(e.RetryCount)
}

// backoffDelay returns the wait after the given number of completed
// attempts: base, 2*base, 4*base, ... capped at MaxDelay.
func (p *Processor) backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		return 0
	}
	delay := p.opts.BaseDelay
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= p.opts.MaxDelay {
			return p.opts.MaxDelay
		}
	}
	if delay > p.opts.MaxDelay {
		return p.opts.MaxDelay
	}
	return delay
}

func (p *Processor) attempt(ctx context.Context, e *Entry) {
	attemptNo := e.RetryCount + 1
	// Record the attempt before sending so a crash mid-send still counts
	// against maxRetries on the next startup.
	if err := p.store.MarkAttempt(ctx, e.ID, attemptNo, p.now()); err != nil {
		log.Printf("outbox: marking attempt for %s failed: %v", e.ID, err)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.opts.AttemptTimeout)
	serverID, err := p.sender.Send(sendCtx, e.Message())
	cancel()

	if err == nil {
		if err := p.store.MarkSent(ctx, e.ID, serverID); err != nil {
			log.Printf("outbox: marking %s sent failed: %v", e.ID, err)
			return
		}
		p.onEvent(Event{Type: EventSent, EntryID: e.ID, ServerID: serverID, Attempts: attemptNo})
		return
	}

	// Server rejections are terminal; transient failures retry under
	// backoff until the attempt budget runs out.
	if !common.Retryable(err) || attemptNo > p.opts.MaxRetries {
		if markErr := p.store.MarkAbandoned(ctx, e.ID); markErr != nil {
			log.Printf("outbox: marking %s abandoned failed: %v", e.ID, markErr)
			return
		}
		p.onEvent(Event{Type: EventAbandoned, EntryID: e.ID, Attempts: attemptNo, Err: err})
		return
	}

	if markErr := p.store.MarkFailed(ctx, e.ID); markErr != nil {
		log.Printf("outbox: marking %s failed errored: %v", e.ID, markErr)
		return
	}
	p.onEvent(Event{Type: EventRetrying, EntryID: e.ID, Attempts: attemptNo, Err: err})
}
