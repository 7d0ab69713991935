// Package umsg implements a publish/subscribe message hub. Messages carry a
// propid-style identifier plus an optional scalar or byte-slice payload
// (byte payloads carry no reference count); subscribers register id/mask filters and receive matching
// messages either through a bounded inbox queue or a synchronous callback.
package umsg

import (
	"context"
	"sync"
	"time"

	"blainsmith.com/go/seahash"

	"github.com/kevinpt/cstone-sub000/propid"
)

// Special timeout values, mirroring NO_TIMEOUT/INFINITE_TIMEOUT. Send and
// Recv take no timeout argument (Recv waits on a context, Query on a
// time.Duration), and nothing in this package reads these constants.
const (
	NoTimeout       = 0
	InfiniteTimeout = -1
)

// filtersPerChunk mirrors UMSG_FILTERS_IN_CHUNK: filters are stored in
// fixed-size chunks linked in a list rather than a single growable slice,
// so a target with a handful of filters needs no further allocation once
// its first chunk is full only past four entries.
const filtersPerChunk = 4

// Msg is one published event: an identifier, an optional source, and either
// a small scalar payload or a byte payload. Data is a plain slice with no
// reference count; every target it is delivered to shares its backing array.
type Msg struct {
	ID      uint32
	Source  uint32
	Payload uint32 // valid only if HasPayload
	Data    []byte // optional larger payload, e.g. for queued delivery

	HasPayload bool
}

type filterChunk struct {
	next    *filterChunk
	filters [filtersPerChunk]uint32
	count   int
}

// Handler is invoked synchronously for callback-mode targets.
type Handler func(msg Msg)

// Target is a subscriber: either queue-mode (messages land in its inbox for
// Recv) or callback-mode (Handler runs inline from the publisher's
// goroutine, matching the teacher's synchronous msg_handler_cb contract).
type Target struct {
	mu              sync.Mutex
	filters         *filterChunk
	handler         Handler
	inbox           chan Msg
	droppedMessages uint64

	dedupe          bool
	lastPayloadID   uint32
	lastPayloadHash uint64
	haveLastHash    bool
}

// NewQueuedTarget creates a queue-mode target with a bounded inbox of the
// given depth.
func NewQueuedTarget(depth int) *Target {
	return &Target{inbox: make(chan Msg, depth)}
}

// NewCallbackTarget creates a callback-mode target invoked synchronously
// from Hub.Send for every matching message.
func NewCallbackTarget(handler Handler) *Target {
	return &Target{handler: handler}
}

// AddFilter registers a (possibly masked) identifier this target accepts.
func (t *Target) AddFilter(filter uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()

	chunk := t.filters
	if chunk == nil || chunk.count == filtersPerChunk {
		t.filters = &filterChunk{next: chunk}
		chunk = t.filters
	}
	chunk.filters[chunk.count] = filter
	chunk.count++
}

// RemoveFilter unregisters a previously added filter. Returns true if found.
func (t *Target) RemoveFilter(filter uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for chunk := t.filters; chunk != nil; chunk = chunk.next {
		for i := 0; i < chunk.count; i++ {
			if chunk.filters[i] == filter {
				chunk.filters[i] = chunk.filters[chunk.count-1]
				chunk.count--
				return true
			}
		}
	}
	return false
}

func (t *Target) accepts(id uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	for chunk := t.filters; chunk != nil; chunk = chunk.next {
		for i := 0; i < chunk.count; i++ {
			if propid.Match(id, chunk.filters[i]) {
				return true
			}
		}
	}
	return false
}

// Recv blocks (honoring ctx cancellation) for the next message delivered to
// a queue-mode target.
func (t *Target) Recv(ctx context.Context) (Msg, error) {
	select {
	case m := <-t.inbox:
		return m, nil
	case <-ctx.Done():
		return Msg{}, ctx.Err()
	}
}

// DroppedMessages returns the count of messages dropped because the inbox
// was full when delivery was attempted.
func (t *Target) DroppedMessages() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.droppedMessages
}

// SetDedupe enables or disables duplicate-payload suppression: a message
// with a Data payload that hashes the same as the immediately preceding
// delivery to this target, with the same ID, is silently dropped instead of
// delivered again. Intended for debug builds subscribed to a noisy,
// at-least-once source.
func (t *Target) SetDedupe(enable bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dedupe = enable
	t.haveLastHash = false
}

// isDuplicate reports whether m repeats the immediately preceding delivery,
// and records m's hash as the new "last seen" for the next call either way.
func (t *Target) isDuplicate(m Msg) bool {
	if !t.dedupe || len(m.Data) == 0 {
		return false
	}

	h := seahash.Sum64(m.Data)
	dup := t.haveLastHash && m.ID == t.lastPayloadID && h == t.lastPayloadHash

	t.lastPayloadID = m.ID
	t.lastPayloadHash = h
	t.haveLastHash = true
	return dup
}

// deliver attempts to deliver m to t, returning false if a queue-mode
// target's inbox was full and the message was dropped.
func (t *Target) deliver(m Msg) bool {
	t.mu.Lock()
	if t.isDuplicate(m) {
		t.mu.Unlock()
		return true
	}
	t.mu.Unlock()

	if t.handler != nil {
		t.handler(m)
		return true
	}

	select {
	case t.inbox <- m:
		return true
	default:
		t.mu.Lock()
		t.droppedMessages++
		t.mu.Unlock()
		return false
	}
}

// Hub fans a single publish stream out to every subscribed Target whose
// filters match a message's ID.
type Hub struct {
	mu          sync.RWMutex
	subscribers []*Target
}

// NewHub creates an empty message hub.
func NewHub() *Hub {
	return &Hub{}
}

// Subscribe registers tgt to receive messages matching its filters.
func (h *Hub) Subscribe(tgt *Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, tgt)
}

// Unsubscribe removes a previously subscribed target.
func (h *Hub) Unsubscribe(tgt *Target) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, s := range h.subscribers {
		if s == tgt {
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			return
		}
	}
}

// Send dispatches msg to every subscriber whose filter chain matches its
// ID. A queue-mode target whose inbox is full drops the message and, once
// every subscriber has been tried, Send publishes one
// propid.PErrorSysMessageTimeout event reporting the drop (never recursing
// on that event itself, so a full inbox on its own subscribers can't loop).
func (h *Hub) Send(msg Msg) error {
	h.mu.RLock()
	subs := append([]*Target(nil), h.subscribers...)
	h.mu.RUnlock()

	dropped := false
	for _, tgt := range subs {
		if tgt.accepts(msg.ID) {
			if !tgt.deliver(msg) {
				dropped = true
			}
		}
	}

	if dropped && msg.ID != propid.PErrorSysMessageTimeout {
		return h.Send(Msg{ID: propid.PErrorSysMessageTimeout, HasPayload: false})
	}
	return nil
}

// Notify is the propdb.Notifier adapter: publish a scalar-payload event.
func (h *Hub) Notify(id uint32, source uint32, payload uint32, hasPayload bool) error {
	return h.Send(Msg{ID: id, Source: source, Payload: payload, HasPayload: hasPayload})
}

// Query publishes msg and blocks up to timeout for exactly one reply
// delivered to a dedicated, unsubscribed-on-return queued target — a
// request/response convenience built from Send+Recv.
func (h *Hub) Query(ctx context.Context, msg Msg, timeout time.Duration, replyFilter uint32) (Msg, error) {
	reply := NewQueuedTarget(1)
	reply.AddFilter(replyFilter)
	h.Subscribe(reply)
	defer h.Unsubscribe(reply)

	if err := h.Send(msg); err != nil {
		return Msg{}, err
	}

	qctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		qctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return reply.Recv(qctx)
}
