// Package events fans live audio batches out to visualization subscribers.
// Publishing never blocks; a subscriber that falls behind loses events.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// TypeAudioUpdate is the message type of capture batches on the wire
const TypeAudioUpdate = "audio_update"

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 64

// Update carries one capture batch: the normalized input and the perturbed
// samples derived from it, index for index
type Update struct {
	Ori []float32 `json:"ori"`
	New []float32 `json:"new"`
}

// Message is the envelope sent to remote subscribers
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// NewAudioUpdate wraps an update for the wire
func NewAudioUpdate(u Update) Message {
	return Message{Type: TypeAudioUpdate, Payload: u}
}

// Subscription is one subscriber's view of the hub. C is never closed;
// Done is closed once the subscriber is removed.
type Subscription struct {
	ID string
	C  <-chan Update

	ch      chan Update
	done    chan struct{}
	dropped atomic.Uint64
}

// Done is closed when the subscription ends
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Next waits for the next update. It reports false once the subscription
// has ended.
func (s *Subscription) Next() (Update, bool) {
	select {
	case u := <-s.ch:
		return u, true
	case <-s.done:
		return Update{}, false
	}
}

// Dropped returns how many updates this subscriber missed
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Hub is a non-blocking fan-out of Updates. Publish reads an immutable
// snapshot of the subscribers and takes no lock; Subscribe and Unsubscribe
// replace the snapshot under mu.
type Hub struct {
	mu   sync.Mutex
	subs atomic.Pointer[[]*Subscription]

	published atomic.Uint64
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{}
}

func (h *Hub) snapshot() []*Subscription {
	if p := h.subs.Load(); p != nil {
		return *p
	}
	return nil
}

// Subscribe registers a subscriber with a queue of the given length
func (h *Hub) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	ch := make(chan Update, buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch, done: make(chan struct{})}

	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.snapshot()
	next := make([]*Subscription, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, sub)
	h.subs.Store(&next)

	return sub
}

// Unsubscribe removes the subscriber and closes its Done channel
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.snapshot()
	next := make([]*Subscription, 0, len(old))
	for _, s := range old {
		if s != sub {
			next = append(next, s)
		}
	}
	if len(next) == len(old) {
		return
	}
	h.subs.Store(&next)
	close(sub.done)
}

// HasSubscribers lets publishers skip building updates nobody reads
func (h *Hub) HasSubscribers() bool {
	return len(h.snapshot()) > 0
}

// Publish hands u to every subscriber with room in its queue. Subscribers
// share the slices of u and must not modify them.
func (h *Hub) Publish(u Update) {
	h.published.Add(1)

	for _, sub := range h.snapshot() {
		select {
		case sub.ch <- u:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Published returns the number of updates published so far
func (h *Hub) Published() uint64 {
	return h.published.Load()
}

// Close unsubscribes everyone
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	old := h.snapshot()
	h.subs.Store(nil)
	for _, sub := range old {
		close(sub.done)
	}
}
