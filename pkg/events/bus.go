package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// subscriberQueueCapacity is the bounded per-subscriber queue size (§4.4).
const subscriberQueueCapacity = 64

// Bus is the per-process Event Bus. One Bus instance is shared by every
// session; subscribers are registered per session_id channel, mirroring
// ConnectionManager's per-channel subscription sets but without any
// cross-process distribution.
type Bus struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*subscriber
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{sessions: make(map[string]map[string]*subscriber)}
}

// subscriber owns a bounded queue. sendMu serializes the drop-oldest
// dequeue-then-enqueue sequence in Publish against itself — it is never
// taken by the reader, so a slow consumer never blocks the publisher.
type subscriber struct {
	id     string
	ch     chan Event
	lagged atomic.Int64
	sendMu sync.Mutex
}

// Subscription is a live registration returned by Subscribe. Callers
// range over Events() until Close is called or the bus is torn down.
type Subscription struct {
	bus       *Bus
	sessionID string
	sub       *subscriber
}

// Events returns the channel of delivered events.
func (s *Subscription) Events() <-chan Event { return s.sub.ch }

// Lagged returns how many events this subscriber has dropped due to
// overflow since subscribing.
func (s *Subscription) Lagged() int64 { return s.sub.lagged.Load() }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	subs, ok := s.bus.sessions[s.sessionID]
	if !ok {
		return
	}
	if _, ok := subs[s.sub.id]; ok {
		delete(subs, s.sub.id)
		close(s.sub.ch)
	}
	if len(subs) == 0 {
		delete(s.bus.sessions, s.sessionID)
	}
}

// Subscribe registers a new subscriber for sessionID and returns a
// Subscription. Each websocket connection holds exactly one.
func (b *Bus) Subscribe(sessionID string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.sessions[sessionID]
	if !ok {
		subs = make(map[string]*subscriber)
		b.sessions[sessionID] = subs
	}

	sub := &subscriber{id: uuid.New().String(), ch: make(chan Event, subscriberQueueCapacity)}
	subs[sub.id] = sub

	return &Subscription{bus: b, sessionID: sessionID, sub: sub}
}

// Publish fans evt out to every subscriber of sessionID. It never blocks:
// a subscriber whose queue is full has its oldest queued event dropped to
// make room, and its lagged counter is incremented (§4.4 overflow policy).
func (b *Bus) Publish(sessionID string, evt Event) {
	b.mu.RLock()
	subs := b.sessions[sessionID]
	targets := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	b.mu.RUnlock()

	for _, sub := range targets {
		sub.send(evt)
	}
}

func (s *subscriber) send(evt Event) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case s.ch <- evt:
		return
	default:
	}

	// Queue full: drop the oldest queued event to make room, per §4.4.
	select {
	case <-s.ch:
		s.lagged.Add(1)
	default:
	}
	select {
	case s.ch <- evt:
	default:
		// Another goroutine can't be racing sendMu, so this should be
		// unreachable; if it ever happens, drop evt rather than block.
		s.lagged.Add(1)
	}
}

// SubscriberCount reports the number of live subscribers for sessionID,
// used by tests to poll instead of sleeping (mirrors ConnectionManager's
// unexported subscriberCount helper).
func (b *Bus) SubscriberCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.sessions[sessionID])
}
