// Package feed fans simulation frames out to WebSocket and gRPC subscribers.
package feed

import (
	"context"
	"sync"

	"github.com/signalsfoundry/marslink-sim/core"
	"github.com/signalsfoundry/marslink-sim/internal/logging"
	"github.com/signalsfoundry/marslink-sim/internal/observability"
)

// Transport labels used for metrics and logs.
const (
	TransportWebSocket = "ws"
	TransportGRPC      = "grpc"
	TransportTerminal  = "tui"
)

// DefaultBuffer is the per-subscriber frame queue length.
const DefaultBuffer = 8

// Hub is a core.FrameSink that copies each published frame to every
// subscriber. Publish never blocks: when a subscriber's queue is full its
// oldest queued frame is discarded.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	latest *core.Frame
	closed bool

	buffer  int
	metrics *observability.FeedCollector
	log     logging.Logger
}

// HubOption customises a Hub.
type HubOption func(*Hub)

// WithBuffer sets the per-subscriber queue length.
func WithBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithFeedMetrics attaches the feed collector.
func WithFeedMetrics(c *observability.FeedCollector) HubOption {
	return func(h *Hub) { h.metrics = c }
}

// WithHubLogger attaches a logger.
func WithHubLogger(l logging.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHub constructs an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: DefaultBuffer,
		log:    logging.Noop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscription is one consumer's view of the frame stream. C is closed when
// the subscription or the hub is closed.
type Subscription struct {
	ID        uint64
	Transport string
	C         <-chan *core.Frame

	ch   chan *core.Frame
	hub  *Hub
	once sync.Once
}

// Subscribe registers a new consumer. Subscribing to a closed hub returns a
// subscription whose channel is already closed.
func (h *Hub) Subscribe(transport string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	ch := make(chan *core.Frame, h.buffer)
	sub := &Subscription{ID: h.nextID, Transport: transport, C: ch, ch: ch, hub: h}
	if h.closed {
		close(ch)
		sub.once.Do(func() {})
		return sub
	}
	h.subs[sub.ID] = sub
	h.metrics.SubscriberAdded(transport)
	h.log.Debug(context.Background(), "feed subscriber added",
		logging.String("transport", transport),
		logging.Any("subscription", sub.ID),
	)
	return sub
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[s.ID]; !ok {
			return
		}
		delete(h.subs, s.ID)
		close(s.ch)
		h.metrics.SubscriberRemoved(s.Transport)
	})
}

// Publish implements core.FrameSink.
func (h *Hub) Publish(f *core.Frame) {
	if f == nil {
		return
	}
	h.mu.Lock()
	h.latest = f
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		select {
		case sub.ch <- f:
			continue
		default:
		}
		// Queue full: drop the oldest frame to make room for the newest.
		select {
		case <-sub.ch:
			h.metrics.FrameDropped(sub.Transport)
		default:
		}
		select {
		case sub.ch <- f:
		default:
			h.metrics.FrameDropped(sub.Transport)
		}
	}
}

// Latest returns the most recently published frame, or nil.
func (h *Hub) Latest() *core.Frame {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latest
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close closes every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}
