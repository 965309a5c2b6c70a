// Package realtime fans pipeline outcomes out to connected live clients.
// Delivery is best effort: nothing is queued for clients that are not
// connected, and a client that cannot keep up misses events.
package realtime

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ecoscore-finance/ecoscore-backend/internal/ecoscore/domain"
	"github.com/google/uuid"
)

const defaultBuffer = 16

// Subscription is one connected client.
type Subscription struct {
	ID     string
	Events <-chan domain.Event

	ch chan domain.Event
}

// Hub is an in-memory broadcaster.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	buffer  int
	dropped atomic.Int64
	closed  bool
	logger  *slog.Logger
}

// NewHub creates a Hub whose subscriber channels hold buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a client. Callers must Unsubscribe when done.
// After Close the returned subscription's channel is already closed.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan domain.Event, h.buffer)
	sub := &Subscription{ID: uuid.NewString(), Events: ch, ch: ch}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return sub
	}
	h.subs[sub.ID] = sub
	h.mu.Unlock()

	h.logger.Debug("realtime client connected", "subscriber_id", sub.ID)
	return sub
}

// Unsubscribe removes the client and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	if _, ok := h.subs[sub.ID]; ok {
		delete(h.subs, sub.ID)
		close(sub.ch)
	}
	h.mu.Unlock()

	h.logger.Debug("realtime client disconnected", "subscriber_id", sub.ID)
}

// Close disconnects every client so their streams end. Later Publish calls
// reach nobody.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		close(sub.ch)
	}
	h.logger.Info("realtime hub closed")
}

// Publish delivers ev to every client without blocking.
func (h *Hub) Publish(ev domain.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
			h.dropped.Add(1)
			h.logger.Warn("realtime client lagging, event dropped", "subscriber_id", id, "event", ev.Name)
		}
	}
}

// BroadcastScoreUpdate emits iot_update.
func (h *Hub) BroadcastScoreUpdate(u domain.IoTUpdate) {
	h.Publish(domain.Event{Name: domain.EventIoTUpdate, Data: u})
}

// BroadcastCertified emits loan_certified.
func (h *Hub) BroadcastCertified(c domain.LoanCertified) {
	h.Publish(domain.Event{Name: domain.EventLoanCertified, Data: c})
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for lagging clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
