// Package live fans committed versions out to connected preview clients.
package live

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ashureev/codespace/internal/metrics"
	"github.com/google/uuid"
)

// DefaultQueueDepth is the outbound queue bound per subscriber.
const DefaultQueueDepth = 32

var (
	// ErrSlowConsumer is the reason a subscriber whose queue overflowed
	// was dropped.
	ErrSlowConsumer = errors.New("slow consumer")

	// ErrHubClosed is the reason subscribers are dropped on shutdown.
	ErrHubClosed = errors.New("hub closed")

	// ErrUnsubscribed is the reason for a normal disconnect.
	ErrUnsubscribed = errors.New("unsubscribed")
)

// Subscriber is one live connection bound to a session.
type Subscriber struct {
	ID        string
	SessionID string

	queue     chan Notification
	done      chan struct{}
	closeOnce sync.Once
	reason    error

	lastDelivered atomic.Int64
}

// C delivers queued notifications in version order.
func (s *Subscriber) C() <-chan Notification { return s.queue }

// Done is closed when the hub drops the subscriber.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Err returns why the subscriber was dropped. Valid after Done is closed.
func (s *Subscriber) Err() error {
	select {
	case <-s.done:
		return s.reason
	default:
		return nil
	}
}

// MarkDelivered records that version was written to the client. The
// recorded value never decreases.
func (s *Subscriber) MarkDelivered(version int64) {
	for {
		cur := s.lastDelivered.Load()
		if version <= cur || s.lastDelivered.CompareAndSwap(cur, version) {
			return
		}
	}
}

// LastDelivered returns the highest version written to the client.
func (s *Subscriber) LastDelivered() int64 { return s.lastDelivered.Load() }

func (s *Subscriber) close(reason error) bool {
	closed := false
	s.closeOnce.Do(func() {
		s.reason = reason
		close(s.done)
		closed = true
	})
	return closed
}

// Hub is the per-session subscriber registry.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*Subscriber
	depth    int
	closed   bool
	logger   *slog.Logger
}

// NewHub creates a hub whose subscribers queue at most depth
// notifications. A non-positive depth selects DefaultQueueDepth.
func NewHub(depth int, logger *slog.Logger) *Hub {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		sessions: make(map[string]map[string]*Subscriber),
		depth:    depth,
		logger:   logger,
	}
}

// Subscribe registers a new subscriber for sessionID. On a closed hub
// the returned subscriber is already done.
func (h *Hub) Subscribe(sessionID string) *Subscriber {
	sub := &Subscriber{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		queue:     make(chan Notification, h.depth),
		done:      make(chan struct{}),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.close(ErrHubClosed)
		return sub
	}
	if _, ok := h.sessions[sessionID]; !ok {
		h.sessions[sessionID] = make(map[string]*Subscriber)
	}
	h.sessions[sessionID][sub.ID] = sub
	metrics.Subscribers.Inc()
	h.logger.Debug("Subscriber registered", "session_id", sessionID, "subscriber_id", sub.ID)
	return sub
}

// Unsubscribe removes sub. It is safe to call more than once and after
// the hub dropped sub.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	h.remove(sub, ErrUnsubscribed)
}

// Notify enqueues n on every subscriber of its session without blocking.
// Subscribers whose queue is full are dropped.
func (h *Hub) Notify(n Notification) {
	var overflowed []*Subscriber

	h.mu.RLock()
	for _, sub := range h.sessions[n.SessionID] {
		select {
		case sub.queue <- n:
			metrics.Notifications.Inc()
		default:
			overflowed = append(overflowed, sub)
		}
	}
	h.mu.RUnlock()

	for _, sub := range overflowed {
		if h.remove(sub, ErrSlowConsumer) {
			metrics.DroppedSubscribers.Inc()
			h.logger.Warn("Dropping slow subscriber",
				"session_id", sub.SessionID,
				"subscriber_id", sub.ID,
				"version", n.Version,
				"last_delivered", sub.LastDelivered(),
			)
		}
	}
}

// Count returns the number of subscribers of sessionID.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions[sessionID])
}

// Close drops every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sessionID, subs := range h.sessions {
		for _, sub := range subs {
			sub.close(ErrHubClosed)
			metrics.Subscribers.Dec()
		}
		delete(h.sessions, sessionID)
	}
}

// remove reports whether this call was the one that dropped sub.
func (h *Hub) remove(sub *Subscriber, reason error) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.sessions[sub.SessionID]
	if !ok {
		return false
	}
	if _, ok := subs[sub.ID]; !ok {
		return false
	}
	delete(subs, sub.ID)
	if len(subs) == 0 {
		delete(h.sessions, sub.SessionID)
	}
	metrics.Subscribers.Dec()
	sub.close(reason)
	h.logger.Debug("Subscriber removed", "session_id", sub.SessionID, "subscriber_id", sub.ID, "reason", reason.Error())
	return true
}
