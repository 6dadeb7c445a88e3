package broadcast

import (
	"context"
	"sync"

	"github.com/okian/bastion/pkg/logger"
)

const defaultBuffer = 16

type subscriber struct {
	ch chan Notification
}

// Hub is the in-process match group registry.
type Hub struct {
	mu     sync.RWMutex
	groups map[string]map[*subscriber]struct{}
	buffer int
	logger logger.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		groups: make(map[string]map[*subscriber]struct{}),
		buffer: defaultBuffer,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("broadcast")
	}
	return h
}

// Subscribe joins the group of matchID. The channel is closed when the
// returned cancel func runs or when the subscriber falls behind.
func (h *Hub) Subscribe(matchID string) (<-chan Notification, func()) {
	s := &subscriber{ch: make(chan Notification, h.buffer)}
	h.mu.Lock()
	g, ok := h.groups[matchID]
	if !ok {
		g = make(map[*subscriber]struct{})
		h.groups[matchID] = g
	}
	g[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.removeLocked(matchID, s)
		})
	}
}

// removeLocked drops s from its group and closes its channel if still present.
func (h *Hub) removeLocked(matchID string, s *subscriber) {
	g, ok := h.groups[matchID]
	if !ok {
		return
	}
	if _, ok := g[s]; !ok {
		return
	}
	delete(g, s)
	close(s.ch)
	if len(g) == 0 {
		delete(h.groups, matchID)
	}
}

// Publish fans a state change out to the match group without blocking.
func (h *Hub) Publish(ctx context.Context, matchID, state string) error {
	n := newNotification(matchID, state)

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.groups[matchID] {
		select {
		case s.ch <- n:
		default:
			h.logger.Warn(ctx, "subscriber too slow, disconnecting",
				logger.String("channel", Channel(matchID)))
			h.removeLocked(matchID, s)
		}
	}
	return nil
}

// Subscribers returns the number of members of a match group.
func (h *Hub) Subscribers(matchID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[matchID])
}
