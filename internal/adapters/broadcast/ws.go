package broadcast

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/okian/bastion/pkg/logger"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// WSHandler streams a match group's notifications over a websocket.
type WSHandler struct {
	hub     *Hub
	matchID func(*http.Request) string
	current func(matchID string) (string, bool)
	origins []string
	logger  logger.Logger
}

// NewWSHandler serves subscriptions from hub. matchID extracts the match id
// from the request. current, when set, supplies the phase sent on connect.
func NewWSHandler(hub *Hub, matchID func(*http.Request) string, current func(string) (string, bool), origins []string, log logger.Logger) *WSHandler {
	return &WSHandler{
		hub:     hub,
		matchID: matchID,
		current: current,
		origins: origins,
		logger:  log,
	}
}

func writeJSON(ctx context.Context, c *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, v)
}

// ServeHTTP implements http.Handler.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := h.matchID(r)
	if id == "" {
		http.Error(w, "missing match id", http.StatusBadRequest)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Error(r.Context(), "error accepting websocket", logger.Error(err))
		return
	}
	defer c.Close(websocket.StatusInternalError, "operational fault")

	events, unsubscribe := h.hub.Subscribe(id)
	defer unsubscribe()

	// subscribers only listen
	ctx := c.CloseRead(r.Context())
	log := h.logger.With(logger.String("channel", Channel(id)))
	log.Debug(ctx, "subscriber joined")

	if h.current != nil {
		if state, ok := h.current(id); ok && state != "" {
			if err := writeJSON(ctx, c, newNotification(id, state)); err != nil {
				return
			}
		}
	}

	for {
		select {
		case n, ok := <-events:
			if !ok {
				c.Close(websocket.StatusPolicyViolation, "connection too slow to keep up with messages")
				return
			}
			if err := writeJSON(ctx, c, n); err != nil {
				log.Debug(ctx, "subscriber missed write timeout", logger.Error(err))
				return
			}
		case <-ctx.Done():
			if !errors.Is(ctx.Err(), context.Canceled) {
				log.Debug(ctx, "subscriber left", logger.Error(ctx.Err()))
			}
			return
		}
	}
}
