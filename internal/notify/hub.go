package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Devdesai111/RevUp-sub000/internal/logging"
)

const (
	// wsPingInterval is the interval between ping frames sent to the client.
	wsPingInterval = 30 * time.Second
	// wsPongTimeout is how long to wait for a pong response before closing.
	wsPongTimeout = 10 * time.Second
	// wsWriteTimeout is the deadline for writing a message to the client.
	wsWriteTimeout = 5 * time.Second

	subscriberBuffer = 32
)

// Hub pushes notifications to connected WebSocket clients. Each subscriber
// receives only its own user's events, or every event when subscribed with an
// empty user id. Slow subscribers drop events rather than block senders.
type Hub struct {
	mu       sync.RWMutex
	subs     map[chan Event]string
	upgrader websocket.Upgrader
	now      func() time.Time
	logger   *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan Event]string),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		now:    time.Now,
		logger: logging.WithComponent("hub"),
	}
}

// Subscribe registers a channel for userID's events. An empty userID
// receives all events.
func (h *Hub) Subscribe(userID string) chan Event {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = userID
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Send implements Notifier. Delivery is best effort and never blocks.
func (h *Hub) Send(_ context.Context, userID string, tmpl Template, payload map[string]any) error {
	ev := Event{UserID: userID, Template: tmpl, Payload: payload, SentAt: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch, filter := range h.subs {
		if filter != "" && filter != userID {
			continue
		}
		select {
		case ch <- ev:
		default:
			h.logger.Debug("dropping event for slow subscriber", slog.String("user_id", userID))
		}
	}
	return nil
}

// Serve upgrades the request and streams userID's events until the client
// disconnects. Authentication happens before Serve is called.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws upgrade error", slog.Any("error", err))
		return
	}
	defer func() { _ = conn.Close() }()

	log := h.logger.With(slog.String("user_id", userID))
	log.Info("ws connected", slog.String("remote", r.RemoteAddr))

	sub := h.Subscribe(userID)
	defer h.Unsubscribe(sub)

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(wsPingInterval + wsPongTimeout))

	// Read pump: drain client messages (none expected) and detect disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Warn("ws read error", slog.Any("error", err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug("ws write error", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}

var _ Notifier = (*Hub)(nil)
