package events

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xenking/delivery-orders/internal/domain/order"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 512
)

// Subscriber receives the encoded events visible under its scope.
type Subscriber struct {
	scope order.Scope
	send  chan []byte
}

// C returns the channel of encoded events. It is closed on Unsubscribe.
func (s *Subscriber) C() <-chan []byte {
	return s.send
}

var _ order.Notifier = (*Hub)(nil)

// Hub fans events out to live subscribers. A subscriber whose buffer is full
// misses the event instead of stalling the publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	buffer int
	lg     *zap.Logger
}

// NewHub returns a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, lg *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[*Subscriber]struct{}), buffer: buffer, lg: lg}
}

// Subscribe registers a subscriber limited to scope.
func (h *Hub) Subscribe(scope order.Scope) *Subscriber {
	s := &Subscriber{scope: scope, send: make(chan []byte, h.buffer)}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Unsubscribe removes s and closes its channel.
func (h *Hub) Unsubscribe(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[s]; ok {
		delete(h.subs, s)
		close(s.send)
	}
}

// Len returns the number of subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Notify delivers e to every subscriber that can see it.
func (h *Hub) Notify(_ context.Context, e order.Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var full []byte
	for s := range h.subs {
		scoped, ok := visible(s.scope, e)
		if !ok {
			continue
		}
		var msg []byte
		if s.scope.Unrestricted {
			if full == nil {
				full = Encode(e)
			}
			msg = full
		} else {
			msg = Encode(scoped)
		}
		select {
		case s.send <- msg:
		default:
			h.lg.Warn("Dropping event for slow subscriber",
				zap.String("order_id", e.OrderID),
				zap.String("type", string(e.Type)),
			)
		}
	}
	return nil
}

// visible reports whether e is visible under scope and returns it with the
// restaurant list narrowed to the scope. A restaurant slice change is only
// visible to the scope that owns that restaurant.
func visible(scope order.Scope, e order.Event) (order.Event, bool) {
	if scope.Unrestricted {
		return e, true
	}
	if e.RestaurantID != "" && !scope.Allows(e.RestaurantID) {
		return e, false
	}
	var ids []string
	for _, id := range e.RestaurantIDs {
		if scope.Allows(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return e, false
	}
	e.RestaurantIDs = ids
	return e, true
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		delete(h.subs, s)
		close(s.send)
	}
}

// Serve streams events visible under scope to conn until the peer goes away,
// ctx is done or the hub is closed. It owns conn and closes it on return.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, scope order.Scope) error {
	sub := h.Subscribe(scope)
	defer h.Unsubscribe(sub)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The read side only handles control frames and notices the peer leaving.
	go func() {
		defer cancel()
		conn.SetReadLimit(maxInboundSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return nil
		case msg, ok := <-sub.C():
			if !ok {
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return errors.Wrap(err, "write event")
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return errors.Wrap(err, "write ping")
			}
		}
	}
}
