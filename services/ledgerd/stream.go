package ledgerd

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"leadfive/core/events"
	"leadfive/core/types"
	"leadfive/observability"
)

const (
	wsWriteTimeout      = 10 * time.Second
	subscriberQueueSize = 64
)

type subscriber struct {
	ch     chan *types.Event
	filter map[string]struct{}
}

func (s *subscriber) wants(eventType string) bool {
	if len(s.filter) == 0 {
		return true
	}
	_, ok := s.filter[eventType]
	return ok
}

// Hub fans committed ledger events out to websocket subscribers. Emit never
// blocks: a subscriber whose queue is full misses the event.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	payload := evt.Event()
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		if !sub.wants(payload.Type) {
			continue
		}
		select {
		case sub.ch <- payload:
		default:
			observability.Events().RecordDrop("websocket")
		}
	}
}

// Subscribe registers a listener for the given event types (all when empty).
// The returned cancel function must be called to release it.
func (h *Hub) Subscribe(eventTypes ...string) (<-chan *types.Event, func()) {
	sub := &subscriber{ch: make(chan *types.Event, subscriberQueueSize)}
	if len(eventTypes) > 0 {
		sub.filter = make(map[string]struct{}, len(eventTypes))
		for _, t := range eventTypes {
			sub.filter[t] = struct{}{}
		}
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, sub)
			h.mu.Unlock()
		})
	}
}

// Subscribers returns the number of active listeners.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	var filter []string
	if raw := strings.TrimSpace(r.URL.Query().Get("types")); raw != "" {
		filter = strings.Split(raw, ",")
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	ctx := conn.CloseRead(r.Context())
	if err := h.stream(ctx, conn, filter); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (h *Hub) stream(ctx context.Context, conn *websocket.Conn, filter []string) error {
	updates, cancel := h.Subscribe(filter...)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt := <-updates:
			if err := writeEvent(ctx, conn, evt); err != nil {
				return err
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, evt *types.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
