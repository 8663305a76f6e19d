package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"flashstake/core/events"
	"flashstake/core/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsBufferSize   = 64
)

// eventHub fans engine events out to connected websocket subscribers. It
// satisfies events.Emitter so it can be plugged straight into the engine.
type eventHub struct {
	mu   sync.Mutex
	subs map[chan *types.Event]struct{}
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan *types.Event]struct{})}
}

// Emit broadcasts the event to every subscriber. Slow subscribers are dropped
// rather than blocking the engine.
func (h *eventHub) Emit(evt events.Event) {
	type renderer interface {
		Event() *types.Event
	}
	r, ok := evt.(renderer)
	if !ok {
		return
	}
	rendered := r.Event()
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- rendered:
		default:
			delete(h.subs, ch)
			close(ch)
		}
	}
}

func (h *eventHub) subscribe() (chan *types.Event, func()) {
	ch := make(chan *types.Event, wsBufferSize)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn) error {
	updates, cancel := s.hub.subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
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
