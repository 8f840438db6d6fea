package handlers

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/escalation"
	"github.com/supportdesk/backend/pkg/logger"
)

// Hub fans escalation events out to connected agent consoles. It implements
// escalation.EventSink so the router can publish without knowing about
// websockets.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]chan escalation.Event
}

func NewHub() *Hub {
	return &Hub{
		conns: make(map[*websocket.Conn]chan escalation.Event),
	}
}

// Broadcast delivers an event to every connected console. Slow consumers
// whose buffer is full miss the event rather than blocking the pipeline.
func (h *Hub) Broadcast(event escalation.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.conns {
		select {
		case ch <- event:
		default:
			logger.Warn("Dropping escalation event for slow consumer",
				zap.String("ticket_id", event.TicketID))
		}
	}
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// HandleConnection serves one agent console until it disconnects. Events are
// pushed from a per-connection channel; reads only watch for close.
func (h *Hub) HandleConnection(c *websocket.Conn) {
	logger.Info("Agent console connected")

	events := make(chan escalation.Event, 16)
	h.register(c, events)

	defer func() {
		h.unregister(c)
		c.Close()
		logger.Info("Agent console disconnected")
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case event := <-events:
			if err := c.WriteJSON(event); err != nil {
				logger.Error("Failed to write escalation event", zap.Error(err))
				return
			}
		case <-done:
			return
		}
	}
}

func (h *Hub) register(c *websocket.Conn, events chan escalation.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = events
}

func (h *Hub) unregister(c *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c)
}
