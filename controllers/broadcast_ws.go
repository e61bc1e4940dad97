package controller

import (
	"log"
	"sync"

	"edublast/utils"

	"github.com/gofiber/websocket/v2"
)

// ProgressHub fans dispatch progress events out to websocket subscribers.
type ProgressHub struct {
	mu          sync.Mutex
	subscribers map[*websocket.Conn]struct{}
	Logger      *log.Logger
}

func NewProgressHub(logger *log.Logger) *ProgressHub {
	return &ProgressHub{
		subscribers: make(map[*websocket.Conn]struct{}),
		Logger:      logger,
	}
}

// Publish sends the event to every connected subscriber. Safe for concurrent
// use; subscribers that fail to write are dropped.
func (h *ProgressHub) Publish(ev utils.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.subscribers {
		if err := conn.WriteJSON(ev); err != nil {
			h.Logger.Printf("Dropping progress subscriber: %v", err)
			conn.Close()
			delete(h.subscribers, conn)
		}
	}
}

// HandleProgressWS registers the connection and keeps it open until the
// client disconnects.
func (h *ProgressHub) HandleProgressWS(c *websocket.Conn) {
	h.mu.Lock()
	h.subscribers[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subscribers, c)
		h.mu.Unlock()
		c.Close()
	}()

	// Drain client frames; the hub only ever writes.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
