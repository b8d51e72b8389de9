package server

import (
	"net/http"
	"sync"

	"ReplayFM/core/ingest"
	"ReplayFM/logger"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS is handled at the router level
	},
}

// ProgressHub fans ingestion progress events out to WebSocket subscribers,
// grouped by session id. It satisfies ingest.ProgressNotifier.
type ProgressHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[*websocket.Conn]bool
}

// NewProgressHub creates an empty hub.
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subscribers: make(map[string]map[*websocket.Conn]bool),
	}
}

// Publish sends an event to every subscriber of the session. Slow or dead
// connections are dropped rather than blocking ingestion.
func (h *ProgressHub) Publish(sessionID string, event ingest.ProgressEvent) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.subscribers[sessionID]))
	for conn := range h.subscribers[sessionID] {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			logger.Debug("Dropping progress subscriber",
				logger.String("sessionId", sessionID), logger.ErrorField(err))
			h.unsubscribe(sessionID, conn)
			conn.Close()
		}
	}
}

func (h *ProgressHub) subscribe(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subscribers[sessionID] == nil {
		h.subscribers[sessionID] = make(map[*websocket.Conn]bool)
	}
	h.subscribers[sessionID][conn] = true
}

func (h *ProgressHub) unsubscribe(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers[sessionID], conn)
	if len(h.subscribers[sessionID]) == 0 {
		delete(h.subscribers, sessionID)
	}
}

// ProgressHandler upgrades the request to a WebSocket and streams ingestion
// progress for the session until the client disconnects.
func (h *APIHandler) ProgressHandler(hub *ProgressHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.requireSession(r.Context(), r)
		if err != nil {
			writeError(w, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("WebSocket upgrade failed", logger.ErrorField(err))
			return
		}

		hub.subscribe(s.ID, conn)
		logger.Debug("Progress subscriber connected", logger.String("sessionId", s.ID))

		// Reader loop only detects disconnects; the hub owns all writes.
		go func() {
			defer func() {
				hub.unsubscribe(s.ID, conn)
				conn.Close()
			}()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	}
}
