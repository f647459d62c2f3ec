// Package websocket pushes live score-change events to connected
// dashboard clients.
package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seclens/vulnprio/internal/core/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")

		// Allow same-origin (no Origin header)
		if origin == "" {
			return true
		}

		allowedOrigins := []string{
			"http://localhost:8080",
			"http://127.0.0.1:8080",
			"http://[::1]:8080",
		}

		for _, allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}

		slog.Warn("websocket rejected origin", "origin", origin)
		return false
	},
}

// WSMessage is the envelope for all pushed events.
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSManager tracks connected clients and fans events out to them. It
// implements ports.ChangeNotifier for the refresh scheduler.
type WSManager struct {
	clients map[*websocket.Conn]struct{}
	mu      sync.Mutex
}

// NewWSManager creates an empty manager.
func NewWSManager() *WSManager {
	return &WSManager{
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// HandleWebSocket upgrades the connection and registers the client.
// Inbound messages are drained and discarded; the stream is push-only.
func (m *WSManager) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	m.mu.Lock()
	m.clients[conn] = struct{}{}
	count := len(m.clients)
	m.mu.Unlock()

	slog.Info("websocket client connected", "clients", count)

	go func() {
		defer conn.Close()
		defer func() {
			m.mu.Lock()
			delete(m.clients, conn)
			m.mu.Unlock()
			slog.Info("websocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// ClientCount returns the number of connected clients.
func (m *WSManager) ClientCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// NotifyScoreChanges broadcasts the refresh cycle's change-set.
func (m *WSManager) NotifyScoreChanges(changes []domain.ScoreChange) {
	if len(changes) == 0 {
		return
	}
	m.broadcastMessage(WSMessage{
		Type:    "score:changes",
		Payload: changes,
	})
}

// BroadcastVulnerability pushes a freshly enriched record.
func (m *WSManager) BroadcastVulnerability(rec domain.VulnerabilityRecord) {
	m.broadcastMessage(WSMessage{
		Type:    "vulnerability:enriched",
		Payload: rec,
	})
}

func (m *WSManager) broadcastMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("websocket marshal failed", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for conn := range m.clients {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			conn.Close()
			delete(m.clients, conn)
		}
	}
}
