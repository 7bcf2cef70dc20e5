package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rankforge/pbn-detector/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all for the local dashboard
	},
}

// Hub maintains the set of active websocket clients and pushes high-risk
// detection alerts to them. Alert delivery is fire-and-forget and never
// blocks or fails a detection request.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Write deadline keeps one stalled client from hanging the hub.
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Websocket write error: %v", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades the connection and registers the client for alerts.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()

	log.Printf("New alert subscriber connected. Total clients: %d", total)

	// The hub only pushes down, but reading is required to notice closes.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			remaining := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			log.Printf("Alert subscriber disconnected. Total clients: %d", remaining)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("WebSocket error: %v", err)
				}
				break
			}
		}
	}()
}

// Broadcast sends raw JSON data to all connected clients.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		// Drop when the buffer is full; alerts are advisory.
	}
}

// BroadcastHighRiskAlerts pushes one pbn_alert frame per high-risk item.
func (h *Hub) BroadcastHighRiskAlerts(alerts []models.DetectionAlert) {
	for _, alert := range alerts {
		payload, err := json.Marshal(gin.H{
			"type":  "pbn_alert",
			"alert": alert,
		})
		if err != nil {
			continue
		}
		h.Broadcast(payload)
	}
	if len(alerts) > 0 {
		log.Printf("[ALERT] %d high-risk backlinks broadcast for domain %s (task %s)",
			len(alerts), alerts[0].Domain, alerts[0].TaskID)
	}
}
