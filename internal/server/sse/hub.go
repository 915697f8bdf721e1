package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"ppe-cascade/internal/integrations/mqtt"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Client repräsentiert einen einzelnen verbundenen SSE-Client
type Client chan []byte

// Hub verteilt Kaskadenergebnisse an verbundene Browser
type Hub struct {
	clients map[Client]bool

	// Eingehende Nachrichten von der Anwendung
	broadcast chan []byte

	register   chan Client
	unregister chan Client
	done       chan struct{}

	mu sync.Mutex
}

// NewHub erstellt eine neue Hub-Instanz
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100), // Puffer für 100 Nachrichten
		register:   make(chan Client),
		unregister: make(chan Client),
		done:       make(chan struct{}),
		clients:    make(map[Client]bool),
	}
}

// Run startet die Verarbeitungsschleife des Hubs, bis ctx beendet wird.
// Dies sollte in einer separaten Goroutine ausgeführt werden.
func (h *Hub) Run(ctx context.Context) {
	log.Info("SSE Hub started and running")

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE Hub stopped")
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client registered. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Debugf("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					// langsamer Client, wird getrennt
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// ClientCount gibt die Anzahl verbundener Clients zurück
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sendet eine Nachricht an alle registrierten Clients
func (h *Hub) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		log.Warn("SSE broadcast channel full, message dropped")
		return false
	}
}

// PublishResult sendet ein Kaskadenergebnis als SSE-Nachricht
func (h *Hub) PublishResult(event *mqtt.CascadeEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal cascade event: %w", err)
	}
	if !h.Broadcast(data) {
		return fmt.Errorf("SSE broadcast channel full")
	}
	return nil
}

// RegisterRoutes registriert den Event-Stream
func (h *Hub) RegisterRoutes(router gin.IRouter) {
	router.GET("/events", h.handleStream)
}

func (h *Hub) handleStream(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	client := make(Client, 10)
	select {
	case h.register <- client:
	case <-h.done:
		c.Status(http.StatusServiceUnavailable)
		return
	case <-c.Request.Context().Done():
		return
	}
	defer func() {
		select {
		case h.unregister <- client:
		case <-h.done:
		}
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-client:
			if !ok {
				return false
			}
			c.SSEvent("result", string(msg))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
