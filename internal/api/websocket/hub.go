package websocket

import (
	"encoding/json"
	"sync"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/auth"
	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/telemetry"
	"go.uber.org/zap"
)

// Hub fans gateway events out to the connected dashboards. Telemetry
// messages only reach clients subscribed to the producing consumer; every
// other message type goes to everyone.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client

	done     chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex

	logger      *zap.Logger
	authService *auth.AuthService
}

func NewHub(logger *zap.Logger, authService *auth.AuthService) *Hub {
	return &Hub{
		clients:     make(map[*Client]struct{}),
		broadcast:   make(chan Message, 256),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		logger:      logger,
		authService: authService,
	}
}

// Run serves register, unregister and broadcast until Stop.
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	defer h.logger.Info("WebSocket hub stopped")

	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				h.drop(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Dashboard connected",
				zap.String("client_id", client.id.String()),
				zap.String("remote_addr", client.remoteAddr()),
				zap.Int("clients", n))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				h.logger.Info("Dashboard disconnected",
					zap.String("client_id", client.id.String()),
					zap.Int("clients", len(h.clients)))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver encodes msg once and queues it on every matching client. A client
// whose queue is full is dropped; its read pump notices the closed channel.
func (h *Hub) deliver(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode message",
			zap.String("type", string(msg.Type)),
			zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if msg.consumer != "" && !client.subscribed(msg.consumer) {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.drop(client)
			h.logger.Warn("Dashboard too slow, dropped",
				zap.String("client_id", client.id.String()))
		}
	}
}

// drop requires h.mu.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Broadcast never blocks; with a full queue the message is lost.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast queue full, message dropped",
			zap.String("type", string(msg.Type)))
	}
}

// ForwardTelemetry relays streamer updates of all consumers until Stop.
func (h *Hub) ForwardTelemetry(streamer *telemetry.Streamer) {
	id, updates := streamer.Subscribe("")
	go func() {
		<-h.done
		streamer.Unsubscribe(id)
	}()

	for u := range updates {
		h.Broadcast(NewTelemetryMessage(u))
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
