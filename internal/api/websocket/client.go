package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/MoonLighTingPY/odrive3.6-web-gui-sub001/internal/auth"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	authWait   = 10 * time.Second

	maxMessageSize = 8192
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Die GUI läuft lokal, Browser-Origin ist beliebig
	CheckOrigin: func(*http.Request) bool { return true },
}

var errAuthRequired = errors.New("first message must be an auth message with a token")

// inbound is everything a dashboard may send.
type inbound struct {
	Type      string   `json:"type"`
	Token     string   `json:"token,omitempty"`
	Consumers []string `json:"consumers,omitempty"`
}

// Client is one dashboard connection. Until the handshake succeeded it is
// not known to the hub and has no write pump.
type Client struct {
	id        uuid.UUID
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	logger    *zap.Logger
	principal *auth.Principal

	mu        sync.RWMutex
	consumers map[string]bool
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// subscribed reports whether telemetry of consumer goes to this client.
// A client without subscriptions receives all of it.
func (c *Client) subscribed(consumer string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.consumers) == 0 || c.consumers[consumer]
}

func (c *Client) join() bool {
	select {
	case c.hub.register <- c:
		go c.writePump()
		return true
	case <-c.hub.done:
		return false
	}
}

func (c *Client) leave() {
	select {
	case c.hub.unregister <- c:
	case <-c.hub.done:
	}
}

// serve runs the optional handshake and then the read loop.
func (c *Client) serve(needsAuth bool) {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if needsAuth {
		if err := c.handshake(); err != nil {
			c.logger.Warn("WebSocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.remoteAddr()))
			return
		}
	}
	if !c.join() {
		return
	}
	defer c.leave()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", c.id.String()))
			}
			return
		}
		c.handle(msg)
	}
}

// handshake expects an auth message within authWait. Replies go out
// directly because the write pump is not running yet.
func (c *Client) handshake() error {
	c.conn.SetReadDeadline(time.Now().Add(authWait))

	var msg inbound
	if err := c.conn.ReadJSON(&msg); err != nil {
		return err
	}
	if msg.Type != "auth" || msg.Token == "" {
		c.writeDirect(NewMessage(MessageTypeAuthFailed, map[string]string{"reason": errAuthRequired.Error()}))
		return errAuthRequired
	}

	principal, err := c.hub.authService.ValidateToken(msg.Token)
	if err != nil {
		c.writeDirect(NewMessage(MessageTypeAuthFailed, map[string]string{"reason": "invalid or expired token"}))
		return err
	}

	c.principal = principal
	c.writeDirect(NewMessage(MessageTypeAuthSuccess, map[string]any{"role": principal.Role}))
	c.logger.Info("WebSocket client authenticated",
		zap.String("client_id", c.id.String()),
		zap.String("username", principal.Username),
		zap.String("role", string(principal.Role)))
	return nil
}

func (c *Client) writeDirect(msg Message) {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteJSON(msg)
}

func (c *Client) handle(msg inbound) {
	switch msg.Type {
	case "subscribe":
		c.mu.Lock()
		c.consumers = make(map[string]bool, len(msg.Consumers))
		for _, name := range msg.Consumers {
			c.consumers[name] = true
		}
		c.mu.Unlock()
		c.reply(NewMessage(MessageTypeSubscribed, map[string]any{"consumers": msg.Consumers}))

	case "unsubscribe":
		c.mu.Lock()
		for _, name := range msg.Consumers {
			delete(c.consumers, name)
		}
		c.mu.Unlock()

	default:
		c.logger.Debug("Unknown client message",
			zap.String("client_id", c.id.String()),
			zap.String("type", msg.Type))
		c.reply(NewMessage(MessageTypeError, map[string]any{"error": "unknown message type " + msg.Type}))
	}
}

// reply queues msg for this client only.
func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind    = websocket.PingMessage
			payload []byte
		)
		select {
		case data, ok := <-c.send:
			if !ok {
				kind = websocket.CloseMessage
			} else {
				kind, payload = websocket.TextMessage, data
			}
		case <-ping.C:
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(kind, payload); err != nil || kind == websocket.CloseMessage {
			return
		}
	}
}

// ServeWs upgrades the request. With auth enabled the first frame has to
// carry a token; without it the client joins right away.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade failed",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		id:     uuid.New(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		logger: hub.logger,
	}
	go client.serve(hub.authService != nil && hub.authService.Enabled())
}
