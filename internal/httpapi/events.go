package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/vcwarden/internal/bus"
	"github.com/nextlevelbuilder/vcwarden/internal/notify"
	"github.com/nextlevelbuilder/vcwarden/pkg/protocol"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = pongWait * 9 / 10
)

// streamedEvents are forwarded to /events subscribers. Join decisions and
// raw bot replies stay internal.
var streamedEvents = []string{
	protocol.EventOwnershipChanged,
	protocol.EventActionQueued,
	protocol.EventActionExecuted,
	protocol.EventUserJoinedManaged,
	protocol.EventUserLeftManaged,
}

// Frame is one message pushed to /events subscribers.
type Frame struct {
	Type    string    `json:"type"` // "event" or "notice"
	Event   string    `json:"event,omitempty"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// hub fans registry events and local notices out to websocket clients.
type hub struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
}

func newHub() *hub {
	h := &hub{clients: make(map[string]*client)}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     checkOrigin,
	}
	return h
}

// checkOrigin allows non-browser clients and pages served from the same host.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host != r.Host {
		slog.Warn("security.cors_rejected", "origin", origin)
		return false
	}
	return true
}

func (h *hub) publishEvent(p bus.Payload) {
	h.broadcast(Frame{Type: "event", Event: p.EventName(), Payload: p, At: time.Now()})
}

func (h *hub) publishNotice(n notify.Notice) {
	h.broadcast(Frame{Type: "notice", Payload: n, At: n.At})
}

func (h *hub) broadcast(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		slog.Warn("httpapi: encode frame failed", "event", f.Event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Debug("httpapi: slow subscriber, frame dropped", "client_id", c.id)
		}
	}
}

func (h *hub) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) register(c *client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	slog.Info("event subscriber connected", "client_id", c.id)
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	slog.Info("event subscriber disconnected", "client_id", c.id)
}

func (h *hub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, clientSendBuffer)}
	h.register(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go c.writeLoop(ctx)
	c.readLoop()

	h.unregister(c)
	conn.Close()
}

// readLoop discards inbound frames and returns when the peer goes away.
func (c *client) readLoop() {
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
