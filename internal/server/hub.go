package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tessro/stctl/internal/core"
	"github.com/tessro/stctl/internal/state"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second

	defaultSendBuf      = 32
	defaultBroadcastBuf = 128
)

// Message types sent to WebSocket clients.
const (
	MessageDevices   = "devices"
	MessageSnapshot  = "snapshot"
	MessageForgotten = "forgotten"
)

// envelope is the wire format of every WebSocket message.
type envelope struct {
	Type string    `json:"type"`
	ID   string    `json:"id,omitempty"`
	Ts   time.Time `json:"ts"`
	Data any       `json:"data,omitempty"`
}

// DeviceState pairs a device with its last known snapshot.
type DeviceState struct {
	Device   core.DeviceAddress `json:"device"`
	Snapshot core.Snapshot      `json:"snapshot"`
}

// Hub fans store changes out to connected WebSocket clients. Clients that
// cannot keep up are disconnected.
type Hub struct {
	log *zap.Logger

	broadcast chan []byte
	register  chan *wsClient

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	sendBuf int
}

// NewHub constructs a hub. Call Run to start it.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:       log.With(zap.String("component", "hub")),
		broadcast: make(chan []byte, defaultBroadcastBuf),
		register:  make(chan *wsClient, 64),
		clients:   make(map[*wsClient]struct{}),
		sendBuf:   defaultSendBuf,
	}
}

// Run processes hub events until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("client", c.id), zap.Int("clients", n))

		case msg := <-h.broadcast:
			var slow []*wsClient
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.Unlock()

			for _, c := range slow {
				h.remove(c, "slow client")
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		_ = c.conn.Close()
		c.closeSend()
		delete(h.clients, c)
	}
}

func (h *Hub) remove(c *wsClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		_ = c.conn.Close()
		c.closeSend()
		h.log.Debug("client disconnected", zap.String("client", c.id), zap.String("reason", reason), zap.Int("clients", n))
	}
}

// Publish enqueues a message for every client. It never blocks; when the
// queue is full the message is dropped.
func (h *Hub) Publish(msgType, id string, data any) {
	msg, err := json.Marshal(envelope{Type: msgType, ID: id, Ts: time.Now().UTC(), Data: data})
	if err != nil {
		h.log.Warn("marshal failed", zap.String("type", msgType), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("broadcast queue full, dropping message", zap.String("type", msgType))
	}
}

// OnChange publishes a store change. It is a state.Listener.
func (h *Hub) OnChange(c state.Change) {
	switch c.Kind {
	case state.ChangeForgotten:
		h.Publish(MessageForgotten, c.Device.ID, nil)
	default:
		h.Publish(MessageSnapshot, c.Device.ID, DeviceState{Device: c.Device, Snapshot: c.Snapshot})
	}
}

type wsClient struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func newWSClient(hub *Hub, conn *websocket.Conn) *wsClient {
	return &wsClient{
		id:   uuid.NewString(),
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.sendBuf),
	}
}

func (c *wsClient) closeSend() {
	c.once.Do(func() { close(c.send) })
}

// writePump writes queued messages and pings until send is closed or a
// write fails.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logExit("ping", err)
				return
			}
		}
	}
}

// readPump discards incoming messages so control frames are handled and
// disconnects are noticed.
func (c *wsClient) readPump() {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			c.hub.remove(c, "closed")
			return
		}
	}
}

func (c *wsClient) logExit(op string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		c.hub.log.Debug("client closed", zap.String("client", c.id), zap.Int("code", ce.Code), zap.String("reason", ce.Text))
		return
	}
	c.hub.log.Debug("client pump exiting", zap.String("client", c.id), zap.String("op", op), zap.Error(err))
}
