package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-av/internal/bridge"
	"github.com/nerrad567/gray-logic-av/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-av/internal/infrastructure/logging"
)

// Message types on the WebSocket.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// SnapshotChannel is the event a client gets right after connecting,
	// holding every entity snapshot.
	SnapshotChannel = "entity.snapshot"

	outboxSize = 256

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is the envelope for both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists channels to add or drop.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// inbound is WSMessage with the payload left undecoded until the type is known.
type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func stamp() string { return time.Now().UTC().Format(time.RFC3339) }

// Hub fans bridge broadcasts out to connected clients. It implements
// bridge.Broadcaster.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu    sync.RWMutex
	peers map[*wsConn]struct{}
}

// wsConn is one WebSocket peer. Its outbox is never closed; shutdown is
// signalled through closed so late broadcasts are simply dropped.
type wsConn struct {
	hub    *Hub
	ws     *websocket.Conn
	outbox chan []byte

	closed   chan struct{}
	stopOnce sync.Once

	subMu    sync.RWMutex
	channels map[string]struct{}
}

func newWSConn(hub *Hub, ws *websocket.Conn, channels ...string) *wsConn {
	c := &wsConn{
		hub:      hub,
		ws:       ws,
		outbox:   make(chan []byte, outboxSize),
		closed:   make(chan struct{}),
		channels: make(map[string]struct{}, len(channels)),
	}
	for _, ch := range channels {
		c.channels[ch] = struct{}{}
	}
	return c
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Panels and dashboards on the LAN connect from arbitrary origins.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub returns an empty hub. Call Run to tie its lifetime to a context.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{cfg: cfg, logger: logger, peers: make(map[*wsConn]struct{})}
}

// Run waits for ctx and then drops every peer.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	peers := h.peers
	h.peers = make(map[*wsConn]struct{})
	h.mu.Unlock()

	for c := range peers {
		c.stop()
	}
}

// register starts delivering broadcasts to c.
func (h *Hub) register(c *wsConn) {
	h.mu.Lock()
	h.peers[c] = struct{}{}
	n := len(h.peers)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

// unregister stops c. Safe to call more than once.
func (h *Hub) unregister(c *wsConn) {
	h.mu.Lock()
	_, known := h.peers[c]
	delete(h.peers, c)
	n := len(h.peers)
	h.mu.Unlock()

	c.stop()
	if known {
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// Broadcast encodes payload once as an event on channel and queues it for
// every subscribed peer. Slow peers lose messages rather than block the bridge.
func (h *Hub) Broadcast(channel string, payload any) {
	frame, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: channel,
		Timestamp: stamp(),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("encoding websocket broadcast failed", "channel", channel, "error", err)
		return
	}

	h.mu.RLock()
	targets := make([]*wsConn, 0, len(h.peers))
	for c := range h.peers {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.wants(channel) {
			c.enqueue(frame)
		}
	}
}

// ClientCount reports connected peers.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// handleWebSocket upgrades the request, subscribes the peer to state
// changes and sends it the current entity list.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newWSConn(s.hub, ws, bridge.StateChangedChannel)
	s.hub.register(c)
	c.reply(WSMessage{
		Type:      WSTypeEvent,
		EventType: SnapshotChannel,
		Payload:   s.entities.Entities(),
	})

	ping, pong := wsTimings(s.wsCfg)
	go c.writeLoop(ping, pong)
	go c.readLoop(ping+pong, s.wsCfg.MaxMessageSize)
}

// wsTimings fills in the ping interval and pong wait when unset.
func wsTimings(cfg config.WebSocketConfig) (ping, pong time.Duration) {
	ping, pong = defaultPingInterval, defaultPongTimeout
	if cfg.PingInterval > 0 {
		ping = time.Duration(cfg.PingInterval) * time.Second
	}
	if cfg.PongTimeout > 0 {
		pong = time.Duration(cfg.PongTimeout) * time.Second
	}
	return ping, pong
}

func (c *wsConn) stop() {
	c.stopOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			c.ws.Close()
		}
	})
}

// enqueue reports whether frame was queued.
func (c *wsConn) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.outbox <- frame:
		return true
	default:
		return false
	}
}

func (c *wsConn) wants(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

func (c *wsConn) readLoop(idle time.Duration, maxSize int) {
	defer c.hub.unregister(c)

	if maxSize > 0 {
		c.ws.SetReadLimit(int64(maxSize))
	}
	extend := func() error { return c.ws.SetReadDeadline(time.Now().Add(idle)) }
	_ = extend()
	c.ws.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read failed", "error", err)
			}
			return
		}
		_ = extend()
		c.dispatch(data)
	}
}

func (c *wsConn) writeLoop(ping, writeWait time.Duration) {
	ticker := time.NewTicker(ping)
	defer ticker.Stop()
	defer c.hub.unregister(c)

	write := func(kind int, data []byte) error {
		_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		return c.ws.WriteMessage(kind, data)
	}

	for {
		select {
		case <-c.closed:
			_ = write(websocket.CloseMessage, nil)
			return
		case frame := <-c.outbox:
			if write(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ticker.C:
			if write(websocket.PingMessage, nil) != nil {
				return
			}
		}
	}
}

func (c *wsConn) dispatch(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.fail("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(WSMessage{Type: WSTypePong, ID: msg.ID})
	case WSTypeSubscribe, WSTypeUnsubscribe:
		var body WSSubscribePayload
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &body); err != nil {
				c.fail(msg.ID, "invalid "+msg.Type+" payload")
				return
			}
		}
		c.subscribe(body.Channels, msg.Type == WSTypeSubscribe)

		key := "unsubscribed"
		if msg.Type == WSTypeSubscribe {
			key = "subscribed"
		}
		c.reply(WSMessage{Type: WSTypeResponse, ID: msg.ID, Payload: map[string]any{key: body.Channels}})
	default:
		c.fail(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *wsConn) subscribe(channels []string, add bool) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range channels {
		if add {
			c.channels[ch] = struct{}{}
		} else {
			delete(c.channels, ch)
		}
	}
}

func (c *wsConn) reply(msg WSMessage) {
	msg.Timestamp = stamp()
	frame, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Warn("encoding websocket reply failed", "type", msg.Type, "error", err)
		return
	}
	c.enqueue(frame)
}

func (c *wsConn) fail(id, message string) {
	c.reply(WSMessage{Type: WSTypeError, ID: id, Payload: map[string]string{"message": message}})
}
