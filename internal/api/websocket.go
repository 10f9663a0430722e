package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"egg-arena/internal/config"
	"egg-arena/internal/game"
	"egg-arena/internal/metrics"
	"egg-arena/internal/protocol"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

// Frame outcomes reported to metrics.
const (
	frameQueued    = "queued"
	frameCoalesced = "coalesced"
	frameOverflow  = "overflow"
)

// Session is the subset of the engine a connection drives.
type Session interface {
	Join(ctx context.Context, connID string, jp protocol.JoinPayload) error
	Move(ctx context.Context, connID string, mp protocol.MovePayload) error
	Collect(ctx context.Context, connID, nutrientID string) error
	Leave(connID string)
}

// Client is one WebSocket connection and its bounded outbound queue.
type Client struct {
	id    string
	ip    string
	conn  *websocket.Conn
	codec protocol.Codec
	send  chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the connection id the engine knows this client by.
func (c *Client) ID() string { return c.id }

// enqueue never blocks. Coalescable frames are dropped when the queue is
// full; any other overflow disconnects the client, since it would miss
// state it cannot recover.
func (c *Client) enqueue(frame []byte, coalescable bool) string {
	select {
	case <-c.done:
		return frameOverflow
	default:
	}

	select {
	case c.send <- frame:
		return frameQueued
	default:
	}
	if coalescable {
		return frameCoalesced
	}
	c.close()
	return frameOverflow
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub tracks live connections and implements game.Broadcaster.
type Hub struct {
	log       *zap.Logger
	upgrader  websocket.Upgrader
	wsLimiter *WebSocketRateLimiter

	maxClients int
	queueSize  int

	mu      sync.RWMutex
	clients map[string]*Client

	// pumps counts read pumps that have not yet handed their leave to the session.
	pumps sync.WaitGroup
}

var _ game.Broadcaster = (*Hub)(nil)

// NewHub creates a hub enforcing the connection limits in cfg.
func NewHub(cfg config.ServerConfig, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = DefaultCORSOrigins
	}
	queue := cfg.OutboundQueueSize
	if queue <= 0 {
		queue = config.DefaultServer().OutboundQueueSize
	}

	return &Hub{
		log: log.Named("ws"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(origins),
		},
		wsLimiter:  NewWebSocketRateLimiter(cfg.MaxConnectionsPerIP),
		maxClients: cfg.MaxPlayers,
		queueSize:  queue,
		clients:    make(map[string]*Client),
	}
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send delivers an event to one connection.
func (h *Hub) Send(connID, event string, data any) {
	h.mu.RLock()
	c := h.clients[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}

	frame, err := c.codec.Encode(event, data)
	if err != nil {
		h.log.Error("encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	h.deliver(c, frame, false)
}

// Broadcast delivers an event to every connection except one.
func (h *Hub) Broadcast(event string, data any, except string) {
	h.fanout(event, data, except, false)
}

// BroadcastLatest delivers a full-state event that slow clients may skip.
func (h *Hub) BroadcastLatest(event string, data any) {
	h.fanout(event, data, "", true)
}

func (h *Hub) fanout(event string, data any, except string, coalescable bool) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for id, c := range h.clients {
		if id != except {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	// Encode once per codec in use.
	frames := make(map[string][]byte, 2)
	for _, c := range targets {
		frame, ok := frames[c.codec.Name()]
		if !ok {
			var err error
			frame, err = c.codec.Encode(event, data)
			if err != nil {
				h.log.Error("encode failed", zap.String("event", event), zap.Error(err))
				return
			}
			frames[c.codec.Name()] = frame
		}
		h.deliver(c, frame, coalescable)
	}
}

func (h *Hub) deliver(c *Client, frame []byte, coalescable bool) {
	outcome := c.enqueue(frame, coalescable)
	metrics.RecordFrame(outcome)
	if outcome == frameOverflow {
		h.log.Warn("client too slow, disconnecting", zap.String("id", c.id), zap.String("ip", c.ip))
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	count := len(h.clients)
	h.mu.Unlock()

	metrics.SetWSConnections(count)
	h.log.Info("client connected", zap.String("id", c.id), zap.String("ip", c.ip), zap.Int("total", count))
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		h.wsLimiter.Release(c.ip)
	}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.SetWSConnections(count)
	h.log.Info("client disconnected", zap.String("id", c.id), zap.Int("remaining", count))
}

// CloseAll disconnects every client.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.close()
	}
}

// Wait blocks until every connection has finished its read pump, and so
// submitted its leave, or ctx ends.
func (h *Hub) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ServeWS upgrades the request and runs the connection until it closes.
// The codec is chosen with ?codec=json|msgpack.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sess Session) {
	ip := GetClientIP(r)

	codec, err := protocol.CodecFor(r.URL.Query().Get("codec"))
	if err != nil {
		metrics.RecordConnectionRejected("invalid")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.maxClients > 0 && h.ClientCount() >= h.maxClients {
		h.log.Warn("connection rejected: total limit reached", zap.Int("limit", h.maxClients))
		metrics.RecordConnectionRejected("ws_total_limit")
		writeError(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		h.log.Warn("connection rejected: per-IP limit reached", zap.String("ip", ip))
		metrics.RecordConnectionRejected("ws_ip_limit")
		writeError(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("upgrade failed", zap.String("ip", ip), zap.Error(err))
		h.wsLimiter.Release(ip)
		return
	}

	c := &Client{
		id:    uuid.NewString(),
		ip:    ip,
		conn:  conn,
		codec: codec,
		send:  make(chan []byte, h.queueSize),
		done:  make(chan struct{}),
	}
	h.pumps.Add(1)
	defer h.pumps.Done()
	h.register(c)

	go h.writePump(c)
	h.readPump(c, sess)
}

// writePump drains the client's queue and keeps the connection alive.
func (h *Hub) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	msgType := websocket.TextMessage
	if c.codec.Binary() {
		msgType = websocket.BinaryMessage
	}

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(msgType, frame); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// readPump decodes inbound events in arrival order and feeds them to the
// session. It removes the player when the connection ends.
func (h *Hub) readPump(c *Client, sess Session) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.close()
		h.unregister(c)
		sess.Leave(c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Unblock ReadMessage when the hub closes the client.
	go func() {
		select {
		case <-c.done:
			_ = c.conn.SetReadDeadline(time.Now())
		case <-ctx.Done():
		}
	}()

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("read failed", zap.String("id", c.id), zap.Error(err))
			}
			return
		}

		env, err := c.codec.Decode(frame)
		if err != nil {
			h.log.Debug("bad frame", zap.String("id", c.id), zap.Error(err))
			continue
		}
		if err := h.dispatch(ctx, c, sess, env); err != nil {
			if errors.Is(err, game.ErrEngineStopped) {
				return
			}
			h.log.Debug("event ignored",
				zap.String("id", c.id),
				zap.String("event", env.Event),
				zap.Error(err))
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, sess Session, env protocol.Envelope) error {
	switch env.Event {
	case protocol.MsgJoin:
		var jp protocol.JoinPayload
		if err := c.codec.DecodeData(env, &jp); err != nil && !errors.Is(err, protocol.ErrEmptyPayload) {
			return err
		}
		err := sess.Join(ctx, c.id, jp)
		if errors.Is(err, game.ErrPlayerExists) {
			h.log.Warn("duplicate join", zap.String("id", c.id))
		}
		return err

	case protocol.MsgMove:
		var mp protocol.MovePayload
		if err := c.codec.DecodeData(env, &mp); err != nil {
			return err
		}
		return sess.Move(ctx, c.id, mp)

	case protocol.MsgCollect:
		id, err := protocol.DecodeNutrientID(c.codec, env)
		if err != nil {
			return err
		}
		return sess.Collect(ctx, c.id, id)

	default:
		return errUnknownEvent
	}
}

var errUnknownEvent = errors.New("api: unknown event")
