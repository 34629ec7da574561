// Package hub fans server events out to every connected push client.
// Broadcast is deliberately dumb: every client sees every event, nothing
// is replayed for late joiners, and a client whose send buffer is full
// loses the event rather than stalling the rest.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
)

// Envelope is the wire frame for every push event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// RequestHandler answers client-to-server requests (get-status,
// generate-more-ai). Replies go only to the asking client.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req Request, reply func(event string, data any))
}

// Request is one client-to-server frame.
type Request struct {
	Type     string `json:"type"`
	ChatID   string `json:"chatId,omitempty"`
	Message  string `json:"message,omitempty"`
	Context  string `json:"context,omitempty"`
	Language string `json:"language,omitempty"`
}

// Hub is the connection registry.
type Hub struct {
	register   chan *client
	unregister chan *client
	incoming   chan incomingRequest
	broadcast  chan []byte
	clients    map[*client]struct{}
	handler    RequestHandler
	logger     *zap.Logger
	count      atomic.Int64
}

// New creates a hub. handler may be nil; requests are then dropped.
func New(handler RequestHandler, logger *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		incoming:   make(chan incomingRequest, 256),
		broadcast:  make(chan []byte, 256),
		clients:    make(map[*client]struct{}),
		handler:    handler,
		logger:     logger,
	}
}

// SetHandler installs the request handler. The handler broadcasts through
// the hub, so one side has to be attached after both are constructed. Must
// be called before Run.
func (h *Hub) SetHandler(handler RequestHandler) {
	h.handler = handler
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				c.close(websocket.StatusGoingAway, "server shutdown")
			}
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Add(1)
		case c := <-h.unregister:
			if _, ok := h.clients[c]; !ok {
				continue
			}
			delete(h.clients, c)
			h.count.Add(-1)
			c.close(websocket.StatusNormalClosure, "bye")
		case frame := <-h.broadcast:
			for c := range h.clients {
				if !c.send(frame) {
					h.logger.Warn("push client too slow, dropping event")
				}
			}
		case req := <-h.incoming:
			if h.handler != nil {
				h.handler.HandleRequest(ctx, req.req, req.client.sendEvent)
			}
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int64 {
	return h.count.Load()
}

// Broadcast delivers one event to every currently connected client.
// Clients connecting afterwards never see it.
func (h *Hub) Broadcast(event string, data any) {
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		h.logger.Error("failed to encode push event", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case h.broadcast <- frame:
	default:
		h.logger.Warn("broadcast queue full, dropping event", zap.String("event", event))
	}
}

// HandleWS upgrades the request and runs the connection until it drops.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // same-origin is not meaningful for a local daemon
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := &client{
		conn:   conn,
		hub:    h,
		ctx:    ctx,
		cancel: cancel,
		out:    make(chan []byte, sendBuffer),
	}

	h.register <- c

	go c.writeLoop()
	c.readLoop()
}

type client struct {
	conn      *websocket.Conn
	hub       *Hub
	ctx       context.Context
	cancel    context.CancelFunc
	out       chan []byte
	closeOnce sync.Once
}

type incomingRequest struct {
	client *client
	req    Request
}

func (c *client) send(frame []byte) bool {
	select {
	case c.out <- frame:
		return true
	default:
		return false
	}
}

func (c *client) sendEvent(event string, data any) {
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return
	}
	_ = c.send(frame)
}

func (c *client) readLoop() {
	// After hub shutdown nothing receives on unregister; the ctx branch
	// lets the handler wind down instead of blocking forever.
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.ctx.Done():
		}
	}()

	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
			continue
		}
		select {
		case c.hub.incoming <- incomingRequest{client: c, req: req}:
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case frame, ok := <-c.out:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				select {
				case c.hub.unregister <- c:
				case <-c.ctx.Done():
				}
				return
			}
		}
	}
}

func (c *client) close(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.out)
		_ = c.conn.Close(status, reason)
	})
}
