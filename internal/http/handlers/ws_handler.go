package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/ads-marketplace/dealdesk/internal/events"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
	wsSendBuffer = 64
)

// wsConn is the part of *websocket.Conn the writer needs.
type wsConn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// wsClient owns one connection. Only its writePump writes to conn.
type wsClient struct {
	conn   wsConn
	dealID int64
	send   chan []byte
}

// WSHub fans deal events out to websocket clients. A client subscribed with
// deal_id=0 receives every deal's events. A client that cannot keep up is
// disconnected instead of slowing down the publisher.
type WSHub struct {
	token       string
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[int64]map[*wsClient]struct{}
}

func NewWSHub(token string, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		token:       token,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[int64]map[*wsClient]struct{}),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	if err := h.subscriber.Subscribe(ctx, events.DealChannel, h.broadcast); err != nil {
		h.log.Error("ws hub subscribe failed", zap.Error(err))
	}
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	var slow []*wsClient
	h.mu.RLock()
	deliver := func(clients map[*wsClient]struct{}) {
		for c := range clients {
			select {
			case c.send <- data:
			default:
				slow = append(slow, c)
			}
		}
	}
	deliver(h.connections[0])
	if event.DealID != 0 {
		deliver(h.connections[event.DealID])
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("ws client too slow, disconnecting", zap.Int64("deal_id", c.dealID))
		h.unregister(c)
		_ = c.conn.Close()
	}
}

func (h *WSHub) register(dealID int64, conn wsConn) *wsClient {
	c := &wsClient{conn: conn, dealID: dealID, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	if h.connections[dealID] == nil {
		h.connections[dealID] = make(map[*wsClient]struct{})
	}
	h.connections[dealID][c] = struct{}{}
	h.mu.Unlock()
	go h.writePump(c)
	return c
}

// unregister is safe to call more than once.
func (h *WSHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients := h.connections[c.dealID]
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.connections, c.dealID)
	}
	close(c.send)
}

func (h *WSHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.log.Debug("ws write failed", zap.Int64("deal_id", c.dealID), zap.Error(err))
				h.unregister(c)
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.unregister(c)
				_ = c.conn.Close()
				return
			}
		}
	}
}

// Clients returns the number of open connections.
func (h *WSHub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.connections {
		n += len(clients)
	}
	return n
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	// браузер не умеет слать заголовки в websocket, токен идёт в query
	if h.token != "" && subtle.ConstantTimeCompare([]byte(conn.Query("token")), []byte(h.token)) != 1 {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	var dealID int64
	if raw := conn.Query("deal_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid deal_id"}`))
			conn.Close()
			return
		}
		dealID = id
	}

	client := h.register(dealID, conn)
	defer func() {
		h.unregister(client)
		conn.Close()
	}()

	// Read loop (keep alive / pongs)
	conn.SetReadLimit(4 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
