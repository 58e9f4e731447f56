// Package feed streams executed trades to websocket subscribers.
package feed

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"github.com/efreitasn/minibroker/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	clientBuffer   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS is enforced by the HTTP middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// TradeMessage is the wire form of one trade on the stream.
type TradeMessage struct {
	Type        string    `json:"type"`
	TradeID     uint64    `json:"trade_id"`
	Symbol      string    `json:"symbol"`
	Price       int64     `json:"price"`
	Quantity    int64     `json:"quantity"`
	BuyOrderID  uint64    `json:"buy_order_id"`
	SellOrderID uint64    `json:"sell_order_id"`
	Aggressor   string    `json:"aggressor"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// SubscribeRequest is sent by clients to narrow or widen the symbols they
// receive. A client with no subscriptions receives every symbol.
type SubscribeRequest struct {
	Op      string   `json:"op"` // "subscribe" | "unsubscribe"
	Symbols []string `json:"symbols"`
}

// SubscribeAck confirms a subscription change and lists the client's
// current symbols.
type SubscribeAck struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

type subscription struct {
	client *client
	req    SubscribeRequest
}

// Hub fans trades out to connected clients. All client state is owned by
// the Run goroutine.
type Hub struct {
	logger     zerolog.Logger
	trades     chan []*domain.Trade
	register   chan *client
	unregister chan *client
	subs       chan subscription
	done       chan struct{}

	clients map[*client]struct{}
	count   atomic.Int64
	dropped atomic.Uint64
}

// NewHub creates a hub whose publish queue holds up to buffer batches.
func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		logger:     logger.With().Str("component", "feed").Logger(),
		trades:     make(chan []*domain.Trade, buffer),
		register:   make(chan *client),
		unregister: make(chan *client),
		subs:       make(chan subscription),
		done:       make(chan struct{}),
		clients:    make(map[*client]struct{}),
	}
}

// Publish queues a batch of trades for delivery. It never blocks: when the
// queue is full the batch is dropped and counted.
func (h *Hub) Publish(trades []*domain.Trade) {
	select {
	case h.trades <- trades:
	default:
		h.dropped.Add(1)
		h.logger.Warn().Int("trades", len(trades)).Msg("feed queue full, dropping batch")
	}
}

// Dropped returns the number of batches dropped by Publish.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Run delivers published trades until t starts dying. Every client is
// disconnected on return.
func (h *Hub) Run(t *tomb.Tomb) error {
	defer close(h.done)
	defer func() {
		for c := range h.clients {
			h.drop(c)
		}
	}()

	for {
		select {
		case <-t.Dying():
			return nil

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug().Str("client", c.id).Int("clients", len(h.clients)).Msg("client connected")

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Debug().Str("client", c.id).Int("clients", len(h.clients)).Msg("client disconnected")
			}

		case s := <-h.subs:
			h.applySubscription(s)

		case batch := <-h.trades:
			h.broadcast(batch)
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

func (h *Hub) applySubscription(s subscription) {
	c := s.client
	if _, ok := h.clients[c]; !ok {
		return
	}
	switch s.req.Op {
	case "subscribe":
		for _, sym := range s.req.Symbols {
			c.symbols[sym] = struct{}{}
		}
	case "unsubscribe":
		for _, sym := range s.req.Symbols {
			delete(c.symbols, sym)
		}
	default:
		h.logger.Debug().Str("client", c.id).Str("op", s.req.Op).Msg("unknown op")
		return
	}

	ack := SubscribeAck{Type: "subscribed", Symbols: make([]string, 0, len(c.symbols))}
	for sym := range c.symbols {
		ack.Symbols = append(ack.Symbols, sym)
	}
	sort.Strings(ack.Symbols)
	msg, err := json.Marshal(ack)
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal ack")
		return
	}
	h.send(c, msg)
}

func (h *Hub) broadcast(batch []*domain.Trade) {
	for _, t := range batch {
		msg, err := json.Marshal(TradeMessage{
			Type:        "trade",
			TradeID:     t.TradeID,
			Symbol:      t.Symbol,
			Price:       t.Price,
			Quantity:    t.Quantity,
			BuyOrderID:  t.BuyOrderID,
			SellOrderID: t.SellOrderID,
			Aggressor:   string(t.Aggressor),
			ExecutedAt:  t.ExecutedAt,
		})
		if err != nil {
			h.logger.Error().Err(err).Uint64("trade_id", t.TradeID).Msg("marshal trade")
			continue
		}
		for c := range h.clients {
			if c.wants(t.Symbol) {
				h.send(c, msg)
			}
		}
	}
}

// send queues msg for c, disconnecting clients that cannot keep up.
func (h *Hub) send(c *client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn().Str("client", c.id).Msg("client too slow, disconnecting")
		h.drop(c)
	}
}

// ServeWS upgrades the request to a websocket and attaches it to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "feed stopped", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, clientBuffer),
		id:      conn.RemoteAddr().String(),
		symbols: make(map[string]struct{}),
	}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
