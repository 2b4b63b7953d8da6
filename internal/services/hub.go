package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"btc-trading-sim/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// BackfillRequester is how the hub tells the relay a client cares about a
// symbol, so the relay can request historical candles for it.
type BackfillRequester interface {
	Track(symbol string)
}

// Hub owns the downstream client registry: which connections exist, which
// symbols each is subscribed to (room semantics) and which user each belongs
// to. All state is confined to the Run goroutine; everything else talks to it
// over channels.
type Hub struct {
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool // symbol -> subscribers
	users   map[string]map[*Client]bool // userID -> connections

	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	outbound    chan envelope
	roomSize    chan roomSizeReq

	backfill BackfillRequester
}

type subscription struct {
	client  *Client
	symbols []string
}

// envelope is one outbound message: room broadcast when symbol is set,
// user-targeted when userID is set.
type envelope struct {
	symbol  string
	userID  string
	payload []byte
}

type roomSizeReq struct {
	symbol string
	resp   chan int
}

// clientMessage is what downstream clients send: subscribe/unsubscribe plus
// the symbols the request covers.
type clientMessage struct {
	Event   string   `json:"event"`
	Symbols []string `json:"symbols"`
}

type serverMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		rooms:       make(map[string]map[*Client]bool),
		users:       make(map[string]map[*Client]bool),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		outbound:    make(chan envelope, 64),
		roomSize:    make(chan roomSizeReq),
	}
}

// SetBackfill wires the relay in after construction; hub and relay reference
// each other so one of the edges is set late.
func (h *Hub) SetBackfill(b BackfillRequester) {
	h.backfill = b
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			if client.userID != "" {
				if h.users[client.userID] == nil {
					h.users[client.userID] = make(map[*Client]bool)
				}
				h.users[client.userID][client] = true
			}
			log.Printf("🔌 client connected. Total clients: %d", len(h.clients))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.removeClient(client)
				log.Printf("🔌 client disconnected. Total clients: %d", len(h.clients))
			}

		case sub := <-h.subscribe:
			for _, symbol := range sub.symbols {
				if h.rooms[symbol] == nil {
					h.rooms[symbol] = make(map[*Client]bool)
				}
				h.rooms[symbol][sub.client] = true
				if h.backfill != nil {
					h.backfill.Track(symbol)
				}
			}

		case sub := <-h.unsubscribe:
			for _, symbol := range sub.symbols {
				delete(h.rooms[symbol], sub.client)
			}

		case env := <-h.outbound:
			h.deliver(env)

		case req := <-h.roomSize:
			req.resp <- len(h.rooms[req.symbol])
		}
	}
}

func (h *Hub) deliver(env envelope) {
	var targets map[*Client]bool
	switch {
	case env.symbol != "":
		targets = h.rooms[env.symbol]
	case env.userID != "":
		targets = h.users[env.userID]
	}
	for client := range targets {
		select {
		case client.send <- env.payload:
		default:
			// Slow consumer: drop the connection rather than block fan-out.
			h.removeClient(client)
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for _, room := range h.rooms {
		delete(room, client)
	}
	if client.userID != "" {
		delete(h.users[client.userID], client)
		if len(h.users[client.userID]) == 0 {
			delete(h.users, client.userID)
		}
	}
}

// BroadcastCandle fans one candle out to every client subscribed to its
// symbol.
func (h *Hub) BroadcastCandle(candle models.Candle) {
	h.emit(envelope{symbol: candle.Symbol}, "candle", candle)
}

// NotifyTradeExecuted delivers a trade confirmation to the connections of
// the user that owns it.
func (h *Hub) NotifyTradeExecuted(userID string, trade models.Trade) {
	h.emit(envelope{userID: userID}, "trade-executed", trade)
}

// NotifyPortfolioChanged tells the user's connections to re-fetch portfolio
// state. Carries only a timestamp.
func (h *Hub) NotifyPortfolioChanged(userID string) {
	h.emit(envelope{userID: userID}, "portfolio-update", map[string]string{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// RoomSize reports how many clients are subscribed to symbol.
func (h *Hub) RoomSize(symbol string) int {
	resp := make(chan int, 1)
	h.roomSize <- roomSizeReq{symbol: symbol, resp: resp}
	return <-resp
}

func (h *Hub) emit(env envelope, event string, data any) {
	payload, err := json.Marshal(serverMessage{Event: event, Data: data})
	if err != nil {
		log.Printf("error marshaling %s event: %v", event, err)
		return
	}
	env.payload = payload
	h.outbound <- env
}

// Client is one downstream websocket connection. userID is empty for
// anonymous connections, which receive market data but no user events.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func (h *Hub) RegisterClient(conn *websocket.Conn, userID string) *Client {
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}
	h.register <- client
	return client
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("ignoring malformed client message: %v", err)
			continue
		}
		switch msg.Event {
		case "subscribe":
			c.hub.subscribe <- subscription{client: c, symbols: msg.Symbols}
		case "unsubscribe":
			c.hub.unsubscribe <- subscription{client: c, symbols: msg.Symbols}
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
