package services

import (
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"btc-trading-sim/internal/models"
)

const (
	reconnectBase     = 1 * time.Second
	reconnectCap      = 5 * time.Second
	backfillInterval  = "1m"
	backfillCandles   = 100
	backfillPeriodOne = time.Minute
)

// Relay maintains the single long-lived connection to the upstream market
// data server, independent of how many downstream clients exist. Incoming
// candles, both live ticks and historical backfill, flow through one path:
// update the price cache, then broadcast to the symbol's room.
//
// Upstream protocol, one JSON object per message:
//
//	→ {"type":"request_historical_data","symbol":...,"interval":...,"start_time_ms":...,"end_time_ms":...,"limit":...}
//	← {"type":"historical_data_response","data":[Candle...]}
//	← {"type":"candle_update","candle":Candle}
//	← {"type":"error_response","message":...,"details":...}
type Relay struct {
	url    string
	symbol string // always-tracked default symbol
	hub    *Hub
	prices *PriceCache

	mu      sync.Mutex
	conn    *websocket.Conn
	tracked map[string]bool // never cleared, not even on disconnect

	done chan struct{}
}

func NewRelay(url, symbol string, hub *Hub, prices *PriceCache) *Relay {
	return &Relay{
		url:     url,
		symbol:  symbol,
		hub:     hub,
		prices:  prices,
		tracked: map[string]bool{symbol: true},
		done:    make(chan struct{}),
	}
}

// Run dials the data server and keeps the connection alive with capped
// exponential backoff. It is a supervised long-lived task: it retries until
// Close is called. Upstream protocol errors are logged and absorbed; they
// never reach downstream clients.
func (r *Relay) Run() {
	attempt := 0
	for {
		select {
		case <-r.done:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(r.url, nil)
		if err != nil {
			attempt++
			delay := backoff(attempt)
			log.Printf("❌ market data connection failed (attempt %d): %v, retrying in %s", attempt, err, delay)
			select {
			case <-r.done:
				return
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		log.Println("✅ connected to market data server")
		r.setConn(conn)
		r.requestAllBackfills()

		r.readLoop(conn)
		r.setConn(nil)
		conn.Close()
		log.Println("❌ disconnected from market data server")
	}
}

// Close stops the reconnect loop and drops the upstream connection.
func (r *Relay) Close() {
	close(r.done)
	r.mu.Lock()
	if r.conn != nil {
		r.conn.Close()
	}
	r.mu.Unlock()
}

// Track marks a symbol as subscribed-to by some client. Newly seen symbols
// get a historical backfill request if the upstream connection is live. The
// tracked set only ever grows.
func (r *Relay) Track(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tracked[symbol] {
		return
	}
	r.tracked[symbol] = true
	if r.conn != nil {
		r.sendBackfillRequest(r.conn, symbol)
	}
}

// Tracked lists every symbol any client has subscribed to in this process's
// lifetime.
func (r *Relay) Tracked() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.tracked))
	for sym := range r.tracked {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// URL reports the configured data server address.
func (r *Relay) URL() string { return r.url }

func (r *Relay) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		r.handleMessage(data)
	}
}

func (r *Relay) handleMessage(data []byte) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		log.Printf("ignoring malformed market data message: %v", err)
		return
	}

	switch head.Type {
	case "candle_update":
		var msg struct {
			Candle models.Candle `json:"candle"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("bad candle_update payload: %v", err)
			return
		}
		r.handleCandle(msg.Candle)

	case "historical_data_response":
		var msg struct {
			Data []models.Candle `json:"data"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("bad historical_data_response payload: %v", err)
			return
		}
		log.Printf("📊 received %d historical candles", len(msg.Data))
		// Backfill replays through the exact same path as live ticks.
		for _, candle := range msg.Data {
			r.handleCandle(candle)
		}

	case "error_response":
		var msg struct {
			Message string `json:"message"`
			Details any    `json:"details"`
		}
		if err := json.Unmarshal(data, &msg); err == nil {
			log.Printf("❌ data server error: %s %v", msg.Message, msg.Details)
		}
	}
}

func (r *Relay) handleCandle(candle models.Candle) {
	if candle.Symbol == "" {
		return
	}
	r.prices.Set(candle.Symbol, candle.Close)
	if r.hub != nil {
		r.hub.BroadcastCandle(candle)
	}
}

func (r *Relay) setConn(conn *websocket.Conn) {
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
}

func (r *Relay) requestAllBackfills() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return
	}
	for sym := range r.tracked {
		r.sendBackfillRequest(r.conn, sym)
	}
}

// sendBackfillRequest asks for the last backfillCandles one-minute candles.
// Callers hold r.mu, which also serializes writes on the connection.
func (r *Relay) sendBackfillRequest(conn *websocket.Conn, symbol string) {
	now := time.Now()
	req := backfillRequest{
		Type:        "request_historical_data",
		Symbol:      symbol,
		Interval:    backfillInterval,
		StartTimeMS: now.Add(-backfillCandles * backfillPeriodOne).UnixMilli(),
		EndTimeMS:   now.UnixMilli(),
		Limit:       backfillCandles,
	}
	if err := conn.WriteJSON(req); err != nil {
		log.Printf("backfill request for %s failed: %v", symbol, err)
		return
	}
	log.Printf("📊 requested %d historical candles for %s", backfillCandles, symbol)
}

type backfillRequest struct {
	Type        string `json:"type"`
	Symbol      string `json:"symbol"`
	Interval    string `json:"interval"`
	StartTimeMS int64  `json:"start_time_ms"`
	EndTimeMS   int64  `json:"end_time_ms"`
	Limit       int    `json:"limit"`
}

func backoff(attempt int) time.Duration {
	delay := reconnectBase << (attempt - 1)
	if delay > reconnectCap || delay <= 0 {
		return reconnectCap
	}
	return delay
}
