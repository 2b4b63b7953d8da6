package services

import "sync"

// PriceCache holds the latest known close per symbol. The market-data relay
// is the only writer; portfolio valuation reads it. It is advisory and may
// be briefly stale: the ledger, not the cache, is the source of truth. It
// is constructed once in main and injected everywhere it is needed.
type PriceCache struct {
	mu   sync.RWMutex
	last map[string]float64
}

func NewPriceCache() *PriceCache {
	return &PriceCache{last: make(map[string]float64)}
}

// Set overwrites the latest close for symbol.
func (c *PriceCache) Set(symbol string, close float64) {
	c.mu.Lock()
	c.last[symbol] = close
	c.mu.Unlock()
}

// Last returns the latest close for symbol, if any tick has been seen.
func (c *PriceCache) Last(symbol string) (float64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.last[symbol]
	return v, ok
}
