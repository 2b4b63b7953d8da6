package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"btc-trading-sim/internal/services"
)

type MarketHandler struct {
	relay  *services.Relay
	symbol string
}

func NewMarketHandler(relay *services.Relay, symbol string) *MarketHandler {
	return &MarketHandler{relay: relay, symbol: symbol}
}

// Symbols handles GET /api/market/symbols and GET /api/trading/symbols.
// Only one instrument is tradable.
func (h *MarketHandler) Symbols(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"symbols": []gin.H{{
			"symbol":        h.symbol,
			"name":          "Bitcoin",
			"description":   "Bitcoin vs Tether USD",
			"type":          "crypto",
			"baseCurrency":  "BTC",
			"quoteCurrency": "USDT",
		}},
		"message": "Available symbol for trading",
	})
}

// Tracked handles GET /api/market/tracked.
func (h *MarketHandler) Tracked(c *gin.Context) {
	tracked := h.relay.Tracked()
	c.JSON(http.StatusOK, gin.H{
		"trackedSymbols": tracked,
		"count":          len(tracked),
		"message":        "Symbols currently being tracked for market data",
	})
}

// Status handles GET /api/market/status.
func (h *MarketHandler) Status(c *gin.Context) {
	tracked := h.relay.Tracked()
	c.JSON(http.StatusOK, gin.H{
		"dataServerUrl":   h.relay.URL(),
		"availableSymbol": h.symbol,
		"trackedSymbols":  tracked,
		"trackedCount":    len(tracked),
		"message":         "Market data service status",
	})
}
