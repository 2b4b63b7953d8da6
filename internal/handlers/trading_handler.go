package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"btc-trading-sim/internal/auth"
	"btc-trading-sim/internal/models"
	"btc-trading-sim/internal/services"
	"btc-trading-sim/internal/trading"
)

type TradingHandler struct {
	engine     *services.TradeEngine
	portfolios *services.PortfolioService
}

func NewTradingHandler(engine *services.TradeEngine, portfolios *services.PortfolioService) *TradingHandler {
	return &TradingHandler{engine: engine, portfolios: portfolios}
}

type tradeRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Side     string  `json:"side" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
	Price    float64 `json:"price" binding:"required,gt=0"`
}

type sideFixedRequest struct {
	Symbol   string  `json:"symbol" binding:"required"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
	Price    float64 `json:"price" binding:"required,gt=0"`
}

// PlaceTrade handles POST /api/trading/trade.
func (h *TradingHandler) PlaceTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "message": err.Error()})
		return
	}
	h.execute(c, req.Symbol, models.Side(req.Side), req.Quantity, req.Price)
}

// Buy and Sell are the simplified endpoints: same engine, side fixed.
func (h *TradingHandler) Buy(c *gin.Context) {
	var req sideFixedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "message": err.Error()})
		return
	}
	h.execute(c, req.Symbol, models.SideBuy, req.Quantity, req.Price)
}

func (h *TradingHandler) Sell(c *gin.Context) {
	var req sideFixedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input", "message": err.Error()})
		return
	}
	h.execute(c, req.Symbol, models.SideSell, req.Quantity, req.Price)
}

func (h *TradingHandler) execute(c *gin.Context, symbol string, side models.Side, quantity, price float64) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	trade, err := h.engine.ExecuteTrade(c.Request.Context(), userID, symbol, side,
		decimal.NewFromFloat(quantity), decimal.NewFromFloat(price))
	if err != nil {
		writeTradeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Trade executed successfully",
		"trade":   trade,
	})
}

// History handles GET /api/trading/history?limit=&offset=.
func (h *TradingHandler) History(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	trades, total, err := h.portfolios.History(c.Request.Context(), userID, limit, offset)
	if err != nil {
		log.Printf("❌ failed to get trade history: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get trade history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// writeTradeError maps the rejection taxonomy to structured responses.
// Business rejections carry the numbers the caller needs; infrastructure
// failures get a generic try-again without internal detail.
func writeTradeError(c *gin.Context, err error) {
	var invalid *trading.InvalidOrderError
	var balance *trading.InsufficientBalanceError
	var holdings *trading.InsufficientHoldingsError

	switch {
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid order",
			"message": invalid.Reason,
		})
	case errors.As(err, &balance):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Insufficient balance",
			"required":  balance.Required,
			"available": balance.Available,
		})
	case errors.As(err, &holdings):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Insufficient holdings",
			"requested": holdings.Requested,
			"available": holdings.Available,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Trade execution failed",
			"message": "Please try again",
		})
	}
}
