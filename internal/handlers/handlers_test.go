package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btc-trading-sim/internal/auth"
	"btc-trading-sim/internal/services"
	"btc-trading-sim/internal/store"
)

type allowAll struct{ userID string }

func (a allowAll) Verify(ctx context.Context, token string) (auth.Session, error) {
	return auth.Session{UserID: a.userID, Username: "tester"}, nil
}

// newTestRouter wires the full HTTP surface against the in-memory store,
// mirroring how main assembles it.
func newTestRouter(t *testing.T) (*gin.Engine, *services.PriceCache) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mem := store.NewMemory()
	prices := services.NewPriceCache()
	engine := services.NewTradeEngine(mem, nil, "BTCUSDT")
	portfolios := services.NewPortfolioService(mem, prices, nil)

	trading := NewTradingHandler(engine, portfolios)
	portfolio := NewPortfolioHandler(portfolios)

	router := gin.New()
	authed := router.Group("/api", auth.RequireAuth(allowAll{userID: "user-1"}))
	authed.POST("/trading/trade", trading.PlaceTrade)
	authed.POST("/trading/buy", trading.Buy)
	authed.POST("/trading/sell", trading.Sell)
	authed.GET("/trading/history", trading.History)
	authed.GET("/portfolio", portfolio.GetPortfolio)
	authed.GET("/portfolio/positions", portfolio.GetPositions)
	authed.POST("/portfolio/reset", portfolio.Reset)
	return router, prices
}

func doJSON(router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer tok")
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPlaceTradeHappyPath(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/trading/trade", gin.H{
		"symbol": "BTCUSDT", "side": "BUY", "quantity": 0.5, "price": 60000,
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var resp struct {
		Message string `json:"message"`
		Trade   struct {
			ID     string `json:"id"`
			Symbol string `json:"symbol"`
			Side   string `json:"side"`
			Total  string `json:"total"`
		} `json:"trade"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Trade executed successfully", resp.Message)
	assert.NotEmpty(t, resp.Trade.ID)
	assert.Equal(t, "BTCUSDT", resp.Trade.Symbol)
	assert.Equal(t, "BUY", resp.Trade.Side)
	assert.Equal(t, "30000", resp.Trade.Total)
}

func TestBuyAndSellEndpoints(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/trading/buy", gin.H{
		"symbol": "BTCUSDT", "quantity": 1, "price": 50000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(router, http.MethodPost, "/api/trading/sell", gin.H{
		"symbol": "BTCUSDT", "quantity": 1, "price": 55000,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, "105000", summary.Balance)
}

func TestInsufficientBalanceResponseShape(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/trading/trade", gin.H{
		"symbol": "BTCUSDT", "side": "BUY", "quantity": 10, "price": 60000,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Insufficient balance", resp["error"])
	assert.Contains(t, resp, "required")
	assert.Contains(t, resp, "available")
}

func TestInsufficientHoldingsResponseShape(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/trading/sell", gin.H{
		"symbol": "BTCUSDT", "quantity": 2, "price": 60000,
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Insufficient holdings", resp["error"])
	assert.Contains(t, resp, "requested")
	assert.Contains(t, resp, "available")
}

func TestValidationRejections(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		name string
		body gin.H
	}{
		{"zero quantity", gin.H{"symbol": "BTCUSDT", "side": "BUY", "quantity": 0, "price": 60000}},
		{"negative price", gin.H{"symbol": "BTCUSDT", "side": "BUY", "quantity": 1, "price": -5}},
		{"missing symbol", gin.H{"side": "BUY", "quantity": 1, "price": 60000}},
		{"bad side", gin.H{"symbol": "BTCUSDT", "side": "HOLD", "quantity": 1, "price": 60000}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/api/trading/trade", tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestHistoryPagination(t *testing.T) {
	router, _ := newTestRouter(t)

	for i := 0; i < 3; i++ {
		w := doJSON(router, http.MethodPost, "/api/trading/buy", gin.H{
			"symbol": "BTCUSDT", "quantity": 0.1, "price": 50000,
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(router, http.MethodGet, "/api/trading/history?limit=2&offset=0", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Trades []json.RawMessage `json:"trades"`
		Total  int               `json:"total"`
		Limit  int               `json:"limit"`
		Offset int               `json:"offset"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Trades, 2)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.Limit)
	assert.Equal(t, 0, resp.Offset)
}

func TestPositionsReflectMarketPrice(t *testing.T) {
	router, prices := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/trading/buy", gin.H{
		"symbol": "BTCUSDT", "quantity": 1, "price": 50000,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	prices.Set("BTCUSDT", 55000)

	w = doJSON(router, http.MethodGet, "/api/portfolio/positions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Positions []struct {
			Symbol       string `json:"symbol"`
			CurrentPrice string `json:"currentPrice"`
		} `json:"positions"`
		TotalPositions int `json:"totalPositions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.TotalPositions)
	assert.Equal(t, "BTCUSDT", resp.Positions[0].Symbol)
	assert.Equal(t, "55000", resp.Positions[0].CurrentPrice)
}

func TestResetRestoresStartingBalance(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/api/trading/buy", gin.H{
		"symbol": "BTCUSDT", "quantity": 1, "price": 50000,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(router, http.MethodPost, "/api/portfolio/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/portfolio", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary struct {
		Balance string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Equal(t, store.StartingBalance.String(), summary.Balance)

	w = doJSON(router, http.MethodGet, "/api/trading/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Zero(t, history.Total)
}
