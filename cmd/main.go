package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"btc-trading-sim/config"
	"btc-trading-sim/internal/auth"
	"btc-trading-sim/internal/handlers"
	"btc-trading-sim/internal/services"
	"btc-trading-sim/internal/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

func main() {
	cfg := config.Load()

	ledger, err := newStore(cfg)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	defer ledger.Close()

	verifier := newVerifier(cfg)

	// Process-scoped state, constructed once, passed by reference.
	prices := services.NewPriceCache()
	hub := services.NewHub()
	relay := services.NewRelay(cfg.DataServerURL, cfg.Symbol, hub, prices)
	hub.SetBackfill(relay)

	engine := services.NewTradeEngine(ledger, hub, cfg.Symbol)
	portfolios := services.NewPortfolioService(ledger, prices, hub)

	go hub.Run()
	go relay.Run()
	defer relay.Close()

	router := gin.Default()
	router.Use(corsMiddleware())

	tradingHandler := handlers.NewTradingHandler(engine, portfolios)
	portfolioHandler := handlers.NewPortfolioHandler(portfolios)
	marketHandler := handlers.NewMarketHandler(relay, cfg.Symbol)
	requireAuth := auth.RequireAuth(verifier)

	router.GET("/health", func(c *gin.Context) {
		if err := ledger.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "message": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "OK",
			"message": "Trading Simulator API is running",
		})
	})

	// Trading
	router.POST("/api/trading/trade", requireAuth, tradingHandler.PlaceTrade)
	router.POST("/api/trading/buy", requireAuth, tradingHandler.Buy)
	router.POST("/api/trading/sell", requireAuth, tradingHandler.Sell)
	router.GET("/api/trading/history", requireAuth, tradingHandler.History)
	router.GET("/api/trading/symbols", marketHandler.Symbols)

	// Portfolio
	router.GET("/api/portfolio", requireAuth, portfolioHandler.GetPortfolio)
	router.GET("/api/portfolio/positions", requireAuth, portfolioHandler.GetPositions)
	router.POST("/api/portfolio/reset", requireAuth, portfolioHandler.Reset)

	// Market data
	router.GET("/api/market/symbols", marketHandler.Symbols)
	router.GET("/api/market/tracked", marketHandler.Tracked)
	router.GET("/api/market/status", marketHandler.Status)

	// WebSocket endpoint. Authentication is optional here: anonymous clients
	// get market data only, authenticated ones also receive their own trade
	// and portfolio events.
	router.GET("/ws", func(c *gin.Context) {
		userID := ""
		if token := auth.BearerToken(c.Request); token != "" {
			if session, err := verifier.Verify(c.Request.Context(), token); err == nil {
				userID = session.UserID
			}
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("failed to upgrade connection: %v", err)
			return
		}

		client := hub.RegisterClient(conn, userID)
		go client.WritePump()
		go client.ReadPump()
	})

	fmt.Printf("🚀 Trading Simulator Backend running on port %s\n", cfg.Port)
	fmt.Printf("🔌 WebSocket available at ws://localhost:%s/ws\n", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatal(err)
	}
}

func newStore(cfg config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Println("⚠️ using in-memory ledger, state is lost on restart")
		return store.NewMemory(), nil
	default:
		pg, err := store.NewPostgres(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(context.Background()); err != nil {
			pg.Close()
			return nil, err
		}
		log.Println("✅ connected to PostgreSQL")
		return pg, nil
	}
}

func newVerifier(cfg config.Config) auth.Verifier {
	if cfg.AuthMode == "token" {
		log.Println("⚠️ using local token auth, intended for development only")
		return auth.NewTokenVerifier(cfg.JWTSecret)
	}
	return auth.NewServiceVerifier(cfg.AuthServiceURL)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
