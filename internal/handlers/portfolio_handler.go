package handlers

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"btc-trading-sim/internal/auth"
	"btc-trading-sim/internal/services"
	"btc-trading-sim/internal/store"
)

type PortfolioHandler struct {
	portfolios *services.PortfolioService
}

func NewPortfolioHandler(portfolios *services.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolios: portfolios}
}

// GetPortfolio handles GET /api/portfolio.
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	summary, err := h.portfolios.Summary(c.Request.Context(), userID)
	if err != nil {
		log.Printf("❌ failed to get portfolio: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get portfolio"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetPositions handles GET /api/portfolio/positions.
func (h *PortfolioHandler) GetPositions(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	positions, err := h.portfolios.Positions(c.Request.Context(), userID)
	if err != nil {
		log.Printf("❌ failed to get positions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get positions"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"positions":      positions,
		"totalPositions": len(positions),
	})
}

// Reset handles POST /api/portfolio/reset.
func (h *PortfolioHandler) Reset(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	if err := h.portfolios.Reset(c.Request.Context(), userID); err != nil {
		log.Printf("❌ failed to reset portfolio: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset portfolio"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Portfolio reset successfully",
		"newBalance": store.StartingBalance,
	})
}
