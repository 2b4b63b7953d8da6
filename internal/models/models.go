package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side of an executed trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is one of the two supported sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Portfolio holds a user's cash balance. One row per user, created lazily
// with the starting balance on the first trade or portfolio query.
type Portfolio struct {
	UserID    string          `json:"userId"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Position is a user's net holding in one symbol. Quantity is always > 0
// while the row exists; a position sold down to zero is deleted, never kept
// as a zero row.
type Position struct {
	UserID       string          `json:"userId"`
	Symbol       string          `json:"symbol"`
	Quantity     decimal.Decimal `json:"quantity"`
	AvgPrice     decimal.Decimal `json:"avgPrice"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Trade is one immutable executed-order record.
type Trade struct {
	ID         string          `json:"id"`
	UserID     string          `json:"userId"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Total      decimal.Decimal `json:"total"`
	ExecutedAt time.Time       `json:"executedAt"`
}

// PortfolioSummary is the valuation view returned by GET /api/portfolio.
type PortfolioSummary struct {
	Balance            decimal.Decimal `json:"balance"`
	TotalPositionValue decimal.Decimal `json:"totalPositionValue"`
	TotalValue         decimal.Decimal `json:"totalValue"`
	TotalPnL           decimal.Decimal `json:"totalPnL"`
	TotalUnrealizedPnL decimal.Decimal `json:"totalUnrealizedPnL"`
	PositionsCount     int             `json:"positionsCount"`
	CreatedAt          time.Time       `json:"createdAt"`
	UpdatedAt          time.Time       `json:"updatedAt"`
}

// PositionView is a position decorated with mark-to-market numbers.
type PositionView struct {
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgPrice      decimal.Decimal `json:"avgPrice"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	PositionValue decimal.Decimal `json:"positionValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnL"`
	PnLPercent    decimal.Decimal `json:"pnlPercentage"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
