// Package store is the ledger: durable state for portfolios, positions and
// the trade log. Two implementations exist, Postgres for real runs and an
// in-memory store for local development and tests, selected once at startup.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"btc-trading-sim/internal/models"
)

// StartingBalance is the cash every new portfolio begins with.
var StartingBalance = decimal.NewFromInt(100000)

// Tx is the transactional handle handed to WithTx callbacks. All reads
// inside a Tx lock the rows they touch, so two concurrent trades for the
// same user cannot interleave.
type Tx interface {
	// PortfolioForUpdate loads and locks the user's portfolio row.
	PortfolioForUpdate(ctx context.Context, userID string) (models.Portfolio, bool, error)
	// CreatePortfolio inserts a portfolio with the starting balance.
	CreatePortfolio(ctx context.Context, userID string) (models.Portfolio, error)
	// SetBalance overwrites the portfolio's cash balance.
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	// PositionForUpdate loads and locks the (user, symbol) position if present.
	PositionForUpdate(ctx context.Context, userID, symbol string) (models.Position, bool, error)
	// SavePosition inserts the position or updates quantity, avg price and
	// current price of an existing one.
	SavePosition(ctx context.Context, pos models.Position) error
	// DeletePosition removes the (user, symbol) row entirely.
	DeletePosition(ctx context.Context, userID, symbol string) error

	// InsertTrade appends a trade record, filling in ID and ExecutedAt.
	InsertTrade(ctx context.Context, trade models.Trade) (models.Trade, error)
}

// Store is the ledger interface.
type Store interface {
	// WithTx runs fn inside one transaction. Any error from fn rolls the
	// whole transaction back; the underlying connection is released on every
	// exit path.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Portfolio reads the user's portfolio without creating one.
	Portfolio(ctx context.Context, userID string) (models.Portfolio, bool, error)
	// Positions lists the user's open positions.
	Positions(ctx context.Context, userID string) ([]models.Position, error)
	// Trades returns a page of the user's trade log ordered by ExecutedAt
	// descending, plus the total number of trades.
	Trades(ctx context.Context, userID string, limit, offset int) ([]models.Trade, int, error)

	// ResetUser deletes the user's positions and trades and restores the
	// starting balance, as one transaction.
	ResetUser(ctx context.Context, userID string) error

	Ping(ctx context.Context) error
	Close()
}
