package services

import (
	"context"
	"log"

	"github.com/shopspring/decimal"

	"btc-trading-sim/internal/models"
	"btc-trading-sim/internal/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// PortfolioService reads portfolio state and values it against the latest
// cached market price. It never mutates balances or positions except through
// ResetUser.
type PortfolioService struct {
	store    store.Store
	prices   *PriceCache
	notifier Notifier
}

func NewPortfolioService(st store.Store, prices *PriceCache, notifier Notifier) *PortfolioService {
	return &PortfolioService{store: st, prices: prices, notifier: notifier}
}

// Summary returns the valuation view of the user's portfolio, creating the
// portfolio with the starting balance on first query.
func (s *PortfolioService) Summary(ctx context.Context, userID string) (models.PortfolioSummary, error) {
	portfolio, err := s.ensurePortfolio(ctx, userID)
	if err != nil {
		return models.PortfolioSummary{}, err
	}
	positions, err := s.store.Positions(ctx, userID)
	if err != nil {
		return models.PortfolioSummary{}, err
	}

	totalValue := decimal.Zero
	totalPnL := decimal.Zero
	for _, pos := range positions {
		mark := s.mark(pos)
		totalValue = totalValue.Add(pos.Quantity.Mul(mark))
		totalPnL = totalPnL.Add(pos.Quantity.Mul(mark.Sub(pos.AvgPrice)))
	}

	equity := portfolio.Balance.Add(totalValue)
	return models.PortfolioSummary{
		Balance:            portfolio.Balance,
		TotalPositionValue: totalValue,
		TotalValue:         equity,
		TotalPnL:           equity.Sub(store.StartingBalance),
		TotalUnrealizedPnL: totalPnL,
		PositionsCount:     len(positions),
		CreatedAt:          portfolio.CreatedAt,
		UpdatedAt:          portfolio.UpdatedAt,
	}, nil
}

// Positions returns the user's open positions marked to the latest price.
func (s *PortfolioService) Positions(ctx context.Context, userID string) ([]models.PositionView, error) {
	positions, err := s.store.Positions(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]models.PositionView, 0, len(positions))
	for _, pos := range positions {
		mark := s.mark(pos)
		unrealized := pos.Quantity.Mul(mark.Sub(pos.AvgPrice))
		pct := decimal.Zero
		if pos.AvgPrice.Sign() > 0 {
			pct = mark.Sub(pos.AvgPrice).Div(pos.AvgPrice).Mul(decimal.NewFromInt(100))
		}
		views = append(views, models.PositionView{
			Symbol:        pos.Symbol,
			Quantity:      pos.Quantity,
			AvgPrice:      pos.AvgPrice,
			CurrentPrice:  mark,
			PositionValue: pos.Quantity.Mul(mark),
			UnrealizedPnL: unrealized,
			PnLPercent:    pct,
			CreatedAt:     pos.CreatedAt,
			UpdatedAt:     pos.UpdatedAt,
		})
	}
	return views, nil
}

// History returns one page of the trade log, newest first.
func (s *PortfolioService) History(ctx context.Context, userID string, limit, offset int) ([]models.Trade, int, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Trades(ctx, userID, limit, offset)
}

// Reset wipes the user's positions and trades and restores the starting
// balance.
func (s *PortfolioService) Reset(ctx context.Context, userID string) error {
	if err := s.store.ResetUser(ctx, userID); err != nil {
		return err
	}
	log.Printf("🔄 portfolio reset for user %s", userID)
	if s.notifier != nil {
		s.notifier.NotifyPortfolioChanged(userID)
	}
	return nil
}

func (s *PortfolioService) ensurePortfolio(ctx context.Context, userID string) (models.Portfolio, error) {
	portfolio, ok, err := s.store.Portfolio(ctx, userID)
	if err != nil {
		return models.Portfolio{}, err
	}
	if ok {
		return portfolio, nil
	}
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		// Re-check under the transaction; another request may have won.
		if existing, ok, err := tx.PortfolioForUpdate(ctx, userID); err != nil {
			return err
		} else if ok {
			portfolio = existing
			return nil
		}
		portfolio, err = tx.CreatePortfolio(ctx, userID)
		return err
	})
	return portfolio, err
}

// mark picks the valuation price for a position: the relay's latest close
// when available, otherwise the position's stored current price.
func (s *PortfolioService) mark(pos models.Position) decimal.Decimal {
	if last, ok := s.prices.Last(pos.Symbol); ok {
		return decimal.NewFromFloat(last)
	}
	if pos.CurrentPrice.Sign() > 0 {
		return pos.CurrentPrice
	}
	return pos.AvgPrice
}
