package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"btc-trading-sim/internal/models"
	"btc-trading-sim/internal/store"
	"btc-trading-sim/internal/trading"
)

const txTimeout = 5 * time.Second

// Notifier receives post-commit events for the user that owns the affected
// portfolio. Both calls are fire-and-forget; no connected client is not an
// error.
type Notifier interface {
	NotifyTradeExecuted(userID string, trade models.Trade)
	NotifyPortfolioChanged(userID string)
}

// TradeEngine validates an order and applies it against the ledger inside
// one transaction. Exactly one code path exists for both sides; the
// simplified buy/sell endpoints are thin aliases over it.
type TradeEngine struct {
	store    store.Store
	notifier Notifier
	symbol   string // the single supported instrument
}

func NewTradeEngine(st store.Store, notifier Notifier, symbol string) *TradeEngine {
	return &TradeEngine{store: st, notifier: notifier, symbol: symbol}
}

// ExecuteTrade executes an order atomically and returns the persisted trade.
// Rejections come back as the typed errors in the trading package; anything
// else rolled back the transaction and is wrapped as ExecutionFailedError.
func (e *TradeEngine) ExecuteTrade(ctx context.Context, userID, symbol string, side models.Side, quantity, price decimal.Decimal) (models.Trade, error) {
	if err := e.validate(symbol, side, quantity, price); err != nil {
		return models.Trade{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, txTimeout)
	defer cancel()

	total := quantity.Mul(price)
	var executed models.Trade

	err := e.store.WithTx(ctx, func(tx store.Tx) error {
		portfolio, ok, err := tx.PortfolioForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			if portfolio, err = tx.CreatePortfolio(ctx, userID); err != nil {
				return err
			}
		}

		switch side {
		case models.SideBuy:
			if err := e.applyBuy(ctx, tx, portfolio, symbol, quantity, price, total); err != nil {
				return err
			}
		case models.SideSell:
			if err := e.applySell(ctx, tx, portfolio, symbol, quantity, price, total); err != nil {
				return err
			}
		}

		executed, err = tx.InsertTrade(ctx, models.Trade{
			UserID:   userID,
			Symbol:   symbol,
			Side:     side,
			Quantity: quantity,
			Price:    price,
			Total:    total,
		})
		return err
	})
	if err != nil {
		if trading.IsRejection(err) {
			return models.Trade{}, err
		}
		log.Printf("❌ trade execution failed for user %s: %v", userID, err)
		return models.Trade{}, &trading.ExecutionFailedError{Err: err}
	}

	// Notify strictly after commit; the caller must never hear about a trade
	// that did not durably commit.
	if e.notifier != nil {
		e.notifier.NotifyTradeExecuted(userID, executed)
		e.notifier.NotifyPortfolioChanged(userID)
	}
	log.Printf("✅ %s %s %s @ %s (total %s) for user %s",
		executed.Side, executed.Quantity, executed.Symbol, executed.Price, executed.Total, userID)
	return executed, nil
}

func (e *TradeEngine) applyBuy(ctx context.Context, tx store.Tx, portfolio models.Portfolio, symbol string, quantity, price, total decimal.Decimal) error {
	if portfolio.Balance.LessThan(total) {
		return &trading.InsufficientBalanceError{Required: total, Available: portfolio.Balance}
	}
	if err := tx.SetBalance(ctx, portfolio.UserID, portfolio.Balance.Sub(total)); err != nil {
		return err
	}

	pos, ok, err := tx.PositionForUpdate(ctx, portfolio.UserID, symbol)
	if err != nil {
		return err
	}
	if ok {
		newQuantity := pos.Quantity.Add(quantity)
		// Volume-weighted average entry price; only BUY ever moves it.
		pos.AvgPrice = pos.Quantity.Mul(pos.AvgPrice).Add(total).Div(newQuantity)
		pos.Quantity = newQuantity
		pos.CurrentPrice = price
	} else {
		pos = models.Position{
			UserID:       portfolio.UserID,
			Symbol:       symbol,
			Quantity:     quantity,
			AvgPrice:     price,
			CurrentPrice: price,
		}
	}
	return tx.SavePosition(ctx, pos)
}

func (e *TradeEngine) applySell(ctx context.Context, tx store.Tx, portfolio models.Portfolio, symbol string, quantity, price, total decimal.Decimal) error {
	pos, ok, err := tx.PositionForUpdate(ctx, portfolio.UserID, symbol)
	if err != nil {
		return err
	}
	if !ok || pos.Quantity.LessThan(quantity) {
		available := decimal.Zero
		if ok {
			available = pos.Quantity
		}
		return &trading.InsufficientHoldingsError{Requested: quantity, Available: available}
	}

	if err := tx.SetBalance(ctx, portfolio.UserID, portfolio.Balance.Add(total)); err != nil {
		return err
	}

	newQuantity := pos.Quantity.Sub(quantity)
	if newQuantity.Sign() <= 0 {
		// No zero-quantity rows ever persist.
		return tx.DeletePosition(ctx, portfolio.UserID, symbol)
	}
	pos.Quantity = newQuantity
	pos.CurrentPrice = price
	return tx.SavePosition(ctx, pos)
}

func (e *TradeEngine) validate(symbol string, side models.Side, quantity, price decimal.Decimal) error {
	switch {
	case symbol != e.symbol:
		return &trading.InvalidOrderError{Reason: fmt.Sprintf("unsupported symbol %q, only %s is tradable", symbol, e.symbol)}
	case !side.Valid():
		return &trading.InvalidOrderError{Reason: "side must be BUY or SELL"}
	case quantity.Sign() <= 0:
		return &trading.InvalidOrderError{Reason: "quantity must be positive"}
	case price.Sign() <= 0:
		return &trading.InvalidOrderError{Reason: "price must be positive"}
	}
	return nil
}
