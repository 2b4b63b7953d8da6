package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"btc-trading-sim/internal/models"
	"btc-trading-sim/internal/store"
	"btc-trading-sim/internal/trading"
)

// Property: no sequence of orders can drive the balance negative, leave a
// zero-quantity position behind, or break the cash accounting identity
// balance = start - buys + sells over the committed trades.
func TestProperty_LedgerInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mem := store.NewMemory()
		engine := NewTradeEngine(mem, nil, testSymbol)
		ctx := context.Background()

		steps := rapid.IntRange(1, 40).Draw(t, "steps")

		spent := decimal.Zero
		earned := decimal.Zero
		netQty := decimal.Zero

		for i := 0; i < steps; i++ {
			side := models.SideBuy
			if rapid.Bool().Draw(t, "sell") {
				side = models.SideSell
			}
			quantity := decimal.New(rapid.Int64Range(1, 300).Draw(t, "quantity"), -2) // 0.01 .. 3.00
			price := decimal.NewFromInt(rapid.Int64Range(1000, 120000).Draw(t, "price"))

			trade, err := engine.ExecuteTrade(ctx, "alice", testSymbol, side, quantity, price)
			if err != nil {
				if !trading.IsRejection(err) {
					t.Fatalf("unexpected non-rejection error: %v", err)
				}
				continue
			}

			switch trade.Side {
			case models.SideBuy:
				spent = spent.Add(trade.Total)
				netQty = netQty.Add(trade.Quantity)
			case models.SideSell:
				earned = earned.Add(trade.Total)
				netQty = netQty.Sub(trade.Quantity)
			}

			portfolio, ok, err := mem.Portfolio(ctx, "alice")
			if err != nil || !ok {
				t.Fatalf("portfolio missing after committed trade: %v", err)
			}
			if portfolio.Balance.IsNegative() {
				t.Fatalf("balance went negative: %s", portfolio.Balance)
			}

			want := store.StartingBalance.Sub(spent).Add(earned)
			if !portfolio.Balance.Equal(want) {
				t.Fatalf("accounting identity broken: balance %s, want %s", portfolio.Balance, want)
			}

			positions, err := mem.Positions(ctx, "alice")
			if err != nil {
				t.Fatalf("positions: %v", err)
			}
			for _, pos := range positions {
				if pos.Quantity.Sign() <= 0 {
					t.Fatalf("zero or negative position row persisted: %s", pos.Quantity)
				}
			}

			held := decimal.Zero
			if len(positions) == 1 {
				held = positions[0].Quantity
			}
			if !held.Equal(netQty) {
				t.Fatalf("position quantity %s does not match net of fills %s", held, netQty)
			}
		}
	})
}

// Property: a rejected order is a no-op; the observable state before and
// after is identical.
func TestProperty_RejectionsLeaveStateUntouched(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		mem := store.NewMemory()
		engine := NewTradeEngine(mem, nil, testSymbol)
		ctx := context.Background()

		// Seed an affordable holding.
		if _, err := engine.ExecuteTrade(ctx, "alice", testSymbol, models.SideBuy, dec("0.5"), dec("100000")); err != nil {
			t.Fatalf("seed: %v", err)
		}
		before, _, _ := mem.Portfolio(ctx, "alice")
		beforePos, _ := mem.Positions(ctx, "alice")

		// An order guaranteed to be rejected, one way or the other.
		var err error
		if rapid.Bool().Draw(t, "oversell") {
			_, err = engine.ExecuteTrade(ctx, "alice", testSymbol, models.SideSell,
				decimal.NewFromInt(rapid.Int64Range(1, 100).Draw(t, "qty")), dec("100000"))
		} else {
			_, err = engine.ExecuteTrade(ctx, "alice", testSymbol, models.SideBuy,
				decimal.NewFromInt(rapid.Int64Range(10, 100).Draw(t, "qty")), dec("100000"))
		}
		if err == nil {
			t.Fatal("expected rejection")
		}
		var execFailed *trading.ExecutionFailedError
		if errors.As(err, &execFailed) {
			t.Fatalf("expected business rejection, got infra failure: %v", err)
		}

		after, _, _ := mem.Portfolio(ctx, "alice")
		afterPos, _ := mem.Positions(ctx, "alice")

		if !before.Balance.Equal(after.Balance) {
			t.Fatalf("balance changed by rejected order: %s -> %s", before.Balance, after.Balance)
		}
		if len(beforePos) != len(afterPos) || !beforePos[0].Quantity.Equal(afterPos[0].Quantity) {
			t.Fatal("position changed by rejected order")
		}
	})
}
