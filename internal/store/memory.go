package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"btc-trading-sim/internal/models"
)

// ErrPortfolioMissing flags a balance write against a portfolio that was
// never created inside the transaction.
var ErrPortfolioMissing = errors.New("portfolio does not exist")

// Memory is the in-memory ledger used for local development and tests. One
// mutex guards the whole store and is held for the full span of a
// transaction, which makes every transaction trivially serializable.
type Memory struct {
	mu         sync.Mutex
	portfolios map[string]models.Portfolio
	positions  map[string]map[string]models.Position // userID -> symbol -> position
	trades     map[string][]models.Trade             // userID -> append order
}

func NewMemory() *Memory {
	return &Memory{
		portfolios: make(map[string]models.Portfolio),
		positions:  make(map[string]map[string]models.Position),
		trades:     make(map[string][]models.Trade),
	}
}

func (s *Memory) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		portfolios: clonePortfolios(s.portfolios),
		positions:  clonePositions(s.positions),
		trades:     cloneTrades(s.trades),
	}
	if err := fn(tx); err != nil {
		return err
	}

	// Commit: adopt the staged state.
	s.portfolios = tx.portfolios
	s.positions = tx.positions
	s.trades = tx.trades
	return nil
}

func (s *Memory) Portfolio(ctx context.Context, userID string) (models.Portfolio, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[userID]
	return p, ok, nil
}

func (s *Memory) Positions(ctx context.Context, userID string) ([]models.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Position, 0, len(s.positions[userID]))
	for _, p := range s.positions[userID] {
		out = append(out, p)
	}
	return out, nil
}

func (s *Memory) Trades(ctx context.Context, userID string, limit, offset int) ([]models.Trade, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.trades[userID]
	total := len(all)

	// Stored in execution order; history is served newest first.
	out := make([]models.Trade, 0, limit)
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, total, nil
}

func (s *Memory) ResetUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.positions, userID)
	delete(s.trades, userID)
	if p, ok := s.portfolios[userID]; ok {
		p.Balance = StartingBalance
		p.UpdatedAt = time.Now()
		s.portfolios[userID] = p
	}
	return nil
}

func (s *Memory) Ping(ctx context.Context) error { return nil }

func (s *Memory) Close() {}

// memTx stages mutations on cloned maps; WithTx adopts them only when the
// callback succeeds, so a failed transaction leaves no trace.
type memTx struct {
	portfolios map[string]models.Portfolio
	positions  map[string]map[string]models.Position
	trades     map[string][]models.Trade
}

func (t *memTx) PortfolioForUpdate(ctx context.Context, userID string) (models.Portfolio, bool, error) {
	p, ok := t.portfolios[userID]
	return p, ok, nil
}

func (t *memTx) CreatePortfolio(ctx context.Context, userID string) (models.Portfolio, error) {
	now := time.Now()
	p := models.Portfolio{
		UserID:    userID,
		Balance:   StartingBalance,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.portfolios[userID] = p
	return p, nil
}

func (t *memTx) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	p, ok := t.portfolios[userID]
	if !ok {
		return ErrPortfolioMissing
	}
	p.Balance = balance
	p.UpdatedAt = time.Now()
	t.portfolios[userID] = p
	return nil
}

func (t *memTx) PositionForUpdate(ctx context.Context, userID, symbol string) (models.Position, bool, error) {
	p, ok := t.positions[userID][symbol]
	return p, ok, nil
}

func (t *memTx) SavePosition(ctx context.Context, pos models.Position) error {
	byUser, ok := t.positions[pos.UserID]
	if !ok {
		byUser = make(map[string]models.Position)
		t.positions[pos.UserID] = byUser
	}
	now := time.Now()
	if existing, ok := byUser[pos.Symbol]; ok {
		pos.CreatedAt = existing.CreatedAt
	} else {
		pos.CreatedAt = now
	}
	pos.UpdatedAt = now
	byUser[pos.Symbol] = pos
	return nil
}

func (t *memTx) DeletePosition(ctx context.Context, userID, symbol string) error {
	delete(t.positions[userID], symbol)
	return nil
}

func (t *memTx) InsertTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	trade.ID = uuid.NewString()
	trade.ExecutedAt = time.Now()
	t.trades[trade.UserID] = append(t.trades[trade.UserID], trade)
	return trade, nil
}

func clonePortfolios(src map[string]models.Portfolio) map[string]models.Portfolio {
	dst := make(map[string]models.Portfolio, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func clonePositions(src map[string]map[string]models.Position) map[string]map[string]models.Position {
	dst := make(map[string]map[string]models.Position, len(src))
	for user, bySymbol := range src {
		inner := make(map[string]models.Position, len(bySymbol))
		for sym, p := range bySymbol {
			inner[sym] = p
		}
		dst[user] = inner
	}
	return dst
}

func cloneTrades(src map[string][]models.Trade) map[string][]models.Trade {
	dst := make(map[string][]models.Trade, len(src))
	for user, trades := range src {
		dst[user] = append([]models.Trade(nil), trades...)
	}
	return dst
}
