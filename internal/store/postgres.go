package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"btc-trading-sim/internal/models"
)

// Postgres is the durable ledger backed by a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool, registers shopspring decimal scanning on every
// connection and verifies connectivity.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the ledger tables when they do not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS portfolios (
			user_id    TEXT PRIMARY KEY,
			balance    NUMERIC(18,2) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS positions (
			user_id       TEXT NOT NULL,
			symbol        TEXT NOT NULL,
			quantity      NUMERIC(28,8) NOT NULL,
			avg_price     NUMERIC(18,2) NOT NULL,
			current_price NUMERIC(18,2) NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (user_id, symbol)
		);
		CREATE TABLE IF NOT EXISTS trades (
			id          UUID PRIMARY KEY,
			user_id     TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			side        TEXT NOT NULL,
			quantity    NUMERIC(28,8) NOT NULL,
			price       NUMERIC(18,2) NOT NULL,
			total       NUMERIC(28,8) NOT NULL,
			executed_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS trades_user_executed_idx
			ON trades (user_id, executed_at DESC);
	`)
	return err
}

func (s *Postgres) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Postgres) Portfolio(ctx context.Context, userID string) (models.Portfolio, bool, error) {
	var p models.Portfolio
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, balance, created_at, updated_at FROM portfolios WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.Balance, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Portfolio{}, false, nil
	}
	if err != nil {
		return models.Portfolio{}, false, err
	}
	return p, true, nil
}

func (s *Postgres) Positions(ctx context.Context, userID string) ([]models.Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, symbol, quantity, avg_price, current_price, created_at, updated_at
		FROM positions WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Position, 0)
	for rows.Next() {
		var p models.Position
		if err := rows.Scan(&p.UserID, &p.Symbol, &p.Quantity, &p.AvgPrice, &p.CurrentPrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) Trades(ctx context.Context, userID string, limit, offset int) ([]models.Trade, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM trades WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, symbol, side, quantity, price, total, executed_at
		FROM trades WHERE user_id = $1
		ORDER BY executed_at DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]models.Trade, 0, limit)
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Side, &t.Quantity, &t.Price, &t.Total, &t.ExecutedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *Postgres) ResetUser(ctx context.Context, userID string) error {
	return s.WithTx(ctx, func(tx Tx) error {
		pg := tx.(*pgTx)
		if _, err := pg.tx.Exec(ctx, `DELETE FROM positions WHERE user_id = $1`, userID); err != nil {
			return err
		}
		if _, err := pg.tx.Exec(ctx, `DELETE FROM trades WHERE user_id = $1`, userID); err != nil {
			return err
		}
		_, err := pg.tx.Exec(ctx,
			`UPDATE portfolios SET balance = $1, updated_at = now() WHERE user_id = $2`,
			StartingBalance, userID,
		)
		return err
	})
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() {
	s.pool.Close()
}

// pgTx implements Tx on one pgx transaction. SELECT ... FOR UPDATE on the
// portfolio row serializes trades per user for the whole transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) PortfolioForUpdate(ctx context.Context, userID string) (models.Portfolio, bool, error) {
	var p models.Portfolio
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, balance, created_at, updated_at FROM portfolios WHERE user_id = $1 FOR UPDATE`,
		userID,
	).Scan(&p.UserID, &p.Balance, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Portfolio{}, false, nil
	}
	if err != nil {
		return models.Portfolio{}, false, err
	}
	return p, true, nil
}

func (t *pgTx) CreatePortfolio(ctx context.Context, userID string) (models.Portfolio, error) {
	var p models.Portfolio
	err := t.tx.QueryRow(ctx, `
		INSERT INTO portfolios (user_id, balance) VALUES ($1, $2)
		RETURNING user_id, balance, created_at, updated_at`,
		userID, StartingBalance,
	).Scan(&p.UserID, &p.Balance, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (t *pgTx) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE portfolios SET balance = $1, updated_at = now() WHERE user_id = $2`,
		balance, userID,
	)
	return err
}

func (t *pgTx) PositionForUpdate(ctx context.Context, userID, symbol string) (models.Position, bool, error) {
	var p models.Position
	err := t.tx.QueryRow(ctx, `
		SELECT user_id, symbol, quantity, avg_price, current_price, created_at, updated_at
		FROM positions WHERE user_id = $1 AND symbol = $2 FOR UPDATE`,
		userID, symbol,
	).Scan(&p.UserID, &p.Symbol, &p.Quantity, &p.AvgPrice, &p.CurrentPrice, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Position{}, false, nil
	}
	if err != nil {
		return models.Position{}, false, err
	}
	return p, true, nil
}

func (t *pgTx) SavePosition(ctx context.Context, pos models.Position) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO positions (user_id, symbol, quantity, avg_price, current_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, symbol)
		DO UPDATE SET quantity = EXCLUDED.quantity,
		              avg_price = EXCLUDED.avg_price,
		              current_price = EXCLUDED.current_price,
		              updated_at = now()`,
		pos.UserID, pos.Symbol, pos.Quantity, pos.AvgPrice, pos.CurrentPrice,
	)
	return err
}

func (t *pgTx) DeletePosition(ctx context.Context, userID, symbol string) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM positions WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	)
	return err
}

func (t *pgTx) InsertTrade(ctx context.Context, trade models.Trade) (models.Trade, error) {
	trade.ID = uuid.NewString()
	err := t.tx.QueryRow(ctx, `
		INSERT INTO trades (id, user_id, symbol, side, quantity, price, total)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING executed_at`,
		trade.ID, trade.UserID, trade.Symbol, trade.Side, trade.Quantity, trade.Price, trade.Total,
	).Scan(&trade.ExecutedAt)
	return trade, err
}
