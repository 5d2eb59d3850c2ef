package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Store persists closed trades and account snapshots to PostgreSQL for
// durability across restarts, grounded on internal/database/db.go's
// pgxpool wiring.
type Store struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// Config holds the connection parameters for Store.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewStore opens a pooled connection and verifies connectivity.
func NewStore(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: parse pool config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ledger: create pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ledger: ping: %w", err)
	}
	log.Info().Str("database", cfg.Database).Msg("connected to ledger store")
	return &Store{pool: pool, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Migrate creates the closed_trades and account_snapshots tables if
// they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS closed_trades (
			ticket BIGINT PRIMARY KEY,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL,
			pnl DOUBLE PRECISION NOT NULL,
			signal_id VARCHAR(64),
			opened_at TIMESTAMPTZ NOT NULL,
			closed_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol ON closed_trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_closed_at ON closed_trades(closed_at)`,
		`CREATE TABLE IF NOT EXISTS account_snapshots (
			id BIGSERIAL PRIMARY KEY,
			balance DOUBLE PRECISION NOT NULL,
			equity DOUBLE PRECISION NOT NULL,
			margin DOUBLE PRECISION NOT NULL,
			free_margin DOUBLE PRECISION NOT NULL,
			margin_level DOUBLE PRECISION NOT NULL,
			open_positions INT NOT NULL,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ledger: migrate: %w", err)
		}
	}
	return nil
}

// PersistClosedTrade durably records one closed position. Idempotent on
// ticket via ON CONFLICT DO NOTHING, since a restart may replay the same
// TRADE_RESULT.
func (s *Store) PersistClosedTrade(ctx context.Context, p Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO closed_trades (ticket, symbol, side, entry_price, exit_price, volume, pnl, signal_id, opened_at, closed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (ticket) DO NOTHING
	`, p.Ticket, p.Symbol, p.Side, p.EntryPrice, p.ExitPrice, p.Volume, p.PnL, p.SignalID, p.OpenedAt, p.ClosedAt)
	if err != nil {
		return fmt.Errorf("ledger: persist closed trade: %w", err)
	}
	return nil
}

// PersistAccountSnapshot records a point-in-time account summary.
func (s *Store) PersistAccountSnapshot(ctx context.Context, a AccountSummary) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO account_snapshots (balance, equity, margin, free_margin, margin_level, open_positions, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, a.Balance, a.Equity, a.Margin, a.FreeMargin, a.MarginLevel, a.OpenPositions, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ledger: persist account snapshot: %w", err)
	}
	return nil
}

// ClosedTradesSince loads closed trades at or after since, ordered
// oldest first.
func (s *Store) ClosedTradesSince(ctx context.Context, since time.Time) ([]Position, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ticket, symbol, side, entry_price, exit_price, volume, pnl, signal_id, opened_at, closed_at
		FROM closed_trades
		WHERE closed_at >= $1
		ORDER BY closed_at ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("ledger: query closed trades: %w", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		if err := rows.Scan(&p.Ticket, &p.Symbol, &p.Side, &p.EntryPrice, &p.ExitPrice,
			&p.Volume, &p.PnL, &p.SignalID, &p.OpenedAt, &p.ClosedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan closed trade: %w", err)
		}
		p.Status = PositionClosed
		out = append(out, p)
	}
	return out, rows.Err()
}
