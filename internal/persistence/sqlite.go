package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite repository.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}

	if err := repo.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return repo, nil
}

// Migrate runs database migrations.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			side INTEGER NOT NULL,
			quantity TEXT NOT NULL,
			price TEXT NOT NULL,
			total TEXT NOT NULL,
			executed_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_session ON trades(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at)`,

		`CREATE TABLE IF NOT EXISTS equity_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			cash TEXT NOT NULL,
			equity TEXT NOT NULL,
			open_positions INTEGER NOT NULL DEFAULT 0,
			taken_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_session ON equity_snapshots(session_id, taken_at)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// SaveTrade journals one filled trade.
func (r *SQLiteRepository) SaveTrade(ctx context.Context, record TradeRecord) error {
	query := `INSERT INTO trades (id, session_id, symbol, side, quantity, price, total, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.SessionID,
		record.Symbol,
		record.Side,
		record.Quantity.String(),
		record.Price.String(),
		record.Total.String(),
		record.ExecutedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}

	return nil
}

// TradesBySession returns the most recent trades for a session.
func (r *SQLiteRepository) TradesBySession(ctx context.Context, sessionID string, limit int) ([]TradeRecord, error) {
	query := `SELECT id, session_id, symbol, side, quantity, price, total, executed_at
		FROM trades WHERE session_id = ? ORDER BY executed_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var side int
		var quantity, price, total string

		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Symbol, &side, &quantity, &price, &total, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		rec.Side = types.Side(side)
		rec.Quantity, _ = decimal.NewFromString(quantity)
		rec.Price, _ = decimal.NewFromString(price)
		rec.Total, _ = decimal.NewFromString(total)

		records = append(records, rec)
	}

	return records, rows.Err()
}

// SaveEquitySnapshot saves one session equity snapshot.
func (r *SQLiteRepository) SaveEquitySnapshot(ctx context.Context, snapshot EquitySnapshot) error {
	query := `INSERT INTO equity_snapshots (session_id, cash, equity, open_positions, taken_at)
		VALUES (?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		snapshot.SessionID,
		snapshot.Cash.String(),
		snapshot.Equity.String(),
		snapshot.OpenPositions,
		snapshot.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("insert equity snapshot: %w", err)
	}

	return nil
}

// LatestEquitySnapshot returns the most recent snapshot for a session.
func (r *SQLiteRepository) LatestEquitySnapshot(ctx context.Context, sessionID string) (*EquitySnapshot, error) {
	query := `SELECT id, session_id, cash, equity, open_positions, taken_at
		FROM equity_snapshots WHERE session_id = ? ORDER BY taken_at DESC LIMIT 1`

	var snapshot EquitySnapshot
	var cash, equity string

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&snapshot.ID,
		&snapshot.SessionID,
		&cash,
		&equity,
		&snapshot.OpenPositions,
		&snapshot.TakenAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query equity snapshot: %w", err)
	}

	snapshot.Cash, _ = decimal.NewFromString(cash)
	snapshot.Equity, _ = decimal.NewFromString(equity)

	return &snapshot, nil
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

// Ensure SQLiteRepository implements Repository
var _ Repository = (*SQLiteRepository)(nil)
