package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"perp-trader/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) a SQLite database under dir.
func NewSQLiteStorage(dir string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}

	dbPath := filepath.Join(dir, "trader.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStorage{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		agent_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		close_price REAL NOT NULL,
		quantity REAL NOT NULL,
		leverage INTEGER NOT NULL,
		open_time DATETIME NOT NULL,
		close_time DATETIME NOT NULL,
		pnl_pct REAL NOT NULL,
		pnl_usdt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS equity_points (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		cycle INTEGER NOT NULL,
		gross_equity REAL NOT NULL,
		adjusted_equity REAL NOT NULL,
		unrealized_pnl REAL NOT NULL,
		net_deposits REAL NOT NULL,
		external_cash_flow REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decision_logs (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		cycle INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		chain_of_thought TEXT,
		decisions TEXT,
		account_state TEXT,
		positions TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_trades_agent ON trades(agent_id, seq);
	CREATE INDEX IF NOT EXISTS idx_equity_agent ON equity_points(agent_id, seq);
	CREATE INDEX IF NOT EXISTS idx_decisions_agent ON decision_logs(agent_id, cycle);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateTrade appends one immutable trade record.
func (s *SQLiteStorage) CreateTrade(ctx context.Context, trade models.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (id, agent_id, symbol, side, entry_price, close_price,
			quantity, leverage, open_time, close_time, pnl_pct, pnl_usdt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.ID, trade.AgentID, trade.Symbol, string(trade.Side),
		trade.EntryPrice, trade.ClosePrice, trade.Quantity, trade.Leverage,
		trade.OpenTime, trade.CloseTime, trade.PnlPct, trade.PnlUsdt)
	if err != nil {
		return fmt.Errorf("inserting trade: %w", err)
	}
	return nil
}

// CreateEquityPoint appends one equity observation.
func (s *SQLiteStorage) CreateEquityPoint(ctx context.Context, point models.EquityPoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO equity_points (agent_id, timestamp, cycle, gross_equity,
			adjusted_equity, unrealized_pnl, net_deposits, external_cash_flow)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		point.AgentID, point.Timestamp, point.Cycle, point.GrossEquity,
		point.AdjustedEquity, point.UnrealizedPnl, point.NetDeposits,
		point.ExternalCashFlow)
	if err != nil {
		return fmt.Errorf("inserting equity point: %w", err)
	}
	return nil
}

// CreateDecisionLog appends one decision-cycle log.
func (s *SQLiteStorage) CreateDecisionLog(ctx context.Context, log models.DecisionLog) error {
	decisions, err := json.Marshal(log.Decisions)
	if err != nil {
		return fmt.Errorf("marshaling decisions: %w", err)
	}
	account, err := json.Marshal(log.Account)
	if err != nil {
		return fmt.Errorf("marshaling account state: %w", err)
	}
	positions, err := json.Marshal(log.Positions)
	if err != nil {
		return fmt.Errorf("marshaling positions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decision_logs (id, agent_id, cycle, timestamp,
			chain_of_thought, decisions, account_state, positions)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.AgentID, log.Cycle, log.Timestamp,
		log.ChainOfThought, string(decisions), string(account), string(positions))
	if err != nil {
		return fmt.Errorf("inserting decision log: %w", err)
	}
	return nil
}

// LastCycleNumber returns the highest logged cycle for an agent, 0 when
// the agent has no history.
func (s *SQLiteStorage) LastCycleNumber(ctx context.Context, agentID string) (int, error) {
	var cycle sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(cycle) FROM decision_logs WHERE agent_id = ?`, agentID).Scan(&cycle)
	if err != nil {
		return 0, fmt.Errorf("querying last cycle: %w", err)
	}
	if !cycle.Valid {
		return 0, nil
	}
	return int(cycle.Int64), nil
}

// LastEquityPoint returns the most recent equity point, nil when none.
func (s *SQLiteStorage) LastEquityPoint(ctx context.Context, agentID string) (*models.EquityPoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_id, timestamp, cycle, gross_equity, adjusted_equity,
			unrealized_pnl, net_deposits, external_cash_flow
		FROM equity_points WHERE agent_id = ? ORDER BY seq DESC LIMIT 1`, agentID)

	var p models.EquityPoint
	err := row.Scan(&p.AgentID, &p.Timestamp, &p.Cycle, &p.GrossEquity,
		&p.AdjustedEquity, &p.UnrealizedPnl, &p.NetDeposits, &p.ExternalCashFlow)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying last equity point: %w", err)
	}
	return &p, nil
}

// TradeHistory returns the agent's trades oldest-first.
func (s *SQLiteStorage) TradeHistory(ctx context.Context, agentID string, limit int) ([]models.TradeRecord, error) {
	query := `
		SELECT id, agent_id, symbol, side, entry_price, close_price, quantity,
			leverage, open_time, close_time, pnl_pct, pnl_usdt
		FROM trades WHERE agent_id = ? ORDER BY seq`
	args := []interface{}{agentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []models.TradeRecord
	for rows.Next() {
		var t models.TradeRecord
		var side string
		if err := rows.Scan(&t.ID, &t.AgentID, &t.Symbol, &side, &t.EntryPrice,
			&t.ClosePrice, &t.Quantity, &t.Leverage, &t.OpenTime, &t.CloseTime,
			&t.PnlPct, &t.PnlUsdt); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.Side = models.PositionSide(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// EquityHistory returns the agent's equity points oldest-first.
func (s *SQLiteStorage) EquityHistory(ctx context.Context, agentID string, limit int) ([]models.EquityPoint, error) {
	query := `
		SELECT agent_id, timestamp, cycle, gross_equity, adjusted_equity,
			unrealized_pnl, net_deposits, external_cash_flow
		FROM equity_points WHERE agent_id = ? ORDER BY seq`
	args := []interface{}{agentID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying equity history: %w", err)
	}
	defer rows.Close()

	var points []models.EquityPoint
	for rows.Next() {
		var p models.EquityPoint
		if err := rows.Scan(&p.AgentID, &p.Timestamp, &p.Cycle, &p.GrossEquity,
			&p.AdjustedEquity, &p.UnrealizedPnl, &p.NetDeposits,
			&p.ExternalCashFlow); err != nil {
			return nil, fmt.Errorf("scanning equity point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
