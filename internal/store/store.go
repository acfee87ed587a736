// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"

	"perp-trader/internal/config"
	"perp-trader/internal/models"
)

// Storage is the append/query interface the trading core persists through.
// Implementations must be behaviorally identical from the core's point of
// view; the core never branches on the backend.
type Storage interface {
	// Append-only writes
	CreateTrade(ctx context.Context, trade models.TradeRecord) error
	CreateEquityPoint(ctx context.Context, point models.EquityPoint) error
	CreateDecisionLog(ctx context.Context, log models.DecisionLog) error

	// Startup resume
	LastCycleNumber(ctx context.Context, agentID string) (int, error)
	LastEquityPoint(ctx context.Context, agentID string) (*models.EquityPoint, error)

	// History queries. limit <= 0 means no limit; results are in insertion
	// order (oldest first).
	TradeHistory(ctx context.Context, agentID string, limit int) ([]models.TradeRecord, error)
	EquityHistory(ctx context.Context, agentID string, limit int) ([]models.EquityPoint, error)

	// Lifecycle
	Close() error
}

// Open creates the storage backend selected by cfg.
func Open(cfg config.StorageConfig) (Storage, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStorage(cfg.Path)
	case "file":
		return NewFileStorage(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
