package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"perp-trader/internal/models"
)

// FileStorage implements Storage as per-agent JSON-lines files. Each agent
// gets its own directory holding trades.jsonl, equity.jsonl and
// decisions.jsonl; every record is one appended line, so writes stay
// atomic at the line level and history reads are a sequential scan.
type FileStorage struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileStorage creates a flat-file storage rooted at dir.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating storage dir: %w", err)
	}
	return &FileStorage{baseDir: dir}, nil
}

func (f *FileStorage) agentFile(agentID, name string) string {
	// Keep agent ids path-safe.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, agentID)
	return filepath.Join(f.baseDir, safe, name)
}

func (f *FileStorage) appendLine(path string, v interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating agent dir: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling record: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("appending to %s: %w", path, err)
	}
	return nil
}

func readLines(path string, each func([]byte) error) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := each(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// CreateTrade appends one immutable trade record.
func (f *FileStorage) CreateTrade(ctx context.Context, trade models.TradeRecord) error {
	return f.appendLine(f.agentFile(trade.AgentID, "trades.jsonl"), trade)
}

// CreateEquityPoint appends one equity observation.
func (f *FileStorage) CreateEquityPoint(ctx context.Context, point models.EquityPoint) error {
	return f.appendLine(f.agentFile(point.AgentID, "equity.jsonl"), point)
}

// CreateDecisionLog appends one decision-cycle log.
func (f *FileStorage) CreateDecisionLog(ctx context.Context, log models.DecisionLog) error {
	return f.appendLine(f.agentFile(log.AgentID, "decisions.jsonl"), log)
}

// LastCycleNumber returns the highest logged cycle for an agent, 0 when
// the agent has no history.
func (f *FileStorage) LastCycleNumber(ctx context.Context, agentID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	last := 0
	err := readLines(f.agentFile(agentID, "decisions.jsonl"), func(line []byte) error {
		var log models.DecisionLog
		if err := json.Unmarshal(line, &log); err != nil {
			return fmt.Errorf("decoding decision log: %w", err)
		}
		if log.Cycle > last {
			last = log.Cycle
		}
		return nil
	})
	return last, err
}

// LastEquityPoint returns the most recent equity point, nil when none.
func (f *FileStorage) LastEquityPoint(ctx context.Context, agentID string) (*models.EquityPoint, error) {
	points, err := f.EquityHistory(ctx, agentID, 0)
	if err != nil {
		return nil, err
	}
	if len(points) == 0 {
		return nil, nil
	}
	p := points[len(points)-1]
	return &p, nil
}

// TradeHistory returns the agent's trades oldest-first.
func (f *FileStorage) TradeHistory(ctx context.Context, agentID string, limit int) ([]models.TradeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var trades []models.TradeRecord
	err := readLines(f.agentFile(agentID, "trades.jsonl"), func(line []byte) error {
		var t models.TradeRecord
		if err := json.Unmarshal(line, &t); err != nil {
			return fmt.Errorf("decoding trade: %w", err)
		}
		trades = append(trades, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[:limit]
	}
	return trades, nil
}

// EquityHistory returns the agent's equity points oldest-first.
func (f *FileStorage) EquityHistory(ctx context.Context, agentID string, limit int) ([]models.EquityPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var points []models.EquityPoint
	err := readLines(f.agentFile(agentID, "equity.jsonl"), func(line []byte) error {
		var p models.EquityPoint
		if err := json.Unmarshal(line, &p); err != nil {
			return fmt.Errorf("decoding equity point: %w", err)
		}
		points = append(points, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}

// Close releases nothing for the file backend.
func (f *FileStorage) Close() error {
	return nil
}
