package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"perp-trader/internal/errors"
)

// AgentScheduler owns one worker and one ticker goroutine per agent. The
// ticker fires a trigger immediately on start and then on every scan
// interval; manual triggers share the same worker path.
type AgentScheduler struct {
	logger zerolog.Logger

	mu      sync.Mutex
	workers map[string]*AgentWorker
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewAgentScheduler creates an empty scheduler.
func NewAgentScheduler(logger zerolog.Logger) *AgentScheduler {
	return &AgentScheduler{
		logger:  logger,
		workers: make(map[string]*AgentWorker),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Add registers an agent and starts its worker and ticker.
func (s *AgentScheduler) Add(ctx context.Context, agent *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.ErrSchedulerStopped
	}
	id := agent.ID()
	if _, ok := s.workers[id]; ok {
		return fmt.Errorf("agent %q already scheduled", id)
	}

	tickCtx, cancel := context.WithCancel(ctx)
	worker := NewAgentWorker(ctx, agent, s.logger)
	s.workers[id] = worker
	s.cancels[id] = cancel

	s.wg.Add(1)
	go s.tick(tickCtx, worker, agent.ScanInterval())

	s.logger.Info().
		Str("agent", id).
		Dur("interval", agent.ScanInterval()).
		Msg("Agent scheduled")
	return nil
}

// tick fires the worker immediately, then once per interval. Fire first,
// then sleep: a fresh process should trade on startup, not after the
// first interval elapses.
func (s *AgentScheduler) tick(ctx context.Context, worker *AgentWorker, interval time.Duration) {
	defer s.wg.Done()

	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	worker.Trigger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			worker.Trigger()
		}
	}
}

// Trigger requests an immediate cycle for one agent.
func (s *AgentScheduler) Trigger(agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return errors.ErrSchedulerStopped
	}
	worker, ok := s.workers[agentID]
	if !ok {
		return fmt.Errorf("%w: %s", errors.ErrAgentNotFound, agentID)
	}
	worker.Trigger()
	return nil
}

// Worker returns the worker for an agent, for status inspection.
func (s *AgentScheduler) Worker(agentID string) (*AgentWorker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	worker, ok := s.workers[agentID]
	return worker, ok
}

// Stop cancels all tickers, then stops every worker, waiting for
// in-flight cycles to complete. It is idempotent.
func (s *AgentScheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancels := s.cancels
	workers := s.workers
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()

	for id, worker := range workers {
		worker.Stop()
		s.logger.Info().Str("agent", id).Msg("Agent stopped")
	}
}
