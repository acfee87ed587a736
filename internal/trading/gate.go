// Package trading provides the execution admission gate and the
// risk-bounded order sizing logic.
package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"perp-trader/internal/errors"
	"perp-trader/internal/metrics"
)

// DefaultGateTimeout bounds how long an agent waits for an execution slot
// before skipping its cycle.
const DefaultGateTimeout = 300 * time.Second

// ExecutionGate bounds how many agents may be inside the capital-committing
// phase at once. Two agents committing margin simultaneously can race the
// venue's own available-balance bookkeeping; the gate serializes that
// window without serializing market-data fetching.
//
// Waiters are served in FIFO order, so no agent can be starved.
type ExecutionGate struct {
	sem     *semaphore.Weighted
	timeout time.Duration
	logger  zerolog.Logger
}

// NewExecutionGate creates a gate admitting up to capacity agents with the
// given acquire timeout. Zero values fall back to capacity 1 and the
// default timeout.
func NewExecutionGate(capacity int64, timeout time.Duration, logger zerolog.Logger) *ExecutionGate {
	if capacity < 1 {
		capacity = 1
	}
	if timeout <= 0 {
		timeout = DefaultGateTimeout
	}
	return &ExecutionGate{
		sem:     semaphore.NewWeighted(capacity),
		timeout: timeout,
		logger:  logger,
	}
}

// Acquire blocks until a slot is free or the timeout elapses, returning a
// release function on success. A timeout yields errors.ErrGateTimeout; the
// caller must skip the cycle and wait for the next trigger, never retry
// inline.
func (g *ExecutionGate) Acquire(ctx context.Context, ownerID string) (func(), error) {
	g.logger.Debug().Str("agent", ownerID).Msg("Waiting for execution slot")

	waitCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	if err := g.sem.Acquire(waitCtx, 1); err != nil {
		if waitCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			metrics.GateTimeouts.Inc()
			g.logger.Warn().
				Str("agent", ownerID).
				Dur("waited", time.Since(start)).
				Msg("Timed out waiting for execution slot")
			return nil, errors.ErrGateTimeout
		}
		return nil, err
	}
	metrics.GateWaitSeconds.Observe(time.Since(start).Seconds())

	g.logger.Debug().Str("agent", ownerID).Msg("Acquired execution slot")
	return func() {
		g.sem.Release(1)
		g.logger.Debug().Str("agent", ownerID).Msg("Released execution slot")
	}, nil
}
