package agents

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// WorkerState is the lifecycle state of an AgentWorker.
type WorkerState string

const (
	WorkerIdle    WorkerState = "idle"
	WorkerRunning WorkerState = "running"
	WorkerStopped WorkerState = "stopped"
)

// AgentWorker owns one agent's goroutine. It sleeps until triggered, runs
// exactly one cycle, and goes back to sleep. Triggers that arrive while a
// cycle is in flight coalesce into a single follow-up run.
type AgentWorker struct {
	agent  *Agent
	logger zerolog.Logger

	trigger chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	state   WorkerState
	stopped bool
}

// NewAgentWorker creates a worker for the agent and starts its loop.
func NewAgentWorker(ctx context.Context, agent *Agent, logger zerolog.Logger) *AgentWorker {
	w := &AgentWorker{
		agent:   agent,
		logger:  logger.With().Str("agent", agent.ID()).Logger(),
		trigger: make(chan struct{}, 1),
		done:    make(chan struct{}),
		state:   WorkerIdle,
	}
	go w.run(ctx)
	return w
}

// State returns the worker's current lifecycle state.
func (w *AgentWorker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Trigger requests one cycle. It never blocks: if the worker is mid-cycle
// or already has a pending trigger, the request folds into the one
// pending slot.
func (w *AgentWorker) Trigger() {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return
	}
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Stop shuts the worker down and waits for any in-flight cycle to
// finish. It is safe to call more than once.
func (w *AgentWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.stopped = true
	w.mu.Unlock()

	// Wake the loop so it observes the stop flag.
	select {
	case w.trigger <- struct{}{}:
	default:
	}
	<-w.done
}

func (w *AgentWorker) run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(WorkerStopped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.trigger:
		}

		w.mu.Lock()
		stopped := w.stopped
		w.mu.Unlock()
		if stopped {
			return
		}

		w.runOne(ctx)
	}
}

// runOne executes one cycle, containing both errors and panics so a bad
// cycle never takes the worker down.
func (w *AgentWorker) runOne(ctx context.Context) {
	w.setState(WorkerRunning)
	w.agent.setRunning(true)
	defer func() {
		w.agent.setRunning(false)
		w.setState(WorkerIdle)
		if r := recover(); r != nil {
			w.logger.Error().Interface("panic", r).Msg("Cycle panicked")
		}
	}()

	if err := w.agent.RunCycle(ctx); err != nil {
		w.logger.Error().Err(err).Msg("Cycle failed")
	}
}

func (w *AgentWorker) setState(s WorkerState) {
	w.mu.Lock()
	// Stopped is terminal.
	if w.state != WorkerStopped {
		w.state = s
	}
	w.mu.Unlock()
}
