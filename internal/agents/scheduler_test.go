package agents

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"perp-trader/internal/errors"
)

func TestScheduler_FiresImmediatelyOnAdd(t *testing.T) {
	caller := &scriptedCaller{}
	agent, _, storage := newTestAgent(t, caller)

	scheduler := NewAgentScheduler(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Add(ctx, agent); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	defer scheduler.Stop()

	deadline := time.After(3 * time.Second)
	for {
		cycle, err := storage.LastCycleNumber(ctx, "alpha")
		if err != nil {
			t.Fatalf("reading cycle: %v", err)
		}
		if cycle >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler never ran the startup cycle")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestScheduler_DuplicateAddRejected(t *testing.T) {
	agent, _, _ := newTestAgent(t, &scriptedCaller{})

	scheduler := NewAgentScheduler(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer scheduler.Stop()

	if err := scheduler.Add(ctx, agent); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if err := scheduler.Add(ctx, agent); err == nil {
		t.Fatal("expected duplicate add to fail")
	}
}

func TestScheduler_TriggerUnknownAgent(t *testing.T) {
	scheduler := NewAgentScheduler(zerolog.Nop())
	defer scheduler.Stop()

	err := scheduler.Trigger("missing")
	if !errors.Is(err, errors.ErrAgentNotFound) {
		t.Fatalf("expected ErrAgentNotFound, got %v", err)
	}
}

func TestScheduler_StopIsTerminalAndIdempotent(t *testing.T) {
	agent, _, _ := newTestAgent(t, &scriptedCaller{})

	scheduler := NewAgentScheduler(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Add(ctx, agent); err != nil {
		t.Fatalf("add failed: %v", err)
	}

	scheduler.Stop()
	scheduler.Stop()

	if err := scheduler.Trigger("alpha"); !errors.Is(err, errors.ErrSchedulerStopped) {
		t.Fatalf("expected ErrSchedulerStopped, got %v", err)
	}
	if err := scheduler.Add(ctx, agent); !errors.Is(err, errors.ErrSchedulerStopped) {
		t.Fatalf("expected ErrSchedulerStopped on add, got %v", err)
	}

	worker, ok := scheduler.Worker("alpha")
	if !ok {
		t.Fatal("worker lookup failed")
	}
	if worker.State() != WorkerStopped {
		t.Errorf("expected worker stopped, got %s", worker.State())
	}
}
