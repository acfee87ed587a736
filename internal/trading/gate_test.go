package trading

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"perp-trader/internal/errors"
)

func TestExecutionGate_SerializesHolders(t *testing.T) {
	gate := NewExecutionGate(1, time.Second, zerolog.Nop())
	ctx := context.Background()

	release, err := gate.Acquire(ctx, "agent-a")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		release2, err := gate.Acquire(ctx, "agent-b")
		if err != nil {
			t.Errorf("second acquire failed: %v", err)
			return
		}
		close(acquired)
		release2()
	}()

	select {
	case <-acquired:
		t.Fatal("second agent entered while first held the slot")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second agent never admitted after release")
	}
	wg.Wait()
}

func TestExecutionGate_TimeoutYieldsGateTimeout(t *testing.T) {
	gate := NewExecutionGate(1, 30*time.Millisecond, zerolog.Nop())
	ctx := context.Background()

	release, err := gate.Acquire(ctx, "holder")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	_, err = gate.Acquire(ctx, "waiter")
	if !errors.Is(err, errors.ErrGateTimeout) {
		t.Fatalf("expected ErrGateTimeout, got %v", err)
	}
}

func TestExecutionGate_CallerCancellationIsNotATimeout(t *testing.T) {
	gate := NewExecutionGate(1, time.Minute, zerolog.Nop())

	release, err := gate.Acquire(context.Background(), "holder")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = gate.Acquire(ctx, "canceled")
	if errors.Is(err, errors.ErrGateTimeout) {
		t.Fatal("caller cancellation must not be reported as a gate timeout")
	}
	if err == nil {
		t.Fatal("expected an error after cancellation")
	}
}

func TestExecutionGate_CapacityAboveOne(t *testing.T) {
	gate := NewExecutionGate(2, time.Second, zerolog.Nop())
	ctx := context.Background()

	release1, err := gate.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("acquire a failed: %v", err)
	}
	release2, err := gate.Acquire(ctx, "b")
	if err != nil {
		t.Fatalf("acquire b failed: %v", err)
	}
	release1()
	release2()
}
