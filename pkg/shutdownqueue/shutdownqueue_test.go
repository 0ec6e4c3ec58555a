package shutdownqueue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// resetQueue clears the global queue between tests.
func resetQueue(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		q.mu.Lock()

		q.tasks = nil
		q.closed = false

		q.mu.Unlock()
	})
}

//nolint:paralleltest
func TestAddNilTaskIsNoop(t *testing.T) {
	resetQueue(t)

	Add(nil)

	err := Shutdown(context.Background())
	if err != nil {
		t.Fatalf("expected nil after adding nil task; got %v", err)
	}
}

//nolint:paralleltest
func TestLIFOOrder(t *testing.T) {
	resetQueue(t)

	var (
		orderMu sync.Mutex
		order   []int
	)

	makeTask := func(n int) Task {
		return func(ctx context.Context) error {
			orderMu.Lock()
			order = append(order, n)
			orderMu.Unlock()

			return nil
		}
	}

	for i := 1; i <= 3; i++ {
		Add(makeTask(i))
	}

	err := Shutdown(context.Background())
	if err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}

	want := []int{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("order len mismatch: got %v, want %v", order, want)
	}

	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order mismatch at %d: got %v, want %v", i, order, want)
		}
	}
}

//nolint:paralleltest
func TestPanicRecoveryIncludedAndContinues(t *testing.T) {
	resetQueue(t)

	var ranAfterPanic atomic.Bool

	Add(func(ctx context.Context) error { return nil })
	Add(func(ctx context.Context) error { panic("boom") })
	Add(func(ctx context.Context) error {
		ranAfterPanic.Store(true)

		return nil
	})

	shErr := Shutdown(context.Background())
	if shErr == nil {
		t.Fatal("expected aggregated error with panic; got nil")
	}

	if !strings.Contains(shErr.Error(), "panic in shutdown task: boom") {
		t.Fatalf("expected panic message in error; got: %q", shErr.Error())
	}

	// LIFO: the panicking task ran second, so the first-added task (which
	// runs last) proves the drain continued past the panic.
	if ranAfterPanic.Load() != true {
		t.Fatal("expected tasks after the panic to still run")
	}
}

//nolint:paralleltest
func TestAggregatedErrors(t *testing.T) {
	resetQueue(t)

	errA := errors.New("task a failed")
	errB := errors.New("task b failed")

	Add(func(ctx context.Context) error { return errA })
	Add(func(ctx context.Context) error { return errB })

	err := Shutdown(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Fatalf("expected both task errors joined; got %v", err)
	}
}

//nolint:paralleltest
func TestEarlyCancelStopsDrain(t *testing.T) {
	resetQueue(t)

	var ran atomic.Int32

	Add(func(ctx context.Context) error {
		ran.Add(1)

		return nil
	})
	Add(func(ctx context.Context) error {
		ran.Add(1)

		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Shutdown(ctx)
	if err == nil {
		t.Fatal("expected a cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain; got %v", err)
	}
	if ran.Load() != 0 {
		t.Fatalf("expected no tasks to run after cancel; ran %d", ran.Load())
	}
}

//nolint:paralleltest
func TestShutdownIdempotent(t *testing.T) {
	resetQueue(t)

	var ran atomic.Int32

	Add(func(ctx context.Context) error {
		ran.Add(1)

		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	if ran.Load() != 1 {
		t.Fatalf("task ran %d times, want 1", ran.Load())
	}
}

//nolint:paralleltest
func TestAddAfterShutdownIgnored(t *testing.T) {
	resetQueue(t)

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	var ran atomic.Bool

	Add(func(ctx context.Context) error {
		ran.Store(true)

		return nil
	})

	if err := Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}

	if ran.Load() {
		t.Fatal("task added after shutdown should not run")
	}
}
