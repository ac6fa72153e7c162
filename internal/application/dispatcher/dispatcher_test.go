package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

// mockLogger implements Logger for testing
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, msg)
}

func (m *mockLogger) Warn(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warns = append(m.warns, msg)
}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

func (m *mockLogger) ErrorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.errors)
}

func (m *mockLogger) HasInfo(msg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, info := range m.infos {
		if info == msg {
			return true
		}
	}
	return false
}

func submitted() *event.Event {
	return event.NewEvent(event.TypeExpenseSubmitted, 1, 1, nil)
}

func TestSubscribe(t *testing.T) {
	t.Run("subscribes multiple handlers to same event type", func(t *testing.T) {
		d := NewDispatcher()
		called1, called2 := false, false

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called1 = true
			return nil
		})
		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called2 = true
			return nil
		})

		if err := d.Dispatch(context.Background(), submitted()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}

		if !called1 || !called2 {
			t.Error("expected both handlers to be called")
		}

		handlers := d.ListHandlers(event.TypeExpenseSubmitted)
		if len(handlers) != 2 || handlers[0].Name != "handler-0" || handlers[1].Name != "handler-1" {
			t.Errorf("unexpected handler names: %+v", handlers)
		}
	})

	t.Run("logs registration", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.SubscribeNamed(event.TypeStepActivated, "notify-approver", func(ctx context.Context, evt *event.Event) error {
			return nil
		})

		if !logger.HasInfo("Handler registered") {
			t.Error("expected registration to be logged")
		}
	})
}

func TestDispatch(t *testing.T) {
	t.Run("only handlers of the event type run", func(t *testing.T) {
		d := NewDispatcher()
		var other atomic.Int32

		d.Subscribe(event.TypeExpenseApproved, func(ctx context.Context, evt *event.Event) error {
			other.Add(1)
			return nil
		})

		if err := d.Dispatch(context.Background(), submitted()); err != nil {
			t.Fatalf("dispatch failed: %v", err)
		}
		if other.Load() != 0 {
			t.Error("handler for another event type should not run")
		}
	})

	t.Run("stops at first error", func(t *testing.T) {
		d := NewDispatcher(WithLogger(&mockLogger{}))
		secondCalled := false

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			return errors.New("boom")
		})
		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			secondCalled = true
			return nil
		})

		err := d.Dispatch(context.Background(), submitted())
		if err == nil {
			t.Fatal("expected error from failing handler")
		}
		if secondCalled {
			t.Error("second handler should not run after an error")
		}
	})

	t.Run("recovers from handler panic", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			panic("boom")
		})

		if err := d.Dispatch(context.Background(), submitted()); err == nil {
			t.Fatal("expected panic to surface as error")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected panic to be logged")
		}
	})

	t.Run("fails when closed", func(t *testing.T) {
		d := NewDispatcher()
		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		if err := d.Dispatch(context.Background(), submitted()); err == nil {
			t.Fatal("expected error when dispatching to closed dispatcher")
		}
	})
}

func TestDispatchAsync(t *testing.T) {
	t.Run("handlers run and Close waits for them", func(t *testing.T) {
		d := NewDispatcher()
		var called atomic.Int32

		for i := 0; i < 2; i++ {
			d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
				time.Sleep(10 * time.Millisecond)
				called.Add(1)
				return nil
			})
		}

		d.DispatchAsync(context.Background(), submitted())

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if called.Load() != 2 {
			t.Errorf("expected 2 handlers to be called, got %d", called.Load())
		}
	})

	t.Run("handler context outlives the caller", func(t *testing.T) {
		d := NewDispatcher()
		ctx, cancel := context.WithCancel(context.Background())
		started := make(chan struct{})
		var ctxErr atomic.Value

		d.Subscribe(event.TypeExpenseSubmitted, func(hctx context.Context, evt *event.Event) error {
			<-started
			if err := hctx.Err(); err != nil {
				ctxErr.Store(err)
			}
			return nil
		})

		d.DispatchAsync(ctx, submitted())
		cancel()
		close(started)

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if v := ctxErr.Load(); v != nil {
			t.Errorf("handler context was cancelled: %v", v)
		}
	})

	t.Run("errors are logged, not returned", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			return errors.New("handler error")
		})
		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		d.DispatchAsync(context.Background(), submitted())

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}
		if called.Load() != 1 {
			t.Errorf("expected second handler to be called, got %d calls", called.Load())
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error to be logged")
		}
	})

	t.Run("does not dispatch when closed", func(t *testing.T) {
		logger := &mockLogger{}
		d := NewDispatcher(WithLogger(logger))
		var called atomic.Int32

		d.Subscribe(event.TypeExpenseSubmitted, func(ctx context.Context, evt *event.Event) error {
			called.Add(1)
			return nil
		})

		if err := d.Close(); err != nil {
			t.Fatalf("close failed: %v", err)
		}

		d.DispatchAsync(context.Background(), submitted())
		time.Sleep(20 * time.Millisecond)

		if called.Load() > 0 {
			t.Error("expected handler not to be called after close")
		}
		if logger.ErrorCount() == 0 {
			t.Error("expected error log for dispatching to closed dispatcher")
		}
	})
}

func TestPublish(t *testing.T) {
	d := NewDispatcher()
	var mu sync.Mutex
	seen := make(map[event.Type]int)

	record := func(ctx context.Context, evt *event.Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen[evt.Type]++
		return nil
	}
	d.Subscribe(event.TypeStepActivated, record)
	d.Subscribe(event.TypeExpenseApproved, record)

	d.Publish(context.Background(),
		event.NewEvent(event.TypeStepActivated, 1, 1, nil),
		nil,
		event.NewEvent(event.TypeExpenseApproved, 1, 1, nil),
		event.NewEvent(event.TypeConfigurationGap, 1, 1, nil),
	)

	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if seen[event.TypeStepActivated] != 1 || seen[event.TypeExpenseApproved] != 1 {
		t.Errorf("unexpected deliveries: %v", seen)
	}
}

func TestClose(t *testing.T) {
	d := NewDispatcher()
	if err := d.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	if err := d.Close(); err == nil {
		t.Error("expected error on second close")
	}
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var wg sync.WaitGroup
	var called atomic.Int32

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.SubscribeNamed(event.TypeExpenseSubmitted, fmt.Sprintf("handler-%d", id), func(ctx context.Context, evt *event.Event) error {
				called.Add(1)
				return nil
			})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.DispatchAsync(context.Background(), submitted())
		}()
	}
	wg.Wait()

	if err := d.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if called.Load() != 50 {
		t.Errorf("expected 50 handler calls, got %d", called.Load())
	}
}
