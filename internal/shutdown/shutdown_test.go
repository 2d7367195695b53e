package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockCloser is a test implementation of Closer
type mockCloser struct {
	closeCalled bool
	closeErr    error
	closeDelay  time.Duration
	onClose     func()
}

func (m *mockCloser) Close() error {
	if m.closeDelay > 0 {
		time.Sleep(m.closeDelay)
	}
	m.closeCalled = true
	if m.onClose != nil {
		m.onClose()
	}
	return m.closeErr
}

func newTestCoordinator() *Coordinator {
	return New(5*time.Second, zerolog.Nop())
}

func TestNew(t *testing.T) {
	c := New(10*time.Second, zerolog.Nop())

	if c == nil {
		t.Fatal("expected non-nil coordinator")
	}
	if c.timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", c.timeout)
	}
	if c.shutdownCh == nil {
		t.Error("expected shutdownCh to be initialized")
	}
}

func TestRegister(t *testing.T) {
	c := newTestCoordinator()
	comp := &mockCloser{}

	c.Register("http-server", comp, PriorityHTTPServer)

	if len(c.components) != 1 {
		t.Errorf("expected 1 component, got %d", len(c.components))
	}
	if c.components[0].name != "http-server" {
		t.Errorf("expected name 'http-server', got '%s'", c.components[0].name)
	}
	if c.components[0].priority != PriorityHTTPServer {
		t.Errorf("expected priority %d, got %d", PriorityHTTPServer, c.components[0].priority)
	}
}

func TestRegisterHook(t *testing.T) {
	c := newTestCoordinator()

	c.RegisterHook("stop-refresher", func(ctx context.Context) error {
		return nil
	}, PriorityRefresher)

	if len(c.hooks) != 1 {
		t.Errorf("expected 1 hook, got %d", len(c.hooks))
	}
	if c.hooks[0].name != "stop-refresher" {
		t.Errorf("expected name 'stop-refresher', got '%s'", c.hooks[0].name)
	}
}

func TestShutdown(t *testing.T) {
	c := newTestCoordinator()
	comp := &mockCloser{}
	hookCalled := false

	c.Register("database", comp, PriorityDatabase)
	c.RegisterHook("http-server", func(ctx context.Context) error {
		hookCalled = true
		return nil
	}, PriorityHTTPServer)

	err := c.Shutdown()
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	if !comp.closeCalled {
		t.Error("expected component Close() to be called")
	}
	if !hookCalled {
		t.Error("expected hook to be called")
	}
}

func TestShutdownOnce(t *testing.T) {
	c := newTestCoordinator()
	callCount := 0

	c.Register("database", &mockCloser{}, PriorityDatabase)
	c.RegisterHook("http-server", func(ctx context.Context) error {
		callCount++
		return nil
	}, PriorityHTTPServer)

	// Call Shutdown multiple times
	c.Shutdown()
	c.Shutdown()
	c.Shutdown()

	// Hook should only be called once
	if callCount != 1 {
		t.Errorf("expected hook to be called once, got %d times", callCount)
	}
}

func TestShutdownPriorityOrder(t *testing.T) {
	c := newTestCoordinator()
	var mu sync.Mutex
	order := []string{}

	record := func(name string) func() {
		return func() {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}

	// Register components in reverse priority order
	c.Register("database", &mockCloser{onClose: record("database")}, PriorityDatabase)
	c.Register("auth", &mockCloser{onClose: record("auth")}, PriorityAuth)
	c.Register("refresher", &mockCloser{onClose: record("refresher")}, PriorityRefresher)

	c.Shutdown()

	want := []string{"refresher", "auth", "database"}
	if len(order) != len(want) {
		t.Fatalf("expected %d components closed, got %d", len(want), len(order))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("close order[%d]: expected '%s', got '%s'", i, want[i], order[i])
		}
	}
}

func TestShutdownHooksBeforeComponents(t *testing.T) {
	c := newTestCoordinator()
	var mu sync.Mutex
	order := []string{}

	c.Register("database", &mockCloser{onClose: func() {
		mu.Lock()
		order = append(order, "database")
		mu.Unlock()
	}}, PriorityHTTPServer)

	// Hook with a later priority still runs before any component closes.
	c.RegisterHook("http-server", func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "http-server")
		mu.Unlock()
		return nil
	}, PriorityDatabase)

	c.Shutdown()

	if len(order) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(order))
	}
	if order[0] != "http-server" {
		t.Errorf("expected hook to run first, got '%s'", order[0])
	}
}

func TestShutdownWithError(t *testing.T) {
	c := newTestCoordinator()
	expectedErr := errors.New("component error")
	comp := &mockCloser{closeErr: expectedErr}

	c.Register("failing-component", comp, PriorityHTTPServer)

	err := c.Shutdown()
	if err == nil {
		t.Error("expected error from shutdown")
	}
	if err != expectedErr {
		t.Errorf("expected error '%v', got '%v'", expectedErr, err)
	}
}

func TestShutdownContinuesPastFailure(t *testing.T) {
	c := newTestCoordinator()
	second := &mockCloser{}

	c.Register("failing", &mockCloser{closeErr: errors.New("boom")}, PriorityRefresher)
	c.Register("database", second, PriorityDatabase)

	err := c.Shutdown()
	if err == nil {
		t.Error("expected error from shutdown")
	}
	if !second.closeCalled {
		t.Error("expected later component to be closed despite earlier failure")
	}
}

func TestTriggerShutdown(t *testing.T) {
	c := newTestCoordinator()

	// Channel should not be closed initially
	select {
	case <-c.shutdownCh:
		t.Fatal("shutdownCh should not be closed initially")
	default:
		// expected
	}

	c.TriggerShutdown()

	// Channel should now be closed
	select {
	case <-c.shutdownCh:
		// expected
	default:
		t.Fatal("shutdownCh should be closed after TriggerShutdown")
	}
}

func TestTriggerShutdownConcurrent(t *testing.T) {
	// TriggerShutdown must be safe to call concurrently; a naive close
	// would panic on the second call.
	c := newTestCoordinator()

	var wg sync.WaitGroup
	numGoroutines := 100
	panicCount := atomic.Int32{}

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panicCount.Add(1)
				}
			}()
			c.TriggerShutdown()
		}()
	}

	wg.Wait()

	if panicCount.Load() > 0 {
		t.Errorf("TriggerShutdown panicked %d times", panicCount.Load())
	}

	select {
	case <-c.shutdownCh:
		// expected
	default:
		t.Fatal("shutdownCh should be closed")
	}
}

func TestTriggerShutdownThenShutdown(t *testing.T) {
	c := newTestCoordinator()
	comp := &mockCloser{}

	c.Register("database", comp, PriorityDatabase)

	// Trigger first, then run the full shutdown - must not panic
	c.TriggerShutdown()

	err := c.Shutdown()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if !comp.closeCalled {
		t.Error("expected component Close() to be called")
	}
}

func TestShutdownTimeout(t *testing.T) {
	c := New(100*time.Millisecond, zerolog.Nop())

	slowComp := &mockCloser{closeDelay: 500 * time.Millisecond}
	c.Register("slow-component", slowComp, PriorityHTTPServer)

	// A second component that should be skipped once the budget is spent
	secondComp := &mockCloser{}
	c.Register("second-component", secondComp, PriorityDatabase)

	err := c.Shutdown()

	if err == nil {
		t.Error("expected timeout error")
	}
}

func TestWaitForSignalWithTrigger(t *testing.T) {
	c := newTestCoordinator()

	done := make(chan struct{})
	go func() {
		c.WaitForSignal()
		close(done)
	}()

	// Give goroutine time to start
	time.Sleep(10 * time.Millisecond)

	c.TriggerShutdown()

	select {
	case <-done:
		// expected
	case <-time.After(time.Second):
		t.Fatal("WaitForSignal did not return after TriggerShutdown")
	}
}
