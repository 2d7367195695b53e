// Package shutdown coordinates graceful teardown of long-lived components.
// main registers everything that owns resources and the coordinator closes
// them in priority order once a signal arrives.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// Closer is implemented by components that release resources on shutdown.
type Closer interface {
	Close() error
}

// HookFunc is a cleanup function run before components are closed.
type HookFunc func(ctx context.Context) error

// Shutdown order for the server's components. Lower runs first.
const (
	PriorityHTTPServer = 10 // stop accepting new requests first
	PriorityRefresher  = 20 // stop the background dataset refresher
	PriorityAuth       = 30 // close the token store
	PriorityDatabase   = 40 // warehouse connections close last
)

// Coordinator tracks registered components and shuts them down in priority
// order, bounded by a single overall timeout.
type Coordinator struct {
	timeout time.Duration
	logger  zerolog.Logger

	mu         sync.Mutex
	components []component
	hooks      []hook

	shutdownOnce sync.Once
	triggerOnce  sync.Once
	shutdownCh   chan struct{}
}

type component struct {
	name     string
	closer   Closer
	priority int
}

type hook struct {
	name     string
	fn       HookFunc
	priority int
}

// New creates a coordinator that gives the whole shutdown the given time
// budget.
func New(timeout time.Duration, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		timeout:    timeout,
		logger:     logger.With().Str("component", "shutdown").Logger(),
		shutdownCh: make(chan struct{}),
	}
}

// Register adds a component to close during shutdown. Lower priority closes
// first.
func (c *Coordinator) Register(name string, closer Closer, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.components = append(c.components, component{name: name, closer: closer, priority: priority})

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered component for shutdown")
}

// RegisterHook adds a cleanup function. All hooks run before any component
// is closed.
func (c *Coordinator) RegisterHook(name string, fn HookFunc, priority int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.hooks = append(c.hooks, hook{name: name, fn: fn, priority: priority})

	c.logger.Debug().
		Str("name", name).
		Int("priority", priority).
		Msg("Registered shutdown hook")
}

// WaitForSignal blocks until SIGINT, SIGTERM, or SIGQUIT arrives, or until
// TriggerShutdown is called.
func (c *Coordinator) WaitForSignal() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-quit:
		c.logger.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		return sig
	case <-c.shutdownCh:
		return syscall.SIGTERM
	}
}

// Shutdown runs all hooks, then closes all components, in priority order.
// It runs at most once; repeated calls return immediately. The first error
// encountered is returned, but shutdown continues past failures so later
// components still get closed.
func (c *Coordinator) Shutdown() error {
	var shutdownErr error

	c.shutdownOnce.Do(func() {
		// The channel may already be closed by TriggerShutdown.
		c.triggerOnce.Do(func() {
			close(c.shutdownCh)
		})

		c.mu.Lock()
		components := append([]component(nil), c.components...)
		hooks := append([]hook(nil), c.hooks...)
		c.mu.Unlock()

		sort.SliceStable(components, func(i, j int) bool {
			return components[i].priority < components[j].priority
		})
		sort.SliceStable(hooks, func(i, j int) bool {
			return hooks[i].priority < hooks[j].priority
		})

		c.logger.Info().
			Dur("timeout", c.timeout).
			Int("components", len(components)).
			Int("hooks", len(hooks)).
			Msg("Starting graceful shutdown")

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		start := time.Now()

		for _, h := range hooks {
			select {
			case <-ctx.Done():
				c.logger.Warn().
					Str("hook", h.name).
					Msg("Shutdown timeout reached, skipping remaining hooks")
				shutdownErr = ctx.Err()
				return
			default:
			}

			if err := h.fn(ctx); err != nil {
				c.logger.Error().
					Err(err).
					Str("hook", h.name).
					Msg("Shutdown hook failed")
				if shutdownErr == nil {
					shutdownErr = err
				}
			}
		}

		for _, comp := range components {
			select {
			case <-ctx.Done():
				c.logger.Warn().
					Str("component", comp.name).
					Msg("Shutdown timeout reached, skipping remaining components")
				shutdownErr = ctx.Err()
				return
			default:
			}

			if err := comp.closer.Close(); err != nil {
				c.logger.Error().
					Err(err).
					Str("component", comp.name).
					Msg("Component shutdown failed")
				if shutdownErr == nil {
					shutdownErr = err
				}
			} else {
				c.logger.Debug().
					Str("component", comp.name).
					Msg("Component closed")
			}
		}

		c.logger.Info().
			Dur("duration", time.Since(start)).
			Msg("Graceful shutdown complete")
	})

	return shutdownErr
}

// TriggerShutdown unblocks WaitForSignal without an OS signal. Safe to call
// from multiple goroutines.
func (c *Coordinator) TriggerShutdown() {
	c.triggerOnce.Do(func() {
		c.logger.Info().Msg("Programmatic shutdown triggered")
		close(c.shutdownCh)
	})
}
