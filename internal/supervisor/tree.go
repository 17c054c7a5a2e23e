// Package supervisor wraps thejerf/suture into the single flat tree that
// internal/ipc and internal/console use to run the goroutine that watches
// a forked helper process (the capture helper, the console wrapper's
// child). A restart re-runs that goroutine; it does not restart the
// process.
//
// Kismet's core event loop (internal/loop) is not itself suture-supervised:
// it is the single-threaded select() state machine described by the core
// design, and it owns the registry directly. Suture supervises only the
// goroutine-shaped subprocess owners that sit beside that loop.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when threshold is exceeded.
	// Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns production-ready defaults, matching suture's
// own built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree is a single-level suture supervisor that keeps the goroutine
// watching one externally forked process running for the lifetime of the
// parent; the process itself is not restarted. Unlike a multi-layer service tree, Kismet's core never needs
// failure isolation between layers: there is exactly one helper per Tree.
type Tree struct {
	root   *suture.Supervisor
	logger *slog.Logger
	config TreeConfig
}

// New creates a supervisor with the given configuration and name. The name
// appears in log lines emitted through the sutureslog event hook.
func New(name string, logger *slog.Logger, config TreeConfig) *Tree {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5.0
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = 30.0
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = 15 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	spec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	return &Tree{
		root:   suture.New(name, spec),
		logger: logger,
		config: config,
	}
}

// Root returns the underlying supervisor for direct access.
func (t *Tree) Root() *suture.Supervisor {
	return t.root
}

// Add registers a service with the tree and returns its token.
func (t *Tree) Add(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// Remove stops and removes a service by token.
func (t *Tree) Remove(token suture.ServiceToken) error {
	return t.root.Remove(token)
}

// Serve starts the tree and blocks until ctx is canceled or the tree fails.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a goroutine and returns its result channel.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport reports services that failed to stop within the
// configured shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
