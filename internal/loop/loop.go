// Package loop implements the core's single-threaded event loop: a literal
// select()-based state machine that merges every registered pollable's
// descriptors into one syscall per iteration instead of giving each
// subsystem its own goroutine and channel.
//
// This is deliberately not suture-supervised: suture (internal/supervisor)
// restarts crashed goroutines, but the loop itself should never crash and
// restart mid-state; a panic here is a programming error, not a transient
// failure, and the top-level recover in cmd/kismet exits the process.
package loop

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kismetwireless/kismet-core/internal/metrics"
	"github.com/kismetwireless/kismet-core/internal/pollable"
	"github.com/kismetwireless/kismet-core/internal/registry"
)

// State is one stage of the event loop's lifecycle.
type State int

const (
	// StateRunning is the loop's steady-state operation: poll, dispatch, repeat.
	StateRunning State = iota
	// StateDraining is entered on a graceful SetSpindown; the loop keeps
	// polling until DrainTimeout elapses or a pollable reports fatal.
	StateDraining
	// StateSpindownFatal is entered the moment r.Fatal() is observed; the
	// loop stops accepting new work and returns to the caller immediately.
	StateSpindownFatal
	// StateTeardown is never entered by the loop itself, and nothing
	// reports it to metrics; orchestrator.Teardown runs outside the loop.
	StateTeardown
	// StateExit is the loop's terminal state once Run returns.
	StateExit
)

// String renders the state the way it is reported to metrics and logs.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateSpindownFatal:
		return "SPINDOWN_FATAL"
	case StateTeardown:
		return "TEARDOWN"
	case StateExit:
		return "EXIT"
	default:
		return "UNKNOWN"
	}
}

// Config controls the loop's timing. All three fields default to a
// sensible value when left zero; see DefaultConfig.
type Config struct {
	// SelectTimeout bounds how long one unix.Select call blocks when no fd
	// is ready, so the loop can still notice a spindown/fatal flag flip
	// between I/O events. Default 100ms.
	SelectTimeout time.Duration

	// BootstrapTimeout bounds RunBounded when used for the IPC STARTUP
	// handshake. Default 2s. Deliberately a separate field from
	// DrainTimeout: a Kismet Design Notes Open Question asked whether the
	// bootstrap and drain windows must be equal, and this keeps them
	// independently tunable even though both default to the same value.
	BootstrapTimeout time.Duration

	// DrainTimeout bounds how long StateDraining is allowed to run before
	// the loop gives up waiting for in-flight work and returns. Default 2s.
	DrainTimeout time.Duration
}

// DefaultConfig returns the loop timing defaults used when internal/config
// leaves a field at its zero value.
func DefaultConfig() Config {
	return Config{
		SelectTimeout:    100 * time.Millisecond,
		BootstrapTimeout: 2 * time.Second,
		DrainTimeout:     2 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.SelectTimeout <= 0 {
		c.SelectTimeout = 100 * time.Millisecond
	}
	if c.BootstrapTimeout <= 0 {
		c.BootstrapTimeout = 2 * time.Second
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = 2 * time.Second
	}
	return c
}

type timerEntry struct {
	interval time.Duration
	next     time.Time
	fn       func()
}

// Loop is the core's single-threaded select() state machine. The zero
// value is not usable; build one with New.
type Loop struct {
	registry *registry.Registry
	cfg      Config
	timers   []*timerEntry
}

// New builds a Loop bound to r, applying cfg's defaults for any zero field.
func New(r *registry.Registry, cfg Config) *Loop {
	return &Loop{registry: r, cfg: cfg.withDefaults()}
}

// RegisterTimer schedules fn to run every interval, checked once per
// iteration before pollables are polled (the ordering guarantee that
// dumpfile flush timers and similar periodic work rely on).
func (l *Loop) RegisterTimer(interval time.Duration, fn func()) {
	l.timers = append(l.timers, &timerEntry{interval: interval, next: time.Now().Add(interval), fn: fn})
}

// Run executes the RUNNING/DRAINING state machine until the context is
// canceled, a fatal condition is observed, or draining completes. It
// returns nil when draining ends or a fatal condition stops it, and
// ctx.Err() whenever the context is canceled first, in any state.
func (l *Loop) Run(ctx context.Context) error {
	state := StateRunning
	var drainDeadline time.Time

	for {
		iterStart := time.Now()

		select {
		case <-ctx.Done():
			metrics.RecordLoopIteration(time.Since(iterStart), StateExit.String())
			return ctx.Err()
		default:
		}

		if state == StateRunning {
			if fatal, _ := l.registry.Fatal(); fatal {
				state = StateSpindownFatal
			} else if l.registry.Spindown() {
				state = StateDraining
				drainDeadline = time.Now().Add(l.cfg.DrainTimeout)
			}
		}

		if state == StateSpindownFatal {
			metrics.RecordLoopIteration(time.Since(iterStart), state.String())
			return nil
		}

		if state == StateDraining && time.Now().After(drainDeadline) {
			metrics.RecordLoopIteration(time.Since(iterStart), state.String())
			return nil
		}

		// Pollables returns its snapshot in registration order; every walk
		// below must preserve that order, not range over a map.
		pollables := l.registry.Pollables()
		metrics.PollableCount.Set(float64(len(pollables)))
		metrics.RegistryFatalQueueDepth.Set(float64(l.registry.FatalQueueDepth()))

		var set pollable.FDSet
		for _, p := range pollables {
			_ = p.Merge(&set)
		}

		rset := set.Read
		wset := set.Write
		timeout := unix.NsecToTimeval(l.cfg.SelectTimeout.Nanoseconds())

		var n int
		var err error
		if set.Max > 0 {
			n, err = unix.Select(set.Max, &rset, &wset, nil, &timeout)
		} else {
			time.Sleep(l.cfg.SelectTimeout)
		}

		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				metrics.RecordLoopIteration(time.Since(iterStart), state.String())
				continue
			}
			l.registry.SetFatal(err.Error())
			metrics.SelectErrors.WithLabelValues(err.Error()).Inc()
			metrics.RecordLoopIteration(time.Since(iterStart), state.String())
			continue
		}
		if n == 0 {
			metrics.SelectTimeouts.Inc()
		}

		if state == StateRunning {
			l.fireTimers()
		}

		ready := pollable.ReadySet{Read: &rset, Write: &wset}
		for _, p := range pollables {
			if pollErr := p.Poll(&ready); pollErr != nil && errors.Is(pollErr, pollable.ErrFatal) {
				if fatal, _ := l.registry.Fatal(); fatal {
					state = StateSpindownFatal
				} else if state == StateDraining {
					metrics.RecordLoopIteration(time.Since(iterStart), state.String())
					return nil
				}
			}
		}

		metrics.RecordLoopIteration(time.Since(iterStart), state.String())
	}
}

func (l *Loop) fireTimers() {
	now := time.Now()
	for _, t := range l.timers {
		if now.After(t.next) || now.Equal(t.next) {
			t.fn()
			t.next = now.Add(t.interval)
		}
	}
}

// RunBounded runs a miniature select loop over extra for at most timeout.
// It returns context.DeadlineExceeded when the window expires, ctx's error
// if ctx ends first, and the error of the first Poll that reports ErrFatal.
// The IPC STARTUP handshake and orchestrator.Teardown's final drain both
// use it; the handshake caller checks Channel.Synced once it returns.
func (l *Loop) RunBounded(ctx context.Context, timeout time.Duration, extra []pollable.Pollable) error {
	deadline := time.Now().Add(timeout)
	sub, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	for {
		select {
		case <-sub.Done():
			return sub.Err()
		default:
		}

		var set pollable.FDSet
		for _, p := range extra {
			_ = p.Merge(&set)
		}

		rset := set.Read
		wset := set.Write
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return context.DeadlineExceeded
		}
		pollTimeout := l.cfg.SelectTimeout
		if remaining < pollTimeout {
			pollTimeout = remaining
		}
		timeoutVal := unix.NsecToTimeval(pollTimeout.Nanoseconds())

		if set.Max > 0 {
			if _, err := unix.Select(set.Max, &rset, &wset, nil, &timeoutVal); err != nil {
				if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
					continue
				}
				return err
			}
		} else {
			time.Sleep(pollTimeout)
		}

		ready := pollable.ReadySet{Read: &rset, Write: &wset}
		for _, p := range extra {
			if err := p.Poll(&ready); err != nil && errors.Is(err, pollable.ErrFatal) {
				return err
			}
		}
	}
}
