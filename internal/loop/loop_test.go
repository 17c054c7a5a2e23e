package loop

import (
	"context"
	"testing"
	"time"

	"github.com/kismetwireless/kismet-core/internal/pollable"
	"github.com/kismetwireless/kismet-core/internal/registry"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateRunning:       "RUNNING",
		StateDraining:      "DRAINING",
		StateSpindownFatal: "SPINDOWN_FATAL",
		StateTeardown:      "TEARDOWN",
		StateExit:          "EXIT",
		State(99):          "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.SelectTimeout != 100*time.Millisecond {
		t.Errorf("expected default SelectTimeout 100ms, got %v", cfg.SelectTimeout)
	}
	if cfg.BootstrapTimeout != 2*time.Second {
		t.Errorf("expected default BootstrapTimeout 2s, got %v", cfg.BootstrapTimeout)
	}
	if cfg.DrainTimeout != 2*time.Second {
		t.Errorf("expected default DrainTimeout 2s, got %v", cfg.DrainTimeout)
	}
}

func TestConfigWithDefaultsPreservesSetFields(t *testing.T) {
	cfg := Config{SelectTimeout: 5 * time.Millisecond}.withDefaults()
	if cfg.SelectTimeout != 5*time.Millisecond {
		t.Errorf("expected SelectTimeout preserved at 5ms, got %v", cfg.SelectTimeout)
	}
}

func TestRunExitsOnSpindown(t *testing.T) {
	r := registry.New(0)
	l := New(r, Config{SelectTimeout: time.Millisecond, DrainTimeout: 10 * time.Millisecond})

	r.SetSpindown()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected Run to return nil, got %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected Run to exit after drain timeout elapsed")
	}
}

func TestRunExitsImmediatelyOnFatal(t *testing.T) {
	r := registry.New(0)
	l := New(r, Config{SelectTimeout: time.Millisecond, DrainTimeout: 10 * time.Second})

	r.SetFatal("boom")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected Run to return nil on fatal, got %v", err)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected Run to exit immediately on fatal without waiting for drain timeout")
	}
}

func TestRunExitsOnContextCancel(t *testing.T) {
	r := registry.New(0)
	l := New(r, Config{SelectTimeout: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Error("expected Run to return the context's cancellation error")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected Run to exit after context cancel")
	}
}

func TestRegisterTimerFiresDuringRun(t *testing.T) {
	r := registry.New(0)
	l := New(r, Config{SelectTimeout: time.Millisecond, DrainTimeout: time.Millisecond})

	fired := make(chan struct{}, 1)
	l.RegisterTimer(time.Millisecond, func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		time.Sleep(20 * time.Millisecond)
		r.SetSpindown()
	}()

	_ = l.Run(ctx)

	select {
	case <-fired:
	default:
		t.Error("expected registered timer to fire at least once during Run")
	}
}

type countingPollable struct {
	polls int
	done  chan struct{}
	after int
}

func (c *countingPollable) Merge(set *pollable.FDSet) error { return nil }

func (c *countingPollable) Poll(ready *pollable.ReadySet) error {
	c.polls++
	if c.polls >= c.after {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
	}
	return nil
}

func TestRunBoundedReturnsDeadlineExceeded(t *testing.T) {
	r := registry.New(0)
	l := New(r, Config{SelectTimeout: time.Millisecond})

	err := l.RunBounded(context.Background(), 20*time.Millisecond, nil)
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestRunBoundedReturnsCanceledWhenCallerCancels(t *testing.T) {
	r := registry.New(0)
	l := New(r, Config{SelectTimeout: time.Millisecond})

	p := &countingPollable{done: make(chan struct{}), after: 3}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-p.done
		cancel()
	}()

	err := l.RunBounded(ctx, time.Second, []pollable.Pollable{p})
	if err != context.Canceled {
		t.Errorf("expected context.Canceled once caller canceled, got %v", err)
	}
}
