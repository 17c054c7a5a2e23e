package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/kismetwireless/kismet-core/internal/config"
	"github.com/kismetwireless/kismet-core/internal/httpd"
	"github.com/kismetwireless/kismet-core/internal/registry"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.ShutdownDur = time.Second
	cfg.Loop.BootstrapTimeout = 50 * time.Millisecond
	cfg.Loop.DrainTimeout = 50 * time.Millisecond
	cfg.Registry.FatalQueueDepth = 10
	return cfg
}

func TestRunWithNoRootSkipsIPCBootstrap(t *testing.T) {
	r := registry.New(10)
	cfg := testConfig()

	evLoop, deps, err := Run(context.Background(), r, cfg, Flags{NoRoot: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evLoop == nil {
		t.Fatal("expected a constructed event loop")
	}
	if deps.IPCChannel != nil {
		t.Error("expected no IPC channel when --no-root is set")
	}
	if deps.HTTPServer == nil {
		t.Error("expected HTTP server constructed")
	}

	Teardown(context.Background(), r, deps)
}

func TestRunRegistersExpectedCollaborators(t *testing.T) {
	r := registry.New(10)
	cfg := testConfig()

	_, deps, err := Run(context.Background(), r, cfg, Flags{NoRoot: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := registry.Fetch[*httpd.Server](r); !ok {
		t.Error("expected the HTTP server stored in the registry")
	}
	if _, ok := registry.Fetch[*collaboratorStub](r); !ok {
		t.Error("expected the source tracker stub stored in the registry")
	}
	// Collaborator stubs and the HTTP server are not pollables; only the IPC
	// channel would be, and --no-root skips it.
	if n := len(r.Pollables()); n != 0 {
		t.Errorf("expected no pollables with --no-root, got %d", n)
	}

	Teardown(context.Background(), r, deps)

	failures := r.CriticalFailures()
	_ = failures // teardown must not panic even with an empty queue
}

func TestRunFatalOnNilConfig(t *testing.T) {
	r := registry.New(10)

	_, _, err := Run(context.Background(), r, nil, Flags{NoRoot: true})
	if err == nil {
		t.Fatal("expected an error when configuration is nil")
	}
	fatal, _ := r.Fatal()
	if !fatal {
		t.Error("expected registry marked fatal on nil configuration")
	}
}

func TestTeardownIsSafeWithEmptyDeps(t *testing.T) {
	r := registry.New(10)
	Teardown(context.Background(), r, TeardownDeps{})
}
