// Package orchestrator builds every subsystem in the fixed construction
// order the core startup sequence requires, and runs the matching
// teardown sequence in reverse. Concrete packet sources, dissectors, the
// device/alert trackers, dumpfile writers, HTTP route handlers beyond the
// core's own /status and /metrics, and the plugin scanner are all out of
// scope for this repository; each appears here only as a
// collaboratorStub satisfying pollable.Pollable and/or
// registry.LifetimeGlobal so construction order, registry bookkeeping,
// and fatal-condition propagation are all exercised end-to-end.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kismetwireless/kismet-core/internal/bus"
	"github.com/kismetwireless/kismet-core/internal/config"
	"github.com/kismetwireless/kismet-core/internal/httpd"
	"github.com/kismetwireless/kismet-core/internal/ipc"
	"github.com/kismetwireless/kismet-core/internal/logging"
	"github.com/kismetwireless/kismet-core/internal/loop"
	"github.com/kismetwireless/kismet-core/internal/metrics"
	"github.com/kismetwireless/kismet-core/internal/pollable"
	"github.com/kismetwireless/kismet-core/internal/registry"
)

// Deps is every already-constructed top-level object Run needs before it
// can begin: the registry every subsystem is threaded through explicitly
// (never a process-wide package global, per the Design Notes) and the
// loaded configuration.
type Deps struct {
	Registry *registry.Registry
	Config   *config.Config
}

// TeardownDeps carries the handles Teardown needs that the event loop
// itself does not own: the HTTP server, the IPC channel, and anything
// else constructed outside internal/loop.
type TeardownDeps struct {
	HTTPServer *httpd.Server
	IPCChannel *ipc.Channel
}

// Run executes the fixed 20-step construction order and returns the event
// loop it built without running it. The caller runs that loop and then
// calls Teardown. Every error return marks the registry fatal first, and
// the caller still calls Teardown after one.
func Run(ctx context.Context, r *registry.Registry, cfg *config.Config, flags Flags) (*loop.Loop, TeardownDeps, error) {
	var deps TeardownDeps

	if cfg == nil {
		r.SetFatal("orchestrator: nil configuration")
		return nil, deps, fmt.Errorf("orchestrator: nil configuration")
	}

	// Step 1: message bus + stdout and fatal-queue clients.
	b := bus.New(cfg.Registry.FatalQueueDepth)
	stdoutClient := bus.NewStdoutClient()
	stdoutSub := b.Register(stdoutClient, bus.SeverityAll)
	fatalSub := b.Register(bus.NewFatalQueueClient(r), bus.SeverityFatal)
	if err := registry.Insert(r, b); err != nil {
		r.SetFatal(err.Error())
		return nil, deps, err
	}
	b.Info("kismet core starting")

	// Step 2: privilege-split bootstrap, unless --no-root.
	if !flags.NoRoot {
		channel, err := ipc.Spawn(cfg.IPC.HelperPath, r)
		if err != nil {
			r.SetFatal(fmt.Sprintf("failed to start capture helper: %v", err))
			return nil, deps, err
		}
		deps.IPCChannel = channel
		if err := registry.Insert(r, channel); err != nil {
			r.SetFatal(err.Error())
			return nil, deps, err
		}

		bootStart := time.Now()
		bootLoop := loop.New(r, loop.Config{BootstrapTimeout: cfg.Loop.BootstrapTimeout})
		bootCtx, bootCancel := context.WithTimeout(ctx, cfg.Loop.BootstrapTimeout)
		_ = bootLoop.RunBounded(bootCtx, cfg.Loop.BootstrapTimeout, []pollable.Pollable{channel})
		bootCancel()
		metrics.RecordIPCBootstrap(cfg.IPC.HelperPath, time.Since(bootStart), channel.Synced())
		if !channel.Synced() {
			msg := "capture helper did not acknowledge STARTUP within the bootstrap window"
			b.Error(msg)
			r.PushCriticalFailure(registry.CriticalFailure{Text: msg})
		}
		r.RegisterPollable(channel)
	}

	// Step 3: config already loaded by the caller; publish it.
	if err := registry.Insert(r, cfg); err != nil {
		r.SetFatal(err.Error())
		return nil, deps, err
	}

	// Step 4: time tracker (stub join contract).
	timeTracker := newCollaboratorStub("time-tracker")
	r.RegisterLifetimeGlobal(timeTracker)

	// Step 5: HTTP server, constructed but not yet listening.
	httpServer := httpd.New(cfg.Server.HTTPAddr, r, cfg.Server.ShutdownDur)
	if err := registry.Insert(r, httpServer); err != nil {
		r.SetFatal(err.Error())
		return nil, deps, err
	}
	r.RegisterLifetimeGlobal(httpServer)
	deps.HTTPServer = httpServer

	// Step 6: entry tracker (stub join contract).
	entryTracker := newCollaboratorStub("entry-tracker")
	r.RegisterLifetimeGlobal(entryTracker)

	// Step 7: if daemonizing, drop the stdout client. The process does not
	// fork, and the fatal-queue client stays registered: it is what marks
	// the registry fatal when a SeverityFatal message is posted.
	if cfg.Server.Daemonize {
		stdoutSub.Unregister()
	}

	// Step 8: resolve server name.
	serverName := cfg.Server.Name
	if serverName == "" {
		if hostname, err := os.Hostname(); err == nil {
			serverName = hostname
		} else {
			serverName = "Kismet"
		}
	}
	b.Info(fmt.Sprintf("server name: %s", serverName))

	// Step 9: IPC tracker, packet chain, REST message client, HTTP
	// session manager, channel tracker, datasource tracker, source
	// tracker — all out of scope collaborators.
	sourceTracker := newCollaboratorStub("source-tracker")
	r.RegisterLifetimeGlobal(sourceTracker)
	if err := registry.Insert(r, sourceTracker); err != nil {
		r.SetFatal(err.Error())
		return nil, deps, err
	}

	// Step 10: if IPC is up, post a status line. The source tracker stub
	// registers no IPC commands, and no further frame is sent to the helper.
	if deps.IPCChannel != nil {
		b.Info("syncing source tracker with capture helper")
	}

	// Step 11: tun/tap dumpfile.
	tunTapDumpfile := newCollaboratorStub("tuntap-dumpfile")
	r.RegisterDumpfile(tunTapDumpfile)

	// Step 12: alert tracker, device tracker, DLT handlers, base PHY.
	for _, name := range []string{"alert-tracker", "device-tracker", "dlt-ppi", "dlt-radiotap", "dlt-prism2", "phy-80211"} {
		r.RegisterLifetimeGlobal(newCollaboratorStub(name))
	}

	// Step 13: plugin tracker, unless --no-plugins.
	if !flags.NoPlugins {
		r.RegisterLifetimeGlobal(newCollaboratorStub("plugin-tracker"))
	}

	// Step 14: apply source configuration; failure is fatal.
	if err := applySourceConfiguration(cfg); err != nil {
		r.SetFatal(fmt.Sprintf("source configuration failed: %v", err))
		return nil, deps, err
	}

	// Step 15: GPS manager, manufacturer OUI DB.
	r.RegisterLifetimeGlobal(newCollaboratorStub("gps-manager"))
	r.RegisterLifetimeGlobal(newCollaboratorStub("oui-db"))

	// Step 16: dumpfiles, with a write-interval flush timer.
	evLoop := loop.New(r, loop.Config{
		SelectTimeout:    cfg.Loop.SelectTimeout,
		BootstrapTimeout: cfg.Loop.BootstrapTimeout,
		DrainTimeout:     cfg.Loop.DrainTimeout,
	})
	for _, name := range []string{"pcap-dumpfile", "netxml-dumpfile", "nettxt-dumpfile", "gpsxml-dumpfile", "string-dumpfile", "alert-dumpfile"} {
		stub := newCollaboratorStub(name)
		r.RegisterDumpfile(stub)
	}
	evLoop.RegisterTimer(5*time.Second, func() {
		b.Debug("dumpfile write-interval flush")
	})

	// Step 17: stateful alert engine, last-chance plugin activation,
	// system monitor.
	r.RegisterLifetimeGlobal(newCollaboratorStub("alert-engine"))
	r.RegisterLifetimeGlobal(newCollaboratorStub("system-monitor"))

	// Step 18: HTTP server begins listening.
	go func() {
		if err := httpServer.ListenAndServe(); err != nil {
			r.SetFatal(fmt.Sprintf("http server failed: %v", err))
		}
	}()

	// Step 19: source tracker begins capture.
	b.Info("source tracker beginning capture")

	// Step 20: flip the silence flag. --silent mutes the stdout client in
	// place (it stays registered) rather than unregistering it.
	if flags.Silent || cfg.Server.Silent {
		stdoutClient.SetSilent(true)
	}
	_ = fatalSub

	return evLoop, deps, nil
}

// applySourceConfiguration is the join point for LoadConfiguration in the
// original orchestrator; with concrete packet sources out of scope, it
// only validates that the config loaded cleanly.
func applySourceConfiguration(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("orchestrator: nil configuration")
	}
	return nil
}

// Teardown runs the shutdown sequence in this order: close the HTTP
// server, run a final bounded drain over the registered pollables, close
// the IPC channel to the capture helper, replay the retained critical
// failures to stderr, then call r.Teardown, which closes the lifetime
// globals in reverse order and only after them the dumpfiles. There is no
// SIGCHLD handler to restore in Go, and exiting is left to the caller.
func Teardown(ctx context.Context, r *registry.Registry, deps TeardownDeps) {
	// Step 2: stop the HTTP server first, per the design's "stop HTTP
	// before the final drain" ordering.
	if deps.HTTPServer != nil {
		if err := deps.HTTPServer.Close(); err != nil {
			logging.Error().Err(err).Msg("http server shutdown failed")
		}
	}

	// Step 4: final bounded drain, reusing the same loop.RunBounded the
	// bootstrap handshake uses.
	drainLoop := loop.New(r, loop.Config{})
	drainCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	_ = drainLoop.RunBounded(drainCtx, 2*time.Second, r.Pollables())
	cancel()

	// Step 5: ask the capture helper to shut down over IPC.
	if deps.IPCChannel != nil {
		if err := deps.IPCChannel.Close(); err != nil {
			logging.Error().Err(err).Msg("capture helper shutdown failed")
		}
	}

	// Step 8: replay the fatal queue to stderr.
	for _, failure := range r.CriticalFailures() {
		fmt.Fprintln(os.Stderr, failure.Text)
	}

	// Step 9: destroy lifetime globals (and dumpfiles) in reverse order.
	for _, err := range r.Teardown() {
		logging.Error().Err(err).Msg("lifetime global close failed")
	}

	// Step 10: exit(0). Left to the caller (cmd/kismet) so tests can
	// observe Teardown's side effects without the process actually
	// exiting.
}
