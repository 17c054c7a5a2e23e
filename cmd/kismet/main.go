// Command kismet is the process supervisor core: it loads configuration,
// builds every subsystem in the fixed startup order, runs the event loop
// until spindown or a fatal condition, and tears everything down in
// reverse.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/kismetwireless/kismet-core/internal/config"
	"github.com/kismetwireless/kismet-core/internal/logging"
	"github.com/kismetwireless/kismet-core/internal/orchestrator"
	"github.com/kismetwireless/kismet-core/internal/registry"
	"github.com/kismetwireless/kismet-core/internal/signals"
)

func main() {
	defer signals.RecoverAndExit()

	preboot := orchestrator.ParsePrebootFlags(os.Args[1:])
	if !preboot.NoNcursesWrapper && !preboot.Debug && os.Getenv("KISMET_UNDER_CONSOLE") == "" {
		if reexecUnderConsole() {
			return
		}
		// Fall through and run directly: no console binary could be
		// resolved or launched.
	}

	flags, err := orchestrator.ParseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if flags.Version {
		fmt.Println("kismet 2026.07 (core)")
		os.Exit(1)
	}
	if flags.Help {
		printUsage()
		os.Exit(1)
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	r := registry.New(cfg.Registry.FatalQueueDepth)

	var sigHandler *signals.Handler
	if !flags.Debug {
		sigHandler = signals.Install(r, flags.Debug)
	}

	ctx := context.Background()
	evLoop, deps, err := orchestrator.Run(ctx, r, cfg, flags)
	if err != nil {
		// Run has already marked the registry fatal; skip the loop but
		// still tear down, and exit 1 below.
		logging.Error().Err(err).Msg("startup failed")
	} else if err := evLoop.Run(ctx); err != nil {
		logging.Error().Err(err).Msg("event loop exited with error")
	}

	orchestrator.Teardown(ctx, r, deps)
	if sigHandler != nil {
		sigHandler.Stop()
	}

	fatal, reason := r.Fatal()
	if fatal {
		logging.Error().Str("reason", reason).Msg("exiting after fatal condition")
		os.Exit(1)
	}
	os.Exit(0)
}

func loadConfig(flags orchestrator.Flags) (*config.Config, error) {
	if flags.ConfigFile != "" {
		os.Setenv(config.ConfigPathEnvVar, flags.ConfigFile)
	}
	cfg, err := config.LoadWithKoanf()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if flags.Silent {
		cfg.Server.Silent = true
	}
	if flags.NoLineWrap {
		cfg.Server.NoLineWrap = true
	}
	if flags.Daemonize {
		cfg.Server.Daemonize = true
	}
	if flags.Debug {
		cfg.Server.Debug = true
	}
	return cfg, nil
}

// reexecUnderConsole re-execs the current binary under kismet-console, the
// separate wrapper binary, rather than having this process re-enter
// itself in a different mode — the Design Notes call the "same binary
// plays both roles" pattern the most fragile part of the original. It
// reports whether the console wrapper actually ran the server on our
// behalf; false means the caller should run directly instead.
func reexecUnderConsole() bool {
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, "kismet: cannot resolve own executable path, skipping console wrapper:", err)
		return false
	}

	consolePath := os.Getenv("KISMET_CONSOLE_PATH")
	if consolePath == "" {
		consolePath = "kismet-console"
	}

	os.Setenv("KISMET_SERVER_PATH", self)
	os.Setenv("KISMET_UNDER_CONSOLE", "1")

	cmd := exec.Command(consolePath, os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			fmt.Fprintln(os.Stderr, "kismet: kismet-console not found on PATH, running without the console wrapper")
			return false
		}
		fmt.Fprintln(os.Stderr, "kismet: console wrapper exited:", err)
		os.Exit(1)
	}
	return true
}

func printUsage() {
	fmt.Println(`kismet [options]

  -v, --version              print version and exit
  -h, --help                  print this help and exit
  -f, --config-file <file>    override config path
  -s, --silent                suppress stdout formatter after setup
      --no-line-wrap           accepted; output is never wrapped
      --daemonize              drop the stdout client (does not fork)
      --no-plugins             skip plugin scan/activate
      --no-root                do not launch the capture helper
      --homedir <path>         override user home
      --no-ncurses-wrapper     skip the console wrapper
      --debug                  skip wrapper + crash handlers`)
}
