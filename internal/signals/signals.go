// Package signals installs the core's process-level signal handling: a
// goroutine that turns SIGINT/SIGTERM/SIGHUP/SIGQUIT into a registry flag
// flip, plus the global panic recovery hook main wires in place of the
// original C++ std::terminate handler.
//
// Go's signal delivery already hands a caught signal off to an ordinary
// goroutine, so there is no async-signal-safety discipline to enforce here
// beyond doing as little as possible in that goroutine: set the flag and
// return.
package signals

import (
	"os"
	"os/exec"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/kismetwireless/kismet-core/internal/logging"
	"github.com/kismetwireless/kismet-core/internal/registry"
)

func init() {
	debug.SetTraceback("all")
}

// Handler owns the installed signal channel so it can be torn down
// cleanly.
type Handler struct {
	registry *registry.Registry
	ch       chan os.Signal
	stopped  chan struct{}
}

// Install registers SIGINT, SIGTERM, SIGHUP, and SIGQUIT against r's
// SetSpindown and returns a Handler whose Stop undoes the registration.
// If debug is true, Install does nothing and returns nil, matching
// --debug's "suppress the terminate handlers so a debugger sees the raw
// signal" behavior.
func Install(r *registry.Registry, debug bool) *Handler {
	if debug {
		return nil
	}

	h := &Handler{
		registry: r,
		ch:       make(chan os.Signal, 4),
		stopped:  make(chan struct{}),
	}
	signal.Notify(h.ch, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT)

	go func() {
		for {
			select {
			case sig, ok := <-h.ch:
				if !ok {
					return
				}
				logging.Info().Str("signal", sig.String()).Msg("received shutdown signal")
				r.SetSpindown()
			case <-h.stopped:
				return
			}
		}
	}()

	return h
}

// Stop undoes signal.Notify and terminates the handling goroutine. Safe to
// call on a nil Handler (the --debug case).
func (h *Handler) Stop() {
	if h == nil {
		return
	}
	signal.Stop(h.ch)
	close(h.stopped)
}

// WatchChild waits for cmd to exit in its own goroutine and pushes a
// SigchildEvent to r once it does. This is Go's stand-in for SIGCHLD: the
// owner of a forked child waits on its own cmd rather than sharing one
// process-wide signal handler. internal/ipc and internal/console do not
// call WatchChild; each waits on its child directly (ipc's helperWatcher,
// console.Wrapper.Run), so their child exits are not pushed to r.
func WatchChild(cmd *exec.Cmd, r *registry.Registry) {
	go func() {
		err := cmd.Wait()
		exitCode := 0
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if err != nil {
			exitCode = -1
		}
		pid := 0
		if cmd.Process != nil {
			pid = cmd.Process.Pid
		}
		r.PushSigchild(registry.SigchildEvent{PID: pid, ExitCode: exitCode})
	}()
}

// RecoverAndExit is deferred once in main. It mirrors the original
// process's global panic hook: log the panic value and a stack trace,
// then exit 2 instead of letting the runtime's default crash report be
// the only record. A genuine unrecoverable runtime fault (e.g. SIGSEGV
// from memory corruption) is not interceptable this way; the Go runtime
// prints its own fatal trace and exits nonzero for those.
func RecoverAndExit() {
	if r := recover(); r != nil {
		logging.Error().
			Interface("panic", r).
			Str("stack", string(debug.Stack())).
			Msg("unrecovered panic, exiting")
		os.Exit(2)
	}
}
