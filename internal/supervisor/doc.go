/*
Package supervisor provides a thin wrapper around thejerf/suture for
keeping a single forked helper process's owning goroutine alive across
crashes, with structured logging through sutureslog.

	         Tree
	    ┌───────────┐
	    │  root sup │
	    └─────┬─────┘
	          │
	    ┌─────┴─────┐
	    │  service  │   (e.g. capture-helper reader, console pipe reader)
	    └───────────┘

Unlike a layered application supervisor, a Tree here supervises exactly
one externally owned process: crashes restart the owning goroutine,
which re-execs or re-attaches to the helper according to its own
Serve(ctx) implementation. Use internal/supervisor when a component
forks a child process and needs automatic restart with backoff; use
internal/loop directly when the component owns raw file descriptors
that must participate in every select() iteration instead.

Features:

  - Automatic Restart: failed services are restarted per FailureBackoff
  - Graceful Shutdown: Serve honors context cancellation with Timeout
  - Structured Logging: every suture event is emitted through slog
*/
package supervisor
