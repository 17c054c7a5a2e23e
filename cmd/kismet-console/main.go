// Command kismet-console wraps the real kismet server binary in a small
// terminal UI: a title bar, a scrolling view of the server's recent
// output, and a hint line, replacing the need for the server binary to
// re-exec itself into a console mode.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kismetwireless/kismet-core/internal/console"
	"github.com/kismetwireless/kismet-core/internal/signals"
)

func main() {
	defer signals.RecoverAndExit()

	serverPath := os.Getenv("KISMET_SERVER_PATH")
	if serverPath == "" {
		serverPath = "/usr/local/bin/kismet"
	}

	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGQUIT, syscall.SIGABRT)
	defer cancel()

	w := console.New(serverPath, os.Args[1:])
	if err := w.Run(ctx); err != nil {
		for _, line := range w.Lines() {
			fmt.Fprintln(os.Stdout, line)
		}
		fmt.Fprintf(os.Stderr, "kismet-console: wrapped server exited: %v\n", err)
		os.Exit(1)
	}

	for _, line := range w.Lines() {
		fmt.Fprintln(os.Stdout, line)
	}
}
