// Package console implements the ncurses-style wrapper's rendering and
// process-supervision logic. cmd/kismet-console is a thin main that wires
// this package to os.Args and os.Exit; the logic lives here so it can be
// unit tested without forking a real terminal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/rivo/tview"

	"github.com/kismetwireless/kismet-core/internal/logging"
	"github.com/kismetwireless/kismet-core/internal/supervisor"
)

// ScrollbackLines is how many of the wrapped child's most recent output
// lines the wrapper retains for its scrolling body region.
const ScrollbackLines = 48

// Wrapper forks the real kismet binary, supervises it, and renders its
// stdout/stderr through a three-region terminal UI: a title bar, a
// scrolling body, and a bottom hint line.
type Wrapper struct {
	serverPath string
	args       []string

	mu     sync.Mutex
	lines  []string
	cmd    *exec.Cmd
	pipeR  *os.File
	pipeW  *os.File

	app  *tview.Application
	body *tview.TextView
}

// New builds a Wrapper that will exec serverPath with args, inheriting
// stdin, and capturing stdout/stderr through a pipe.
func New(serverPath string, args []string) *Wrapper {
	return &Wrapper{serverPath: serverPath, args: args}
}

// Run starts the child process, its output-reading supervisor, and the
// terminal UI event loop. It blocks until the child exits or the user
// sends SIGINT/SIGQUIT/SIGABRT, then returns the child's exit error, if
// any.
func (w *Wrapper) Run(ctx context.Context) error {
	pipeR, pipeW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("console: create output pipe: %w", err)
	}
	w.pipeR, w.pipeW = pipeR, pipeW

	w.cmd = exec.Command(w.serverPath, w.args...)
	w.cmd.Stdin = os.Stdin
	w.cmd.Stdout = pipeW
	w.cmd.Stderr = pipeW

	if err := w.cmd.Start(); err != nil {
		return fmt.Errorf("console: start %s: %w", w.serverPath, err)
	}

	tree := supervisor.New("console-wrapper", logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	scanner := &scannerService{w: w}
	tree.Add(scanner)

	treeErrCh := tree.ServeBackground(ctx)

	childErrCh := make(chan error, 1)
	go func() { childErrCh <- w.cmd.Wait() }()

	w.buildUI()

	uiErrCh := make(chan error, 1)
	go func() { uiErrCh <- w.app.Run() }()

	select {
	case err := <-childErrCh:
		if w.app != nil {
			w.app.Stop()
		}
		pipeW.Close()
		return err
	case <-uiErrCh:
		pipeW.Close()
		return <-childErrCh
	case <-treeErrCh:
		if w.app != nil {
			w.app.Stop()
		}
		pipeW.Close()
		return <-childErrCh
	}
}

// buildUI constructs the three-region layout: a top title bar, a
// scrolling body (the last ScrollbackLines lines), and a bottom hint line.
func (w *Wrapper) buildUI() {
	title := tview.NewTextView().SetText("kismet console").SetTextAlign(tview.AlignCenter)
	body := tview.NewTextView().SetDynamicColors(false).SetScrollable(true)
	hint := tview.NewTextView().SetText("Ctrl-C to interrupt, Ctrl-\\ to quit").SetTextAlign(tview.AlignCenter)

	w.body = body

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(title, 1, 0, false).
		AddItem(body, 0, 1, true).
		AddItem(hint, 1, 0, false)

	w.app = tview.NewApplication().SetRoot(flex, true)
}

// appendLine records line in the scrollback ring and redraws the body
// region, if the UI has been built.
func (w *Wrapper) appendLine(line string) {
	w.mu.Lock()
	w.lines = append(w.lines, line)
	if len(w.lines) > ScrollbackLines {
		w.lines = w.lines[len(w.lines)-ScrollbackLines:]
	}
	text := ""
	for _, l := range w.lines {
		text += l + "\n"
	}
	body := w.body
	app := w.app
	w.mu.Unlock()

	if body != nil {
		body.SetText(text)
	}
	if app != nil {
		app.Draw()
	}
}

// Lines returns a snapshot of the current scrollback, for tests and for
// replaying the exit buffer to real stdout once the terminal UI tears
// down.
func (w *Wrapper) Lines() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, len(w.lines))
	copy(out, w.lines)
	return out
}

// scannerService is the suture.Service that reads the child's combined
// stdout/stderr pipe line-by-line and feeds Wrapper.appendLine.
type scannerService struct {
	w *Wrapper
}

func (s *scannerService) Serve(ctx context.Context) error {
	scanner := bufio.NewScanner(s.w.pipeR)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		s.w.appendLine(scanner.Text())
	}
	if err := scanner.Err(); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (s *scannerService) String() string { return "console-scanner" }
