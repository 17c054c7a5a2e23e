// Package ipc implements the privilege-split bootstrap between the core
// process and kismet_capture, the small-footprint helper that actually
// opens raw capture devices. The core forks the helper, wires a pipe pair
// to its stdin/stdout, and speaks a length-prefixed frame protocol over
// it; the helper keeps whatever elevated capability it needs and the core
// never does.
package ipc

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/kismetwireless/kismet-core/internal/logging"
	"github.com/kismetwireless/kismet-core/internal/pollable"
	"github.com/kismetwireless/kismet-core/internal/registry"
	"github.com/kismetwireless/kismet-core/internal/supervisor"
)

// MaxPayload bounds a single frame's payload; Poll rejects anything larger
// while reading and Send refuses to write anything larger.
const MaxPayload = 64 << 10

// StartupCommand is reserved: Spawn registers it internally to observe the
// helper's handshake ack and callers may not register a handler for it.
const StartupCommand uint16 = 0

// ErrCommandReserved is returned by RegisterCommand for StartupCommand.
var ErrCommandReserved = errors.New("ipc: command 0 is reserved for the startup handshake")

// ErrPayloadTooLarge is returned by Send when the frame payload exceeds
// MaxPayload.
var ErrPayloadTooLarge = errors.New("ipc: payload exceeds max frame size")

// Frame is one length-prefixed message exchanged over a Channel: a 2-byte
// command, a 1-byte ack flag, a 4-byte big-endian payload length, then the
// payload itself.
type Frame struct {
	Command uint16
	Ack     bool
	Payload []byte
}

// Handler processes frames received for the command it was registered
// under. Payload semantics belong entirely to the handler; Channel only
// validates framing.
type Handler func(Frame)

// Channel is the bootstrapped pipe connection to one running
// kismet_capture process. The orchestrator registers it with the registry
// as a pollable.Pollable once the STARTUP handshake window has ended.
type Channel struct {
	cmd       *exec.Cmd
	toChild   *os.File
	fromChild *os.File
	reader    *bufio.Reader

	tree       *supervisor.Tree
	treeCancel context.CancelFunc
	registry   *registry.Registry

	mu       sync.Mutex
	handlers map[uint16]Handler
	synced   bool
	lastErr  error
	closing  bool

	writeMu sync.Mutex

	// waitDone is closed once helperWatcher's cmd.Wait() returns, so Close
	// can observe real process exit without calling Wait a second time.
	waitDone chan struct{}
	waitErr  error
	waitOnce sync.Once
}

// helperWatcher is the one suture.Service run under Channel's tree: it
// waits for the capture helper to exit and, unless the exit was requested
// by Close, marks the registry fatal so the core tears down rather than
// spinning with a dead helper. Unlike a typical suture service, a crashed
// capture helper cannot simply be restarted in place — it would need a
// fresh pipe pair and a repeated STARTUP handshake — so the watcher
// reports the failure instead of resurrecting the process itself.
type helperWatcher struct {
	c *Channel
}

// Serve waits for the helper to exit exactly once. suture restarts a
// service whose Serve returns, but the helper process can only exit once;
// waitOnce makes every restart after the first a no-op that simply blocks
// until ctx is canceled, rather than calling cmd.Wait a second time or
// reporting the same exit twice.
func (w *helperWatcher) Serve(ctx context.Context) error {
	first := false
	w.c.waitOnce.Do(func() {
		first = true
		err := w.c.cmd.Wait()

		w.c.mu.Lock()
		closing := w.c.closing
		w.c.waitErr = err
		w.c.mu.Unlock()
		close(w.c.waitDone)

		if !closing {
			reason := "capture helper exited unexpectedly"
			if err != nil {
				reason = fmt.Sprintf("capture helper exited unexpectedly: %v", err)
			}
			if w.c.registry != nil {
				w.c.registry.PushCriticalFailure(registry.CriticalFailure{Text: reason})
				w.c.registry.SetFatal(reason)
			}
		}
	})
	if !first {
		<-ctx.Done()
	}
	return nil
}

func (w *helperWatcher) String() string {
	return "ipc-helper-watcher"
}

// Spawn forks+execs helperPath with a bidirectional pipe pair wired to its
// stdin/stdout, starts a one-service supervisor tree that watches for the
// helper exiting unexpectedly, and registers the startup handshake handler.
// It does not itself run the bootstrap mini loop; the caller drives the
// returned Channel through internal/loop.Loop.RunBounded to observe the
// STARTUP handshake.
func Spawn(helperPath string, r *registry.Registry) (*Channel, error) {
	toChildRead, toChildWrite, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("ipc: create stdin pipe: %w", err)
	}
	fromChildRead, fromChildWrite, err := os.Pipe()
	if err != nil {
		toChildRead.Close()
		toChildWrite.Close()
		return nil, fmt.Errorf("ipc: create stdout pipe: %w", err)
	}

	cmd := exec.Command(helperPath)
	cmd.Stdin = toChildRead
	cmd.Stdout = fromChildWrite
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		toChildRead.Close()
		toChildWrite.Close()
		fromChildRead.Close()
		fromChildWrite.Close()
		classified := classifySpawnError(err)
		r.PushCriticalFailure(registry.CriticalFailure{Text: classified.Error()})
		r.SetFatal(classified.Error())
		return nil, classified
	}

	// The parent's copies of the child-owned ends are no longer needed.
	toChildRead.Close()
	fromChildWrite.Close()

	tree := supervisor.New("ipc-"+helperPath, logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	c := &Channel{
		cmd:       cmd,
		toChild:   toChildWrite,
		fromChild: fromChildRead,
		reader:    bufio.NewReader(fromChildRead),
		tree:      tree,
		registry:  r,
		handlers:  make(map[uint16]Handler),
		waitDone:  make(chan struct{}),
	}
	c.handlers[StartupCommand] = func(f Frame) {
		c.mu.Lock()
		c.synced = f.Ack
		c.mu.Unlock()
	}

	tree.Add(&helperWatcher{c: c})
	treeCtx, cancel := context.WithCancel(context.Background())
	c.treeCancel = cancel
	go func() {
		for err := range tree.ServeBackground(treeCtx) {
			if err != nil {
				logging.Error().Err(err).Msg("ipc supervisor tree exited")
			}
		}
	}()

	// Close is invoked explicitly by orchestrator.Teardown's step 5 (ask
	// the capture helper to shut down over IPC), not by the general
	// lifetime-global walk, since the two happen at distinct teardown
	// steps; Spawn deliberately does not call r.RegisterLifetimeGlobal.
	return c, nil
}

// classifySpawnError turns a process-start failure into the "kismet
// group" permission-denied message for EPERM/EACCES, or a generic
// wrapped error otherwise, per the capture helper's startup failure
// reporting.
func classifySpawnError(err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("ipc: permission denied launching capture helper; " +
			"verify the kismet user is a member of the kismet group: %w", err)
	}
	return fmt.Errorf("ipc: failed to launch capture helper: %w", err)
}

// RegisterCommand installs h to handle frames carrying cmd. It returns
// ErrCommandReserved for StartupCommand.
func (c *Channel) RegisterCommand(cmd uint16, h Handler) error {
	if cmd == StartupCommand {
		return ErrCommandReserved
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[cmd] = h
	return nil
}

// Send writes f to the child over the pipe.
func (c *Channel) Send(f Frame) error {
	if len(f.Payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	header := make([]byte, 7)
	binary.BigEndian.PutUint16(header[0:2], f.Command)
	if f.Ack {
		header[2] = 1
	}
	binary.BigEndian.PutUint32(header[3:7], uint32(len(f.Payload)))

	if _, err := c.toChild.Write(header); err != nil {
		return fmt.Errorf("ipc: write frame header: %w", err)
	}
	if len(f.Payload) > 0 {
		if _, err := c.toChild.Write(f.Payload); err != nil {
			return fmt.Errorf("ipc: write frame payload: %w", err)
		}
	}
	return nil
}

// Synced reports whether the STARTUP handshake has completed.
func (c *Channel) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

// Merge implements pollable.Pollable: it contributes the read side of the
// pipe from the child.
func (c *Channel) Merge(set *pollable.FDSet) error {
	set.AddRead(int(c.fromChild.Fd()))
	return nil
}

// Poll implements pollable.Pollable: if the child's fd is ready, it reads
// one frame and dispatches it to the registered handler, if any.
func (c *Channel) Poll(ready *pollable.ReadySet) error {
	if !ready.IsReadable(int(c.fromChild.Fd())) {
		return nil
	}

	header := make([]byte, 7)
	if _, err := io.ReadFull(c.reader, header); err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.mu.Unlock()
		return fmt.Errorf("%w: read frame header: %v", pollable.ErrFatal, err)
	}

	cmd := binary.BigEndian.Uint16(header[0:2])
	ack := header[2] != 0
	length := binary.BigEndian.Uint32(header[3:7])
	if length > MaxPayload {
		return fmt.Errorf("%w: frame payload %d exceeds max %d", pollable.ErrFatal, length, MaxPayload)
	}

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(c.reader, payload); err != nil {
			return fmt.Errorf("%w: read frame payload: %v", pollable.ErrFatal, err)
		}
	}

	c.mu.Lock()
	handler := c.handlers[cmd]
	c.mu.Unlock()
	if handler != nil {
		handler(Frame{Command: cmd, Ack: ack, Payload: payload})
	}
	return nil
}

// Close implements registry.LifetimeGlobal: it closes the pipe ends and
// waits for the helper process to exit. The actual cmd.Wait is performed
// once by helperWatcher under the supervisor tree; Close marks the exit as
// expected and blocks on waitDone instead of waiting a second time.
func (c *Channel) Close() error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	c.toChild.Close()
	c.fromChild.Close()

	select {
	case <-c.waitDone:
	case <-time.After(5 * time.Second):
		c.lastErr = fmt.Errorf("ipc: timed out waiting for capture helper to exit")
	}
	if c.treeCancel != nil {
		c.treeCancel()
	}

	c.mu.Lock()
	err := c.waitErr
	c.mu.Unlock()
	return err
}
