// Package bus implements the core's severity-masked publish/subscribe
// message bus: every subsystem posts human-readable status lines here
// instead of logging directly, and each subscriber (the stdout client, the
// fatal-message queue) decides independently which severities it wants
// delivered.
//
// A Bus is an ordinary value built with New. Its subscription list is
// guarded by an RWMutex and its scrollback ring by a separate mutex, so it
// is safe for concurrent use from every goroutine that can post a message.
package bus

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/kismetwireless/kismet-core/internal/logging"
)

// Severity is a bitmask so a client can subscribe to more than one level at
// once, matching the original MSGFLAG_* bitmask Kismet clients filtered on.
type Severity uint8

const (
	// SeverityInfo is routine operational status.
	SeverityInfo Severity = 1 << iota
	// SeverityError is a recoverable problem a subsystem reports but can
	// continue past.
	SeverityError
	// SeverityFatal is an unrecoverable condition; posting one moves the
	// registry toward shutdown (internal/registry.SetFatal).
	SeverityFatal
	// SeverityDebug is verbose diagnostic chatter, normally filtered out.
	SeverityDebug
)

// SeverityAll matches every severity; the orchestrator registers the stdout
// client with it.
const SeverityAll = SeverityInfo | SeverityError | SeverityFatal | SeverityDebug

// Message is one posted status line.
type Message struct {
	Text     string
	Severity Severity
}

// Client receives messages whose severity matches the mask it registered
// with.
type Client interface {
	Receive(msg Message)
}

// ClientFunc adapts a plain function to the Client interface.
type ClientFunc func(msg Message)

// Receive implements Client.
func (f ClientFunc) Receive(msg Message) { f(msg) }

type subscription struct {
	id     uint64
	client Client
	mask   Severity
}

// Bus is the process-wide message bus. The zero value is not usable; build
// one with New. Subscriptions are kept in registration order: Post walks
// them in that order, matching "order of clients is registration order."
type Bus struct {
	mu            sync.RWMutex
	subscriptions []subscription
	nextID        uint64

	ringMu  sync.Mutex
	ring    []Message
	ringCap int
}

// DefaultRingCapacity is how many recent messages New retains for clients
// that subscribe after messages were already posted (the console wrapper
// attaching mid-run, for example).
const DefaultRingCapacity = 50

// New builds an empty bus with the given scrollback ring capacity. A
// capacity <= 0 falls back to DefaultRingCapacity.
func New(ringCapacity int) *Bus {
	if ringCapacity <= 0 {
		ringCapacity = DefaultRingCapacity
	}
	return &Bus{
		ringCap: ringCapacity,
	}
}

// Subscription identifies a registered client so it can be removed later.
type Subscription struct {
	id  uint64
	bus *Bus
}

// Unregister removes the client from the bus. Safe to call more than once.
func (s Subscription) Unregister() {
	if s.bus == nil {
		return
	}
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	for i, sub := range s.bus.subscriptions {
		if sub.id == s.id {
			s.bus.subscriptions = append(s.bus.subscriptions[:i], s.bus.subscriptions[i+1:]...)
			break
		}
	}
}

// Register subscribes client to every message whose severity intersects
// mask, in the order Register was called.
func (b *Bus) Register(client Client, mask Severity) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.subscriptions = append(b.subscriptions, subscription{id: id, client: client, mask: mask})
	return Subscription{id: id, bus: b}
}

// Unregister removes the client that sub was returned for; it is the same
// as calling sub.Unregister().
func (b *Bus) Unregister(sub Subscription) {
	sub.Unregister()
}

// Post delivers msg to every subscribed client whose mask matches, in
// registration order, and appends it to the scrollback ring regardless of
// subscriber interest. A client whose Receive panics is caught and demoted
// to a direct stderr note instead of crashing the loop or being re-posted
// (which would risk a recursive panic).
func (b *Bus) Post(msg Message) {
	b.appendRing(msg)

	b.mu.RLock()
	subs := make([]subscription, len(b.subscriptions))
	copy(subs, b.subscriptions)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.mask&msg.Severity != 0 {
			deliver(sub.client, msg)
		}
	}
}

func deliver(client Client, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "bus: client panicked handling message %q: %v\n", msg.Text, r)
		}
	}()
	client.Receive(msg)
}

// Info posts an SeverityInfo message.
func (b *Bus) Info(text string) { b.Post(Message{Text: text, Severity: SeverityInfo}) }

// Error posts a SeverityError message.
func (b *Bus) Error(text string) { b.Post(Message{Text: text, Severity: SeverityError}) }

// Fatal posts a SeverityFatal message.
func (b *Bus) Fatal(text string) { b.Post(Message{Text: text, Severity: SeverityFatal}) }

// Debug posts a SeverityDebug message.
func (b *Bus) Debug(text string) { b.Post(Message{Text: text, Severity: SeverityDebug}) }

// Scrollback returns a copy of the retained ring buffer, oldest first.
// Every posted message enters the ring, whatever clients are registered.
func (b *Bus) Scrollback() []Message {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	out := make([]Message, len(b.ring))
	copy(out, b.ring)
	return out
}

func (b *Bus) appendRing(msg Message) {
	b.ringMu.Lock()
	defer b.ringMu.Unlock()
	b.ring = append(b.ring, msg)
	if len(b.ring) > b.ringCap {
		b.ring = b.ring[len(b.ring)-b.ringCap:]
	}
}

// StdoutClient writes every message it receives through the process logger
// at the severity-appropriate level, unless SetSilent(true) has been
// called — the Go equivalent of the original's "--silent" flag, which
// mutes the stdout formatter in place after setup rather than detaching it
// from the bus entirely.
type StdoutClient struct {
	silent atomic.Bool
}

// NewStdoutClient returns a StdoutClient, unmuted by default.
func NewStdoutClient() *StdoutClient {
	return &StdoutClient{}
}

// SetSilent toggles whether Receive actually writes; it never unsubscribes
// the client from the bus.
func (c *StdoutClient) SetSilent(silent bool) {
	c.silent.Store(silent)
}

// Receive implements Client.
func (c *StdoutClient) Receive(msg Message) {
	if c.silent.Load() {
		return
	}
	switch msg.Severity {
	case SeverityFatal:
		logging.Error().Str("source", "bus").Msg(msg.Text)
	case SeverityError:
		logging.Warn().Str("source", "bus").Msg(msg.Text)
	case SeverityDebug:
		logging.Debug().Str("source", "bus").Msg(msg.Text)
	default:
		logging.Info().Str("source", "bus").Msg(msg.Text)
	}
}
