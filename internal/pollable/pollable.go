// Package pollable defines the contract every fd-owning subsystem of the
// core implements so the event loop (internal/loop) can merge them into a
// single select() call instead of giving each subsystem its own thread.
//
// This mirrors the original Kismet Pollable interface (MergeSet/Poll), cut
// down to what a Go select()-based loop actually needs: a way to contribute
// descriptors to a read/write set, and a way to react once select() returns.
package pollable

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrFatal is returned by Poll when the pollable hit an unrecoverable error
// and the registry should be moved to a fatal shutdown.
var ErrFatal = errors.New("pollable: fatal condition")

// FDSet accumulates descriptors across every registered pollable ahead of a
// single unix.Select call. Max tracks the highest fd + 1, the nfds argument
// select(2) requires.
type FDSet struct {
	Read  unix.FdSet
	Write unix.FdSet
	Max   int
}

// AddRead registers fd for read-readiness and extends Max if needed.
func (s *FDSet) AddRead(fd int) {
	fdSet(&s.Read, fd)
	s.bump(fd)
}

// AddWrite registers fd for write-readiness and extends Max if needed.
func (s *FDSet) AddWrite(fd int) {
	fdSet(&s.Write, fd)
	s.bump(fd)
}

func (s *FDSet) bump(fd int) {
	if fd+1 > s.Max {
		s.Max = fd + 1
	}
}

// ReadySet is the read-only view of FDSet handed to Poll once select()
// returns, so a pollable can test IsReadable/IsWritable for its own fds.
type ReadySet struct {
	Read  *unix.FdSet
	Write *unix.FdSet
}

// IsReadable reports whether fd was marked ready for reading.
func (r *ReadySet) IsReadable(fd int) bool {
	return r.Read != nil && fdIsSet(r.Read, fd)
}

// IsWritable reports whether fd was marked ready for writing.
func (r *ReadySet) IsWritable(fd int) bool {
	return r.Write != nil && fdIsSet(r.Write, fd)
}

// Pollable is implemented by every subsystem that owns a file descriptor the
// event loop must watch, such as the IPC channel to the capture helper.
type Pollable interface {
	// Merge contributes this pollable's descriptors into set.
	Merge(set *FDSet) error

	// Poll is called once per loop iteration after select() returns,
	// regardless of whether this pollable's fds were ready, so it can also
	// drive time-based work. It returns ErrFatal (wrapped or bare) to report
	// an unrecoverable error. The loop does not mark the registry fatal on
	// its own: while running it stops only if the registry is already
	// fatal, and while draining an ErrFatal ends the drain.
	Poll(ready *ReadySet) error
}

// Token identifies a pollable registered with the registry so it can be
// deregistered later (a capture source going away, a dumpfile closing).
type Token struct {
	id     uint64
	remove func(uint64)
}

// Remove deregisters the pollable this token was issued for. Every call
// invokes the removal callback again with the same id; a repeat call is
// harmless only if that callback ignores unknown ids, as
// Registry.UnregisterPollable does.
func (t Token) Remove() {
	if t.remove != nil {
		t.remove(t.id)
	}
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
