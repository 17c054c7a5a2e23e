package orchestrator

import (
	"github.com/kismetwireless/kismet-core/internal/pollable"
)

// collaboratorStub stands in for a subsystem explicitly out of scope here
// (packet sources, dissectors, device tracker, alert tracker, dumpfile
// writers, HTTP route handlers, plugin scanner). Each stub satisfies
// pollable.Pollable and registry.LifetimeGlobal with no-ops so the
// orchestrator's construction order, registry bookkeeping, and teardown
// sequencing are exercised end-to-end even though the collaborator's real
// behavior lives outside this core.
type collaboratorStub struct {
	name string
}

// newCollaboratorStub names the stub for logging and /status reporting.
func newCollaboratorStub(name string) *collaboratorStub {
	return &collaboratorStub{name: name}
}

// Merge implements pollable.Pollable; a stub contributes no descriptors.
func (s *collaboratorStub) Merge(set *pollable.FDSet) error { return nil }

// Poll implements pollable.Pollable; a stub never has work to do.
func (s *collaboratorStub) Poll(ready *pollable.ReadySet) error { return nil }

// Close implements registry.LifetimeGlobal; a stub owns no resources.
func (s *collaboratorStub) Close() error { return nil }

// String names the stub for logs, mirroring how a real subsystem would
// identify itself in teardown/status output.
func (s *collaboratorStub) String() string { return s.name }
