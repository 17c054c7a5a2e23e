package registry

import (
	"errors"
	"testing"

	"github.com/kismetwireless/kismet-core/internal/pollable"
)

type stubPollable struct{}

func (stubPollable) Merge(set *pollable.FDSet) error     { return nil }
func (stubPollable) Poll(ready *pollable.ReadySet) error { return nil }

type stubService struct{ name string }

func TestInsertFetchRoundTrip(t *testing.T) {
	r := New(0)
	if err := Insert(r, &stubService{name: "capture"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok := Fetch[*stubService](r)
	if !ok {
		t.Fatal("expected stored value to be found")
	}
	if got.name != "capture" {
		t.Errorf("expected name 'capture', got %q", got.name)
	}
}

func TestInsertRejectsDuplicateKey(t *testing.T) {
	r := New(0)
	if err := Insert(r, &stubService{name: "first"}); err != nil {
		t.Fatalf("unexpected error on first insert: %v", err)
	}
	err := Insert(r, &stubService{name: "second"})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey on second insert, got %v", err)
	}

	got, _ := Fetch[*stubService](r)
	if got.name != "first" {
		t.Errorf("expected the first-inserted value to survive a rejected duplicate, got %q", got.name)
	}
}

func TestFetchMissingTypeReturnsFalse(t *testing.T) {
	r := New(0)
	_, ok := Fetch[*stubService](r)
	if ok {
		t.Error("expected Fetch of unstored type to return false")
	}
}

func TestMustFetchPanicsWhenMissing(t *testing.T) {
	r := New(0)
	defer func() {
		if recover() == nil {
			t.Error("expected MustFetch to panic on missing type")
		}
	}()
	MustFetch[*stubService](r)
}

type closeRecorder struct {
	name  string
	order *[]string
	err   error
}

func (c *closeRecorder) Close() error {
	*c.order = append(*c.order, c.name)
	return c.err
}

func TestTeardownClosesInReverseOrder(t *testing.T) {
	r := New(0)
	var order []string
	r.RegisterLifetimeGlobal(&closeRecorder{name: "first", order: &order})
	r.RegisterLifetimeGlobal(&closeRecorder{name: "second", order: &order})
	r.RegisterLifetimeGlobal(&closeRecorder{name: "third", order: &order})

	errs := r.Teardown()
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %v", errs)
	}
	want := []string{"third", "second", "first"}
	for i, name := range want {
		if order[i] != name {
			t.Errorf("expected close order %v, got %v", want, order)
			break
		}
	}
}

func TestTeardownIsIdempotent(t *testing.T) {
	r := New(0)
	var order []string
	r.RegisterLifetimeGlobal(&closeRecorder{name: "only", order: &order})

	r.Teardown()
	errs := r.Teardown()
	if len(errs) != 0 {
		t.Errorf("expected second Teardown to report no errors, got %v", errs)
	}
	if len(order) != 1 {
		t.Errorf("expected Close invoked exactly once, got %d times", len(order))
	}
}

func TestTeardownCollectsAllErrors(t *testing.T) {
	r := New(0)
	var order []string
	boom := errors.New("boom")
	r.RegisterLifetimeGlobal(&closeRecorder{name: "ok", order: &order})
	r.RegisterLifetimeGlobal(&closeRecorder{name: "bad", order: &order, err: boom})

	errs := r.Teardown()
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %d", len(errs))
	}
}

func TestTeardownDumpfilesSeparateFromLifetimes(t *testing.T) {
	r := New(0)
	var order []string
	r.RegisterLifetimeGlobal(&closeRecorder{name: "lifetime", order: &order})
	r.RegisterDumpfile(&closeRecorder{name: "dumpfile", order: &order})

	r.Teardown()

	if len(order) != 2 || order[0] != "lifetime" || order[1] != "dumpfile" {
		t.Errorf("expected lifetimes closed before dumpfiles, got %v", order)
	}
}

func TestSpindownAndFatalFlags(t *testing.T) {
	r := New(0)
	if r.Spindown() {
		t.Error("expected Spindown false initially")
	}
	r.SetSpindown()
	if !r.Spindown() {
		t.Error("expected Spindown true after SetSpindown")
	}

	fatal, reason := r.Fatal()
	if fatal {
		t.Error("expected Fatal false initially")
	}
	r.SetFatal("capture helper exited")
	fatal, reason = r.Fatal()
	if !fatal || reason != "capture helper exited" {
		t.Errorf("expected fatal=true reason set, got fatal=%v reason=%q", fatal, reason)
	}
}

func TestSetFatalKeepsFirstReason(t *testing.T) {
	r := New(0)
	r.SetFatal("first")
	r.SetFatal("second")

	_, reason := r.Fatal()
	if reason != "first" {
		t.Errorf("expected first fatal reason retained, got %q", reason)
	}
}

func TestCriticalFailureQueueBounded(t *testing.T) {
	r := New(2)
	r.PushCriticalFailure(CriticalFailure{Text: "a"})
	r.PushCriticalFailure(CriticalFailure{Text: "b"})
	r.PushCriticalFailure(CriticalFailure{Text: "c"})

	failures := r.CriticalFailures()
	if len(failures) != 2 {
		t.Fatalf("expected queue capped at 2, got %d", len(failures))
	}
	if failures[0].Text != "b" || failures[1].Text != "c" {
		t.Errorf("expected oldest-evicted queue [b c], got %+v", failures)
	}
	if r.FatalQueueDepth() != 2 {
		t.Errorf("expected FatalQueueDepth 2, got %d", r.FatalQueueDepth())
	}
}

func TestSigchildPushAndDrain(t *testing.T) {
	r := New(0)
	r.PushSigchild(SigchildEvent{PID: 100, ExitCode: 0})
	r.PushSigchild(SigchildEvent{PID: 101, ExitCode: 1})

	events := r.DrainSigchild()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if remaining := r.DrainSigchild(); len(remaining) != 0 {
		t.Errorf("expected drain to empty the queue, got %d remaining", len(remaining))
	}
}

func TestPollableRegisterAndUnregister(t *testing.T) {
	r := New(0)
	id := r.RegisterPollable(stubPollable{})
	if len(r.Pollables()) != 1 {
		t.Fatal("expected one registered pollable")
	}
	r.UnregisterPollable(id)
	if len(r.Pollables()) != 0 {
		t.Error("expected pollable removed")
	}
}

type namedPollable struct {
	stubPollable
	name string
}

func TestPollablesPreservesRegistrationOrder(t *testing.T) {
	r := New(0)
	want := []string{"a", "b", "c", "d", "e"}
	for _, name := range want {
		r.RegisterPollable(namedPollable{name: name})
	}

	for attempt := 0; attempt < 20; attempt++ {
		got := make([]string, 0, len(want))
		for _, p := range r.Pollables() {
			got = append(got, p.(namedPollable).name)
		}
		if len(got) != len(want) {
			t.Fatalf("expected %d pollables, got %d", len(want), len(got))
		}
		for i, name := range want {
			if got[i] != name {
				t.Fatalf("expected registration order %v, got %v", want, got)
			}
		}
	}
}

func TestPollablesOrderSurvivesUnregisterOfMiddleEntry(t *testing.T) {
	r := New(0)
	idA := r.RegisterPollable(namedPollable{name: "a"})
	_ = idA
	idB := r.RegisterPollable(namedPollable{name: "b"})
	r.RegisterPollable(namedPollable{name: "c"})

	r.UnregisterPollable(idB)

	got := make([]string, 0, 2)
	for _, p := range r.Pollables() {
		got = append(got, p.(namedPollable).name)
	}
	want := []string{"a", "c"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected order %v after removing the middle entry, got %v", want, got)
	}
}

func TestNextOptionCodeIsMonotonic(t *testing.T) {
	r := New(0)
	a := r.NextOptionCode()
	b := r.NextOptionCode()
	if b != a+1 {
		t.Errorf("expected monotonic sequence, got %d then %d", a, b)
	}
}
