package bus

import (
	"context"
	"testing"

	"github.com/kismetwireless/kismet-core/internal/registry"
)

func TestFatalQueueClientForwardsFatalOnly(t *testing.T) {
	r := registry.New(0)
	client := NewFatalQueueClient(r)

	client.Receive(Message{Text: "ignored", Severity: SeverityInfo})
	client.Receive(Message{Text: "boom", Severity: SeverityFatal})

	failures := r.CriticalFailures()
	if len(failures) != 1 || failures[0].Text != "boom" {
		t.Fatalf("expected only the fatal message queued, got %+v", failures)
	}

	fatal, reason := r.Fatal()
	if !fatal || reason != "boom" {
		t.Errorf("expected registry marked fatal with reason 'boom', got %v %q", fatal, reason)
	}
}

func TestFatalQueueClientContextForwardsFatal(t *testing.T) {
	r := registry.New(0)
	client := NewFatalQueueClientContext(context.Background(), r)

	client.Receive(Message{Text: "dead", Severity: SeverityFatal})

	failures := r.CriticalFailures()
	if len(failures) != 1 || failures[0].Text != "dead" {
		t.Fatalf("expected fatal message queued, got %+v", failures)
	}
}

func TestFatalQueueClientViaBusRegistration(t *testing.T) {
	r := registry.New(0)
	b := New(0)
	b.Register(NewFatalQueueClient(r), SeverityFatal)

	b.Info("noise")
	b.Fatal("capture helper died")

	fatal, reason := r.Fatal()
	if !fatal || reason != "capture helper died" {
		t.Errorf("expected fatal reason from bus post, got %v %q", fatal, reason)
	}
}
