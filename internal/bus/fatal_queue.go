package bus

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/kismetwireless/kismet-core/internal/registry"
)

// fatalQueueLimit bounds how fast SeverityFatal messages are forwarded into
// the registry's critical-failure queue, whenever they are posted, so a
// crashing subsystem that posts the same failure in a tight loop cannot
// flood it.
const fatalQueueLimit = rate.Limit(20) // messages/sec

// NewFatalQueueClient returns a Client that forwards every SeverityFatal
// message into r's bounded critical-failure queue and marks the registry
// fatal. A token-bucket limiter keeps a misbehaving subsystem from
// flooding the queue faster than the teardown log can usefully report it.
func NewFatalQueueClient(r *registry.Registry) Client {
	limiter := rate.NewLimiter(fatalQueueLimit, int(fatalQueueLimit))
	return ClientFunc(func(msg Message) {
		if msg.Severity != SeverityFatal {
			return
		}
		if !limiter.Allow() {
			return
		}
		r.PushCriticalFailure(registry.CriticalFailure{Text: msg.Text})
		r.SetFatal(msg.Text)
	})
}

// NewFatalQueueClientContext is like NewFatalQueueClient but blocks up to
// the limiter's burst window rather than silently dropping a message,
// for callers that would rather pay latency than lose a failure reason.
func NewFatalQueueClientContext(ctx context.Context, r *registry.Registry) Client {
	limiter := rate.NewLimiter(fatalQueueLimit, int(fatalQueueLimit))
	return ClientFunc(func(msg Message) {
		if msg.Severity != SeverityFatal {
			return
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		r.PushCriticalFailure(registry.CriticalFailure{Text: msg.Text})
		r.SetFatal(msg.Text)
	})
}
