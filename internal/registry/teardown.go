package registry

import (
	"reflect"
	"sync"
)

// Teardown closes every registered lifetime global in the reverse of its
// registration order, then every registered dumpfile in the reverse of
// its own order, then forgets every value stored with Insert. It is
// idempotent: a second call sees empty lists and returns no errors. Every
// Close is attempted even if an earlier one fails; all failures are
// returned together.
func (r *Registry) Teardown() []error {
	var errs []error

	errs = append(errs, closeReverse(&r.lifetimeMu, &r.lifetimes)...)
	errs = append(errs, closeReverse(&r.dumpfileMu, &r.dumpfiles)...)

	r.mu.Lock()
	r.services = make(map[reflect.Type]any)
	r.mu.Unlock()

	return errs
}

func closeReverse(mu *sync.Mutex, list *[]LifetimeGlobal) []error {
	mu.Lock()
	pending := *list
	*list = nil
	mu.Unlock()

	var errs []error
	for i := len(pending) - 1; i >= 0; i-- {
		if err := pending[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
