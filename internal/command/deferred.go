package command

import (
	"context"
)

// Deferred is the explicit asynchronous result type. A handler that cannot
// produce its value synchronously returns a Deferred instead of the value;
// the dispatcher awaits it before publishing the did-run event. There is no
// runtime shape-sniffing: only values implementing this interface suspend a
// dispatch.
type Deferred interface {
	// Await blocks until the deferred settles or ctx is done.
	Await(ctx context.Context) (any, error)
}

type deferred struct {
	done chan struct{}
	val  any
	err  error
}

// Defer starts fn on its own goroutine and returns a Deferred that settles
// with fn's result. The work starts immediately, not at Await time.
func Defer(fn func() (any, error)) Deferred {
	d := &deferred{done: make(chan struct{})}
	go func() {
		d.val, d.err = fn()
		close(d.done)
	}()
	return d
}

func (d *deferred) Await(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-d.done:
		return d.val, d.err
	}
}
