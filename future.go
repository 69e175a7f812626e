package tiercache

import (
	"context"
	"fmt"
	"sync"
)

// Future is one caller's handle on a Load. It resolves exactly once, to a
// Result or to an error.
type Future[V any] struct {
	done chan struct{}
	once sync.Once
	res  Result[V]
	err  error

	mu       sync.Mutex
	resolved bool
	stop     func() bool // releases the ctx watch
	detach   func()      // drops this waiter from an unsealed batch
}

func newFuture[V any]() *Future[V] {
	return &Future[V]{done: make(chan struct{})}
}

// Wait blocks until the Future resolves or ctx is done. Giving up on ctx does
// not cancel the Future; call Cancel for that.
func (f *Future[V]) Wait(ctx context.Context) (Result[V], error) {
	select {
	case <-f.done:
		return f.res, f.err
	case <-ctx.Done():
		return Result[V]{}, ctx.Err()
	}
}

// Done is closed once the Future resolved.
func (f *Future[V]) Done() <-chan struct{} { return f.done }

// Cancel resolves the Future with ErrCanceled. If its batch is still open and
// no other caller waits on the key, the key is dropped from the batch.
// No-op once resolved.
func (f *Future[V]) Cancel() { f.cancelWith(context.Canceled) }

func (f *Future[V]) cancelWith(cause error) {
	f.mu.Lock()
	detach := f.detach
	f.mu.Unlock()
	if detach != nil {
		detach()
	}
	f.resolve(Result[V]{}, fmt.Errorf("%w: %w", ErrCanceled, cause))
}

func (f *Future[V]) resolve(r Result[V], err error) bool {
	first := false
	f.once.Do(func() {
		f.res, f.err = r, err
		close(f.done)
		first = true

		f.mu.Lock()
		f.resolved = true
		stop := f.stop
		f.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
	return first
}

// watch cancels the Future when ctx is done.
func (f *Future[V]) watch(ctx context.Context) {
	if ctx.Done() == nil {
		return
	}
	stop := context.AfterFunc(ctx, func() { f.cancelWith(context.Cause(ctx)) })
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		stop()
		return
	}
	f.stop = stop
	f.mu.Unlock()
}

func (f *Future[V]) setDetach(fn func()) {
	f.mu.Lock()
	f.detach = fn
	f.mu.Unlock()
}
