// Package asynchook runs tiercache hooks on background workers so slow
// implementations stay off the read path. Events are dropped when the queue
// is full.
//
// usage:
//
//	raw := loghooks.New(logger, loghooks.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := tiercache.New[User](tiercache.Options[User]{
//	    Namespace: "app:prod:user",
//	    Codec:     codec.JSON[User]{},
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tiercache"
)

type Hooks struct {
	inner   tiercache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex // guards closed against sends racing Close
	closed  bool
	dropped atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(inner tiercache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events sent after Close
// are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped counts events discarded because the queue was full or closed.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) Hit(t tiercache.Tier) { h.try(func() { h.inner.Hit(t) }) }
func (h *Hooks) Miss()                { h.try(h.inner.Miss) }
func (h *Hooks) SelfHeal(k string, t tiercache.Tier, r string) {
	h.try(func() { h.inner.SelfHeal(k, t, r) })
}
func (h *Hooks) TierUnavailable(t tiercache.Tier, op string, err error) {
	h.try(func() { h.inner.TierUnavailable(t, op, err) })
}
func (h *Hooks) ProviderSetRejected(k string, t tiercache.Tier) {
	h.try(func() { h.inner.ProviderSetRejected(k, t) })
}
func (h *Hooks) GenSnapshotError(n int, err error) {
	h.try(func() { h.inner.GenSnapshotError(n, err) })
}
func (h *Hooks) GenBumpError(k string, err error) { h.try(func() { h.inner.GenBumpError(k, err) }) }
func (h *Hooks) RemoveOutage(k string, be, te error) {
	h.try(func() { h.inner.RemoveOutage(k, be, te) })
}
func (h *Hooks) StaleFillSkipped(k string) { h.try(func() { h.inner.StaleFillSkipped(k) }) }
func (h *Hooks) BatchDispatched(class string, n int, took time.Duration, err error) {
	h.try(func() { h.inner.BatchDispatched(class, n, took, err) })
}
