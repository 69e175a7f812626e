package tiercache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// FetchFunc loads keys from the source of truth. A key missing from the
// returned map is confirmed absent. An error fails the whole batch.
type FetchFunc[V any] func(ctx context.Context, keys []string) (map[string]V, error)

type LoaderOptions struct {
	DebounceWindow time.Duration   // 0 => 10ms, measured from the first key of a batch
	MaxBatchSize   int             // 0 => 100 distinct keys
	FetchTimeout   time.Duration   // 0 => no timeout
	Clock          clockwork.Clock // nil => real clock
	Logger         Logger          // if nil, NopLogger is used
	Hooks          Hooks           // if nil, NopHooks is used
}

// Stats are cumulative loader counters.
type Stats struct {
	Batches      uint64  // fetch calls made
	Requests     uint64  // Load calls that missed the cache
	CacheHits    uint64  // Load calls served by the cache
	Coalesced    uint64  // Load calls that joined a key already in the open batch
	Failures     uint64  // batches whose fetch failed
	AvgBatchSize float64 // distinct keys per fetch
}

// Loader collapses concurrent Load calls into batched fetches and fills the
// cache with the results. Create with NewLoader.
type Loader[V any] struct {
	cache        Cache[V]
	class        string
	fetch        FetchFunc[V]
	window       time.Duration
	maxBatch     int
	fetchTimeout time.Duration
	clock        clockwork.Clock
	log          Logger
	hooks        Hooks

	mu       sync.Mutex
	cur      *batch[V]
	closed   bool
	inflight sync.WaitGroup

	batches, requests, hits, coalesced, failures, fetchedKeys atomic.Uint64
}

type batch[V any] struct {
	keys   map[string]*pending[V]
	order  []string // admission order of the keys in keys
	timer  clockwork.Timer
	sealed bool
}

type pending[V any] struct {
	waiters map[*Future[V]]struct{}
}

// NewLoader builds a Loader whose results are cached under class.
func NewLoader[V any](c Cache[V], class string, fetch FetchFunc[V], opts LoaderOptions) (*Loader[V], error) {
	if c == nil {
		return nil, errors.New("tiercache: loader needs a cache")
	}
	if fetch == nil {
		return nil, errors.New("tiercache: loader needs a fetch func")
	}
	if opts.DebounceWindow < 0 || opts.MaxBatchSize < 0 || opts.FetchTimeout < 0 {
		return nil, errors.New("tiercache: negative loader option")
	}
	// surface an unknown class now rather than on the first fill
	if err := c.FillWithGens(context.Background(), nil, nil, class); err != nil {
		return nil, err
	}

	return &Loader[V]{
		cache:        c,
		class:        class,
		fetch:        fetch,
		window:       coalesce(opts.DebounceWindow, defaultDebounceWindow),
		maxBatch:     coalesce(opts.MaxBatchSize, defaultMaxBatchSize),
		fetchTimeout: opts.FetchTimeout,
		clock:        coalesce[clockwork.Clock](opts.Clock, clockwork.NewRealClock()),
		log:          coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:        coalesce[Hooks](opts.Hooks, NopHooks{}),
	}, nil
}

// Load returns a Future for key. A cache hit resolves it immediately;
// otherwise key joins the open batch. Cancelling ctx cancels the Future.
func (l *Loader[V]) Load(ctx context.Context, key string) *Future[V] {
	f := newFuture[V]()
	if err := ctx.Err(); err != nil {
		f.resolve(Result[V]{}, fmt.Errorf("%w: %w", ErrCanceled, err))
		return f
	}
	if r, ok := l.cache.Get(ctx, key); ok {
		l.hits.Add(1)
		f.resolve(r, nil)
		return f
	}
	if !l.admit(key, f) {
		f.resolve(Result[V]{}, ErrClosed)
		return f
	}
	f.watch(ctx)
	return f
}

// LoadMany loads keys and waits for all of them. Keys whose Future failed are
// left out of the map and the first such error is returned.
func (l *Loader[V]) LoadMany(ctx context.Context, keys []string) (map[string]Result[V], error) {
	futures := make(map[string]*Future[V], len(keys))
	for _, k := range keys {
		if _, ok := futures[k]; !ok {
			futures[k] = l.Load(ctx, k)
		}
	}
	out := make(map[string]Result[V], len(futures))
	var firstErr error
	for k, f := range futures {
		r, err := f.Wait(ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out[k] = r
	}
	return out, firstErr
}

func (l *Loader[V]) admit(key string, f *Future[V]) bool {
	var sealed *batch[V]

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	b := l.cur
	if b == nil {
		b = &batch[V]{keys: make(map[string]*pending[V])}
		b.timer = l.clock.AfterFunc(l.window, func() { l.sealOnTimer(b) })
		l.cur = b
	}
	p, ok := b.keys[key]
	if ok {
		l.coalesced.Add(1)
	} else {
		p = &pending[V]{waiters: make(map[*Future[V]]struct{})}
		b.keys[key] = p
		b.order = append(b.order, key)
	}
	p.waiters[f] = struct{}{}
	f.setDetach(func() { l.detach(b, key, f) })
	l.requests.Add(1)

	if len(b.keys) >= l.maxBatch {
		sealed = l.sealLocked()
	}
	l.mu.Unlock()

	if sealed != nil {
		go l.dispatch(sealed)
	}
	return true
}

// detach drops f from b. A key nobody waits on is dropped while b is open.
func (l *Loader[V]) detach(b *batch[V], key string, f *Future[V]) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b.sealed {
		return
	}
	p, ok := b.keys[key]
	if !ok {
		return
	}
	delete(p.waiters, f)
	if len(p.waiters) > 0 {
		return
	}
	delete(b.keys, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	if len(b.keys) == 0 && l.cur == b {
		b.timer.Stop()
		l.cur = nil
	}
}

func (l *Loader[V]) sealOnTimer(b *batch[V]) {
	l.mu.Lock()
	if l.cur != b {
		// already sealed by size, Close, or emptied by cancellation
		l.mu.Unlock()
		return
	}
	sealed := l.sealLocked()
	l.mu.Unlock()
	go l.dispatch(sealed)
}

// sealLocked detaches the open batch. Caller holds l.mu and must dispatch it.
func (l *Loader[V]) sealLocked() *batch[V] {
	b := l.cur
	l.cur = nil
	b.sealed = true
	b.timer.Stop()
	l.inflight.Add(1)
	return b
}

func (l *Loader[V]) dispatch(b *batch[V]) {
	defer l.inflight.Done()

	// detach already removed cancelled keys from b.order
	keys := append([]string(nil), b.order...)
	if len(keys) == 0 {
		return
	}

	ctx := context.Background()
	if l.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.fetchTimeout)
		defer cancel()
	}

	start := l.clock.Now()
	// taken before the fetch so a Remove racing it wins
	gens, genErr := l.cache.SnapshotGens(ctx, keys)
	vals, err := l.safeFetch(ctx, keys)
	took := l.clock.Since(start)

	l.batches.Add(1)
	l.fetchedKeys.Add(uint64(len(keys)))
	l.hooks.BatchDispatched(l.class, len(keys), took, err)

	if err != nil {
		l.failures.Add(1)
		l.log.Warn("batch fetch failed", Fields{"class": l.class, "keys": len(keys), "took": took, "err": err})
		ferr := &FetchError{Keys: keys, Err: err}
		for _, p := range b.keys {
			for f := range p.waiters {
				f.resolve(Result[V]{}, ferr)
			}
		}
		return
	}

	results := make(map[string]Result[V], len(keys))
	for _, k := range keys {
		if v, ok := vals[k]; ok {
			results[k] = Present(v)
		} else {
			results[k] = Absent[V]()
		}
	}
	if genErr != nil {
		l.log.Debug("fill skipped (no gen snapshot)", Fields{"class": l.class, "keys": len(keys)})
	} else if err := l.cache.FillWithGens(ctx, results, gens, l.class); err != nil {
		l.log.Warn("cache fill failed", Fields{"class": l.class, "keys": len(keys), "err": err})
	}
	l.log.Debug("batch dispatched", Fields{"class": l.class, "keys": len(keys), "took": took})

	for k, p := range b.keys {
		r := results[k]
		for f := range p.waiters {
			f.resolve(r, nil)
		}
	}
}

func (l *Loader[V]) safeFetch(ctx context.Context, keys []string) (vals map[string]V, err error) {
	defer func() {
		if r := recover(); r != nil {
			vals, err = nil, fmt.Errorf("%w: %v", ErrFetchPanicked, r)
		}
	}()
	return l.fetch(ctx, keys)
}

// Stats returns a snapshot of the loader counters.
func (l *Loader[V]) Stats() Stats {
	s := Stats{
		Batches:   l.batches.Load(),
		Requests:  l.requests.Load(),
		CacheHits: l.hits.Load(),
		Coalesced: l.coalesced.Load(),
		Failures:  l.failures.Load(),
	}
	if s.Batches > 0 {
		s.AvgBatchSize = float64(l.fetchedKeys.Load()) / float64(s.Batches)
	}
	return s
}

// Close seals the open batch, waits for in-flight fetches, and makes later
// Loads resolve with ErrClosed. It does not close the cache.
func (l *Loader[V]) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	var sealed *batch[V]
	if l.cur != nil {
		sealed = l.sealLocked()
	}
	l.mu.Unlock()

	if sealed != nil {
		go l.dispatch(sealed)
	}

	done := make(chan struct{})
	go func() {
		l.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
