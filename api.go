package tiercache

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	c "github.com/unkn0wn-root/tiercache/codec"
	gen "github.com/unkn0wn-root/tiercache/genstore"
	pr "github.com/unkn0wn-root/tiercache/provider"
)

// SetCostFunc returns the admission cost of a frame for cost-aware tiers.
type SetCostFunc func(storageKey string, raw []byte) int64

// Cache is the two-tier cache. V is the caller's value type; serialization is
// handled by a pluggable Codec[V].
type Cache[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// Get checks L1, then L2, promoting L2 hits into L1. ok=false is a miss;
	// a hit may still be an Absent result. Tier failures read as misses.
	Get(ctx context.Context, key string) (r Result[V], ok bool)
	// Set applies the Strategy bound to class. "" selects Options.DefaultBinding.
	Set(ctx context.Context, key string, r Result[V], class string) error
	// Remove deletes key from every tier, whatever its class.
	Remove(ctx context.Context, key string) error

	// SnapshotGens returns the current generation of each key. Take it before
	// reading the source of truth and hand it to FillWithGens.
	SnapshotGens(ctx context.Context, keys []string) (map[string]uint64, error)
	// FillWithGens writes fetched results to the tiers of class, skipping keys
	// whose generation moved since the snapshot.
	FillWithGens(ctx context.Context, items map[string]Result[V], observedGens map[string]uint64, class string) error
}

// Store is the backing store Set writes to. Found=false asks the store to
// delete key.
type Store[V any] interface {
	Put(ctx context.Context, key string, r Result[V]) error
}

// StoreFunc adapts a function to Store.
type StoreFunc[V any] func(ctx context.Context, key string, r Result[V]) error

func (f StoreFunc[V]) Put(ctx context.Context, key string, r Result[V]) error { return f(ctx, key, r) }

// Options tune the behavior of the cache.
// Only Namespace and Codec are required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Namespace string // logical namespace to avoid collisions. e.g. "user", "price"
	Codec     c.Codec[V]

	L1         pr.Provider // nil => gcache LRU holding L1Capacity entries
	L1Capacity int         // 0 => 10k
	L2         pr.Provider // nil => L1 only

	// Classes binds key classes to their policy. Bindings are fixed for the
	// lifetime of the cache.
	Classes        map[string]Binding
	DefaultBinding Binding // class ""; zero => cache-aside, 1m/10m, both tiers
	Store          Store[V]

	Logger          Logger          // if nil, NopLogger is used
	Hooks           Hooks           // if nil, NopHooks is used
	Clock           clockwork.Clock // nil => real clock
	CleanupInterval time.Duration   // 0 => 1h
	GenRetention    time.Duration   // 0 => 30d
	Disabled        bool            // default false (enabled)
	ComputeSetCost  SetCostFunc     // default 1
	GenStore        gen.GenStore    // nil => LocalGenStore (in-process)
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
