package tiercache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Strategy decides what Set does. Get behaves the same under every strategy.
type Strategy uint8

const (
	// CacheAside writes the backing store (if Options.Store is set) and then
	// removes the key from every tier. The next read misses and refetches.
	CacheAside Strategy = iota
	// WriteThrough writes the backing store and, only if that succeeded,
	// replaces the entry in every participating tier with a fresh TTL.
	WriteThrough
)

func (s Strategy) String() string {
	switch s {
	case CacheAside:
		return "cache-aside"
	case WriteThrough:
		return "write-through"
	default:
		return fmt.Sprintf("strategy(%d)", uint8(s))
	}
}

// ParseStrategy accepts "cache-aside" and "write-through" (case-insensitive,
// '_' or '-' or nothing as separator).
func ParseStrategy(s string) (Strategy, error) {
	norm := strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.ToLower(s))
	switch norm {
	case "cacheaside", "":
		return CacheAside, nil
	case "writethrough":
		return WriteThrough, nil
	}
	return 0, fmt.Errorf("tiercache: unknown strategy %q", s)
}

func (s Strategy) valid() bool { return s == CacheAside || s == WriteThrough }

// Tier identifies one cache layer.
type Tier uint8

const (
	L1 Tier = iota + 1
	L2
)

func (t Tier) String() string {
	switch t {
	case L1:
		return "l1"
	case L2:
		return "l2"
	default:
		return "unknown"
	}
}

// TierSet selects which tiers a key class is written to.
type TierSet uint8

const (
	OnlyL1    TierSet = 1 << 0
	OnlyL2    TierSet = 1 << 1
	BothTiers         = OnlyL1 | OnlyL2
)

func (s TierSet) Has(t Tier) bool {
	switch t {
	case L1:
		return s&OnlyL1 != 0
	case L2:
		return s&OnlyL2 != 0
	}
	return false
}

// Binding is the cache policy of one key class. Zero TTLs and a zero TierSet
// take defaults (1m, 10m, both tiers).
type Binding struct {
	Strategy Strategy
	L1TTL    time.Duration
	L2TTL    time.Duration
	Tiers    TierSet
}

func (b Binding) withDefaults() Binding {
	b.L1TTL = coalesce(b.L1TTL, defaultL1TTL)
	b.L2TTL = coalesce(b.L2TTL, defaultL2TTL)
	b.Tiers = coalesce(b.Tiers, BothTiers)
	return b
}

// writePolicy is the Set half of a Strategy.
type writePolicy[V any] interface {
	set(ctx context.Context, c *cache[V], key string, r Result[V], b Binding) error
}

func policyFor[V any](s Strategy) writePolicy[V] {
	if s == WriteThrough {
		return writeThrough[V]{}
	}
	return cacheAside[V]{}
}

type cacheAside[V any] struct{}

func (cacheAside[V]) set(ctx context.Context, c *cache[V], key string, r Result[V], _ Binding) error {
	if c.store != nil {
		if err := c.store.Put(ctx, key, r); err != nil {
			return &StoreError{Key: key, Err: err}
		}
	}
	return c.Remove(ctx, key)
}

type writeThrough[V any] struct{}

func (writeThrough[V]) set(ctx context.Context, c *cache[V], key string, r Result[V], b Binding) error {
	if err := c.store.Put(ctx, key, r); err != nil {
		return &StoreError{Key: key, Err: err}
	}
	if !c.enabled {
		return nil
	}

	sk := c.storageKey(key)
	gen, err := c.gen.Bump(ctx, sk)
	if err != nil {
		// Without a fresh generation the new frame could lose to an older
		// in-flight fill, so fall back to invalidation.
		c.hooks.GenBumpError(sk, err)
		c.log.Warn("write-through gen bump failed; dropping cached entry", Fields{"key": key, "err": err})
		c.deleteTiers(ctx, sk)
		return nil
	}
	return c.writeFrames(ctx, sk, r, gen, b)
}
