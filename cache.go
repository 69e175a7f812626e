package tiercache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	c "github.com/unkn0wn-root/tiercache/codec"
	gen "github.com/unkn0wn-root/tiercache/genstore"
	"github.com/unkn0wn-root/tiercache/internal/wire"
	pr "github.com/unkn0wn-root/tiercache/provider"
	l1lru "github.com/unkn0wn-root/tiercache/provider/gcache"
)

type tier struct {
	id Tier
	p  pr.Provider
}

type cache[V any] struct {
	ns             string
	l1             *tier
	l2             *tier
	codec          c.Codec[V]
	store          Store[V]
	classes        map[string]Binding
	defaultBinding Binding
	log            Logger
	hooks          Hooks
	clock          clockwork.Clock
	enabled        bool
	computeSetCost SetCostFunc
	gen            gen.GenStore

	// collapses concurrent L2 reads of one storage key
	l2Reads singleflight.Group
}

var _ Cache[struct{}] = (*cache[struct{}])(nil)

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Namespace == "" {
		return nil, ErrNamespaceRequired
	}
	if opts.Codec == nil {
		return nil, ErrCodecRequired
	}

	c := &cache[V]{
		ns:      opts.Namespace,
		codec:   opts.Codec,
		store:   opts.Store,
		enabled: !opts.Disabled,
		classes: make(map[string]Binding, len(opts.Classes)),
	}

	// defaults
	c.log = coalesce[Logger](opts.Logger, NopLogger{})
	c.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	c.clock = coalesce[clockwork.Clock](opts.Clock, clockwork.NewRealClock())
	sweep := coalesce(opts.CleanupInterval, defaultSweep)
	retention := coalesce(opts.GenRetention, defaultGenRetention)

	if opts.ComputeSetCost != nil {
		c.computeSetCost = opts.ComputeSetCost
	} else {
		c.computeSetCost = func(string, []byte) int64 { return 1 }
	}

	bindings := map[string]Binding{"": opts.DefaultBinding}
	for name, b := range opts.Classes {
		if name == "" {
			return nil, errors.New("tiercache: class name must not be empty (use DefaultBinding)")
		}
		bindings[name] = b
	}
	for name, b := range bindings {
		if !b.Strategy.valid() {
			return nil, fmt.Errorf("tiercache: class %q: invalid strategy %d", name, b.Strategy)
		}
		if b.L1TTL < 0 || b.L2TTL < 0 {
			return nil, fmt.Errorf("tiercache: class %q: negative ttl", name)
		}
		if b.Strategy == WriteThrough && opts.Store == nil {
			return nil, fmt.Errorf("%w (class %q)", ErrStoreRequired, name)
		}
		b = b.withDefaults()
		if name == "" {
			c.defaultBinding = b
		} else {
			c.classes[name] = b
		}
	}

	if opts.L1 != nil {
		c.l1 = &tier{id: L1, p: opts.L1}
	} else {
		p, err := l1lru.New(l1lru.Config{Capacity: coalesce(opts.L1Capacity, defaultL1Capacity)})
		if err != nil {
			return nil, fmt.Errorf("tiercache: default l1: %w", err)
		}
		c.l1 = &tier{id: L1, p: p}
	}
	if opts.L2 != nil {
		c.l2 = &tier{id: L2, p: opts.L2}
	}

	if opts.GenStore != nil {
		c.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		c.gen = gen.NewLocalGenStoreWithClock(c.clock, sweep, retention)
	}

	return c, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

// Close closes the gen store and both tiers. All errors are joined.
func (c *cache[V]) Close(ctx context.Context) error {
	var errs []error
	if c.gen != nil {
		errs = append(errs, c.gen.Close(ctx))
	}
	for _, t := range c.tiers() {
		errs = append(errs, t.p.Close(ctx))
	}
	return errors.Join(errs...)
}

func (c *cache[V]) binding(class string) (Binding, error) {
	if class == "" {
		return c.defaultBinding, nil
	}
	b, ok := c.classes[class]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %q", ErrUnknownClass, class)
	}
	return b, nil
}

func (c *cache[V]) Get(ctx context.Context, key string) (Result[V], bool) {
	var zero Result[V]
	if !c.enabled {
		c.hooks.Miss()
		return zero, false
	}
	sk := c.storageKey(key)
	g := genSnapshot{c: c, sk: sk}

	if f, ok := c.readFrame(ctx, c.l1, sk); ok {
		if r, ok := c.accept(ctx, c.l1, sk, f, &g); ok {
			c.hooks.Hit(L1)
			return r, true
		}
	}

	if c.l2 != nil {
		if f, ok := c.readFrame(ctx, c.l2, sk); ok {
			if r, ok := c.accept(ctx, c.l2, sk, f, &g); ok {
				if f.PromoteTTL > 0 {
					c.promote(ctx, sk, f)
				}
				c.hooks.Hit(L2)
				return r, true
			}
		}
	}

	c.hooks.Miss()
	return zero, false
}

// genSnapshot reads the current generation at most once per Get, and only
// once a frame was found.
type genSnapshot struct {
	c    interface{ snapshot(context.Context, string) (uint64, error) }
	sk   string
	done bool
	gen  uint64
	err  error
}

func (g *genSnapshot) get(ctx context.Context) (uint64, error) {
	if !g.done {
		g.gen, g.err = g.c.snapshot(ctx, g.sk)
		g.done = true
	}
	return g.gen, g.err
}

// readFrame fetches and decodes the frame of sk from t. Corrupt and expired
// frames are deleted and read as a miss.
func (c *cache[V]) readFrame(ctx context.Context, t *tier, sk string) (wire.Frame, bool) {
	raw, ok, err := c.rawGet(ctx, t, sk)
	if err != nil {
		c.tierFailed(t, "get", sk, err)
		return wire.Frame{}, false
	}
	if !ok {
		return wire.Frame{}, false
	}
	f, err := wire.Decode(raw)
	if err != nil {
		c.heal(ctx, t, sk, "corrupt")
		return wire.Frame{}, false
	}
	if f.Expired(c.clock.Now().UnixNano()) {
		c.del(ctx, t, sk)
		return wire.Frame{}, false
	}
	return f, true
}

type rawRead struct {
	b  []byte
	ok bool
}

func (c *cache[V]) rawGet(ctx context.Context, t *tier, sk string) ([]byte, bool, error) {
	if t.id != L2 {
		return t.p.Get(ctx, sk)
	}
	v, err, _ := c.l2Reads.Do(sk, func() (interface{}, error) {
		b, ok, err := t.p.Get(ctx, sk)
		return rawRead{b: b, ok: ok}, err
	})
	if err != nil {
		return nil, false, err
	}
	rr := v.(rawRead)
	return rr.b, rr.ok, nil
}

// accept validates the frame's generation and decodes its value.
func (c *cache[V]) accept(ctx context.Context, t *tier, sk string, f wire.Frame, g *genSnapshot) (Result[V], bool) {
	var zero Result[V]
	cur, err := g.get(ctx)
	if err != nil {
		// can't validate; don't delete what may be a good entry
		return zero, false
	}
	if f.Gen != cur {
		c.heal(ctx, t, sk, "gen_mismatch")
		return zero, false
	}
	if f.Absent {
		return Absent[V](), true
	}
	v, err := c.codec.Decode(f.Payload)
	if err != nil {
		c.heal(ctx, t, sk, "value_decode")
		return zero, false
	}
	return Present(v), true
}

// promote copies an L2 frame into L1 with a fresh L1 deadline.
func (c *cache[V]) promote(ctx context.Context, sk string, f wire.Frame) {
	ttl := time.Duration(f.PromoteTTL)
	f.ExpireAt = c.clock.Now().Add(ttl).UnixNano()
	f.PromoteTTL = 0
	c.setFrame(ctx, c.l1, sk, wire.Encode(f), ttl)
}

func (c *cache[V]) Set(ctx context.Context, key string, r Result[V], class string) error {
	b, err := c.binding(class)
	if err != nil {
		return err
	}
	return policyFor[V](b.Strategy).set(ctx, c, key, r, b)
}

// Remove bumps the generation first so in-flight fills are rejected, then
// deletes from both tiers. It errors only when neither step can be relied on.
func (c *cache[V]) Remove(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	sk := c.storageKey(key)
	newGen, bumpErr := c.gen.Bump(ctx, sk)
	if bumpErr != nil {
		c.hooks.GenBumpError(sk, bumpErr)
		c.log.Error("gen bump error", Fields{"key": sk, "err": bumpErr})
	}
	tierErrs := c.deleteTiers(ctx, sk)

	if bumpErr != nil && len(tierErrs) > 0 {
		joined := errors.Join(tierErrs...)
		c.hooks.RemoveOutage(key, bumpErr, joined)
		return &RemoveError{Key: key, BumpErr: bumpErr, TierErrs: tierErrs}
	}
	c.log.Debug("removed key (bumped gen + cleared tiers)", Fields{"key": key, "newGen": newGen})
	return nil
}

func (c *cache[V]) SnapshotGens(ctx context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	storage := make([]string, len(keys))
	for i, k := range keys {
		storage[i] = c.storageKey(k)
	}
	m, err := c.gen.SnapshotMany(ctx, storage)
	if err != nil {
		c.hooks.GenSnapshotError(len(keys), err)
		c.log.Warn("gen snapshot error", Fields{"count": len(keys), "err": err})
		return nil, err
	}
	for i, k := range keys {
		out[k] = m[storage[i]]
	}
	return out, nil
}

func (c *cache[V]) FillWithGens(ctx context.Context, items map[string]Result[V], observedGens map[string]uint64, class string) error {
	b, err := c.binding(class)
	if err != nil {
		return err
	}
	if !c.enabled || len(items) == 0 {
		return nil
	}

	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	current, err := c.SnapshotGens(ctx, keys)
	if err != nil {
		return err
	}

	var errs []error
	for _, k := range keys {
		obs, ok := observedGens[k]
		if !ok || current[k] != obs {
			// generation moved; skip stale write
			c.hooks.StaleFillSkipped(k)
			c.log.Debug("fill skipped (gen mismatch)", Fields{"key": k, "obs": obs})
			continue
		}
		if err := c.writeFrames(ctx, c.storageKey(k), items[k], obs, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// writeFrames writes r to every tier of b. Tier failures are reported and
// skipped; only an encode error is returned.
func (c *cache[V]) writeFrames(ctx context.Context, sk string, r Result[V], g uint64, b Binding) error {
	var payload []byte
	if r.Found {
		var err error
		if payload, err = c.codec.Encode(r.Value); err != nil {
			return fmt.Errorf("tiercache: encode %q: %w", sk, err)
		}
	}
	now := c.clock.Now()

	if b.Tiers.Has(L1) {
		f := wire.Frame{Absent: !r.Found, Gen: g, ExpireAt: now.Add(b.L1TTL).UnixNano(), Payload: payload}
		c.setFrame(ctx, c.l1, sk, wire.Encode(f), b.L1TTL)
	}
	if b.Tiers.Has(L2) && c.l2 != nil {
		f := wire.Frame{Absent: !r.Found, Gen: g, ExpireAt: now.Add(b.L2TTL).UnixNano(), Payload: payload}
		if b.Tiers.Has(L1) {
			f.PromoteTTL = int64(b.L1TTL)
		}
		c.setFrame(ctx, c.l2, sk, wire.Encode(f), b.L2TTL)
	}
	return nil
}

func (c *cache[V]) setFrame(ctx context.Context, t *tier, sk string, raw []byte, ttl time.Duration) {
	ok, err := t.p.Set(ctx, sk, raw, c.computeSetCost(sk, raw), ttl)
	if err != nil {
		c.tierFailed(t, "set", sk, err)
		return
	}
	if !ok {
		c.hooks.ProviderSetRejected(sk, t.id)
		c.log.Debug("set rejected by provider (pressure)", Fields{"key": sk, "tier": t.id.String()})
	}
}

// deleteTiers deletes sk from both tiers and returns the failures.
func (c *cache[V]) deleteTiers(ctx context.Context, sk string) []error {
	var errs []error
	for _, t := range c.tiers() {
		if err := c.del(ctx, t, sk); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.id, err))
		}
	}
	return errs
}

func (c *cache[V]) del(ctx context.Context, t *tier, sk string) error {
	err := t.p.Del(ctx, sk)
	if err != nil {
		c.tierFailed(t, "del", sk, err)
	}
	return err
}

func (c *cache[V]) heal(ctx context.Context, t *tier, sk, reason string) {
	_ = c.del(ctx, t, sk)
	c.hooks.SelfHeal(sk, t.id, reason)
	c.log.Debug("self-heal", Fields{"key": sk, "tier": t.id.String(), "reason": reason})
}

func (c *cache[V]) tierFailed(t *tier, op, sk string, err error) {
	c.hooks.TierUnavailable(t.id, op, err)
	c.log.Warn("tier unavailable", Fields{"tier": t.id.String(), "op": op, "key": sk, "err": err})
}

func (c *cache[V]) tiers() []*tier {
	if c.l2 == nil {
		return []*tier{c.l1}
	}
	return []*tier{c.l1, c.l2}
}

func (c *cache[V]) snapshot(ctx context.Context, sk string) (uint64, error) {
	g, err := c.gen.Snapshot(ctx, sk)
	if err != nil {
		c.hooks.GenSnapshotError(1, err)
		c.log.Warn("gen snapshot error", Fields{"key": sk, "err": err})
	}
	return g, err
}

func (c *cache[V]) storageKey(userKey string) string {
	// isolate by namespace
	return "v:" + c.ns + ":" + userKey
}
