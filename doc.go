// Package tiercache serves reads through two cache tiers and collapses
// concurrent misses into batched fetches.
//
// Components:
//   - Provider: byte store with TTL. L1 is process-local and bounded (gcache
//     LRU by default, or ristretto/bigcache); L2 is shared (Redis).
//   - Codec[V]: (de)serializes V <-> []byte.
//   - GenStore: generation counter per key. Local (in-process) by default,
//     Redis when several processes share L2.
//   - Binding: per key-class policy {Strategy, L1TTL, L2TTL, Tiers}, fixed at
//     construction.
//   - Loader[V]: debounced, size-capped batching of Load calls in front of a
//     FetchFunc.
//
// Keys:
//
//	v:<ns>:<key>   - one frame per tier; L1 and L2 frames carry their own deadline
//
// Reads never return a frame whose generation differs from the current one, so
// a Remove is visible to every Get issued after it returns, even when a fetch
// started before the Remove fills the tiers afterwards.
//
// Typical wiring:
//
//	c, _ := tiercache.New[User](tiercache.Options[User]{
//	    Namespace: "app:user",
//	    Codec:     codec.JSON[User]{},
//	    L2:        l2,
//	    Classes: map[string]tiercache.Binding{
//	        "user":  {Strategy: tiercache.CacheAside, L1TTL: time.Minute, L2TTL: 10 * time.Minute},
//	        "price": {Strategy: tiercache.WriteThrough, L1TTL: 5 * time.Second, L2TTL: time.Minute},
//	    },
//	    Store: tiercache.StoreFunc[User](db.PutUser),
//	})
//	ld, _ := tiercache.NewLoader(c, "user", db.UsersByID, tiercache.LoaderOptions{})
//	r, err := ld.Load(ctx, "42").Wait(ctx)
package tiercache
