package tiercache

import "time"

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; wrap slow ones in
// hooks/async. The cache and the loader call them on hot paths.
type Hooks interface {
	// Get served a frame from tier.
	Hit(tier Tier)
	// Get found nothing usable in any tier.
	Miss()

	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey string, tier Tier, reason string)

	// A tier call failed; op ∈ {"get", "set", "del"}. The cache carried on
	// without that tier.
	TierUnavailable(tier Tier, op string, err error)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string, tier Tier)

	// GenStore errors (snapshot or bump).
	// count is number of keys involved (1 for Snapshot/Bump, N for SnapshotMany).
	GenSnapshotError(count int, err error)
	GenBumpError(storageKey string, err error)

	// Both gen bump and a tier delete failed during Remove (likely backend outage).
	RemoveOutage(key string, bumpErr, tierErr error)

	// A loader fill was dropped because the key was removed or rewritten
	// while the fetch was in flight.
	StaleFillSkipped(key string)

	// A loader batch finished. err is the fetch error, if any.
	BatchDispatched(class string, keys int, took time.Duration, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) Hit(Tier)                                          {}
func (NopHooks) Miss()                                             {}
func (NopHooks) SelfHeal(string, Tier, string)                     {}
func (NopHooks) TierUnavailable(Tier, string, error)               {}
func (NopHooks) ProviderSetRejected(string, Tier)                  {}
func (NopHooks) GenSnapshotError(int, error)                       {}
func (NopHooks) GenBumpError(string, error)                        {}
func (NopHooks) RemoveOutage(string, error, error)                 {}
func (NopHooks) StaleFillSkipped(string)                           {}
func (NopHooks) BatchDispatched(string, int, time.Duration, error) {}
