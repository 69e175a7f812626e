// Package provider defines the byte store behind each cache tier.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key. Stores that compress
// or otherwise transform values must fully reverse the transform on Get.
//
// The keyspace "v:<ns>:" is owned by tiercache. Foreign writes under that
// prefix fail strict frame validation and get deleted on read.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a tier that refused the call without trying it,
// e.g. because a circuit breaker is open.
var ErrUnavailable = errors.New("provider: tier unavailable")

// Provider is a minimal byte store with TTLs. Must be safe for concurrent use.
type Provider interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	// If an IO/remote error happens, return (nil, false, err).
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value with the given TTL (<=0 means no expiry). May ignore
	// cost or ttl if unsupported. Returns ok=false when the store rejected
	// the write under pressure.
	Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (ok bool, err error)

	// Del removes a key. Deleting a missing key is not an error.
	Del(ctx context.Context, key string) error

	// Close releases resources.
	Close(ctx context.Context) error
}
