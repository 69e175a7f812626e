package tiercache

import "time"

const (
	defaultGenRetention = 30 * 24 * time.Hour
	defaultSweep        = time.Hour
	defaultL1Capacity   = 10_000
	defaultL1TTL        = time.Minute
	defaultL2TTL        = 10 * time.Minute

	defaultDebounceWindow = 10 * time.Millisecond
	defaultMaxBatchSize   = 100
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
