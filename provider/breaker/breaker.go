// Package breaker wraps a Provider in a sony/gobreaker circuit breaker.
//
// Put it around a remote tier (usually L2). While the breaker is open, calls
// fail fast with provider.ErrUnavailable and the cache keeps serving from the
// other tier. Misses are successes; only transport errors count as failures.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	pr "github.com/unkn0wn-root/tiercache/provider"
)

type Config struct {
	Name string
	// MaxRequests allowed through while half-open.
	MaxRequests uint32
	// Interval clears closed-state counts; 0 never clears.
	Interval time.Duration
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
	// MinRequests before the failure ratio is considered.
	MinRequests uint32
	// FailureRatio in [0,1] that trips the breaker.
	FailureRatio float64
	// OnStateChange is called on every transition.
	OnStateChange func(name string, from, to gobreaker.State)
}

type Provider struct {
	inner pr.Provider
	cb    *gobreaker.CircuitBreaker
}

var _ pr.Provider = (*Provider)(nil)

func New(inner pr.Provider, cfg Config) (*Provider, error) {
	if inner == nil {
		return nil, errors.New("breaker provider: nil inner provider")
	}
	if cfg.Name == "" {
		cfg.Name = "tiercache-l2"
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.6
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	minReq, ratio := cfg.MinRequests, cfg.FailureRatio
	st := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minReq && failureRatio >= ratio
		},
		OnStateChange: cfg.OnStateChange,
	}
	return &Provider{inner: inner, cb: gobreaker.NewCircuitBreaker(st)}, nil
}

// State is the breaker's current state.
func (p *Provider) State() gobreaker.State { return p.cb.State() }

func (p *Provider) Get(ctx context.Context, key string) ([]byte, bool, error) {
	type hit struct {
		b  []byte
		ok bool
	}
	v, err := p.cb.Execute(func() (interface{}, error) {
		b, ok, err := p.inner.Get(ctx, key)
		return hit{b, ok}, err
	})
	if err != nil {
		return nil, false, wrap(err)
	}
	h := v.(hit)
	return h.b, h.ok, nil
}

func (p *Provider) Set(ctx context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	v, err := p.cb.Execute(func() (interface{}, error) {
		return p.inner.Set(ctx, key, value, cost, ttl)
	})
	if err != nil {
		return false, wrap(err)
	}
	return v.(bool), nil
}

func (p *Provider) Del(ctx context.Context, key string) error {
	_, err := p.cb.Execute(func() (interface{}, error) {
		return nil, p.inner.Del(ctx, key)
	})
	return wrap(err)
}

// Close bypasses the breaker.
func (p *Provider) Close(ctx context.Context) error { return p.inner.Close(ctx) }

func wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", pr.ErrUnavailable, err)
	}
	return err
}
