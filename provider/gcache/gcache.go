// Package gcache is the default bounded L1 tier, an LRU on bluele/gcache.
package gcache

import (
	"context"
	"errors"
	"time"

	gc "github.com/bluele/gcache"

	pr "github.com/unkn0wn-root/tiercache/provider"
)

var ErrInvalidCapacity = errors.New("gcache provider: capacity must be positive")

type Provider struct {
	c gc.Cache
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	// Capacity is the maximum number of entries kept before LRU eviction.
	Capacity int
	// OnEvict is called with the storage key of every evicted entry.
	OnEvict func(key string)
}

func New(cfg Config) (*Provider, error) {
	if cfg.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	b := gc.New(cfg.Capacity).LRU()
	if cfg.OnEvict != nil {
		onEvict := cfg.OnEvict
		b = b.EvictedFunc(func(k, _ interface{}) {
			if s, ok := k.(string); ok {
				onEvict(s)
			}
		})
	}
	return &Provider{c: b.Build()}, nil
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := p.c.Get(key)
	if errors.Is(err, gc.KeyNotFoundError) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	b, _ := v.([]byte)
	if b == nil {
		p.c.Remove(key)
		return nil, false, nil
	}
	return b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	var err error
	if ttl > 0 {
		err = p.c.SetWithExpire(key, value, ttl)
	} else {
		err = p.c.Set(key, value)
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Remove(key)
	return nil
}

// Len reports the number of live entries.
func (p *Provider) Len() int { return p.c.Len(true) }

func (p *Provider) Close(_ context.Context) error {
	p.c.Purge()
	return nil
}
