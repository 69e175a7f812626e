// Package config reads a tiercache setup from YAML and turns it into the
// options, tiers and generation store the root package expects.
//
//	namespace: catalog
//	loader:
//	  debounce_window: 10ms
//	  max_batch_size: 100
//	l1:
//	  capacity: 50000
//	l2:
//	  redis:
//	    addrs: ["redis-1:6379", "redis-2:6379"]
//	classes:
//	  price:
//	    strategy: write-through
//	    l1_ttl: 5s
//	    l2_ttl: 1m
//
// Environment variables override the file: TIERCACHE_NAMESPACE and
// TIERCACHE_REDIS_ADDRS (comma separated).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/genstore"
	gcp "github.com/unkn0wn-root/tiercache/provider/gcache"
	rp "github.com/unkn0wn-root/tiercache/provider/redis"
)

const (
	EnvNamespace  = "TIERCACHE_NAMESPACE"
	EnvRedisAddrs = "TIERCACHE_REDIS_ADDRS"
)

type Config struct {
	Namespace string                 `yaml:"namespace"`
	Loader    LoaderConfig           `yaml:"loader"`
	L1        L1Config               `yaml:"l1"`
	L2        L2Config               `yaml:"l2"`
	Gens      GenConfig              `yaml:"gens"`
	Classes   map[string]ClassConfig `yaml:"classes"`
}

type LoaderConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"`
	MaxBatchSize   int           `yaml:"max_batch_size"`
	FetchTimeout   time.Duration `yaml:"fetch_timeout"`
}

type L1Config struct {
	Capacity int `yaml:"capacity"`
}

type L2Config struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig is empty (no addrs) when the cache runs L1 only.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

type GenConfig struct {
	Retention       time.Duration `yaml:"retention"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	// TTL of generation keys in Redis; only used with a Redis L2.
	TTL time.Duration `yaml:"ttl"`
}

type ClassConfig struct {
	Strategy string        `yaml:"strategy"`
	L1TTL    time.Duration `yaml:"l1_ttl"`
	L2TTL    time.Duration `yaml:"l2_ttl"`
	Tiers    string        `yaml:"tiers"` // "both" (default), "l1", "l2"
}

// Load reads path, applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse is Load for an in-memory document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvNamespace)); v != "" {
		c.Namespace = v
	}
	if v := os.Getenv(EnvRedisAddrs); v != "" {
		var addrs []string
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				addrs = append(addrs, a)
			}
		}
		c.L2.Redis.Addrs = addrs
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if c.Namespace == "" {
		errs = append(errs, errors.New("config: namespace is required"))
	}
	if c.Loader.DebounceWindow < 0 || c.Loader.FetchTimeout < 0 {
		errs = append(errs, errors.New("config: loader durations must not be negative"))
	}
	if c.Loader.MaxBatchSize < 0 {
		errs = append(errs, errors.New("config: loader.max_batch_size must not be negative"))
	}
	if c.L1.Capacity < 0 {
		errs = append(errs, errors.New("config: l1.capacity must not be negative"))
	}
	if c.Gens.Retention < 0 || c.Gens.CleanupInterval < 0 || c.Gens.TTL < 0 {
		errs = append(errs, errors.New("config: gens durations must not be negative"))
	}
	for name, cl := range c.Classes {
		if name == "" {
			errs = append(errs, errors.New("config: empty class name"))
		}
		if _, err := tiercache.ParseStrategy(cl.Strategy); err != nil {
			errs = append(errs, fmt.Errorf("config: class %q: %w", name, err))
		}
		if cl.L1TTL < 0 || cl.L2TTL < 0 {
			errs = append(errs, fmt.Errorf("config: class %q: negative ttl", name))
		}
		ts, err := parseTiers(cl.Tiers)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: class %q: %w", name, err))
		} else if ts == tiercache.OnlyL2 && !c.HasL2() {
			errs = append(errs, fmt.Errorf("config: class %q is l2 only but no redis is configured", name))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) HasL2() bool { return len(c.L2.Redis.Addrs) > 0 }

func parseTiers(s string) (tiercache.TierSet, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return tiercache.BothTiers, nil
	case "l1":
		return tiercache.OnlyL1, nil
	case "l2":
		return tiercache.OnlyL2, nil
	}
	return 0, fmt.Errorf("unknown tiers %q", s)
}

// Bindings converts the classes section. Call on a validated Config.
func (c *Config) Bindings() (map[string]tiercache.Binding, error) {
	out := make(map[string]tiercache.Binding, len(c.Classes))
	for name, cl := range c.Classes {
		s, err := tiercache.ParseStrategy(cl.Strategy)
		if err != nil {
			return nil, fmt.Errorf("config: class %q: %w", name, err)
		}
		ts, err := parseTiers(cl.Tiers)
		if err != nil {
			return nil, fmt.Errorf("config: class %q: %w", name, err)
		}
		out[name] = tiercache.Binding{Strategy: s, L1TTL: cl.L1TTL, L2TTL: cl.L2TTL, Tiers: ts}
	}
	return out, nil
}

// LoaderOptions returns the loader section; zero values keep the loader
// defaults.
func (c *Config) LoaderOptions() tiercache.LoaderOptions {
	return tiercache.LoaderOptions{
		DebounceWindow: c.Loader.DebounceWindow,
		MaxBatchSize:   c.Loader.MaxBatchSize,
		FetchTimeout:   c.Loader.FetchTimeout,
	}
}

// NewL1 builds the in-process LRU tier.
func (c *Config) NewL1() (*gcp.Provider, error) {
	capacity := c.L1.Capacity
	if capacity == 0 {
		capacity = 10_000
	}
	return gcp.New(gcp.Config{Capacity: capacity})
}

// RedisClient dials nothing; go-redis connects lazily. Returns nil when no
// addrs are configured.
func (c *Config) RedisClient() goredis.UniversalClient {
	if !c.HasL2() {
		return nil
	}
	return goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:    c.L2.Redis.Addrs,
		Username: c.L2.Redis.Username,
		Password: c.L2.Redis.Password,
		DB:       c.L2.Redis.DB,
	})
}

// NewL2 wraps client as the shared tier. The caller keeps ownership of client.
func (c *Config) NewL2(client goredis.UniversalClient) (*rp.Redis, error) {
	return rp.New(rp.Config{Client: client})
}

// GenStore returns a Redis generation store when client is non-nil so every
// process sharing the L2 agrees on generations, and a local one otherwise.
func (c *Config) GenStore(client goredis.UniversalClient) (genstore.GenStore, error) {
	if client == nil {
		interval, retention := c.Gens.CleanupInterval, c.Gens.Retention
		if interval == 0 {
			interval = time.Hour
		}
		if retention == 0 {
			retention = 30 * 24 * time.Hour
		}
		return genstore.NewLocalGenStore(interval, retention), nil
	}
	return genstore.NewRedisGenStore(genstore.RedisConfig{
		Client:    client,
		Namespace: c.Namespace,
		TTL:       c.Gens.TTL,
	})
}
