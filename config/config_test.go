package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/tiercache"
	"github.com/unkn0wn-root/tiercache/codec"
	"github.com/unkn0wn-root/tiercache/genstore"
)

const sample = `
namespace: catalog
loader:
  debounce_window: 5ms
  max_batch_size: 64
  fetch_timeout: 2s
l1:
  capacity: 500
gens:
  retention: 24h
classes:
  profile:
    l1_ttl: 30s
    l2_ttl: 5m
  price:
    strategy: write-through
    l1_ttl: 5s
    tiers: l1
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiercache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "catalog", cfg.Namespace)
	assert.Equal(t, 5*time.Millisecond, cfg.Loader.DebounceWindow)
	assert.Equal(t, 64, cfg.Loader.MaxBatchSize)
	assert.Equal(t, 500, cfg.L1.Capacity)
	assert.False(t, cfg.HasL2())

	lo := cfg.LoaderOptions()
	assert.Equal(t, 5*time.Millisecond, lo.DebounceWindow)
	assert.Equal(t, 64, lo.MaxBatchSize)
	assert.Equal(t, 2*time.Second, lo.FetchTimeout)

	b, err := cfg.Bindings()
	require.NoError(t, err)
	assert.Equal(t, tiercache.Binding{Strategy: tiercache.CacheAside, L1TTL: 30 * time.Second, L2TTL: 5 * time.Minute, Tiers: tiercache.BothTiers}, b["profile"])
	assert.Equal(t, tiercache.Binding{Strategy: tiercache.WriteThrough, L1TTL: 5 * time.Second, Tiers: tiercache.OnlyL1}, b["price"])
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvNamespace, "override")
	t.Setenv(EnvRedisAddrs, " redis-a:6379, ,redis-b:6379 ")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, "override", cfg.Namespace)
	assert.Equal(t, []string{"redis-a:6379", "redis-b:6379"}, cfg.L2.Redis.Addrs)
	assert.True(t, cfg.HasL2())

	client := cfg.RedisClient()
	require.NotNil(t, client)
	defer client.Close()

	l2, err := cfg.NewL2(client)
	require.NoError(t, err)
	require.NotNil(t, l2)

	gs, err := cfg.GenStore(client)
	require.NoError(t, err)
	assert.IsType(t, &genstore.RedisGenStore{}, gs)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"no namespace", "classes: {}", "namespace is required"},
		{"bad strategy", "namespace: x\nclasses:\n  a:\n    strategy: write-back", "unknown strategy"},
		{"bad tiers", "namespace: x\nclasses:\n  a:\n    tiers: l3", "unknown tiers"},
		{"negative ttl", "namespace: x\nclasses:\n  a:\n    l1_ttl: -1s", "negative ttl"},
		{"negative batch", "namespace: x\nloader:\n  max_batch_size: -1", "max_batch_size"},
		{"l2 only without redis", "namespace: x\nclasses:\n  a:\n    tiers: l2", "no redis"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("namespace: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: parse")
}

func TestBuildsWorkingCache(t *testing.T) {
	ctx := context.Background()
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	classes, err := cfg.Bindings()
	require.NoError(t, err)
	l1, err := cfg.NewL1()
	require.NoError(t, err)
	assert.Nil(t, cfg.RedisClient())
	gs, err := cfg.GenStore(nil)
	require.NoError(t, err)
	assert.IsType(t, &genstore.LocalGenStore{}, gs)

	stored := map[string]int{}
	c, err := tiercache.New(tiercache.Options[int]{
		Namespace: cfg.Namespace,
		Codec:     codec.JSON[int]{},
		L1:        l1,
		Classes:   classes,
		GenStore:  gs,
		Store: tiercache.StoreFunc[int](func(_ context.Context, key string, r tiercache.Result[int]) error {
			stored[key] = r.Value
			return nil
		}),
	})
	require.NoError(t, err)
	defer c.Close(ctx)

	require.NoError(t, c.Set(ctx, "sku-1", tiercache.Present(199), "price"))
	assert.Equal(t, 199, stored["sku-1"])

	r, ok := c.Get(ctx, "sku-1")
	require.True(t, ok)
	assert.Equal(t, tiercache.Present(199), r)
}
