package genstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisGenStore keeps generations in Redis so every process sharing an L2
// agrees on them. Keys live at "gen:<namespace>:<storageKey>".
//
// With a TTL, idle generation keys expire; a reader then sees gen 0 and any
// frame written under a higher gen is healed on read.
type RedisGenStore struct {
	rdb         redis.UniversalClient
	ns          string
	ttl         time.Duration
	closeClient bool
}

var _ GenStore = (*RedisGenStore)(nil)

type RedisConfig struct {
	Client    redis.UniversalClient
	Namespace string // should match the cache namespace
	// TTL for generation keys, 0 = never expire. Keep it longer than any tier TTL.
	TTL time.Duration
	// CloseClient must be true only if this store exclusively owns Client.
	CloseClient bool
}

func NewRedisGenStore(cfg RedisConfig) (*RedisGenStore, error) {
	if cfg.Client == nil {
		return nil, errors.New("genstore: nil redis client")
	}
	if cfg.TTL < 0 {
		return nil, errors.New("genstore: negative ttl")
	}
	return &RedisGenStore{
		rdb:         cfg.Client,
		ns:          cfg.Namespace,
		ttl:         cfg.TTL,
		closeClient: cfg.CloseClient,
	}, nil
}

func (s *RedisGenStore) genKey(storageKey string) string { return "gen:" + s.ns + ":" + storageKey }

func (s *RedisGenStore) Snapshot(ctx context.Context, storageKey string) (uint64, error) {
	return parseGen(s.rdb.Get(ctx, s.genKey(storageKey)))
}

// SnapshotMany pipelines one GET per key rather than a single MGET, so keys
// spread over cluster slots still resolve in one round-trip per node.
func (s *RedisGenStore) SnapshotMany(ctx context.Context, storageKeys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(storageKeys))
	if len(storageKeys) == 0 {
		return out, nil
	}

	cmds := make([]*redis.StringCmd, len(storageKeys))
	_, err := s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range storageKeys {
			cmds[i] = p.Get(ctx, s.genKey(k))
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for i, cmd := range cmds {
		g, err := parseGen(cmd)
		if err != nil {
			return nil, fmt.Errorf("genstore: %s: %w", storageKeys[i], err)
		}
		out[storageKeys[i]] = g
	}
	return out, nil
}

func parseGen(cmd *redis.StringCmd) (uint64, error) {
	raw, err := cmd.Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	g, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("genstore: bad generation %q: %w", raw, err)
	}
	return g, nil
}

// Bump is INCR, followed in the same pipeline by EXPIRE when a TTL is set.
func (s *RedisGenStore) Bump(ctx context.Context, storageKey string) (uint64, error) {
	k := s.genKey(storageKey)
	if s.ttl == 0 {
		n, err := s.rdb.Incr(ctx, k).Result()
		return uint64(n), err
	}

	var incr *redis.IntCmd
	if _, err := s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, s.ttl)
		return nil
	}); err != nil {
		return 0, err
	}
	return uint64(incr.Val()), nil
}

// Cleanup is a no-op; Redis expires generation keys itself when a TTL is set.
func (s *RedisGenStore) Cleanup(time.Duration) {}

func (s *RedisGenStore) Close(context.Context) error {
	if !s.closeClient {
		return nil
	}
	if err := s.rdb.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		return err
	}
	return nil
}
