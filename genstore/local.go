package genstore

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type localGenEntry struct {
	Gen       uint64
	UpdatedAt time.Time
}

// LocalGenStore keeps generations in-process (default).
// Optional cleanup loop prunes long-inactive entries; a pruned key reads as
// generation 0 again, which only makes older frames look fresh if they
// outlived the retention, so retention must exceed the longest tier TTL.
type LocalGenStore struct {
	mu    sync.RWMutex
	gens  map[string]localGenEntry
	clock clockwork.Clock

	ticker    clockwork.Ticker
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	retention time.Duration
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	return NewLocalGenStoreWithClock(clockwork.NewRealClock(), cleanupInterval, retention)
}

// NewLocalGenStoreWithClock is NewLocalGenStore with an injected clock.
func NewLocalGenStoreWithClock(clock clockwork.Clock, cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{
		gens:      make(map[string]localGenEntry),
		clock:     clock,
		retention: retention,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.ticker = clock.NewTicker(cleanupInterval)
		s.stopCh = make(chan struct{})
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case <-s.ticker.Chan():
					s.Cleanup(retention)
				case <-s.stopCh:
					return
				}
			}
		}()
	}
	return s
}

func (s *LocalGenStore) Snapshot(_ context.Context, k string) (uint64, error) {
	s.mu.RLock()
	e, ok := s.gens[k]
	s.mu.RUnlock()
	if !ok {
		return 0, nil
	}
	return e.Gen, nil
}

// SnapshotMany acquires the read lock once for all keys.
func (s *LocalGenStore) SnapshotMany(_ context.Context, ks []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(ks))
	s.mu.RLock()
	for _, k := range ks {
		out[k] = s.gens[k].Gen // zero value (0) if missing
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *LocalGenStore) Bump(_ context.Context, k string) (uint64, error) {
	now := s.clock.Now()
	s.mu.Lock()
	e := s.gens[k]
	e.Gen++
	e.UpdatedAt = now
	s.gens[k] = e
	s.mu.Unlock()
	return e.Gen, nil
}

// Len reports how many keys currently carry a generation.
func (s *LocalGenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.clock.Now().Add(-retention)

	s.mu.Lock()
	for k, e := range s.gens {
		if !e.UpdatedAt.IsZero() && e.UpdatedAt.Before(cutoff) {
			delete(s.gens, k)
		}
	}
	s.mu.Unlock()
}

// Close stops the cleanup loop. Safe to call more than once.
func (s *LocalGenStore) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stopCh != nil {
			s.ticker.Stop()
			close(s.stopCh)
			s.wg.Wait()
		}
	})
	return nil
}
