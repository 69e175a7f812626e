// Package loghooks reports tiercache hook events through a tiercache.Logger,
// with sampling for the noisy ones and key redaction.
package loghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/tiercache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	TierDownEvery uint64
	BatchEvery    uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    tiercache.Logger
	opts Options

	selfHealCtr atomic.Uint64
	tierDownCtr atomic.Uint64
	batchCtr    atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(l tiercache.Logger, opts Options) *Hooks {
	if l == nil {
		l = tiercache.NopLogger{}
	}
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

// Hit and Miss are too frequent to log; use hooks/prom for rates.
func (h *Hooks) Hit(tiercache.Tier) {}
func (h *Hooks) Miss()              {}

func (h *Hooks) SelfHeal(storageKey string, t tiercache.Tier, reason string) {
	if !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("tiercache.self_heal", tiercache.Fields{
		"key":    h.redact(storageKey),
		"tier":   t.String(),
		"reason": reason,
	})
}

func (h *Hooks) TierUnavailable(t tiercache.Tier, op string, err error) {
	if !sample(h.opts.TierDownEvery, &h.tierDownCtr) {
		return
	}
	h.l.Warn("tiercache.tier_unavailable", tiercache.Fields{
		"tier": t.String(),
		"op":   op,
		"err":  err,
	})
}

func (h *Hooks) ProviderSetRejected(storageKey string, t tiercache.Tier) {
	h.l.Warn("tiercache.provider_set_rejected", tiercache.Fields{
		"key":  h.redact(storageKey),
		"tier": t.String(),
	})
}

func (h *Hooks) GenSnapshotError(count int, err error) {
	h.l.Warn("tiercache.gen_snapshot_error", tiercache.Fields{
		"count": count,
		"err":   err,
	})
}

func (h *Hooks) GenBumpError(storageKey string, err error) {
	h.l.Warn("tiercache.gen_bump_error", tiercache.Fields{
		"key": h.redact(storageKey),
		"err": err,
	})
}

func (h *Hooks) RemoveOutage(key string, bumpErr, tierErr error) {
	h.l.Error("tiercache.remove_outage", tiercache.Fields{
		"key":      h.redact(key),
		"bump_err": bumpErr,
		"tier_err": tierErr,
	})
}

func (h *Hooks) StaleFillSkipped(key string) {
	h.l.Debug("tiercache.stale_fill_skipped", tiercache.Fields{"key": h.redact(key)})
}

func (h *Hooks) BatchDispatched(class string, keys int, took time.Duration, err error) {
	if err != nil {
		h.l.Warn("tiercache.batch_failed", tiercache.Fields{
			"class": class,
			"keys":  keys,
			"took":  took,
			"err":   err,
		})
		return
	}
	if !sample(h.opts.BatchEvery, &h.batchCtr) {
		return
	}
	h.l.Debug("tiercache.batch", tiercache.Fields{
		"class": class,
		"keys":  keys,
		"took":  took,
	})
}
