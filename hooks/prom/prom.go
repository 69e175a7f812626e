// Package prom exports tiercache hook events as Prometheus metrics.
//
// Metrics live in a private registry unless one is passed in, so several
// caches (or tests) never collide on registration.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tiercache"
)

type Hooks struct {
	registry *prometheus.Registry

	Lookups       *prometheus.CounterVec // result ∈ {hit_l1, hit_l2, miss}
	SelfHeals     *prometheus.CounterVec // tier, reason
	TierErrors    *prometheus.CounterVec // tier, op
	SetRejected   *prometheus.CounterVec // tier
	GenErrors     *prometheus.CounterVec // op ∈ {snapshot, bump}
	RemoveOutages prometheus.Counter
	StaleFills    prometheus.Counter
	Batches       *prometheus.CounterVec // class, outcome ∈ {ok, error}
	BatchKeys     *prometheus.HistogramVec
	BatchDuration *prometheus.HistogramVec
}

var _ tiercache.Hooks = (*Hooks)(nil)

const subsystem = "tiercache"

// New builds the metrics under namespace (e.g. "app") and registers them on
// reg; nil reg means a fresh private registry.
func New(namespace string, reg *prometheus.Registry) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	counter := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help}
	}
	histogram := func(name, help string, buckets []float64) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{Namespace: namespace, Subsystem: subsystem, Name: name, Help: help, Buckets: buckets}
	}

	h := &Hooks{registry: reg}
	h.Lookups = prometheus.NewCounterVec(
		counter("lookups_total", "Cache reads by outcome"),
		[]string{"result"},
	)
	h.SelfHeals = prometheus.NewCounterVec(
		counter("self_heals_total", "Entries deleted on read because they were corrupt, stale or undecodable"),
		[]string{"tier", "reason"},
	)
	h.TierErrors = prometheus.NewCounterVec(
		counter("tier_errors_total", "Failed tier operations the cache degraded around"),
		[]string{"tier", "op"},
	)
	h.SetRejected = prometheus.NewCounterVec(
		counter("set_rejected_total", "Writes a tier dropped under pressure"),
		[]string{"tier"},
	)
	h.GenErrors = prometheus.NewCounterVec(
		counter("gen_errors_total", "Generation store failures"),
		[]string{"op"},
	)
	h.RemoveOutages = prometheus.NewCounter(
		counter("remove_outages_total", "Removes where both the generation bump and a tier delete failed"),
	)
	h.StaleFills = prometheus.NewCounter(
		counter("stale_fills_skipped_total", "Loader fills dropped because the key changed during the fetch"),
	)
	h.Batches = prometheus.NewCounterVec(
		counter("batches_total", "Loader fetch calls by outcome"),
		[]string{"class", "outcome"},
	)
	h.BatchKeys = prometheus.NewHistogramVec(
		histogram("batch_keys", "Distinct keys per loader fetch", prometheus.ExponentialBuckets(1, 2, 8)),
		[]string{"class"},
	)
	h.BatchDuration = prometheus.NewHistogramVec(
		histogram("batch_duration_seconds", "Loader fetch latency", prometheus.DefBuckets),
		[]string{"class"},
	)

	for _, c := range []prometheus.Collector{
		h.Lookups, h.SelfHeals, h.TierErrors, h.SetRejected, h.GenErrors,
		h.RemoveOutages, h.StaleFills, h.Batches, h.BatchKeys, h.BatchDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Registry returns the registry the metrics are registered on.
func (h *Hooks) Registry() *prometheus.Registry { return h.registry }

func (h *Hooks) Hit(t tiercache.Tier) { h.Lookups.WithLabelValues("hit_" + t.String()).Inc() }
func (h *Hooks) Miss()                { h.Lookups.WithLabelValues("miss").Inc() }

func (h *Hooks) SelfHeal(_ string, t tiercache.Tier, reason string) {
	h.SelfHeals.WithLabelValues(t.String(), reason).Inc()
}

func (h *Hooks) TierUnavailable(t tiercache.Tier, op string, _ error) {
	h.TierErrors.WithLabelValues(t.String(), op).Inc()
}

func (h *Hooks) ProviderSetRejected(_ string, t tiercache.Tier) {
	h.SetRejected.WithLabelValues(t.String()).Inc()
}

func (h *Hooks) GenSnapshotError(int, error) { h.GenErrors.WithLabelValues("snapshot").Inc() }
func (h *Hooks) GenBumpError(string, error)  { h.GenErrors.WithLabelValues("bump").Inc() }

func (h *Hooks) RemoveOutage(string, error, error) { h.RemoveOutages.Inc() }
func (h *Hooks) StaleFillSkipped(string)           { h.StaleFills.Inc() }

func (h *Hooks) BatchDispatched(class string, keys int, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.Batches.WithLabelValues(class, outcome).Inc()
	h.BatchKeys.WithLabelValues(class).Observe(float64(keys))
	h.BatchDuration.WithLabelValues(class).Observe(took.Seconds())
}
