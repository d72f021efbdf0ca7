// Package metrics exposes the core's Prometheus collectors: rate
// limiter admission gauges, cache hit/miss/eviction gauges, execution
// quality/slippage observations, and position PnL gauges. It owns no
// business logic; a Poller pulls periodic snapshots from the owning
// components and a few call sites push point observations as events
// happen.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every collector the core publishes. A nil *Registry
// is valid and every method becomes a no-op, so callers that don't wire
// metrics don't need to guard every call site.
type Registry struct {
	reg *prometheus.Registry

	RateLimitAllowed prometheus.Gauge
	RateLimitDenied  prometheus.Gauge
	RateLimitErrors  prometheus.Gauge

	CacheHits      *prometheus.GaugeVec
	CacheMisses    *prometheus.GaugeVec
	CacheEvictions *prometheus.GaugeVec

	ExecutionSlippageBps *prometheus.HistogramVec
	ExecutionQuality     *prometheus.GaugeVec
	SlicesFailed         prometheus.Counter

	PositionUnrealizedPnL *prometheus.GaugeVec
	PositionRealizedPnL   prometheus.Gauge
	PositionsOpen         prometheus.Gauge

	ActivationDecisions *prometheus.CounterVec
	RegimeChanges       prometheus.Counter
}

// New builds a Registry with all collectors registered against a fresh
// prometheus.Registry (not the global default, so multiple instances
// in tests don't collide on duplicate registration).
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		RateLimitAllowed: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "ratelimit", Name: "allowed_total",
			Help: "Cumulative requests allowed by the rate limiter.",
		}),
		RateLimitDenied: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "ratelimit", Name: "denied_total",
			Help: "Cumulative requests denied by the rate limiter.",
		}),
		RateLimitErrors: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "ratelimit", Name: "store_errors_total",
			Help: "Cumulative shared-store failures (fail-open, request still allowed).",
		}),
		CacheHits: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "cache", Name: "hits_total",
			Help: "Cumulative cache hits by manager instance.",
		}, []string{"manager"}),
		CacheMisses: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "cache", Name: "misses_total",
			Help: "Cumulative cache misses by manager instance.",
		}, []string{"manager"}),
		CacheEvictions: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "cache", Name: "evictions_total",
			Help: "Cumulative evictions by manager instance.",
		}, []string{"manager"}),
		ExecutionSlippageBps: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "trading", Subsystem: "execution", Name: "slippage_bps",
			Help:    "Signed slippage of completed slices, in basis points.",
			Buckets: []float64{-50, -25, -10, -5, -1, 0, 1, 5, 10, 25, 50},
		}, []string{"algorithm"}),
		ExecutionQuality: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "execution", Name: "quality_score",
			Help: "Overall execution quality score (0-100) of the most recently completed plan, by algorithm.",
		}, []string{"algorithm"}),
		SlicesFailed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "trading", Subsystem: "execution", Name: "slices_failed_total",
			Help: "Slices that failed after their single retry.",
		}),
		PositionUnrealizedPnL: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "position", Name: "unrealized_pnl",
			Help: "Unrealized PnL of an open position by symbol.",
		}, []string{"symbol", "side"}),
		PositionRealizedPnL: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "position", Name: "realized_pnl_total",
			Help: "Cumulative realized PnL across all closed reductions.",
		}),
		PositionsOpen: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "trading", Subsystem: "position", Name: "open_count",
			Help: "Number of currently open or partially-closed positions.",
		}),
		ActivationDecisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "trading", Subsystem: "activation", Name: "decisions_total",
			Help: "Activation decisions by outcome (activate/keep/deactivate).",
		}, []string{"decision"}),
		RegimeChanges: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "trading", Subsystem: "activation", Name: "regime_changes_total",
			Help: "Detected market regime changes.",
		}),
	}
	return r
}

// Handler returns the promhttp handler serving this registry's
// families, or nil if r is nil.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return nil
	}
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) SetRateLimitTotals(allowed, denied, errs int64) {
	if r == nil {
		return
	}
	r.RateLimitAllowed.Set(float64(allowed))
	r.RateLimitDenied.Set(float64(denied))
	r.RateLimitErrors.Set(float64(errs))
}

func (r *Registry) SetCacheTotals(manager string, hits, misses, evictions int64) {
	if r == nil {
		return
	}
	r.CacheHits.WithLabelValues(manager).Set(float64(hits))
	r.CacheMisses.WithLabelValues(manager).Set(float64(misses))
	r.CacheEvictions.WithLabelValues(manager).Set(float64(evictions))
}

func (r *Registry) ObserveSlippage(algorithm string, bps float64) {
	if r == nil {
		return
	}
	r.ExecutionSlippageBps.WithLabelValues(algorithm).Observe(bps)
}

func (r *Registry) SetExecutionQuality(algorithm string, score float64) {
	if r == nil {
		return
	}
	r.ExecutionQuality.WithLabelValues(algorithm).Set(score)
}

func (r *Registry) ObserveSliceFailed() {
	if r == nil {
		return
	}
	r.SlicesFailed.Inc()
}

func (r *Registry) SetUnrealizedPnL(symbol, side string, value float64) {
	if r == nil {
		return
	}
	r.PositionUnrealizedPnL.WithLabelValues(symbol, side).Set(value)
}

func (r *Registry) SetPositionTotals(openCount int, realizedPnL float64) {
	if r == nil {
		return
	}
	r.PositionsOpen.Set(float64(openCount))
	r.PositionRealizedPnL.Set(realizedPnL)
}

func (r *Registry) ObserveActivationDecision(decision string) {
	if r == nil {
		return
	}
	r.ActivationDecisions.WithLabelValues(decision).Inc()
}

func (r *Registry) ObserveRegimeChange() {
	if r == nil {
		return
	}
	r.RegimeChanges.Inc()
}

// RateLimitStatsFunc adapts a rate limiter's Statistics accessor to the
// shape the poller needs, leaving this package free of an import on
// internal/ratelimit.
type RateLimitStatsFunc func() (allowed, denied, errors int64)

// CacheStatsFunc adapts a cache manager's Statistics accessor.
type CacheStatsFunc func() (hits, misses, evictions int64)

// PositionStatsFunc adapts a position manager's Totals accessor.
type PositionStatsFunc func() (openCount int, realizedPnL float64)

// Poller periodically snapshots cumulative counters from components
// that don't emit per-event hooks, translating them into gauges. This
// mirrors the push-vs-pull split the teacher's executor/risk-manager
// channels already use for point events.
type Poller struct {
	reg      *Registry
	interval time.Duration

	rateLimit RateLimitStatsFunc
	cache     map[string]CacheStatsFunc
	positions PositionStatsFunc
}

// NewPoller builds a poller. Any source may be nil to skip that family.
func NewPoller(reg *Registry, interval time.Duration, rateLimit RateLimitStatsFunc, cache map[string]CacheStatsFunc, positions PositionStatsFunc) *Poller {
	return &Poller{reg: reg, interval: interval, rateLimit: rateLimit, cache: cache, positions: positions}
}

// Run blocks, polling until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	if p.reg == nil {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	if p.rateLimit != nil {
		allowed, denied, errs := p.rateLimit()
		p.reg.SetRateLimitTotals(allowed, denied, errs)
	}
	for name, src := range p.cache {
		hits, misses, evictions := src()
		p.reg.SetCacheTotals(name, hits, misses, evictions)
	}
	if p.positions != nil {
		openCount, realized := p.positions()
		p.reg.SetPositionTotals(openCount, realized)
	}
}
