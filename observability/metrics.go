package observability

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stablecoinOnce     sync.Once
	stablecoinRegistry *StablecoinMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *HTTPMetrics
)

var healthFactorScale = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// StablecoinMetrics tracks engine operations. It satisfies
// stablecoin.Metrics.
type StablecoinMetrics struct {
	operations     *prometheus.CounterVec
	rollbacks      *prometheus.CounterVec
	liquidations   *prometheus.CounterVec
	seized         *prometheus.CounterVec
	oracleFailures *prometheus.CounterVec
	healthFactor   *prometheus.HistogramVec
}

// Stablecoin returns the lazily registered engine metrics.
func Stablecoin() *StablecoinMetrics {
	stablecoinOnce.Do(func() {
		stablecoinRegistry = &StablecoinMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Engine operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "rollbacks_total",
				Help:      "Operations whose effects were undone after a failed step.",
			}, []string{"operation"}),
			liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "liquidations_total",
				Help:      "Successful liquidations segmented by collateral asset.",
			}, []string{"asset"}),
			seized: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "collateral_seized_units_total",
				Help:      "Collateral seized by liquidators in whole units (1e18 base units).",
			}, []string{"asset"}),
			oracleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "oracle_failures_total",
				Help:      "Price lookups rejected as unavailable, stale or invalid.",
			}, []string{"feed"}),
			healthFactor: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dsc",
				Subsystem: "engine",
				Name:      "health_factor",
				Help:      "Health factors evaluated by the engine, as a ratio.",
				Buckets:   []float64{0.5, 0.8, 0.9, 1, 1.1, 1.25, 1.5, 2, 3, 5, 10},
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			stablecoinRegistry.operations,
			stablecoinRegistry.rollbacks,
			stablecoinRegistry.liquidations,
			stablecoinRegistry.seized,
			stablecoinRegistry.oracleFailures,
			stablecoinRegistry.healthFactor,
		)
	})
	return stablecoinRegistry
}

func label(value, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func (m *StablecoinMetrics) RecordOperation(op, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(label(op, "unknown"), label(outcome, "unknown")).Inc()
}

func (m *StablecoinMetrics) RecordRollback(op string) {
	if m == nil {
		return
	}
	m.rollbacks.WithLabelValues(label(op, "unknown")).Inc()
}

func (m *StablecoinMetrics) RecordLiquidation(asset string, seized *big.Int) {
	if m == nil {
		return
	}
	asset = label(asset, "unknown")
	m.liquidations.WithLabelValues(asset).Inc()
	if seized != nil && seized.Sign() > 0 {
		units, _ := new(big.Float).Quo(new(big.Float).SetInt(seized), healthFactorScale).Float64()
		m.seized.WithLabelValues(asset).Add(units)
	}
}

func (m *StablecoinMetrics) RecordOracleFailure(feed string) {
	if m == nil {
		return
	}
	m.oracleFailures.WithLabelValues(label(feed, "unknown")).Inc()
}

// ObserveHealthFactor records hf scaled down to a ratio. Debt-free sentinels
// and values above 1e6 are skipped.
func (m *StablecoinMetrics) ObserveHealthFactor(op string, hf *big.Int) {
	if m == nil || hf == nil || hf.Sign() < 0 {
		return
	}
	ratio, _ := new(big.Float).Quo(new(big.Float).SetInt(hf), healthFactorScale).Float64()
	if ratio > 1e6 {
		return
	}
	m.healthFactor.WithLabelValues(label(op, "unknown")).Observe(ratio)
}

// HTTPMetrics tracks daemon requests.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// HTTP returns the lazily registered request metrics.
func HTTP() *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route and outcome.",
			}, []string{"route", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "http",
				Name:      "errors_total",
				Help:      "HTTP error responses segmented by route and status code.",
			}, []string{"route", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "dsc",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for HTTP handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "dsc",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by rate limiting.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			httpRegistry.requests,
			httpRegistry.errors,
			httpRegistry.latency,
			httpRegistry.throttles,
		)
	})
	return httpRegistry
}

// Observe records the outcome of a request. status is the HTTP status that was
// written to the client.
func (m *HTTPMetrics) Observe(route, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	route = label(route, "unknown")
	method = label(method, "unknown")
	outcome := "success"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(route, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.requests.WithLabelValues(route, method, outcome).Inc()
	m.latency.WithLabelValues(route, method).Observe(duration.Seconds())
}

// RecordThrottle counts a rejected request. Reasons should be stable strings
// such as "rate_limit".
func (m *HTTPMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(label(reason, "unspecified")).Inc()
}
