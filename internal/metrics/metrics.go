// Package metrics registers the Prometheus collectors shared by the
// pipeline components.
//
// Metrics:
//   - ragchat_cache_hits_total / ragchat_cache_misses_total
//   - ragchat_cache_size
//   - ragchat_index_scans_total{result}, ragchat_index_files, ragchat_index_scan_duration_seconds
//   - ragchat_provider_attempts_total{provider,outcome}
//   - ragchat_credential_rotations_total{provider}
//   - ragchat_ask_duration_seconds{outcome}
//   - ragchat_followups_failed_total
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	global *Metrics
	once   sync.Once
)

// Metrics holds the process-wide collectors.
type Metrics struct {
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge

	IndexScans        *prometheus.CounterVec
	IndexFiles        prometheus.Gauge
	IndexScanDuration prometheus.Histogram

	ProviderAttempts    *prometheus.CounterVec
	CredentialRotations *prometheus.CounterVec

	AskDuration     *prometheus.HistogramVec
	FollowUpsFailed prometheus.Counter
}

// Default returns the collectors registered on the default registry.
// Registration happens once per process.
func Default() *Metrics {
	once.Do(func() {
		global = New(prometheus.DefaultRegisterer)
	})
	return global
}

// New registers a fresh set of collectors on reg. Tests pass a
// prometheus.NewRegistry() to stay isolated.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "ragchat_cache_hits_total",
			Help: "Response cache hits",
		}),
		CacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "ragchat_cache_misses_total",
			Help: "Response cache misses, including expired entries",
		}),
		CacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "ragchat_cache_size",
			Help: "Entries currently held by the response cache",
		}),
		IndexScans: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_index_scans_total",
			Help: "Full content-root scans by result",
		}, []string{"result"}),
		IndexFiles: f.NewGauge(prometheus.GaugeOpts{
			Name: "ragchat_index_files",
			Help: "Files in the current index snapshot",
		}),
		IndexScanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ragchat_index_scan_duration_seconds",
			Help:    "Duration of full content-root scans",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		ProviderAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_provider_attempts_total",
			Help: "Upstream LLM calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		CredentialRotations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ragchat_credential_rotations_total",
			Help: "Credential cursor advances after rate limiting",
		}, []string{"provider"}),
		AskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ragchat_ask_duration_seconds",
			Help:    "End-to-end ask latency by outcome",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		FollowUpsFailed: f.NewCounter(prometheus.CounterOpts{
			Name: "ragchat_followups_failed_total",
			Help: "Follow-up generations that failed and were dropped",
		}),
	}
}

// NewNop returns collectors bound to a private registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
