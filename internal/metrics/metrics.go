// Package metrics holds the Prometheus collectors for the catalog's
// derived-artifact scheduler: cache hit ratio, queue depth, and artifact
// throughput. Collectors register against the default registry at package
// init, the same pattern the indexer's scheduler metrics use.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_hits_total",
		Help: "Cache lookups served without dispatching a decode job, by cache name and tier.",
	}, []string{"cache", "tier"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_cache_misses_total",
		Help: "Cache lookups that found nothing in either tier, by cache name.",
	}, []string{"cache"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "catalog_queue_depth",
		Help: "Number of items currently queued (not yet executing) per scheduler processor.",
	}, []string{"processor"})

	ArtifactsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_artifacts_completed_total",
		Help: "Derived artifacts (thumbnail/preview) successfully produced, by kind.",
	}, []string{"kind"})

	ArtifactsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_artifacts_failed_total",
		Help: "Derived artifact jobs that errored out, by kind.",
	}, []string{"kind"})

	ArtifactsDiscardedStale = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_artifacts_discarded_stale_total",
		Help: "Completed artifact jobs discarded because their generation was superseded mid-flight, by kind.",
	}, []string{"kind"})

	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_scan_duration_seconds",
		Help:    "Wall-clock duration of a folder scan, from walk start to reconciliation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})

	ScanPhotosDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_scan_photos_discovered_total",
		Help: "New photo files discovered across all folder scans.",
	})
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
