// Package metrics exports Prometheus metrics for the insight engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector collects and exports metrics for the insight engine
type Collector struct {
	// Snapshot metrics
	snapshotLoadsTotal    *prometheus.CounterVec
	snapshotLoadDuration  prometheus.Histogram
	snapshotEntities      prometheus.Gauge
	snapshotRelationships prometheus.Gauge

	// Analysis metrics
	analysesTotal    *prometheus.CounterVec
	analysisDuration *prometheus.HistogramVec
	analysesActive   prometheus.Gauge

	// Result metrics
	communitiesDetected prometheus.Histogram
	pathsFound          prometheus.Histogram
	insightsGenerated   *prometheus.CounterVec

	// Cache metrics
	cacheHitsTotal   *prometheus.CounterVec
	cacheMissesTotal *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		snapshotLoadsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_engine_snapshot_loads_total",
				Help: "Total number of graph snapshot loads",
			},
			[]string{"status"},
		),
		snapshotLoadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "insight_engine_snapshot_load_duration_seconds",
				Help:    "Snapshot load duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		snapshotEntities: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "insight_engine_snapshot_entities",
				Help: "Entity count of the most recent snapshot",
			},
		),
		snapshotRelationships: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "insight_engine_snapshot_relationships",
				Help: "Relationship count of the most recent snapshot",
			},
		),
		analysesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_engine_analyses_total",
				Help: "Total number of analyses by operation and status",
			},
			[]string{"operation", "status"},
		),
		analysisDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "insight_engine_analysis_duration_seconds",
				Help:    "Analysis duration in seconds by operation",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		analysesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "insight_engine_analyses_active",
				Help: "Number of combined analyses currently running",
			},
		),
		communitiesDetected: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "insight_engine_communities_detected",
				Help:    "Communities found per detection run",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
		pathsFound: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "insight_engine_paths_found",
				Help:    "Paths returned per path query",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
		insightsGenerated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_engine_insights_generated_total",
				Help: "Total insights generated by type",
			},
			[]string{"type"},
		),
		cacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_engine_cache_hits_total",
				Help: "Result cache hits by operation",
			},
			[]string{"operation"},
		),
		cacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "insight_engine_cache_misses_total",
				Help: "Result cache misses by operation",
			},
			[]string{"operation"},
		),
	}
}

// RecordSnapshotLoad records a snapshot load attempt
func (c *Collector) RecordSnapshotLoad(duration time.Duration, entities, relationships int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.snapshotLoadsTotal.WithLabelValues(status).Inc()
	if err == nil {
		c.snapshotLoadDuration.Observe(duration.Seconds())
		c.snapshotEntities.Set(float64(entities))
		c.snapshotRelationships.Set(float64(relationships))
	}
}

// RecordAnalysis records a completed analysis operation
func (c *Collector) RecordAnalysis(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.analysesTotal.WithLabelValues(operation, status).Inc()
	c.analysisDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// AnalysisStarted marks a combined analysis as active
func (c *Collector) AnalysisStarted() {
	c.analysesActive.Inc()
}

// AnalysisFinished marks a combined analysis as finished
func (c *Collector) AnalysisFinished() {
	c.analysesActive.Dec()
}

// RecordCommunities records the size of a detection result
func (c *Collector) RecordCommunities(count int) {
	c.communitiesDetected.Observe(float64(count))
}

// RecordPaths records the size of a path query result
func (c *Collector) RecordPaths(count int) {
	c.pathsFound.Observe(float64(count))
}

// RecordInsight counts a generated insight by type
func (c *Collector) RecordInsight(insightType string) {
	c.insightsGenerated.WithLabelValues(insightType).Inc()
}

// RecordCacheHit counts a result cache hit
func (c *Collector) RecordCacheHit(operation string) {
	c.cacheHitsTotal.WithLabelValues(operation).Inc()
}

// RecordCacheMiss counts a result cache miss
func (c *Collector) RecordCacheMiss(operation string) {
	c.cacheMissesTotal.WithLabelValues(operation).Inc()
}
