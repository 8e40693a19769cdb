// Package engine exposes the graph intelligence facade: community
// detection, influence scoring, path tracing, temporal trends, gap
// analysis and the combined analysis report.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/graphintel/insight-engine/internal/cache"
	"github.com/graphintel/insight-engine/internal/centrality"
	"github.com/graphintel/insight-engine/internal/community"
	"github.com/graphintel/insight-engine/internal/config"
	"github.com/graphintel/insight-engine/internal/database"
	"github.com/graphintel/insight-engine/internal/gaps"
	"github.com/graphintel/insight-engine/internal/graph"
	"github.com/graphintel/insight-engine/internal/insights"
	"github.com/graphintel/insight-engine/internal/kafka"
	"github.com/graphintel/insight-engine/internal/metrics"
	"github.com/graphintel/insight-engine/internal/paths"
	"github.com/graphintel/insight-engine/internal/temporal"
)

// JobStore records analysis-run bookkeeping. May be nil when the engine
// runs without Postgres (tests, embedded use).
type JobStore interface {
	CreateAnalysisJob(ctx context.Context, job *database.AnalysisJob) error
	CompleteAnalysisJob(ctx context.Context, job *database.AnalysisJob) error
}

// Publisher emits analysis lifecycle events. May be nil when the engine
// runs without Kafka.
type Publisher interface {
	PublishAnalysisCompleted(ctx context.Context, event *kafka.AnalysisCompletedEvent) error
	PublishInsightsGenerated(ctx context.Context, event *kafka.InsightsGeneratedEvent) error
}

// Engine orchestrates snapshot loading and the analyzers behind the
// public facade. Analytic state is per-snapshot and immutable; the only
// shared mutable resources are the current-snapshot slot and the result
// cache, both of which are safe for concurrent callers.
type Engine struct {
	loader      *graph.Loader
	centrality  *centrality.Engine
	communities *community.Detector
	finder      *paths.Finder
	temporal    *temporal.Analyzer
	gapAnalyzer *gaps.Analyzer
	aggregator  *insights.Aggregator
	cache       *cache.Cache
	jobs        JobStore
	publisher   Publisher
	metrics     *metrics.Collector
	config      config.EngineConfig
	logger      *slog.Logger

	analysisSemaphore chan struct{}

	mu       sync.Mutex
	snapshot *graph.Snapshot
}

// AnalysisReport is the combined output of one full analysis run.
type AnalysisReport struct {
	JobID             string                     `json:"job_id"`
	SnapshotVersion   int64                      `json:"snapshot_version"`
	EntityCount       int                        `json:"entity_count"`
	RelationshipCount int                        `json:"relationship_count"`
	Density           float64                    `json:"density"`
	Communities       []*community.Community     `json:"communities"`
	Influence         *centrality.InfluenceScore `json:"influence,omitempty"`
	Insights          []*insights.Insight        `json:"insights"`
	Warnings          []string                   `json:"warnings,omitempty"`
	StartedAt         time.Time                  `json:"started_at"`
	Duration          time.Duration              `json:"duration"`
}

// New creates the engine facade. jobs and publisher may be nil.
func New(
	loader *graph.Loader,
	cfg config.EngineConfig,
	jobs JobStore,
	publisher Publisher,
	collector *metrics.Collector,
	clock func() time.Time,
	logger *slog.Logger,
) *Engine {
	detector := community.NewDetector(logger)
	return &Engine{
		loader:      loader,
		centrality:  centrality.NewEngine(cfg.PageRankAlpha, logger),
		communities: detector,
		finder:      paths.NewFinder(cfg.MaxFanout, logger),
		temporal:    temporal.NewAnalyzer(detector, clock, logger),
		gapAnalyzer: gaps.NewAnalyzer(cfg.MinTopicCoverage, logger),
		aggregator:  insights.NewAggregator(logger),
		cache:       cache.New(cfg.CacheTTL, clock),
		jobs:        jobs,
		publisher:   publisher,
		metrics:     collector,
		config:      cfg,
		logger:      logger,

		analysisSemaphore: make(chan struct{}, cfg.MaxConcurrentAnalyses),
	}
}

// Snapshot returns the current graph snapshot, loading one from the
// repository on first use or after invalidation.
func (e *Engine) Snapshot(ctx context.Context) (*graph.Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.snapshot != nil {
		return e.snapshot, nil
	}

	startTime := time.Now()
	snapshot, err := e.loader.LoadSnapshot(ctx)
	if e.metrics != nil {
		entities, relationships := 0, 0
		if snapshot != nil {
			entities, relationships = len(snapshot.Entities), len(snapshot.Relationships)
		}
		e.metrics.RecordSnapshotLoad(time.Since(startTime), entities, relationships, err)
	}
	if err != nil {
		return nil, err
	}

	e.snapshot = snapshot
	return snapshot, nil
}

// InvalidateSnapshot drops the current snapshot so the next analysis
// reloads from the graph store. Cached results for older versions age
// out via TTL; they are keyed by version and can never be served for a
// newer snapshot.
func (e *Engine) InvalidateSnapshot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.snapshot = nil
	e.logger.Info("Snapshot invalidated")
}

// RefreshSnapshot forces a reload and returns the fresh snapshot.
func (e *Engine) RefreshSnapshot(ctx context.Context) (*graph.Snapshot, error) {
	e.InvalidateSnapshot()
	return e.Snapshot(ctx)
}

// DetectCommunities partitions the current snapshot into topic
// communities. Results are cached per snapshot version, and the
// version of the snapshot the communities were computed on is
// returned with them.
func (e *Engine) DetectCommunities(ctx context.Context) ([]*community.Community, int64, error) {
	snapshot, err := e.Snapshot(ctx)
	if err != nil {
		return nil, 0, err
	}
	communities, err := e.detectCommunities(snapshot)
	if err != nil {
		return nil, 0, err
	}
	return communities, snapshot.Version, nil
}

func (e *Engine) detectCommunities(snapshot *graph.Snapshot) ([]*community.Community, error) {
	startTime := time.Now()
	key := fmt.Sprintf("communities:%d:%d:%d",
		snapshot.Version, e.config.MinCommunitySize, e.config.MaxCommunities)

	value, hit, err := e.cache.Do(key, func() (interface{}, error) {
		return e.communities.Detect(snapshot, e.config.MinCommunitySize, e.config.MaxCommunities)
	})
	e.recordCacheOutcome("detect_communities", hit)
	if e.metrics != nil {
		e.metrics.RecordAnalysis("detect_communities", time.Since(startTime), err)
	}
	if err != nil {
		return nil, err
	}

	result := value.([]*community.Community)
	if e.metrics != nil && !hit {
		e.metrics.RecordCommunities(len(result))
	}
	return result, nil
}

// ScoreInfluence computes combined centrality scores for the current
// snapshot. Results are cached per snapshot version, so repeated calls
// within the TTL return identical values.
func (e *Engine) ScoreInfluence(ctx context.Context) (*centrality.InfluenceScore, error) {
	snapshot, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return e.scoreInfluence(snapshot)
}

func (e *Engine) scoreInfluence(snapshot *graph.Snapshot) (*centrality.InfluenceScore, error) {
	startTime := time.Now()
	key := fmt.Sprintf("influence:%d", snapshot.Version)

	value, hit, err := e.cache.Do(key, func() (interface{}, error) {
		return e.centrality.Compute(snapshot)
	})
	e.recordCacheOutcome("score_influence", hit)
	if e.metrics != nil {
		e.metrics.RecordAnalysis("score_influence", time.Since(startTime), err)
	}
	if err != nil {
		return nil, err
	}
	return value.(*centrality.InfluenceScore), nil
}

// TracePaths finds significant multi-hop connections between two
// entities. maxHops falls back to the configured hop depth when zero.
func (e *Engine) TracePaths(ctx context.Context, sourceID, targetID string, maxHops int) ([]*paths.Result, error) {
	snapshot, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if maxHops <= 0 || maxHops > e.config.MaxHopDepth {
		maxHops = e.config.MaxHopDepth
	}

	startTime := time.Now()
	results, err := e.finder.FindPaths(snapshot, sourceID, targetID, maxHops)
	if e.metrics != nil {
		e.metrics.RecordAnalysis("trace_paths", time.Since(startTime), err)
		if err == nil {
			e.metrics.RecordPaths(len(results))
		}
	}
	return results, err
}

// FindTemporalTrends detects growing and declining topic clusters.
// windowDays falls back to the configured trend window when zero.
func (e *Engine) FindTemporalTrends(ctx context.Context, windowDays int) ([]*insights.Insight, error) {
	snapshot, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if windowDays <= 0 {
		windowDays = e.config.TrendWindowDays
	}

	startTime := time.Now()
	results, err := e.temporal.Analyze(snapshot, windowDays,
		e.config.MinCommunitySize, e.config.MaxCommunities)
	if e.metrics != nil {
		e.metrics.RecordAnalysis("find_temporal_trends", time.Since(startTime), err)
	}
	if err != nil {
		return nil, err
	}

	e.countInsights(results)
	return results, nil
}

// FindGaps surfaces topic coverage gaps and missing-relationship
// opportunities against the supplied target topics (or derived topics
// when none are given).
func (e *Engine) FindGaps(ctx context.Context, targetTopics []string) ([]*insights.Insight, error) {
	snapshot, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	communities, err := e.detectCommunities(snapshot)
	if err != nil {
		return nil, err
	}

	// Influence is an enrichment here: without it the opportunity pass
	// is skipped, but coverage gaps still come back.
	influence, err := e.scoreInfluence(snapshot)
	if err != nil {
		var compErr *graph.ComputationError
		if !errors.As(err, &compErr) {
			return nil, err
		}
		e.logger.Warn("Influence scoring degraded during gap analysis", "error", err)
		influence = nil
	}

	startTime := time.Now()
	results, err := e.gapAnalyzer.IdentifyGaps(snapshot, communities, influence, targetTopics)
	if e.metrics != nil {
		e.metrics.RecordAnalysis("find_gaps", time.Since(startTime), err)
	}
	if err != nil {
		return nil, err
	}

	e.countInsights(results)
	return results, nil
}

// AnalyzeGraph runs the full analysis pipeline: influence and community
// detection in parallel against one snapshot, then temporal and gap
// analysis, merged into a ranked insight list. A failing sub-analysis is
// logged and degraded to empty while the siblings continue; only a
// snapshot load failure aborts the run.
func (e *Engine) AnalyzeGraph(ctx context.Context, targetTopics []string) (*AnalysisReport, error) {
	select {
	case e.analysisSemaphore <- struct{}{}:
		defer func() { <-e.analysisSemaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if e.metrics != nil {
		e.metrics.AnalysisStarted()
		defer e.metrics.AnalysisFinished()
	}

	jobID := uuid.New().String()
	startTime := time.Now()

	snapshot, err := e.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Starting graph analysis",
		"job_id", jobID,
		"snapshot_version", snapshot.Version,
		"entities", len(snapshot.Entities),
		"relationships", len(snapshot.Relationships))

	e.createJob(ctx, jobID, snapshot.Version, startTime)

	report := &AnalysisReport{
		JobID:             jobID,
		SnapshotVersion:   snapshot.Version,
		EntityCount:       len(snapshot.Entities),
		RelationshipCount: len(snapshot.Relationships),
		Density:           density(snapshot),
		StartedAt:         startTime,
	}

	// Influence and communities are independent; run them against the
	// same snapshot concurrently.
	var wg sync.WaitGroup
	var influence *centrality.InfluenceScore
	var communities []*community.Community
	var influenceErr, communityErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		influence, influenceErr = e.scoreInfluence(snapshot)
	}()
	go func() {
		defer wg.Done()
		communities, communityErr = e.detectCommunities(snapshot)
	}()
	wg.Wait()

	if influenceErr != nil {
		e.logger.Error("Influence scoring failed", "job_id", jobID, "error", influenceErr)
		report.Warnings = append(report.Warnings, influenceErr.Error())
		influence = nil
	}
	if communityErr != nil {
		e.logger.Error("Community detection failed", "job_id", jobID, "error", communityErr)
		report.Warnings = append(report.Warnings, communityErr.Error())
		communities = []*community.Community{}
	}
	report.Influence = influence
	report.Communities = communities

	var trendInsights, gapInsights []*insights.Insight
	if trendInsights, err = e.temporal.Analyze(snapshot, e.config.TrendWindowDays,
		e.config.MinCommunitySize, e.config.MaxCommunities); err != nil {
		e.logger.Error("Temporal analysis failed", "job_id", jobID, "error", err)
		report.Warnings = append(report.Warnings, err.Error())
		trendInsights = nil
	}
	if gapInsights, err = e.gapAnalyzer.IdentifyGaps(snapshot, communities, influence, targetTopics); err != nil {
		e.logger.Error("Gap analysis failed", "job_id", jobID, "error", err)
		report.Warnings = append(report.Warnings, err.Error())
		gapInsights = nil
	}

	report.Insights = e.aggregator.Merge(trendInsights, gapInsights)
	report.Duration = time.Since(startTime)
	e.countInsights(report.Insights)

	e.completeJob(ctx, jobID, snapshot.Version, len(report.Insights), startTime)
	e.publishReport(ctx, report)

	e.logger.Info("Graph analysis completed",
		"job_id", jobID,
		"snapshot_version", snapshot.Version,
		"communities", len(report.Communities),
		"insights", len(report.Insights),
		"warnings", len(report.Warnings),
		"duration_ms", report.Duration.Milliseconds())

	return report, nil
}

// RunScheduledAnalysis executes a full analysis with default topics; it
// backs analysis-requested events from the message bus.
func (e *Engine) RunScheduledAnalysis(ctx context.Context) error {
	_, err := e.AnalyzeGraph(ctx, nil)
	return err
}

func (e *Engine) createJob(ctx context.Context, jobID string, version int64, startedAt time.Time) {
	if e.jobs == nil {
		return
	}
	job := &database.AnalysisJob{
		ID:              jobID,
		Operation:       "analyze_graph",
		Status:          database.JobStatusProcessing,
		SnapshotVersion: version,
		StartedAt:       startedAt,
	}
	if err := e.jobs.CreateAnalysisJob(ctx, job); err != nil {
		e.logger.Warn("Failed to record analysis job", "job_id", jobID, "error", err)
	}
}

func (e *Engine) completeJob(ctx context.Context, jobID string, version int64, insightCount int, startedAt time.Time) {
	if e.jobs == nil {
		return
	}
	completedAt := time.Now()
	job := &database.AnalysisJob{
		ID:              jobID,
		Operation:       "analyze_graph",
		Status:          database.JobStatusCompleted,
		SnapshotVersion: version,
		InsightCount:    insightCount,
		StartedAt:       startedAt,
		CompletedAt:     &completedAt,
	}
	if err := e.jobs.CompleteAnalysisJob(ctx, job); err != nil {
		e.logger.Warn("Failed to complete analysis job", "job_id", jobID, "error", err)
	}
}

func (e *Engine) publishReport(ctx context.Context, report *AnalysisReport) {
	if e.publisher == nil {
		return
	}

	completed := &kafka.AnalysisCompletedEvent{
		JobID:           report.JobID,
		SnapshotVersion: report.SnapshotVersion,
		CommunityCount:  len(report.Communities),
		InsightCount:    len(report.Insights),
		DurationMillis:  report.Duration.Milliseconds(),
		CompletedAt:     time.Now(),
	}
	if err := e.publisher.PublishAnalysisCompleted(ctx, completed); err != nil {
		e.logger.Warn("Failed to publish analysis completed event", "error", err)
	}

	if len(report.Insights) == 0 {
		return
	}
	generated := &kafka.InsightsGeneratedEvent{
		JobID:           report.JobID,
		SnapshotVersion: report.SnapshotVersion,
		Insights:        report.Insights,
		GeneratedAt:     time.Now(),
	}
	if err := e.publisher.PublishInsightsGenerated(ctx, generated); err != nil {
		e.logger.Warn("Failed to publish insights generated event", "error", err)
	}
}

func (e *Engine) countInsights(list []*insights.Insight) {
	if e.metrics == nil {
		return
	}
	for _, insight := range list {
		e.metrics.RecordInsight(string(insight.Type))
	}
}

func (e *Engine) recordCacheOutcome(operation string, hit bool) {
	if e.metrics == nil {
		return
	}
	if hit {
		e.metrics.RecordCacheHit(operation)
	} else {
		e.metrics.RecordCacheMiss(operation)
	}
}

func density(snapshot *graph.Snapshot) float64 {
	n := snapshot.Size()
	if n <= 1 {
		return 0
	}
	maxEdges := n * (n - 1) / 2
	return float64(snapshot.EdgeCount()) / float64(maxEdges)
}
