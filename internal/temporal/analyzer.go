// Package temporal detects growing and declining topic clusters by
// comparing activity across two adjacent time windows.
package temporal

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graphintel/insight-engine/internal/community"
	"github.com/graphintel/insight-engine/internal/graph"
	"github.com/graphintel/insight-engine/internal/insights"
)

const (
	trendGrowthThreshold  = 0.5
	threatGrowthThreshold = -0.3
	maxConfidence         = 0.95
)

// Analyzer buckets cluster activity into a current window and the
// immediately preceding window of equal length. The clock is injectable
// so window boundaries are deterministic in tests.
type Analyzer struct {
	detector *community.Detector
	clock    func() time.Time
	logger   *slog.Logger
}

// NewAnalyzer creates a new temporal analyzer. A nil clock defaults to
// time.Now.
func NewAnalyzer(detector *community.Detector, clock func() time.Time, logger *slog.Logger) *Analyzer {
	if clock == nil {
		clock = time.Now
	}
	return &Analyzer{
		detector: detector,
		clock:    clock,
		logger:   logger,
	}
}

// Analyze detects topic clusters and compares each cluster's entity and
// relationship counts between the current and prior windows. Growth above
// 0.5 yields a trend insight; decline below -0.3 yields a threat insight
// with a negative projected value.
func (a *Analyzer) Analyze(snapshot *graph.Snapshot, windowDays, minSize, maxCommunities int) ([]*insights.Insight, error) {
	startTime := time.Now()

	communities, err := a.detector.Detect(snapshot, minSize, maxCommunities)
	if err != nil {
		return nil, err
	}

	now := a.clock()
	window := time.Duration(windowDays) * 24 * time.Hour
	currentStart := now.Add(-window)
	priorStart := now.Add(-2 * window)

	results := []*insights.Insight{}
	for _, c := range communities {
		current, prior := a.windowCounts(snapshot, c, currentStart, priorStart, now)
		growthRate := float64(current-prior) / math.Max(float64(prior), 1)

		if growthRate <= trendGrowthThreshold && growthRate >= threatGrowthThreshold {
			continue
		}

		total := current + prior
		confidence := float64(total) / (float64(total) + 5)
		if confidence > maxConfidence {
			confidence = maxConfidence
		}

		topic := topicLabel(c)
		insight := &insights.Insight{
			ID:               uuid.New().String(),
			Confidence:       confidence,
			EntitiesInvolved: append([]string{}, c.EntityIDs...),
			ProjectedValue:   growthRate * float64(current+1),
		}

		if growthRate > trendGrowthThreshold {
			insight.Type = insights.TypeTrend
			insight.Description = fmt.Sprintf(
				"Topic cluster %s grew %.0f%% over the last %d days (%d vs %d prior)",
				topic, growthRate*100, windowDays, current, prior)
			insight.BusinessImpact = fmt.Sprintf(
				"Rising coverage of %s suggests expanding demand in this area", topic)
		} else {
			insight.Type = insights.TypeThreat
			insight.Description = fmt.Sprintf(
				"Topic cluster %s declined %.0f%% over the last %d days (%d vs %d prior)",
				topic, -growthRate*100, windowDays, current, prior)
			insight.BusinessImpact = fmt.Sprintf(
				"Fading coverage of %s may indicate shrinking relevance", topic)
		}

		results = append(results, insight)
	}

	a.logger.Info("Temporal analysis completed",
		"snapshot_version", snapshot.Version,
		"window_days", windowDays,
		"clusters", len(communities),
		"insights", len(results),
		"duration_ms", time.Since(startTime).Milliseconds())

	return results, nil
}

// windowCounts tallies a cluster's entities and internal relationships
// created in the current and prior windows.
func (a *Analyzer) windowCounts(snapshot *graph.Snapshot, c *community.Community, currentStart, priorStart, now time.Time) (current, prior int) {
	inCluster := make(map[string]bool, len(c.EntityIDs))
	for _, id := range c.EntityIDs {
		inCluster[id] = true
	}

	bucket := func(createdAt time.Time) {
		switch {
		case createdAt.After(currentStart) && !createdAt.After(now):
			current++
		case createdAt.After(priorStart) && !createdAt.After(currentStart):
			prior++
		}
	}

	for _, entity := range snapshot.Entities {
		if inCluster[entity.ID] {
			bucket(entity.CreatedAt)
		}
	}
	for _, rel := range snapshot.Relationships {
		if inCluster[rel.SourceID] && inCluster[rel.TargetID] {
			bucket(rel.CreatedAt)
		}
	}
	return current, prior
}

func topicLabel(c *community.Community) string {
	if len(c.TopicKeywords) == 0 {
		return c.ID
	}
	limit := 3
	if len(c.TopicKeywords) < limit {
		limit = len(c.TopicKeywords)
	}
	return strings.Join(c.TopicKeywords[:limit], ", ")
}
