package handlers

import (
	"time"

	"github.com/graphintel/insight-engine/internal/centrality"
	"github.com/graphintel/insight-engine/internal/community"
	"github.com/graphintel/insight-engine/internal/insights"
	"github.com/graphintel/insight-engine/internal/paths"
)

// TracePathsRequest asks for significant connections between two
// entities.
type TracePathsRequest struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
	MaxHops  int    `json:"max_hops,omitempty"`
}

// TracePathsResponse carries the ranked paths.
type TracePathsResponse struct {
	SourceID string          `json:"source_id"`
	TargetID string          `json:"target_id"`
	Paths    []*paths.Result `json:"paths"`
}

// TrendsRequest configures the temporal analysis window.
type TrendsRequest struct {
	WindowDays int `json:"window_days,omitempty"`
}

// GapsRequest lists the topics coverage is measured against. An empty
// list falls back to topics derived from the graph itself.
type GapsRequest struct {
	TargetTopics []string `json:"target_topics,omitempty"`
}

// ReportRequest configures a full analysis run.
type ReportRequest struct {
	TargetTopics []string `json:"target_topics,omitempty"`
}

// CommunitiesResponse carries detected communities.
type CommunitiesResponse struct {
	SnapshotVersion int64                  `json:"snapshot_version"`
	Communities     []*community.Community `json:"communities"`
}

// InfluenceResponse carries combined centrality scores.
type InfluenceResponse struct {
	Influence *centrality.InfluenceScore `json:"influence"`
}

// InsightsResponse carries a ranked insight list.
type InsightsResponse struct {
	Insights []*insights.Insight `json:"insights"`
}

// SnapshotResponse describes the loaded snapshot.
type SnapshotResponse struct {
	Version           int64     `json:"version"`
	EntityCount       int       `json:"entity_count"`
	RelationshipCount int       `json:"relationship_count"`
	LoadedAt          time.Time `json:"loaded_at"`
}

// AnalysisJobResponse describes a recorded analysis run.
type AnalysisJobResponse struct {
	ID              string     `json:"id"`
	Operation       string     `json:"operation"`
	Status          string     `json:"status"`
	SnapshotVersion int64      `json:"snapshot_version"`
	InsightCount    int        `json:"insight_count"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ListAnalysisJobsResponse carries a page of analysis jobs.
type ListAnalysisJobsResponse struct {
	Jobs   []*AnalysisJobResponse `json:"jobs"`
	Limit  int                    `json:"limit"`
	Offset int                    `json:"offset"`
}
