package gaps

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphintel/insight-engine/internal/centrality"
	"github.com/graphintel/insight-engine/internal/community"
	"github.com/graphintel/insight-engine/internal/graph"
	"github.com/graphintel/insight-engine/internal/insights"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type edge struct {
	source, target string
}

func buildSnapshot(t *testing.T, entities []*graph.Entity, edges []edge) *graph.Snapshot {
	t.Helper()

	relationships := make([]*graph.Relationship, 0, len(edges))
	for i, e := range edges {
		relationships = append(relationships, &graph.Relationship{
			ID:         "rel-" + e.source + "-" + e.target + "-" + string(rune('a'+i)),
			SourceID:   e.source,
			TargetID:   e.target,
			Type:       "cites",
			Confidence: 1.0,
			CreatedAt:  time.Now(),
		})
	}

	loader := graph.NewLoader(nil, graph.NewWeightModel(), testLogger())
	return loader.Build(entities, relationships)
}

func namedEntity(id, name string) *graph.Entity {
	return &graph.Entity{ID: id, Name: name, CreatedAt: time.Now()}
}

func insightsOfType(list []*insights.Insight, insightType insights.InsightType) []*insights.Insight {
	var out []*insights.Insight
	for _, insight := range list {
		if insight.Type == insightType {
			out = append(out, insight)
		}
	}
	return out
}

func TestCoverageGaps(t *testing.T) {
	analyzer := NewAnalyzer(3, testLogger())

	entities := []*graph.Entity{
		namedEntity("g1", "Go concurrency"),
		namedEntity("g2", "Go generics"),
		namedEntity("g3", "Go modules"),
		namedEntity("r1", "Rust ownership"),
	}
	snapshot := buildSnapshot(t, entities, nil)

	results, err := analyzer.IdentifyGaps(snapshot, nil, nil, []string{"go", "rust", "zig"})
	require.NoError(t, err)

	gaps := insightsOfType(results, insights.TypeGap)
	require.Len(t, gaps, 2)

	// "go" matches three entities and is covered; "rust" and "zig" are not.
	byShortfall := map[float64]*insights.Insight{}
	for _, g := range gaps {
		byShortfall[g.ProjectedValue] = g
	}
	require.Contains(t, byShortfall, 2.0) // rust: 1 of 3
	require.Contains(t, byShortfall, 3.0) // zig: 0 of 3
	assert.Equal(t, []string{"r1"}, byShortfall[2.0].EntitiesInvolved)
	assert.InDelta(t, 0.7, byShortfall[2.0].Confidence, 1e-9)
}

func TestCoverageGapsMatchesKeywordsProperty(t *testing.T) {
	analyzer := NewAnalyzer(1, testLogger())

	entities := []*graph.Entity{
		{ID: "a", Name: "untitled", Properties: map[string]interface{}{"keywords": "distributed tracing"}, CreatedAt: time.Now()},
		{ID: "b", Name: "untitled", Properties: map[string]interface{}{"keywords": []interface{}{"observability"}}, CreatedAt: time.Now()},
	}
	snapshot := buildSnapshot(t, entities, nil)

	results, err := analyzer.IdentifyGaps(snapshot, nil, nil, []string{"tracing", "observability", "profiling"})
	require.NoError(t, err)

	gaps := insightsOfType(results, insights.TypeGap)
	require.Len(t, gaps, 1)
	assert.Contains(t, gaps[0].Description, "profiling")
}

func TestMissingLinkOpportunities(t *testing.T) {
	analyzer := NewAnalyzer(3, testLogger())

	// hub1 and hub2 sit in different communities, share two bridges, and
	// have no direct edge.
	entities := []*graph.Entity{
		namedEntity("hub1", "Hub One"),
		namedEntity("hub2", "Hub Two"),
		namedEntity("bridge1", "Bridge One"),
		namedEntity("bridge2", "Bridge Two"),
		namedEntity("leaf1", "Leaf One"),
		namedEntity("leaf2", "Leaf Two"),
	}
	edges := []edge{
		{"hub1", "bridge1"},
		{"hub1", "bridge2"},
		{"hub2", "bridge1"},
		{"hub2", "bridge2"},
		{"hub1", "leaf1"},
		{"hub2", "leaf2"},
	}
	snapshot := buildSnapshot(t, entities, edges)

	communities := []*community.Community{
		{ID: "community_1", EntityIDs: []string{"hub1", "bridge1", "leaf1"}},
		{ID: "community_2", EntityIDs: []string{"hub2", "bridge2", "leaf2"}},
	}
	influence := &centrality.InfluenceScore{
		Scores: map[string]float64{
			"hub1":    1.0,
			"hub2":    0.95,
			"bridge1": 0.4,
			"bridge2": 0.4,
			"leaf1":   0.1,
			"leaf2":   0.1,
		},
	}

	results, err := analyzer.IdentifyGaps(snapshot, communities, influence, []string{"hub", "bridge", "leaf"})
	require.NoError(t, err)

	opportunities := insightsOfType(results, insights.TypeOpportunity)
	require.Len(t, opportunities, 1)

	opportunity := opportunities[0]
	assert.ElementsMatch(t, []string{"hub1", "hub2"}, opportunity.EntitiesInvolved)
	// Two common neighbors: 0.6 + 2*0.05.
	assert.InDelta(t, 0.7, opportunity.Confidence, 1e-9)
	assert.InDelta(t, 2.0, opportunity.ProjectedValue, 1e-9)
}

func TestNoOpportunitiesWithoutInfluence(t *testing.T) {
	analyzer := NewAnalyzer(3, testLogger())

	entities := []*graph.Entity{
		namedEntity("a", "A"),
		namedEntity("b", "B"),
	}
	snapshot := buildSnapshot(t, entities, nil)

	communities := []*community.Community{
		{ID: "community_1", EntityIDs: []string{"a"}},
		{ID: "community_2", EntityIDs: []string{"b"}},
	}

	results, err := analyzer.IdentifyGaps(snapshot, communities, nil, []string{"a", "b"})
	require.NoError(t, err)
	assert.Empty(t, insightsOfType(results, insights.TypeOpportunity))
}

func TestDerivedReferenceTopics(t *testing.T) {
	analyzer := NewAnalyzer(2, testLogger())

	entities := []*graph.Entity{
		namedEntity("a", "kubernetes operators"),
		namedEntity("b", "kubernetes networking"),
	}
	snapshot := buildSnapshot(t, entities, nil)

	communities := []*community.Community{
		{ID: "community_1", EntityIDs: []string{"a", "b"}, TopicKeywords: []string{"kubernetes", "serverless"}},
	}

	// No target topics: the community keywords become the reference, and
	// "serverless" has no matching entities.
	results, err := analyzer.IdentifyGaps(snapshot, communities, nil, nil)
	require.NoError(t, err)

	gaps := insightsOfType(results, insights.TypeGap)
	require.Len(t, gaps, 1)
	assert.Contains(t, gaps[0].Description, "serverless")
}
