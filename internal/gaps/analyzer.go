// Package gaps cross-references community topic coverage against a
// reference topic list and surfaces missing-relationship opportunities
// between influential entities.
package gaps

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/graphintel/insight-engine/internal/centrality"
	"github.com/graphintel/insight-engine/internal/community"
	"github.com/graphintel/insight-engine/internal/graph"
	"github.com/graphintel/insight-engine/internal/insights"
)

const (
	// DefaultMinTopicCoverage is the entity count below which a
	// reference topic is reported as under-covered.
	DefaultMinTopicCoverage = 3

	minCommonNeighbors  = 2
	influenceQuantile   = 0.75
	derivedTopicLimit   = 10
	maxOpportunityPairs = 10
)

// Analyzer identifies coverage gaps and missing-relationship
// opportunities.
type Analyzer struct {
	minTopicCoverage int
	logger           *slog.Logger
}

// NewAnalyzer creates a new gap analyzer
func NewAnalyzer(minTopicCoverage int, logger *slog.Logger) *Analyzer {
	if minTopicCoverage <= 0 {
		minTopicCoverage = DefaultMinTopicCoverage
	}
	return &Analyzer{
		minTopicCoverage: minTopicCoverage,
		logger:           logger,
	}
}

// IdentifyGaps compares community topic keywords against targetTopics
// (or a list derived from the communities themselves when none are
// supplied) and reports under-covered topics as gap insights. It also
// pairs high-influence entities from different communities that share
// common neighbors without a direct relationship, reporting each pair as
// an opportunity insight.
func (a *Analyzer) IdentifyGaps(
	snapshot *graph.Snapshot,
	communities []*community.Community,
	influence *centrality.InfluenceScore,
	targetTopics []string,
) ([]*insights.Insight, error) {
	startTime := time.Now()

	reference := targetTopics
	if len(reference) == 0 {
		reference = deriveReferenceTopics(communities)
	}

	results := a.coverageGaps(snapshot, reference)
	results = append(results, a.missingLinkOpportunities(snapshot, communities, influence)...)

	a.logger.Info("Gap analysis completed",
		"snapshot_version", snapshot.Version,
		"reference_topics", len(reference),
		"insights", len(results),
		"duration_ms", time.Since(startTime).Milliseconds())

	return results, nil
}

// coverageGaps reports reference topics matched by fewer than the
// minimum number of entities.
func (a *Analyzer) coverageGaps(snapshot *graph.Snapshot, reference []string) []*insights.Insight {
	results := []*insights.Insight{}

	for _, topic := range reference {
		needle := strings.ToLower(strings.TrimSpace(topic))
		if needle == "" {
			continue
		}

		var matched []string
		for _, entity := range snapshot.Entities {
			if entityMatchesTopic(entity, needle) {
				matched = append(matched, entity.ID)
			}
		}

		if len(matched) >= a.minTopicCoverage {
			continue
		}

		results = append(results, &insights.Insight{
			ID:   uuid.New().String(),
			Type: insights.TypeGap,
			Description: fmt.Sprintf(
				"Topic %q is under-covered: %d entities found, %d expected",
				topic, len(matched), a.minTopicCoverage),
			Confidence:       0.7,
			EntitiesInvolved: matched,
			BusinessImpact:   fmt.Sprintf("Content covering %q is thin relative to the target topic set", topic),
			ProjectedValue:   float64(a.minTopicCoverage - len(matched)),
		})
	}

	return results
}

// missingLinkOpportunities finds pairs of high-influence entities in
// different communities that share common neighbors but have no direct
// relationship.
func (a *Analyzer) missingLinkOpportunities(
	snapshot *graph.Snapshot,
	communities []*community.Community,
	influence *centrality.InfluenceScore,
) []*insights.Insight {
	if influence == nil || len(communities) < 2 {
		return nil
	}

	threshold := influenceThreshold(influence)
	communityOf := make(map[string]string)
	for _, c := range communities {
		for _, id := range c.EntityIDs {
			communityOf[id] = c.ID
		}
	}

	var candidates []int
	for i := 0; i < snapshot.Size(); i++ {
		id := snapshot.Entity(i).ID
		if influence.Scores[id] >= threshold && communityOf[id] != "" {
			candidates = append(candidates, i)
		}
	}

	results := []*insights.Insight{}
	for a1 := 0; a1 < len(candidates) && len(results) < maxOpportunityPairs; a1++ {
		for a2 := a1 + 1; a2 < len(candidates) && len(results) < maxOpportunityPairs; a2++ {
			i, j := candidates[a1], candidates[a2]
			first, second := snapshot.Entity(i), snapshot.Entity(j)

			if communityOf[first.ID] == communityOf[second.ID] {
				continue
			}
			if snapshot.Weight(i, j) > 0 {
				continue
			}

			common := commonNeighbors(snapshot, i, j)
			if common < minCommonNeighbors {
				continue
			}

			results = append(results, &insights.Insight{
				ID:   uuid.New().String(),
				Type: insights.TypeOpportunity,
				Description: fmt.Sprintf(
					"%s and %s share %d common neighbors across communities but have no direct relationship",
					first.Name, second.Name, common),
				Confidence:       0.6 + 0.05*float64(common),
				EntitiesInvolved: []string{first.ID, second.ID},
				BusinessImpact:   "A likely missing relationship between influential entities in separate topic clusters",
				ProjectedValue:   float64(common),
			})
		}
	}

	for _, insight := range results {
		if insight.Confidence > 0.9 {
			insight.Confidence = 0.9
		}
	}
	return results
}

func commonNeighbors(snapshot *graph.Snapshot, i, j int) int {
	count := 0
	for k := 0; k < snapshot.Size(); k++ {
		if k == i || k == j {
			continue
		}
		if snapshot.Weight(i, k) > 0 && snapshot.Weight(j, k) > 0 {
			count++
		}
	}
	return count
}

// influenceThreshold returns the score quantile above which an entity
// counts as high-influence.
func influenceThreshold(influence *centrality.InfluenceScore) float64 {
	scores := make([]float64, 0, len(influence.Scores))
	for _, s := range influence.Scores {
		scores = append(scores, s)
	}
	if len(scores) == 0 {
		return 0
	}
	sort.Float64s(scores)
	idx := int(float64(len(scores)) * influenceQuantile)
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	return scores[idx]
}

// deriveReferenceTopics falls back to the most frequent keywords across
// all detected communities when the caller supplied no target topics.
func deriveReferenceTopics(communities []*community.Community) []string {
	counts := make(map[string]int)
	var order []string
	for _, c := range communities {
		for _, kw := range c.TopicKeywords {
			if counts[kw] == 0 {
				order = append(order, kw)
			}
			counts[kw]++
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > derivedTopicLimit {
		order = order[:derivedTopicLimit]
	}
	return order
}

func entityMatchesTopic(entity *graph.Entity, topic string) bool {
	if strings.Contains(strings.ToLower(entity.Name), topic) {
		return true
	}
	switch kw := entity.Properties[graph.PropertyKeywords].(type) {
	case string:
		return strings.Contains(strings.ToLower(kw), topic)
	case []interface{}:
		for _, item := range kw {
			if s, ok := item.(string); ok && strings.Contains(strings.ToLower(s), topic) {
				return true
			}
		}
	}
	return false
}
