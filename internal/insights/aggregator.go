// Package insights defines the engine's insight records and merges the
// outputs of the individual analyzers into a ranked, deduplicated list.
package insights

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/graphintel/insight-engine/internal/paths"
)

// InsightType classifies an insight record.
type InsightType string

const (
	TypeTrend       InsightType = "trend"
	TypeGap         InsightType = "gap"
	TypeOpportunity InsightType = "opportunity"
	TypeThreat      InsightType = "threat"
)

// Insight is an ephemeral analysis finding. Records are computed per
// request and handed to the caller; the engine never persists them.
// ProjectedValue is signed: negative for declining or threat findings.
type Insight struct {
	ID               string          `json:"id"`
	Type             InsightType     `json:"type"`
	Description      string          `json:"description"`
	Confidence       float64         `json:"confidence"`
	EntitiesInvolved []string        `json:"entities_involved"`
	SupportingPaths  []*paths.Result `json:"supporting_paths,omitempty"`
	BusinessImpact   string          `json:"business_impact"`
	ProjectedValue   float64         `json:"projected_value"`
}

// Aggregator merges analyzer outputs into one ranked list.
type Aggregator struct {
	logger *slog.Logger
}

// NewAggregator creates a new insight aggregator
func NewAggregator(logger *slog.Logger) *Aggregator {
	return &Aggregator{logger: logger}
}

// Merge concatenates the given insight lists, deduplicates by
// (type, entities involved) signature keeping the higher-confidence
// record, and ranks by projected value descending.
func (a *Aggregator) Merge(lists ...[]*Insight) []*Insight {
	seen := make(map[string]*Insight)
	var order []string

	for _, list := range lists {
		for _, insight := range list {
			key := signature(insight)
			existing, ok := seen[key]
			if !ok {
				seen[key] = insight
				order = append(order, key)
				continue
			}
			if insight.Confidence > existing.Confidence {
				seen[key] = insight
			}
		}
	}

	merged := make([]*Insight, 0, len(order))
	for _, key := range order {
		merged = append(merged, seen[key])
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].ProjectedValue > merged[j].ProjectedValue
	})

	a.logger.Debug("Insights merged",
		"total", len(merged))

	return merged
}

func signature(insight *Insight) string {
	ids := append([]string{}, insight.EntitiesInvolved...)
	sort.Strings(ids)
	return string(insight.Type) + "|" + strings.Join(ids, ",")
}
