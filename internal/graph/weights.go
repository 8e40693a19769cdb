package graph

// baseWeights maps relationship types to their base strength. Strong
// professional ties (authorship, collaboration) rank near 1.0, generic
// associations near 0.3. Types not listed here use defaultBaseWeight.
var baseWeights = map[string]float64{
	"authored":        1.0,
	"co_authored":     0.95,
	"collaborates":    0.9,
	"employed_by":     0.8,
	"member_of":       0.75,
	"acquired":        0.75,
	"invested_in":     0.7,
	"partnered_with":  0.7,
	"cites":           0.6,
	"located_in":      0.5,
	"mentions":        0.4,
	"co_occurs_with":  0.35,
	"associated_with": 0.3,
	"related_to":      0.3,
}

const defaultBaseWeight = 0.5

// WeightModel maps a relationship to a numeric strength in [0,1].
type WeightModel struct{}

// NewWeightModel creates a new relationship weight model
func NewWeightModel() *WeightModel {
	return &WeightModel{}
}

// Weight returns baseWeight(type) * confidence, clamped to [0,1].
// Deterministic and side-effect-free.
func (m *WeightModel) Weight(rel *Relationship) float64 {
	base, ok := baseWeights[rel.Type]
	if !ok {
		base = defaultBaseWeight
	}

	w := base * rel.Confidence
	if w < 0 {
		return 0
	}
	if w > 1 {
		return 1
	}
	return w
}
