package graph

import (
	"context"
	"time"
)

// Well-known property keys recognized across the engine. Properties are
// free-form string-to-scalar mappings; these keys have defined semantics.
const (
	PropertyConfidence = "confidence"
	PropertyKeywords   = "keywords"
)

// Entity represents an entity node extracted from documents
type Entity struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Relationship represents a typed edge between two entities.
// Confidence is in [0,1] and defaults to 1.0 when the source system
// did not record one.
type Relationship struct {
	ID         string                 `json:"id"`
	SourceID   string                 `json:"source_id"`
	TargetID   string                 `json:"target_id"`
	Type       string                 `json:"type"`
	Confidence float64                `json:"confidence"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Repository is the read-only boundary to the external graph store.
type Repository interface {
	GetEntities(ctx context.Context) ([]*Entity, error)
	GetRelationships(ctx context.Context) ([]*Relationship, error)
}
