// Package neo4j implements the read-only graph repository boundary on
// top of the Neo4j driver.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/graphintel/insight-engine/internal/config"
	"github.com/graphintel/insight-engine/internal/graph"
)

// Client wraps the Neo4j driver as a graph.Repository. It issues only
// read queries; writes belong to the upstream extraction pipeline.
type Client struct {
	driver neo4j.DriverWithContext
	config config.Neo4jConfig
	logger *slog.Logger
}

// NewClient creates a new Neo4j client
func NewClient(cfg config.Neo4jConfig, logger *slog.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(config *neo4j.Config) {
			config.MaxConnectionPoolSize = cfg.MaxConnections
			config.ConnectionAcquisitionTimeout = cfg.ConnectionTimeout
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	client := &Client{
		driver: driver,
		config: cfg,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify Neo4j connectivity: %w", err)
	}

	return client, nil
}

// Close closes the Neo4j driver
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.driver.Close(ctx)
}

// GetEntities reads every entity node from the graph store.
func (c *Client) GetEntities(ctx context.Context) ([]*graph.Entity, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.config.Database,
	})
	defer session.Close(ctx)

	query := `
		MATCH (n:Entity)
		RETURN n.id AS id, n.name AS name, n.type AS type,
			   n.created_at AS created_at, properties(n) AS props
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}

		var entities []*graph.Entity
		for result.Next(ctx) {
			record := result.Record()
			entity := &graph.Entity{
				ID:         stringValue(record, "id"),
				Name:       stringValue(record, "name"),
				Type:       stringValue(record, "type"),
				Properties: propsValue(record, "props"),
				CreatedAt:  timeValue(record, "created_at"),
			}
			if entity.ID == "" {
				continue
			}
			entities = append(entities, entity)
		}
		return entities, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}

	entities := result.([]*graph.Entity)
	c.logger.Debug("Entities read from graph store", "count", len(entities))
	return entities, nil
}

// GetRelationships reads every relationship from the graph store.
// Confidence defaults to 1.0 when the relationship has none recorded.
func (c *Client) GetRelationships(ctx context.Context) ([]*graph.Relationship, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.config.Database,
	})
	defer session.Close(ctx)

	query := `
		MATCH (a:Entity)-[r]->(b:Entity)
		RETURN r.id AS id, a.id AS source_id, b.id AS target_id,
			   type(r) AS type, r.confidence AS confidence,
			   r.created_at AS created_at, properties(r) AS props
	`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}

		var relationships []*graph.Relationship
		for result.Next(ctx) {
			record := result.Record()
			rel := &graph.Relationship{
				ID:         stringValue(record, "id"),
				SourceID:   stringValue(record, "source_id"),
				TargetID:   stringValue(record, "target_id"),
				Type:       stringValue(record, "type"),
				Confidence: confidenceValue(record),
				Properties: propsValue(record, "props"),
				CreatedAt:  timeValue(record, "created_at"),
			}
			relationships = append(relationships, rel)
		}
		return relationships, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read relationships: %w", err)
	}

	relationships := result.([]*graph.Relationship)
	c.logger.Debug("Relationships read from graph store", "count", len(relationships))
	return relationships, nil
}

func stringValue(record *neo4j.Record, key string) string {
	if val, ok := record.Get(key); ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return ""
}

func propsValue(record *neo4j.Record, key string) map[string]interface{} {
	if val, ok := record.Get(key); ok {
		if m, ok := val.(map[string]interface{}); ok {
			return m
		}
	}
	return nil
}

func timeValue(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	switch v := val.(type) {
	case time.Time:
		return v
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func confidenceValue(record *neo4j.Record) float64 {
	val, ok := record.Get("confidence")
	if !ok || val == nil {
		return 1.0
	}
	switch v := val.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 1.0
}
