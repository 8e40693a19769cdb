package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphintel/insight-engine/internal/config"
	"github.com/graphintel/insight-engine/internal/engine"
	"github.com/graphintel/insight-engine/internal/graph"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRepository struct {
	entities      []*graph.Entity
	relationships []*graph.Relationship
	err           error
}

func (r *fakeRepository) GetEntities(ctx context.Context) ([]*graph.Entity, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.entities, nil
}

func (r *fakeRepository) GetRelationships(ctx context.Context) ([]*graph.Relationship, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.relationships, nil
}

func testConfig() config.Config {
	return config.Config{
		Environment: "test",
		Engine: config.EngineConfig{
			MinCommunitySize:      3,
			MaxCommunities:        20,
			MaxHopDepth:           4,
			MaxFanout:             20,
			PageRankAlpha:         0.85,
			CacheTTL:              time.Hour,
			TrendWindowDays:       30,
			MinTopicCoverage:      3,
			MaxConcurrentAnalyses: 2,
		},
	}
}

func newTestRouter(t *testing.T, repo *fakeRepository) *mux.Router {
	t.Helper()

	cfg := testConfig()
	loader := graph.NewLoader(repo, graph.NewWeightModel(), testLogger())
	insightEngine := engine.New(loader, cfg.Engine, nil, nil, nil, nil, testLogger())

	router := mux.NewRouter()
	NewHTTPHandlers(insightEngine, nil, cfg, testLogger()).RegisterRoutes(router)
	return router
}

func makeRequest(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func connectedRepo() *fakeRepository {
	entities := []*graph.Entity{}
	for _, id := range []string{"a", "b", "c", "d"} {
		entities = append(entities, &graph.Entity{ID: id, Name: id, CreatedAt: time.Now()})
	}
	relationships := []*graph.Relationship{}
	for i, pair := range [][2]string{{"a", "b"}, {"b", "c"}, {"c", "d"}} {
		relationships = append(relationships, &graph.Relationship{
			ID:         "rel-" + string(rune('1'+i)),
			SourceID:   pair[0],
			TargetID:   pair[1],
			Type:       "cites",
			Confidence: 1.0,
			CreatedAt:  time.Now(),
		})
	}
	return &fakeRepository{entities: entities, relationships: relationships}
}

func TestAnalysisEndpoints(t *testing.T) {
	router := newTestRouter(t, connectedRepo())

	t.Run("detect communities", func(t *testing.T) {
		response := makeRequest(t, router, "POST", "/api/v1/analysis/communities", nil)
		require.Equal(t, http.StatusOK, response.Code)

		var result CommunitiesResponse
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &result))
		assert.NotEmpty(t, result.Communities)
		assert.Positive(t, result.SnapshotVersion)
	})

	t.Run("score influence", func(t *testing.T) {
		response := makeRequest(t, router, "POST", "/api/v1/analysis/influence", nil)
		require.Equal(t, http.StatusOK, response.Code)

		var result InfluenceResponse
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &result))
		require.NotNil(t, result.Influence)
		assert.Len(t, result.Influence.Scores, 4)
	})

	t.Run("trace paths", func(t *testing.T) {
		response := makeRequest(t, router, "POST", "/api/v1/analysis/paths", TracePathsRequest{
			SourceID: "a",
			TargetID: "c",
			MaxHops:  3,
		})
		require.Equal(t, http.StatusOK, response.Code)

		var result TracePathsResponse
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &result))
		require.Len(t, result.Paths, 1)
		assert.Equal(t, []string{"a", "b", "c"}, result.Paths[0].Path)
	})

	t.Run("trends", func(t *testing.T) {
		response := makeRequest(t, router, "POST", "/api/v1/analysis/trends", TrendsRequest{WindowDays: 30})
		require.Equal(t, http.StatusOK, response.Code)
	})

	t.Run("gaps", func(t *testing.T) {
		response := makeRequest(t, router, "POST", "/api/v1/analysis/gaps", GapsRequest{
			TargetTopics: []string{"unrepresented topic"},
		})
		require.Equal(t, http.StatusOK, response.Code)

		var result InsightsResponse
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &result))
		assert.NotEmpty(t, result.Insights)
	})

	t.Run("report", func(t *testing.T) {
		response := makeRequest(t, router, "POST", "/api/v1/analysis/report", nil)
		require.Equal(t, http.StatusOK, response.Code)

		var result engine.AnalysisReport
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &result))
		assert.NotEmpty(t, result.JobID)
		assert.Equal(t, 4, result.EntityCount)
	})
}

func TestTracePathsValidation(t *testing.T) {
	router := newTestRouter(t, connectedRepo())

	t.Run("missing source", func(t *testing.T) {
		response := makeRequest(t, router, "POST", "/api/v1/analysis/paths", TracePathsRequest{TargetID: "c"})
		assert.Equal(t, http.StatusBadRequest, response.Code)
	})

	t.Run("missing target", func(t *testing.T) {
		response := makeRequest(t, router, "POST", "/api/v1/analysis/paths", TracePathsRequest{SourceID: "a"})
		assert.Equal(t, http.StatusBadRequest, response.Code)
	})

	t.Run("unknown entity maps to 404", func(t *testing.T) {
		response := makeRequest(t, router, "POST", "/api/v1/analysis/paths", TracePathsRequest{
			SourceID: "a",
			TargetID: "ghost",
		})
		assert.Equal(t, http.StatusNotFound, response.Code)
	})
}

func TestGraphStoreFailureMapsTo503(t *testing.T) {
	router := newTestRouter(t, &fakeRepository{err: errors.New("connection refused")})

	response := makeRequest(t, router, "POST", "/api/v1/analysis/influence", nil)
	assert.Equal(t, http.StatusServiceUnavailable, response.Code)
}

func TestSnapshotEndpoints(t *testing.T) {
	router := newTestRouter(t, connectedRepo())

	response := makeRequest(t, router, "GET", "/api/v1/snapshot", nil)
	require.Equal(t, http.StatusOK, response.Code)

	var first SnapshotResponse
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &first))
	assert.Equal(t, 4, first.EntityCount)
	assert.Equal(t, 3, first.RelationshipCount)

	response = makeRequest(t, router, "POST", "/api/v1/snapshot/refresh", nil)
	require.Equal(t, http.StatusOK, response.Code)

	var refreshed SnapshotResponse
	require.NoError(t, json.Unmarshal(response.Body.Bytes(), &refreshed))
	assert.Greater(t, refreshed.Version, first.Version)
}

func TestJobEndpointsWithoutDatabase(t *testing.T) {
	router := newTestRouter(t, connectedRepo())

	response := makeRequest(t, router, "GET", "/api/v1/analysis/jobs", nil)
	assert.Equal(t, http.StatusNotImplemented, response.Code)

	response = makeRequest(t, router, "GET", "/api/v1/analysis/jobs/some-id", nil)
	assert.Equal(t, http.StatusNotImplemented, response.Code)
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, connectedRepo())

	for _, path := range []string{"/health", "/ready"} {
		response := makeRequest(t, router, "GET", path, nil)
		require.Equal(t, http.StatusOK, response.Code)

		var result map[string]string
		require.NoError(t, json.Unmarshal(response.Body.Bytes(), &result))
		assert.Equal(t, "insight-engine", result["service"])
	}
}
