package model

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedServer(t *testing.T, resp EmbedResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req EmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Texts)
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedBatchNormalizes(t *testing.T) {
	srv := embedServer(t, EmbedResponse{
		Embeddings: [][]float64{{3, 4}},
		Dimension:  2,
		Count:      1,
	})
	defer srv.Close()

	e := NewSidecarEmbedder(srv.URL, 2)
	vecs, err := e.EmbedBatch(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
	assert.InDelta(t, 0.6, float64(vecs[0][0]), 1e-6)
	assert.InDelta(t, 0.8, float64(vecs[0][1]), 1e-6)
}

func TestEmbedBatchDimensionMismatch(t *testing.T) {
	srv := embedServer(t, EmbedResponse{
		Embeddings: [][]float64{{1, 0, 0}},
		Dimension:  3,
		Count:      1,
	})
	defer srv.Close()

	e := NewSidecarEmbedder(srv.URL, 1536)
	_, err := e.EmbedBatch(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEmbedQuerySingleVector(t *testing.T) {
	srv := embedServer(t, EmbedResponse{
		Embeddings: [][]float64{{1, 0}},
		Dimension:  2,
		Count:      1,
	})
	defer srv.Close()

	e := NewSidecarEmbedder(srv.URL, 2)
	vec, err := e.EmbedQuery(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}

func TestEmbedBatchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewSidecarEmbedder(srv.URL, 2)
	_, err := e.EmbedBatch(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestRerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req RerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "the query", req.Query)
		json.NewEncoder(w).Encode(RerankResponse{
			Scores: []float64{0.9, 0.1},
			Count:  2,
		})
	}))
	defer srv.Close()

	re := NewSidecarReranker(srv.URL)
	scores, err := re.Rerank(context.Background(), "the query", []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.9, 0.1}, scores)
}

func TestRerankScoreCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RerankResponse{Scores: []float64{0.9}, Count: 1})
	}))
	defer srv.Close()

	re := NewSidecarReranker(srv.URL)
	_, err := re.Rerank(context.Background(), "q", []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scores")
}

func TestExtract(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ExtractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Chunks, 1)
		json.NewEncoder(w).Encode(ExtractResponse{
			Results: []ChunkEntities{{
				Text:     req.Chunks[0],
				Entities: []ExtractedEntity{{Text: "ACME", Label: "ORG", Score: 0.97}},
			}},
			TotalEntities: 1,
		})
	}))
	defer srv.Close()

	ex := NewSidecarExtractor(srv.URL)
	results, err := ex.Extract(context.Background(), []string{"ACME ships widgets"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Entities, 1)
	assert.Equal(t, "ACME", results[0].Entities[0].Text)
}
