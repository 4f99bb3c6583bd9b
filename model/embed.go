package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// SidecarEmbedder calls the ML sidecar's /embed endpoint.
type SidecarEmbedder struct {
	apiURL    string
	dimension int
	client    *http.Client
}

type EmbedRequest struct {
	Texts []string `json:"texts"`
}

type EmbedResponse struct {
	Embeddings [][]float64 `json:"embeddings"`
	Dimension  int         `json:"dimension"`
	Count      int         `json:"count"`
}

func NewSidecarEmbedder(apiURL string, dimension int) *SidecarEmbedder {
	return &SidecarEmbedder{
		apiURL:    apiURL,
		dimension: dimension,
		client:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *SidecarEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one text", len(vecs))
	}
	return vecs[0], nil
}

func (e *SidecarEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(EmbedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", e.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var embedResp EmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if e.dimension > 0 && embedResp.Dimension != 0 && embedResp.Dimension != e.dimension {
		return nil, fmt.Errorf("embedder dimension %d does not match configured %d", embedResp.Dimension, e.dimension)
	}

	vectors := make([][]float32, len(embedResp.Embeddings))
	for i, vec := range embedResp.Embeddings {
		norm := normalize64(vec)
		v32 := make([]float32, len(norm))
		for j, x := range norm {
			v32[j] = float32(x)
		}
		vectors[i] = v32
	}
	return vectors, nil
}

// normalize64 scales a vector to unit length so cosine distance behaves.
func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}
	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}
