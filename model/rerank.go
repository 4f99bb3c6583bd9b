package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// SidecarReranker calls the cross-encoder /rerank endpoint.
type SidecarReranker struct {
	apiURL string
	client *http.Client
}

type RerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type RerankResponse struct {
	Scores []float64 `json:"scores"`
	Count  int       `json:"count"`
}

func NewSidecarReranker(apiURL string) *SidecarReranker {
	return &SidecarReranker{
		apiURL: apiURL,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

func (r *SidecarReranker) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(RerankRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", r.apiURL, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rerankResp RerankResponse
	if err := json.Unmarshal(respBody, &rerankResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(rerankResp.Scores) != len(documents) {
		return nil, fmt.Errorf("rerank returned %d scores for %d documents", len(rerankResp.Scores), len(documents))
	}
	return rerankResp.Scores, nil
}
