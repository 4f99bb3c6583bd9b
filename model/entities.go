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

// SidecarExtractor calls the NER /extract-entities endpoint.
type SidecarExtractor struct {
	apiURL string
	client *http.Client
}

type ExtractRequest struct {
	Chunks []string `json:"chunks"`
}

type ExtractResponse struct {
	Results       []ChunkEntities `json:"results"`
	TotalEntities int             `json:"total_entities"`
}

func NewSidecarExtractor(apiURL string) *SidecarExtractor {
	return &SidecarExtractor{
		apiURL: apiURL,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (e *SidecarExtractor) Extract(ctx context.Context, chunks []string) ([]ChunkEntities, error) {
	body, err := json.Marshal(ExtractRequest{Chunks: chunks})
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
		return nil, fmt.Errorf("entities API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var extractResp ExtractResponse
	if err := json.Unmarshal(respBody, &extractResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return extractResp.Results, nil
}
