package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"deploy-orchestrator-backend/internal/artifacts"
	"deploy-orchestrator-backend/internal/config"
	"deploy-orchestrator-backend/internal/database/models"
)

// EdgePreviewClient deploys a bundle straight to the edge runtime, skipping
// CI. Only the preview environment uses this fast path.
type EdgePreviewClient interface {
	// Deploy uploads the artifact set and returns the provisional preview
	// URL. progress is called with values in [0,1] as the upload advances;
	// it may be nil.
	Deploy(ctx context.Context, app *models.App, files []artifacts.FileArtifact, progress func(float64)) (string, error)
}

// HTTPEdgeClient talks to the edge deployment endpoint over HTTPS.
type HTTPEdgeClient struct {
	endpoint string
	token    string
	httpc    *http.Client
}

func NewHTTPEdgeClient(cfg *config.Config) *HTTPEdgeClient {
	return &HTTPEdgeClient{
		endpoint: cfg.EdgeEndpoint,
		token:    cfg.EdgeToken,
		httpc:    &http.Client{Timeout: 120 * time.Second},
	}
}

// NewHTTPEdgeClientWithTarget is used by tests to point at an httptest
// server.
func NewHTTPEdgeClientWithTarget(endpoint, token string, httpc *http.Client) *HTTPEdgeClient {
	return &HTTPEdgeClient{endpoint: endpoint, token: token, httpc: httpc}
}

type edgeDeployRequest struct {
	Subdomain string                   `json:"subdomain"`
	Files     []artifacts.FileArtifact `json:"files"`
}

type edgeDeployResponse struct {
	URL   string `json:"url"`
	Error string `json:"error,omitempty"`
}

func (c *HTTPEdgeClient) Deploy(ctx context.Context, app *models.App, files []artifacts.FileArtifact, progress func(float64)) (string, error) {
	report := func(v float64) {
		if progress != nil {
			progress(v)
		}
	}
	report(0)

	payload, err := json.Marshal(edgeDeployRequest{Subdomain: app.Subdomain, Files: files})
	if err != nil {
		return "", fmt.Errorf("encoding edge deploy request: %w", err)
	}
	report(0.2)

	url := fmt.Sprintf("%s/apps/%s/deploy", c.endpoint, app.Subdomain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("edge deploy request: %w", err)
	}
	defer resp.Body.Close()
	report(0.8)

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("edge deploy returned %d: %s", resp.StatusCode, string(body))
	}

	var out edgeDeployResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decoding edge deploy response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("edge deploy rejected: %s", out.Error)
	}
	report(1)
	return out.URL, nil
}
