package ml_client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"hatewatch/internal/models"
)

// Client is a client for the model sidecar that serves both classification stages.
// It is built once at start-up and shared by every pipeline call.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Config configures the sidecar client.
type Config struct {
	URL string
	// Timeout bounds a single HTTP call; zero disables it.
	Timeout time.Duration
	// RequestsPerSecond throttles calls to the sidecar; zero disables throttling.
	RequestsPerSecond float64
}

// PredictRequest is the body of both stage endpoints.
type PredictRequest struct {
	Texts []string `json:"texts"`
}

// BinaryResponse is returned by the stage-1 endpoint.
type BinaryResponse struct {
	Predictions []models.BinaryPrediction `json:"predictions"`
}

// MultiLabelResponse is returned by the stage-2 endpoint. Probabilities are already
// sigmoid-activated, one vector per input text.
type MultiLabelResponse struct {
	Probabilities [][]float64 `json:"probabilities"`
	Labels        []string    `json:"labels,omitempty"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status       string `json:"status"`
	Stage1Loaded bool   `json:"stage1_loaded"`
	Stage2Loaded bool   `json:"stage2_loaded"`
	Device       string `json:"device"`
	Message      string `json:"message"`
}

// NewClient creates a new sidecar client
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:    cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// InferBinary runs the stage-1 model over batch.
func (c *Client) InferBinary(ctx context.Context, batch []string) ([]models.BinaryPrediction, error) {
	var result BinaryResponse
	if err := c.post(ctx, "/api/v1/stage1/predict", PredictRequest{Texts: batch}, &result); err != nil {
		return nil, err
	}
	return result.Predictions, nil
}

// InferMultiLabel runs the stage-2 model over batch.
func (c *Client) InferMultiLabel(ctx context.Context, batch []string) ([][]float64, error) {
	var result MultiLabelResponse
	if err := c.post(ctx, "/api/v1/stage2/predict", PredictRequest{Texts: batch}, &result); err != nil {
		return nil, err
	}
	return result.Probabilities, nil
}

// HealthCheck checks if the sidecar is healthy
func (c *Client) HealthCheck(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/health", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var result HealthResponse
	if err := c.do(req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait cancelled: %w", err)
		}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("ML service returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
