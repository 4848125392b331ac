package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to a cordon gateway.
type Config struct {
	APIURL       string // Base URL, e.g. "http://localhost:8080"
	OracleSecret string // Oracle identity for verdict submission
	AdminSecret  string // Optional owner identity for overrides
}

// CordonClient is a pure HTTP client for the cordon gateway API.
type CordonClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewCordonClient creates a new client for the cordon gateway.
func NewCordonClient(cfg Config) *CordonClient {
	return &CordonClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the gateway.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the gateway and returns the response body.
func (c *CordonClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.OracleSecret != "" {
		req.Header.Set("X-Oracle-Secret", c.cfg.OracleSecret)
	}
	if c.cfg.AdminSecret != "" {
		req.Header.Set("X-Admin-Secret", c.cfg.AdminSecret)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// ListThreats returns the most recent threat records.
func (c *CordonClient) ListThreats(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/threats", q, nil)
}

// GetThreat returns a single threat record by ID.
func (c *CordonClient) GetThreat(ctx context.Context, threatID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/threats/"+threatID, nil, nil)
}

// GetAnalysis returns the analysis record attached to a threat.
func (c *CordonClient) GetAnalysis(ctx context.Context, threatID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/threats/"+threatID+"/analysis", nil, nil)
}

// ListFrozen returns currently frozen calls.
func (c *CordonClient) ListFrozen(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/frozen", q, nil)
}

// GetStats returns gateway-wide counters.
func (c *CordonClient) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/stats", nil, nil)
}

// ListPending returns analysis requests awaiting a verdict.
func (c *CordonClient) ListPending(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/oracle/pending", q, nil)
}

// SubmitAnalysis submits an analyst verdict for a pending threat.
func (c *CordonClient) SubmitAnalysis(ctx context.Context, threatID, analysisText, suggestedAction string, isCritical bool) (json.RawMessage, error) {
	body := map[string]any{
		"threatId":        threatID,
		"analysisText":    analysisText,
		"suggestedAction": suggestedAction,
		"isCritical":      isCritical,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/oracle/analysis", nil, body)
}

// OverrideThreat resolves a frozen call with owner authority.
func (c *CordonClient) OverrideThreat(ctx context.Context, threatID, action string) (json.RawMessage, error) {
	body := map[string]string{
		"action": action,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/admin/threats/"+threatID+"/override", nil, body)
}
