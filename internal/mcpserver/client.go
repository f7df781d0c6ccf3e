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

// Config holds the configuration for connecting to the admin core API.
type Config struct {
	APIURL    string // Base URL, e.g. "http://localhost:8080"
	AdminID   string // Acting admin id, recorded on every mutation
	AdminName string // Acting admin display name (optional)
}

// AdminClient is a pure HTTP client for the admin core API.
type AdminClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewAdminClient creates a new client for the admin core API.
func NewAdminClient(cfg Config) *AdminClient {
	return &AdminClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *AdminClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
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

	req.Header.Set("X-Admin-Id", c.cfg.AdminID)
	if c.cfg.AdminName != "" {
		req.Header.Set("X-Admin-Name", c.cfg.AdminName)
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

// ListDisputes returns a page of disputes matching the filters.
func (c *AdminClient) ListDisputes(ctx context.Context, status, priority, raisedBy, search string, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if priority != "" {
		q.Set("priority", priority)
	}
	if raisedBy != "" {
		q.Set("raised_by", raisedBy)
	}
	if search != "" {
		q.Set("search", search)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/disputes", q, nil)
}

// GetDispute returns the full detail view for a dispute, including the
// linked order and the buyer/seller evidence partition.
func (c *AdminClient) GetDispute(ctx context.Context, disputeID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/disputes/"+disputeID, nil, nil)
}

// GetTimeline returns the chronological message/evidence timeline.
func (c *AdminClient) GetTimeline(ctx context.Context, disputeID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/disputes/"+disputeID+"/timeline", nil, nil)
}

// GetAuditLog returns the audit trail for a dispute.
func (c *AdminClient) GetAuditLog(ctx context.Context, disputeID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/disputes/"+disputeID+"/audit-logs", nil, nil)
}

// GetStats returns workload counters across all disputes.
func (c *AdminClient) GetStats(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/disputes/stats", nil, nil)
}

// UpdateStatus moves a dispute to a new workflow status.
func (c *AdminClient) UpdateStatus(ctx context.Context, disputeID, status string) (json.RawMessage, error) {
	body := map[string]string{"status": status}
	return c.doRequest(ctx, http.MethodPatch, "/v1/disputes/"+disputeID+"/status", nil, body)
}

// AddMessage posts an admin message to the dispute thread.
func (c *AdminClient) AddMessage(ctx context.Context, disputeID, message string) (json.RawMessage, error) {
	body := map[string]string{
		"senderRole": "admin",
		"message":    message,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/disputes/"+disputeID+"/messages", nil, body)
}

// Resolve settles a dispute with the given outcome. Amount is only used
// for partial refunds.
func (c *AdminClient) Resolve(ctx context.Context, disputeID, outcome, amount, notes string) (json.RawMessage, error) {
	body := map[string]string{
		"outcome": outcome,
		"notes":   notes,
	}
	if amount != "" {
		body["amount"] = amount
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/disputes/"+disputeID+"/resolve", nil, body)
}
