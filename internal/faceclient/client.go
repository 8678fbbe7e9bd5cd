package faceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HealthReport is what the face service says about itself.
type HealthReport struct {
	Status    string `json:"status"`
	Model     string `json:"model,omitempty"`
	Gallery   int    `json:"gallery_size,omitempty"`
	Reachable bool   `json:"-"`
}

// Client probes the face recognition microservice that produces captures.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with configurable timeout.
func New(baseURL string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Health checks if the face service is available.
func (c *Client) Health(ctx context.Context) (*HealthReport, error) {
	if c.Skip {
		return &HealthReport{Status: "skipped", Reachable: false}, nil
	}
	if c.BaseURL == "" {
		return nil, fmt.Errorf("face service url not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("face service unhealthy %s: %s", resp.Status, string(bodyBytes))
	}

	out := HealthReport{Status: "ok"}
	// Older builds answer with an empty body.
	_ = json.NewDecoder(resp.Body).Decode(&out)
	out.Reachable = true
	return &out, nil
}
