// Package marketplace queries the external x402 service directory (the
// bazaar) for pay-per-call endpoints matching a task.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Field describes one input parameter advertised by a listed service.
type Field struct {
	Type        string `json:"type,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// InputSchema is the request shape a listed service expects.
type InputSchema struct {
	Method      string           `json:"method,omitempty"`
	QueryParams map[string]Field `json:"queryParams,omitempty"`
	BodyFields  map[string]Field `json:"bodyFields,omitempty"`
}

// OutputSchema wraps the input schema in the directory's envelope.
type OutputSchema struct {
	Input InputSchema `json:"input,omitempty"`
}

// Accept is one payment option advertised for a resource. MaxAmountRequired
// is the provider cost in atomic micro-units.
type Accept struct {
	Scheme            string        `json:"scheme"`
	Network           string        `json:"network"`
	MaxAmountRequired string        `json:"maxAmountRequired"`
	Asset             string        `json:"asset"`
	PayTo             string        `json:"payTo"`
	Description       string        `json:"description,omitempty"`
	MimeType          string        `json:"mimeType,omitempty"`
	OutputSchema      *OutputSchema `json:"outputSchema,omitempty"`
}

// Metadata carries the human-facing directory listing fields.
type Metadata struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Provider    string   `json:"provider,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Resource is one directory entry.
type Resource struct {
	Resource    string    `json:"resource"` // endpoint URL
	Type        string    `json:"type"`
	X402Version int       `json:"x402Version"`
	Accepts     []Accept  `json:"accepts"`
	LastUpdated string    `json:"lastUpdated,omitempty"`
	Metadata    *Metadata `json:"metadata,omitempty"`
}

type listResponse struct {
	X402Version int        `json:"x402Version"`
	Items       []Resource `json:"items"`
}

// Client is the marketplace HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a marketplace client with the standard 10s timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Search lists resources matching the query term.
func (c *Client) Search(ctx context.Context, q string, limit int) ([]Resource, error) {
	if limit <= 0 {
		limit = 20
	}
	u := fmt.Sprintf("%s?q=%s&limit=%d", c.baseURL, url.QueryEscape(q), limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build marketplace request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("marketplace unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("marketplace status %d", resp.StatusCode)
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode marketplace response: %w", err)
	}
	return out.Items, nil
}
