// Package facilitator talks to the external x402 payment facilitator. The
// gateway never custodies funds; it only asks the facilitator to verify a
// caller-supplied proof and, after a successful dispatch, to settle it.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
)

// ProtocolVersion is the x402 protocol version the gateway speaks.
const ProtocolVersion = 2

// Requirement is one payment option in a 402 response and the quote sent to
// the facilitator on verify and settle.
type Requirement struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	Amount            string         `json:"amount"` // micro-units, decimal string
	Asset             string         `json:"asset"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Extra             map[string]any `json:"extra,omitempty"`
}

// RequirementsResponse is the complete 402 body.
type RequirementsResponse struct {
	X402Version    int           `json:"x402Version"`
	Accepts        []Requirement `json:"accepts"`
	FacilitatorURL string        `json:"facilitatorUrl"`
	Error          any           `json:"error"`
}

// verifyRequest is the payload sent to the facilitator /verify and /settle
// endpoints. The proof travels as the raw header value; the facilitator
// understands its encoding, the gateway does not.
type verifyRequest struct {
	X402Version         int         `json:"x402Version"`
	PaymentHeader       string      `json:"paymentHeader"`
	PaymentRequirements Requirement `json:"paymentRequirements"`
}

// VerifyResponse is the facilitator's answer to a verify call.
type VerifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

// SettleResponse is the facilitator's answer to a settle call.
type SettleResponse struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction,omitempty"`
	Network     string `json:"network,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
}

// Client is the facilitator HTTP client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a facilitator client with the standard 10s timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// BaseURL returns the facilitator endpoint named in 402 responses.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Verify asks the facilitator whether the proof covers the quoted
// requirement. Transport failures map to ErrFacilitatorDown; an explicit
// rejection maps to ErrVerificationFailed.
func (c *Client) Verify(ctx context.Context, paymentHeader string, req Requirement) (*VerifyResponse, error) {
	var out VerifyResponse
	if err := c.post(ctx, "/verify", paymentHeader, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Settle executes a verified payment. Called fire-and-forget after a
// successful dispatch.
func (c *Client) Settle(ctx context.Context, paymentHeader string, req Requirement) (*SettleResponse, error) {
	var out SettleResponse
	if err := c.post(ctx, "/settle", paymentHeader, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, path, paymentHeader string, req Requirement, out any) error {
	body, err := json.Marshal(verifyRequest{
		X402Version:         ProtocolVersion,
		PaymentHeader:       paymentHeader,
		PaymentRequirements: req,
	})
	if err != nil {
		return fmt.Errorf("marshal facilitator request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build facilitator request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", domainerrors.ErrFacilitatorDown, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: facilitator status %d", domainerrors.ErrVerificationFailed, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode facilitator response: %w", err)
	}
	return nil
}
