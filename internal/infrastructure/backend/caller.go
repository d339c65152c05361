// Package backend forwards dispatched parameters to capability servers and
// normalizes their responses. All capabilities, native or discovered, go
// through the same invocation path; the only tier difference is whether the
// bypass credential is attached.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
)

// AttemptTimeout bounds one HTTP attempt against a backend.
const AttemptTimeout = 60 * time.Second

// BypassHeader carries the gateway's credential to native/partner backends
// so their own payment gates do not double-charge a already-paid call.
const BypassHeader = "x-test-key"

// StatusError is a non-2xx backend response. The reliability layer retries
// these only for 5xx statuses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend status %d", e.Status)
}

// Caller performs uniform backend invocations.
type Caller struct {
	httpClient *http.Client
	bypassKey  string
}

// NewCaller creates a backend caller. bypassKey is sent to native and
// partner backends only.
func NewCaller(bypassKey string) *Caller {
	return &Caller{
		httpClient: &http.Client{Timeout: AttemptTimeout},
		bypassKey:  bypassKey,
	}
}

// Call forwards params to the capability's endpoint and normalizes the
// response by the capability's output class.
func (c *Caller) Call(ctx context.Context, cap *entities.Capability, params map[string]any) (*entities.CallResult, error) {
	ctx, cancel := context.WithTimeout(ctx, AttemptTimeout)
	defer cancel()

	req, err := c.buildRequest(ctx, cap, params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
			return nil, fmt.Errorf("%w: %s", domainerrors.ErrBackendTimeout, cap.ID)
		}
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start).Milliseconds()

	if resp.StatusCode == http.StatusPaymentRequired {
		// The backend did not honor the bypass credential; a retry cannot fix
		// a misconfiguration.
		return nil, domainerrors.NewAppError(http.StatusBadGateway,
			domainerrors.CodeBackendPaymentRequired,
			"backend demanded payment from the gateway", nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}

	result, err := normalize(cap, resp)
	if err != nil {
		return nil, err
	}
	result.BackendStatus = resp.StatusCode
	result.BackendMs = elapsed
	return result, nil
}

func (c *Caller) buildRequest(ctx context.Context, cap *entities.Capability, params map[string]any) (*http.Request, error) {
	var req *http.Request
	var err error

	if cap.Method == http.MethodGet {
		q := url.Values{}
		for k, v := range params {
			if v == nil {
				continue
			}
			q.Set(k, fmt.Sprintf("%v", v))
		}
		endpoint := cap.Endpoint
		if encoded := q.Encode(); encoded != "" {
			endpoint += "?" + encoded
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	} else {
		body, merr := json.Marshal(params)
		if merr != nil {
			return nil, fmt.Errorf("marshal backend params: %w", merr)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, cap.Endpoint, bytes.NewReader(body))
		if req != nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}

	// Discovered backends are strangers: they get paid by their own 402 flow
	// upstream, never shown the gateway credential.
	if cap.Source != entities.SourceDiscovered && c.bypassKey != "" {
		req.Header.Set(BypassHeader, c.bypassKey)
	}
	return req, nil
}

func normalize(cap *entities.Capability, resp *http.Response) (*entities.CallResult, error) {
	contentType := resp.Header.Get("Content-Type")

	switch cap.Output {
	case entities.OutputJSON:
		var payload any
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return nil, fmt.Errorf("decode backend json: %w", err)
		}
		if contentType == "" {
			contentType = "application/json"
		}
		return &entities.CallResult{Kind: entities.OutputJSON, ContentType: contentType, JSON: payload}, nil

	case entities.OutputImage, entities.OutputPDF:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read backend body: %w", err)
		}
		if contentType == "" {
			if cap.Output == entities.OutputPDF {
				contentType = "application/pdf"
			} else {
				contentType = "image/png"
			}
		}
		return &entities.CallResult{
			Kind:        cap.Output,
			ContentType: contentType,
			Data:        base64.StdEncoding.EncodeToString(raw),
			Size:        len(raw),
		}, nil

	default:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read backend body: %w", err)
		}
		if contentType == "" {
			contentType = "text/plain"
		}
		return &entities.CallResult{Kind: entities.OutputText, ContentType: contentType, Text: string(raw)}, nil
	}
}
