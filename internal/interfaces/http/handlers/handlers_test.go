package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pylon-apis/pylon/internal/config"
	"github.com/pylon-apis/pylon/internal/domain/entities"
	"github.com/pylon-apis/pylon/internal/infrastructure/marketplace"
	"github.com/pylon-apis/pylon/internal/interfaces/http/handlers"
	"github.com/pylon-apis/pylon/internal/registry"
	"github.com/pylon-apis/pylon/internal/reliability"
	"github.com/pylon-apis/pylon/internal/usecases"
)

type staticMarketplace struct {
	resources []marketplace.Resource
}

func (s *staticMarketplace) Search(ctx context.Context, q string, limit int) ([]marketplace.Resource, error) {
	return s.resources, nil
}

type emptyUsage struct{}

func (emptyUsage) Append(ctx context.Context, rec *entities.UsageRecord) error { return nil }

func (emptyUsage) Totals(ctx context.Context, q entities.UsageQuery) (*entities.UsageTotals, error) {
	return &entities.UsageTotals{TotalCalls: 0, TotalSpent: "$0.00"}, nil
}

func (emptyUsage) ByCapability(ctx context.Context, q entities.UsageQuery) ([]*entities.CapabilityUsage, error) {
	return nil, nil
}

func (emptyUsage) Timeline(ctx context.Context, q entities.UsageQuery) ([]*entities.DayUsage, error) {
	return nil, nil
}

func loadRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Load("http://backends.local:9402")
	require.NoError(t, err)
	return reg
}

func getJSON(t *testing.T, r *gin.Engine, path string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	return getJSONFrom(t, r, path, "", headers)
}

// getJSONFrom issues the request from a specific socket peer address.
func getJSONFrom(t *testing.T, r *gin.Engine, path, remoteAddr string, headers map[string]string) (int, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestHealthAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := loadRegistry(t)
	h := handlers.NewHealthHandler(reg, reliability.NewExecutor(nil), "1.0.0")

	r := gin.New()
	r.GET("/health", h.Health)
	r.GET("/status", h.Status)

	code, body := getJSON(t, r, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "pylon", body["service"])
	assert.Equal(t, float64(reg.Len()), body["capabilities"])

	code, body = getJSON(t, r, "/status", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "capabilities")
	assert.Contains(t, body, "uptimeSeconds")
}

func TestCapabilitiesList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := loadRegistry(t)
	discovery := usecases.NewDiscoveryEngine(&staticMarketplace{})
	h := handlers.NewCapabilitiesHandler(reg, discovery, reliability.NewExecutor(nil))

	r := gin.New()
	r.GET("/capabilities", h.List)

	code, body := getJSON(t, r, "/capabilities", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(reg.Len()), body["count"])

	caps := body["capabilities"].([]any)
	first := caps[0].(map[string]any)
	assert.Contains(t, first, "id")
	assert.Contains(t, first, "price")
	assert.Contains(t, first, "inputs")
	// Internal routing detail stays internal.
	assert.NotContains(t, first, "endpoint")
	assert.NotContains(t, first, "reliability")
}

func TestMCPToolDescriptors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := loadRegistry(t)
	discovery := usecases.NewDiscoveryEngine(&staticMarketplace{})
	h := handlers.NewCapabilitiesHandler(reg, discovery, reliability.NewExecutor(nil))

	r := gin.New()
	r.GET("/mcp", h.MCP)

	code, body := getJSON(t, r, "/mcp", nil)
	assert.Equal(t, http.StatusOK, code)
	tools := body["tools"].([]any)
	assert.Len(t, tools, reg.Len())

	for _, raw := range tools {
		tool := raw.(map[string]any)
		assert.NotContains(t, tool["name"], "-", "MCP tool names use underscores")
		assert.Contains(t, tool["description"], "$")
		schema := tool["inputSchema"].(map[string]any)
		assert.Equal(t, "object", schema["type"])
	}
}

func TestProvidersGroupsPartners(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := loadRegistry(t)
	discovery := usecases.NewDiscoveryEngine(&staticMarketplace{})
	h := handlers.NewCapabilitiesHandler(reg, discovery, reliability.NewExecutor(nil))

	r := gin.New()
	r.GET("/providers", h.Providers)

	code, body := getJSON(t, r, "/providers", nil)
	assert.Equal(t, http.StatusOK, code)
	providers := body["providers"].([]any)
	require.NotEmpty(t, providers)

	for _, raw := range providers {
		p := raw.(map[string]any)
		split := p["split"].(map[string]any)
		assert.InDelta(t, 1.0, split["provider"].(float64)+split["gateway"].(float64), 1e-9)
		assert.NotEmpty(t, p["capabilities"])
	}
}

func TestDiscoverRequiresQuery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := loadRegistry(t)
	discovery := usecases.NewDiscoveryEngine(&staticMarketplace{})
	h := handlers.NewCapabilitiesHandler(reg, discovery, reliability.NewExecutor(nil))

	r := gin.New()
	r.GET("/discover", h.Discover)

	code, body := getJSON(t, r, "/discover", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "missing_task", body["code"])
}

func newUsageRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	gate := usecases.NewPaymentGate(nil, nil, config.PaymentConfig{
		TrustedPeers: []string{"10.0.0.0/8"},
	})
	h := handlers.NewUsageHandler(emptyUsage{}, gate)
	r := gin.New()
	r.GET("/usage", h.Totals)
	return r
}

func TestUsageUntrustedPeerSeesOwnWallet(t *testing.T) {
	r := newUsageRouter()

	// ?caller= from an untrusted peer is ignored in favor of the wallet.
	code, body := getJSONFrom(t, r, "/usage?caller=0xsomeoneelse", "203.0.113.9:51002", map[string]string{
		"x-wallet-address": "0x4444444444444444444444444444444444444444",
	})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", body["caller"])
}

func TestUsageUntrustedPeerWithoutWalletIsAnonymous(t *testing.T) {
	r := newUsageRouter()

	code, body := getJSONFrom(t, r, "/usage", "203.0.113.9:51002", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, entities.AnonymousCaller, body["caller"])
}

func TestUsageTrustedPeerMayQueryAnyCaller(t *testing.T) {
	r := newUsageRouter()

	code, body := getJSONFrom(t, r, "/usage?caller=0xsomeoneelse", "10.1.2.3:40000", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0xsomeoneelse", body["caller"])
}

func TestUsageForwardedHeaderCannotElevateTrust(t *testing.T) {
	r := newUsageRouter()

	// A remote client claiming a trusted address via X-Forwarded-For stays
	// untrusted: the query is rewritten to its own wallet.
	code, body := getJSONFrom(t, r, "/usage?caller=0x9999999999999999999999999999999999999999",
		"203.0.113.50:44821", map[string]string{
			"X-Forwarded-For":  "10.1.2.3",
			"x-wallet-address": "0x4444444444444444444444444444444444444444",
		})
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", body["caller"])
}

func TestUsageRejectsBadDates(t *testing.T) {
	r := newUsageRouter()

	code, _ := getJSONFrom(t, r, "/usage?from=notadate", "10.1.2.3:40000", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
