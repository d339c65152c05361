package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/interfaces/http/response"
	"github.com/pylon-apis/pylon/internal/reliability"
	"github.com/pylon-apis/pylon/internal/registry"
	"github.com/pylon-apis/pylon/internal/usecases"
)

// CapabilitiesHandler serves the catalog surfaces: the capability list, the
// MCP tool descriptors, the partner directory and marketplace discovery.
type CapabilitiesHandler struct {
	registry  *registry.Registry
	discovery *usecases.DiscoveryEngine
	executor  *reliability.Executor
}

// NewCapabilitiesHandler creates a new capabilities handler
func NewCapabilitiesHandler(reg *registry.Registry, discovery *usecases.DiscoveryEngine, executor *reliability.Executor) *CapabilitiesHandler {
	return &CapabilitiesHandler{registry: reg, discovery: discovery, executor: executor}
}

type capabilityView struct {
	*entities.Capability
	Reliability *reliability.CapabilityStatus `json:"reliability,omitempty"`
}

// List returns every capability the gateway can route to right now:
// registry entries plus activated discovered ones. ?reliability=1 overlays
// circuit state and call counters.
// GET /capabilities
func (h *CapabilitiesHandler) List(c *gin.Context) {
	withReliability := c.Query("reliability") == "1"

	all := append([]*entities.Capability{}, h.registry.List()...)
	discovered := h.discovery.Active()
	sort.Slice(discovered, func(i, j int) bool { return discovered[i].ID < discovered[j].ID })
	all = append(all, discovered...)

	views := make([]capabilityView, 0, len(all))
	for _, cap := range all {
		view := capabilityView{Capability: cap}
		if withReliability {
			if status, ok := h.executor.StatusFor(cap.ID); ok {
				view.Reliability = &status
			}
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"count":        len(views),
		"capabilities": views,
	})
}

// MCP renders the catalog as Model Context Protocol tool descriptors so
// agent frameworks can load the gateway as a toolbox.
// GET /mcp
func (h *CapabilitiesHandler) MCP(c *gin.Context) {
	type tool struct {
		Name        string         `json:"name"`
		Description string         `json:"description"`
		InputSchema map[string]any `json:"inputSchema"`
	}

	caps := h.registry.List()
	tools := make([]tool, 0, len(caps))
	for _, cap := range caps {
		properties := make(map[string]any, len(cap.Inputs))
		var required []string
		for name, field := range cap.Inputs {
			prop := map[string]any{"type": field.Type}
			if field.Description != "" {
				prop["description"] = field.Description
			}
			if field.Default != nil {
				prop["default"] = field.Default
			}
			properties[name] = prop
			if field.Required {
				required = append(required, name)
			}
		}
		sort.Strings(required)

		schema := map[string]any{
			"type":       "object",
			"properties": properties,
		}
		if len(required) > 0 {
			schema["required"] = required
		}

		tools = append(tools, tool{
			Name:        strings.ReplaceAll(cap.ID, "-", "_"),
			Description: cap.Description + " Costs " + cap.Price + " per call.",
			InputSchema: schema,
		})
	}

	c.JSON(http.StatusOK, gin.H{"tools": tools})
}

// Providers lists partner providers and their capabilities, including the
// revenue split each one earns.
// GET /providers
func (h *CapabilitiesHandler) Providers(c *gin.Context) {
	type providerView struct {
		Name         string                `json:"name"`
		ContactURL   string                `json:"contactUrl,omitempty"`
		Split        entities.RevenueSplit `json:"split"`
		Capabilities []string              `json:"capabilities"`
	}

	byName := map[string]*providerView{}
	var order []string
	for _, cap := range h.registry.List() {
		if cap.Source != entities.SourcePartner || cap.Provider == nil {
			continue
		}
		view, ok := byName[cap.Provider.Name]
		if !ok {
			view = &providerView{
				Name:       cap.Provider.Name,
				ContactURL: cap.Provider.ContactURL.String,
				Split:      cap.Provider.Split,
			}
			byName[cap.Provider.Name] = view
			order = append(order, cap.Provider.Name)
		}
		view.Capabilities = append(view.Capabilities, cap.ID)
	}

	sort.Strings(order)
	providers := make([]*providerView, 0, len(order))
	for _, name := range order {
		providers = append(providers, byName[name])
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(providers),
		"providers": providers,
	})
}

// Discover searches the marketplace for a query and returns normalized
// candidates alongside any registry capabilities that match the same terms.
// Nothing is activated; activation happens only through dispatch.
// GET /discover?q=...
func (h *CapabilitiesHandler) Discover(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		response.Error(c, domainerrors.BadRequest(domainerrors.CodeMissingTask, "q query parameter is required"))
		return
	}

	candidates, err := h.discovery.Discover(c.Request.Context(), query)
	if err != nil {
		response.Error(c, domainerrors.BadGateway(domainerrors.CodeBackendUnavailable, "marketplace search failed"))
		return
	}
	if candidates == nil {
		candidates = []*entities.Capability{}
	}

	lower := strings.ToLower(query)
	var local []*entities.Capability
	for _, cap := range h.registry.List() {
		for _, kw := range cap.Keywords {
			if strings.Contains(lower, kw) {
				local = append(local, cap)
				break
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"query":      query,
		"registry":   local,
		"discovered": candidates,
	})
}
