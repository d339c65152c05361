// Package registry holds the static catalog of native and partner
// capabilities. The catalog is validated and priced once at startup and is
// immutable for the process lifetime; discovered capabilities live elsewhere.
package registry

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/pylon-apis/pylon/internal/domain/entities"
)

// Registry is the read-only capability store.
type Registry struct {
	caps []*entities.Capability
	byID map[string]*entities.Capability
}

// Load builds and validates the catalog. Any malformed entry is fatal.
func Load(backendBaseURL string) (*Registry, error) {
	caps := catalog(strings.TrimSuffix(backendBaseURL, "/"))

	r := &Registry{
		caps: caps,
		byID: make(map[string]*entities.Capability, len(caps)),
	}
	for _, c := range caps {
		if err := validate(c); err != nil {
			return nil, fmt.Errorf("capability %q: %w", c.ID, err)
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("capability %q: duplicate id", c.ID)
		}
		micros, err := entities.ParseUSD(c.Price, entities.RoundUp)
		if err != nil {
			return nil, fmt.Errorf("capability %q: bad price: %w", c.ID, err)
		}
		c.CostMicros = micros
		r.byID[c.ID] = c
	}
	return r, nil
}

// List returns all registered capabilities.
func (r *Registry) List() []*entities.Capability {
	return r.caps
}

// ByID looks up a capability by its ID.
func (r *Registry) ByID(id string) (*entities.Capability, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	return len(r.caps)
}

func validate(c *entities.Capability) error {
	if c.ID == "" {
		return fmt.Errorf("missing id")
	}
	if strings.HasPrefix(c.ID, entities.DiscoveredIDPrefix) {
		return fmt.Errorf("id uses reserved prefix %q", entities.DiscoveredIDPrefix)
	}
	if c.Endpoint == "" {
		return fmt.Errorf("missing endpoint")
	}
	if _, err := url.ParseRequestURI(c.Endpoint); err != nil {
		return fmt.Errorf("bad endpoint: %w", err)
	}
	if c.Method != "GET" && c.Method != "POST" {
		return fmt.Errorf("unknown method %q", c.Method)
	}
	if len(c.Keywords) == 0 {
		return fmt.Errorf("empty keyword set")
	}
	if c.Source == entities.SourcePartner {
		if c.Provider == nil {
			return fmt.Errorf("partner capability without provider")
		}
		sum := c.Provider.Split.Provider + c.Provider.Split.Gateway
		if math.Abs(sum-1.0) > 1e-9 {
			return fmt.Errorf("revenue split sums to %v, want 1.0", sum)
		}
	}
	return nil
}
