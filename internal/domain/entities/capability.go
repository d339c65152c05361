package entities

import (
	"github.com/volatiletech/null/v8"
)

// SourceTier identifies where a capability comes from and dictates whether
// the backend bypass credential is sent with its calls.
type SourceTier string

const (
	SourceNative     SourceTier = "native"
	SourcePartner    SourceTier = "partner"
	SourceDiscovered SourceTier = "discovered"
)

// DiscoveredIDPrefix is reserved for capabilities activated at run time by
// the discovery engine. Registry IDs must never carry it.
const DiscoveredIDPrefix = "discovered:"

// OutputKind classifies how a backend response body is normalized.
type OutputKind string

const (
	OutputJSON  OutputKind = "json"
	OutputImage OutputKind = "image"
	OutputPDF   OutputKind = "pdf"
	OutputText  OutputKind = "text"
)

// InputField describes one parameter in a capability's input schema.
type InputField struct {
	Type        string `json:"type"` // string | number | boolean
	Required    bool   `json:"required"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// RevenueSplit is the provider/gateway fraction pair for partner and
// discovered capabilities. Fractions must sum to 1.0.
type RevenueSplit struct {
	Provider float64 `json:"provider"`
	Gateway  float64 `json:"gateway"`
}

// Provider identifies the third party behind a partner or discovered
// capability.
type Provider struct {
	Name          string       `json:"name"`
	PayoutAddress string       `json:"payoutAddress"`
	ContactURL    null.String  `json:"contactUrl,omitempty"`
	Split         RevenueSplit `json:"split"`
}

// Capability is a single backend operation the gateway can route to. Native
// and partner entries are immutable after registry load; discovered entries
// are created at run time by the discovery engine and share this shape.
type Capability struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Price       string                `json:"price"` // "$0.01"
	CostMicros  int64                 `json:"-"`
	Keywords    []string              `json:"keywords"`
	Endpoint    string                `json:"-"`
	Method      string                `json:"method"` // GET | POST
	Inputs      map[string]InputField `json:"inputs"`
	Output      OutputKind            `json:"output"`
	Source      SourceTier            `json:"source"`
	Provider    *Provider             `json:"provider,omitempty"`

	// Discovered-only fields, taken from the marketplace record.
	ProviderCostMicros int64  `json:"-"`
	PayTo              string `json:"-"`
	Network            string `json:"-"`
}

// GatewayFeeMicros is the markup the gateway keeps on a discovered call.
func (c *Capability) GatewayFeeMicros() int64 {
	if c.Source != SourceDiscovered {
		return 0
	}
	return c.CostMicros - c.ProviderCostMicros
}

// RequiredInputs returns the names of all required schema fields.
func (c *Capability) RequiredInputs() []string {
	var names []string
	for name, f := range c.Inputs {
		if f.Required {
			names = append(names, name)
		}
	}
	return names
}
