package registry_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	"github.com/pylon-apis/pylon/internal/registry"
)

func TestLoad(t *testing.T) {
	reg, err := registry.Load("http://backends.local:9402/")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reg.Len(), 15)

	seen := map[string]bool{}
	for _, c := range reg.List() {
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true

		assert.False(t, strings.HasPrefix(c.ID, entities.DiscoveredIDPrefix), c.ID)
		assert.NotEmpty(t, c.Keywords, c.ID)
		assert.Contains(t, []string{"GET", "POST"}, c.Method, c.ID)
		assert.Greater(t, c.CostMicros, int64(0), c.ID)
		// Trailing slash on the base URL must not produce "//" in endpoints.
		assert.NotContains(t, c.Endpoint, "local:9402//", c.ID)
	}
}

func TestLoadPartnerSplits(t *testing.T) {
	reg, err := registry.Load("http://localhost:9402")
	require.NoError(t, err)

	partners := 0
	for _, c := range reg.List() {
		if c.Source != entities.SourcePartner {
			continue
		}
		partners++
		require.NotNil(t, c.Provider, c.ID)
		assert.InDelta(t, 1.0, c.Provider.Split.Provider+c.Provider.Split.Gateway, 1e-9, c.ID)
		assert.NotEmpty(t, c.Provider.PayoutAddress, c.ID)
	}
	assert.GreaterOrEqual(t, partners, 3)
}

func TestByID(t *testing.T) {
	reg, err := registry.Load("http://localhost:9402")
	require.NoError(t, err)

	c, ok := reg.ByID("screenshot")
	require.True(t, ok)
	assert.Equal(t, "$0.01", c.Price)
	assert.Equal(t, int64(10_000), c.CostMicros)
	assert.Equal(t, entities.SourceNative, c.Source)

	_, ok = reg.ByID("nope")
	assert.False(t, ok)
}
