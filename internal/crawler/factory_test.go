package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRegistry(t *testing.T) {
	registry := CreateRegistry()

	tests := map[string]string{
		"www.amazon.co.uk":  "Amazon",
		"WWW.AMAZON.AE":     "Amazon",
		"www.argos.co.uk":   "Argos",
		"www.costco.co.uk":  "Costco",
		"www.currys.co.uk":  "Currys",
		"www.noon.com":      "Noon",
		"www.walmart.com":   "Walmart",
		"www.mediamarkt.de": "MediaMarkt",
		"www.ebay.com":      "eBay",
	}
	for domain, name := range tests {
		adapter, err := registry.Resolve(domain)
		require.NoError(t, err, domain)
		assert.Equal(t, name, adapter.Name(), domain)
	}

	_, err := registry.Resolve("www.unknown-shop.example")
	assert.ErrorIs(t, err, ErrNoAdapter)
}

func TestRegistryFirstMatchWins(t *testing.T) {
	registry := NewRegistry()
	first := NewConfigurableAdapter(AdapterConfig{Name: "first"})
	second := NewConfigurableAdapter(AdapterConfig{Name: "second"})
	registry.Register("shop", first)
	registry.Register("shop.example", second)

	adapter, err := registry.Resolve("www.shop.example")
	require.NoError(t, err)
	assert.Equal(t, "first", adapter.Name())
	assert.Equal(t, 2, registry.Len())
}
