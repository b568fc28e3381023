package carriers

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/shipping-service/internal/domain"
)

func TestRegistry_Generate(t *testing.T) {
	registry := NewRegistry("A1B2C3")

	tests := []struct {
		name    string
		code    string
		pattern string
	}{
		{"ups", "UPS", `^1ZA1B2C301\d{8}$`},
		{"fedex lower case code", "fedex", `^\d{12}$`},
		{"unknown provider uses internal format", "LOCAL", `^SHP-[0-9A-Z]{12}$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tn, err := registry.Generate(&domain.Provider{ID: "P", Code: tt.code})
			require.NoError(t, err)
			assert.Regexp(t, regexp.MustCompile(tt.pattern), tn)
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry("A1B2C3")
	registry.Register("DHL", InternalGenerator{Prefix: "JD"})

	tn, err := registry.Generate(&domain.Provider{Code: "DHL"})
	require.NoError(t, err)
	assert.Regexp(t, `^JD-`, tn)
}

func TestUPSGenerator_InvalidAccount(t *testing.T) {
	_, err := UPSGenerator{ShipperAccount: "short"}.Generate(nil)
	assert.Error(t, err)
}

func TestInternalGenerator_Unique(t *testing.T) {
	g := InternalGenerator{Prefix: "SHP"}
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		tn, err := g.Generate(nil)
		require.NoError(t, err)
		require.False(t, seen[tn], "duplicate %s", tn)
		seen[tn] = true
	}
}
