package carriers

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wms-platform/shipping-service/internal/domain"
)

// Registry picks a tracking number format by provider code. Providers without
// a registered format get the provider-agnostic internal format.
type Registry struct {
	generators map[string]domain.TrackingNumberGenerator
	fallback   domain.TrackingNumberGenerator
}

// NewRegistry returns a registry with the UPS and FedEx formats registered.
func NewRegistry(upsAccount string) *Registry {
	r := &Registry{
		generators: make(map[string]domain.TrackingNumberGenerator),
		fallback:   InternalGenerator{Prefix: "SHP"},
	}
	r.Register("UPS", UPSGenerator{ShipperAccount: upsAccount})
	r.Register("FEDEX", FedExGenerator{})
	return r
}

// Register sets the generator used for a provider code.
func (r *Registry) Register(providerCode string, g domain.TrackingNumberGenerator) {
	r.generators[strings.ToUpper(providerCode)] = g
}

// Generate implements domain.TrackingNumberGenerator.
func (r *Registry) Generate(provider *domain.Provider) (string, error) {
	if provider != nil {
		if g, ok := r.generators[strings.ToUpper(provider.Code)]; ok {
			return g.Generate(provider)
		}
	}
	return r.fallback.Generate(provider)
}

// InternalGenerator produces PREFIX-XXXXXXXXXXXX from random uuid bits.
type InternalGenerator struct {
	Prefix string
}

const base32Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

func (g InternalGenerator) Generate(_ *domain.Provider) (string, error) {
	n := randomUint64()
	var sb strings.Builder
	sb.WriteString(g.Prefix)
	sb.WriteByte('-')
	for i := 0; i < 12; i++ {
		sb.WriteByte(base32Alphabet[n&31])
		n >>= 5
	}
	return sb.String(), nil
}

// UPSGenerator produces 1Z tracking numbers: 1Z, a 6 character shipper
// account, a 2 digit service indicator and an 8 digit package reference.
type UPSGenerator struct {
	ShipperAccount string
}

func (g UPSGenerator) Generate(_ *domain.Provider) (string, error) {
	account := strings.ToUpper(g.ShipperAccount)
	if len(account) != 6 {
		return "", fmt.Errorf("ups shipper account must be 6 characters, got %q", g.ShipperAccount)
	}
	return fmt.Sprintf("1Z%s01%08d", account, randomUint64()%100_000_000), nil
}

// FedExGenerator produces 12 digit tracking numbers.
type FedExGenerator struct{}

func (FedExGenerator) Generate(_ *domain.Provider) (string, error) {
	return fmt.Sprintf("%012d", randomUint64()%1_000_000_000_000), nil
}

func randomUint64() uint64 {
	id := uuid.New()
	return binary.BigEndian.Uint64(id[8:])
}
