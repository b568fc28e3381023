package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CheckProviderLimits rejects packages or destinations a provider cannot take.
func CheckProviderLimits(p *Provider, dest *Destination, weightKg, volumeCm3 decimal.Decimal, wantsInsurance bool) error {
	if p.MaxWeightKg.IsPositive() && weightKg.GreaterThan(p.MaxWeightKg) {
		return fmt.Errorf("%w: %s weighs %skg, limit %skg", ErrExceedsProviderLimits, p.ID, weightKg, p.MaxWeightKg)
	}
	if p.MaxVolumeCm3.IsPositive() && volumeCm3.GreaterThan(p.MaxVolumeCm3) {
		return fmt.Errorf("%w: %s volume %scm3, limit %scm3", ErrExceedsProviderLimits, p.ID, volumeCm3, p.MaxVolumeCm3)
	}
	if dest != nil && dest.International && !p.SupportsInternational {
		return fmt.Errorf("%w: %s to %s", ErrInternationalNotSupported, p.ID, dest.CountryCode)
	}
	if wantsInsurance && !p.SupportsInsurance {
		return fmt.Errorf("%w: %s", ErrInsuranceNotSupported, p.ID)
	}
	return nil
}
