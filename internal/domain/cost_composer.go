package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CostInput is everything the composer needs besides the rule.
type CostInput struct {
	WeightKg          decimal.Decimal
	VolumeCm3         decimal.Decimal
	DistanceKm        decimal.Decimal
	DistancePrecision DistancePrecision
	DeclaredValue     decimal.Decimal
	WantsInsurance    bool
}

// CostBreakdown is an attributable landed-cost estimate. Every term is kept
// so that a quote can be replayed against the rule it names.
type CostBreakdown struct {
	RuleID              string            `json:"ruleId"`
	Currency            string            `json:"currency"`
	BaseCost            decimal.Decimal   `json:"baseCost"`
	WeightCharge        decimal.Decimal   `json:"weightCharge"`
	DistanceCharge      decimal.Decimal   `json:"distanceCharge"`
	VolumeCharge        decimal.Decimal   `json:"volumeCharge"`
	Freight             decimal.Decimal   `json:"freight"`
	FuelSurcharge       decimal.Decimal   `json:"fuelSurcharge"`
	Subtotal            decimal.Decimal   `json:"subtotal"`
	Insurance           decimal.Decimal   `json:"insurance"`
	Customs             decimal.Decimal   `json:"customs"`
	FreeShippingApplied bool              `json:"freeShippingApplied"`
	Total               decimal.Decimal   `json:"total"`
	DistanceKm          decimal.Decimal   `json:"distanceKm"`
	DistancePrecision   DistancePrecision `json:"distancePrecision"`
}

// FreightWaived reports whether the freight subtotal was dropped from the total.
func (c *CostBreakdown) FreightWaived() bool {
	return c.FreeShippingApplied && c.Subtotal.IsPositive()
}

// ValidatePackage rejects package measurements that no rule can price. It runs
// before any rule is looked at, so bad input is never reported as a policy
// rejection.
func ValidatePackage(weightKg, volumeCm3, declaredValue decimal.Decimal) error {
	if !weightKg.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidWeight, weightKg)
	}
	if !volumeCm3.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidVolume, volumeCm3)
	}
	if declaredValue.IsNegative() {
		return fmt.Errorf("%w: %s", ErrInvalidDeclaredValue, declaredValue)
	}
	return nil
}

// Compose prices a shipment with rule. Terms are computed in a fixed order:
// freight components, fuel surcharge on freight, insurance on declared value,
// flat customs, then the free-shipping override which waives freight and fuel
// but keeps insurance and customs.
//
// Freight is the unrounded sum of its components rounded once. The per-component
// charges in the breakdown are rounded for display and may not add up to it.
func Compose(rule *RateRule, in CostInput) (*CostBreakdown, error) {
	if rule == nil {
		return nil, fmt.Errorf("%w: no rule", ErrNoApplicableRate)
	}
	if err := ValidatePackage(in.WeightKg, in.VolumeCm3, in.DeclaredValue); err != nil {
		return nil, err
	}
	if in.DistanceKm.IsNegative() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDistance, in.DistanceKm)
	}

	weight := rule.CostPerKg.Mul(in.WeightKg)
	distance := rule.CostPerKm.Mul(in.DistanceKm)
	volume := rule.CostPerCm3.Mul(in.VolumeCm3)

	b := &CostBreakdown{
		RuleID:            rule.ID,
		Currency:          rule.Currency,
		BaseCost:          RoundMoney(rule.BaseCost),
		WeightCharge:      RoundMoney(weight),
		DistanceCharge:    RoundMoney(distance),
		VolumeCharge:      RoundMoney(volume),
		Freight:           RoundMoney(rule.BaseCost.Add(weight).Add(distance).Add(volume)),
		Customs:           RoundMoney(rule.CustomsFee),
		Insurance:         decimal.Zero,
		DistanceKm:        in.DistanceKm,
		DistancePrecision: in.DistancePrecision,
	}
	b.FuelSurcharge = RoundMoney(b.Freight.Mul(rule.FuelSurchargeRate))
	b.Subtotal = b.Freight.Add(b.FuelSurcharge)

	if in.WantsInsurance {
		b.Insurance = RoundMoney(in.DeclaredValue.Mul(rule.InsuranceRate))
	}

	b.Total = b.Subtotal.Add(b.Insurance).Add(b.Customs)
	if rule.FreeShippingThreshold != nil && in.DeclaredValue.GreaterThanOrEqual(*rule.FreeShippingThreshold) {
		b.FreeShippingApplied = true
		b.Total = b.Insurance.Add(b.Customs)
	}
	return b, nil
}
