package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func euParcelInput(declared string) CostInput {
	return CostInput{
		WeightKg:       d("2.5"),
		VolumeCm3:      d("1000"),
		DistanceKm:     d("4000"),
		DeclaredValue:  d(declared),
		WantsInsurance: true,
	}
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, d(want).Equal(got), append([]interface{}{"want %s got %s", want, got.String()}, msgAndArgs...)...)
}

func TestCompose_InsuredInternational(t *testing.T) {
	b, err := Compose(euGroundRule(), euParcelInput("100"))
	require.NoError(t, err)

	assert.Equal(t, "R-EU-GND", b.RuleID)
	assert.Equal(t, "USD", b.Currency)
	assertMoney(t, "5.00", b.BaseCost)
	assertMoney(t, "3.00", b.WeightCharge)
	assertMoney(t, "2.00", b.DistanceCharge)
	assertMoney(t, "0", b.VolumeCharge)
	assertMoney(t, "10.00", b.Freight)
	assertMoney(t, "0.50", b.FuelSurcharge)
	assertMoney(t, "10.50", b.Subtotal)
	assertMoney(t, "1.00", b.Insurance)
	assertMoney(t, "3.00", b.Customs)
	assertMoney(t, "14.50", b.Total)
	assert.False(t, b.FreeShippingApplied)
	assert.False(t, b.FreightWaived())
}

func TestCompose_FreeShippingKeepsInsuranceAndCustoms(t *testing.T) {
	b, err := Compose(euGroundRule(), euParcelInput("1000"))
	require.NoError(t, err)

	assert.True(t, b.FreeShippingApplied)
	assert.True(t, b.FreightWaived())
	assertMoney(t, "10.00", b.Insurance)
	assertMoney(t, "3.00", b.Customs)
	assertMoney(t, "13.00", b.Total)
	// freight stays attributable even when waived
	assertMoney(t, "10.50", b.Subtotal)
}

func TestCompose_FreeThresholdBoundary(t *testing.T) {
	tests := []struct {
		declared  string
		wantFree  bool
		wantTotal string
	}{
		{"500", true, "8.00"},
		{"499.99", false, "18.50"},
		{"500.01", true, "8.00"},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			b, err := Compose(euGroundRule(), euParcelInput(tt.declared))
			require.NoError(t, err)
			assert.Equal(t, tt.wantFree, b.FreeShippingApplied)
			assertMoney(t, tt.wantTotal, b.Total)
		})
	}
}

func TestCompose_NoInsurance(t *testing.T) {
	in := euParcelInput("100")
	in.WantsInsurance = false

	b, err := Compose(euGroundRule(), in)
	require.NoError(t, err)
	assertMoney(t, "0", b.Insurance)
	assertMoney(t, "13.50", b.Total)
}

func TestCompose_NoThreshold(t *testing.T) {
	rule := euGroundRule()
	rule.FreeShippingThreshold = nil

	b, err := Compose(rule, euParcelInput("100000"))
	require.NoError(t, err)
	assert.False(t, b.FreeShippingApplied)
}

func TestCompose_RoundsFreightOnce(t *testing.T) {
	rule := euGroundRule()
	rule.CostPerKg = d("0.333")
	rule.FuelSurchargeRate = d("0.075")

	in := euParcelInput("123.45")
	in.WeightKg = d("1.5")
	in.DistanceKm = d("1234.567")

	b, err := Compose(rule, in)
	require.NoError(t, err)

	assertMoney(t, "0.50", b.WeightCharge)   // 0.4995
	assertMoney(t, "0.62", b.DistanceCharge) // 0.6172835
	assertMoney(t, "6.12", b.Freight)
	assertMoney(t, "0.46", b.FuelSurcharge) // 0.459
	assertMoney(t, "1.23", b.Insurance)     // 1.2345
	assert.True(t, b.Total.Equal(b.Subtotal.Add(b.Insurance).Add(b.Customs)))
	assert.LessOrEqual(t, int(-b.Total.Exponent()), MoneyPlaces)
}

func TestCompose_SubCentComponentsAreNotLost(t *testing.T) {
	rule := euGroundRule()
	rule.BaseCost = d("1.00")
	rule.CostPerKg = d("0.004")
	rule.CostPerKm = d("0.004")
	rule.CostPerCm3 = d("0.004")
	rule.FuelSurchargeRate = d("0")
	rule.CustomsFee = d("0")
	rule.FreeShippingThreshold = nil

	in := CostInput{WeightKg: d("1"), VolumeCm3: d("1"), DistanceKm: d("1"), DeclaredValue: d("0")}
	b, err := Compose(rule, in)
	require.NoError(t, err)

	// each component alone rounds to zero
	assertMoney(t, "0", b.WeightCharge)
	assertMoney(t, "0", b.DistanceCharge)
	assertMoney(t, "0", b.VolumeCharge)
	// 1.012
	assertMoney(t, "1.01", b.Freight)
	assertMoney(t, "1.01", b.Total)

	in.WeightKg = d("2")
	b, err = Compose(rule, in)
	require.NoError(t, err)
	// 1.016
	assertMoney(t, "1.02", b.Freight)
}

func TestValidatePackage(t *testing.T) {
	tests := []struct {
		name     string
		weight   string
		volume   string
		declared string
		wantErr  error
	}{
		{"valid", "1", "1", "0", nil},
		{"zero weight", "0", "1", "0", ErrInvalidWeight},
		{"negative volume", "1", "-5", "0", ErrInvalidVolume},
		{"zero volume", "80", "0", "0", ErrInvalidVolume},
		{"negative declared value", "1", "1", "-0.01", ErrInvalidDeclaredValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePackage(d(tt.weight), d(tt.volume), d(tt.declared))
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, KindInput, kind)
		})
	}
}

func TestCompose_InvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CostInput)
		wantErr error
	}{
		{"zero weight", func(in *CostInput) { in.WeightKg = d("0") }, ErrInvalidWeight},
		{"negative weight", func(in *CostInput) { in.WeightKg = d("-1") }, ErrInvalidWeight},
		{"zero volume", func(in *CostInput) { in.VolumeCm3 = d("0") }, ErrInvalidVolume},
		{"negative distance", func(in *CostInput) { in.DistanceKm = d("-0.001") }, ErrInvalidDistance},
		{"negative declared value", func(in *CostInput) { in.DeclaredValue = d("-5") }, ErrInvalidDeclaredValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := euParcelInput("100")
			tt.mutate(&in)
			b, err := Compose(euGroundRule(), in)
			assert.Nil(t, b)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCompose_Monotonic(t *testing.T) {
	rule := euGroundRule()
	rule.CostPerCm3 = d("0.00037")
	rule.CostPerKm = d("0.00113")
	rule.CostPerKg = d("0.777")
	rule.FuelSurchargeRate = d("0.0725")
	rule.FreeShippingThreshold = nil

	base := CostInput{
		WeightKg:       d("1"),
		VolumeCm3:      d("100"),
		DistanceKm:     d("10"),
		DeclaredValue:  d("50"),
		WantsInsurance: true,
	}

	dimensions := []struct {
		name string
		set  func(*CostInput, decimal.Decimal)
		step decimal.Decimal
	}{
		{"weight", func(in *CostInput, v decimal.Decimal) { in.WeightKg = v }, d("0.013")},
		{"volume", func(in *CostInput, v decimal.Decimal) { in.VolumeCm3 = v }, d("7.3")},
		{"distance", func(in *CostInput, v decimal.Decimal) { in.DistanceKm = v }, d("3.917")},
	}

	for _, dim := range dimensions {
		t.Run(dim.name, func(t *testing.T) {
			in := base
			value := dim.step
			prev := decimal.Zero
			for i := 0; i < 500; i++ {
				dim.set(&in, value)
				b, err := Compose(rule, in)
				require.NoError(t, err)
				require.True(t, b.Total.GreaterThanOrEqual(prev), "%s=%s total %s < previous %s", dim.name, value, b.Total, prev)
				prev = b.Total
				value = value.Add(dim.step)
			}
		})
	}
}
