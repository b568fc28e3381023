package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zoobzio/clockz"
)

// Conversion is a converted amount and the rate path that produced it.
type Conversion struct {
	Amount decimal.Decimal `json:"amount"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Path   []string        `json:"path"`
	Rate   decimal.Decimal `json:"rate"`
}

// CurrencyConverter converts with direct directional rates only, unless
// AllowCross is set, in which case a single hop through Pivot is tried.
// Reverse rates are never derived by inversion.
type CurrencyConverter struct {
	AllowCross bool
	Pivot      string
	// MaxRateAge of zero disables the staleness check.
	MaxRateAge time.Duration
	Clock      clockz.Clock
}

// NewCurrencyConverter returns a direct-only converter on the real clock.
func NewCurrencyConverter() *CurrencyConverter {
	return &CurrencyConverter{Clock: clockz.RealClock}
}

func (c *CurrencyConverter) now() time.Time {
	if c.Clock == nil {
		return clockz.RealClock.Now()
	}
	return c.Clock.Now()
}

// Convert converts amount and rounds it to MoneyPlaces. Converting a currency
// into itself returns amount untouched.
func (c *CurrencyConverter) Convert(snap *Snapshot, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	conv, err := c.ConvertDetailed(snap, amount, from, to)
	if err != nil {
		return decimal.Zero, err
	}
	return conv.Amount, nil
}

// ConvertDetailed is Convert plus the path and effective rate used.
func (c *CurrencyConverter) ConvertDetailed(snap *Snapshot, amount decimal.Decimal, from, to string) (*Conversion, error) {
	rate, path, err := c.resolveRate(snap, from, to)
	if err != nil {
		return nil, err
	}
	if len(path) == 1 {
		return &Conversion{Amount: amount, From: path[0], To: path[0], Path: path, Rate: rate}, nil
	}
	return &Conversion{
		Amount: RoundMoney(amount.Mul(rate)),
		From:   path[0],
		To:     path[len(path)-1],
		Path:   path,
		Rate:   rate,
	}, nil
}

func (c *CurrencyConverter) resolveRate(snap *Snapshot, from, to string) (decimal.Decimal, []string, error) {
	from, to = NormalizeCode(from), NormalizeCode(to)
	if len(from) != 3 || len(to) != 3 {
		return decimal.Zero, nil, fmt.Errorf("%w: %q -> %q", ErrInvalidCurrency, from, to)
	}
	if from == to {
		return decimal.NewFromInt(1), []string{from}, nil
	}

	if r, ok := snap.rate(from, to); ok {
		if err := c.checkFresh(r); err != nil {
			return decimal.Zero, nil, err
		}
		return r.Rate, []string{from, to}, nil
	}

	pivot := NormalizeCode(c.Pivot)
	if c.AllowCross && pivot != "" && pivot != from && pivot != to {
		first, ok1 := snap.rate(from, pivot)
		second, ok2 := snap.rate(pivot, to)
		if ok1 && ok2 {
			if err := c.checkFresh(first); err != nil {
				return decimal.Zero, nil, err
			}
			if err := c.checkFresh(second); err != nil {
				return decimal.Zero, nil, err
			}
			return first.Rate.Mul(second.Rate), []string{from, pivot, to}, nil
		}
	}
	return decimal.Zero, nil, fmt.Errorf("%w: %s -> %s", ErrNoExchangeRate, from, to)
}

func (c *CurrencyConverter) checkFresh(r ExchangeRate) error {
	if c.MaxRateAge <= 0 {
		return nil
	}
	if age := c.now().Sub(r.UpdatedAt); age > c.MaxRateAge {
		return fmt.Errorf("%w: %s -> %s is %s old", ErrStaleExchangeRate, r.From, r.To, age.Truncate(time.Second))
	}
	return nil
}

// ConvertBreakdown converts every monetary term of b into currency to. Each
// term is converted and rounded on its own, then freight, subtotal and total
// are recomputed from the converted terms so the result still adds up.
func (c *CurrencyConverter) ConvertBreakdown(snap *Snapshot, b *CostBreakdown, to string) (*CostBreakdown, error) {
	rate, path, err := c.resolveRate(snap, b.Currency, to)
	if err != nil {
		return nil, err
	}
	if len(path) == 1 {
		out := *b
		return &out, nil
	}
	conv := func(d decimal.Decimal) decimal.Decimal { return RoundMoney(d.Mul(rate)) }

	out := *b
	out.Currency = NormalizeCode(to)
	out.BaseCost = conv(b.BaseCost)
	out.WeightCharge = conv(b.WeightCharge)
	out.DistanceCharge = conv(b.DistanceCharge)
	out.VolumeCharge = conv(b.VolumeCharge)
	out.FuelSurcharge = conv(b.FuelSurcharge)
	out.Insurance = conv(b.Insurance)
	out.Customs = conv(b.Customs)

	out.Freight = out.BaseCost.Add(out.WeightCharge).Add(out.DistanceCharge).Add(out.VolumeCharge)
	out.Subtotal = out.Freight.Add(out.FuelSurcharge)
	if out.FreeShippingApplied {
		out.Total = out.Insurance.Add(out.Customs)
	} else {
		out.Total = out.Subtotal.Add(out.Insurance).Add(out.Customs)
	}
	return &out, nil
}
