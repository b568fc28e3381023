package domain

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places every monetary amount carries.
const MoneyPlaces = 2

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}
