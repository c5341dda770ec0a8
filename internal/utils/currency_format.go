package utils

import (
	"github.com/shopspring/decimal"
)

// majorUnitPrecision is the number of decimals written for amounts in major units.
const majorUnitPrecision = 2

// FormatWithPrecision formats an amount with the given precision
// Example: amount -4.5 with precision 2 returns "-4.50"
func FormatWithPrecision(amount decimal.Decimal, precision int) string {
	return amount.StringFixed(int32(precision))
}

// FormatMajorUnits formats an amount in major units the way exported CSV files carry it.
func FormatMajorUnits(amount decimal.Decimal) string {
	return FormatWithPrecision(amount, majorUnitPrecision)
}
