package services

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// currencyExponent lists ISO 4217 currencies whose minor unit is not 1/100.
var currencyExponent = map[string]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0, "JPY": 0, "KMF": 0,
	"KRW": 0, "PYG": 0, "RWF": 0, "UGX": 0, "VND": 0, "VUV": 0, "XAF": 0,
	"XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// MinorUnitExponent returns the number of decimal places in currency's minor unit.
func MinorUnitExponent(currency string) int32 {
	if exp, ok := currencyExponent[strings.ToUpper(currency)]; ok {
		return exp
	}
	return 2
}

// ToMinorUnits converts a major-unit decimal into an integer count of minor
// units. Totals carrying precision below the minor unit are rejected.
func ToMinorUnits(amount decimal.Decimal, currency string) (int64, error) {
	shifted := amount.Shift(MinorUnitExponent(currency))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount %s has precision below the %s minor unit", amount.String(), currency)
	}
	return shifted.IntPart(), nil
}

// FromMinorUnits is the inverse of ToMinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	return decimal.New(minor, -MinorUnitExponent(currency))
}

// VerifyAmount reports whether the provider-reported minor-unit amount equals
// the order total. Comparison is always done on integers.
func VerifyAmount(orderTotal decimal.Decimal, providerAmount int64, currency string) bool {
	expected, err := ToMinorUnits(orderTotal, currency)
	if err != nil {
		return false
	}
	return expected == providerAmount
}
