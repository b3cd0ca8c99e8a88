// Package xmr holds amount and unit conversion helpers for the monero
// settlement currency. All internal arithmetic happens in atomic units
// (piconero); decimal display values exist only at presentation and fiat
// boundaries.
package xmr

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AtomicUnitsPerXMR is the number of atomic units (piconero) in one XMR.
const AtomicUnitsPerXMR = 1_000_000_000_000

// Decimals is the number of decimal places of the display unit.
const Decimals = 12

var atomicPerXMR = decimal.New(AtomicUnitsPerXMR, 0)

// ToAtomic converts a display amount of XMR to atomic units.
// Fractional piconero are rounded half up.
func ToAtomic(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() {
		return 0, fmt.Errorf("negative amount: %s", amount)
	}
	units := amount.Mul(atomicPerXMR).Round(0)
	if !units.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount out of range: %s", amount)
	}
	return units.BigInt().Uint64(), nil
}

// FromAtomic converts atomic units to a display amount of XMR.
func FromAtomic(units uint64) decimal.Decimal {
	return decimal.NewFromUint64(units).Div(atomicPerXMR)
}

// FormatAtomic renders atomic units as a fixed 12-decimal XMR string.
func FormatAtomic(units uint64) string {
	return FromAtomic(units).StringFixed(Decimals)
}

// FiatToAtomic converts a fiat amount to atomic units using an exchange
// rate expressed as fiat per XMR. The rate is a snapshot captured at intent
// creation; callers must not re-query it afterwards.
func FiatToAtomic(fiat decimal.Decimal, rate float64) (uint64, error) {
	if rate <= 0 {
		return 0, fmt.Errorf("invalid exchange rate: %f", rate)
	}
	xmrAmount := fiat.Div(decimal.NewFromFloat(rate))
	return ToAtomic(xmrAmount)
}
