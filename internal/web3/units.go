package web3

import (
	"errors"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimals of the contract's base unit.
const EtherDecimals int32 = 18

// ToBaseUnits converts a human amount into the contract's base unit,
// truncating digits beyond the unit's precision.
func ToBaseUnits(amount float64, decimals int32) (*big.Int, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return nil, errors.New("金额不是有限数值")
	}
	if amount <= 0 {
		return nil, errors.New("金额必须大于 0")
	}
	units := decimal.NewFromFloat(amount).Shift(decimals).BigInt()
	if units.Sign() <= 0 {
		return nil, errors.New("金额低于最小单位")
	}
	return units, nil
}

// FormatUnits renders a base-unit value as a decimal string. Whole values keep
// a trailing ".0" so "1" is shown as "1.0".
func FormatUnits(value *big.Int, decimals int32) string {
	if value == nil {
		return "0.0"
	}
	text := decimal.NewFromBigInt(value, -decimals).String()
	if !strings.Contains(text, ".") {
		text += ".0"
	}
	return text
}

// FormatAmount renders a user supplied amount without float noise.
func FormatAmount(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return ""
	}
	return decimal.NewFromFloat(amount).String()
}
