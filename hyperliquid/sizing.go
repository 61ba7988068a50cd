package hyperliquid

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// RoundSize floor-rounds a contract size to the asset's szDecimals and clamps
// it up to minSz. Rounding is always toward zero: submitting more size than
// the sizing layer computed is never acceptable.
func RoundSize(size float64, szDecimals int, minSz float64) float64 {
	d := decimal.NewFromFloat(size).RoundDown(int32(szDecimals))
	min := decimal.NewFromFloat(minSz)
	if d.LessThan(min) {
		d = min
	}
	f, _ := d.Float64()
	return f
}

// RoundPrice rounds a perp price to the venue's tick rules: at most five
// significant figures and at most (6 - szDecimals) decimal places.
func RoundPrice(px float64, szDecimals int) float64 {
	maxDecimals := 6 - szDecimals
	if maxDecimals < 0 {
		maxDecimals = 0
	}

	d := decimal.NewFromFloat(px)

	// Five significant figures.
	sig, err := strconv.ParseFloat(strconv.FormatFloat(px, 'g', 5, 64), 64)
	if err == nil {
		d = decimal.NewFromFloat(sig)
	}

	d = d.Round(int32(maxDecimals))
	f, _ := d.Float64()
	return f
}

// SlippagePrice computes the aggressive limit price for a market-style IoC
// order: mid shifted by slippage in the crossing direction.
func SlippagePrice(mid float64, isBuy bool, slippage float64, szDecimals int) float64 {
	px := mid
	if isBuy {
		px *= 1 + slippage
	} else {
		px *= 1 - slippage
	}
	return RoundPrice(px, szDecimals)
}
