package strategy

import (
	"bot-controller-go/internal/models"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// BaseAsset returns the base of a pair written as "BTC/USDT", "BTC-USDT" or
// "BTCUSDT". For the unseparated form a known quote suffix is stripped.
func BaseAsset(symbol string, quotes []string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if i := strings.IndexAny(s, "/-_"); i > 0 {
		return s[:i]
	}
	for _, q := range append([]string{"USDT", "USDC", "BUSD", "FDUSD", "TUSD", "DAI", "BTC", "ETH"}, quotes...) {
		if len(s) > len(q) && strings.HasSuffix(s, q) {
			return strings.TrimSuffix(s, q)
		}
	}
	return s
}

// BandFor picks the quantity band by the asset class of the symbol's base.
func BandFor(symbol string, bands models.SizeBands) models.SizeBand {
	base := BaseAsset(symbol, bands.Stablecoins)
	switch base {
	case "BTC", "WBTC":
		return bands.BTC
	case "ETH", "WETH":
		return bands.ETH
	}
	for _, s := range bands.Stablecoins {
		if strings.EqualFold(s, base) {
			return bands.Stablecoin
		}
	}
	return bands.Other
}

// PositionSize is riskPerTrade × allocation ÷ (price × stopLoss), clamped into
// the band for the symbol and truncated to the band's precision.
func PositionSize(symbol string, price float64, cfg models.StrategyConfig, bands models.SizeBands) float64 {
	band := BandFor(symbol, bands)
	if price <= 0 || cfg.Risk.StopLoss <= 0 {
		return band.Min
	}

	riskAmount := decimal.NewFromFloat(cfg.Risk.RiskPerTrade).Mul(decimal.NewFromFloat(cfg.Allocation.Amount))
	stopDistance := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(cfg.Risk.StopLoss))
	qty := riskAmount.Div(stopDistance)

	lo := decimal.NewFromFloat(band.Min)
	hi := decimal.NewFromFloat(band.Max)
	if hi.IsPositive() && qty.GreaterThan(hi) {
		qty = hi
	}
	if qty.LessThan(lo) {
		qty = lo
	}

	f, _ := qty.Truncate(precision(band.Min)).Float64()
	return f
}

// Scale shrinks a size by factor while keeping it inside the band.
func Scale(qty, factor float64, symbol string, bands models.SizeBands) float64 {
	band := BandFor(symbol, bands)
	scaled := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(factor)).Truncate(precision(band.Min))
	if scaled.LessThan(decimal.NewFromFloat(band.Min)) {
		return band.Min
	}
	f, _ := scaled.Float64()
	return f
}

// precision is the number of decimals needed to express min, capped at 8.
func precision(min float64) int32 {
	if min <= 0 {
		return 8
	}
	p := int32(math.Ceil(-math.Log10(min) - 1e-9))
	if p < 0 {
		return 0
	}
	if p > 8 {
		return 8
	}
	return p
}
