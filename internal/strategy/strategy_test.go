package strategy

import (
	"bot-controller-go/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfgFor(strategy string) models.StrategyConfig {
	cfg := models.DefaultStrategyConfig()
	cfg.Strategy = strategy
	return cfg
}

func candlesFrom(closes []float64) []models.Candle {
	out := make([]models.Candle, len(closes))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		out[i] = models.Candle{Timestamp: start.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func TestMomentumBuy(t *testing.T) {
	g := NewGenerator(models.DefaultSizeBands())
	in := Input{Symbol: "BTC/USDT", Price: 50000, Indicators: Indicators{RSI: 35, MACD: 0.5}}

	sig := g.Decide(in, cfgFor("momentum"))
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.LessOrEqual(t, sig.Confidence, 0.9)
	assert.Greater(t, sig.Confidence, 0.0)
	assert.Contains(t, sig.Reason, "Momentum BUY")
	assert.InDelta(t, 0.001, sig.Quantity, 1e-12, "BTC size is clamped to the band max")
}

func TestMomentumConfidenceCapped(t *testing.T) {
	g := NewGenerator(models.DefaultSizeBands())
	in := Input{Symbol: "BTC/USDT", Price: 50000, Indicators: Indicators{RSI: 1, MACD: 500}}

	sig := g.Decide(in, cfgFor("momentum"))
	assert.Equal(t, 0.9, sig.Confidence)
}

func TestMomentumSellAndHold(t *testing.T) {
	g := NewGenerator(models.DefaultSizeBands())

	sig := g.Decide(Input{Symbol: "ETH/USDT", Price: 3000, Indicators: Indicators{RSI: 75, MACD: -2}}, cfgFor("AI Momentum Pro"))
	assert.Equal(t, models.ActionSell, sig.Action)
	assert.Contains(t, sig.Reason, "Momentum SELL")

	sig = g.Decide(Input{Symbol: "ETH/USDT", Price: 3000, Indicators: Indicators{RSI: 35, MACD: -2}}, cfgFor("momentum"))
	assert.Equal(t, models.ActionHold, sig.Action)
}

func TestScalpingUsesHalfSize(t *testing.T) {
	g := NewGenerator(models.DefaultSizeBands())
	in := Input{Symbol: "SOL/USDT", Price: 100, Indicators: Indicators{RSI: 45, MACD: -0.05}}

	full := PositionSize("SOL/USDT", 100, cfgFor("scalping"), g.Bands)
	sig := g.Decide(in, cfgFor("Scalping"))
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, 0.5, sig.Confidence)
	assert.InDelta(t, full/2, sig.Quantity, 0.01)
}

func TestDCA(t *testing.T) {
	g := NewGenerator(models.DefaultSizeBands())

	sig := g.Decide(Input{Symbol: "BTC/USDT", Price: 101, Indicators: Indicators{RSI: 55, SMA20: 100}}, cfgFor("dca"))
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, 0.7, sig.Confidence)

	sig = g.Decide(Input{Symbol: "BTC/USDT", Price: 110, Indicators: Indicators{RSI: 55, SMA20: 100}}, cfgFor("dca"))
	assert.Equal(t, models.ActionHold, sig.Action, "outside the 2% band")

	sig = g.Decide(Input{Symbol: "BTC/USDT", Price: 101, Indicators: Indicators{RSI: 65, SMA20: 100}}, cfgFor("dca"))
	assert.Equal(t, models.ActionHold, sig.Action)
}

func TestUnknownStrategyHolds(t *testing.T) {
	g := NewGenerator(models.DefaultSizeBands())
	sig := g.Decide(Input{Symbol: "BTC/USDT", Price: 100, Indicators: Indicators{RSI: 10, MACD: 5}}, cfgFor("grid"))
	assert.Equal(t, models.ActionHold, sig.Action)
	assert.Equal(t, ReasonNoOpportunity, sig.Reason)
}

func TestExitRuleWinsOverStrategy(t *testing.T) {
	g := NewGenerator(models.DefaultSizeBands())
	pos := &models.Position{Quantity: 0.002, AveragePrice: 100}

	sig := g.Decide(Input{Symbol: "BTC/USDT", Price: 105, Position: pos, Indicators: Indicators{RSI: 35, MACD: 1}}, cfgFor("momentum"))
	assert.Equal(t, models.ActionSell, sig.Action)
	assert.Equal(t, 0.002, sig.Quantity)
	assert.Contains(t, sig.Reason, "Take profit")

	short := &models.Position{Quantity: -1, AveragePrice: 100}
	sig = g.Decide(Input{Symbol: "BTC/USDT", Price: 103, Position: short}, cfgFor("none"))
	assert.Equal(t, models.ActionBuy, sig.Action)
	assert.Contains(t, sig.Reason, "Stop loss")
}

func TestGenerateFromSnapshot(t *testing.T) {
	g := NewGenerator(models.DefaultSizeBands())

	flat := make([]float64, 60)
	for i := range flat {
		flat[i] = 100
	}
	snap := models.MarketSnapshot{
		Ticker:    models.Ticker{Symbol: "BTC/USDT", Price: 100},
		Candles:   candlesFrom(flat),
		OrderBook: models.OrderBook{Asks: []models.PriceLevel{{Price: 100.5, Quantity: 1}}},
	}
	sig := g.Generate(snap, cfgFor("dca"))
	require.Equal(t, models.ActionBuy, sig.Action)
	assert.Equal(t, 100.5, sig.Price, "buys are priced at the best ask")

	snap.Candles = snap.Candles[:10]
	sig = g.Generate(snap, cfgFor("dca"))
	assert.Equal(t, models.ActionHold, sig.Action)
	assert.Equal(t, ReasonNoData, sig.Reason)
}

func TestIndicators(t *testing.T) {
	rising := make([]float64, 40)
	for i := range rising {
		rising[i] = float64(100 + i)
	}
	assert.Equal(t, 100.0, RSI(rising, RSIPeriod))
	assert.InDelta(t, 129.5, SMA(rising, SMAPeriod), 1e-9)

	macd, _, _ := MACD(rising, MACDFast, MACDSlow, MACDSignal)
	assert.Greater(t, macd, 0.0)

	flat := []float64{5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5, 5}
	assert.Equal(t, 50.0, RSI(flat, RSIPeriod))

	ema := EMA([]float64{1, 2, 3, 4}, 2)
	require.Len(t, ema, 3)
	assert.InDelta(t, 1.5, ema[0], 1e-9)

	_, ok := Compute(rising[:MinDataCount-1])
	assert.False(t, ok)
}

func TestPositionSizeBands(t *testing.T) {
	bands := models.DefaultSizeBands()
	cfg := models.DefaultStrategyConfig()

	assert.Equal(t, 0.001, PositionSize("BTC/USDT", 50000, cfg, bands))
	assert.Equal(t, 0.02, PositionSize("ETHUSDT", 3000, cfg, bands))
	assert.Equal(t, 50.0, PositionSize("USDC/USDT", 1, cfg, bands))
	assert.Equal(t, 0.01, PositionSize("XRP/USDT", 1e9, cfg, bands), "tiny sizes are lifted to the band min")
	assert.Equal(t, bands.Other.Min, PositionSize("XRP/USDT", 0, cfg, bands))

	// 0.01*1000/(2*0.02) = 250, clamped to 100
	assert.Equal(t, 100.0, PositionSize("DOGE/USDT", 2, cfg, bands))
	// 0.01*1000/(700*0.02) = 0.714285..., truncated to 2 decimals
	assert.Equal(t, 0.71, PositionSize("BNB/USDT", 700, cfg, bands))
}

func TestBaseAsset(t *testing.T) {
	assert.Equal(t, "BTC", BaseAsset("btc/usdt", nil))
	assert.Equal(t, "ETH", BaseAsset("ETHBTC", nil))
	assert.Equal(t, "SOL", BaseAsset("SOL-USDC", nil))
	assert.Equal(t, "PEPE", BaseAsset("PEPEFDUSD", nil))
}
