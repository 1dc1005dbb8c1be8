package strategy

import (
	"bot-controller-go/internal/models"
	"fmt"
	"math"
	"strings"
)

const (
	ReasonNoOpportunity = "No trading opportunity"
	ReasonNoData        = "Insufficient market data"

	maxMomentumConfidence = 0.9
	scalpingConfidence    = 0.5
	dcaConfidence         = 0.7
	exitConfidence        = 0.8
	dcaBandPct            = 0.02
)

// Generator turns a market snapshot into a trading signal. It holds only
// configuration and is safe for concurrent use.
type Generator struct {
	Bands models.SizeBands
}

// NewGenerator returns a generator sizing orders with bands.
func NewGenerator(bands models.SizeBands) *Generator {
	return &Generator{Bands: bands}
}

// Input is everything Decide needs once indicators are computed.
type Input struct {
	Symbol     string
	Price      float64
	Bid        float64
	Ask        float64
	Indicators Indicators
	Position   *models.Position
}

// Generate computes indicators from the snapshot and decides. It never fails;
// missing data yields HOLD.
func (g *Generator) Generate(snap models.MarketSnapshot, cfg models.StrategyConfig) models.TradingSignal {
	price := snap.Ticker.Price
	if price <= 0 && len(snap.Candles) > 0 {
		price = snap.Candles[len(snap.Candles)-1].Close
	}
	if price <= 0 {
		return hold(cfg.Symbol, ReasonNoData)
	}

	in := Input{Symbol: cfg.Symbol, Price: price, Position: snap.Position}
	if len(snap.OrderBook.Bids) > 0 {
		in.Bid = snap.OrderBook.Bids[0].Price
	}
	if len(snap.OrderBook.Asks) > 0 {
		in.Ask = snap.OrderBook.Asks[0].Price
	}

	ind, ok := Compute(Closes(snap.Candles))
	if !ok {
		// exits only need the entry price, not history
		if sig, exit := g.exit(in, cfg); exit {
			return sig
		}
		return hold(cfg.Symbol, ReasonNoData)
	}
	in.Indicators = ind
	return g.Decide(in, cfg)
}

// Decide applies the strategy rules. Strategy names are matched by
// case-insensitive substring so "AI Momentum Pro" routes to momentum.
func (g *Generator) Decide(in Input, cfg models.StrategyConfig) models.TradingSignal {
	if sig, ok := g.exit(in, cfg); ok {
		return sig
	}

	name := strings.ToLower(cfg.Strategy)
	switch {
	case strings.Contains(name, "momentum"):
		return g.momentum(in, cfg)
	case strings.Contains(name, "scalp"):
		return g.scalping(in, cfg)
	case strings.Contains(name, "dca"):
		return g.dca(in, cfg)
	}
	return hold(in.Symbol, ReasonNoOpportunity)
}

func (g *Generator) momentum(in Input, cfg models.StrategyConfig) models.TradingSignal {
	rsi, macd := in.Indicators.RSI, in.Indicators.MACD
	qty := PositionSize(in.Symbol, in.Price, cfg, g.Bands)

	switch {
	case rsi < 40 && macd > 0:
		conf := momentumConfidence(40-rsi, macd)
		return g.signal(in, models.ActionBuy, qty, conf,
			fmt.Sprintf("Momentum BUY: RSI %.2f oversold, MACD %.4f positive", rsi, macd))
	case rsi > 60 && macd < 0:
		conf := momentumConfidence(rsi-60, macd)
		return g.signal(in, models.ActionSell, qty, conf,
			fmt.Sprintf("Momentum SELL: RSI %.2f overbought, MACD %.4f negative", rsi, macd))
	}
	return hold(in.Symbol, ReasonNoOpportunity)
}

// momentumConfidence grows with the RSI distance past its threshold and the
// MACD magnitude.
func momentumConfidence(rsiDistance, macd float64) float64 {
	conf := 0.5 + math.Min(rsiDistance/20, 1)*0.3 + math.Min(math.Abs(macd), 1)*0.2
	return math.Min(conf, maxMomentumConfidence)
}

func (g *Generator) scalping(in Input, cfg models.StrategyConfig) models.TradingSignal {
	rsi, macd := in.Indicators.RSI, in.Indicators.MACD
	qty := Scale(PositionSize(in.Symbol, in.Price, cfg, g.Bands), 0.5, in.Symbol, g.Bands)

	switch {
	case rsi < 50 && macd > -0.1:
		return g.signal(in, models.ActionBuy, qty, scalpingConfidence,
			fmt.Sprintf("Scalping BUY: RSI %.2f, MACD %.4f", rsi, macd))
	case rsi > 50 && macd < 0.1:
		return g.signal(in, models.ActionSell, qty, scalpingConfidence,
			fmt.Sprintf("Scalping SELL: RSI %.2f, MACD %.4f", rsi, macd))
	}
	return hold(in.Symbol, ReasonNoOpportunity)
}

func (g *Generator) dca(in Input, cfg models.StrategyConfig) models.TradingSignal {
	sma, rsi := in.Indicators.SMA20, in.Indicators.RSI
	if sma <= 0 {
		return hold(in.Symbol, ReasonNoOpportunity)
	}

	deviation := math.Abs(in.Price-sma) / sma
	if deviation <= dcaBandPct && rsi < 60 {
		qty := Scale(PositionSize(in.Symbol, in.Price, cfg, g.Bands), 0.25, in.Symbol, g.Bands)
		return g.signal(in, models.ActionBuy, qty, dcaConfidence,
			fmt.Sprintf("DCA BUY: price %.2f within %.1f%% of SMA20 %.2f, RSI %.2f", in.Price, deviation*100, sma, rsi))
	}
	return hold(in.Symbol, ReasonNoOpportunity)
}

// exit closes an open position whose move from entry reached take-profit or stop-loss.
func (g *Generator) exit(in Input, cfg models.StrategyConfig) (models.TradingSignal, bool) {
	pos := in.Position
	if pos == nil || pos.Quantity == 0 || pos.AveragePrice <= 0 {
		return models.TradingSignal{}, false
	}

	move := (in.Price - pos.AveragePrice) / pos.AveragePrice
	action := models.ActionSell
	qty := pos.Quantity
	if pos.Quantity < 0 {
		move = -move
		action = models.ActionBuy
		qty = -qty
	}

	switch {
	case cfg.Risk.TakeProfit > 0 && move >= cfg.Risk.TakeProfit:
		return g.signal(in, action, qty, exitConfidence,
			fmt.Sprintf("Take profit: %.2f%% from entry %.2f", move*100, pos.AveragePrice)), true
	case cfg.Risk.StopLoss > 0 && move <= -cfg.Risk.StopLoss:
		return g.signal(in, action, qty, exitConfidence,
			fmt.Sprintf("Stop loss: %.2f%% from entry %.2f", move*100, pos.AveragePrice)), true
	}
	return models.TradingSignal{}, false
}

// signal prices a BUY at the best ask and a SELL at the best bid when the book has them.
func (g *Generator) signal(in Input, action models.Action, qty, conf float64, reason string) models.TradingSignal {
	price := in.Price
	if action == models.ActionBuy && in.Ask > 0 {
		price = in.Ask
	}
	if action == models.ActionSell && in.Bid > 0 {
		price = in.Bid
	}
	return models.TradingSignal{
		Action:     action,
		Symbol:     in.Symbol,
		Quantity:   qty,
		Price:      price,
		Confidence: conf,
		Reason:     reason,
	}
}

func hold(symbol, reason string) models.TradingSignal {
	return models.TradingSignal{Action: models.ActionHold, Symbol: symbol, Reason: reason}
}
