package controller

import (
	"bot-controller-go/internal/ledger"
	"bot-controller-go/internal/models"
	"time"
)

// Options tune scheduling and the trading pipeline shared by every bot.
type Options struct {
	FirstCycleDelay time.Duration // delay before the first cycle after a start
	FrequencyUnit   time.Duration // one unit of StrategyConfig.TradingFrequency
	SaveInterval    time.Duration // max time between saves without a trade
	CycleTimeout    time.Duration
	StopTimeout     time.Duration // bound for the final save of a stopped bot

	CandleInterval string
	CandleLimit    int
	OrderBookDepth int

	Risk      models.RiskConfig
	SizeBands models.SizeBands
	FeeRate   float64
	Noise     ledger.NoiseSource

	Now func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		FirstCycleDelay: time.Second,
		FrequencyUnit:   time.Minute,
		SaveInterval:    10 * time.Minute,
		CycleTimeout:    2 * time.Minute,
		StopTimeout:     10 * time.Second,
		CandleInterval:  "1h",
		CandleLimit:     100,
		OrderBookDepth:  20,
		Risk:            models.RiskConfig{MaxErrors: 10, MinWinRate: 0.2, MinTradesForWinRate: 10},
		SizeBands:       models.DefaultSizeBands(),
		FeeRate:         ledger.DefaultFeeRate,
		Noise:           ledger.NewUniformNoise(ledger.DefaultNoisePct, 0),
		Now:             time.Now,
	}
}

// OptionsFromConfig maps the process configuration onto Options. Zero values
// keep the defaults.
func OptionsFromConfig(cfg *models.Config) Options {
	opts := DefaultOptions()
	cc := cfg.Controller

	if cc.FirstCycleDelayMs > 0 {
		opts.FirstCycleDelay = time.Duration(cc.FirstCycleDelayMs) * time.Millisecond
	}
	if cc.SaveIntervalSec > 0 {
		opts.SaveInterval = time.Duration(cc.SaveIntervalSec) * time.Second
	}
	if cc.CandleInterval != "" {
		opts.CandleInterval = cc.CandleInterval
	}
	if cc.CandleLimit > 0 {
		opts.CandleLimit = cc.CandleLimit
	}
	if cc.OrderBookDepth > 0 {
		opts.OrderBookDepth = cc.OrderBookDepth
	}
	if cc.FeeRate > 0 {
		opts.FeeRate = cc.FeeRate
	}
	opts.Noise = ledger.NewUniformNoise(cc.NoisePct, 0)
	opts.Risk = cfg.Risk
	opts.SizeBands = cfg.SizeBands
	return opts
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FrequencyUnit <= 0 {
		o.FrequencyUnit = d.FrequencyUnit
	}
	if o.CycleTimeout <= 0 {
		o.CycleTimeout = d.CycleTimeout
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = d.StopTimeout
	}
	if o.CandleInterval == "" {
		o.CandleInterval = d.CandleInterval
	}
	if o.CandleLimit <= 0 {
		o.CandleLimit = d.CandleLimit
	}
	if o.OrderBookDepth <= 0 {
		o.OrderBookDepth = d.OrderBookDepth
	}
	if o.Risk.MaxErrors <= 0 {
		o.Risk.MaxErrors = d.Risk.MaxErrors
	}
	if o.Risk.MinWinRate <= 0 {
		o.Risk.MinWinRate = d.Risk.MinWinRate
	}
	if o.Risk.MinTradesForWinRate <= 0 {
		o.Risk.MinTradesForWinRate = d.Risk.MinTradesForWinRate
	}
	o.SizeBands = fillBands(o.SizeBands, d.SizeBands)
	if o.Noise == nil {
		o.Noise = ledger.NoNoise
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func fillBands(b, d models.SizeBands) models.SizeBands {
	if b.BTC == (models.SizeBand{}) {
		b.BTC = d.BTC
	}
	if b.ETH == (models.SizeBand{}) {
		b.ETH = d.ETH
	}
	if b.Stablecoin == (models.SizeBand{}) {
		b.Stablecoin = d.Stablecoin
	}
	if b.Other == (models.SizeBand{}) {
		b.Other = d.Other
	}
	if len(b.Stablecoins) == 0 {
		b.Stablecoins = d.Stablecoins
	}
	return b
}
