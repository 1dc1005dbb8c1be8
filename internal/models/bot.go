package models

import "encoding/json"

// BotDefinition is the externally owned description of a bot. The core only reads it.
type BotDefinition struct {
	ID       string          `json:"id" validate:"required,max=64"`
	UserID   string          `json:"userId" validate:"required"`
	Name     string          `json:"name" validate:"required"`
	Strategy string          `json:"strategy"`
	Config   json.RawMessage `json:"config,omitempty"` // loosely typed blob, see controller.ExtractStrategyConfig
}

// Allocation is the capital assigned to a bot.
type Allocation struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// RiskLimits are stored as fractions, e.g. 0.02 for 2%.
type RiskLimits struct {
	MaxPositionSize float64 `json:"max_position_size"`
	StopLoss        float64 `json:"stop_loss"`
	TakeProfit      float64 `json:"take_profit"`
	MaxDailyLoss    float64 `json:"max_daily_loss"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	RiskPerTrade    float64 `json:"risk_per_trade"`
}

// StrategyConfig is the typed, fully defaulted configuration a bot trades with.
type StrategyConfig struct {
	Strategy         string     `json:"strategy"`
	Symbol           string     `json:"symbol"`            // e.g. "BTC/USDT"
	TradingFrequency int        `json:"trading_frequency"` // minutes between cycles
	Allocation       Allocation `json:"allocation"`
	Risk             RiskLimits `json:"risk"`
}

const (
	DefaultStrategy         = "momentum"
	DefaultSymbol           = "BTC/USDT"
	DefaultTradingFrequency = 5
	DefaultAllocation       = 1000.0
	DefaultCurrency         = "USDT"
)

// DefaultStrategyConfig returns the conservative configuration used when a
// definition omits a field or cannot be parsed at all.
func DefaultStrategyConfig() StrategyConfig {
	return StrategyConfig{
		Strategy:         DefaultStrategy,
		Symbol:           DefaultSymbol,
		TradingFrequency: DefaultTradingFrequency,
		Allocation:       Allocation{Amount: DefaultAllocation, Currency: DefaultCurrency},
		Risk: RiskLimits{
			MaxPositionSize: 0.1,
			StopLoss:        0.02,
			TakeProfit:      0.04,
			MaxDailyLoss:    0.05,
			MaxDrawdown:     0.1,
			RiskPerTrade:    0.01,
		},
	}
}
