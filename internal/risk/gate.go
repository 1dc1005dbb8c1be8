package risk

import (
	"bot-controller-go/internal/models"
	"fmt"
	"math"
)

// Check names, in evaluation order.
const (
	CheckPositionSize = "position_size"
	CheckDailyLoss    = "daily_loss"
	CheckDrawdown     = "max_drawdown"
	CheckErrors       = "error_ceiling"
	CheckWinRate      = "win_rate"
)

// Decision is the outcome of evaluating one signal.
type Decision struct {
	Allowed bool
	Check   string // the first violated check, empty when allowed
	Reason  string
}

// Gate validates signals against configured risk limits. It is stateless;
// the caller passes the bot's current stats on every call.
type Gate struct {
	limits models.RiskConfig
}

// NewGate returns a gate using the process-wide circuit breaker thresholds.
func NewGate(limits models.RiskConfig) *Gate {
	return &Gate{limits: limits}
}

// Evaluate runs the checks in order and stops at the first violation.
//
// The loss ceiling and the drawdown ceiling use the same computation, the
// absolute cumulative profit against allocation × limit. Neither resets daily
// nor tracks peak-to-trough.
func (g *Gate) Evaluate(stats models.Stats, sig models.TradingSignal, cfg models.StrategyConfig) Decision {
	portfolio := cfg.Allocation.Amount

	notional := sig.Notional()
	if maxNotional := portfolio * cfg.Risk.MaxPositionSize; notional > maxNotional {
		return reject(CheckPositionSize, "position notional %.4f exceeds limit %.4f", notional, maxNotional)
	}

	exposure := math.Abs(stats.Profit)
	if ceiling := portfolio * cfg.Risk.MaxDailyLoss; exposure > ceiling {
		return reject(CheckDailyLoss, "cumulative P&L %.4f exceeds daily loss limit %.4f", exposure, ceiling)
	}
	if ceiling := portfolio * cfg.Risk.MaxDrawdown; exposure > ceiling {
		return reject(CheckDrawdown, "cumulative P&L %.4f exceeds drawdown limit %.4f", exposure, ceiling)
	}

	if stats.Errors > g.limits.MaxErrors {
		return reject(CheckErrors, "error count %d exceeds ceiling %d", stats.Errors, g.limits.MaxErrors)
	}

	if stats.Trades >= g.limits.MinTradesForWinRate {
		if rate := stats.WinRate(); rate < g.limits.MinWinRate {
			return reject(CheckWinRate, "win rate %.2f%% below minimum %.2f%% after %d trades",
				rate*100, g.limits.MinWinRate*100, stats.Trades)
		}
	}

	return Decision{Allowed: true}
}

// Allow reports whether Evaluate approves the signal.
func (g *Gate) Allow(stats models.Stats, sig models.TradingSignal, cfg models.StrategyConfig) bool {
	return g.Evaluate(stats, sig, cfg).Allowed
}

func reject(check, format string, args ...interface{}) Decision {
	return Decision{Check: check, Reason: fmt.Sprintf(format, args...)}
}
