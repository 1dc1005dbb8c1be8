package controller

import (
	"bot-controller-go/internal/models"
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ExtractStrategyConfig never fails. A blob that cannot be parsed is logged
// and replaced by the full defaults; only the definition's strategy label is kept.
func ExtractStrategyConfig(def models.BotDefinition, logger *zap.Logger) models.StrategyConfig {
	cfg, ignored, err := ParseStrategyConfig(def)
	if err != nil {
		logger.Warn("invalid bot config, falling back to defaults",
			zap.String("bot_id", def.ID), zap.Error(err))
		cfg = models.DefaultStrategyConfig()
		if label := strings.TrimSpace(def.Strategy); label != "" {
			cfg.Strategy = label
		}
		return cfg
	}
	if len(ignored) > 0 {
		logger.Warn("bot trades a single pair, extra pairs ignored",
			zap.String("bot_id", def.ID), zap.String("symbol", cfg.Symbol), zap.Strings("ignored", ignored))
	}
	return cfg
}

// ParseStrategyConfig reads the loosely typed config blob of a definition into a
// fully defaulted StrategyConfig. Missing fields take defaults; present fields
// of the wrong type or out of range are an error. ignored lists target pairs
// beyond the first.
func ParseStrategyConfig(def models.BotDefinition) (cfg models.StrategyConfig, ignored []string, err error) {
	cfg = models.DefaultStrategyConfig()

	var blob map[string]json.RawMessage
	if raw := bytes.TrimSpace(def.Config); len(raw) > 0 && !isNull(raw) {
		if err := json.Unmarshal(raw, &blob); err != nil {
			return cfg, nil, fmt.Errorf("config is not an object: %w", err)
		}
	}

	switch label := strings.TrimSpace(def.Strategy); {
	case label != "":
		cfg.Strategy = label
	case present(blob, "strategy"):
		var s string
		if err := json.Unmarshal(blob["strategy"], &s); err != nil {
			return cfg, nil, fmt.Errorf("strategy: %w", err)
		}
		if s = strings.TrimSpace(s); s != "" {
			cfg.Strategy = s
		}
	}

	symbol, ignored, err := parsePair(blob)
	if err != nil {
		return cfg, nil, err
	}
	if symbol != "" {
		cfg.Symbol = symbol
	}

	if present(blob, "tradingFrequency") {
		f, err := parseNumber(blob["tradingFrequency"])
		if err != nil {
			return cfg, nil, fmt.Errorf("tradingFrequency: %w", err)
		}
		minutes := int(math.Round(f))
		if minutes < 1 {
			return cfg, nil, fmt.Errorf("tradingFrequency must be at least 1 minute, got %v", f)
		}
		cfg.TradingFrequency = minutes
	}

	if present(blob, "initialAllocation") {
		alloc, err := parseAllocation(blob["initialAllocation"])
		if err != nil {
			return cfg, nil, fmt.Errorf("initialAllocation: %w", err)
		}
		cfg.Allocation = alloc
	}

	if present(blob, "riskManagement") {
		if err := parseRisk(blob["riskManagement"], &cfg.Risk); err != nil {
			return cfg, nil, fmt.Errorf("riskManagement: %w", err)
		}
	}

	return cfg, ignored, nil
}

func parsePair(blob map[string]json.RawMessage) (string, []string, error) {
	if present(blob, "targetPair") {
		var s string
		if err := json.Unmarshal(blob["targetPair"], &s); err != nil {
			return "", nil, fmt.Errorf("targetPair: %w", err)
		}
		return normalizeSymbol(s), nil, nil
	}
	if present(blob, "targetPairs") {
		var pairs []string
		if err := json.Unmarshal(blob["targetPairs"], &pairs); err != nil {
			return "", nil, fmt.Errorf("targetPairs: %w", err)
		}
		var clean []string
		for _, p := range pairs {
			if p = normalizeSymbol(p); p != "" {
				clean = append(clean, p)
			}
		}
		if len(clean) == 0 {
			return "", nil, nil
		}
		return clean[0], clean[1:], nil
	}
	return "", nil, nil
}

func parseAllocation(raw json.RawMessage) (models.Allocation, error) {
	alloc := models.Allocation{Currency: models.DefaultCurrency}

	if raw = bytes.TrimSpace(raw); len(raw) > 0 && raw[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return alloc, err
		}
		if !present(obj, "amount") {
			return alloc, fmt.Errorf("amount is missing")
		}
		amount, err := parseNumber(obj["amount"])
		if err != nil {
			return alloc, fmt.Errorf("amount: %w", err)
		}
		alloc.Amount = amount
		if present(obj, "currency") {
			var cur string
			if err := json.Unmarshal(obj["currency"], &cur); err != nil {
				return alloc, fmt.Errorf("currency: %w", err)
			}
			if cur = strings.ToUpper(strings.TrimSpace(cur)); cur != "" {
				alloc.Currency = cur
			}
		}
	} else {
		amount, err := parseNumber(raw)
		if err != nil {
			return alloc, err
		}
		alloc.Amount = amount
	}

	if alloc.Amount <= 0 {
		return alloc, fmt.Errorf("amount must be positive, got %v", alloc.Amount)
	}
	return alloc, nil
}

func parseRisk(raw json.RawMessage, limits *models.RiskLimits) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	fields := []struct {
		key string
		dst *float64
	}{
		{"maxPositionSize", &limits.MaxPositionSize},
		{"stopLoss", &limits.StopLoss},
		{"takeProfit", &limits.TakeProfit},
		{"maxDailyLoss", &limits.MaxDailyLoss},
		{"maxDrawdown", &limits.MaxDrawdown},
		{"riskPerTrade", &limits.RiskPerTrade},
	}
	for _, f := range fields {
		if !present(obj, f.key) {
			continue
		}
		v, pct, err := parseValue(obj[f.key])
		if err != nil {
			return fmt.Errorf("%s: %w", f.key, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must not be negative, got %v", f.key, v)
		}
		// "1%" 总是百分比; 裸数字大于1时按百分比理解, e.g. 2 -> 0.02
		if pct || v > 1 {
			v /= 100
		}
		*f.dst = v
	}
	return nil
}

// parseNumber accepts a JSON number or a numeric string.
func parseNumber(raw json.RawMessage) (float64, error) {
	v, _, err := parseValue(raw)
	return v, err
}

// parseValue is parseNumber that also reports whether a string value carried
// a trailing "%".
func parseValue(raw json.RawMessage) (float64, bool, error) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false, fmt.Errorf("not a finite number")
		}
		return f, false, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false, fmt.Errorf("not a number: %s", raw)
	}
	s = strings.TrimSpace(s)
	pct := strings.HasSuffix(s, "%")
	f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false, fmt.Errorf("not a number: %q", s)
	}
	return f, pct, nil
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func present(obj map[string]json.RawMessage, key string) bool {
	raw, ok := obj[key]
	return ok && !isNull(raw)
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
