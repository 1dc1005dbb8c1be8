package controller

import (
	"bot-controller-go/internal/models"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseStrategyConfig(t *testing.T) {
	defaults := models.DefaultStrategyConfig()

	tests := []struct {
		name    string
		label   string
		blob    string
		check   func(t *testing.T, cfg models.StrategyConfig)
		ignored []string
		wantErr bool
	}{
		{
			name:  "empty blob gives defaults",
			check: func(t *testing.T, cfg models.StrategyConfig) { assert.Equal(t, defaults, cfg) },
		},
		{
			name:  "full config",
			label: "AI Momentum Pro",
			blob: `{"targetPair":"eth/usdt","tradingFrequency":15,"initialAllocation":{"amount":2500,"currency":"usdc"},
				"riskManagement":{"maxPositionSize":0.2,"stopLoss":3,"takeProfit":"6","maxDailyLoss":0.04,"maxDrawdown":"15%","riskPerTrade":0.02}}`,
			check: func(t *testing.T, cfg models.StrategyConfig) {
				assert.Equal(t, "AI Momentum Pro", cfg.Strategy)
				assert.Equal(t, "ETH/USDT", cfg.Symbol)
				assert.Equal(t, 15, cfg.TradingFrequency)
				assert.Equal(t, models.Allocation{Amount: 2500, Currency: "USDC"}, cfg.Allocation)
				assert.InDelta(t, 0.2, cfg.Risk.MaxPositionSize, 1e-12)
				assert.InDelta(t, 0.03, cfg.Risk.StopLoss, 1e-12)
				assert.InDelta(t, 0.06, cfg.Risk.TakeProfit, 1e-12)
				assert.InDelta(t, 0.15, cfg.Risk.MaxDrawdown, 1e-12)
			},
		},
		{
			name: "strategy from blob when label is empty",
			blob: `{"strategy":"scalping"}`,
			check: func(t *testing.T, cfg models.StrategyConfig) {
				assert.Equal(t, "scalping", cfg.Strategy)
			},
		},
		{
			name:    "first of several pairs",
			blob:    `{"targetPairs":["SOL/USDT","BTC/USDT"]}`,
			ignored: []string{"BTC/USDT"},
			check: func(t *testing.T, cfg models.StrategyConfig) {
				assert.Equal(t, "SOL/USDT", cfg.Symbol)
			},
		},
		{
			name: "allocation as number, frequency as string, nulls skipped",
			blob: `{"initialAllocation":500,"tradingFrequency":"30","targetPair":null,"riskManagement":{"stopLoss":null}}`,
			check: func(t *testing.T, cfg models.StrategyConfig) {
				assert.Equal(t, models.Allocation{Amount: 500, Currency: "USDT"}, cfg.Allocation)
				assert.Equal(t, 30, cfg.TradingFrequency)
				assert.Equal(t, defaults.Symbol, cfg.Symbol)
				assert.Equal(t, defaults.Risk.StopLoss, cfg.Risk.StopLoss)
			},
		},
		{
			name: "percent suffix always means percent",
			blob: `{"riskManagement":{"maxDailyLoss":"1%","stopLoss":"0.5%","takeProfit":" 15 % ","maxPositionSize":"0.3"}}`,
			check: func(t *testing.T, cfg models.StrategyConfig) {
				assert.InDelta(t, 0.01, cfg.Risk.MaxDailyLoss, 1e-12)
				assert.InDelta(t, 0.005, cfg.Risk.StopLoss, 1e-12)
				assert.InDelta(t, 0.15, cfg.Risk.TakeProfit, 1e-12)
				assert.InDelta(t, 0.3, cfg.Risk.MaxPositionSize, 1e-12, "bare fraction is kept")
			},
		},
		{name: "not an object", blob: `[1,2]`, wantErr: true},
		{name: "zero frequency", blob: `{"tradingFrequency":0}`, wantErr: true},
		{name: "frequency garbage", blob: `{"tradingFrequency":"often"}`, wantErr: true},
		{name: "negative allocation", blob: `{"initialAllocation":{"amount":-5}}`, wantErr: true},
		{name: "allocation without amount", blob: `{"initialAllocation":{"currency":"USDT"}}`, wantErr: true},
		{name: "negative stop loss", blob: `{"riskManagement":{"stopLoss":-1}}`, wantErr: true},
		{name: "pair of wrong type", blob: `{"targetPair":42}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := models.BotDefinition{ID: "b", UserID: "u", Name: "n", Strategy: tt.label}
			if tt.blob != "" {
				def.Config = json.RawMessage(tt.blob)
			}
			cfg, ignored, err := ParseStrategyConfig(def)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ignored, ignored)
			tt.check(t, cfg)
		})
	}
}

func TestExtractStrategyConfigFallsBackToDefaults(t *testing.T) {
	def := models.BotDefinition{ID: "b", Strategy: "dca", Config: json.RawMessage(`{"tradingFrequency":-3,"targetPair":"ETH/USDT"}`)}
	cfg := ExtractStrategyConfig(def, zap.NewNop())

	want := models.DefaultStrategyConfig()
	want.Strategy = "dca"
	assert.Equal(t, want, cfg, "a malformed blob is replaced as a whole")

	cfg = ExtractStrategyConfig(models.BotDefinition{ID: "b", Config: json.RawMessage(`{{`)}, zap.NewNop())
	assert.Equal(t, models.DefaultStrategyConfig(), cfg)
}
