package config

import (
	"bot-controller-go/internal/models"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// LoadConfig 从指定路径加载JSON配置文件，填充默认值并校验
func LoadConfig(path string) (*models.Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	decoder.DisallowUnknownFields()
	cfg := &models.Config{}
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every zero-valued setting with its default.
func ApplyDefaults(cfg *models.Config) {
	if cfg.Mode == "" {
		cfg.Mode = "paper"
	}
	cfg.Mode = strings.ToLower(cfg.Mode)
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "badger"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/botstate"
	}
	if cfg.StatusIntervalSec == 0 {
		cfg.StatusIntervalSec = 30
	}

	c := &cfg.Controller
	if c.FirstCycleDelayMs == 0 {
		c.FirstCycleDelayMs = 1000
	}
	if c.SaveIntervalSec == 0 {
		c.SaveIntervalSec = 600
	}
	if c.CandleInterval == "" {
		c.CandleInterval = "1h"
	}
	if c.CandleLimit == 0 {
		c.CandleLimit = 100
	}
	if c.OrderBookDepth == 0 {
		c.OrderBookDepth = 20
	}
	if c.FeeRate == 0 {
		c.FeeRate = 0.001
	}
	if c.NoisePct == 0 {
		c.NoisePct = 0.15
	}

	r := &cfg.Risk
	if r.MaxErrors == 0 {
		r.MaxErrors = 10
	}
	if r.MinWinRate == 0 {
		r.MinWinRate = 0.2
	}
	if r.MinTradesForWinRate == 0 {
		r.MinTradesForWinRate = 10
	}

	defaults := models.DefaultSizeBands()
	b := &cfg.SizeBands
	if b.BTC == (models.SizeBand{}) {
		b.BTC = defaults.BTC
	}
	if b.ETH == (models.SizeBand{}) {
		b.ETH = defaults.ETH
	}
	if b.Stablecoin == (models.SizeBand{}) {
		b.Stablecoin = defaults.Stablecoin
	}
	if b.Other == (models.SizeBand{}) {
		b.Other = defaults.Other
	}
	if len(b.Stablecoins) == 0 {
		b.Stablecoins = defaults.Stablecoins
	}

	p := &cfg.Paper
	if p.InitialBalance == 0 {
		p.InitialBalance = 10000
	}
	if p.QuoteAsset == "" {
		p.QuoteAsset = models.DefaultCurrency
	}
	if p.TakerFeeRate == 0 {
		p.TakerFeeRate = 0.001
	}

	br := &cfg.Breaker
	if br.MaxRequests == 0 {
		br.MaxRequests = 3
	}
	if br.IntervalSec == 0 {
		br.IntervalSec = 5
	}
	if br.TimeoutSec == 0 {
		br.TimeoutSec = 30
	}
	if br.MinRequests == 0 {
		br.MinRequests = 3
	}
	if br.FailureRatio == 0 {
		br.FailureRatio = 0.6
	}

	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.LogConfig.Output == "" {
		cfg.LogConfig.Output = "console"
	}
}

// Validate checks the struct tags of cfg and the rules that tags cannot express.
func Validate(cfg *models.Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Mode == "live" && len(cfg.Users) == 0 {
		return fmt.Errorf("invalid config: live mode requires at least one entry in users")
	}
	if out := strings.ToLower(cfg.LogConfig.Output); (out == "file" || out == "both") && cfg.LogConfig.File == "" {
		return fmt.Errorf("invalid config: log.file is required for %q output", cfg.LogConfig.Output)
	}
	return nil
}

// LoadBotDefinitions reads a JSON array of bot definitions. Ids must be unique.
func LoadBotDefinitions(path string) ([]models.BotDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var defs []models.BotDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	validate := validator.New()
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		if err := validate.Struct(def); err != nil {
			return nil, fmt.Errorf("bot #%d in %s: %w", i, path, err)
		}
		if seen[def.ID] {
			return nil, fmt.Errorf("bot id %q appears twice in %s", def.ID, path)
		}
		seen[def.ID] = true
	}
	return defs, nil
}
