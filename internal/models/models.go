package models

// Config holds every process-level setting of the controller.
type Config struct {
	Mode      string        `json:"mode" validate:"oneof=paper live"` // "paper" or "live"
	IsTestnet bool          `json:"is_testnet"`                       // route live orders to the Binance testnet
	HTTPAddr  string        `json:"http_addr"`
	CORS      []string      `json:"cors_origins,omitempty"` // empty allows any origin
	NatsURL   string        `json:"nats_url,omitempty"` // empty disables the NATS publisher
	BotsFile  string        `json:"bots_file,omitempty"`
	Storage   StorageConfig `json:"storage"`

	Controller ControllerConfig     `json:"controller"`
	Risk       RiskConfig           `json:"risk"`
	SizeBands  SizeBands            `json:"size_bands"`
	Paper      PaperConfig          `json:"paper"`
	Breaker    BreakerConfig        `json:"breaker"`
	Users      map[string]UserCreds `json:"users" validate:"dive"`
	LogConfig  LogConfig            `json:"log"`

	StatusIntervalSec int `json:"status_interval_sec" validate:"gte=0"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `json:"driver" validate:"oneof=badger sqlite"`
	Path   string `json:"path" validate:"required"`
}

// ControllerConfig tunes the scheduling loop of every bot.
type ControllerConfig struct {
	FirstCycleDelayMs int     `json:"first_cycle_delay_ms" validate:"gte=0"`
	SaveIntervalSec   int     `json:"save_interval_sec" validate:"gte=0"`
	CandleInterval    string  `json:"candle_interval"`
	CandleLimit       int     `json:"candle_limit" validate:"gte=0"`
	OrderBookDepth    int     `json:"order_book_depth" validate:"gte=0"`
	FeeRate           float64 `json:"fee_rate" validate:"gte=0"`
	NoisePct          float64 `json:"noise_pct" validate:"gte=0,lt=1"`
}

// RiskConfig holds the circuit breaker thresholds of the risk gate.
type RiskConfig struct {
	MaxErrors           int     `json:"max_errors" validate:"gte=0"`
	MinWinRate          float64 `json:"min_win_rate" validate:"gte=0,lte=1"`
	MinTradesForWinRate int     `json:"min_trades_for_win_rate" validate:"gte=0"`
}

// PaperConfig configures the simulated exchange used in paper mode.
type PaperConfig struct {
	InitialBalance float64 `json:"initial_balance" validate:"gte=0"`
	QuoteAsset     string  `json:"quote_asset"`
	TakerFeeRate   float64 `json:"taker_fee_rate" validate:"gte=0"`
	SlippageRate   float64 `json:"slippage_rate" validate:"gte=0"`
}

// BreakerConfig configures the circuit breaker wrapped around exchange REST calls.
type BreakerConfig struct {
	MaxRequests  uint32  `json:"max_requests"`
	IntervalSec  int     `json:"interval_sec" validate:"gte=0"`
	TimeoutSec   int     `json:"timeout_sec" validate:"gte=0"`
	MinRequests  uint32  `json:"min_requests"`
	FailureRatio float64 `json:"failure_ratio" validate:"gte=0,lte=1"`
}

// UserCreds names the environment variables holding a user's exchange keys.
// Keys themselves never live in the JSON file.
type UserCreds struct {
	APIKeyEnv    string `json:"api_key_env" validate:"required"`
	SecretKeyEnv string `json:"secret_key_env" validate:"required"`
}

// LogConfig 定义了日志相关的配置
type LogConfig struct {
	Level      string `json:"level"`       // 日志级别, e.g., "debug", "info", "warn", "error"
	Output     string `json:"output"`      // 输出模式: "console", "file", "both"
	File       string `json:"file"`        // 日志文件路径
	MaxSize    int    `json:"max_size"`    // 单个日志文件的最大大小 (MB)
	MaxBackups int    `json:"max_backups"` // 保留的旧日志文件最大数量
	MaxAge     int    `json:"max_age"`     // 旧日志文件的最大保留天数
	Compress   bool   `json:"compress"`    // 是否压缩旧日志文件
}

// SizeBand bounds the order quantity for one asset class.
type SizeBand struct {
	Min float64 `json:"min" validate:"gte=0"`
	Max float64 `json:"max" validate:"gtefield=Min"`
}

// SizeBands maps asset classes to quantity bands. Stablecoins lists the base
// assets treated as stablecoins.
type SizeBands struct {
	BTC         SizeBand `json:"btc"`
	ETH         SizeBand `json:"eth"`
	Stablecoin  SizeBand `json:"stablecoin"`
	Other       SizeBand `json:"other"`
	Stablecoins []string `json:"stablecoins,omitempty"`
}

// DefaultSizeBands returns the bands used when the config does not set any.
func DefaultSizeBands() SizeBands {
	return SizeBands{
		BTC:         SizeBand{Min: 0.00001, Max: 0.001},
		ETH:         SizeBand{Min: 0.0001, Max: 0.02},
		Stablecoin:  SizeBand{Min: 1, Max: 50},
		Other:       SizeBand{Min: 0.01, Max: 100},
		Stablecoins: []string{"USDT", "USDC", "BUSD", "DAI", "TUSD", "FDUSD"},
	}
}
