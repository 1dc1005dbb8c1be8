package models

import "time"

// BotStatus is the externally visible state of a bot instance.
type BotStatus string

const (
	StatusStopped  BotStatus = "stopped"
	StatusStarting BotStatus = "starting"
	StatusRunning  BotStatus = "running"
	StatusStopping BotStatus = "stopping"
)

// StatusEvent is emitted when a bot starts or stops.
type StatusEvent struct {
	ID        string    `json:"id"`
	BotID     string    `json:"botId"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Status    BotStatus `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// TradeOutcome classifies a filled trade by the sign of its realized P&L.
type TradeOutcome string

const (
	TradeWin  TradeOutcome = "win"
	TradeLoss TradeOutcome = "loss"
)

// TradeEvent is emitted for every filled trade.
type TradeEvent struct {
	ID        string       `json:"id"`
	BotID     string       `json:"botId"`
	UserID    string       `json:"userId"`
	Symbol    string       `json:"symbol"`
	Side      Side         `json:"side"`
	Quantity  float64      `json:"quantity"`
	Price     float64      `json:"price"`
	Profit    float64      `json:"profit"`
	Type      TradeOutcome `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
}
