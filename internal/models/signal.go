package models

// Action is what a signal proposes to do.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// TradingSignal is produced and consumed within a single cycle; it is never persisted.
type TradingSignal struct {
	Action     Action  `json:"action"`
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price,omitempty"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Side maps BUY/SELL onto an order side. HOLD has no side.
func (s TradingSignal) Side() (Side, bool) {
	switch s.Action {
	case ActionBuy:
		return Buy, true
	case ActionSell:
		return Sell, true
	}
	return "", false
}

// Notional is quantity times price.
func (s TradingSignal) Notional() float64 {
	return s.Quantity * s.Price
}
