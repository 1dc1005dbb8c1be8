package models

import "time"

// Side 定义了交易方向的类型
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	Market OrderType = "MARKET"
	Limit  OrderType = "LIMIT"
)

// OrderStatus is the normalised lifecycle state of an order across venues.
type OrderStatus string

const (
	OrderPending         OrderStatus = "PENDING"
	OrderPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderFilled          OrderStatus = "FILLED"
	OrderCancelled       OrderStatus = "CANCELLED"
	OrderRejected        OrderStatus = "REJECTED"
	OrderExpired         OrderStatus = "EXPIRED"
)

// Ticker is a 24h market summary.
type Ticker struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	ChangePercent24h float64   `json:"change_percent_24h"`
	Volume24h        float64   `json:"volume_24h"`
	High24h          float64   `json:"high_24h"`
	Low24h           float64   `json:"low_24h"`
	Timestamp        time.Time `json:"timestamp"`
}

// Candle is one OHLCV bar.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceLevel is one [price, quantity] row of an order book.
type PriceLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook holds bids (best first) and asks (best first).
type OrderBook struct {
	Symbol string       `json:"symbol"`
	Bids   []PriceLevel `json:"bids"`
	Asks   []PriceLevel `json:"asks"`
}

// OrderRequest is what the controller submits to an exchange.
type OrderRequest struct {
	Symbol        string    `json:"symbol"`
	Side          Side      `json:"side"`
	Type          OrderType `json:"type"`
	Quantity      float64   `json:"quantity"`
	Price         float64   `json:"price,omitempty"` // LIMIT only
	ClientOrderID string    `json:"client_order_id,omitempty"`
}

// Order 定义了订单信息
type Order struct {
	ID            string      `json:"id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Type          OrderType   `json:"type"`
	Quantity      float64     `json:"quantity"`
	Filled        float64     `json:"filled"`
	AveragePrice  float64     `json:"average_price"`
	Status        OrderStatus `json:"status"`
	Timestamp     time.Time   `json:"timestamp"`
}

// Balance 定义了账户中特定资产的余额信息
type Balance struct {
	Asset  string  `json:"asset"`
	Free   float64 `json:"free"`
	Locked float64 `json:"locked"`
}

// AccountInfo 定义了账户信息
type AccountInfo struct {
	Balances []Balance `json:"balances"`
}

// MarketSnapshot is everything a signal is computed from within one cycle.
type MarketSnapshot struct {
	Ticker    Ticker
	Candles   []Candle
	OrderBook OrderBook
	Position  *Position // open position on the symbol, nil when flat
}
