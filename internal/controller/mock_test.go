package controller

import (
	"bot-controller-go/internal/exchange"
	"bot-controller-go/internal/models"
	"context"
	"fmt"
	"sync"
	"time"
)

// mockClient is an in-memory exchange with a flat market.
type mockClient struct {
	mu         sync.Mutex
	price      float64
	candles    int
	connectErr error
	tickerErrs int // 前 N 次 GetTicker 返回错误
	panicOn    bool
	status     models.OrderStatus
	step       float64 // 每根K线收盘价的增量
	spot       bool

	tickerCalls int
	orders      []models.OrderRequest
}

func newMockClient(price float64) *mockClient {
	return &mockClient{price: price, candles: 60, status: models.OrderFilled}
}

func (m *mockClient) Connect(context.Context) error { return m.connectErr }

func (m *mockClient) GetTicker(_ context.Context, symbol string) (*models.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickerCalls++
	if m.panicOn {
		panic("ticker feed exploded")
	}
	if m.tickerErrs > 0 {
		m.tickerErrs--
		return nil, fmt.Errorf("%w: timeout", exchange.ErrConnection)
	}
	return &models.Ticker{Symbol: symbol, Price: m.price, Timestamp: time.Now()}, nil
}

func (m *mockClient) GetCandles(_ context.Context, _ string, _ string, limit int) ([]models.Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.candles
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]models.Candle, n)
	for i := range out {
		p := m.price + m.step*float64(i)
		out[i] = models.Candle{Open: p, High: p, Low: p, Close: p, Volume: 1}
	}
	return out, nil
}

func (m *mockClient) GetOrderBook(_ context.Context, symbol string, _ int) (*models.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.OrderBook{
		Symbol: symbol,
		Bids:   []models.PriceLevel{{Price: m.price - 1, Quantity: 1}},
		Asks:   []models.PriceLevel{{Price: m.price + 1, Quantity: 1}},
	}, nil
}

func (m *mockClient) PlaceOrder(_ context.Context, req models.OrderRequest) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, req)
	order := &models.Order{
		ID:            fmt.Sprintf("%d", len(m.orders)),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Status:        m.status,
	}
	if m.status == models.OrderFilled {
		order.Filled = req.Quantity
		order.AveragePrice = m.price
	}
	return order, nil
}

func (m *mockClient) CancelOrder(_ context.Context, symbol, orderID string) (*models.Order, error) {
	return &models.Order{ID: orderID, Symbol: symbol, Status: models.OrderCancelled}, nil
}

func (m *mockClient) GetAccountInfo(context.Context) (*models.AccountInfo, error) {
	return &models.AccountInfo{}, nil
}

func (m *mockClient) SpotOnly() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spot
}

func (m *mockClient) placed() []models.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OrderRequest(nil), m.orders...)
}

func (m *mockClient) set(fn func(m *mockClient)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

type mockResolver struct {
	mu      sync.Mutex
	clients map[string]exchange.Client
}

func (r *mockResolver) ClientFor(_ context.Context, userID string) (exchange.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[userID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown user %s", exchange.ErrConnection, userID)
	}
	return c, nil
}

// recordingObserver keeps every event and signals each one on a channel.
type recordingObserver struct {
	mu       sync.Mutex
	statuses []models.StatusEvent
	trades   []models.TradeEvent
	tradeCh  chan models.TradeEvent
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{tradeCh: make(chan models.TradeEvent, 16)}
}

func (o *recordingObserver) OnStatusChanged(e models.StatusEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, e)
}

func (o *recordingObserver) OnTrade(e models.TradeEvent) {
	o.mu.Lock()
	o.trades = append(o.trades, e)
	o.mu.Unlock()
	select {
	case o.tradeCh <- e:
	default:
	}
}

func (o *recordingObserver) statusSeq(botID string) []models.BotStatus {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []models.BotStatus
	for _, e := range o.statuses {
		if e.BotID == botID {
			out = append(out, e.Status)
		}
	}
	return out
}

type panickyObserver struct{}

func (panickyObserver) OnStatusChanged(models.StatusEvent) { panic("ui is gone") }
func (panickyObserver) OnTrade(models.TradeEvent)          { panic("ui is gone") }

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
