package exchange

import (
	"bot-controller-go/internal/models"
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PaperExchange 实现了 Client 接口，行情来自真实交易所，成交在本地模拟。
// 市价单按最新价加滑点立即成交，限价单挂起直到行情穿过限价。
type PaperExchange struct {
	market       MarketData
	quoteAsset   string
	feeRate      decimal.Decimal
	slippageRate decimal.Decimal
	logger       *zap.Logger

	mu          sync.Mutex
	balances    map[string]decimal.Decimal // asset -> free balance
	orders      map[int64]*models.Order    // resting limit orders
	nextOrderID int64
	totalFees   decimal.Decimal
	tradeLog    []models.Order
}

// NewPaperExchange creates a simulated spot account funded with cfg.InitialBalance of cfg.QuoteAsset.
func NewPaperExchange(market MarketData, cfg models.PaperConfig, logger *zap.Logger) *PaperExchange {
	quote := cfg.QuoteAsset
	if quote == "" {
		quote = models.DefaultCurrency
	}
	return &PaperExchange{
		market:       market,
		quoteAsset:   quote,
		feeRate:      decimal.NewFromFloat(cfg.TakerFeeRate),
		slippageRate: decimal.NewFromFloat(cfg.SlippageRate),
		logger:       logger,
		balances:     map[string]decimal.Decimal{quote: decimal.NewFromFloat(cfg.InitialBalance)},
		orders:       make(map[int64]*models.Order),
		nextOrderID:  1,
	}
}

// SpotOnly is always true: the simulated account never borrows.
func (e *PaperExchange) SpotOnly() bool { return true }

func (e *PaperExchange) Connect(ctx context.Context) error {
	return e.market.Connect(ctx)
}

// GetTicker also matches resting limit orders against the new price.
func (e *PaperExchange) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	t, err := e.market.GetTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.checkLimitOrdersAtPrice(symbol, t.Price)
	return t, nil
}

func (e *PaperExchange) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	return e.market.GetCandles(ctx, symbol, interval, limit)
}

func (e *PaperExchange) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	return e.market.GetOrderBook(ctx, symbol, depth)
}

func (e *PaperExchange) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrOrderRejected)
	}
	if req.Side != models.Buy && req.Side != models.Sell {
		return nil, fmt.Errorf("%w: unknown side %q", ErrOrderRejected, req.Side)
	}

	var price float64
	switch req.Type {
	case models.Market:
		t, err := e.market.GetTicker(ctx, req.Symbol)
		if err != nil {
			return nil, err
		}
		price = t.Price
	case models.Limit:
		if req.Price <= 0 {
			return nil, fmt.Errorf("%w: limit order needs a price", ErrOrderRejected)
		}
		price = req.Price
	default:
		return nil, fmt.Errorf("%w: unsupported order type %q", ErrOrderRejected, req.Type)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order := &models.Order{
		ID:            strconv.FormatInt(e.nextOrderID, 10),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		AveragePrice:  price,
		Status:        models.OrderPending,
		Timestamp:     time.Now(),
	}

	if err := e.checkFunds(order, price); err != nil {
		return nil, err
	}
	e.nextOrderID++

	if req.Type == models.Limit {
		e.orders[e.nextOrderID-1] = order
		e.logger.Info("模拟限价单已挂出", zap.String("symbol", req.Symbol), zap.String("side", string(req.Side)), zap.Float64("price", price))
		cp := *order
		return &cp, nil
	}

	e.handleFilledOrder(order, price)
	cp := *order
	return &cp, nil
}

func (e *PaperExchange) CancelOrder(_ context.Context, symbol, orderID string) (*models.Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid order id %q", ErrOrderRejected, orderID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	order, ok := e.orders[id]
	if !ok || order.Symbol != symbol {
		return nil, fmt.Errorf("%w: unknown order %s", ErrOrderRejected, orderID)
	}
	delete(e.orders, id)
	order.Status = models.OrderCancelled
	cp := *order
	return &cp, nil
}

func (e *PaperExchange) GetAccountInfo(_ context.Context) (*models.AccountInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	assets := make([]string, 0, len(e.balances))
	for a := range e.balances {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	locked := e.lockedBalances()
	info := &models.AccountInfo{Balances: make([]models.Balance, 0, len(assets))}
	for _, a := range assets {
		free, _ := e.balances[a].Sub(locked[a]).Float64()
		lk, _ := locked[a].Float64()
		info.Balances = append(info.Balances, models.Balance{Asset: a, Free: free, Locked: lk})
	}
	return info, nil
}

// TotalFees returns the fees paid so far in the quote asset.
func (e *PaperExchange) TotalFees() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, _ := e.totalFees.Float64()
	return f
}

// Fills returns a copy of every filled order.
func (e *PaperExchange) Fills() []models.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.Order(nil), e.tradeLog...)
}

// checkFunds rejects an order the account cannot cover, counting what
// resting orders already reserve. Must be called with the lock held.
func (e *PaperExchange) checkFunds(order *models.Order, price float64) error {
	base := baseOf(order.Symbol, e.quoteAsset)
	qty := decimal.NewFromFloat(order.Quantity)
	locked := e.lockedBalances()

	if order.Side == models.Buy {
		cost := qty.Mul(decimal.NewFromFloat(price)).Mul(decimal.NewFromInt(1).Add(e.slippageRate))
		cost = cost.Add(cost.Mul(e.feeRate))
		if e.balances[e.quoteAsset].Sub(locked[e.quoteAsset]).LessThan(cost) {
			return fmt.Errorf("%w: need %s %s", ErrInsufficientBalance, cost.StringFixed(8), e.quoteAsset)
		}
		return nil
	}
	if e.balances[base].Sub(locked[base]).LessThan(qty) {
		return fmt.Errorf("%w: need %s %s", ErrInsufficientBalance, qty.String(), base)
	}
	return nil
}

// lockedBalances sums what resting orders reserve per asset.
func (e *PaperExchange) lockedBalances() map[string]decimal.Decimal {
	locked := make(map[string]decimal.Decimal)
	for _, o := range e.orders {
		qty := decimal.NewFromFloat(o.Quantity)
		if o.Side == models.Buy {
			locked[e.quoteAsset] = locked[e.quoteAsset].Add(qty.Mul(decimal.NewFromFloat(o.AveragePrice)))
		} else {
			base := baseOf(o.Symbol, e.quoteAsset)
			locked[base] = locked[base].Add(qty)
		}
	}
	return locked
}

// checkLimitOrdersAtPrice fills every resting order the price crosses, oldest
// first. Must be called with the lock held.
func (e *PaperExchange) checkLimitOrdersAtPrice(symbol string, price float64) {
	ids := make([]int64, 0, len(e.orders))
	for id := range e.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		o := e.orders[id]
		if o.Symbol != symbol {
			continue
		}
		if (o.Side == models.Buy && price <= o.AveragePrice) || (o.Side == models.Sell && price >= o.AveragePrice) {
			delete(e.orders, id)
			e.handleFilledOrder(o, o.AveragePrice)
		}
	}
}

// handleFilledOrder applies slippage and fees and moves balances. Must be
// called with the lock held.
func (e *PaperExchange) handleFilledOrder(order *models.Order, price float64) {
	base := baseOf(order.Symbol, e.quoteAsset)
	qty := decimal.NewFromFloat(order.Quantity)
	exec := decimal.NewFromFloat(price)
	if order.Type == models.Market {
		if order.Side == models.Buy {
			exec = exec.Mul(decimal.NewFromInt(1).Add(e.slippageRate))
		} else {
			exec = exec.Mul(decimal.NewFromInt(1).Sub(e.slippageRate))
		}
	}

	notional := exec.Mul(qty)
	fee := notional.Mul(e.feeRate)
	e.totalFees = e.totalFees.Add(fee)

	if order.Side == models.Buy {
		e.balances[e.quoteAsset] = e.balances[e.quoteAsset].Sub(notional).Sub(fee)
		e.balances[base] = e.balances[base].Add(qty)
	} else {
		e.balances[base] = e.balances[base].Sub(qty)
		e.balances[e.quoteAsset] = e.balances[e.quoteAsset].Add(notional).Sub(fee)
	}
	if e.balances[base].IsZero() {
		delete(e.balances, base)
	}

	order.Status = models.OrderFilled
	order.Filled = order.Quantity
	order.AveragePrice, _ = exec.Float64()
	order.Timestamp = time.Now()
	e.tradeLog = append(e.tradeLog, *order)

	e.logger.Info("模拟订单成交",
		zap.String("symbol", order.Symbol),
		zap.String("side", string(order.Side)),
		zap.Float64("quantity", order.Quantity),
		zap.Float64("price", order.AveragePrice),
		zap.String("fee", fee.StringFixed(8)),
	)
}

func baseOf(symbol, quote string) string {
	s := VenueSymbol(symbol)
	if len(s) > len(quote) && s[len(s)-len(quote):] == quote {
		return s[:len(s)-len(quote)]
	}
	return s
}
