package exchange

import (
	"bot-controller-go/internal/models"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// BinanceClient 通过 go-binance 的现货 REST 接口实现 Client。
// 每个请求都经过熔断器，连续失败时快速失败而不是继续打到交易所。
type BinanceClient struct {
	client  *binance.Client
	cb      *gobreaker.CircuitBreaker
	logger  *zap.Logger
	hasKeys bool
}

// NewBinanceClient creates a spot client. Empty keys give a client that can
// only read public market data.
func NewBinanceClient(apiKey, secretKey string, breaker models.BreakerConfig, logger *zap.Logger) *BinanceClient {
	c := &BinanceClient{
		client:  binance.NewClient(apiKey, secretKey),
		logger:  logger,
		hasKeys: apiKey != "" && secretKey != "",
	}
	c.cb = newBreaker("binance-spot", breaker, logger)
	return c
}

func newBreaker(name string, cfg models.BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.IntervalSec) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSec) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.MinRequests && failureRatio >= cfg.FailureRatio
		},
		// 订单被拒是业务结果，不代表交易所不可用
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var apiErr *common.APIError
			return errors.As(err, &apiErr) && isBusinessRejection(apiErr.Code)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("熔断器状态变化", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// call runs fn through the breaker and maps the failure onto a sentinel.
func call[T any](c *BinanceClient, op string, fn func() (T, error)) (T, error) {
	var zero T
	res, err := c.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, mapError(op, err)
	}
	return res.(T), nil
}

// Connect pings the venue and, when keys are configured, checks them by
// reading the account.
func (c *BinanceClient) Connect(ctx context.Context) error {
	_, err := call(c, "ping", func() (struct{}, error) {
		return struct{}{}, c.client.NewPingService().Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	if c.hasKeys {
		if _, err := c.GetAccountInfo(ctx); err != nil {
			return fmt.Errorf("%w: verify credentials: %v", ErrConnection, err)
		}
	}
	c.logger.Info("已连接到币安", zap.Bool("authenticated", c.hasKeys))
	return nil
}

func (c *BinanceClient) GetTicker(ctx context.Context, symbol string) (*models.Ticker, error) {
	stats, err := call(c, "ticker", func() ([]*binance.PriceChangeStats, error) {
		return c.client.NewListPriceChangeStatsService().Symbol(VenueSymbol(symbol)).Do(ctx)
	})
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, fmt.Errorf("%w: no ticker for %s", ErrExchange, symbol)
	}
	s := stats[0]
	return &models.Ticker{
		Symbol:           symbol,
		Price:            parseFloat(s.LastPrice),
		ChangePercent24h: parseFloat(s.PriceChangePercent),
		Volume24h:        parseFloat(s.Volume),
		High24h:          parseFloat(s.HighPrice),
		Low24h:           parseFloat(s.LowPrice),
		Timestamp:        time.UnixMilli(s.CloseTime),
	}, nil
}

func (c *BinanceClient) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error) {
	klines, err := call(c, "klines", func() ([]*binance.Kline, error) {
		svc := c.client.NewKlinesService().Symbol(VenueSymbol(symbol)).Interval(interval)
		if limit > 0 {
			svc = svc.Limit(limit)
		}
		return svc.Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(klines))
	for _, k := range klines {
		candles = append(candles, models.Candle{
			Timestamp: time.UnixMilli(k.OpenTime),
			Open:      parseFloat(k.Open),
			High:      parseFloat(k.High),
			Low:       parseFloat(k.Low),
			Close:     parseFloat(k.Close),
			Volume:    parseFloat(k.Volume),
		})
	}
	return candles, nil
}

func (c *BinanceClient) GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error) {
	resp, err := call(c, "depth", func() (*binance.DepthResponse, error) {
		svc := c.client.NewDepthService().Symbol(VenueSymbol(symbol))
		if depth > 0 {
			svc = svc.Limit(depth)
		}
		return svc.Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	book := &models.OrderBook{
		Symbol: symbol,
		Bids:   make([]models.PriceLevel, 0, len(resp.Bids)),
		Asks:   make([]models.PriceLevel, 0, len(resp.Asks)),
	}
	for _, b := range resp.Bids {
		book.Bids = append(book.Bids, models.PriceLevel{Price: parseFloat(b.Price), Quantity: parseFloat(b.Quantity)})
	}
	for _, a := range resp.Asks {
		book.Asks = append(book.Asks, models.PriceLevel{Price: parseFloat(a.Price), Quantity: parseFloat(a.Quantity)})
	}
	return book, nil
}

func (c *BinanceClient) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error) {
	resp, err := call(c, "order", func() (*binance.CreateOrderResponse, error) {
		svc := c.client.NewCreateOrderService().
			Symbol(VenueSymbol(req.Symbol)).
			Side(binance.SideType(req.Side)).
			Type(binance.OrderType(req.Type)).
			Quantity(formatFloat(req.Quantity)).
			NewOrderRespType(binance.NewOrderRespTypeFULL)
		if req.Type == models.Limit {
			svc = svc.TimeInForce(binance.TimeInForceTypeGTC).Price(formatFloat(req.Price))
		}
		if req.ClientOrderID != "" {
			svc = svc.NewClientOrderID(req.ClientOrderID)
		}
		return svc.Do(ctx)
	})
	if err != nil {
		c.logger.Error("下单失败", zap.String("symbol", req.Symbol), zap.String("side", string(req.Side)), zap.Error(err))
		return nil, err
	}

	filled := parseFloat(resp.ExecutedQuantity)
	avg := parseFloat(resp.Price)
	if quote := parseFloat(resp.CummulativeQuoteQuantity); filled > 0 && quote > 0 {
		avg = quote / filled
	}
	return &models.Order{
		ID:            strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      parseFloat(resp.OrigQuantity),
		Filled:        filled,
		AveragePrice:  avg,
		Status:        mapStatus(resp.Status),
		Timestamp:     time.UnixMilli(resp.TransactTime),
	}, nil
}

func (c *BinanceClient) CancelOrder(ctx context.Context, symbol, orderID string) (*models.Order, error) {
	id, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid order id %q", ErrOrderRejected, orderID)
	}
	resp, err := call(c, "cancel", func() (*binance.CancelOrderResponse, error) {
		return c.client.NewCancelOrderService().Symbol(VenueSymbol(symbol)).OrderID(id).Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	filled := parseFloat(resp.ExecutedQuantity)
	avg := parseFloat(resp.Price)
	if quote := parseFloat(resp.CummulativeQuoteQuantity); filled > 0 && quote > 0 {
		avg = quote / filled
	}
	return &models.Order{
		ID:            strconv.FormatInt(resp.OrderID, 10),
		ClientOrderID: resp.OrigClientOrderID,
		Symbol:        symbol,
		Side:          models.Side(resp.Side),
		Type:          models.OrderType(resp.Type),
		Quantity:      parseFloat(resp.OrigQuantity),
		Filled:        filled,
		AveragePrice:  avg,
		Status:        mapStatus(resp.Status),
		Timestamp:     time.Now(),
	}, nil
}

func (c *BinanceClient) GetAccountInfo(ctx context.Context) (*models.AccountInfo, error) {
	acc, err := call(c, "account", func() (*binance.Account, error) {
		return c.client.NewGetAccountService().Do(ctx)
	})
	if err != nil {
		return nil, err
	}

	info := &models.AccountInfo{Balances: make([]models.Balance, 0, len(acc.Balances))}
	for _, b := range acc.Balances {
		free, locked := parseFloat(b.Free), parseFloat(b.Locked)
		if free == 0 && locked == 0 {
			continue
		}
		info.Balances = append(info.Balances, models.Balance{Asset: b.Asset, Free: free, Locked: locked})
	}
	return info, nil
}

// SpotOnly is true: orders go to the spot endpoint without margin.
func (c *BinanceClient) SpotOnly() bool { return true }

// State exposes the breaker state for health reporting.
func (c *BinanceClient) State() gobreaker.State {
	return c.cb.State()
}

// Binance error codes that reject a request without saying anything about
// the venue's health.
const (
	codeInvalidQuantity  = -1013
	codeNewOrderRejected = -2010
	codeCancelRejected   = -2011
	codeNoSuchOrder      = -2013
)

func isBusinessRejection(code int64) bool {
	switch code {
	case codeInvalidQuantity, codeNewOrderRejected, codeCancelRejected, codeNoSuchOrder:
		return true
	}
	return false
}

func mapError(op string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s: %v", ErrConnection, op, err)
	}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == codeNewOrderRejected && strings.Contains(strings.ToLower(apiErr.Message), "insufficient balance"):
			return fmt.Errorf("%w: %s: %v", ErrInsufficientBalance, op, err)
		case isBusinessRejection(apiErr.Code):
			return fmt.Errorf("%w: %s: %v", ErrOrderRejected, op, err)
		default:
			return fmt.Errorf("%w: %s: %v", ErrExchange, op, err)
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	// 非API错误视为网络层故障
	return fmt.Errorf("%w: %s: %v", ErrConnection, op, err)
}

func mapStatus(s binance.OrderStatusType) models.OrderStatus {
	switch s {
	case binance.OrderStatusTypeNew, binance.OrderStatusTypePendingCancel:
		return models.OrderPending
	case binance.OrderStatusTypePartiallyFilled:
		return models.OrderPartiallyFilled
	case binance.OrderStatusTypeFilled:
		return models.OrderFilled
	case binance.OrderStatusTypeCanceled:
		return models.OrderCancelled
	case binance.OrderStatusTypeRejected:
		return models.OrderRejected
	case binance.OrderStatusTypeExpired:
		return models.OrderExpired
	}
	return models.OrderPending
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
