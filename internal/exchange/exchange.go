package exchange

import (
	"bot-controller-go/internal/models"
	"context"
	"errors"
	"strings"
)

// Client 定义了控制器所需的交易所能力。
// 实盘与模拟盘都实现此接口，控制器无需关心具体场所。
type Client interface {
	Connect(ctx context.Context) error
	GetTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)
	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) (*models.Order, error)
	GetAccountInfo(ctx context.Context) (*models.AccountInfo, error)
}

// MarketData is the read-only subset of Client.
type MarketData interface {
	Connect(ctx context.Context) error
	GetTicker(ctx context.Context, symbol string) (*models.Ticker, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]models.Candle, error)
	GetOrderBook(ctx context.Context, symbol string, depth int) (*models.OrderBook, error)
}

// SpotAccount is implemented by clients that can only sell what the account
// holds.
type SpotAccount interface {
	SpotOnly() bool
}

// IsSpotOnly reports whether c cannot sell short.
func IsSpotOnly(c Client) bool {
	s, ok := c.(SpotAccount)
	return ok && s.SpotOnly()
}

// Resolver returns an authenticated client for a user.
type Resolver interface {
	ClientFor(ctx context.Context, userID string) (Client, error)
}

// Errors returned by clients wrap one of these.
var (
	ErrConnection          = errors.New("exchange connection failed")
	ErrOrderRejected       = errors.New("order rejected")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrExchange            = errors.New("exchange error")
)

// VenueSymbol converts "BTC/USDT" style pairs to the concatenated form
// exchanges use on the wire.
func VenueSymbol(symbol string) string {
	r := strings.NewReplacer("/", "", "-", "", "_", "")
	return strings.ToUpper(r.Replace(strings.TrimSpace(symbol)))
}
