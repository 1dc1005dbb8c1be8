package exchange

import (
	"bot-controller-go/internal/models"
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// UserResolver hands out one client per user and reuses it for every bot
// the user owns.
type UserResolver struct {
	build   func(userID string) (Client, error)
	logger  *zap.Logger
	mu      sync.Mutex
	clients map[string]Client
}

// NewLiveResolver builds authenticated Binance clients. Keys are read from the
// environment variables named in users.
func NewLiveResolver(users map[string]models.UserCreds, breaker models.BreakerConfig, logger *zap.Logger) *UserResolver {
	return newUserResolver(func(userID string) (Client, error) {
		creds, ok := users[userID]
		if !ok {
			return nil, fmt.Errorf("%w: no credentials configured for user %s", ErrConnection, userID)
		}
		apiKey, secretKey := os.Getenv(creds.APIKeyEnv), os.Getenv(creds.SecretKeyEnv)
		if apiKey == "" || secretKey == "" {
			return nil, fmt.Errorf("%w: %s or %s is not set", ErrConnection, creds.APIKeyEnv, creds.SecretKeyEnv)
		}
		return NewBinanceClient(apiKey, secretKey, breaker, logger.With(zap.String("user_id", userID))), nil
	}, logger)
}

// NewPaperResolver gives every user a separate simulated account on top of
// shared market data.
func NewPaperResolver(market MarketData, paper models.PaperConfig, logger *zap.Logger) *UserResolver {
	return newUserResolver(func(userID string) (Client, error) {
		return NewPaperExchange(market, paper, logger.With(zap.String("user_id", userID))), nil
	}, logger)
}

func newUserResolver(build func(string) (Client, error), logger *zap.Logger) *UserResolver {
	return &UserResolver{build: build, logger: logger, clients: make(map[string]Client)}
}

func (r *UserResolver) ClientFor(_ context.Context, userID string) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[userID]; ok {
		return c, nil
	}
	c, err := r.build(userID)
	if err != nil {
		return nil, err
	}
	r.clients[userID] = c
	r.logger.Debug("created exchange client", zap.String("user_id", userID))
	return c, nil
}
