package controller

import (
	"bot-controller-go/internal/exchange"
	"bot-controller-go/internal/models"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BotInstance is one registered bot: its configuration, exchange client,
// run state and the handle of its trading loop.
type BotInstance struct {
	Definition models.BotDefinition
	Config     models.StrategyConfig

	client exchange.Client
	logger *zap.Logger

	mu     sync.Mutex // 保护 state 与 status
	state  *models.RunState
	status models.BotStatus

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// BotInfo is a read-only view of an instance.
type BotInfo struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId"`
	Name             string           `json:"name"`
	Strategy         string           `json:"strategy"`
	Symbol           string           `json:"symbol"`
	TradingFrequency int              `json:"tradingFrequency"`
	Status           models.BotStatus `json:"status"`
	State            *models.RunState `json:"state"`
}

func newInstance(def models.BotDefinition, logger *zap.Logger) *BotInstance {
	return &BotInstance{
		Definition: def,
		logger:     logger.With(zap.String("bot_id", def.ID)),
		status:     models.StatusStarting,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (b *BotInstance) ID() string {
	return b.Definition.ID
}

func (b *BotInstance) Status() models.BotStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

func (b *BotInstance) setStatus(s models.BotStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status = s
}

// State returns a deep copy of the run state.
func (b *BotInstance) State() *models.RunState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Clone()
}

// Stats returns the current counters.
func (b *BotInstance) Stats() models.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == nil {
		return models.Stats{}
	}
	return b.state.Stats
}

func (b *BotInstance) Info() BotInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BotInfo{
		ID:               b.Definition.ID,
		UserID:           b.Definition.UserID,
		Name:             b.Definition.Name,
		Strategy:         b.Config.Strategy,
		Symbol:           b.Config.Symbol,
		TradingFrequency: b.Config.TradingFrequency,
		Status:           b.status,
		State:            b.state.Clone(),
	}
}

// halt signals the loop to exit before its next cycle. Safe to call repeatedly.
func (b *BotInstance) halt() {
	b.stopOnce.Do(func() { close(b.stop) })
}

func (b *BotInstance) halted() bool {
	select {
	case <-b.stop:
		return true
	default:
		return false
	}
}

func (b *BotInstance) position(symbol string) *models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.state.Positions[symbol]
	if !ok {
		return nil
	}
	return &pos
}

func (b *BotInstance) touch(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.LastActionAt = now
}

func (b *BotInstance) recordError() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state.Stats.Errors++
	return b.state.Stats.Errors
}

func (b *BotInstance) lastSaved() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.LastSavedAt
}
