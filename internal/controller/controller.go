package controller

import (
	"bot-controller-go/internal/exchange"
	"bot-controller-go/internal/ledger"
	"bot-controller-go/internal/metrics"
	"bot-controller-go/internal/models"
	"bot-controller-go/internal/persistence"
	"bot-controller-go/internal/risk"
	"bot-controller-go/internal/strategy"
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Controller owns the registry of bot instances and drives one trading loop
// per running bot. It is safe for concurrent use.
type Controller struct {
	store    persistence.Store
	resolver exchange.Resolver
	observer Observer
	logger   *zap.Logger
	opts     Options

	generator *strategy.Generator
	gate      *risk.Gate
	ledger    *ledger.Ledger

	mu      sync.RWMutex
	bots    map[string]*BotInstance
	pending map[string]*models.RunState // 进程重启前仍在运行的机器人, 等待 StartBot
	closed  bool
	loops   sync.WaitGroup
}

// Stats aggregates the running bots.
type Stats struct {
	ActiveBots  int     `json:"activeBots"`
	TotalTrades int     `json:"totalTrades"`
	TotalProfit float64 `json:"totalProfit"`
	TotalErrors int     `json:"totalErrors"`
}

// New builds a controller and loads the states of bots that were running when
// the process last exited. They are not resumed until StartBot is called.
func New(ctx context.Context, store persistence.Store, resolver exchange.Resolver, observer Observer, logger *zap.Logger, opts Options) *Controller {
	if observer == nil {
		observer = NopObserver{}
	}
	opts = opts.withDefaults()

	c := &Controller{
		store:     store,
		resolver:  resolver,
		observer:  observer,
		logger:    logger,
		opts:      opts,
		generator: strategy.NewGenerator(opts.SizeBands),
		gate:      risk.NewGate(opts.Risk),
		ledger:    ledger.New(opts.FeeRate, opts.Noise),
		bots:      make(map[string]*BotInstance),
		pending:   make(map[string]*models.RunState),
	}

	states, err := store.LoadRunning(ctx)
	if err != nil {
		logger.Error("failed to load running bot states", zap.Error(err))
		return c
	}
	for _, s := range states {
		c.pending[s.BotID] = s
	}
	if len(states) > 0 {
		logger.Info("found bots awaiting restart", zap.Int("count", len(states)))
	}
	return c
}

// StartBot registers def and starts its trading loop.
func (c *Controller) StartBot(ctx context.Context, def models.BotDefinition) (*BotInstance, error) {
	if def.ID == "" {
		return nil, errors.New("bot definition without id")
	}

	inst, err := c.reserve(def)
	if err != nil {
		return nil, err
	}
	log := inst.logger

	client, err := c.resolver.ClientFor(ctx, def.UserID)
	if err == nil {
		err = client.Connect(ctx)
	}
	if err != nil {
		c.release(inst)
		log.Warn("exchange connection failed, bot not started", zap.String("user_id", def.UserID), zap.Error(err))
		return nil, &ExchangeConnectionError{BotID: def.ID, UserID: def.UserID, Err: err}
	}

	cfg := ExtractStrategyConfig(def, log)
	state, restored, err := c.restoreState(ctx, def)
	if err != nil {
		c.release(inst)
		return nil, err
	}
	state.IsRunning = true

	inst.mu.Lock()
	inst.client = client
	inst.Config = cfg
	inst.state = state
	inst.mu.Unlock()

	if err := c.persist(ctx, inst); err != nil {
		log.Error("failed to persist initial state", zap.Error(err))
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.release(inst)
		return nil, ErrShutdown
	}
	delete(c.pending, def.ID)
	inst.setStatus(models.StatusRunning)
	go c.run(inst)
	c.mu.Unlock()

	metrics.ActiveBots.Inc()
	log.Info("bot started",
		zap.String("strategy", cfg.Strategy),
		zap.String("symbol", cfg.Symbol),
		zap.Int("frequency_min", cfg.TradingFrequency),
		zap.Bool("restored", restored),
		zap.Int("trades", state.Stats.Trades))
	c.notifyStatus(inst, models.StatusRunning)
	return inst, nil
}

// reserve registers a STARTING placeholder so concurrent starts of the same id fail.
func (c *Controller) reserve(def models.BotDefinition) (*BotInstance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrShutdown
	}
	if existing, ok := c.bots[def.ID]; ok {
		return nil, &AlreadyRunningError{BotID: def.ID, Status: existing.Status()}
	}
	inst := newInstance(def, c.logger)
	c.bots[def.ID] = inst
	c.loops.Add(1)
	return inst, nil
}

// release undoes reserve for a start that did not complete.
func (c *Controller) release(inst *BotInstance) {
	c.mu.Lock()
	if c.bots[inst.ID()] == inst {
		delete(c.bots, inst.ID())
	}
	c.mu.Unlock()
	inst.setStatus(models.StatusStopped)
	inst.halt()
	close(inst.done)
	c.loops.Done()
}

// restoreState prefers the pending-restore entry, then the store, then a fresh state.
func (c *Controller) restoreState(ctx context.Context, def models.BotDefinition) (*models.RunState, bool, error) {
	c.mu.RLock()
	pending := c.pending[def.ID]
	c.mu.RUnlock()

	state := pending.Clone()
	if state == nil {
		loaded, err := c.store.Load(ctx, def.ID)
		if err != nil {
			return nil, false, fmt.Errorf("load state of bot %s: %w", def.ID, err)
		}
		state = loaded
	}
	if state == nil {
		return models.NewRunState(def, c.opts.Now()), false, nil
	}

	state.UserID = def.UserID
	state.Name = def.Name
	if state.StartedAt.IsZero() {
		state.StartedAt = c.opts.Now()
	}
	if state.Positions == nil {
		state.Positions = make(map[string]models.Position)
	}
	return state, true, nil
}

// StopBot halts the loop of a running bot, waits for an in-flight cycle and
// marks the bot stopped in the store. When ctx expires first the bot is still
// finalized once its cycle returns.
func (c *Controller) StopBot(ctx context.Context, botID string) error {
	c.mu.Lock()
	inst, ok := c.bots[botID]
	if !ok || inst.Status() != models.StatusRunning {
		c.mu.Unlock()
		return &NotRunningError{BotID: botID}
	}
	inst.setStatus(models.StatusStopping)
	c.mu.Unlock()

	inst.halt()

	select {
	case <-inst.done:
		c.finalize(ctx, inst)
		return nil
	case <-ctx.Done():
		go func() {
			<-inst.done
			c.finalize(context.Background(), inst)
		}()
		return fmt.Errorf("stop bot %s: waiting for in-flight cycle: %w", botID, ctx.Err())
	}
}

func (c *Controller) finalize(ctx context.Context, inst *BotInstance) {
	log := inst.logger
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.StopTimeout)
	defer cancel()

	inst.mu.Lock()
	inst.state.IsRunning = false
	inst.mu.Unlock()

	if err := c.persist(saveCtx, inst); err != nil {
		log.Error("failed to save final state", zap.Error(err))
	}
	if err := c.store.MarkStopped(saveCtx, inst.ID()); err != nil {
		metrics.PersistErrorsTotal.Inc()
		log.Error("failed to mark bot stopped", zap.Error(err))
	}

	c.mu.Lock()
	if c.bots[inst.ID()] == inst {
		delete(c.bots, inst.ID())
	}
	c.mu.Unlock()

	inst.setStatus(models.StatusStopped)
	metrics.ActiveBots.Dec()
	metrics.RealizedProfit.DeleteLabelValues(inst.ID())

	stats := inst.Stats()
	log.Info("bot stopped",
		zap.Int("trades", stats.Trades),
		zap.Float64("profit", stats.Profit),
		zap.Int("errors", stats.Errors))
	c.notifyStatus(inst, models.StatusStopped)
}

// StopAllBots stops every running bot. One failure does not keep the others
// running; all failures are returned joined.
func (c *Controller) StopAllBots(ctx context.Context) error {
	active := c.GetActiveBots()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, inst := range active {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if err := c.StopBot(ctx, id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(inst.ID())
	}
	wg.Wait()

	if len(errs) > 0 {
		c.logger.Warn("some bots failed to stop", zap.Int("failed", len(errs)), zap.Int("total", len(active)))
	}
	return errors.Join(errs...)
}

// Shutdown halts every loop for process exit. States are saved with the running
// flag still set so the next process offers the bots for restart.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	instances := make([]*BotInstance, 0, len(c.bots))
	for _, inst := range c.bots {
		instances = append(instances, inst)
	}
	c.mu.Unlock()

	for _, inst := range instances {
		inst.halt()
	}

	done := make(chan struct{})
	go func() {
		c.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown: waiting for in-flight cycles: %w", ctx.Err())
	}

	var errs []error
	for _, inst := range instances {
		if inst.Status() != models.StatusRunning {
			continue
		}
		if err := c.persist(ctx, inst); err != nil {
			errs = append(errs, err)
		}
		inst.setStatus(models.StatusStopped)
		metrics.ActiveBots.Dec()
	}

	c.mu.Lock()
	c.bots = make(map[string]*BotInstance)
	c.mu.Unlock()

	c.logger.Info("controller shut down", zap.Int("bots", len(instances)))
	return errors.Join(errs...)
}

// GetActiveBots returns the running instances ordered by id.
func (c *Controller) GetActiveBots() []*BotInstance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*BotInstance, 0, len(c.bots))
	for _, inst := range c.bots {
		if inst.Status() == models.StatusRunning {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// GetBotInstance returns the registered instance for botID, excluding one
// that is still starting.
func (c *Controller) GetBotInstance(botID string) (*BotInstance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	inst, ok := c.bots[botID]
	if !ok || inst.Status() == models.StatusStarting {
		return nil, false
	}
	return inst, true
}

func (c *Controller) GetStats() Stats {
	var s Stats
	for _, inst := range c.GetActiveBots() {
		st := inst.Stats()
		s.ActiveBots++
		s.TotalTrades += st.Trades
		s.TotalProfit += st.Profit
		s.TotalErrors += st.Errors
	}
	return s
}

// PendingRestores lists bots that were running before the last restart and
// have not been started again.
func (c *Controller) PendingRestores() []*models.RunState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*models.RunState, 0, len(c.pending))
	for _, s := range c.pending {
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BotID < out[j].BotID })
	return out
}

// persist saves a snapshot and records the save time on success.
func (c *Controller) persist(ctx context.Context, inst *BotInstance) error {
	now := c.opts.Now()

	inst.mu.Lock()
	snapshot := inst.state.Clone()
	inst.mu.Unlock()
	snapshot.LastSavedAt = now

	if err := c.store.Save(ctx, snapshot); err != nil {
		metrics.PersistErrorsTotal.Inc()
		return fmt.Errorf("save state of bot %s: %w", inst.ID(), err)
	}

	inst.mu.Lock()
	inst.state.LastSavedAt = now
	inst.mu.Unlock()
	return nil
}

func (c *Controller) notifyStatus(inst *BotInstance, status models.BotStatus) {
	event := models.StatusEvent{
		ID:        newEventID(),
		BotID:     inst.ID(),
		UserID:    inst.Definition.UserID,
		Name:      inst.Definition.Name,
		Status:    status,
		Timestamp: c.opts.Now(),
	}
	defer c.recoverObserver(inst, "status")
	c.observer.OnStatusChanged(event)
}

func (c *Controller) notifyTrade(inst *BotInstance, event models.TradeEvent) {
	defer c.recoverObserver(inst, "trade")
	c.observer.OnTrade(event)
}

func (c *Controller) recoverObserver(inst *BotInstance, kind string) {
	if r := recover(); r != nil {
		inst.logger.Error("observer panicked", zap.String("event", kind), zap.Any("panic", r))
	}
}
