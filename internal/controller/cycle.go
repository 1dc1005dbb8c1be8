package controller

import (
	"bot-controller-go/internal/exchange"
	"bot-controller-go/internal/ledger"
	"bot-controller-go/internal/metrics"
	"bot-controller-go/internal/models"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Cycle outcomes, used as metric labels.
const (
	outcomeHold     = "hold"
	outcomeRejected = "rejected"
	outcomeSkipped  = "skipped"
	outcomeFilled   = "filled"
	outcomeUnfilled = "unfilled"
	outcomeError    = "error"
)

// run is the trading loop of one bot. Cycles of a bot never overlap because
// only this goroutine executes them.
func (c *Controller) run(inst *BotInstance) {
	defer c.loops.Done()
	defer close(inst.done)

	first := time.NewTimer(c.opts.FirstCycleDelay)
	defer first.Stop()

	select {
	case <-inst.stop:
		return
	case <-first.C:
	}
	c.runCycle(inst)

	interval := time.Duration(inst.Config.TradingFrequency) * c.opts.FrequencyUnit
	if interval <= 0 {
		interval = models.DefaultTradingFrequency * c.opts.FrequencyUnit
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-inst.stop:
			return
		case <-ticker.C:
			// stop 与 tick 同时就绪时 select 随机选择, 再检查一次
			if inst.halted() {
				return
			}
			c.runCycle(inst)
		}
	}
}

// runCycle executes one cycle and absorbs its failure. An error or panic
// increments the bot's error counter; the loop keeps its schedule.
func (c *Controller) runCycle(inst *BotInstance) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CycleTimeout)
	defer cancel()

	outcome, err := c.safeCycle(ctx, inst)
	metrics.CycleDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		errorsSoFar := inst.recordError()
		metrics.CyclesTotal.WithLabelValues(outcomeError).Inc()
		inst.logger.Error("trading cycle failed", zap.Int("errors", errorsSoFar), zap.Error(err))
		return
	}
	metrics.CyclesTotal.WithLabelValues(outcome).Inc()
}

func (c *Controller) safeCycle(ctx context.Context, inst *BotInstance) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in trading cycle: %v", r)
		}
	}()
	return c.executeTradingCycle(ctx, inst)
}

// executeTradingCycle runs analyze, signal, risk check, execute, ledger update
// and persist for the bot's single pair.
func (c *Controller) executeTradingCycle(ctx context.Context, inst *BotInstance) (string, error) {
	cfg := inst.Config
	log := inst.logger.With(zap.String("symbol", cfg.Symbol))
	inst.touch(c.opts.Now())

	snap, err := c.fetchSnapshot(ctx, inst, cfg.Symbol)
	if err != nil {
		return "", err
	}
	snap.Position = inst.position(cfg.Symbol)

	sig := c.generator.Generate(snap, cfg)
	if sig.Action == models.ActionHold {
		log.Debug("hold", zap.String("reason", sig.Reason))
		return outcomeHold, c.maybePersist(ctx, inst)
	}

	if sig.Action == models.ActionSell && exchange.IsSpotOnly(inst.client) {
		held := 0.0
		if snap.Position != nil && snap.Position.Quantity > 0 {
			held = snap.Position.Quantity
		}
		if held <= 0 {
			log.Info("sell skipped, nothing held on spot account", zap.String("reason", sig.Reason))
			return outcomeSkipped, c.maybePersist(ctx, inst)
		}
		// 现货账户不能卖出超过持仓的数量
		if sig.Quantity > held {
			sig.Quantity = held
		}
	}

	if d := c.gate.Evaluate(inst.Stats(), sig, cfg); !d.Allowed {
		metrics.RiskRejectionsTotal.WithLabelValues(d.Check).Inc()
		log.Info("signal rejected by risk gate",
			zap.String("action", string(sig.Action)),
			zap.String("check", d.Check),
			zap.String("reason", d.Reason))
		return outcomeRejected, c.maybePersist(ctx, inst)
	}

	side, _ := sig.Side()
	log.Info("placing order",
		zap.String("side", string(side)),
		zap.Float64("quantity", sig.Quantity),
		zap.Float64("price", sig.Price),
		zap.Float64("confidence", sig.Confidence),
		zap.String("reason", sig.Reason))

	order, err := inst.client.PlaceOrder(ctx, models.OrderRequest{
		Symbol:        cfg.Symbol,
		Side:          side,
		Type:          models.Market,
		Quantity:      sig.Quantity,
		ClientOrderID: newClientOrderID(),
	})
	if err != nil {
		return "", fmt.Errorf("place %s order: %w", side, err)
	}
	if order.Status != models.OrderFilled {
		log.Warn("order not filled", zap.String("order_id", order.ID), zap.String("status", string(order.Status)))
		return outcomeUnfilled, c.maybePersist(ctx, inst)
	}

	c.applyFill(inst, cfg.Symbol, side, sig, order)

	if err := c.persist(ctx, inst); err != nil {
		return outcomeFilled, err
	}
	return outcomeFilled, nil
}

func (c *Controller) fetchSnapshot(ctx context.Context, inst *BotInstance, symbol string) (models.MarketSnapshot, error) {
	var snap models.MarketSnapshot

	ticker, err := inst.client.GetTicker(ctx, symbol)
	if err != nil {
		return snap, fmt.Errorf("get ticker: %w", err)
	}
	candles, err := inst.client.GetCandles(ctx, symbol, c.opts.CandleInterval, c.opts.CandleLimit)
	if err != nil {
		return snap, fmt.Errorf("get candles: %w", err)
	}
	book, err := inst.client.GetOrderBook(ctx, symbol, c.opts.OrderBookDepth)
	if err != nil {
		return snap, fmt.Errorf("get order book: %w", err)
	}

	if ticker != nil {
		snap.Ticker = *ticker
	}
	snap.Candles = candles
	if book != nil {
		snap.OrderBook = *book
	}
	return snap, nil
}

// applyFill books a filled order: ledger update, stats, trade event.
func (c *Controller) applyFill(inst *BotInstance, symbol string, side models.Side, sig models.TradingSignal, order *models.Order) {
	qty, price := order.Filled, order.AveragePrice
	if qty <= 0 {
		qty = sig.Quantity
	}
	if price <= 0 {
		price = sig.Price
	}

	inst.mu.Lock()
	res := c.ledger.Apply(inst.state.Positions, ledger.Fill{Symbol: symbol, Side: side, Quantity: qty, Price: price})
	stats := &inst.state.Stats
	stats.Trades++
	outcome := models.TradeLoss
	if res.RealizedPnL > 0 {
		outcome = models.TradeWin
		stats.WinningTrades++
	} else {
		stats.LosingTrades++
	}
	stats.Profit += res.RealizedPnL
	total := *stats
	inst.mu.Unlock()

	metrics.TradesTotal.WithLabelValues(string(side), string(outcome)).Inc()
	metrics.RealizedProfit.WithLabelValues(inst.ID()).Set(total.Profit)

	inst.logger.Info("order filled",
		zap.String("symbol", symbol),
		zap.String("side", string(side)),
		zap.String("order_id", order.ID),
		zap.Float64("quantity", qty),
		zap.Float64("price", price),
		zap.Float64("pnl", res.RealizedPnL),
		zap.Float64("position", res.Position.Quantity),
		zap.Int("trades", total.Trades),
		zap.Float64("profit", total.Profit))

	c.notifyTrade(inst, models.TradeEvent{
		ID:        newEventID(),
		BotID:     inst.ID(),
		UserID:    inst.Definition.UserID,
		Symbol:    symbol,
		Side:      side,
		Quantity:  qty,
		Price:     price,
		Profit:    res.RealizedPnL,
		Type:      outcome,
		Timestamp: c.opts.Now(),
	})
}

// maybePersist saves when SaveInterval has passed since the last save.
func (c *Controller) maybePersist(ctx context.Context, inst *BotInstance) error {
	if c.opts.Now().Sub(inst.lastSaved()) < c.opts.SaveInterval {
		return nil
	}
	return c.persist(ctx, inst)
}
