package notify

import (
	"bot-controller-go/internal/controller"
	"bot-controller-go/internal/models"

	"go.uber.org/zap"
)

// Fanout forwards every event to each observer in order. A panicking
// observer does not keep the others from being called.
type Fanout struct {
	observers []controller.Observer
	logger    *zap.Logger
}

func NewFanout(logger *zap.Logger, observers ...controller.Observer) *Fanout {
	f := &Fanout{logger: logger}
	for _, o := range observers {
		if o != nil {
			f.observers = append(f.observers, o)
		}
	}
	return f
}

func (f *Fanout) OnStatusChanged(e models.StatusEvent) {
	for _, o := range f.observers {
		f.call(func() { o.OnStatusChanged(e) })
	}
}

func (f *Fanout) OnTrade(e models.TradeEvent) {
	for _, o := range f.observers {
		f.call(func() { o.OnTrade(e) })
	}
}

func (f *Fanout) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("observer panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
