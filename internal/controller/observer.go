package controller

import "bot-controller-go/internal/models"

// Observer receives lifecycle and trade notifications. Calls are made
// synchronously from the controller, so implementations must not block.
type Observer interface {
	OnStatusChanged(event models.StatusEvent)
	OnTrade(event models.TradeEvent)
}

// NopObserver discards every notification.
type NopObserver struct{}

func (NopObserver) OnStatusChanged(models.StatusEvent) {}
func (NopObserver) OnTrade(models.TradeEvent)          {}
