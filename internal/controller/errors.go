package controller

import (
	"bot-controller-go/internal/models"
	"errors"
	"fmt"
)

// ErrShutdown is returned by StartBot once Shutdown has been called.
var ErrShutdown = errors.New("controller is shutting down")

// AlreadyRunningError rejects a second start of a bot that is registered.
type AlreadyRunningError struct {
	BotID  string
	Status models.BotStatus
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("bot %s is already registered (%s)", e.BotID, e.Status)
}

// NotRunningError rejects a stop of a bot that has no running instance.
type NotRunningError struct {
	BotID string
}

func (e *NotRunningError) Error() string {
	return fmt.Sprintf("bot %s is not running", e.BotID)
}

// ExchangeConnectionError means the owner's exchange client could not be
// resolved or connected. The bot was not registered.
type ExchangeConnectionError struct {
	BotID  string
	UserID string
	Err    error
}

func (e *ExchangeConnectionError) Error() string {
	return fmt.Sprintf("bot %s: exchange connection for user %s failed: %v", e.BotID, e.UserID, e.Err)
}

func (e *ExchangeConnectionError) Unwrap() error {
	return e.Err
}
