package persistence

import (
	"bot-controller-go/internal/models"
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Store persists the run state of every bot, keyed by bot id.
// Implementations must be safe for concurrent use by many bots.
type Store interface {
	// Load returns the state saved for botID, or (nil, nil) when there is none.
	Load(ctx context.Context, botID string) (*models.RunState, error)

	// LoadRunning returns every state whose IsRunning flag is set.
	LoadRunning(ctx context.Context) ([]*models.RunState, error)

	// Save upserts the state under state.BotID.
	Save(ctx context.Context, state *models.RunState) error

	// MarkStopped clears the running flag of a saved state. Unknown ids are a no-op.
	MarkStopped(ctx context.Context, botID string) error

	// Close gracefully closes the connection to the database.
	Close() error
}

// Open picks the backend named in cfg.
func Open(cfg models.StorageConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Driver {
	case "badger", "":
		s, err := NewBadgerStore(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
