package persistence

import (
	"bot-controller-go/internal/models"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"go.uber.org/zap"
)

const keyPrefix = "bot_state:"

// BadgerStore keeps one JSON document per bot under "bot_state:<id>".
type BadgerStore struct {
	db     *badger.DB
	logger *zap.Logger
}

// NewBadgerStore opens (or creates) a BadgerDB database at dbPath.
func NewBadgerStore(dbPath string, logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	// badger's own logging would interleave with ours; errors are still returned.
	opts.Logger = nil
	return openBadger(opts, logger)
}

// NewInMemoryBadgerStore opens a BadgerDB instance that never touches disk.
func NewInMemoryBadgerStore(logger *zap.Logger) (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return openBadger(opts, logger)
}

func openBadger(opts badger.Options, logger *zap.Logger) (*BadgerStore, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

func stateKey(botID string) []byte {
	return []byte(keyPrefix + botID)
}

func (s *BadgerStore) Save(_ context.Context, state *models.RunState) error {
	if state == nil || state.BotID == "" {
		return errors.New("state without bot id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(stateKey(state.BotID), data)
	})
}

func (s *BadgerStore) Load(_ context.Context, botID string) (*models.RunState, error) {
	var state models.RunState

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(botID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return errors.New("state value is empty in database")
			}
			return json.Unmarshal(val, &state)
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", botID, err)
	}
	normalize(&state)
	return &state, nil
}

// LoadRunning skips records that fail to decode and logs them.
func (s *BadgerStore) LoadRunning(_ context.Context) ([]*models.RunState, error) {
	var out []*models.RunState

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var state models.RunState
				if err := json.Unmarshal(val, &state); err != nil {
					s.logger.Warn("skipping unreadable bot state", zap.ByteString("key", item.Key()), zap.Error(err))
					return nil
				}
				if state.IsRunning {
					normalize(&state)
					out = append(out, &state)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load running: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) MarkStopped(_ context.Context, botID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(botID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var state models.RunState
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &state) }); err != nil {
			return err
		}
		state.IsRunning = false
		data, err := json.Marshal(&state)
		if err != nil {
			return err
		}
		return txn.Set(stateKey(botID), data)
	})
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// normalize guarantees a non-nil position map after decoding.
func normalize(state *models.RunState) {
	if state.Positions == nil {
		state.Positions = make(map[string]models.Position)
	}
}
