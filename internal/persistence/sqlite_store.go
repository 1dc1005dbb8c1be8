package persistence

import (
	"bot-controller-go/internal/models"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // Import the sqlite3 driver
	"go.uber.org/zap"
)

// SQLiteStore keeps one row per bot in the bot_state table.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens the database file at path and creates the schema.
func NewSQLiteStore(path string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer; one connection serializes every upsert.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

func createTables(db *sql.DB) error {
	createBotStateTableSQL := `
	CREATE TABLE IF NOT EXISTS bot_state (
		bot_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		last_action_at INTEGER NOT NULL,
		last_saved_at INTEGER NOT NULL,
		is_running INTEGER NOT NULL,
		trades INTEGER NOT NULL,
		profit REAL NOT NULL,
		errors INTEGER NOT NULL,
		winning_trades INTEGER NOT NULL,
		losing_trades INTEGER NOT NULL,
		positions TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(createBotStateTableSQL); err != nil {
		return err
	}

	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_bot_state_running ON bot_state (is_running);`)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, state *models.RunState) error {
	if state == nil || state.BotID == "" {
		return errors.New("state without bot id")
	}
	positions, err := json.Marshal(state.Positions)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO bot_state (bot_id, user_id, name, started_at, last_action_at, last_saved_at, is_running,
		trades, profit, errors, winning_trades, losing_trades, positions, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(bot_id) DO UPDATE SET
		user_id = excluded.user_id,
		name = excluded.name,
		started_at = excluded.started_at,
		last_action_at = excluded.last_action_at,
		last_saved_at = excluded.last_saved_at,
		is_running = excluded.is_running,
		trades = excluded.trades,
		profit = excluded.profit,
		errors = excluded.errors,
		winning_trades = excluded.winning_trades,
		losing_trades = excluded.losing_trades,
		positions = excluded.positions,
		updated_at = excluded.updated_at;`

	_, err = s.db.ExecContext(ctx, query,
		state.BotID, state.UserID, state.Name,
		toUnix(state.StartedAt), toUnix(state.LastActionAt), toUnix(state.LastSavedAt),
		state.IsRunning,
		state.Stats.Trades, state.Stats.Profit, state.Stats.Errors,
		state.Stats.WinningTrades, state.Stats.LosingTrades,
		string(positions), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save bot state %s: %w", state.BotID, err)
	}
	return nil
}

const selectStateSQL = `
	SELECT bot_id, user_id, name, started_at, last_action_at, last_saved_at, is_running,
		trades, profit, errors, winning_trades, losing_trades, positions
	FROM bot_state`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanState(row scanner) (*models.RunState, error) {
	var (
		state                          models.RunState
		started, lastAction, lastSaved int64
		positions                      string
	)
	err := row.Scan(
		&state.BotID, &state.UserID, &state.Name,
		&started, &lastAction, &lastSaved, &state.IsRunning,
		&state.Stats.Trades, &state.Stats.Profit, &state.Stats.Errors,
		&state.Stats.WinningTrades, &state.Stats.LosingTrades,
		&positions,
	)
	if err != nil {
		return nil, err
	}
	state.StartedAt = fromUnix(started)
	state.LastActionAt = fromUnix(lastAction)
	state.LastSavedAt = fromUnix(lastSaved)
	if err := json.Unmarshal([]byte(positions), &state.Positions); err != nil {
		return nil, fmt.Errorf("decode positions of %s: %w", state.BotID, err)
	}
	normalize(&state)
	return &state, nil
}

func (s *SQLiteStore) Load(ctx context.Context, botID string) (*models.RunState, error) {
	state, err := scanState(s.db.QueryRowContext(ctx, selectStateSQL+` WHERE bot_id = ?;`, botID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", botID, err)
	}
	return state, nil
}

func (s *SQLiteStore) LoadRunning(ctx context.Context) ([]*models.RunState, error) {
	rows, err := s.db.QueryContext(ctx, selectStateSQL+` WHERE is_running = 1 ORDER BY bot_id;`)
	if err != nil {
		return nil, fmt.Errorf("failed to query running bots: %w", err)
	}
	defer rows.Close()

	var out []*models.RunState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			s.logger.Warn("skipping unreadable bot state row", zap.Error(err))
			continue
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkStopped(ctx context.Context, botID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE bot_state SET is_running = 0, updated_at = ? WHERE bot_id = ?;`,
		time.Now().UnixNano(), botID)
	if err != nil {
		return fmt.Errorf("failed to mark %s stopped: %w", botID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
