package models

import "time"

// RunState 定义了需要持久化的机器人运行状态
type RunState struct {
	BotID        string              `json:"bot_id"`
	UserID       string              `json:"user_id"`
	Name         string              `json:"name"`
	StartedAt    time.Time           `json:"started_at"`     // 首次启动时间，重启后保持不变
	LastActionAt time.Time           `json:"last_action_at"` // 最近一次交易周期的时间
	LastSavedAt  time.Time           `json:"last_saved_at"`
	IsRunning    bool                `json:"is_running"`
	Stats        Stats               `json:"stats"`
	Positions    map[string]Position `json:"positions"` // symbol -> position, 仓位归零时删除
}

// Stats only ever grow while the bot exists.
type Stats struct {
	Trades        int     `json:"trades"`
	Profit        float64 `json:"profit"`
	Errors        int     `json:"errors"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
}

// WinRate returns winning/total trades, or 0 before the first trade.
func (s Stats) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.Trades)
}

// Position is signed: positive quantity is long, negative is short.
type Position struct {
	Quantity     float64 `json:"quantity"`
	AveragePrice float64 `json:"average_price"`
}

// NewRunState creates a zero-valued state for a bot started for the first time.
func NewRunState(def BotDefinition, now time.Time) *RunState {
	return &RunState{
		BotID:     def.ID,
		UserID:    def.UserID,
		Name:      def.Name,
		StartedAt: now,
		Positions: make(map[string]Position),
	}
}

// Clone returns a deep copy that can be read or persisted without holding the owner's lock.
func (s *RunState) Clone() *RunState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Positions = make(map[string]Position, len(s.Positions))
	for k, v := range s.Positions {
		cp.Positions[k] = v
	}
	return &cp
}
