package reporter

import (
	"bot-controller-go/internal/controller"
	"bot-controller-go/internal/models"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Metrics 存储单个机器人的绩效指标
type Metrics struct {
	Trades        int
	WinningTrades int
	LosingTrades  int
	WinRate       float64 // 百分比
	Profit        float64
	AvgProfit     float64 // 每笔交易平均盈亏
	Errors        int
	OpenPositions int
	Uptime        time.Duration
}

// Calculate derives the metrics of one run state at now.
func Calculate(state *models.RunState, now time.Time) Metrics {
	if state == nil {
		return Metrics{}
	}
	s := state.Stats
	m := Metrics{
		Trades:        s.Trades,
		WinningTrades: s.WinningTrades,
		LosingTrades:  s.LosingTrades,
		WinRate:       s.WinRate() * 100,
		Profit:        s.Profit,
		Errors:        s.Errors,
		OpenPositions: len(state.Positions),
	}
	if s.Trades > 0 {
		m.AvgProfit = s.Profit / float64(s.Trades)
	}
	if !state.StartedAt.IsZero() && now.After(state.StartedAt) {
		m.Uptime = now.Sub(state.StartedAt).Truncate(time.Second)
	}
	return m
}

// Render draws one row per bot plus a totals footer.
func Render(bots []controller.BotInfo, stats controller.Stats, now time.Time) string {
	sort.Slice(bots, func(i, j int) bool { return bots[i].ID < bots[j].ID })

	t := table.NewWriter()
	t.SetTitle("Bot Controller  %s", now.Format("2006-01-02 15:04:05"))
	t.AppendHeader(table.Row{"ID", "Name", "Strategy", "Symbol", "Status", "Trades", "Win %", "Profit", "Avg", "Errors", "Positions", "Uptime"})

	for _, b := range bots {
		m := Calculate(b.State, now)
		t.AppendRow(table.Row{
			b.ID, b.Name, b.Strategy, b.Symbol, string(b.Status),
			m.Trades,
			fmt.Sprintf("%.1f", m.WinRate),
			fmt.Sprintf("%.4f", m.Profit),
			fmt.Sprintf("%.4f", m.AvgProfit),
			m.Errors,
			positions(b.State),
			m.Uptime.String(),
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d active", stats.ActiveBots),
		stats.TotalTrades, "", fmt.Sprintf("%.4f", stats.TotalProfit), "", stats.TotalErrors, "", ""})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})
	t.SetStyle(table.StyleLight)
	return t.Render()
}

// positions formats the open positions as "SYM qty@avg", sorted by symbol.
func positions(state *models.RunState) string {
	if state == nil || len(state.Positions) == 0 {
		return "-"
	}
	symbols := make([]string, 0, len(state.Positions))
	for s := range state.Positions {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	parts := make([]string, 0, len(symbols))
	for _, s := range symbols {
		p := state.Positions[s]
		parts = append(parts, fmt.Sprintf("%s %.6g@%.2f", s, p.Quantity, p.AveragePrice))
	}
	return strings.Join(parts, ", ")
}
