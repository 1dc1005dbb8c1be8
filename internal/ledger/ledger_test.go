package ledger

import (
	"bot-controller-go/internal/models"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sym = "BTC/USDT"

func TestApplyOpenAndIncreaseLong(t *testing.T) {
	l := New(DefaultFeeRate, nil)
	book := map[string]models.Position{}

	res := l.Apply(book, Fill{Symbol: sym, Side: models.Buy, Quantity: 1, Price: 100})
	assert.InDelta(t, -0.1, res.RealizedPnL, 1e-9, "opening realizes only the fee")
	assert.Equal(t, models.Position{Quantity: 1, AveragePrice: 100}, book[sym])

	res = l.Apply(book, Fill{Symbol: sym, Side: models.Buy, Quantity: 3, Price: 200})
	assert.InDelta(t, -0.6, res.RealizedPnL, 1e-9)
	assert.InDelta(t, 4, book[sym].Quantity, 1e-12)
	assert.InDelta(t, 175, book[sym].AveragePrice, 1e-9)
}

func TestApplyReduceAndCloseLong(t *testing.T) {
	l := New(DefaultFeeRate, nil)
	book := map[string]models.Position{sym: {Quantity: 2, AveragePrice: 100}}

	res := l.Apply(book, Fill{Symbol: sym, Side: models.Sell, Quantity: 1, Price: 110})
	assert.InDelta(t, 10-0.11, res.RealizedPnL, 1e-9)
	assert.InDelta(t, 1, res.ClosedQty, 1e-12)
	assert.Equal(t, models.Position{Quantity: 1, AveragePrice: 100}, book[sym], "entry price unchanged on reduce")

	res = l.Apply(book, Fill{Symbol: sym, Side: models.Sell, Quantity: 1, Price: 90})
	assert.InDelta(t, -10-0.09, res.RealizedPnL, 1e-9)
	assert.True(t, res.Closed)
	_, ok := book[sym]
	assert.False(t, ok, "flat symbol must be removed")
}

func TestApplyShortMirrorsLong(t *testing.T) {
	l := New(0, nil)
	book := map[string]models.Position{}

	l.Apply(book, Fill{Symbol: sym, Side: models.Sell, Quantity: 2, Price: 100})
	assert.Equal(t, models.Position{Quantity: -2, AveragePrice: 100}, book[sym])

	res := l.Apply(book, Fill{Symbol: sym, Side: models.Buy, Quantity: 2, Price: 80})
	assert.InDelta(t, 40, res.RealizedPnL, 1e-9)
	assert.Empty(t, book)
}

func TestApplyOvershootFlips(t *testing.T) {
	l := New(0, nil)
	book := map[string]models.Position{sym: {Quantity: 1, AveragePrice: 100}}

	res := l.Apply(book, Fill{Symbol: sym, Side: models.Sell, Quantity: 3, Price: 120})
	assert.InDelta(t, 20, res.RealizedPnL, 1e-9, "only the closed unit realizes")
	assert.True(t, res.Flipped)
	assert.Equal(t, models.Position{Quantity: -2, AveragePrice: 120}, book[sym])
}

func TestApplyNoiseOnlyTouchesNonzero(t *testing.T) {
	calls := 0
	noise := NoiseFunc(func() float64 { calls++; return 1.1 })
	l := New(0, noise)
	book := map[string]models.Position{}

	res := l.Apply(book, Fill{Symbol: sym, Side: models.Buy, Quantity: 1, Price: 100})
	assert.Zero(t, res.RealizedPnL)
	assert.Zero(t, calls)

	res = l.Apply(book, Fill{Symbol: sym, Side: models.Sell, Quantity: 1, Price: 110})
	assert.InDelta(t, 11, res.RealizedPnL, 1e-9)
	assert.Equal(t, 1, calls)
}

func TestUniformNoiseBounds(t *testing.T) {
	n := NewUniformNoise(DefaultNoisePct, 42)
	for i := 0; i < 1000; i++ {
		m := n.Multiplier()
		require.GreaterOrEqual(t, m, 1-DefaultNoisePct)
		require.Less(t, m, 1+DefaultNoisePct)
	}
}

func TestApplyIgnoresEmptyFill(t *testing.T) {
	l := New(DefaultFeeRate, nil)
	book := map[string]models.Position{sym: {Quantity: 1, AveragePrice: 100}}

	res := l.Apply(book, Fill{Symbol: sym, Side: models.Sell, Quantity: 0, Price: 100})
	assert.Zero(t, res.RealizedPnL)
	assert.Equal(t, models.Position{Quantity: 1, AveragePrice: 100}, book[sym])
}

// Random fill sequences: a flat symbol is absent, and an open one carries
// the weighted mean of the increasing fills since it was last flat.
func TestApplyInvariantRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := New(DefaultFeeRate, nil)

	for run := 0; run < 200; run++ {
		book := map[string]models.Position{}
		var qty, cost float64 // running increasing-leg totals since last flat

		for step := 0; step < 30; step++ {
			side := models.Buy
			if rng.Intn(2) == 0 {
				side = models.Sell
			}
			q := float64(rng.Intn(5) + 1)
			p := float64(rng.Intn(100) + 50)

			before := book[sym].Quantity
			res := l.Apply(book, Fill{Symbol: sym, Side: side, Quantity: q, Price: p})
			after := book[sym].Quantity

			switch {
			case before == 0 || (before > 0) == (side == models.Buy):
				qty += q
				cost += q * p
			case res.Flipped:
				qty = abs(after)
				cost = qty * p
			case after == 0:
				qty, cost = 0, 0
			}

			if after == 0 {
				_, ok := book[sym]
				require.False(t, ok)
				continue
			}
			require.InDelta(t, cost/qty, book[sym].AveragePrice, 1e-9)
		}
	}
}
