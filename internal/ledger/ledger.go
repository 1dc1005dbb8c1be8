package ledger

import (
	"bot-controller-go/internal/models"
	"math/rand"
	"sync"
	"time"
)

// DefaultFeeRate is the simulated taker fee charged on every fill.
const DefaultFeeRate = 0.001

// DefaultNoisePct bounds the multiplier applied to realized P&L: 1 ± DefaultNoisePct.
const DefaultNoisePct = 0.15

// Fill is one executed trade as seen by the ledger.
type Fill struct {
	Symbol   string
	Side     models.Side
	Quantity float64
	Price    float64
}

// Result describes what a fill did to the book.
type Result struct {
	RealizedPnL float64
	Fee         float64
	ClosedQty   float64 // quantity that reduced an existing position
	Position    models.Position
	Closed      bool // the symbol went flat and its entry was removed
	Flipped     bool // the fill crossed zero and opened the opposite side
}

// NoiseSource returns a multiplier applied to nonzero realized P&L.
type NoiseSource interface {
	Multiplier() float64
}

// NoiseFunc adapts a plain function to NoiseSource.
type NoiseFunc func() float64

func (f NoiseFunc) Multiplier() float64 { return f() }

// NoNoise leaves P&L untouched.
var NoNoise NoiseSource = NoiseFunc(func() float64 { return 1 })

type uniformNoise struct {
	mu  sync.Mutex
	rng *rand.Rand
	pct float64
}

// NewUniformNoise draws multipliers uniformly from [1-pct, 1+pct).
func NewUniformNoise(pct float64, seed int64) NoiseSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &uniformNoise{rng: rand.New(rand.NewSource(seed)), pct: pct}
}

func (n *uniformNoise) Multiplier() float64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return 1 + (n.rng.Float64()*2-1)*n.pct
}

// Ledger applies fills to a per-symbol position book with weighted-average cost.
// It holds no book itself; the caller owns the map and serializes access to it.
type Ledger struct {
	FeeRate float64
	Noise   NoiseSource
}

// New returns a ledger with the given fee rate and noise source. A nil noise
// source disables noise.
func New(feeRate float64, noise NoiseSource) *Ledger {
	if noise == nil {
		noise = NoNoise
	}
	return &Ledger{FeeRate: feeRate, Noise: noise}
}

// Apply updates book in place and returns the realized P&L of the fill.
//
// Increasing a position (or opening one) re-averages the entry price and
// realizes only the fee. Reducing realizes (exit-entry)*qty for longs and the
// mirror for shorts, minus the fee. A fill larger than the open position
// closes it and opens the remainder on the other side at the fill price.
func (l *Ledger) Apply(book map[string]models.Position, fill Fill) Result {
	if fill.Quantity <= 0 || fill.Price <= 0 {
		return Result{Position: book[fill.Symbol]}
	}

	signed := fill.Quantity
	if fill.Side == models.Sell {
		signed = -signed
	}

	pos := book[fill.Symbol]
	fee := fill.Price * fill.Quantity * l.FeeRate
	res := Result{Fee: fee}

	var gross float64
	switch {
	case pos.Quantity == 0 || sameSign(pos.Quantity, signed):
		// 加仓或开仓：重新计算加权平均价
		total := pos.Quantity + signed
		pos.AveragePrice = (abs(pos.Quantity)*pos.AveragePrice + fill.Quantity*fill.Price) / abs(total)
		pos.Quantity = total

	default:
		closing := min(abs(pos.Quantity), fill.Quantity)
		if pos.Quantity > 0 {
			gross = (fill.Price - pos.AveragePrice) * closing
		} else {
			gross = (pos.AveragePrice - fill.Price) * closing
		}
		res.ClosedQty = closing

		remaining := pos.Quantity + signed
		switch {
		case remaining == 0 || abs(remaining) < dust(closing):
			pos = models.Position{}
		case !sameSign(remaining, pos.Quantity):
			pos = models.Position{Quantity: remaining, AveragePrice: fill.Price}
			res.Flipped = true
		default:
			pos.Quantity = remaining
		}
	}

	pnl := gross - fee
	if pnl != 0 {
		pnl *= l.Noise.Multiplier()
	}
	res.RealizedPnL = pnl

	if pos.Quantity == 0 {
		delete(book, fill.Symbol)
		res.Closed = true
	} else {
		book[fill.Symbol] = pos
	}
	res.Position = pos
	return res
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// dust is the float residue below which a reduced position counts as flat.
func dust(qty float64) float64 {
	return qty * 1e-12
}
