package strategy

import "bot-controller-go/internal/models"

const (
	RSIPeriod    = 14
	MACDFast     = 12
	MACDSlow     = 26
	MACDSignal   = 9
	SMAPeriod    = 20
	MinDataCount = MACDSlow + MACDSignal
)

// Indicators are the values a strategy decides on.
type Indicators struct {
	RSI           float64
	MACD          float64 // MACD line, fast EMA minus slow EMA
	MACDSignal    float64
	MACDHistogram float64
	SMA20         float64
}

// Closes extracts close prices in candle order.
func Closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Compute derives all indicators from closes. ok is false when there is not
// enough history for MACD with its signal line.
func Compute(closes []float64) (Indicators, bool) {
	if len(closes) < MinDataCount {
		return Indicators{}, false
	}
	macd, signal, hist := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	return Indicators{
		RSI:           RSI(closes, RSIPeriod),
		MACD:          macd,
		MACDSignal:    signal,
		MACDHistogram: hist,
		SMA20:         SMA(closes, SMAPeriod),
	}, true
}

// SMA is the mean of the last period closes.
func SMA(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return 0
	}
	var sum float64
	for _, p := range closes[len(closes)-period:] {
		sum += p
	}
	return sum / float64(period)
}

// EMA returns the exponential moving average series, seeded with the SMA of
// the first period values. The result has len(closes)-period+1 entries.
func EMA(closes []float64, period int) []float64 {
	if period <= 0 || len(closes) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(closes)-period+1)

	prev := SMA(closes[:period], period)
	out = append(out, prev)
	for _, p := range closes[period:] {
		prev = p*k + prev*(1-k)
		out = append(out, prev)
	}
	return out
}

// RSI uses Wilder smoothing. A series with no losses is 100, one with no
// movement at all is 50.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) <= period {
		return 50
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		var g, l float64
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
	}

	switch {
	case avgGain == 0 && avgLoss == 0:
		return 50
	case avgLoss == 0:
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD returns the latest MACD line, signal line and histogram.
func MACD(closes []float64, fast, slow, signal int) (float64, float64, float64) {
	fastEMA := EMA(closes, fast)
	slowEMA := EMA(closes, slow)
	if len(slowEMA) == 0 {
		return 0, 0, 0
	}

	// align the fast series to the slow one: both end at the last close
	offset := len(fastEMA) - len(slowEMA)
	line := make([]float64, len(slowEMA))
	for i := range slowEMA {
		line[i] = fastEMA[i+offset] - slowEMA[i]
	}

	last := line[len(line)-1]
	sig := EMA(line, signal)
	if len(sig) == 0 {
		return last, 0, 0
	}
	s := sig[len(sig)-1]
	return last, s, last - s
}
