package features

import (
	"math"
	"time"

	"genx-signal-engine/internal/marketdata"
)

// LongestLookback is the indicator warm-up allowance reserved in every
// window (at least the longest lookback the indicators here use, SMA50),
// used to compute the minimum window length required: N + H +
// LongestLookback bars.
const LongestLookback = 200

// Label is the three-class forward-return label used during training.
type Label int8

const (
	LabelDown Label = -1
	LabelFlat Label = 0
	LabelUp   Label = 1
)

// Row is one aligned instant's worth of the three parallel artifacts plus
// the training-time label.
type Row struct {
	Timestamp       int64 // unix nanos of the bar this row is anchored to
	IndicatorVector []float64
	Sequence        [][5]float64 // shape (N, 5): open, high, low, close, volume (min-max normalized)
	IndicatorWindow [][4]float64 // shape (N, 4): close, RSI, MACD line, MACD histogram (per-window min-max)
	Label           Label
	HasLabel        bool
	Masked          bool // true if any source value was non-finite and replaced with a neutral default
}

// IndicatorStats holds the z-score fitting parameters for the flat
// indicator vector, fit once on a training set and reused at inference.
type IndicatorStats struct {
	Mean []float64
	Std  []float64
}

// SequenceStats holds the min-max fitting parameters for the OHLCV
// sequence artifact, fit once on training bars and reused at inference.
type SequenceStats struct {
	Min [5]float64
	Max [5]float64
}

// Engineer is the pure transform from a bar window to the three
// aligned artifacts. It is configured with a sequence length, a
// training horizon, and a label threshold, and optionally fitted
// normalization stats.
type Engineer struct {
	SequenceLength int
	Horizon        int
	Epsilon        float64

	indicatorStats *IndicatorStats
	sequenceStats  *SequenceStats
}

// NewEngineer builds an Engineer with the given sequence length, forward
// return horizon, and label threshold epsilon (default ~0.001).
func NewEngineer(sequenceLength, horizon int, epsilon float64) *Engineer {
	return &Engineer{SequenceLength: sequenceLength, Horizon: horizon, Epsilon: epsilon}
}

// MinBars is the minimum window length required to produce exactly one row.
func (e *Engineer) MinBars() int {
	return e.SequenceLength + e.Horizon + LongestLookback
}

// FitIndicatorStats fits z-score stats for the flat indicator vector on a
// training window, to be reused at inference.
func (e *Engineer) FitIndicatorStats(bars marketdata.Window) {
	if len(bars) < e.MinBars() {
		return
	}
	var sum, sumSq []float64
	count := 0
	for end := e.MinBars(); end <= len(bars); end++ {
		v := e.rawIndicatorVector(bars, end)
		if sum == nil {
			sum = make([]float64, len(v))
			sumSq = make([]float64, len(v))
		}
		for i, x := range v {
			sum[i] += x
			sumSq[i] += x * x
		}
		count++
	}
	if count == 0 {
		return
	}
	mean := make([]float64, len(sum))
	std := make([]float64, len(sum))
	for i := range sum {
		mean[i] = sum[i] / float64(count)
		variance := sumSq[i]/float64(count) - mean[i]*mean[i]
		if variance < 0 {
			variance = 0
		}
		std[i] = math.Sqrt(variance)
		if std[i] == 0 {
			std[i] = 1
		}
	}
	e.indicatorStats = &IndicatorStats{Mean: mean, Std: std}
}

// FitSequenceStats fits min-max stats for the OHLCV sequence artifact on
// training bars, to be reused at inference.
func (e *Engineer) FitSequenceStats(bars marketdata.Window) {
	if len(bars) == 0 {
		return
	}
	stats := &SequenceStats{}
	for i := range stats.Min {
		stats.Min[i] = math.Inf(1)
		stats.Max[i] = math.Inf(-1)
	}
	for _, b := range bars {
		vals := [5]float64{b.Open, b.High, b.Low, b.Close, b.Volume}
		for i, v := range vals {
			if v < stats.Min[i] {
				stats.Min[i] = v
			}
			if v > stats.Max[i] {
				stats.Max[i] = v
			}
		}
	}
	e.sequenceStats = stats
}

// Generate produces the aligned rows for every t where all three
// artifacts are defined. Fewer than MinBars() bars yields zero rows and
// no error; a window of exactly MinBars() yields exactly one row.
func (e *Engineer) Generate(bars marketdata.Window) []Row {
	min := e.MinBars()
	if len(bars) < min {
		return nil
	}

	rows := make([]Row, 0, len(bars)-min+1)
	for end := min; end <= len(bars); end++ {
		row := Row{Timestamp: bars[end-1].Timestamp.UnixNano()}

		raw := e.rawIndicatorVector(bars, end)
		row.IndicatorVector = e.normalizeIndicatorVector(raw)

		seq, masked := e.buildSequence(bars, end)
		row.Sequence = seq
		row.Masked = row.Masked || masked

		win, masked2 := e.buildIndicatorWindow(bars, end)
		row.IndicatorWindow = win
		row.Masked = row.Masked || masked2

		if end+e.Horizon <= len(bars) {
			fwd := bars[end+e.Horizon-1].Close
			cur := bars[end-1].Close
			if cur != 0 {
				ret := (fwd - cur) / cur
				row.HasLabel = true
				switch {
				case ret > e.Epsilon:
					row.Label = LabelUp
				case ret < -e.Epsilon:
					row.Label = LabelDown
				default:
					row.Label = LabelFlat
				}
			}
		}

		rows = append(rows, row)
	}
	return rows
}

// rawIndicatorVector computes the unnormalized flat indicator vector at
// index end (exclusive): price ratios, MAs, oscillators, and the
// candlestick pattern catalogue.
func (e *Engineer) rawIndicatorVector(bars marketdata.Window, end int) []float64 {
	close := bars[end-1].Close
	sma20 := sma(bars, end, 20)
	sma50 := sma(bars, end, 50)
	ema12 := ema(bars, end, 12)
	rsi14 := rsi(bars, end, 14)
	m := macd(bars, end, 12, 26, 9)
	up, mid, low := bollinger(bars, end, 20, 2.0)
	atr14 := atr(bars, end, 14)
	cci20 := cci(bars, end, 20)
	wr14 := willR(bars, end, 14)
	adx14 := adx(bars, end, 14)
	mom10 := momentum(bars, end, 10)
	roc10 := roc(bars, end, 10)
	k, d := stochastic(bars, end, 14)
	obvVal := obv(bars, end)

	ratio := func(a, b float64) float64 {
		if b == 0 {
			return 0
		}
		return a / b
	}

	vec := []float64{
		ratio(close, sma20),
		ratio(close, sma50),
		ratio(sma20, sma50),
		ratio(close, ema12),
		rsi14,
		m.MACD, m.Signal, m.Histogram,
		ratio(close-low, up-low),
		atr14,
		cci20,
		wr14,
		adx14,
		mom10,
		roc10,
		k, d,
		obvVal,
	}
	vec = sanitize(vec)
	vec = append(vec, PatternVector(bars, end)...)
	vec = append(vec, sessionVector(bars[end-1].Timestamp)...)
	_ = mid
	return vec
}

// sessionVector reports which FX trading sessions are open at ts (UTC
// hour ranges), as a one-hot-ish float block: London, New York, Asian,
// and the London/New York overlap. Grounded on ensemble_predictor.py's
// market-session feature block (original_source).
func sessionVector(ts time.Time) []float64 {
	h := ts.UTC().Hour()
	london := 0.0
	if h >= 8 && h < 16 {
		london = 1.0
	}
	newYork := 0.0
	if h >= 13 && h < 21 {
		newYork = 1.0
	}
	asian := 0.0
	if h < 8 || h >= 21 {
		asian = 1.0
	}
	overlap := 0.0
	if h >= 13 && h < 16 {
		overlap = 1.0
	}
	return []float64{london, newYork, asian, overlap}
}

// normalizeIndicatorVector applies z-score normalization using fitted
// stats; if no stats have been fit, the raw vector is returned unchanged
// (the caller must fit before relying on scale-comparable output).
func (e *Engineer) normalizeIndicatorVector(raw []float64) []float64 {
	if e.indicatorStats == nil || len(e.indicatorStats.Mean) != len(raw) {
		return raw
	}
	out := make([]float64, len(raw))
	for i, x := range raw {
		out[i] = (x - e.indicatorStats.Mean[i]) / e.indicatorStats.Std[i]
	}
	return out
}

// buildSequence returns the last SequenceLength bars as min-max
// normalized OHLCV rows, shape (N, 5).
func (e *Engineer) buildSequence(bars marketdata.Window, end int) ([][5]float64, bool) {
	n := e.SequenceLength
	seq := make([][5]float64, n)
	masked := false
	start := end - n
	for i := 0; i < n; i++ {
		b := bars[start+i]
		vals := [5]float64{b.Open, b.High, b.Low, b.Close, b.Volume}
		for j, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
				masked = true
			}
			if e.sequenceStats != nil {
				rng := e.sequenceStats.Max[j] - e.sequenceStats.Min[j]
				if rng > 0 {
					v = (v - e.sequenceStats.Min[j]) / rng
				} else {
					v = 0
				}
			}
			seq[i][j] = v
		}
	}
	return seq, masked
}

// buildIndicatorWindow returns the last SequenceLength bars' {close, RSI,
// MACD line, MACD histogram} channels, min-max normalized against that
// window only (so the shape is scale-invariant regardless of price
// level).
func (e *Engineer) buildIndicatorWindow(bars marketdata.Window, end int) ([][4]float64, bool) {
	n := e.SequenceLength
	start := end - n
	raw := make([][4]float64, n)
	masked := false
	for i := 0; i < n; i++ {
		t := start + i + 1
		if t < 1 {
			t = 1
		}
		c := bars[t-1].Close
		r := rsi(bars, t, 14)
		m := macd(bars, t, 12, 26, 9)
		vals := [4]float64{c, r, m.MACD, m.Histogram}
		for j, v := range vals {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				vals[j] = neutralDefault(j)
				masked = true
			}
		}
		raw[i] = vals
	}

	var mins, maxs [4]float64
	for j := 0; j < 4; j++ {
		mins[j], maxs[j] = raw[0][j], raw[0][j]
		for i := 1; i < n; i++ {
			if raw[i][j] < mins[j] {
				mins[j] = raw[i][j]
			}
			if raw[i][j] > maxs[j] {
				maxs[j] = raw[i][j]
			}
		}
	}
	out := make([][4]float64, n)
	for i := 0; i < n; i++ {
		for j := 0; j < 4; j++ {
			rng := maxs[j] - mins[j]
			if rng > 0 {
				out[i][j] = (raw[i][j] - mins[j]) / rng
			} else {
				out[i][j] = 0
			}
		}
	}
	return out, masked
}

// neutralDefault returns the neutral replacement value for channel j
// (close, RSI, MACD, MACD histogram) when a source value is non-finite.
func neutralDefault(channel int) float64 {
	switch channel {
	case 1:
		return 50.0 // RSI neutral
	default:
		return 0.0
	}
}

func sanitize(v []float64) []float64 {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			v[i] = 0
		}
	}
	return v
}
