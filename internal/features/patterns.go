package features

import (
	"math"

	"genx-signal-engine/internal/marketdata"
)

// patternSlot is one named entry in the candlestick pattern catalogue.
// Unknown patterns contribute a zero-valued slot, never an exception —
// this catalogue is a curated portable subset; any pattern name absent
// here still has a home as a zero slot via PatternVector's fixed width.
type patternSlot struct {
	name   string
	detect func(bars marketdata.Window, end int) float64 // returns a value in [0,1]; 0 when absent
}

func body(b marketdata.Bar) float64      { return math.Abs(b.Close - b.Open) }
func upperShadow(b marketdata.Bar) float64 { return b.High - math.Max(b.Open, b.Close) }
func lowerShadow(b marketdata.Bar) float64 { return math.Min(b.Open, b.Close) - b.Low }

func isHammer(bars marketdata.Window, end int) float64 {
	if end < 1 {
		return 0
	}
	c := bars[end-1]
	bd := body(c)
	if bd == 0 {
		return 0
	}
	if lowerShadow(c) >= bd*2 && upperShadow(c) <= bd*0.5 {
		return 1
	}
	return 0
}

func isInvertedHammer(bars marketdata.Window, end int) float64 {
	if end < 1 {
		return 0
	}
	c := bars[end-1]
	bd := body(c)
	if bd == 0 {
		return 0
	}
	if upperShadow(c) >= bd*2 && lowerShadow(c) <= bd*0.5 {
		return 1
	}
	return 0
}

func isDoji(bars marketdata.Window, end int) float64 {
	if end < 1 {
		return 0
	}
	c := bars[end-1]
	rng := c.High - c.Low
	if rng == 0 {
		return 0
	}
	if body(c) <= rng*0.05 {
		return 1
	}
	return 0
}

func isMarubozu(bars marketdata.Window, end int) float64 {
	if end < 1 {
		return 0
	}
	c := bars[end-1]
	rng := c.High - c.Low
	if rng == 0 {
		return 0
	}
	if body(c) >= rng*0.9 {
		return 1
	}
	return 0
}

func isBullishEngulfing(bars marketdata.Window, end int) float64 {
	if end < 2 {
		return 0
	}
	prev, cur := bars[end-2], bars[end-1]
	if prev.Close < prev.Open && cur.Close > cur.Open &&
		cur.Open <= prev.Close && cur.Close >= prev.Open {
		return 1
	}
	return 0
}

func isBearishEngulfing(bars marketdata.Window, end int) float64 {
	if end < 2 {
		return 0
	}
	prev, cur := bars[end-2], bars[end-1]
	if prev.Close > prev.Open && cur.Close < cur.Open &&
		cur.Open >= prev.Close && cur.Close <= prev.Open {
		return 1
	}
	return 0
}

func isThreeWhiteSoldiers(bars marketdata.Window, end int) float64 {
	if end < 3 {
		return 0
	}
	for i := end - 3; i < end; i++ {
		if bars[i].Close <= bars[i].Open {
			return 0
		}
	}
	if bars[end-1].Close > bars[end-2].Close && bars[end-2].Close > bars[end-3].Close {
		return 1
	}
	return 0
}

func isThreeBlackCrows(bars marketdata.Window, end int) float64 {
	if end < 3 {
		return 0
	}
	for i := end - 3; i < end; i++ {
		if bars[i].Close >= bars[i].Open {
			return 0
		}
	}
	if bars[end-1].Close < bars[end-2].Close && bars[end-2].Close < bars[end-3].Close {
		return 1
	}
	return 0
}

// catalogue is the fixed-width, fixed-order pattern slot list used by
// PatternVector. New slots must only be appended, never reordered, so
// saved model artifacts stay compatible with the feature layout.
var catalogue = []patternSlot{
	{"hammer", isHammer},
	{"inverted_hammer", isInvertedHammer},
	{"doji", isDoji},
	{"marubozu", isMarubozu},
	{"bullish_engulfing", isBullishEngulfing},
	{"bearish_engulfing", isBearishEngulfing},
	{"three_white_soldiers", isThreeWhiteSoldiers},
	{"three_black_crows", isThreeBlackCrows},
}

// PatternVector evaluates the full catalogue at index end (exclusive),
// mapping every sign-valued detector into [0,1].
func PatternVector(bars marketdata.Window, end int) []float64 {
	out := make([]float64, len(catalogue))
	for i, slot := range catalogue {
		out[i] = slot.detect(bars, end)
	}
	return out
}

// PatternNames returns the fixed-order catalogue names, for diagnostics.
func PatternNames() []string {
	names := make([]string, len(catalogue))
	for i, s := range catalogue {
		names[i] = s.name
	}
	return names
}
