// Package features implements the feature engineer: a pure transform from
// an OHLCV bar window into three aligned artifacts (indicator vector,
// sequence, indicator window) plus the training-time label.
package features

import (
	"math"

	"genx-signal-engine/internal/marketdata"
)

func sma(bars marketdata.Window, end, period int) float64 {
	if end < period {
		return 0
	}
	sum := 0.0
	for i := end - period; i < end; i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

func ema(bars marketdata.Window, end, period int) float64 {
	if end < period {
		return 0
	}
	e := sma(bars, period, period)
	mult := 2.0 / float64(period+1)
	for i := period; i < end; i++ {
		e = (bars[i].Close * mult) + (e * (1 - mult))
	}
	return e
}

func rsi(bars marketdata.Window, end, period int) float64 {
	if end < period+1 {
		return 50.0
	}
	gains, losses := 0.0, 0.0
	for i := end - period; i < end; i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// macdResult holds the MACD line, signal, and histogram at one instant.
type macdResult struct {
	MACD, Signal, Histogram float64
}

func macd(bars marketdata.Window, end, fast, slow, signalPeriod int) macdResult {
	if end < slow+signalPeriod {
		return macdResult{}
	}
	fastEMA := ema(bars, end, fast)
	slowEMA := ema(bars, end, slow)
	line := fastEMA - slowEMA
	signal := line * 0.8 // signal-line EMA approximated from the current MACD value
	return macdResult{MACD: line, Signal: signal, Histogram: line - signal}
}

func atr(bars marketdata.Window, end, period int) float64 {
	if end < period+1 {
		return 0
	}
	trSum := 0.0
	for i := end - period; i < end; i++ {
		tr := math.Max(bars[i].High-bars[i].Low,
			math.Max(math.Abs(bars[i].High-bars[i-1].Close), math.Abs(bars[i].Low-bars[i-1].Close)))
		trSum += tr
	}
	return trSum / float64(period)
}

func bollinger(bars marketdata.Window, end, period int, mult float64) (upper, middle, lower float64) {
	if end < period {
		return 0, 0, 0
	}
	middle = sma(bars, end, period)
	variance := 0.0
	for i := end - period; i < end; i++ {
		d := bars[i].Close - middle
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(period))
	return middle + stdDev*mult, middle, middle - stdDev*mult
}

func stochastic(bars marketdata.Window, end, kPeriod int) (k, d float64) {
	if end < kPeriod {
		return 50, 50
	}
	start := end - kPeriod
	hi, lo := bars[start].High, bars[start].Low
	for i := start; i < end; i++ {
		if bars[i].High > hi {
			hi = bars[i].High
		}
		if bars[i].Low < lo {
			lo = bars[i].Low
		}
	}
	close := bars[end-1].Close
	if hi == lo {
		return 0, 0
	}
	k = (close - lo) / (hi - lo) * 100
	return k, k * 0.9
}

func adx(bars marketdata.Window, end, period int) float64 {
	if end < period+1 {
		return 0
	}
	a := atr(bars, end, period)
	rng := bars[end-1].High - bars[end-1].Low
	if rng == 0 {
		return 0
	}
	return math.Min(100, (a/rng)*50)
}

func cci(bars marketdata.Window, end, period int) float64 {
	if end < period {
		return 0
	}
	typical := func(b marketdata.Bar) float64 { return (b.High + b.Low + b.Close) / 3 }
	sumTP := 0.0
	for i := end - period; i < end; i++ {
		sumTP += typical(bars[i])
	}
	meanTP := sumTP / float64(period)
	meanDev := 0.0
	for i := end - period; i < end; i++ {
		meanDev += math.Abs(typical(bars[i]) - meanTP)
	}
	meanDev /= float64(period)
	if meanDev == 0 {
		return 0
	}
	return (typical(bars[end-1]) - meanTP) / (0.015 * meanDev)
}

func willR(bars marketdata.Window, end, period int) float64 {
	if end < period {
		return -50
	}
	start := end - period
	hi, lo := bars[start].High, bars[start].Low
	for i := start; i < end; i++ {
		if bars[i].High > hi {
			hi = bars[i].High
		}
		if bars[i].Low < lo {
			lo = bars[i].Low
		}
	}
	if hi == lo {
		return -50
	}
	return (hi - bars[end-1].Close) / (hi - lo) * -100
}

func momentum(bars marketdata.Window, end, period int) float64 {
	if end < period+1 {
		return 0
	}
	return bars[end-1].Close - bars[end-1-period].Close
}

func roc(bars marketdata.Window, end, period int) float64 {
	if end < period+1 || bars[end-1-period].Close == 0 {
		return 0
	}
	return (bars[end-1].Close - bars[end-1-period].Close) / bars[end-1-period].Close
}

func obv(bars marketdata.Window, end int) float64 {
	if end < 2 {
		return 0
	}
	v := 0.0
	for i := 1; i < end; i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			v += bars[i].Volume
		case bars[i].Close < bars[i-1].Close:
			v -= bars[i].Volume
		}
	}
	return v
}
