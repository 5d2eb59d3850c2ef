package features

import "genx-signal-engine/internal/marketdata"

// ATR exposes the average-true-range estimate for external callers (the
// signal constructor uses this over the last 14 bars to derive its risk
// unit).
func ATR(bars marketdata.Window, period int) float64 {
	return atr(bars, len(bars), period)
}

// SMA exposes the simple moving average over the trailing period ending
// at the last bar.
func SMA(bars marketdata.Window, period int) float64 {
	return sma(bars, len(bars), period)
}

// RSI exposes the Relative Strength Index over the trailing period ending
// at the last bar.
func RSI(bars marketdata.Window, period int) float64 {
	return rsi(bars, len(bars), period)
}

// MACDLine and MACDSignal expose the MACD line and signal components
// ending at the last bar.
func MACDLine(bars marketdata.Window) float64 {
	return macd(bars, len(bars), 12, 26, 9).MACD
}

func MACDSignal(bars marketdata.Window) float64 {
	return macd(bars, len(bars), 12, 26, 9).Signal
}
