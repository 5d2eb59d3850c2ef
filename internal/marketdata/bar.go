// Package marketdata defines the OHLCV data model and the read-only
// adapter interface the scheduler uses to fetch historical windows and
// current price snapshots. The adapter itself is an external
// collaborator; this package only defines the contract plus a
// deterministic mock used by tests and by components that need
// something to exercise against.
package marketdata

import (
	"fmt"
	"time"
)

// Bar is one immutable OHLCV observation on one timeframe.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Validate enforces the OHLCV invariants.
func (b Bar) Validate() error {
	hi := b.Open
	if b.Close > hi {
		hi = b.Close
	}
	lo := b.Open
	if b.Close < lo {
		lo = b.Close
	}
	if !(b.High >= hi) {
		return fmt.Errorf("bar %s: high %.6f below max(open,close) %.6f", b.Timestamp, b.High, hi)
	}
	if !(lo >= b.Low) {
		return fmt.Errorf("bar %s: min(open,close) %.6f below low %.6f", b.Timestamp, lo, b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s: negative volume %.6f", b.Timestamp, b.Volume)
	}
	return nil
}

// Window is a monotonically-ordered slice of Bars for one (symbol, timeframe).
type Window []Bar

// ValidateSeries checks per-bar invariants and strict timestamp monotonicity.
func (w Window) ValidateSeries() error {
	var prev time.Time
	for i, b := range w {
		if err := b.Validate(); err != nil {
			return err
		}
		if i > 0 && !b.Timestamp.After(prev) {
			return fmt.Errorf("bar %d: timestamp %s not strictly after previous %s", i, b.Timestamp, prev)
		}
		prev = b.Timestamp
	}
	return nil
}

// Quote is the current bid/ask snapshot for a symbol.
type Quote struct {
	Bid    float64
	Ask    float64
	Spread float64
	Ts     time.Time
}

// Tick is an asynchronous price update emitted by a subscription stream.
type Tick struct {
	Symbol string
	Price  float64
	Ts     time.Time
}

// Timeframe is a textual timeframe code (e.g. "M15", "H1", "H4", "D1").
type Timeframe string

const (
	M15 Timeframe = "M15"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
)
