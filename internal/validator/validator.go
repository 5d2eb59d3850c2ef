// Package validator implements the multi-timeframe validation pass: it
// requires confluence across K of N timeframes, suppresses duplicate
// signals within a dedupe window, and enforces a system-wide concurrency
// cap by keeping the strongest surviving signals across every symbol.
package validator

import (
	"sort"
	"time"

	"genx-signal-engine/internal/signal"
)

// Policy is the tunable validation configuration.
type Policy struct {
	// RequiredAgreement is K: the minimum number of timeframes whose
	// signal must agree on Side for the composite to survive.
	RequiredAgreement int
	// DedupeWindow is T_dedupe: a new signal for a symbol is suppressed
	// if an ACTIVE signal for the same symbol and side was created
	// within this window.
	DedupeWindow time.Duration
	// MaxConcurrentSignals caps the number of ACTIVE signals retained
	// system-wide, across every symbol; when exceeded, the weakest are
	// dropped.
	MaxConcurrentSignals int
}

// TimeframeSignal pairs a per-timeframe candidate with its source
// timeframe, so the confluence check can count distinct timeframes.
type TimeframeSignal struct {
	Timeframe string
	Signal    *signal.Signal
}

// Confluence evaluates whether a set of per-timeframe candidate signals
// for one symbol agree strongly enough to produce a composite signal. It
// returns the highest-confidence candidate among the agreeing side, or
// nil if fewer than Policy.RequiredAgreement timeframes agree.
func Confluence(candidates []TimeframeSignal, policy Policy) *signal.Signal {
	if len(candidates) == 0 {
		return nil
	}
	bySide := map[signal.Side][]TimeframeSignal{}
	for _, c := range candidates {
		if c.Signal == nil {
			continue
		}
		bySide[c.Signal.Side] = append(bySide[c.Signal.Side], c)
	}

	var best []TimeframeSignal
	for _, group := range bySide {
		if len(group) > len(best) {
			best = group
		}
	}
	if len(best) < policy.RequiredAgreement {
		return nil
	}

	winner := best[0].Signal
	for _, c := range best[1:] {
		if c.Signal.Confidence > winner.Confidence {
			winner = c.Signal
		}
	}
	winner.TechnicalConfluence = len(best)
	return winner
}

// IsDuplicate reports whether candidate duplicates an existing ACTIVE
// signal for the same symbol and side created within the dedupe window.
func IsDuplicate(candidate *signal.Signal, existing []*signal.Signal, policy Policy, now time.Time) bool {
	for _, e := range existing {
		if e.Symbol != candidate.Symbol || e.Side != candidate.Side {
			continue
		}
		if !e.IsActive(now) {
			continue
		}
		if now.Sub(e.CreatedAt) < policy.DedupeWindow {
			return true
		}
	}
	return false
}

// EnforceCap trims the system-wide active signal set down to
// MaxConcurrentSignals, keeping the strongest ones across every symbol.
// Signals are ranked by (Strength tier, Confidence) descending, with a
// newer CreatedAt breaking exact ties.
func EnforceCap(active []*signal.Signal, policy Policy) (kept, dropped []*signal.Signal) {
	if policy.MaxConcurrentSignals <= 0 || len(active) <= policy.MaxConcurrentSignals {
		return active, nil
	}
	ranked := make([]*signal.Signal, len(active))
	copy(ranked, active)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := ranked[i], ranked[j]
		if strengthRank(si.Strength) != strengthRank(sj.Strength) {
			return strengthRank(si.Strength) > strengthRank(sj.Strength)
		}
		if si.Confidence != sj.Confidence {
			return si.Confidence > sj.Confidence
		}
		return si.CreatedAt.After(sj.CreatedAt)
	})
	return ranked[:policy.MaxConcurrentSignals], ranked[policy.MaxConcurrentSignals:]
}

func strengthRank(s signal.Strength) int {
	switch s {
	case signal.VeryStrong:
		return 4
	case signal.Strong:
		return 3
	case signal.Moderate:
		return 2
	default:
		return 1
	}
}
