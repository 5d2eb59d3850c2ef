package signal

import (
	"testing"
	"time"

	"genx-signal-engine/internal/errs"
	"genx-signal-engine/internal/model"
)

func basePolicy() RiskPolicy {
	return RiskPolicy{
		MaxRiskPerTrade:    0.02,
		MaxVolumePerTrade:  1000,
		MinConfidence:      0.6,
		SignalExpiry:       4 * time.Hour,
		BrokerMinIncrement: 0.0001,
	}
}

func baseSnapshot() MarketSnapshot {
	return MarketSnapshot{
		CurrentPrice: 1.1000,
		ATR14:        0.0020,
		Condition:    Uptrend,
		SMA20:        1.0990,
		SMA50:        1.0950,
		RSI14:        55,
		MACD:         0.0003,
		MACDSignal:   0.0001,
	}
}

func TestNewBuySignal(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	probs := model.Probs{0.1, 0.1, 0.8}
	sig, err := New("EURUSD", "H1", probs, 10000, baseSnapshot(), basePolicy(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Side != Buy {
		t.Fatalf("expected BUY, got %s", sig.Side)
	}
	if !(sig.Stop < sig.Entry && sig.Entry < sig.Target) {
		t.Fatalf("invalid BUY levels: stop=%v entry=%v target=%v", sig.Stop, sig.Entry, sig.Target)
	}
	if sig.RRRatio < 1.5 {
		t.Fatalf("rr ratio below minimum: %v", sig.RRRatio)
	}
	if err := sig.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !sig.Expiry.Equal(now.Add(4 * time.Hour)) {
		t.Fatalf("unexpected expiry: %v", sig.Expiry)
	}
}

func TestNewSellSignal(t *testing.T) {
	now := time.Now()
	probs := model.Probs{0.8, 0.1, 0.1}
	snap := baseSnapshot()
	snap.Condition = Downtrend
	sig, err := New("EURUSD", "H1", probs, 10000, snap, basePolicy(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig.Side != Sell {
		t.Fatalf("expected SELL, got %s", sig.Side)
	}
	if !(sig.Target < sig.Entry && sig.Entry < sig.Stop) {
		t.Fatalf("invalid SELL levels: stop=%v entry=%v target=%v", sig.Stop, sig.Entry, sig.Target)
	}
}

func TestNewRejectsFlat(t *testing.T) {
	now := time.Now()
	probs := model.Probs{0.2, 0.7, 0.1}
	_, err := New("EURUSD", "H1", probs, 10000, baseSnapshot(), basePolicy(), now)
	if errs.KindOf(err) != errs.PolicyReject {
		t.Fatalf("expected PolicyReject, got %v", err)
	}
}

func TestNewRejectsLowConfidence(t *testing.T) {
	now := time.Now()
	probs := model.Probs{0.1, 0.45, 0.45}
	_, err := New("EURUSD", "H1", probs, 10000, baseSnapshot(), basePolicy(), now)
	if errs.KindOf(err) != errs.PolicyReject {
		t.Fatalf("expected PolicyReject, got %v", err)
	}
}

func TestLevelMultipliersTable(t *testing.T) {
	cases := []struct {
		cond   MarketCondition
		sl, tp float64
	}{
		{HighVolatility, 2.5, 4.0},
		{Uptrend, 2.0, 3.5},
		{Downtrend, 2.0, 3.5},
		{Sideways, 1.5, 3.0},
		{Mixed, 1.5, 3.0},
	}
	for _, c := range cases {
		sl, tp := levelMultipliers(c.cond)
		if sl != c.sl || tp != c.tp {
			t.Errorf("%s: got (%v,%v), want (%v,%v)", c.cond, sl, tp, c.sl, c.tp)
		}
	}
}

func TestStrengthThresholds(t *testing.T) {
	if got := strengthOf(0.95, 3.0); got != VeryStrong {
		t.Errorf("expected VERY_STRONG, got %s", got)
	}
	if got := strengthOf(0.6, 1.5); got != Weak {
		t.Errorf("expected WEAK, got %s", got)
	}
}

func TestConfluenceCountsAgreement(t *testing.T) {
	snap := baseSnapshot()
	n := Confluence(Buy, snap)
	if n != 3 {
		t.Fatalf("expected full confluence of 3, got %d", n)
	}
}

func TestToEAPayloadRoundsAndMapsFields(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	probs := model.Probs{0.1, 0.1, 0.8}
	sig, err := New("EURUSD", "H1", probs, 10000, baseSnapshot(), basePolicy(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := sig.ToEAPayload()
	if p.Symbol != "EURUSD" || p.Signal != Buy {
		t.Fatalf("unexpected symbol/signal: %+v", p)
	}
	if p.Strength != strengthRank(sig.Strength) {
		t.Fatalf("strength rank mismatch: %d vs %d", p.Strength, strengthRank(sig.Strength))
	}
	if p.Magic <= 0 {
		t.Fatalf("expected positive magic number, got %d", p.Magic)
	}
	if p.Timestamp != "2026-01-01 12:00:00" {
		t.Fatalf("unexpected timestamp format: %s", p.Timestamp)
	}
}

func TestToEAPayloadMagicIsStablePerSignal(t *testing.T) {
	now := time.Now()
	probs := model.Probs{0.1, 0.1, 0.8}
	sig, err := New("EURUSD", "H1", probs, 10000, baseSnapshot(), basePolicy(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a := sig.ToEAPayload().Magic
	b := sig.ToEAPayload().Magic
	if a != b {
		t.Fatalf("expected stable magic number across calls, got %d and %d", a, b)
	}
}
