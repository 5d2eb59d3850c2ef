package bulletin

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"genx-signal-engine/internal/signal"
)

func sampleSignal(id, symbol string, createdAt time.Time) *signal.Signal {
	return &signal.Signal{
		ID: id, Symbol: symbol, Side: signal.Buy, Strength: signal.Strong,
		Entry: 1.1, Stop: 1.09, Target: 1.12, Confidence: 0.8, RRRatio: 2.0,
		Timeframe: "H1", CreatedAt: createdAt, Expiry: createdAt.Add(4 * time.Hour),
		MarketCondition: signal.Uptrend, TechnicalConfluence: 2, PositionSizeFrac: 0.05,
		MaxRiskFrac: 0.02, Status: signal.Active,
	}
}

func TestUpdateWritesAllFormats(t *testing.T) {
	dir := t.TempDir()
	board, err := New(dir, Policy{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	now := time.Now()
	if err := board.Update(now, []*signal.Signal{sampleSignal("sig-1", "EURUSD", now)}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	for _, name := range []string{
		"workbook_active.csv", "workbook_history.csv", "workbook_summary.csv",
		"genx_signals.csv", "broker_signals.csv", "broker_signals_enhanced.csv", "genx_signals.json",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s to exist: %v", name, err)
		}
	}
}

func TestUpdateIsIdempotentByteIdentical(t *testing.T) {
	dir := t.TempDir()
	board, err := New(dir, Policy{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	now := time.Now()
	sig := sampleSignal("sig-1", "EURUSD", now)

	if err := board.Update(now, []*signal.Signal{sig}); err != nil {
		t.Fatalf("first Update failed: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "broker_signals.csv"))
	if err != nil {
		t.Fatalf("read first: %v", err)
	}

	if err := board.Update(now, nil); err != nil {
		t.Fatalf("second Update failed: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "broker_signals.csv"))
	if err != nil {
		t.Fatalf("read second: %v", err)
	}

	if string(first) != string(second) {
		t.Fatalf("expected byte-identical repeated writes, got:\n%s\nvs\n%s", first, second)
	}
}

func TestEvictsExpiredSignals(t *testing.T) {
	dir := t.TempDir()
	board, err := New(dir, Policy{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	past := time.Now().Add(-5 * time.Hour)
	sig := sampleSignal("sig-expired", "EURUSD", past)
	sig.Expiry = past.Add(time.Hour)

	now := time.Now()
	if err := board.Update(now, []*signal.Signal{sig}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(board.active) != 0 {
		t.Fatalf("expected expired signal to be evicted, got %d active", len(board.active))
	}
}

func TestEnforcesMaxSignalsCap(t *testing.T) {
	dir := t.TempDir()
	board, err := New(dir, Policy{MaxSignals: 2})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	now := time.Now()
	signals := []*signal.Signal{
		sampleSignal("sig-1", "EURUSD", now.Add(-3*time.Minute)),
		sampleSignal("sig-2", "EURUSD", now.Add(-2*time.Minute)),
		sampleSignal("sig-3", "EURUSD", now.Add(-1*time.Minute)),
	}
	if err := board.Update(now, signals); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(board.active) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(board.active))
	}
	if _, ok := board.active["sig-1"]; ok {
		t.Fatal("expected oldest signal to be evicted")
	}
}
