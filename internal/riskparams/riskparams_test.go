package riskparams

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultSnapshotIsSane(t *testing.T) {
	snap := Default()
	if snap.MaxRiskPerTrade <= 0 || snap.MaxRiskPerTrade >= 1 {
		t.Fatalf("unexpected default max risk per trade: %v", snap.MaxRiskPerTrade)
	}
	if snap.RequiredAgreement < 1 {
		t.Fatalf("expected required agreement >= 1, got %d", snap.RequiredAgreement)
	}
}

func TestNewStoreSeedsCurrentWithDefault(t *testing.T) {
	s := NewStore("localhost:6379", "", 0, zerolog.Nop())
	defer s.Close()
	cur := s.Current()
	if cur.MaxRiskPerTrade != Default().MaxRiskPerTrade {
		t.Fatalf("expected store to seed with Default(), got %+v", cur)
	}
}

func TestSnapshotRoundTripsThroughJSON(t *testing.T) {
	snap := Default()
	snap.UpdatedAt = time.Now().Truncate(time.Second)
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got.MaxRiskPerTrade != snap.MaxRiskPerTrade || got.DedupeWindow != snap.DedupeWindow {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", got, snap)
	}
}
