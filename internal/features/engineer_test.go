package features

import (
	"context"
	"testing"
	"time"

	"genx-signal-engine/internal/marketdata"
)

func testWindow(t *testing.T, count int) marketdata.Window {
	t.Helper()
	adapter := marketdata.NewMockAdapter(42)
	win, err := adapter.Historical(context.Background(), "EURUSD", marketdata.H1, count, time.Now())
	if err != nil {
		t.Fatalf("failed to build test window: %v", err)
	}
	return win
}

func TestGenerateBelowMinBarsReturnsNoRows(t *testing.T) {
	e := NewEngineer(10, 2, 1e-6)
	win := testWindow(t, e.MinBars()-1)
	rows := e.Generate(win)
	if len(rows) != 0 {
		t.Fatalf("expected 0 rows below MinBars, got %d", len(rows))
	}
}

func TestGenerateExactMinBarsYieldsOneRow(t *testing.T) {
	e := NewEngineer(10, 2, 1e-6)
	win := testWindow(t, e.MinBars())
	rows := e.Generate(win)
	if len(rows) != 1 {
		t.Fatalf("expected exactly 1 row at MinBars, got %d", len(rows))
	}
	row := rows[0]
	if len(row.Sequence) != e.SequenceLength {
		t.Fatalf("expected sequence length %d, got %d", e.SequenceLength, len(row.Sequence))
	}
	if len(row.IndicatorWindow) != e.SequenceLength {
		t.Fatalf("expected indicator window length %d, got %d", e.SequenceLength, len(row.IndicatorWindow))
	}
	if len(row.IndicatorVector) == 0 {
		t.Fatal("expected non-empty indicator vector")
	}
}

func TestSessionVectorClassifiesHourRanges(t *testing.T) {
	cases := []struct {
		hour                                   int
		london, newYork, asian, overlap float64
	}{
		{3, 0, 0, 1, 0},
		{9, 1, 0, 0, 0},
		{14, 1, 1, 0, 1},
		{18, 0, 1, 0, 0},
		{22, 0, 0, 1, 0},
	}
	for _, c := range cases {
		ts := time.Date(2026, 1, 1, c.hour, 0, 0, 0, time.UTC)
		v := sessionVector(ts)
		if v[0] != c.london || v[1] != c.newYork || v[2] != c.asian || v[3] != c.overlap {
			t.Errorf("hour %d: got %v, want [%v %v %v %v]", c.hour, v, c.london, c.newYork, c.asian, c.overlap)
		}
	}
}

func TestRawIndicatorVectorIncludesSessionBlock(t *testing.T) {
	e := NewEngineer(10, 2, 1e-6)
	win := testWindow(t, e.MinBars())
	vec := e.rawIndicatorVector(win, e.MinBars())
	withoutSession := len(vec) - 4
	if withoutSession <= 0 {
		t.Fatal("expected a non-trivial indicator vector before the session block")
	}
	want := sessionVector(win[e.MinBars()-1].Timestamp)
	for i, w := range want {
		if vec[withoutSession+i] != w {
			t.Fatalf("session slot %d: got %v, want %v", i, vec[withoutSession+i], w)
		}
	}
}
