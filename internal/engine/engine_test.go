package engine

import (
	"context"
	"testing"
	"time"

	"genx-signal-engine/internal/ensemble"
	"genx-signal-engine/internal/features"
	"genx-signal-engine/internal/marketdata"
	"genx-signal-engine/internal/model"
	"genx-signal-engine/internal/signal"
)

func TestClassifyHighVolatilityOverridesTrend(t *testing.T) {
	cond := classify(100, 99, 98, 5) // atr/price = 0.05 > 0.015
	if cond != signal.HighVolatility {
		t.Fatalf("expected HighVolatility, got %s", cond)
	}
}

func TestClassifyUptrendAndDowntrend(t *testing.T) {
	if got := classify(110, 105, 100, 0.1); got != signal.Uptrend {
		t.Fatalf("expected Uptrend, got %s", got)
	}
	if got := classify(90, 95, 100, 0.1); got != signal.Downtrend {
		t.Fatalf("expected Downtrend, got %s", got)
	}
}

func TestClassifySidewaysWhenMAsEqual(t *testing.T) {
	if got := classify(100, 100, 100, 0.1); got != signal.Sideways {
		t.Fatalf("expected Sideways, got %s", got)
	}
}

func TestToClassMapsLabelEncodings(t *testing.T) {
	cases := map[features.Label]model.Class{
		features.LabelDown: model.ClassDown,
		features.LabelFlat: model.ClassFlat,
		features.LabelUp:   model.ClassUp,
	}
	for label, want := range cases {
		if got := toClass(label); got != want {
			t.Errorf("toClass(%v) = %v, want %v", label, got, want)
		}
	}
}

func TestBootstrapTrainsCombinerOnMockHistory(t *testing.T) {
	market := marketdata.NewMockAdapter(99)
	eng := features.NewEngineer(20, 4, 1e-6)
	combiner := ensemble.NewCombiner()

	if err := Bootstrap(context.Background(), market, combiner, eng, []string{"EURUSD"}, marketdata.H1, 99); err != nil {
		t.Fatalf("bootstrap failed: %v", err)
	}

	bars, err := market.Historical(context.Background(), "EURUSD", marketdata.H1, eng.MinBars(), time.Time{})
	if err != nil {
		t.Fatalf("failed to fetch bars for prediction check: %v", err)
	}
	rows := eng.Generate(bars)
	if len(rows) == 0 {
		t.Fatal("expected at least one generated row")
	}
	last := rows[len(rows)-1]

	pred, err := combiner.Predict(ensemble.BaseInput{
		IndicatorVector: last.IndicatorVector,
		Sequence:        model.FlattenSequence(last.Sequence),
		IndicatorWindow: model.FlattenIndicatorWindow(last.IndicatorWindow),
	})
	if err != nil {
		t.Fatalf("expected a trained combiner to predict without error, got %v", err)
	}
	if pred.Probs[0]+pred.Probs[1]+pred.Probs[2] < 0.99 {
		t.Fatalf("expected probabilities to sum to ~1, got %v", pred.Probs)
	}
}
