package ensemble

import (
	"testing"

	"genx-signal-engine/internal/errs"
	"genx-signal-engine/internal/model"
)

func trainedCombiner(t *testing.T) *Combiner {
	t.Helper()
	c := NewCombiner()

	X := make([][]float64, 0, 40)
	y := make([]model.Class, 0, 40)
	for i := 0; i < 20; i++ {
		X = append(X, []float64{1.0, 0.1})
		y = append(y, model.ClassUp)
		X = append(X, []float64{-1.0, -0.1})
		y = append(y, model.ClassDown)
	}
	for _, m := range c.Base {
		if _, err := m.Train(X, y, 7); err != nil {
			t.Fatalf("base model training failed: %v", err)
		}
	}

	metaX := make([][]float64, 0, len(X))
	for _, x := range X {
		subs := make([]model.Probs, len(c.Base))
		for i, m := range c.Base {
			p, err := m.Predict(x)
			if err != nil {
				t.Fatalf("base predict failed: %v", err)
			}
			subs[i] = p
		}
		metaX = append(metaX, model.BuildMetaFeature(subs))
	}
	if _, err := c.Meta.Train(metaX, y, 7); err != nil {
		t.Fatalf("meta model training failed: %v", err)
	}
	return c
}

func TestPredictBeforeTrainReturnsNotReady(t *testing.T) {
	c := NewCombiner()
	_, err := c.Predict(BaseInput{
		IndicatorVector: []float64{1.0, 0.1},
		Sequence:        []float64{1.0, 0.1},
		IndicatorWindow: []float64{1.0, 0.1},
	})
	if errs.KindOf(err) != errs.NotReady {
		t.Fatalf("expected NotReady, got %v", err)
	}
}

func TestPredictAfterTrainingReturnsConfidentPrediction(t *testing.T) {
	c := trainedCombiner(t)
	pred, err := c.Predict(BaseInput{
		IndicatorVector: []float64{1.0, 0.1},
		Sequence:        []float64{1.0, 0.1},
		IndicatorWindow: []float64{1.0, 0.1},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred.Class != model.ClassUp {
		t.Fatalf("expected ClassUp, got %v", pred.Class)
	}
	if pred.Agreement <= 0 {
		t.Fatalf("expected positive agreement, got %v", pred.Agreement)
	}
}

func TestSetWeightsFloorsAtPointOne(t *testing.T) {
	c := NewCombiner()
	c.SetWeights([]float64{0.0, 0.5, 2.0})
	want := []float64{0.1, 0.5, 2.0}
	for i, w := range want {
		if c.Weights[i] != w {
			t.Errorf("weight %d: got %v, want %v", i, c.Weights[i], w)
		}
	}
}

func TestWeightSubScoresPreservesArgmaxDirection(t *testing.T) {
	subs := []model.Probs{{0.1, 0.1, 0.8}}
	out := weightSubScores(subs, []float64{0.5})
	cls, _ := out[0].Argmax()
	if cls != model.ClassUp {
		t.Fatalf("expected argmax to remain ClassUp after down-weighting, got %v", cls)
	}
}
