package model

import (
	"os"
	"path/filepath"
	"testing"

	"genx-signal-engine/internal/errs"
)

func linearlySeparableData() ([][]float64, []Class) {
	X := [][]float64{
		{2.0, 0.0}, {1.8, 0.1}, {2.1, -0.1},
		{-2.0, 0.0}, {-1.8, -0.1}, {-2.1, 0.1},
		{0.0, 0.0}, {0.1, -0.05}, {-0.1, 0.05},
	}
	y := []Class{
		ClassUp, ClassUp, ClassUp,
		ClassDown, ClassDown, ClassDown,
		ClassFlat, ClassFlat, ClassFlat,
	}
	return X, y
}

func TestTreeModelPredictBeforeTrainIsNotReady(t *testing.T) {
	m := NewTreeModel()
	_, err := m.Predict([]float64{1.0, 0.0})
	if errs.KindOf(err) != errs.NotReady {
		t.Fatalf("expected NotReady, got %v", err)
	}
}

func TestTreeModelTrainsAndPredictsConsistentClass(t *testing.T) {
	m := NewTreeModel()
	X, y := linearlySeparableData()
	metrics, err := m.Train(X, y, 1)
	if err != nil {
		t.Fatalf("unexpected training error: %v", err)
	}
	if metrics.Accuracy < 0.6 {
		t.Fatalf("expected reasonable training accuracy on separable data, got %v", metrics.Accuracy)
	}

	probs, err := m.Predict([]float64{2.0, 0.0})
	if err != nil {
		t.Fatalf("unexpected predict error: %v", err)
	}
	if cls, _ := probs.Argmax(); cls != ClassUp {
		t.Fatalf("expected ClassUp, got %v", cls)
	}
}

func TestTreeModelSaveLoadRoundTrip(t *testing.T) {
	m := NewTreeModel()
	X, y := linearlySeparableData()
	if _, err := m.Train(X, y, 1); err != nil {
		t.Fatalf("train failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "tree.json")
	if err := m.Save(path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded := NewTreeModel()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want, err := m.Predict([]float64{2.0, 0.0})
	if err != nil {
		t.Fatalf("predict on original failed: %v", err)
	}
	got, err := loaded.Predict([]float64{2.0, 0.0})
	if err != nil {
		t.Fatalf("predict on loaded failed: %v", err)
	}
	if want != got {
		t.Fatalf("loaded model disagrees with original: got %v, want %v", got, want)
	}
}

func TestTreeModelRejectsShapeMismatch(t *testing.T) {
	m := NewTreeModel()
	X, y := linearlySeparableData()
	if _, err := m.Train(X, y, 1); err != nil {
		t.Fatalf("train failed: %v", err)
	}
	_, err := m.Predict([]float64{1.0})
	if errs.KindOf(err) != errs.ShapeError {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}

func TestArgmaxPicksHighestProbability(t *testing.T) {
	p := Probs{0.2, 0.1, 0.7}
	cls, val := p.Argmax()
	if cls != ClassUp || val != 0.7 {
		t.Fatalf("got (%v, %v), want (ClassUp, 0.7)", cls, val)
	}
}

func TestSaveUnwrittenModelFails(t *testing.T) {
	m := NewTreeModel()
	err := m.Save(filepath.Join(os.TempDir(), "unused.json"))
	if errs.KindOf(err) != errs.NotReady {
		t.Fatalf("expected NotReady, got %v", err)
	}
}
