// Package model defines the scoring-model capability: a Model is
// identified by its capability set (train/predict/save/load), not by
// inheritance. The interior of each model (gradient-boosted-tree-like,
// sequence-like, convolutional-like) is a small deterministic reference
// implementation; real tree/kernel/neural internals are abstracted
// behind this interface.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"

	"genx-signal-engine/internal/errs"
)

// Class is the three-way direction class.
type Class int

const (
	ClassDown Class = iota
	ClassFlat
	ClassUp
)

func (c Class) String() string {
	switch c {
	case ClassDown:
		return "DOWN"
	case ClassUp:
		return "UP"
	default:
		return "FLAT"
	}
}

// Probs is a class-probability vector over {DOWN, FLAT, UP}, summing to 1.
type Probs [3]float64

// Argmax returns the highest-probability class and its probability.
func (p Probs) Argmax() (Class, float64) {
	best, bestVal := ClassDown, p[ClassDown]
	if p[ClassFlat] > bestVal {
		best, bestVal = ClassFlat, p[ClassFlat]
	}
	if p[ClassUp] > bestVal {
		best, bestVal = ClassUp, p[ClassUp]
	}
	return best, bestVal
}

// Metrics summarizes a training run.
type Metrics struct {
	Samples  int     `json:"samples"`
	Accuracy float64 `json:"accuracy"`
	Seed     int64   `json:"seed"`
}

// Model is the capability contract every base and meta scorer satisfies.
type Model interface {
	// Train fits the model on X (one feature row per sample) and labels y
	// (one of ClassDown/ClassFlat/ClassUp per sample). seed makes any
	// stochastic part of training reproducible.
	Train(X [][]float64, y []Class, seed int64) (Metrics, error)

	// Predict returns the class probabilities for one feature row. It is
	// deterministic for a fixed loaded/trained artifact and input.
	Predict(x []float64) (Probs, error)

	// Save persists the trained artifact to path.
	Save(path string) error

	// Load restores a previously-saved artifact from path.
	Load(path string) error
}

// notReady/shape helpers keep error construction uniform across models.
func notReady(name string) error {
	return errs.New(errs.NotReady, fmt.Sprintf("%s: predict before train/load", name))
}

func shapeErr(name string, want, got int) error {
	return errs.New(errs.ShapeError, fmt.Sprintf("%s: expected %d features, got %d", name, want, got))
}

// softmax3 converts three raw scores to a normalized probability vector.
func softmax3(scores [3]float64) Probs {
	maxS := math.Max(scores[0], math.Max(scores[1], scores[2]))
	var exps [3]float64
	sum := 0.0
	for i, s := range scores {
		exps[i] = math.Exp(s - maxS)
		sum += exps[i]
	}
	if sum == 0 {
		return Probs{1.0 / 3, 1.0 / 3, 1.0 / 3}
	}
	return Probs{exps[0] / sum, exps[1] / sum, exps[2] / sum}
}

// linearArtifact is the shared persisted shape for the linear/weighted
// reference models: one weight vector per class plus a bias, fit by
// seeded stochastic gradient descent over a softmax cross-entropy loss.
type linearArtifact struct {
	Weights  [3][]float64 `json:"weights"`
	Bias     [3]float64   `json:"bias"`
	NFeatures int         `json:"n_features"`
}

func trainLinear(X [][]float64, y []Class, seed int64, epochs int, lr float64) (*linearArtifact, Metrics, error) {
	if len(X) == 0 {
		return nil, Metrics{}, errs.New(errs.ShapeError, "no training samples")
	}
	nFeatures := len(X[0])
	for _, row := range X {
		if len(row) != nFeatures {
			return nil, Metrics{}, shapeErr("linear", nFeatures, len(row))
		}
	}

	art := &linearArtifact{NFeatures: nFeatures}
	for c := 0; c < 3; c++ {
		art.Weights[c] = make([]float64, nFeatures)
	}

	rng := rand.New(rand.NewSource(seed))
	order := make([]int, len(X))
	for i := range order {
		order[i] = i
	}

	for e := 0; e < epochs; e++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, idx := range order {
			x := X[idx]
			target := y[idx]
			var scores [3]float64
			for c := 0; c < 3; c++ {
				s := art.Bias[c]
				for j, xv := range x {
					s += art.Weights[c][j] * xv
				}
				scores[c] = s
			}
			probs := softmax3(scores)
			for c := 0; c < 3; c++ {
				indicator := 0.0
				if Class(c) == target {
					indicator = 1.0
				}
				grad := probs[c] - indicator
				art.Bias[c] -= lr * grad
				for j, xv := range x {
					art.Weights[c][j] -= lr * grad * xv
				}
			}
		}
	}

	correct := 0
	for i, x := range X {
		var scores [3]float64
		for c := 0; c < 3; c++ {
			s := art.Bias[c]
			for j, xv := range x {
				s += art.Weights[c][j] * xv
			}
			scores[c] = s
		}
		cls, _ := softmax3(scores).Argmax()
		if cls == y[i] {
			correct++
		}
	}

	return art, Metrics{Samples: len(X), Accuracy: float64(correct) / float64(len(X)), Seed: seed}, nil
}

func (a *linearArtifact) predict(x []float64) (Probs, error) {
	if a == nil {
		return Probs{}, notReady("linear")
	}
	if len(x) != a.NFeatures {
		return Probs{}, shapeErr("linear", a.NFeatures, len(x))
	}
	var scores [3]float64
	for c := 0; c < 3; c++ {
		s := a.Bias[c]
		for j, xv := range x {
			s += a.Weights[c][j] * xv
		}
		scores[c] = s
	}
	return softmax3(scores), nil
}

func saveJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errs.Wrap(errs.Fatal, "marshal model artifact", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errs.Wrap(errs.TransientIO, "write model artifact", err)
	}
	return nil
}

func loadJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Wrap(errs.TransientIO, "read model artifact", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errs.Wrap(errs.ShapeError, "unmarshal model artifact", err)
	}
	return nil
}
