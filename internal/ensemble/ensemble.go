// Package ensemble implements the combiner: it runs the three base
// scorers on their respective feature artifacts, concatenates
// (argmax_i, probs_i) into a fixed-width meta-feature, and passes it to
// a learned meta-model whose output is the final probability
// distribution, enriched with trailing-CV-score weighting of each base
// model's contribution to the meta-feature. The averaging-without-a-
// meta-learner variant is documented as the rejected alternative in
// DESIGN.md.
package ensemble

import (
	"genx-signal-engine/internal/errs"
	"genx-signal-engine/internal/model"
)

// BaseInput bundles the three feature artifacts one prediction instant
// produces, already shaped for their respective base model.
type BaseInput struct {
	IndicatorVector []float64 // for the tree model
	Sequence        []float64 // flattened (N,5) sequence, for the sequence model
	IndicatorWindow []float64 // flattened (N,4) indicator window, for the conv model
}

// Prediction is the ensemble's output for one prediction instant.
type Prediction struct {
	Probs      model.Probs
	Class      model.Class
	Confidence float64
	SubScores  []model.Probs // one entry per base model, in Combiner.Base order
	Agreement  float64       // fraction of base models agreeing on direction; diagnostic only
}

// Combiner owns the ordered base models plus the meta-model.
type Combiner struct {
	Base    []model.Model // fixed order: tree, sequence, conv
	Meta    *model.MetaModel
	Weights []float64 // trailing CV-score weight per base model, default 1.0
}

// NewCombiner builds a Combiner with the standard base-model trio.
func NewCombiner() *Combiner {
	base := []model.Model{model.NewTreeModel(), model.NewSequenceModel(), model.NewConvModel()}
	return &Combiner{
		Base:    base,
		Meta:    model.NewMetaModel(),
		Weights: []float64{1.0, 1.0, 1.0},
	}
}

// SetWeights updates the trailing CV-score weight for each base model,
// floored at 0.1 so a poorly-performing model never drops out entirely
// (max(0.1, avg_score)).
func (c *Combiner) SetWeights(cvScores []float64) {
	w := make([]float64, len(cvScores))
	for i, s := range cvScores {
		if s < 0.1 {
			s = 0.1
		}
		w[i] = s
	}
	c.Weights = w
}

// Predict runs the base models, builds the weighted meta-feature, and
// returns the final ensemble prediction.
func (c *Combiner) Predict(in BaseInput) (Prediction, error) {
	artifacts := [][]float64{in.IndicatorVector, in.Sequence, in.IndicatorWindow}
	if len(artifacts) != len(c.Base) {
		return Prediction{}, errs.New(errs.ShapeError, "ensemble: artifact/base-model count mismatch")
	}

	subScores := make([]model.Probs, len(c.Base))
	for i, m := range c.Base {
		p, err := m.Predict(artifacts[i])
		if err != nil {
			return Prediction{}, errs.Wrap(errs.NotReady, "base model prediction failed", err)
		}
		subScores[i] = p
	}

	weighted := weightSubScores(subScores, c.Weights)
	metaFeature := model.BuildMetaFeature(weighted)

	probs, err := c.Meta.Predict(metaFeature)
	if err != nil {
		return Prediction{}, errs.Wrap(errs.NotReady, "meta model prediction failed", err)
	}

	cls, confidence := probs.Argmax()
	agreement := agreementRatio(subScores)

	return Prediction{
		Probs:      probs,
		Class:      cls,
		Confidence: confidence,
		SubScores:  subScores,
		Agreement:  agreement,
	}, nil
}

// weightSubScores rescales each base model's probability vector by its
// trailing CV weight and renormalizes, so an underperforming model
// contributes a flatter (lower-confidence) vote to the meta-feature
// without being excluded outright.
func weightSubScores(subScores []model.Probs, weights []float64) []model.Probs {
	out := make([]model.Probs, len(subScores))
	for i, p := range subScores {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		// Pull toward uniform by (1-w) to reflect lower trust; pure
		// scaling-then-renormalize would return the vector unchanged,
		// which would defeat the purpose of weighting. The blend keeps
		// argmax but flattens the vote.
		blended := model.Probs{
			p[0]*w + (1-w)/3,
			p[1]*w + (1-w)/3,
			p[2]*w + (1-w)/3,
		}
		sum := blended[0] + blended[1] + blended[2]
		if sum > 0 {
			blended[0] /= sum
			blended[1] /= sum
			blended[2] /= sum
		}
		out[i] = blended
	}
	return out
}

func agreementRatio(subScores []model.Probs) float64 {
	if len(subScores) == 0 {
		return 0
	}
	counts := map[model.Class]int{}
	for _, p := range subScores {
		cls, _ := p.Argmax()
		counts[cls]++
	}
	best := 0
	for _, n := range counts {
		if n > best {
			best = n
		}
	}
	return float64(best) / float64(len(subScores))
}
