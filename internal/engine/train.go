package engine

import (
	"context"
	"time"

	"genx-signal-engine/internal/errs"
	"genx-signal-engine/internal/ensemble"
	"genx-signal-engine/internal/features"
	"genx-signal-engine/internal/marketdata"
	"genx-signal-engine/internal/model"
)

func toClass(l features.Label) model.Class {
	switch l {
	case features.LabelDown:
		return model.ClassDown
	case features.LabelUp:
		return model.ClassUp
	default:
		return model.ClassFlat
	}
}

// Bootstrap trains the combiner's base models and meta-model on a
// single historical window per symbol, holding out the final fifth of
// rows for a crude per-model cross-validation score. This stands in for
// a proper offline training pipeline; it exists so Combiner.Predict has
// a trained artifact to run in the absence of one being loaded from
// disk.
func Bootstrap(ctx context.Context, market marketdata.Adapter, combiner *ensemble.Combiner, eng *features.Engineer, symbols []string, tf marketdata.Timeframe, seed int64) error {
	var allRows []features.Row
	for _, sym := range symbols {
		bars, err := market.Historical(ctx, sym, tf, eng.MinBars()+500, time.Time{})
		if err != nil {
			return errs.Wrap(errs.TransientIO, "engine: fetch bootstrap history", err)
		}
		eng.FitIndicatorStats(bars)
		eng.FitSequenceStats(bars)
		rows := eng.Generate(bars)
		for _, r := range rows {
			if r.HasLabel && !r.Masked {
				allRows = append(allRows, r)
			}
		}
	}
	if len(allRows) < 50 {
		return errs.New(errs.DataQuality, "engine: insufficient labeled rows to bootstrap models")
	}

	split := len(allRows) - len(allRows)/5
	trainRows, holdout := allRows[:split], allRows[split:]

	treeX := make([][]float64, len(trainRows))
	seqX := make([][]float64, len(trainRows))
	convX := make([][]float64, len(trainRows))
	y := make([]model.Class, len(trainRows))
	for i, r := range trainRows {
		treeX[i] = r.IndicatorVector
		seqX[i] = model.FlattenSequence(r.Sequence)
		convX[i] = model.FlattenIndicatorWindow(r.IndicatorWindow)
		y[i] = toClass(r.Label)
	}

	if _, err := combiner.Base[0].Train(treeX, y, seed); err != nil {
		return err
	}
	if _, err := combiner.Base[1].Train(seqX, y, seed); err != nil {
		return err
	}
	if _, err := combiner.Base[2].Train(convX, y, seed); err != nil {
		return err
	}

	cvScores := make([]float64, 3)
	correct := make([]int, 3)
	for _, r := range holdout {
		want := toClass(r.Label)
		inputs := [][]float64{r.IndicatorVector, model.FlattenSequence(r.Sequence), model.FlattenIndicatorWindow(r.IndicatorWindow)}
		for i, base := range combiner.Base {
			probs, err := base.Predict(inputs[i])
			if err != nil {
				continue
			}
			if got, _ := probs.Argmax(); got == want {
				correct[i]++
			}
		}
	}
	for i := range cvScores {
		if len(holdout) > 0 {
			cvScores[i] = float64(correct[i]) / float64(len(holdout))
		}
	}
	combiner.SetWeights(cvScores)

	metaX := make([][]float64, len(trainRows))
	for i, r := range trainRows {
		subScores := make([]model.Probs, 3)
		inputs := [][]float64{treeX[i], seqX[i], convX[i]}
		for j, base := range combiner.Base {
			p, err := base.Predict(inputs[j])
			if err != nil {
				return err
			}
			subScores[j] = p
		}
		metaX[i] = model.BuildMetaFeature(subScores)
	}
	if _, err := combiner.Meta.Train(metaX, y, seed); err != nil {
		return err
	}
	return nil
}
