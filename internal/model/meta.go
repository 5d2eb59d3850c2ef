package model

import "sync"

// MetaModel is the logistic meta-learner over concatenated sub-scores.
// Its input width is fixed at len(baseModels) * 4 (the argmax class
// index as one float plus the three probabilities, per base model).
type MetaModel struct {
	mu  sync.RWMutex
	art *linearArtifact
}

func NewMetaModel() *MetaModel { return &MetaModel{} }

// MetaFeatureWidth returns the fixed meta-feature width for n base models.
func MetaFeatureWidth(nBaseModels int) int { return nBaseModels * 4 }

// BuildMetaFeature concatenates (argmax_i, probs_i) for each base model's
// output into the fixed-width meta-feature vector.
func BuildMetaFeature(baseProbs []Probs) []float64 {
	out := make([]float64, 0, len(baseProbs)*4)
	for _, p := range baseProbs {
		cls, _ := p.Argmax()
		out = append(out, float64(cls), p[0], p[1], p[2])
	}
	return out
}

func (m *MetaModel) Train(X [][]float64, y []Class, seed int64) (Metrics, error) {
	art, metrics, err := trainLinear(X, y, seed, 60, 0.05)
	if err != nil {
		return Metrics{}, err
	}
	m.mu.Lock()
	m.art = art
	m.mu.Unlock()
	return metrics, nil
}

func (m *MetaModel) Predict(x []float64) (Probs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.art.predict(x)
}

func (m *MetaModel) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.art == nil {
		return notReady("meta")
	}
	return saveJSON(path, m.art)
}

func (m *MetaModel) Load(path string) error {
	art := &linearArtifact{}
	if err := loadJSON(path, art); err != nil {
		return err
	}
	m.mu.Lock()
	m.art = art
	m.mu.Unlock()
	return nil
}
