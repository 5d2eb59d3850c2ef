package model

import "sync"

// TreeModel stands in for the gradient-boosted-tree scorer over the flat
// indicator vector. Internally it is a seeded linear softmax classifier
// rather than an actual boosted-tree ensemble, but it satisfies the same
// train/predict/save/load contract and determinism guarantee a
// tree-backed implementation would.
type TreeModel struct {
	mu   sync.RWMutex
	art  *linearArtifact
}

func NewTreeModel() *TreeModel { return &TreeModel{} }

func (m *TreeModel) Train(X [][]float64, y []Class, seed int64) (Metrics, error) {
	art, metrics, err := trainLinear(X, y, seed, 40, 0.05)
	if err != nil {
		return Metrics{}, err
	}
	m.mu.Lock()
	m.art = art
	m.mu.Unlock()
	return metrics, nil
}

func (m *TreeModel) Predict(x []float64) (Probs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.art.predict(x)
}

func (m *TreeModel) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.art == nil {
		return notReady("tree")
	}
	return saveJSON(path, m.art)
}

func (m *TreeModel) Load(path string) error {
	art := &linearArtifact{}
	if err := loadJSON(path, art); err != nil {
		return err
	}
	m.mu.Lock()
	m.art = art
	m.mu.Unlock()
	return nil
}

// SequenceModel stands in for the recurrent sequence scorer over the
// (N,5) OHLCV sequence artifact. The sequence is flattened to a single
// feature row before being handed to the same seeded linear classifier
// used by TreeModel.
type SequenceModel struct {
	mu  sync.RWMutex
	art *linearArtifact
}

func NewSequenceModel() *SequenceModel { return &SequenceModel{} }

// FlattenSequence turns a (N,5) sequence into a flat feature row.
func FlattenSequence(seq [][5]float64) []float64 {
	out := make([]float64, 0, len(seq)*5)
	for _, row := range seq {
		out = append(out, row[0], row[1], row[2], row[3], row[4])
	}
	return out
}

func (m *SequenceModel) Train(X [][]float64, y []Class, seed int64) (Metrics, error) {
	art, metrics, err := trainLinear(X, y, seed, 40, 0.03)
	if err != nil {
		return Metrics{}, err
	}
	m.mu.Lock()
	m.art = art
	m.mu.Unlock()
	return metrics, nil
}

func (m *SequenceModel) Predict(x []float64) (Probs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.art.predict(x)
}

func (m *SequenceModel) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.art == nil {
		return notReady("sequence")
	}
	return saveJSON(path, m.art)
}

func (m *SequenceModel) Load(path string) error {
	art := &linearArtifact{}
	if err := loadJSON(path, art); err != nil {
		return err
	}
	m.mu.Lock()
	m.art = art
	m.mu.Unlock()
	return nil
}

// ConvModel stands in for the convolutional scorer over the multichannel
// indicator window artifact. Like SequenceModel, the window is flattened
// before classification; the real convolutional layers are out of scope.
type ConvModel struct {
	mu  sync.RWMutex
	art *linearArtifact
}

func NewConvModel() *ConvModel { return &ConvModel{} }

// FlattenIndicatorWindow turns a (N,4) indicator window into a flat
// feature row.
func FlattenIndicatorWindow(win [][4]float64) []float64 {
	out := make([]float64, 0, len(win)*4)
	for _, row := range win {
		out = append(out, row[0], row[1], row[2], row[3])
	}
	return out
}

func (m *ConvModel) Train(X [][]float64, y []Class, seed int64) (Metrics, error) {
	art, metrics, err := trainLinear(X, y, seed, 40, 0.03)
	if err != nil {
		return Metrics{}, err
	}
	m.mu.Lock()
	m.art = art
	m.mu.Unlock()
	return metrics, nil
}

func (m *ConvModel) Predict(x []float64) (Probs, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.art.predict(x)
}

func (m *ConvModel) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.art == nil {
		return notReady("conv")
	}
	return saveJSON(path, m.art)
}

func (m *ConvModel) Load(path string) error {
	art := &linearArtifact{}
	if err := loadJSON(path, art); err != nil {
		return err
	}
	m.mu.Lock()
	m.art = art
	m.mu.Unlock()
	return nil
}
