package strategy

import (
	"encoding/json"
	"fmt"

	"autotab/internal/audit"
	"autotab/internal/dataset"
	"autotab/internal/learn"
	"autotab/internal/preprocess"
)

// Model is a fitted preprocessing + estimator pipeline.
type Model struct {
	Name      string
	Prep      *preprocess.Fitted
	Estimator learn.Estimator
	// Classes maps predicted indices back to labels; nil for regression.
	Classes []string
}

// Predict returns raw predictions: class indices for classifiers, values for regressors.
func (m *Model) Predict(frame *dataset.Frame) ([]float64, error) {
	x, err := m.Prep.Transform(frame)
	if err != nil {
		return nil, err
	}
	return m.Estimator.Predict(x)
}

// Labels maps class-index predictions to label strings.
func (m *Model) Labels(pred []float64) []string {
	out := make([]string, len(pred))
	for i, p := range pred {
		if k := int(p); k >= 0 && k < len(m.Classes) {
			out[i] = m.Classes[k]
		}
	}
	return out
}

type modelFile struct {
	Name          string             `json:"name"`
	Estimator     string             `json:"estimator"`
	Classes       []string           `json:"classes,omitempty"`
	Preprocessing *preprocess.Fitted `json:"preprocessing"`
	Params        learn.Estimator    `json:"params"`
}

func (m *Model) MarshalJSON() ([]byte, error) {
	return json.Marshal(modelFile{
		Name:          m.Name,
		Estimator:     m.Estimator.Name(),
		Classes:       m.Classes,
		Preprocessing: m.Prep,
		Params:        m.Estimator,
	})
}

// Save writes the model as indented JSON, atomically.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	data = append(data, '\n')
	if err := audit.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}
