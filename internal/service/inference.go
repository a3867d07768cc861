package service

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/features"
)

// Classifier is a loaded binary model
type Classifier interface {
	NumFeatures() int
	PredictProba(x []float64) (float64, error)
}

// InferenceEngine turns feature vectors into tiered risk results
type InferenceEngine struct {
	classifiers map[string]Classifier
}

// NewInferenceEngine creates an engine over classifiers keyed by disease name
func NewInferenceEngine(classifiers map[string]Classifier) *InferenceEngine {
	return &InferenceEngine{classifiers: classifiers}
}

// Diseases returns the registered disease names, sorted
func (e *InferenceEngine) Diseases() []string {
	names := make([]string, 0, len(e.classifiers))
	for name := range e.classifiers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NumFeatures returns the input width the disease's model expects
func (e *InferenceEngine) NumFeatures(disease string) (int, bool) {
	c, ok := e.classifiers[disease]
	if !ok {
		return 0, false
	}
	return c.NumFeatures(), true
}

// Predict scores x for disease. The tier is taken from the unrounded
// probability; the reported probability is rounded to 2 decimals.
func (e *InferenceEngine) Predict(disease string, x features.Vector) (domain.RiskResult, error) {
	c, ok := e.classifiers[disease]
	if !ok {
		return domain.RiskResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownDisease, disease)
	}

	if want := c.NumFeatures(); len(x) != want {
		return domain.RiskResult{}, &domain.FeatureMismatchError{
			Disease:  disease,
			Expected: want,
			Got:      len(x),
		}
	}

	p, err := c.PredictProba(x)
	if err != nil {
		return domain.RiskResult{}, fmt.Errorf("%s: predicting: %w", disease, err)
	}

	return domain.RiskResult{
		Probability: scalar.RoundEven(p, 2),
		RiskLevel:   domain.TierFor(p),
	}, nil
}
