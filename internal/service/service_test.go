package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/encoding"
	"github.com/disease-risk-api/internal/features"
	"github.com/disease-risk-api/internal/logging"
)

type fakeClassifier struct {
	width   int
	prob    float64
	err     error
	panics  bool
	mu      sync.Mutex
	lastRow []float64
}

func (f *fakeClassifier) NumFeatures() int { return f.width }

func (f *fakeClassifier) PredictProba(x []float64) (float64, error) {
	if f.panics {
		panic("corrupt tree")
	}
	f.mu.Lock()
	f.lastRow = append([]float64(nil), x...)
	f.mu.Unlock()
	return f.prob, f.err
}

func newBuilder(t *testing.T, opts ...encoding.Option) *features.Builder {
	b, err := features.NewBuilder(domain.DefaultFeatureSpec(), features.DefaultDerivedFeatures(), encoding.NewRegistry(opts...))
	require.NoError(t, err)
	return b
}

func TestInferenceEngine_Predict(t *testing.T) {
	tests := []struct {
		name     string
		prob     float64
		expected domain.RiskResult
	}{
		{"Low", 0.12, domain.RiskResult{Probability: 0.12, RiskLevel: domain.RiskLow}},
		{"Tier uses unrounded probability", 0.2999, domain.RiskResult{Probability: 0.3, RiskLevel: domain.RiskLow}},
		{"Medium lower bound", 0.3, domain.RiskResult{Probability: 0.3, RiskLevel: domain.RiskMedium}},
		{"Medium", 0.456, domain.RiskResult{Probability: 0.46, RiskLevel: domain.RiskMedium}},
		{"High lower bound", 0.7, domain.RiskResult{Probability: 0.7, RiskLevel: domain.RiskHigh}},
		{"Certain", 1, domain.RiskResult{Probability: 1, RiskLevel: domain.RiskHigh}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewInferenceEngine(map[string]Classifier{"D": &fakeClassifier{width: 3, prob: tt.prob}})
			result, err := engine.Predict("D", features.Vector{1, 2, 3})
			require.NoError(t, err)
			assert.Equal(t, tt.expected.RiskLevel, result.RiskLevel)
			assert.InDelta(t, tt.expected.Probability, result.Probability, 1e-9)
		})
	}
}

func TestInferenceEngine_Errors(t *testing.T) {
	engine := NewInferenceEngine(map[string]Classifier{
		"Narrow": &fakeClassifier{width: 20},
		"Broken": &fakeClassifier{width: 2, err: errors.New("bad input")},
	})

	_, err := engine.Predict("Narrow", make(features.Vector, 21))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrFeatureMismatch))
	var mismatch *domain.FeatureMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, 20, mismatch.Expected)
	assert.Equal(t, 21, mismatch.Got)

	_, err = engine.Predict("Missing", nil)
	assert.True(t, errors.Is(err, domain.ErrUnknownDisease))

	_, err = engine.Predict("Broken", features.Vector{0, 0})
	assert.ErrorContains(t, err, "bad input")

	assert.Equal(t, []string{"Broken", "Narrow"}, engine.Diseases())
}

func TestPredictor_PredictAll(t *testing.T) {
	ckd := &fakeClassifier{width: 21, prob: 0.82}
	engine := NewInferenceEngine(map[string]Classifier{
		"Diabetes Risk":                &fakeClassifier{width: 21, prob: 0.82},
		"Cardiovascular Disease Risk":  &fakeClassifier{width: 21, prob: 0.1},
		"Chronic Kidney Disease (CKD)": ckd,
		"Autoimmune Disorder":          &fakeClassifier{width: 21, prob: 0.5},
	})
	logger, _ := logtest.NewNullLogger()

	p, err := NewPredictor(engine.Diseases(), newBuilder(t), engine, logger)
	require.NoError(t, err)

	results := p.PredictAll(context.Background(), domain.RawInput{
		"AGE":                  "60",
		"total_root_length_mm": 10,
		"cej_to_bone_crest_mm": 3,
		"gum_disease":          "Yes",
	})

	require.Len(t, results, 4)
	assert.Equal(t, domain.RiskHigh, results["Diabetes Risk"].RiskLevel)
	assert.Equal(t, domain.RiskLow, results["Cardiovascular Disease Risk"].RiskLevel)
	assert.Equal(t, domain.RiskMedium, results["Autoimmune Disorder"].RiskLevel)

	spec := domain.DefaultFeatureSpec()
	row := ckd.lastRow
	require.Len(t, row, 21)
	assert.Equal(t, 60.0, row[spec.Index("AGE")])
	assert.Equal(t, 1.0, row[spec.Index("gum_disease")])
	assert.Equal(t, 30.0, row[spec.Index("bone_loss_percent")])
}

func TestPredictor_FailuresAreIsolated(t *testing.T) {
	engine := NewInferenceEngine(map[string]Classifier{
		"Good":     &fakeClassifier{width: 21, prob: 0.4},
		"Mismatch": &fakeClassifier{width: 20, prob: 0.9},
		"Panics":   &fakeClassifier{width: 21, panics: true},
	})
	logger, hook := logtest.NewNullLogger()

	p, err := NewPredictor([]string{"Good", "Mismatch", "Panics"}, newBuilder(t), engine, logger)
	require.NoError(t, err)

	ctx := logging.WithCorrelationID(context.Background(), "corr-1")
	results := p.PredictAll(ctx, domain.RawInput{})

	assert.Equal(t, domain.RiskResult{Probability: 0.4, RiskLevel: domain.RiskMedium}, results["Good"])
	assert.Equal(t, domain.ErrorResult(), results["Mismatch"])
	assert.Equal(t, domain.ErrorResult(), results["Panics"])

	warned := map[string]string{}
	for _, entry := range hook.AllEntries() {
		if entry.Level != logrus.WarnLevel {
			continue
		}
		assert.Equal(t, "corr-1", entry.Data["correlation_id"])
		warned[entry.Data["disease"].(string)] = entry.Data["error_code"].(string)
	}
	assert.Equal(t, map[string]string{
		"Mismatch": domain.ErrCodeFeatureMismatch,
		"Panics":   domain.ErrCodeInternalServer,
	}, warned)
}

func TestPredictor_FrozenVocabularyDegradesToError(t *testing.T) {
	engine := NewInferenceEngine(map[string]Classifier{"A": &fakeClassifier{width: 21, prob: 0.9}})
	logger, _ := logtest.NewNullLogger()

	p, err := NewPredictor([]string{"A"}, newBuilder(t, encoding.WithFrozen(true)), engine, logger)
	require.NoError(t, err)

	results := p.PredictAll(context.Background(), domain.RawInput{"plaque_level": "Severe"})
	assert.Equal(t, domain.ErrorResult(), results["A"])

	// Blank categoricals are not encoded, so they pass a frozen registry
	results = p.PredictAll(context.Background(), domain.RawInput{"plaque_level": ""})
	assert.Equal(t, domain.RiskHigh, results["A"].RiskLevel)
}

func TestPredictor_ConcurrentRequestsShareVocabulary(t *testing.T) {
	classifier := &fakeClassifier{width: 21, prob: 0.5}
	engine := NewInferenceEngine(map[string]Classifier{"A": classifier})
	logger, _ := logtest.NewNullLogger()
	registry := encoding.NewRegistry()
	builder, err := features.NewBuilder(domain.DefaultFeatureSpec(), features.DefaultDerivedFeatures(), registry)
	require.NoError(t, err)

	p, err := NewPredictor([]string{"A"}, builder, engine, logger)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, level := range []string{"Low", "High", "Medium", "Low", "High", "Medium"} {
		wg.Add(1)
		go func(level string) {
			defer wg.Done()
			p.PredictAll(context.Background(), domain.RawInput{"plaque_level": level})
		}(level)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"Low", "High", "Medium"}, registry.Labels("plaque_level"))
}

func TestNewPredictor_Validation(t *testing.T) {
	engine := NewInferenceEngine(map[string]Classifier{"A": &fakeClassifier{width: 21}})
	logger, _ := logtest.NewNullLogger()

	_, err := NewPredictor(nil, newBuilder(t), engine, logger)
	assert.Error(t, err)

	_, err = NewPredictor([]string{"A", "B"}, newBuilder(t), engine, logger)
	assert.Error(t, err)

	p, err := NewPredictor([]string{"A"}, newBuilder(t), engine, logger)
	require.NoError(t, err)
	names := p.Diseases()
	names[0] = "mutated"
	assert.Equal(t, []string{"A"}, p.Diseases())
}
