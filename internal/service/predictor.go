package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/features"
	"github.com/disease-risk-api/internal/logging"
)

// Predictor evaluates every registered disease for one input. Each disease
// builds its own vector and runs in its own goroutine; a failure in one
// disease never affects another.
type Predictor struct {
	diseases []string
	builder  *features.Builder
	engine   *InferenceEngine
	logger   *logrus.Logger
}

// NewPredictor creates a predictor for diseases, in response order
func NewPredictor(diseases []string, builder *features.Builder, engine *InferenceEngine, logger *logrus.Logger) (*Predictor, error) {
	if len(diseases) == 0 {
		return nil, fmt.Errorf("at least one disease is required")
	}
	for _, d := range diseases {
		if _, ok := engine.NumFeatures(d); !ok {
			return nil, fmt.Errorf("disease %q has no loaded model", d)
		}
	}
	return &Predictor{
		diseases: diseases,
		builder:  builder,
		engine:   engine,
		logger:   logger,
	}, nil
}

// Diseases returns the registered disease names
func (p *Predictor) Diseases() []string {
	out := make([]string, len(p.diseases))
	copy(out, p.diseases)
	return out
}

// PredictAll returns one result per registered disease. Per-disease errors
// are logged and reported as the Error result.
func (p *Predictor) PredictAll(ctx context.Context, raw domain.RawInput) map[string]domain.RiskResult {
	startTime := time.Now()
	results := make(map[string]domain.RiskResult, len(p.diseases))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, disease := range p.diseases {
		wg.Add(1)
		go func(disease string) {
			defer wg.Done()

			result, err := p.predictOne(ctx, disease, raw)
			if err != nil {
				logging.FromContext(ctx, p.logger).WithError(err).WithFields(logrus.Fields{
					"disease":    disease,
					"error_code": domain.CodeFor(err),
				}).Warn("Disease prediction failed")
				result = domain.ErrorResult()
			}

			mu.Lock()
			results[disease] = result
			mu.Unlock()
		}(disease)
	}
	wg.Wait()

	logging.FromContext(ctx, p.logger).WithFields(logrus.Fields{
		"diseases":    len(results),
		"duration_ms": time.Since(startTime).Milliseconds(),
	}).Debug("Completed risk predictions")

	return results
}

func (p *Predictor) predictOne(ctx context.Context, disease string, raw domain.RawInput) (result domain.RiskResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", disease, r)
		}
	}()

	vec, err := p.builder.Build(ctx, raw)
	if err != nil {
		return domain.RiskResult{}, fmt.Errorf("%s: building features: %w", disease, err)
	}
	return p.engine.Predict(disease, vec)
}
