package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/model"
)

// TopFeatureCount is the number of features in an importance report
const TopFeatureCount = 5

// ImportanceSource exposes a model's per-column split gain
type ImportanceSource interface {
	Importance() map[int]float64
}

// ChartRenderer draws a bar per name, first name on top
type ChartRenderer interface {
	Render(title string, names []string, values []float64) ([]byte, error)
}

// ReportCache stores rendered reports by key
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

// FeatureImportance is one bar of an importance report
type FeatureImportance struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
}

// ImportanceReport is the response of the feature importance endpoint
type ImportanceReport struct {
	Disease  string              `json:"disease"`
	Image    string              `json:"image"`
	Features []FeatureImportance `json:"features"`
}

// ImportanceReporter renders top-gain charts per disease key
type ImportanceReporter struct {
	diseases    map[string]domain.Disease
	sources     map[string]ImportanceSource
	columnNames []string
	renderer    ChartRenderer
	cache       ReportCache
	logger      *logrus.Logger
}

// NewImportanceReporter creates a reporter. sources is keyed by disease name;
// columnNames map column indices to feature names. cache may be nil.
func NewImportanceReporter(
	diseases []domain.Disease,
	sources map[string]ImportanceSource,
	columnNames []string,
	renderer ChartRenderer,
	cache ReportCache,
	logger *logrus.Logger,
) (*ImportanceReporter, error) {
	byKey := make(map[string]domain.Disease, len(diseases))
	for _, d := range diseases {
		if _, ok := sources[d.Name]; !ok {
			return nil, fmt.Errorf("disease %q has no loaded model", d.Name)
		}
		byKey[d.Key] = d
	}
	return &ImportanceReporter{
		diseases:    byKey,
		sources:     sources,
		columnNames: columnNames,
		renderer:    renderer,
		cache:       cache,
		logger:      logger,
	}, nil
}

// Report returns the top features by gain for the disease with key
func (r *ImportanceReporter) Report(ctx context.Context, key string) (*ImportanceReport, error) {
	disease, ok := r.diseases[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDisease, key)
	}

	cacheKey := "importance:" + key
	if r.cache != nil {
		if data, ok := r.cache.Get(ctx, cacheKey); ok {
			var report ImportanceReport
			if err := json.Unmarshal(data, &report); err == nil {
				return &report, nil
			}
			r.logger.WithField("key", key).Warn("Discarding unreadable cached importance report")
		}
	}

	report, err := r.build(disease)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		if data, err := json.Marshal(report); err == nil {
			r.cache.Set(ctx, cacheKey, data)
		}
	}
	return report, nil
}

func (r *ImportanceReporter) build(disease domain.Disease) (*ImportanceReport, error) {
	source := r.sources[disease.Name]
	top := model.TopFeatures(source.Importance(), TopFeatureCount)

	names := make([]string, len(top))
	values := make([]float64, len(top))
	feats := make([]FeatureImportance, len(top))
	for i, fg := range top {
		names[i] = r.columnName(source, fg.Index)
		values[i] = scalar.RoundEven(fg.Gain, 4)
		feats[i] = FeatureImportance{Name: names[i], Importance: values[i]}
	}

	png, err := r.renderer.Render("Top Features - "+disease.Name, names, values)
	if err != nil {
		return nil, fmt.Errorf("%s: rendering chart: %w", disease.Name, err)
	}

	r.logger.WithFields(logrus.Fields{
		"disease":  disease.Name,
		"features": len(feats),
		"bytes":    len(png),
	}).Debug("Rendered feature importance chart")

	return &ImportanceReport{
		Disease:  disease.Name,
		Image:    base64.StdEncoding.EncodeToString(png),
		Features: feats,
	}, nil
}

// columnName prefers names stored in the model, then the feature spec,
// then XGBoost's positional fN
func (r *ImportanceReporter) columnName(source ImportanceSource, index int) string {
	if named, ok := source.(interface{ FeatureNames() []string }); ok {
		if names := named.FeatureNames(); index < len(names) && names[index] != "" {
			return names[index]
		}
	}
	if index < len(r.columnNames) {
		return r.columnNames[index]
	}
	return fmt.Sprintf("f%d", index)
}
