package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/disease-risk-api/internal/domain"
)

type fakeSource struct {
	importance map[int]float64
	names      []string
}

func (f *fakeSource) Importance() map[int]float64 { return f.importance }

type namedSource struct{ fakeSource }

func (n *namedSource) FeatureNames() []string { return n.names }

type fakeRenderer struct {
	calls  int
	title  string
	names  []string
	values []float64
	err    error
}

func (f *fakeRenderer) Render(title string, names []string, values []float64) ([]byte, error) {
	f.calls++
	f.title, f.names, f.values = title, names, values
	return []byte("png"), f.err
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *mapCache) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

func (m *mapCache) Set(_ context.Context, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
}

var testDiseases = []domain.Disease{
	{Key: "diabetes_risk", Name: "Diabetes Risk"},
	{Key: "CKD", Name: "Chronic Kidney Disease (CKD)"},
}

func TestImportanceReporter_Report(t *testing.T) {
	renderer := &fakeRenderer{}
	cache := &mapCache{data: map[string][]byte{}}
	logger, _ := logtest.NewNullLogger()

	sources := map[string]ImportanceSource{
		"Diabetes Risk": &fakeSource{importance: map[int]float64{
			0: 1.5, 5: 40.123456, 4: 12, 20: 3.33333, 7: 0.25, 9: 0.1,
		}},
		"Chronic Kidney Disease (CKD)": &fakeSource{},
	}
	r, err := NewImportanceReporter(testDiseases, sources, domain.DefaultFeatureSpec().Names(), renderer, cache, logger)
	require.NoError(t, err)

	report, err := r.Report(context.Background(), "diabetes_risk")
	require.NoError(t, err)

	assert.Equal(t, "Diabetes Risk", report.Disease)
	assert.Equal(t, "cG5n", report.Image)
	assert.Equal(t, "Top Features - Diabetes Risk", renderer.title)
	assert.Equal(t, []string{"Blood_Glucose_HbA1c", "BMI", "bone_loss_percent", "AGE", "Hypertension_Diastolic"}, renderer.names)
	require.Len(t, report.Features, TopFeatureCount)
	assert.Equal(t, FeatureImportance{Name: "Blood_Glucose_HbA1c", Importance: 40.1235}, report.Features[0])
	assert.InDelta(t, 3.3333, report.Features[2].Importance, 1e-9)

	// Served from cache the second time
	again, err := r.Report(context.Background(), "diabetes_risk")
	require.NoError(t, err)
	assert.Equal(t, report, again)
	assert.Equal(t, 1, renderer.calls)
}

func TestImportanceReporter_NoSplits(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	renderer := &fakeRenderer{}
	r, err := NewImportanceReporter(testDiseases, map[string]ImportanceSource{
		"Diabetes Risk":                &fakeSource{},
		"Chronic Kidney Disease (CKD)": &fakeSource{},
	}, nil, renderer, nil, logger)
	require.NoError(t, err)

	report, err := r.Report(context.Background(), "CKD")
	require.NoError(t, err)
	assert.Empty(t, report.Features)
	assert.Empty(t, renderer.names)
}

func TestImportanceReporter_ColumnNames(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	renderer := &fakeRenderer{}
	source := &namedSource{fakeSource{
		importance: map[int]float64{0: 3, 1: 2, 2: 1},
		names:      []string{"from_model", ""},
	}}
	r, err := NewImportanceReporter(
		[]domain.Disease{{Key: "k", Name: "K"}},
		map[string]ImportanceSource{"K": source},
		[]string{"spec0", "spec1"},
		renderer, nil, logger,
	)
	require.NoError(t, err)

	_, err = r.Report(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []string{"from_model", "spec1", "f2"}, renderer.names)
}

func TestImportanceReporter_Errors(t *testing.T) {
	logger, _ := logtest.NewNullLogger()

	_, err := NewImportanceReporter(testDiseases, map[string]ImportanceSource{}, nil, &fakeRenderer{}, nil, logger)
	assert.Error(t, err, "disease without a model")

	r, err := NewImportanceReporter(testDiseases, map[string]ImportanceSource{
		"Diabetes Risk":                &fakeSource{importance: map[int]float64{1: 1}},
		"Chronic Kidney Disease (CKD)": &fakeSource{},
	}, nil, &fakeRenderer{err: errors.New("no fonts")}, nil, logger)
	require.NoError(t, err)

	_, err = r.Report(context.Background(), "unknown")
	assert.True(t, errors.Is(err, domain.ErrUnknownDisease))
	assert.Equal(t, domain.ErrCodeNotFound, domain.CodeFor(err))

	_, err = r.Report(context.Background(), "diabetes_risk")
	assert.ErrorContains(t, err, "no fonts")
}
