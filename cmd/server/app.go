package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/api"
	"github.com/disease-risk-api/internal/auth"
	"github.com/disease-risk-api/internal/cache"
	"github.com/disease-risk-api/internal/chart"
	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/encoding"
	"github.com/disease-risk-api/internal/features"
	"github.com/disease-risk-api/internal/model"
	"github.com/disease-risk-api/internal/service"
	"github.com/disease-risk-api/internal/storage"
	"github.com/disease-risk-api/internal/vocabulary"
)

// app owns the wired components and releases them in reverse order
type app struct {
	server  *api.Server
	closers []func()
	closed  bool
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases every resource opened during startup. Safe to call twice.
func (a *app) Close() {
	if a.closed {
		return
	}
	a.closed = true
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger) (*app, error) {
	cfg := configManager.GetConfig()
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	boosters, err := model.LoadDiseaseModels(cfg.Models.Dir, cfg.Models.Diseases, logger)
	if err != nil {
		return nil, fmt.Errorf("loading models: %w", err)
	}

	store, err := storage.OpenVocabulary(ctx, configManager, logger)
	if err != nil {
		return nil, err
	}
	a.onClose(func() {
		if err := store.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close vocabulary store")
		}
	})

	spec := domain.DefaultFeatureSpec()
	registry := encoding.NewRegistry(
		encoding.WithPersister(store),
		encoding.WithFrozen(cfg.Encoding.Frozen),
		encoding.WithLogger(logger),
	)
	restored, err := vocabulary.RestoreInto(ctx, store, registry)
	if err != nil {
		return nil, fmt.Errorf("restoring vocabulary: %w", err)
	}
	unmatched, err := registry.SeedConfigured(ctx, spec.OfKind(domain.FieldCategorical), cfg.Encoding.Vocabulary)
	if err != nil {
		return nil, fmt.Errorf("seeding vocabulary: %w", err)
	}
	if len(unmatched) > 0 {
		logger.WithField("fields", unmatched).Warn("Ignoring vocabulary for unknown categorical fields")
	}
	logger.WithFields(logrus.Fields{
		"restored_fields": restored,
		"frozen":          cfg.Encoding.Frozen,
	}).Info("Categorical vocabulary ready")

	builder, err := features.NewBuilder(spec, features.DefaultDerivedFeatures(), registry)
	if err != nil {
		return nil, fmt.Errorf("creating feature builder: %w", err)
	}

	classifiers := make(map[string]service.Classifier, len(boosters))
	sources := make(map[string]service.ImportanceSource, len(boosters))
	for name, b := range boosters {
		classifiers[name] = b
		sources[name] = b
		if b.NumFeatures() != spec.Width() {
			logger.WithFields(logrus.Fields{
				"disease":  name,
				"expected": b.NumFeatures(),
				"width":    spec.Width(),
			}).Warn("Model input width differs from the feature vector; predictions for this disease will fail")
		}
	}

	names := make([]string, 0, len(cfg.Models.Diseases))
	for _, d := range cfg.Models.Diseases {
		names = append(names, d.Name)
	}
	engine := service.NewInferenceEngine(classifiers)
	predictor, err := service.NewPredictor(names, builder, engine, logger)
	if err != nil {
		return nil, fmt.Errorf("creating predictor: %w", err)
	}

	reportCache, err := cache.New(ctx, cfg.Cache, logger)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	a.onClose(func() {
		if err := reportCache.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close cache")
		}
	})

	renderer, err := chart.NewBarChart("Gain", nil)
	if err != nil {
		return nil, fmt.Errorf("creating chart renderer: %w", err)
	}
	importance, err := service.NewImportanceReporter(cfg.Models.Diseases, sources, spec.Names(), renderer, reportCache, logger)
	if err != nil {
		return nil, fmt.Errorf("creating importance reporter: %w", err)
	}

	tokens, err := auth.NewTokenCodec(cfg.Auth.JWTSecret, cfg.Auth.JWTAlgorithm, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token codec: %w", err)
	}
	if cfg.Auth.Google.ClientID == "" {
		logger.Warn("Google OAuth client ID is not configured; sign-in will fail")
	}

	a.server = api.NewServer(configManager, api.Dependencies{
		Predictor:    predictor,
		Importance:   importance,
		Identity:     auth.NewGoogleProvider(cfg.Auth, logger),
		Tokens:       tokens,
		Vocabulary:   registry,
		Diseases:     cfg.Models.Diseases,
		Models:       engine,
		FeatureWidth: spec.Width(),
		HealthChecks: map[string]api.HealthCheck{
			"vocabulary": store.Ping,
			"cache":      reportCache.Ping,
		},
		Logger: logger,
	})
	ok = true
	return a, nil
}
