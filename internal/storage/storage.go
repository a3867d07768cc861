// Package storage opens the configured vocabulary backend.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/database"
	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/vocabulary"
)

// Backend names accepted by vocabulary.backend
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// OpenVocabulary opens the configured store. For Postgres, migrations run
// first when database.run_migrations is set, and closing the store also
// closes the connection pool.
func OpenVocabulary(ctx context.Context, configManager domain.ConfigManager, logger *logrus.Logger) (vocabulary.Store, error) {
	cfg := configManager.GetConfig()

	switch strings.ToLower(cfg.Vocabulary.Backend) {
	case BackendMemory:
		logger.Warn("Vocabulary persistence disabled; categorical codes reset on restart")
		return vocabulary.NewMemoryStore(), nil

	case BackendSQLite:
		store, err := vocabulary.NewSQLiteStore(cfg.Vocabulary.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite vocabulary: %w", err)
		}
		logger.WithField("path", store.Path()).Info("Using SQLite vocabulary store")
		return store, nil

	case BackendPostgres:
		databaseURL := configManager.GetDatabaseURL()
		if cfg.Database.RunMigrations {
			if err := Migrate(databaseURL, logger); err != nil {
				return nil, err
			}
		}

		db, err := database.NewConnection(ctx, databaseURL, cfg.Database, logger)
		if err != nil {
			return nil, err
		}
		store, err := vocabulary.NewPostgresStore(ctx, db.SQLDB())
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("opening postgres vocabulary: %w", err)
		}
		logger.Info("Using PostgreSQL vocabulary store")
		return &pooledStore{PostgresStore: store, db: db}, nil

	default:
		return nil, fmt.Errorf("unknown vocabulary backend %q", cfg.Vocabulary.Backend)
	}
}

// Migrate applies all pending schema migrations
func Migrate(databaseURL string, logger *logrus.Logger) error {
	runner, err := database.NewMigrationRunner(databaseURL, logger)
	if err != nil {
		return fmt.Errorf("creating migration runner: %w", err)
	}
	defer runner.Close()

	if err := runner.Up(); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}

type pooledStore struct {
	*vocabulary.PostgresStore
	db *database.DB
}

func (s *pooledStore) Close() error {
	err := s.PostgresStore.Close()
	s.db.Close()
	return err
}
