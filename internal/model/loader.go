package model

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/domain"
)

// LoadDiseaseModels loads one booster per disease. Relative artifact paths
// resolve against dir. Any failure aborts startup.
func LoadDiseaseModels(dir string, diseases []domain.Disease, logger *logrus.Logger) (map[string]*Booster, error) {
	boosters := make(map[string]*Booster, len(diseases))
	for _, d := range diseases {
		path := d.Artifact
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}

		b, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("disease %q: %w", d.Name, err)
		}
		boosters[d.Name] = b

		logger.WithFields(logrus.Fields{
			"disease":      d.Name,
			"artifact":     path,
			"num_features": b.NumFeatures(),
			"num_trees":    b.NumTrees(),
			"objective":    b.Objective(),
		}).Info("Loaded disease model")
	}
	return boosters, nil
}
