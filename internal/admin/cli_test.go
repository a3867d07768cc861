package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/vocabulary"
)

// One split on BMI (column 4)
const stumpTemplate = `{
  "learner": {
    "attributes": {},
    "feature_names": [],
    "gradient_booster": {
      "name": "gbtree",
      "model": {
        "gbtree_model_param": {"num_trees": "1", "num_parallel_tree": "1"},
        "trees": [{
          "left_children": [1, -1, -1],
          "right_children": [2, -1, -1],
          "split_indices": [4, 0, 0],
          "split_conditions": [30.0, -0.5, 0.5],
          "default_left": [1, 0, 0],
          "loss_changes": [7.25, 0.0, 0.0]
        }],
        "tree_info": [0]
      }
    },
    "learner_model_param": {"base_score": "5E-1", "num_class": "0", "num_feature": "%d"},
    "objective": {"name": "binary:logistic"}
  }
}`

type fakeConfig struct {
	domain.ConfigManager
	cfg         domain.Config
	validateErr error
}

func (f *fakeConfig) GetConfig() *domain.Config             { return &f.cfg }
func (f *fakeConfig) GetModelsConfig() *domain.ModelsConfig { return &f.cfg.Models }
func (f *fakeConfig) Validate() error                       { return f.validateErr }

func newCLI(t *testing.T, widths ...int) (*CLI, *fakeConfig, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()

	cfg := &fakeConfig{cfg: domain.Config{
		Models: domain.ModelsConfig{Dir: dir},
		Vocabulary: domain.VocabularyConfig{
			Backend:    "sqlite",
			SQLitePath: filepath.Join(dir, "vocabulary.db"),
		},
	}}
	for i, w := range widths {
		artifact := fmt.Sprintf("model_%d.json", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, artifact), []byte(fmt.Sprintf(stumpTemplate, w)), 0o644))
		cfg.cfg.Models.Diseases = append(cfg.cfg.Models.Diseases, domain.Disease{
			Key:      fmt.Sprintf("d%d", i),
			Name:     fmt.Sprintf("Disease %d", i),
			Artifact: artifact,
		})
	}

	logger, _ := logtest.NewNullLogger()
	out := &bytes.Buffer{}
	return NewCLI(cfg, logger, out), cfg, out
}

func TestCLI_Validate(t *testing.T) {
	cli, _, out := newCLI(t, 21, 21)

	require.NoError(t, cli.Run(context.Background(), []string{"validate"}))
	assert.Contains(t, out.String(), "Configuration is valid")
	assert.Contains(t, out.String(), "Disease 0 (1 trees)")
	assert.Contains(t, out.String(), "Disease 1 (1 trees)")
}

func TestCLI_Validate_WidthMismatch(t *testing.T) {
	cli, _, out := newCLI(t, 21, 20)

	err := cli.Run(context.Background(), []string{"validate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Disease 1")
	assert.Contains(t, out.String(), "Disease 1 expects 20 features")
}

func TestCLI_Validate_BadConfig(t *testing.T) {
	cli, cfg, _ := newCLI(t, 21)
	cfg.validateErr = errors.New("invalid server port: 0")

	err := cli.Run(context.Background(), []string{"validate"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid server port")
}

func TestCLI_Validate_MissingArtifact(t *testing.T) {
	cli, cfg, _ := newCLI(t, 21)
	cfg.cfg.Models.Diseases[0].Artifact = "missing.json"

	assert.Error(t, cli.Run(context.Background(), []string{"validate"}))
}

func TestCLI_Models(t *testing.T) {
	cli, _, out := newCLI(t, 21)

	require.NoError(t, cli.Run(context.Background(), []string{"models", "--top", "3"}))
	assert.Contains(t, out.String(), "TOP FEATURES")
	assert.Contains(t, out.String(), "d0")
	assert.Contains(t, out.String(), "BMI=7.25")

	assert.Error(t, cli.Run(context.Background(), []string{"models", "--top", "zero"}))
	assert.Error(t, cli.Run(context.Background(), []string{"models", "--top"}))
}

func TestCLI_Vocabulary(t *testing.T) {
	cli, cfg, out := newCLI(t)
	ctx := context.Background()

	require.NoError(t, cli.Run(ctx, []string{"vocabulary"}))
	assert.Contains(t, out.String(), "No categorical codes")

	store, err := vocabulary.NewSQLiteStore(cfg.cfg.Vocabulary.SQLitePath)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "plaque_level", "High", 0))
	require.NoError(t, store.Append(ctx, "plaque_level", "Low", 1))
	require.NoError(t, store.Close())

	out.Reset()
	require.NoError(t, cli.Run(ctx, []string{"vocabulary"}))
	assert.Contains(t, out.String(), "plaque_level:")
	assert.Contains(t, out.String(), "1  Low")

	out.Reset()
	require.NoError(t, cli.Run(ctx, []string{"vocabulary", "--json"}))
	var snapshot map[string][]string
	require.NoError(t, json.Unmarshal(out.Bytes(), &snapshot))
	assert.Equal(t, map[string][]string{"plaque_level": {"High", "Low"}}, snapshot)
}

func TestCLI_UnknownCommand(t *testing.T) {
	cli, _, out := newCLI(t)

	assert.Error(t, cli.Run(context.Background(), []string{"frobnicate"}))
	assert.Contains(t, out.String(), "Unknown command: frobnicate")
	assert.Contains(t, out.String(), "Usage:")
}

func TestCLI_Help(t *testing.T) {
	cli, _, out := newCLI(t)

	require.NoError(t, cli.Run(context.Background(), nil))
	assert.Contains(t, out.String(), "migrate up|down|version")
}

func TestCLI_MigrateRequiresAction(t *testing.T) {
	cli, _, _ := newCLI(t)

	assert.Error(t, cli.Run(context.Background(), []string{"migrate"}))
}

func TestReportVersion(t *testing.T) {
	tests := []struct {
		name    string
		version uint
		dirty   bool
		err     error
		want    string
		wantErr bool
	}{
		{name: "Empty schema", err: migrate.ErrNilVersion, want: "Schema version: none\n"},
		{name: "Applied", version: 3, want: "Schema version: 3 (dirty: false)\n"},
		{name: "Dirty", version: 2, dirty: true, want: "Schema version: 2 (dirty: true)\n"},
		{name: "Connection failure", err: errors.New("connection refused"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := reportVersion(&out, tt.version, tt.dirty, tt.err)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "connection refused")
				assert.Empty(t, out.String())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.String())
		})
	}
}
