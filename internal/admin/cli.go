// Package admin implements the operator subcommands of the server binary.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/golang-migrate/migrate/v4"
	"github.com/sirupsen/logrus"

	"github.com/disease-risk-api/internal/database"
	"github.com/disease-risk-api/internal/domain"
	"github.com/disease-risk-api/internal/model"
	"github.com/disease-risk-api/internal/storage"
	"github.com/disease-risk-api/internal/vocabulary"
)

// CLI provides the command-line interface for admin operations.
type CLI struct {
	configManager domain.ConfigManager
	logger        *logrus.Logger
	out           io.Writer
}

// NewCLI creates a new admin CLI writing its reports to out.
func NewCLI(configManager domain.ConfigManager, logger *logrus.Logger, out io.Writer) *CLI {
	return &CLI{configManager: configManager, logger: logger, out: out}
}

// Run executes the admin command named by args[0].
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.showHelp()
	}

	switch args[0] {
	case "validate":
		return c.validate()
	case "models":
		return c.showModels(args[1:])
	case "vocabulary":
		return c.showVocabulary(ctx, args[1:])
	case "migrate":
		return c.migrate(args[1:])
	case "help", "--help", "-h":
		return c.showHelp()
	default:
		fmt.Fprintf(c.out, "Unknown command: %s\n\n", args[0])
		c.showHelp()
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func (c *CLI) showHelp() error {
	fmt.Fprint(c.out, `
Disease Risk API Administration

Usage:
  disease-risk-api admin <command> [options]

Commands:
  validate             Validate configuration and load every model
  models [--top N]     List loaded models with their highest-gain features
  vocabulary [--json]  Print the persisted categorical vocabulary
  migrate up|down|version
                       Manage the PostgreSQL vocabulary schema

Examples:
  # Check a deployment before starting it
  disease-risk-api admin validate

  # Export the vocabulary for the training pipeline
  disease-risk-api admin vocabulary --json > vocabulary.json
`)
	return nil
}

// validate checks the configuration and that every model artifact loads.
func (c *CLI) validate() error {
	if err := c.configManager.Validate(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	fmt.Fprintln(c.out, "✓ Configuration is valid")

	boosters, err := c.loadModels()
	if err != nil {
		return err
	}

	width := domain.DefaultFeatureSpec().Width()
	var mismatched []string
	for _, d := range c.configManager.GetModelsConfig().Diseases {
		b := boosters[d.Name]
		if b.NumFeatures() != width {
			mismatched = append(mismatched, d.Name)
			fmt.Fprintf(c.out, "✗ %s expects %d features, requests produce %d\n", d.Name, b.NumFeatures(), width)
			continue
		}
		fmt.Fprintf(c.out, "✓ %s (%d trees)\n", d.Name, b.NumTrees())
	}

	if len(mismatched) > 0 {
		return fmt.Errorf("%d model(s) do not match the feature vector: %s", len(mismatched), strings.Join(mismatched, ", "))
	}
	return nil
}

// showModels prints one row per model and its top features by gain.
func (c *CLI) showModels(args []string) error {
	top := 5
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--top", "-n":
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a value", args[i])
			}
			if _, err := fmt.Sscanf(args[i+1], "%d", &top); err != nil || top <= 0 {
				return fmt.Errorf("invalid value for %s: %q", args[i], args[i+1])
			}
			i++
		}
	}

	boosters, err := c.loadModels()
	if err != nil {
		return err
	}

	spec := domain.DefaultFeatureSpec().Names()
	w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tNAME\tFEATURES\tTREES\tOBJECTIVE\tTOP FEATURES")
	for _, d := range c.configManager.GetModelsConfig().Diseases {
		b := boosters[d.Name]
		var names []string
		for _, fg := range model.TopFeatures(b.Importance(), top) {
			names = append(names, fmt.Sprintf("%s=%.2f", columnName(b.FeatureNames(), spec, fg.Index), fg.Gain))
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			d.Key, d.Name, b.NumFeatures(), b.NumTrees(), b.Objective(), strings.Join(names, ", "))
	}
	return w.Flush()
}

// showVocabulary prints every persisted field with its labels by code.
func (c *CLI) showVocabulary(ctx context.Context, args []string) error {
	asJSON := false
	for _, a := range args {
		if a == "--json" {
			asJSON = true
		}
	}

	store, err := storage.OpenVocabulary(ctx, c.configManager, c.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	grouped, err := store.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading vocabulary: %w", err)
	}

	snapshot := make(map[string][]string, len(grouped))
	for field, entries := range grouped {
		labels, err := vocabulary.Labels(entries)
		if err != nil {
			return err
		}
		snapshot[field] = labels
	}

	if asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(snapshot)
	}

	fields := make([]string, 0, len(snapshot))
	for f := range snapshot {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	if len(fields) == 0 {
		fmt.Fprintln(c.out, "No categorical codes have been persisted")
		return nil
	}
	for _, f := range fields {
		fmt.Fprintf(c.out, "%s:\n", f)
		for code, label := range snapshot[f] {
			fmt.Fprintf(c.out, "  %d  %s\n", code, label)
		}
	}
	return nil
}

// migrate runs schema migrations against the configured PostgreSQL database.
func (c *CLI) migrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("migrate requires one of: up, down, version")
	}

	runner, err := database.NewMigrationRunner(c.configManager.GetDatabaseURL(), c.logger)
	if err != nil {
		return fmt.Errorf("creating migration runner: %w", err)
	}
	defer runner.Close()

	switch args[0] {
	case "up":
		if err := runner.Up(); err != nil {
			return err
		}
	case "down":
		if err := runner.Down(); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("unknown migrate action %q", args[0])
	}

	version, dirty, err := runner.Version()
	return reportVersion(c.out, version, dirty, err)
}

// reportVersion prints the schema version. Only an empty schema reads as
// "none"; any other failure to read the version is returned.
func reportVersion(out io.Writer, version uint, dirty bool, err error) error {
	if errors.Is(err, migrate.ErrNilVersion) {
		fmt.Fprintln(out, "Schema version: none")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	fmt.Fprintf(out, "Schema version: %d (dirty: %t)\n", version, dirty)
	return nil
}

func (c *CLI) loadModels() (map[string]*model.Booster, error) {
	mc := c.configManager.GetModelsConfig()
	boosters, err := model.LoadDiseaseModels(mc.Dir, mc.Diseases, c.logger)
	if err != nil {
		return nil, fmt.Errorf("models: %w", err)
	}
	return boosters, nil
}

func columnName(modelNames, specNames []string, index int) string {
	if index < len(modelNames) && modelNames[index] != "" {
		return modelNames[index]
	}
	if index < len(specNames) {
		return specNames[index]
	}
	return fmt.Sprintf("f%d", index)
}
