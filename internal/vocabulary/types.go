// Package vocabulary persists the categorical code assignments so that a
// label keeps its code across restarts.
package vocabulary

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Entry is one persisted label to code assignment.
type Entry struct {
	Field     string    `json:"field"`
	Label     string    `json:"label"`
	Code      int       `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Store defines the interface for vocabulary storage operations.
type Store interface {
	// Load returns every stored entry grouped by field, each group ordered by code.
	Load(ctx context.Context) (map[string][]Entry, error)

	// Append records a new assignment. Re-appending an identical entry is a
	// no-op; a label or code that is already bound differently is an error.
	Append(ctx context.Context, field, label string, code int) error

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// Labels converts a field's entries into labels indexed by code. Codes must
// be dense and start at 0.
func Labels(entries []Entry) ([]string, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Code < sorted[j].Code })

	labels := make([]string, len(sorted))
	for i, e := range sorted {
		if e.Code != i {
			return nil, fmt.Errorf("field %s: expected code %d, found %d for %q", e.Field, i, e.Code, e.Label)
		}
		labels[i] = e.Label
	}
	return labels, nil
}

// ConflictError reports an Append that contradicts an existing assignment.
type ConflictError struct {
	Field string
	Label string
	Code  int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("vocabulary conflict: %s=%q cannot take code %d", e.Field, e.Label, e.Code)
}

func groupEntries(entries []Entry) map[string][]Entry {
	out := make(map[string][]Entry)
	for _, e := range entries {
		out[e.Field] = append(out[e.Field], e)
	}
	for field := range out {
		group := out[field]
		sort.Slice(group, func(i, j int) bool { return group[i].Code < group[j].Code })
	}
	return out
}
