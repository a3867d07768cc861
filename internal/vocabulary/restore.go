package vocabulary

import (
	"context"
	"fmt"
	"sort"
)

// Restorer accepts previously persisted labels for an empty field
type Restorer interface {
	Restore(field string, labels []string) error
}

// RestoreInto loads every stored field into r and returns how many fields
// were restored
func RestoreInto(ctx context.Context, store Store, r Restorer) (int, error) {
	grouped, err := store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading vocabulary: %w", err)
	}

	fields := make([]string, 0, len(grouped))
	for field := range grouped {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		labels, err := Labels(grouped[field])
		if err != nil {
			return 0, err
		}
		if err := r.Restore(field, labels); err != nil {
			return 0, err
		}
	}
	return len(fields), nil
}
