package encoding

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// SeedConfigured seeds each of fields with the configured labels. Config keys
// match field names case-insensitively since viper lowercases map keys.
// Keys that match no field are returned sorted.
func (r *Registry) SeedConfigured(ctx context.Context, fields []string, configured map[string][]string) ([]string, error) {
	keys := make([]string, 0, len(configured))
	for key := range configured {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var unmatched []string
	for _, key := range keys {
		field, ok := matchField(fields, key)
		if !ok {
			unmatched = append(unmatched, key)
			continue
		}
		if err := r.Seed(ctx, field, configured[key]); err != nil {
			return nil, fmt.Errorf("seeding %s: %w", field, err)
		}
	}
	return unmatched, nil
}

func matchField(fields []string, key string) (string, bool) {
	for _, f := range fields {
		if strings.EqualFold(f, key) {
			return f, true
		}
	}
	return "", false
}
