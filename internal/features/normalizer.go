// Package features turns loosely-typed request payloads into the fixed-width
// numeric vectors the disease classifiers were trained on.
package features

import (
	"strings"

	"github.com/spf13/cast"

	"github.com/disease-risk-api/internal/domain"
)

// Value is the canonical form of a single field: either a number or a
// categorical label still waiting to be encoded.
type Value struct {
	Number  float64
	Label   string
	IsLabel bool
}

// Canonical holds one normalized value per declared field
type Canonical map[string]Value

// Number returns the numeric value of a field, or 0 when absent or categorical
func (c Canonical) Number(name string) float64 {
	v, ok := c[name]
	if !ok || v.IsLabel {
		return 0
	}
	return v.Number
}

// Normalizer coerces raw values according to the kind declared in the feature spec.
// It never fails: malformed values fall back to their kind's default.
type Normalizer struct {
	spec domain.FeatureSpec
}

// NewNormalizer creates a normalizer for the given feature spec
func NewNormalizer(spec domain.FeatureSpec) *Normalizer {
	return &Normalizer{spec: spec}
}

// Normalize produces a canonical value for every non-derived field in the feature spec.
// Derived fields are skipped so client-supplied values for them are ignored.
func (n *Normalizer) Normalize(raw domain.RawInput) Canonical {
	out := make(Canonical, len(n.spec))
	for _, field := range n.spec {
		val := raw[field.Name]
		switch field.Kind {
		case domain.FieldNumeric:
			out[field.Name] = Value{Number: NumericValue(val)}
		case domain.FieldBinary:
			out[field.Name] = Value{Number: BinaryValue(val)}
		case domain.FieldCategorical:
			if label, ok := CategoricalValue(val); ok {
				out[field.Name] = Value{Label: label, IsLabel: true}
			} else {
				out[field.Name] = Value{Number: 0}
			}
		}
	}
	return out
}

// NumericValue casts v to float64; missing, blank or uncastable values yield 0
func NumericValue(v interface{}) float64 {
	if isBlank(v) {
		return 0
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0
	}
	return f
}

// BinaryValue maps a case- and whitespace-insensitive "yes" to 1, anything else to 0
func BinaryValue(v interface{}) float64 {
	if isBlank(v) {
		return 0
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return 0
	}
	if strings.ToLower(strings.TrimSpace(s)) == "yes" {
		return 1
	}
	return 0
}

// CategoricalValue returns the trimmed label for v. ok is false for missing
// or blank values, which are not encoded.
func CategoricalValue(v interface{}) (string, bool) {
	if isBlank(v) {
		return "", false
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
