package features

import (
	"context"
	"fmt"

	"github.com/disease-risk-api/internal/domain"
)

// Encoder assigns integer codes to categorical labels
type Encoder interface {
	Encode(ctx context.Context, field, label string) (int, error)
}

// Vector is a canonical feature vector in FeatureSpec column order
type Vector []float64

// Builder runs the normalize, derive and encode steps for one request
type Builder struct {
	spec       domain.FeatureSpec
	normalizer *Normalizer
	derived    []DerivedFeature
	encoder    Encoder
}

// NewBuilder creates a vector builder. Every FieldDerived entry of the feature spec
// must have a matching derived feature, and vice versa.
func NewBuilder(spec domain.FeatureSpec, derived []DerivedFeature, encoder Encoder) (*Builder, error) {
	if encoder == nil {
		return nil, fmt.Errorf("encoder is required")
	}

	declared := make(map[string]bool)
	for _, name := range spec.OfKind(domain.FieldDerived) {
		declared[name] = true
	}
	for _, d := range derived {
		if d.Compute == nil {
			return nil, fmt.Errorf("derived feature %s has no compute function", d.Name)
		}
		if !declared[d.Name] {
			return nil, fmt.Errorf("derived feature %s is not declared in the feature spec", d.Name)
		}
		delete(declared, d.Name)
	}
	for _, name := range spec.OfKind(domain.FieldDerived) {
		if declared[name] {
			return nil, fmt.Errorf("feature %s is declared derived but has no compute function", name)
		}
	}

	return &Builder{
		spec:       spec,
		normalizer: NewNormalizer(spec),
		derived:    derived,
		encoder:    encoder,
	}, nil
}

// Spec returns the feature spec the builder produces vectors for
func (b *Builder) Spec() domain.FeatureSpec {
	return b.spec
}

// Build returns a fresh vector for raw. The only failure is an encoder
// rejecting a categorical label.
func (b *Builder) Build(ctx context.Context, raw domain.RawInput) (Vector, error) {
	canonical := b.normalizer.Normalize(raw)
	applyDerived(canonical, b.derived)

	vec := make(Vector, len(b.spec))
	for i, field := range b.spec {
		v := canonical[field.Name]
		if !v.IsLabel {
			vec[i] = v.Number
			continue
		}
		code, err := b.encoder.Encode(ctx, field.Name, v.Label)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", field.Name, err)
		}
		vec[i] = float64(code)
	}
	return vec, nil
}
