package features

import (
	"gonum.org/v1/gonum/floats/scalar"

	"github.com/disease-risk-api/internal/domain"
)

// DerivedFeature is a model input computed from already-normalized fields.
// Compute must be pure; it may read derived values declared before it.
type DerivedFeature struct {
	Name    string
	Compute func(c Canonical) float64
}

// BoneLossPercent is the alveolar bone loss relative to root length, as a
// percentage rounded to one decimal. It is 0 when root length is not positive.
var BoneLossPercent = DerivedFeature{
	Name: domain.FeatureBoneLossPercent,
	Compute: func(c Canonical) float64 {
		root := c.Number(domain.FeatureTotalRootLength)
		if root <= 0 {
			return 0.0
		}
		cej := c.Number(domain.FeatureCEJToBoneCrest)
		return scalar.RoundEven(cej/root*100, 1)
	},
}

// DefaultDerivedFeatures returns the derived features of DefaultFeatureSpec
func DefaultDerivedFeatures() []DerivedFeature {
	return []DerivedFeature{BoneLossPercent}
}

// applyDerived evaluates each derived feature in declaration order and stores
// the result back into c, overwriting anything already present
func applyDerived(c Canonical, derived []DerivedFeature) {
	for _, d := range derived {
		c[d.Name] = Value{Number: d.Compute(c)}
	}
}
