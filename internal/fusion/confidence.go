// Package fusion turns extracted evidence and fusion weights into a persona
// card, its confidence score, and the run statistics.
package fusion

import (
	"math"

	"github.com/sells-group/persona-cli/internal/model"
)

// ConfidencePolicy scores a persona. Implementations must be pure: the same
// inputs always produce the same score in [0, 1].
type ConfidencePolicy interface {
	Confidence(w model.FusionWeights, quotes []model.QuoteEvidence) float64
}

// Floor and ceiling of the placeholder confidence.
const (
	MinConfidence = 0.5
	MaxConfidence = 1.0

	globalFactor = 0.85
	strictBonus  = 0.1
)

// PlaceholderPolicy derives confidence from fusion settings alone:
// min(1, max(0.5, global*0.85 + 0.1 if strict)). Evidence is ignored.
type PlaceholderPolicy struct{}

// Confidence implements ConfidencePolicy.
func (PlaceholderPolicy) Confidence(w model.FusionWeights, _ []model.QuoteEvidence) float64 {
	c := w.Global * globalFactor
	if w.StrictMode {
		c += strictBonus
	}
	return math.Min(MaxConfidence, math.Max(MinConfidence, c))
}

// EvidencePolicy blends the placeholder score with the mean quote weight,
// each attribute weighted by its fusion override.
type EvidencePolicy struct {
	// Blend is the share given to evidence; zero behaves like PlaceholderPolicy.
	Blend float64
}

// Confidence implements ConfidencePolicy.
func (p EvidencePolicy) Confidence(w model.FusionWeights, quotes []model.QuoteEvidence) float64 {
	base := PlaceholderPolicy{}.Confidence(w, quotes)
	if p.Blend <= 0 || len(quotes) == 0 {
		return base
	}

	var sum, norm float64
	for _, q := range quotes {
		aw := w.AttributeWeight(q.Attribute)
		sum += q.Weight * aw
		norm += aw
	}
	if norm == 0 {
		return base
	}
	blend := math.Min(p.Blend, 1)
	c := (1-blend)*base + blend*(sum/norm)
	return math.Min(MaxConfidence, math.Max(MinConfidence, c))
}

// BandFor buckets a confidence score: H above 0.75, M above 0.6, else L.
func BandFor(c float64) model.Band {
	switch {
	case c > 0.75:
		return model.BandHigh
	case c > 0.6:
		return model.BandMedium
	default:
		return model.BandLow
	}
}

// PolicyByName returns the named policy; unknown names get the placeholder.
func PolicyByName(name string, blend float64) ConfidencePolicy {
	if name == "evidence" {
		return EvidencePolicy{Blend: blend}
	}
	return PlaceholderPolicy{}
}
