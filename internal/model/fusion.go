package model

import "fmt"

// AttributeKey names a persona attribute.
type AttributeKey string

const (
	AttrRole        AttributeKey = "role"
	AttrExpertise   AttributeKey = "expertise"
	AttrMindset     AttributeKey = "mindset"
	AttrPersonality AttributeKey = "personality"
	AttrDescription AttributeKey = "description"
)

// AttributeKeys returns the persona attributes in card order.
func AttributeKeys() []AttributeKey {
	return []AttributeKey{AttrRole, AttrExpertise, AttrMindset, AttrPersonality, AttrDescription}
}

// Valid reports whether k is a known attribute.
func (k AttributeKey) Valid() bool {
	for _, a := range AttributeKeys() {
		if a == k {
			return true
		}
	}
	return false
}

// DefaultGlobalWeight is the fusion weight applied when nothing else is configured.
const DefaultGlobalWeight = 0.7

// DefaultAttributeWeight applies to attributes without an override.
const DefaultAttributeWeight = 0.7

// FusionWeights controls how strongly evidence is fused into the persona.
type FusionWeights struct {
	Global       float64                  `json:"global"`
	PerAttribute map[AttributeKey]float64 `json:"perAttribute"`
	StrictMode   bool                     `json:"strictMode"`
}

// DefaultFusion returns {global: 0.7, perAttribute: {}, strictMode: false}.
func DefaultFusion() FusionWeights {
	return FusionWeights{
		Global:       DefaultGlobalWeight,
		PerAttribute: map[AttributeKey]float64{},
	}
}

// AttributeWeight returns the override for k, or DefaultAttributeWeight.
func (f FusionWeights) AttributeWeight(k AttributeKey) float64 {
	if w, ok := f.PerAttribute[k]; ok {
		return w
	}
	return DefaultAttributeWeight
}

// Validate checks every weight lies in [0, 1] and every override names a known attribute.
func (f FusionWeights) Validate() error {
	if f.Global < 0 || f.Global > 1 {
		return &ValidationError{Field: "fusion.global", Reason: fmt.Sprintf("must be within [0, 1], got %v", f.Global)}
	}
	for k, w := range f.PerAttribute {
		if !k.Valid() {
			return &ValidationError{Field: "fusion.perAttribute", Reason: fmt.Sprintf("unknown attribute %q", k)}
		}
		if w < 0 || w > 1 {
			return &ValidationError{Field: "fusion.perAttribute." + string(k), Reason: fmt.Sprintf("must be within [0, 1], got %v", w)}
		}
	}
	return nil
}

// Clone returns a copy that shares no map with f.
func (f FusionWeights) Clone() FusionWeights {
	out := f
	out.PerAttribute = cloneMap(f.PerAttribute)
	return out
}
