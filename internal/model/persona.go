package model

import (
	"sort"
)

// Band is the coarse confidence bucket shown on the persona card.
type Band string

const (
	BandHigh   Band = "H"
	BandMedium Band = "M"
	BandLow    Band = "L"
)

// QuoteEvidence is a verbatim snippet backing one persona attribute.
type QuoteEvidence struct {
	Attribute AttributeKey `json:"attribute"`
	Quote     string       `json:"quote"`
	URL       string       `json:"url"`
	Title     string       `json:"title"`
	Date      string       `json:"date"`
	ChunkID   string       `json:"chunk_id,omitempty"`
	Weight    float64      `json:"weight"`
}

// PersonaResult is the assembled persona card.
type PersonaResult struct {
	Role           string          `json:"role"`
	Expertise      string          `json:"expertise"`
	Mindset        string          `json:"mindset"`
	Personality    string          `json:"personality"`
	Description    string          `json:"description"`
	Quotes         []QuoteEvidence `json:"quotes"`
	Confidence     float64         `json:"confidence"`
	ConfidenceBand Band            `json:"confidenceBand"`
}

// Attribute returns the text of the named attribute.
func (p PersonaResult) Attribute(k AttributeKey) string {
	switch k {
	case AttrRole:
		return p.Role
	case AttrExpertise:
		return p.Expertise
	case AttrMindset:
		return p.Mindset
	case AttrPersonality:
		return p.Personality
	case AttrDescription:
		return p.Description
	}
	return ""
}

// SortQuotes orders quotes by descending weight, keeping input order among ties.
func SortQuotes(quotes []QuoteEvidence) {
	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Weight > quotes[j].Weight
	})
}

// QuotesFor returns the quotes backing attribute k in their current order.
func (p PersonaResult) QuotesFor(k AttributeKey) []QuoteEvidence {
	var out []QuoteEvidence
	for _, q := range p.Quotes {
		if q.Attribute == k {
			out = append(out, q)
		}
	}
	return out
}
