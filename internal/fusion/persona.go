package fusion

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/persona-cli/internal/model"
)

const maxSummaryRunes = 180

// Compose assembles the persona card for subject. Quotes are copied and
// sorted by descending weight. In strict mode a quote only counts when its
// weight reaches the fusion weight of its attribute.
func Compose(subject string, quotes []model.QuoteEvidence, w model.FusionWeights, policy ConfidencePolicy) model.PersonaResult {
	if policy == nil {
		policy = PlaceholderPolicy{}
	}

	kept := make([]model.QuoteEvidence, 0, len(quotes))
	for _, q := range quotes {
		if w.StrictMode && q.Weight < w.AttributeWeight(q.Attribute) {
			continue
		}
		kept = append(kept, q)
	}
	model.SortQuotes(kept)

	confidence := policy.Confidence(w, kept)
	p := model.PersonaResult{
		Quotes:         kept,
		Confidence:     confidence,
		ConfidenceBand: BandFor(confidence),
	}
	p.Role = summarize(kept, model.AttrRole)
	p.Expertise = summarize(kept, model.AttrExpertise)
	p.Mindset = summarize(kept, model.AttrMindset)
	p.Personality = summarize(kept, model.AttrPersonality)
	p.Description = describe(subject, kept, p)
	return p
}

// summarize returns the strongest quote for attr, trimmed to a card-sized
// sentence, or a placeholder when there is none.
func summarize(quotes []model.QuoteEvidence, attr model.AttributeKey) string {
	for _, q := range quotes {
		if q.Attribute == attr {
			return clip(strings.Trim(strings.TrimSpace(q.Quote), `"“”`))
		}
	}
	return fmt.Sprintf("Insufficient evidence for %s.", attr)
}

func describe(subject string, quotes []model.QuoteEvidence, p model.PersonaResult) string {
	for _, q := range quotes {
		if q.Attribute == model.AttrDescription {
			return fmt.Sprintf("%s: %s", subject, clip(strings.Trim(strings.TrimSpace(q.Quote), `"“”`)))
		}
	}
	n := 0
	for _, attr := range []model.AttributeKey{model.AttrRole, model.AttrExpertise, model.AttrMindset, model.AttrPersonality} {
		if len(p.QuotesFor(attr)) > 0 {
			n++
		}
	}
	return fmt.Sprintf("%s, profiled from %d quotes across %d attributes.", subject, len(quotes), n)
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxSummaryRunes {
		return s
	}
	r := []rune(s)[:maxSummaryRunes]
	cut := strings.LastIndexByte(string(r), ' ')
	if cut <= 0 {
		return string(r) + "…"
	}
	return string(r)[:cut] + "…"
}
