package model

// SourceKey identifies an evidence channel.
type SourceKey string

const (
	SourceAIGeneration  SourceKey = "ai_generation"
	SourceWebExtraction SourceKey = "web_extraction"
	SourceFileUpload    SourceKey = "file_upload"
	SourceQuestionnaire SourceKey = "questionnaire"
)

// SourceKeys returns the evidence channels in display order.
func SourceKeys() []SourceKey {
	return []SourceKey{SourceAIGeneration, SourceWebExtraction, SourceFileUpload, SourceQuestionnaire}
}

// Valid reports whether k names a known source.
func (k SourceKey) Valid() bool {
	switch k {
	case SourceAIGeneration, SourceWebExtraction, SourceFileUpload, SourceQuestionnaire:
		return true
	}
	return false
}

// Label returns the display name of the source.
func (k SourceKey) Label() string {
	switch k {
	case SourceAIGeneration:
		return "AI Generation"
	case SourceWebExtraction:
		return "Web Extraction"
	case SourceFileUpload:
		return "File Upload"
	case SourceQuestionnaire:
		return "Questionnaire"
	}
	return string(k)
}

// Source is one evidence channel's share of the fusion budget.
// Weight is an integer percentage in [0, 100].
type Source struct {
	Key     SourceKey `json:"key"`
	Label   string    `json:"label"`
	Weight  int       `json:"weight"`
	Enabled bool      `json:"enabled"`
}

// DefaultSources returns the initial allocation: 40/15/15/30, all enabled.
func DefaultSources() []Source {
	weights := map[SourceKey]int{
		SourceAIGeneration:  40,
		SourceWebExtraction: 15,
		SourceFileUpload:    15,
		SourceQuestionnaire: 30,
	}
	out := make([]Source, 0, len(weights))
	for _, k := range SourceKeys() {
		out = append(out, Source{Key: k, Label: k.Label(), Weight: weights[k], Enabled: true})
	}
	return out
}

// EnabledTotal sums the weights of enabled sources.
func EnabledTotal(sources []Source) int {
	total := 0
	for _, s := range sources {
		if s.Enabled {
			total += s.Weight
		}
	}
	return total
}
