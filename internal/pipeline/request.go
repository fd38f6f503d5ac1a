package pipeline

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/persona-cli/internal/allocator"
	"github.com/sells-group/persona-cli/internal/model"
)

const maxSubjectRunes = 200

// Upload is a document handed over by the file upload channel.
type Upload struct {
	Name    string `yaml:"name" json:"name"`
	Content string `yaml:"content" json:"content"`
}

// Request describes one run.
type Request struct {
	Subject              string               `yaml:"subject" json:"subject"`
	Aliases              []string             `yaml:"aliases" json:"aliases"`
	TimeWindow           string               `yaml:"time_window" json:"timeWindow"`
	Languages            []string             `yaml:"languages" json:"languages"`
	Sources              []model.Source       `yaml:"sources" json:"sources,omitempty"`
	Fusion               *model.FusionWeights `yaml:"fusion" json:"fusion,omitempty"`
	QuestionnaireAnswers map[string]int       `yaml:"questionnaire" json:"questionnaireAnswers,omitempty"`
	Uploads              []Upload             `yaml:"uploads" json:"uploads,omitempty"`
}

// ParseAliases splits a ";"-separated alias list, dropping blanks.
func ParseAliases(s string) []string {
	return splitList(s, ";")
}

// ParseLanguages splits a ","-separated language list, dropping blanks.
func ParseLanguages(s string) []string {
	return splitList(s, ",")
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// prepared is a validated request ready to seed a RunRecord.
type prepared struct {
	Request
	allocation *allocator.Allocator
	repaired   bool
}

// validate checks the request and fills defaults. Nothing is applied when it
// returns an error.
func (r Request) validate(defaults model.FusionWeights) (*prepared, error) {
	p := &prepared{Request: r}

	p.Subject = strings.TrimSpace(r.Subject)
	if p.Subject == "" {
		return nil, &model.ValidationError{Field: "subject", Reason: "required"}
	}
	if utf8.RuneCountInString(p.Subject) > maxSubjectRunes {
		return nil, &model.ValidationError{Field: "subject", Reason: fmt.Sprintf("longer than %d characters", maxSubjectRunes)}
	}
	p.TimeWindow = strings.TrimSpace(r.TimeWindow)
	p.Aliases = dedupeFold(r.Aliases, p.Subject)

	p.Languages = nil
	for _, raw := range r.Languages {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		tag, err := language.Parse(raw)
		if err != nil {
			return nil, &model.ValidationError{Field: "languages", Reason: fmt.Sprintf("invalid language %q", raw)}
		}
		p.Languages = appendUnique(p.Languages, tag.String())
	}
	if len(p.Languages) == 0 {
		p.Languages = []string{"en"}
	}

	if r.Sources == nil {
		p.allocation = allocator.New()
	} else {
		a, err := allocator.FromSources(r.Sources)
		if err != nil {
			return nil, err
		}
		p.allocation = a
		p.repaired = !sameWeights(r.Sources, a.Sources())
	}

	fw := defaults.Clone()
	if r.Fusion != nil {
		fw = r.Fusion.Clone()
	}
	if err := fw.Validate(); err != nil {
		return nil, err
	}
	p.Fusion = &fw

	if err := validateAnswers(r.QuestionnaireAnswers); err != nil {
		return nil, err
	}
	for i, u := range r.Uploads {
		if strings.TrimSpace(u.Content) == "" {
			return nil, &model.ValidationError{Field: "uploads", Reason: fmt.Sprintf("upload %d is empty", i)}
		}
	}
	return p, nil
}

// sameWeights reports whether the caller's list already satisfied the budget.
// The lists may differ in order.
func sameWeights(in, out []model.Source) bool {
	got := make(map[model.SourceKey]int, len(out))
	for _, s := range out {
		got[s.Key] = s.Weight
	}
	for _, s := range in {
		if w, ok := got[s.Key]; !ok || w != s.Weight {
			return false
		}
	}
	return true
}

func dedupeFold(names []string, subject string) []string {
	seen := map[string]bool{strings.ToLower(subject): true}
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		key := strings.ToLower(n)
		if n == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}

// DecodeRequests reads one request, or a list of requests, from YAML.
func DecodeRequests(data []byte) ([]Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, eris.New("pipeline: empty request file")
	}
	if trimmed[0] == '-' {
		var reqs []Request
		if err := yaml.Unmarshal(data, &reqs); err != nil {
			return nil, eris.Wrap(err, "pipeline: decode request list")
		}
		return reqs, nil
	}
	var req Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode request")
	}
	return []Request{req}, nil
}
