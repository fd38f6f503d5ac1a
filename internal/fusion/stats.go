package fusion

import (
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/sells-group/persona-cli/internal/model"
)

// DocumentStat describes one kept document.
type DocumentStat struct {
	URL           string
	Language      string
	Quality       float64
	FirstPerson   bool
	FreshnessDays float64 // negative when the publish date is unknown
}

// StatsInput is the working set a run hands over for statistics.
type StatsInput struct {
	Discovered     int
	Fetched        int
	Documents      []DocumentStat
	Chunks         int
	Tokens         int
	Quotes         []model.QuoteEvidence
	Conflicts      int
	AgreementIndex float64
	Confidence     float64
}

// BuildStats computes RunStats from the working set. Ratios and medians are
// rounded to two decimals.
func BuildStats(in StatsInput) model.RunStats {
	domains := make(map[string]bool)
	languages := make(map[string]int)
	var quality, freshness []float64
	firstPerson := 0
	for _, d := range in.Documents {
		if h := Domain(d.URL); h != "" {
			domains[h] = true
		}
		lang := d.Language
		if lang == "" {
			lang = "und"
		}
		languages[lang]++
		quality = append(quality, d.Quality)
		if d.FreshnessDays >= 0 {
			freshness = append(freshness, d.FreshnessDays)
		}
		if d.FirstPerson {
			firstPerson++
		}
	}

	perAttr := make(map[model.AttributeKey]int)
	sources := make(map[string]bool)
	quoteDomains := make(map[string]bool)
	webQuotes := 0
	for _, q := range in.Quotes {
		perAttr[q.Attribute]++
		h := Domain(q.URL)
		if h == "" {
			continue
		}
		webQuotes++
		sources[q.URL] = true
		quoteDomains[h] = true
	}

	var fpRatio, diversity float64
	if len(in.Documents) > 0 {
		fpRatio = float64(firstPerson) / float64(len(in.Documents))
	}
	if webQuotes > 0 {
		diversity = float64(len(quoteDomains)) / float64(webQuotes)
	}

	return model.RunStats{
		Coverage: model.Coverage{
			Discovered:    in.Discovered,
			Fetched:       in.Fetched,
			Kept:          len(in.Documents),
			UniqueDomains: len(domains),
			Documents:     len(in.Documents),
			Chunks:        in.Chunks,
			Tokens:        in.Tokens,
			Languages:     languages,
		},
		QualityRecency: model.QualityRecency{
			QualityMedian:       round2(median(quality)),
			FirstPersonRatio:    round2(fpRatio),
			FreshnessDaysMedian: round2(median(freshness)),
		},
		EvidenceStrength: model.EvidenceStrength{
			QuotesPerAttribute: perAttr,
			UniqueSources:      len(sources),
			DomainDiversity:    round2(diversity),
		},
		AgreementConflicts: model.AgreementConflicts{
			AgreementIndex: round2(in.AgreementIndex),
			Conflicts:      in.Conflicts,
		},
		Confidence: round2(in.Confidence),
	}
}

// Domain returns the lower-cased host of rawURL without a leading "www.".
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
