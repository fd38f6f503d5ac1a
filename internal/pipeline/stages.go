package pipeline

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/sells-group/persona-cli/internal/fusion"
	"github.com/sells-group/persona-cli/internal/model"
)

type stageFunc func(ctx context.Context, sc *stageContext, st *runState) error

// stageFuncs is indexed by stage position and must list every stage.
var stageFuncs = []stageFunc{
	stageInitialize,
	stageSeedAliases,
	stageQueryGeneration,
	stageSourceDiscovery,
	stageComplianceScheduling,
	stageFetching,
	stageNormalization,
	stageQualityScoring,
	stageDeduplication,
	stageSegmentation,
	stageTargetedRetrieval,
	stageAttributeExtraction,
	stageContradictions,
	stageQuestionnaireFusion,
	stageFusionConfidence,
	stagePersonaAssembly,
	stageStatistics,
}

const (
	maxQueries      = 24
	maxQueryAliases = 2
	chunkTokens     = 60
)

var queryTemplates = []string{"%s interview", "%s biography", "%s keynote talk", "%s opinion", "%s profile"}

type document struct {
	url       string
	title     string
	text      string
	lang      string
	origin    model.SourceKey
	freshness float64
	quality   float64
	fpShare   float64
	blocked   bool
}

type chunk struct {
	id   string
	doc  int
	text string
	vec  vector
}

type scoredChunk struct {
	chunk int
	score float64
}

type evidence struct {
	quote  model.QuoteEvidence
	origin model.SourceKey
}

// runState is the working set handed from stage to stage.
type runState struct {
	req       *prepared
	o         *Orchestrator
	createdAt time.Time

	aliases    []string
	queries    []string
	candidates []Candidate
	discovered int
	plan       FetchPlan
	snapshots  []Snapshot
	fetched    int
	docs       []document
	chunks     []chunk
	tokens     int
	retrieved  map[model.AttributeKey][]scoredChunk
	evidence   []evidence
	conflicts  int
	agreement  float64
	persona    *model.PersonaResult
	stats      *model.RunStats
}

func newRunState(p *prepared, o *Orchestrator, createdAt time.Time) *runState {
	return &runState{req: p, o: o, createdAt: createdAt, aliases: p.Aliases}
}

func (st *runState) names() []string {
	return append([]string{st.req.Subject}, st.aliases...)
}

func (st *runState) share(k model.SourceKey) int {
	return st.req.allocation.Allocation()[k]
}

func stageInitialize(_ context.Context, sc *stageContext, st *runState) error {
	mode := "simulated"
	if st.o.live {
		mode = "live"
	}
	sc.logf("mode: %s", mode)
	sc.logf("subject: %s", st.req.Subject)
	if st.req.repaired {
		sc.logf("allocation repaired: enabled weights did not sum to %d, normalized", 100)
	}
	sc.logf("sources: %s", st.req.allocation)
	fw := st.req.Fusion
	sc.logf("fusion: global %.2f, strict mode %t, %d attribute overrides", fw.Global, fw.StrictMode, len(fw.PerAttribute))
	window := st.req.TimeWindow
	if window == "" {
		window = "any"
	}
	sc.logf("languages: %s; time window: %s", strings.Join(st.req.Languages, ", "), window)
	return nil
}

func stageSeedAliases(ctx context.Context, sc *stageContext, st *runState) error {
	switch {
	case st.o.expander == nil:
		sc.logf("alias expansion disabled")
	case st.share(model.SourceAIGeneration) == 0:
		sc.logf("alias expansion skipped: %s source disabled", model.SourceAIGeneration)
	default:
		var expanded []string
		err := sc.call(ctx, "alias expander", func(ctx context.Context) error {
			var err error
			expanded, err = st.o.expander.ExpandAliases(ctx, st.req.Subject, st.aliases)
			return err
		})
		if err != nil {
			// Expansion only enriches queries; the seed aliases are enough to continue.
			sc.logf("alias expansion unavailable: %v", err)
		} else {
			st.aliases = dedupeFold(expanded, st.req.Subject)
		}
	}
	if st.aliases == nil {
		st.aliases = []string{}
	}
	sc.e.setAliases(st.aliases)
	if len(st.aliases) == 0 {
		sc.logf("aliases: none")
	} else {
		sc.logf("aliases: %s", strings.Join(st.aliases, "; "))
	}
	return nil
}

func stageQueryGeneration(_ context.Context, sc *stageContext, st *runState) error {
	names := st.names()
	if len(names) > maxQueryAliases+1 {
		names = names[:maxQueryAliases+1]
	}
	st.queries = buildQueries(names, st.req.TimeWindow, maxQueries)
	sc.logf("generated %d queries from %d names", len(st.queries), len(names))
	for _, q := range st.queries[:min(3, len(st.queries))] {
		sc.logf("query: %s", q)
	}
	return nil
}

// buildQueries expands every template for every name, template-major,
// stopping at limit queries.
func buildQueries(names []string, timeWindow string, limit int) []string {
	var out []string
	for _, tmpl := range queryTemplates {
		for _, n := range names {
			if limit > 0 && len(out) == limit {
				return out
			}
			q := fmt.Sprintf(tmpl, `"`+n+`"`)
			if timeWindow != "" {
				q += " " + timeWindow
			}
			out = append(out, q)
		}
	}
	return out
}

func stageSourceDiscovery(ctx context.Context, sc *stageContext, st *runState) error {
	if st.share(model.SourceWebExtraction) == 0 {
		sc.logf("web extraction disabled: discovery skipped")
		return nil
	}
	var raw []Candidate
	err := sc.call(ctx, "source discovery", func(ctx context.Context) error {
		var err error
		raw, err = st.o.discoverer.Discover(ctx, DiscoveryQuery{
			Subject:    st.req.Subject,
			TimeWindow: st.req.TimeWindow,
			Aliases:    st.aliases,
			Languages:  st.req.Languages,
			Queries:    st.queries,
			Limit:      st.o.pipeline.MaxCandidates,
		})
		return err
	})
	if err != nil {
		return err
	}
	st.discovered = len(raw)

	seen := make(map[string]bool, len(raw))
	domains := make(map[string]bool)
	for _, c := range raw {
		key := canonicalURL(c.URL)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		st.candidates = append(st.candidates, c)
		domains[fusion.Domain(c.URL)] = true
		if limit := st.o.pipeline.MaxCandidates; limit > 0 && len(st.candidates) >= limit {
			break
		}
	}
	sc.logf("discovered %d candidates, %d after removing duplicates", len(raw), len(st.candidates))
	sc.logf("unique domains: %d", len(domains))
	return nil
}

func canonicalURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Fragment = ""
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Scheme = strings.ToLower(u.Scheme)
	return strings.TrimSuffix(u.String(), "/")
}

func stageComplianceScheduling(_ context.Context, sc *stageContext, st *runState) error {
	cc := st.o.compliance
	limit := rate.Inf
	if cc.RequestsPerSecond > 0 {
		limit = rate.Limit(cc.RequestsPerSecond)
	}
	burst := max(cc.Burst, 1)
	st.plan = FetchPlan{
		Subject:   st.req.Subject,
		Languages: st.req.Languages,
		Limiter:   rate.NewLimiter(limit, burst),
	}

	if st.share(model.SourceWebExtraction) == 0 {
		sc.logf("web extraction disabled: no fetches scheduled")
		return nil
	}

	var blocked, invalid int
	for _, c := range st.candidates {
		u, err := url.Parse(c.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			invalid++
			continue
		}
		if isBlocked(fusion.Domain(c.URL), cc.BlockedDomains) {
			blocked++
			continue
		}
		st.plan.Candidates = append(st.plan.Candidates, c)
	}
	sc.logf("scheduled %d of %d candidates (blocked %d, invalid %d)", len(st.plan.Candidates), len(st.candidates), blocked, invalid)
	if limit == rate.Inf {
		sc.logf("rate limit: none")
	} else {
		sc.logf("rate limit: %.1f req/s, burst %d", cc.RequestsPerSecond, burst)
	}
	return nil
}

func isBlocked(host string, blocked []string) bool {
	for _, b := range blocked {
		b = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(b)), "www.")
		if b != "" && (host == b || strings.HasSuffix(host, "."+b)) {
			return true
		}
	}
	return false
}

func stageFetching(ctx context.Context, sc *stageContext, st *runState) error {
	if len(st.plan.Candidates) == 0 {
		sc.logf("nothing to fetch")
	} else {
		var snaps []Snapshot
		err := sc.call(ctx, "content fetch", func(ctx context.Context) error {
			var err error
			snaps, err = st.o.fetcher.Fetch(ctx, st.plan)
			return err
		})
		if err != nil {
			return err
		}
		failed := 0
		for _, s := range snaps {
			if s.OK() {
				st.fetched++
			} else {
				failed++
			}
		}
		st.snapshots = snaps
		sc.logf("fetched %d of %d pages (%d failed)", st.fetched, len(st.plan.Candidates), failed)
	}

	if n := len(st.req.Uploads); n > 0 {
		if st.share(model.SourceFileUpload) == 0 {
			sc.logf("uploads ignored: %s source disabled", model.SourceFileUpload)
			return nil
		}
		for _, u := range st.req.Uploads {
			st.snapshots = append(st.snapshots, Snapshot{
				URL:     "upload://" + url.PathEscape(u.Name),
				Title:   u.Name,
				Content: u.Content,
				Origin:  model.SourceFileUpload,
			})
		}
		sc.logf("added %d uploaded documents", n)
	}
	return nil
}

func stageNormalization(_ context.Context, sc *stageContext, st *runState) error {
	wanted := make(map[language.Base]bool, len(st.req.Languages))
	for _, l := range st.req.Languages {
		b, _ := language.Make(l).Base()
		wanted[b] = true
	}
	fallback, _ := language.Make(st.req.Languages[0]).Base()

	var empty, foreign int
	for _, s := range st.snapshots {
		if !s.OK() {
			continue
		}
		text := normalizeText(s.Content)
		if text == "" {
			empty++
			continue
		}
		lang := fallback.String()
		if tag, err := language.Parse(s.Language); err == nil && s.Language != "" {
			b, _ := tag.Base()
			if !wanted[b] {
				foreign++
				continue
			}
			lang = b.String()
		}
		st.docs = append(st.docs, document{
			url:       s.URL,
			title:     strings.TrimSpace(s.Title),
			text:      text,
			lang:      lang,
			origin:    s.Origin,
			freshness: freshnessDays(s.Published, st.createdAt),
		})
	}
	sc.logf("normalized %d documents to NFC (dropped %d empty, %d in other languages)", len(st.docs), empty, foreign)
	return nil
}

func freshnessDays(published string, at time.Time) float64 {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, strings.TrimSpace(published)); err == nil {
			return max(0, float64(int(at.Sub(t).Hours()/24)))
		}
	}
	return -1
}

func stageQualityScoring(_ context.Context, sc *stageContext, st *runState) error {
	threshold := st.o.pipeline.QualityThreshold
	names := st.names()
	kept := st.docs[:0]
	var blocked, low int
	var scores []float64
	for _, d := range st.docs {
		tokens := tokenize(d.text)
		d.fpShare = firstPersonShare(tokens)
		d.blocked = looksBlocked(d.text)
		if !d.blocked {
			d.quality = 0.5 * min(1, float64(len(tokens))/300)
			if mentions(d.text, names) {
				d.quality += 0.3
			}
			if d.freshness >= 0 {
				d.quality += 0.1
			}
			if d.title != "" {
				d.quality += 0.1
			}
			d.quality = round2(d.quality)
		}
		switch {
		case d.blocked:
			blocked++
		case d.origin != model.SourceFileUpload && d.quality < threshold:
			low++
		default:
			kept = append(kept, d)
			scores = append(scores, d.quality)
		}
	}
	st.docs = kept
	sc.logf("kept %d documents at quality >= %.2f (rejected %d low quality, %d blocked pages)", len(kept), threshold, low, blocked)
	if len(scores) > 0 {
		sort.Float64s(scores)
		sc.logf("quality range %.2f to %.2f", scores[0], scores[len(scores)-1])
	}
	return nil
}

func stageDeduplication(_ context.Context, sc *stageContext, st *runState) error {
	seen := make(map[uint64]bool, len(st.docs))
	kept := st.docs[:0]
	for _, d := range st.docs {
		h := contentHash(d.text)
		if seen[h] {
			continue
		}
		seen[h] = true
		kept = append(kept, d)
	}
	removed := len(st.docs) - len(kept)
	st.docs = kept
	sc.logf("removed %d duplicate documents; %d unique remain", removed, len(kept))
	return nil
}

func stageSegmentation(_ context.Context, sc *stageContext, st *runState) error {
	for di, d := range st.docs {
		var buf []string
		n := 0
		flush := func() {
			if len(buf) == 0 {
				return
			}
			text := strings.Join(buf, " ")
			st.chunks = append(st.chunks, chunk{
				id:   fmt.Sprintf("d%03d-c%02d", di, n),
				doc:  di,
				text: text,
				vec:  embed(tokenize(text)),
			})
			n++
			buf = buf[:0]
		}
		count := 0
		for _, s := range sentences(d.text) {
			t := len(tokenize(s))
			if count+t > chunkTokens {
				flush()
				count = 0
			}
			buf = append(buf, s)
			count += t
			st.tokens += t
		}
		flush()
	}
	sc.logf("segmented %d documents into %d chunks (%d tokens)", len(st.docs), len(st.chunks), st.tokens)
	sc.logf("embedded chunks as %d-dimension hashed term vectors", vectorDims)
	return nil
}

func stageTargetedRetrieval(_ context.Context, sc *stageContext, st *runState) error {
	k := max(st.o.pipeline.QuotesPerAttribute, 1) * 3
	st.retrieved = make(map[model.AttributeKey][]scoredChunk, len(model.AttributeKeys()))
	for _, attr := range model.AttributeKeys() {
		qv := embed(attributeTerms[attr])
		var hits []scoredChunk
		for i, c := range st.chunks {
			if s := cosine(qv, c.vec); s > 0 {
				hits = append(hits, scoredChunk{chunk: i, score: s})
			}
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
		if len(hits) > k {
			hits = hits[:k]
		}
		st.retrieved[attr] = hits
		top := 0.0
		if len(hits) > 0 {
			top = hits[0].score
		}
		sc.logf("%s: %d chunks retrieved (top similarity %.2f)", attr, len(hits), top)
	}
	return nil
}

func stageAttributeExtraction(_ context.Context, sc *stageContext, st *runState) error {
	limit := max(st.o.pipeline.QuotesPerAttribute, 1)
	names := st.names()
	counts := make([]string, 0, len(model.AttributeKeys()))
	for _, attr := range model.AttributeKeys() {
		seen := make(map[string]bool)
		var found []evidence
		for _, hit := range st.retrieved[attr] {
			c := st.chunks[hit.chunk]
			d := st.docs[c.doc]
			for _, s := range sentences(c.text) {
				terms := matchesTerms(tokenize(s), attr)
				if terms == 0 || seen[s] {
					continue
				}
				seen[s] = true
				w := 0.45 + 0.15*float64(min(terms, 3))
				if mentions(s, names) {
					w += 0.1
				}
				found = append(found, evidence{
					origin: d.origin,
					quote: model.QuoteEvidence{
						Attribute: attr,
						Quote:     s,
						URL:       d.url,
						Title:     d.title,
						Date:      publishDate(d.freshness, st.createdAt),
						ChunkID:   c.id,
						Weight:    round2(min(w, 0.95)),
					},
				})
			}
		}
		sort.SliceStable(found, func(i, j int) bool { return found[i].quote.Weight > found[j].quote.Weight })
		if len(found) > limit {
			found = found[:limit]
		}
		st.evidence = append(st.evidence, found...)
		counts = append(counts, fmt.Sprintf("%s %d", attr, len(found)))
	}
	sc.logf("extracted %d quotes: %s", len(st.evidence), strings.Join(counts, ", "))
	return nil
}

func publishDate(freshness float64, at time.Time) string {
	if freshness < 0 {
		return ""
	}
	return at.AddDate(0, 0, -int(freshness)).Format(time.DateOnly)
}

func stageContradictions(_ context.Context, sc *stageContext, st *runState) error {
	conflicted := make(map[int]bool)
	for i := range st.evidence {
		for j := i + 1; j < len(st.evidence); j++ {
			a, b := st.evidence[i].quote, st.evidence[j].quote
			if a.Attribute != b.Attribute {
				continue
			}
			ta, tb := tokenize(a.Quote), tokenize(b.Quote)
			if negated(ta) == negated(tb) || sharedContent(ta, tb) < 3 {
				continue
			}
			st.conflicts++
			conflicted[i], conflicted[j] = true, true
		}
	}
	st.agreement = 1
	if len(st.evidence) > 0 {
		st.agreement = 1 - float64(len(conflicted))/float64(len(st.evidence))
	}
	sc.logf("found %d conflicting quote pairs; agreement index %.2f", st.conflicts, st.agreement)
	return nil
}

func sharedContent(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		if !stopwords[t] && !negations[t] {
			set[t] = true
		}
	}
	n := 0
	for _, t := range b {
		if set[t] {
			n++
			delete(set, t)
		}
	}
	return n
}

func stageQuestionnaireFusion(_ context.Context, sc *stageContext, st *runState) error {
	answers := st.req.QuestionnaireAnswers
	if len(answers) == 0 {
		sc.logf("skipped: no questionnaire answers")
		return nil
	}
	if st.share(model.SourceQuestionnaire) == 0 {
		sc.logf("skipped: %s source disabled", model.SourceQuestionnaire)
		return nil
	}
	for _, item := range QuestionnaireItems {
		score, ok := answers[item.Key]
		if !ok {
			continue
		}
		st.evidence = append(st.evidence, evidence{
			origin: model.SourceQuestionnaire,
			quote: model.QuoteEvidence{
				Attribute: item.Attribute,
				Quote:     fmt.Sprintf("%s: %d/100", item.Label, score),
				Title:     "Questionnaire",
				Date:      st.createdAt.Format(time.DateOnly),
				Weight:    round2(float64(score) / 100),
			},
		})
		sc.logf("%s %d/100 -> %s", item.Key, score, item.Attribute)
	}
	return nil
}

// sourceFactor scales evidence by its channel's share of the budget.
func sourceFactor(share int) float64 {
	return 0.8 + 0.4*float64(share)/100
}

func stageFusionConfidence(_ context.Context, sc *stageContext, st *runState) error {
	alloc := st.req.allocation.Allocation()
	var quotes []model.QuoteEvidence
	dropped := 0
	used := make(map[model.SourceKey]int)
	for _, ev := range st.evidence {
		share := alloc[ev.origin]
		if share == 0 {
			dropped++
			continue
		}
		q := ev.quote
		q.Weight = round2(min(1, q.Weight*sourceFactor(share)))
		quotes = append(quotes, q)
		used[ev.origin]++
	}
	for _, k := range model.SourceKeys() {
		if n := used[k]; n > 0 {
			sc.logf("%s: %d quotes at %d%% (x%.2f)", k, n, alloc[k], sourceFactor(alloc[k]))
		}
	}
	if dropped > 0 {
		sc.logf("dropped %d quotes from disabled sources", dropped)
	}

	p := fusion.Compose(st.req.Subject, quotes, *st.req.Fusion, st.o.policy)
	if st.req.Fusion.StrictMode {
		sc.logf("strict mode: %d of %d quotes meet their attribute weight", len(p.Quotes), len(quotes))
	}
	sc.logf("confidence %.2f (band %s)", p.Confidence, p.ConfidenceBand)
	st.persona = &p
	return nil
}

func stagePersonaAssembly(_ context.Context, sc *stageContext, st *runState) error {
	p := st.persona
	for _, attr := range model.AttributeKeys() {
		sc.logf("%s: %s (%d quotes)", attr, p.Attribute(attr), len(p.QuotesFor(attr)))
	}
	for _, q := range p.Quotes {
		if !q.Attribute.Valid() {
			return eris.Errorf("pipeline: quote tagged with unknown attribute %q", q.Attribute)
		}
	}
	return nil
}

func stageStatistics(_ context.Context, sc *stageContext, st *runState) error {
	docs := make([]fusion.DocumentStat, len(st.docs))
	for i, d := range st.docs {
		docs[i] = fusion.DocumentStat{
			URL:           d.url,
			Language:      d.lang,
			Quality:       d.quality,
			FirstPerson:   d.fpShare >= 0.01,
			FreshnessDays: d.freshness,
		}
	}
	stats := fusion.BuildStats(fusion.StatsInput{
		Discovered:     st.discovered,
		Fetched:        st.fetched,
		Documents:      docs,
		Chunks:         len(st.chunks),
		Tokens:         st.tokens,
		Quotes:         st.persona.Quotes,
		Conflicts:      st.conflicts,
		AgreementIndex: st.agreement,
		Confidence:     st.persona.Confidence,
	})
	st.stats = &stats

	c := stats.Coverage
	sc.logf("coverage: %d discovered, %d fetched, %d kept across %d domains", c.Discovered, c.Fetched, c.Kept, c.UniqueDomains)
	sc.logf("quality median %.2f, first-person ratio %.2f, freshness median %.0f days",
		stats.QualityRecency.QualityMedian, stats.QualityRecency.FirstPersonRatio, stats.QualityRecency.FreshnessDaysMedian)
	sc.logf("verified %d quotes from %d sources", len(st.persona.Quotes), stats.EvidenceStrength.UniqueSources)
	return nil
}
