package pipeline

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sells-group/persona-cli/internal/model"
)

// The simulated collaborators stand in for live discovery and fetching. Their
// output is seeded from the subject and URLs, so the same request always
// produces the same trace.

func seeded(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, p := range parts {
		_, _ = h.Write([]byte(strings.ToLower(p)))
		_, _ = h.Write([]byte{0})
	}
	return rand.New(rand.NewPCG(h.Sum64(), 0x9e3779b97f4a7c15))
}

func slug(s string) string {
	return strings.Join(tokenize(s), "-")
}

var simSites = []struct {
	host, path, title string
}{
	{"news.example.com", "interviews", "%s on the work ahead"},
	{"techweekly.example.org", "profiles", "Profile: %s"},
	{"podcasts.example.net", "episodes", "In conversation with %s"},
	{"blog.example.io", "posts", "What I learned this year, by %s"},
	{"conference.example.com", "talks", "Keynote: %s"},
	{"wiki.example.org", "people", "%s (biography)"},
	{"journal.example.edu", "features", "Research notes with %s"},
}

// SimulatedDiscoverer returns a seeded candidate list, including a few
// repeated URLs.
type SimulatedDiscoverer struct{}

// Discover implements Discoverer.
func (SimulatedDiscoverer) Discover(ctx context.Context, q DiscoveryQuery) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := seeded(q.Subject, q.TimeWindow, "discover")
	n := 18 + r.IntN(12)
	if q.Limit > 0 && n > q.Limit {
		n = q.Limit
	}

	out := make([]Candidate, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 && i%9 == 0 {
			out = append(out, out[r.IntN(len(out))])
			continue
		}
		site := simSites[r.IntN(len(simSites))]
		c := Candidate{
			URL:   fmt.Sprintf("https://%s/%s/%s-%d", site.host, site.path, slug(q.Subject), i),
			Title: fmt.Sprintf(site.title, q.Subject),
		}
		if len(q.Queries) > 0 {
			c.Query = q.Queries[i%len(q.Queries)]
		}
		out = append(out, c)
	}
	return out, nil
}

// SimulatedFetcher fabricates page content for each candidate. It does not
// wait on the plan's limiter.
type SimulatedFetcher struct {
	// Clock anchors publish dates; defaults to time.Now.
	Clock func() time.Time
}

var (
	simRoles   = []string{"chief executive", "founding director", "head of research", "president", "lead engineer"}
	simOrgs    = []string{"Northwind Labs", "Helios Institute", "Atlas Works", "Meridian Group"}
	simFields  = []string{"distributed systems", "computational biology", "energy markets", "machine learning", "urban design"}
	simBeliefs = []string{
		"the long game matters more than quick wins",
		"good research starts with a clear principle",
		"taking measured risk is the only way to learn",
		"small teams with a shared vision move fastest",
	}
	simTraits = []string{"curious", "candid", "humble", "energetic", "calm", "patient", "collaborative", "direct"}
	simFiller = []string{
		"The conversation also covered recent projects and plans for the coming year.",
		"Several former colleagues were contacted for this piece.",
		"The full transcript has been edited for length and clarity.",
		"Questions from the audience focused on hiring, funding and open problems.",
		"A recording of the session is available on request.",
	}
)

// Fetch implements Fetcher.
func (f SimulatedFetcher) Fetch(ctx context.Context, plan FetchPlan) ([]Snapshot, error) {
	now := time.Now
	if f.Clock != nil {
		now = f.Clock
	}
	langs := plan.Languages
	if len(langs) == 0 {
		langs = []string{"en"}
	}

	out := make([]Snapshot, 0, len(plan.Candidates))
	for i, c := range plan.Candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := seeded(plan.Subject, c.URL)
		snap := Snapshot{URL: c.URL, Title: c.Title, StatusCode: 200, Origin: model.SourceWebExtraction}

		switch {
		case r.IntN(10) == 0:
			snap.StatusCode = 404
		case r.IntN(14) == 0:
			snap.Content = "Just a moment... Checking your browser before accessing the site."
		case i > 0 && i%8 == 7 && out[i-1].Content != "":
			snap.Content = out[i-1].Content
			snap.Language = out[i-1].Language
			snap.Published = out[i-1].Published
		default:
			snap.Content = simPage(r, plan.Subject, c.Title)
			snap.Language = langs[0]
			if len(langs) > 1 && r.IntN(4) == 0 {
				snap.Language = langs[1+r.IntN(len(langs)-1)]
			}
			snap.Published = now().UTC().AddDate(0, 0, -r.IntN(900)).Format(time.DateOnly)
		}
		out = append(out, snap)
	}
	return out, nil
}

func simPage(r *rand.Rand, subject, title string) string {
	pick := func(list []string) string { return list[r.IntN(len(list))] }
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	var lines []string
	lines = append(lines,
		fmt.Sprintf("%s serves as %s at %s.", subject, pick(simRoles), pick(simOrgs)),
		fmt.Sprintf("%s specializes in %s, with %d years of experience in the field.", subject, pick(simFields), 5+r.IntN(25)),
	)
	belief := pick(simBeliefs)
	if r.IntN(6) == 0 {
		lines = append(lines, fmt.Sprintf("\"I don't believe %s,\" %s said.", belief, subject))
	} else {
		lines = append(lines, fmt.Sprintf("\"I believe %s,\" %s said when asked about the approach.", belief, subject))
	}
	lines = append(lines,
		fmt.Sprintf("Colleagues describe %s as %s and %s.", subject, pick(simTraits), pick(simTraits)),
		fmt.Sprintf("%s is widely known for a career spent on %s.", subject, pick(simFields)),
	)
	r.Shuffle(len(lines), func(i, j int) { lines[i], lines[j] = lines[j], lines[i] })

	for i, l := range lines {
		b.WriteString(l)
		b.WriteByte(' ')
		b.WriteString(simFiller[(i+r.IntN(len(simFiller)))%len(simFiller)])
		b.WriteString("\n\n")
	}
	return b.String()
}

// SimulatedAliasExpander derives surname and initialled forms of the subject.
type SimulatedAliasExpander struct{}

// ExpandAliases implements AliasExpander.
func (SimulatedAliasExpander) ExpandAliases(_ context.Context, subject string, known []string) ([]string, error) {
	parts := strings.Fields(subject)
	if len(parts) < 2 {
		return known, nil
	}
	last := parts[len(parts)-1]
	initial := []rune(parts[0])[0]
	return append(append([]string(nil), known...), last, fmt.Sprintf("%c. %s", initial, last)), nil
}
