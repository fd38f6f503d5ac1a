package cost

import (
	"sync"

	"go.uber.org/zap"
)

// Usage is the accumulated live-collaborator consumption.
type Usage struct {
	InputTokens    int64   `json:"inputTokens"`
	OutputTokens   int64   `json:"outputTokens"`
	JinaQueries    int     `json:"jinaQueries"`
	FirecrawlPages int     `json:"firecrawlPages"`
	USD            float64 `json:"usd"`
}

// Tracker accumulates usage across concurrent runs. A nil *Tracker
// ignores every call.
type Tracker struct {
	calc *Calculator

	mu    sync.Mutex
	usage Usage
}

// NewTracker returns a Tracker pricing usage with calc.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc}
}

// AddClaude records one Anthropic message call.
func (t *Tracker) AddClaude(model string, input, output int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.InputTokens += input
	t.usage.OutputTokens += output
	t.usage.USD += t.calc.Claude(model, input, output)
}

// AddJinaQueries records n search queries.
func (t *Tracker) AddJinaQueries(n int) {
	if t == nil || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.JinaQueries += n
	t.usage.USD += t.calc.JinaSearch(n)
}

// AddFirecrawlPages records n scraped pages.
func (t *Tracker) AddFirecrawlPages(n int) {
	if t == nil || n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.usage.FirecrawlPages += n
	t.usage.USD += t.calc.FirecrawlPages(n)
}

// Usage returns a copy of the totals so far.
func (t *Tracker) Usage() Usage {
	if t == nil {
		return Usage{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.usage
}

// Log writes the totals at info level.
func (t *Tracker) Log(msg string) {
	if t == nil {
		return
	}
	u := t.Usage()
	zap.L().Info(msg,
		zap.Int64("input_tokens", u.InputTokens),
		zap.Int64("output_tokens", u.OutputTokens),
		zap.Int("jina_queries", u.JinaQueries),
		zap.Int("firecrawl_pages", u.FirecrawlPages),
		zap.Float64("estimated_usd", u.USD),
	)
}
