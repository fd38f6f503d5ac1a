package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00},
			"sonnet": {Input: 3.00, Output: 15.00},
		},
		Jina:      JinaRate{PerQuery: 0.001},
		Firecrawl: FirecrawlRate{PlanMonthly: 30.0, CreditsIncluded: 3000},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{name: "haiku", model: "haiku", input: 1000000, output: 100000, want: 0.80 + 0.40},
		{name: "sonnet", model: "sonnet", input: 1000000, output: 100000, want: 3.00 + 1.50},
		{name: "alias prompt", model: "haiku", input: 120, output: 40, want: 120.0/1e6*0.80 + 40.0/1e6*4.00},
		{name: "unknown model returns 0", model: "unknown", input: 1000000, output: 1000000},
		{name: "zero tokens returns 0", model: "haiku"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, calc.Claude(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestJinaSearchAndFirecrawlPages(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.006, calc.JinaSearch(6), 1e-9)
	assert.InDelta(t, 0.0, calc.JinaSearch(0), 1e-9)
	assert.InDelta(t, 0.25, calc.FirecrawlPages(25), 1e-9)

	noPlan := NewCalculator(Rates{})
	assert.InDelta(t, 0.0, noPlan.FirecrawlPages(25), 1e-9)
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()

	assert.Contains(t, rates.Anthropic, "claude-haiku-4-5-20251001")
	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
	assert.Greater(t, rates.Jina.PerQuery, 0.0)
	assert.InDelta(t, 19.0, rates.Firecrawl.PlanMonthly, 0.001)
}

func TestTracker(t *testing.T) {
	t.Parallel()
	tr := NewTracker(NewCalculator(testRates()))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.AddClaude("haiku", 1000, 100)
			tr.AddJinaQueries(2)
			tr.AddFirecrawlPages(3)
		}()
	}
	wg.Wait()

	u := tr.Usage()
	assert.Equal(t, int64(10000), u.InputTokens)
	assert.Equal(t, int64(1000), u.OutputTokens)
	assert.Equal(t, 20, u.JinaQueries)
	assert.Equal(t, 30, u.FirecrawlPages)
	want := 10*(1000.0/1e6*0.80+100.0/1e6*4.00) + 20*0.001 + 30*0.01
	assert.InDelta(t, want, u.USD, 1e-9)
}

func TestTracker_NilIsNoop(t *testing.T) {
	t.Parallel()
	var tr *Tracker
	tr.AddClaude("haiku", 10, 10)
	tr.AddJinaQueries(1)
	tr.AddFirecrawlPages(1)
	tr.Log("noop")
	assert.Equal(t, Usage{}, tr.Usage())
}
