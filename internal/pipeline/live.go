package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/persona-cli/internal/cost"
	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/resilience"
	"github.com/sells-group/persona-cli/pkg/anthropic"
	"github.com/sells-group/persona-cli/pkg/firecrawl"
	"github.com/sells-group/persona-cli/pkg/jina"
)

// retryable classifies collaborator errors for resilience.Do.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var jerr *jina.StatusError
	if errors.As(err, &jerr) {
		return resilience.IsTransientHTTPStatus(jerr.StatusCode)
	}
	var ferr *firecrawl.APIError
	if errors.As(err, &ferr) {
		return resilience.IsTransientHTTPStatus(ferr.StatusCode)
	}
	if code := anthropic.StatusCode(err); code != 0 {
		return resilience.IsTransientHTTPStatus(code)
	}
	return resilience.IsTransient(err)
}

func withRetryPolicy(cfg resilience.RetryConfig, name string) resilience.RetryConfig {
	cfg.ShouldRetry = retryable
	cfg.OnRetry = func(attempt int, err error) {
		zap.L().Warn("pipeline: retrying collaborator call",
			zap.String("collaborator", name),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return cfg
}

// JinaDiscoverer discovers candidates by running each generated query
// through Jina search.
type JinaDiscoverer struct {
	Client     jina.Client
	MaxQueries int
	Retry      resilience.RetryConfig
	Breaker    *resilience.Breaker
	Costs      *cost.Tracker
}

// Discover implements Discoverer. Individual query failures are tolerated
// as long as at least one query succeeds.
func (d *JinaDiscoverer) Discover(ctx context.Context, q DiscoveryQuery) ([]Candidate, error) {
	queries := q.Queries
	if d.MaxQueries > 0 && len(queries) > d.MaxQueries {
		queries = queries[:d.MaxQueries]
	}
	if len(queries) == 0 {
		return nil, eris.New("pipeline: no discovery queries")
	}

	var opts []jina.SearchOption
	if len(q.Languages) > 0 {
		opts = append(opts, jina.WithLanguage(q.Languages[0]))
	}
	retry := withRetryPolicy(d.Retry, "jina")

	var out []Candidate
	var lastErr error
	failed := 0
	for _, query := range queries {
		resp, err := resilience.Guard(ctx, d.Breaker, func(ctx context.Context) (*jina.SearchResponse, error) {
			return resilience.DoVal(ctx, retry, func(ctx context.Context) (*jina.SearchResponse, error) {
				return d.Client.Search(ctx, query, opts...)
			})
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			lastErr = err
			zap.L().Warn("pipeline: discovery query failed", zap.String("query", query), zap.Error(err))
			continue
		}
		d.Costs.AddJinaQueries(1)
		for _, hit := range resp.Data {
			if hit.URL == "" {
				continue
			}
			out = append(out, Candidate{
				URL:     hit.URL,
				Title:   hit.Title,
				Snippet: hit.Description,
				Query:   query,
				Date:    hit.Date,
			})
			if q.Limit > 0 && len(out) >= q.Limit {
				return out, nil
			}
		}
	}
	if failed == len(queries) {
		return nil, eris.Wrapf(lastErr, "pipeline: all %d discovery queries failed", failed)
	}
	return out, nil
}

// FirecrawlFetcher fetches candidates through Firecrawl batch scrape jobs.
type FirecrawlFetcher struct {
	Client    firecrawl.Client
	BatchSize int
	Retry     resilience.RetryConfig
	Breaker   *resilience.Breaker
	Poll      []firecrawl.PollOption
	Costs     *cost.Tracker
}

// Fetch implements Fetcher. Each URL takes one token from the plan's limiter
// before its batch is submitted.
func (f *FirecrawlFetcher) Fetch(ctx context.Context, plan FetchPlan) ([]Snapshot, error) {
	size := f.BatchSize
	if size <= 0 {
		size = 10
	}
	retry := withRetryPolicy(f.Retry, "firecrawl")
	byURL := make(map[string]Candidate, len(plan.Candidates))
	for _, c := range plan.Candidates {
		byURL[c.URL] = c
	}

	var out []Snapshot
	for start := 0; start < len(plan.Candidates); start += size {
		batch := plan.Candidates[start:min(start+size, len(plan.Candidates))]
		urls := make([]string, len(batch))
		for i, c := range batch {
			if plan.Limiter != nil {
				if err := plan.Limiter.Wait(ctx); err != nil {
					return nil, eris.Wrap(err, "pipeline: fetch rate limit")
				}
			}
			urls[i] = c.URL
		}

		status, err := resilience.Guard(ctx, f.Breaker, func(ctx context.Context) (*firecrawl.BatchScrapeStatus, error) {
			job, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*firecrawl.BatchScrapeResponse, error) {
				return f.Client.BatchScrape(ctx, firecrawl.BatchScrapeRequest{URLs: urls, OnlyMainContent: true, IgnoreInvalid: true})
			})
			if err != nil {
				return nil, err
			}
			return firecrawl.PollBatchScrape(ctx, f.Client, job.ID, f.Poll...)
		})
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: fetch batch %d", start/size+1)
		}
		f.Costs.AddFirecrawlPages(len(status.Data))

		for _, doc := range status.Data {
			loc := doc.Location()
			c, ok := byURL[doc.Metadata.SourceURL]
			if !ok {
				c = byURL[loc]
			}
			title := doc.Metadata.Title
			if title == "" {
				title = c.Title
			}
			published := doc.Metadata.PublishedTime
			if published == "" {
				published = c.Date
			}
			out = append(out, Snapshot{
				URL:        loc,
				Title:      title,
				Content:    doc.Markdown,
				Language:   doc.Metadata.Language,
				Published:  published,
				StatusCode: doc.Metadata.StatusCode,
				Origin:     model.SourceWebExtraction,
			})
		}
	}
	return out, nil
}

const aliasSystemPrompt = "You list alternative names a person or organisation is publicly known by: " +
	"maiden names, full names, common abbreviations, transliterations. " +
	"Answer with one name per line and nothing else. Answer NONE if there are none."

// AnthropicAliasExpander asks a language model for alternative names.
type AnthropicAliasExpander struct {
	Client    anthropic.Client
	Model     string
	MaxAlias  int
	Retry     resilience.RetryConfig
	MaxTokens int64
	Costs     *cost.Tracker
}

// ExpandAliases implements AliasExpander.
func (a *AnthropicAliasExpander) ExpandAliases(ctx context.Context, subject string, known []string) ([]string, error) {
	prompt := fmt.Sprintf("Name: %s", subject)
	if len(known) > 0 {
		prompt += fmt.Sprintf("\nAlready known: %s", strings.Join(known, "; "))
	}
	maxTokens := a.MaxTokens
	if maxTokens == 0 {
		maxTokens = 256
	}
	temp := 0.0

	resp, err := resilience.DoVal(ctx, withRetryPolicy(a.Retry, "anthropic"), func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return a.Client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:       a.Model,
			MaxTokens:   maxTokens,
			System:      aliasSystemPrompt,
			Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: expand aliases")
	}
	resp.Usage.Log(resp.Model, "alias_expansion")
	a.Costs.AddClaude(a.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	limit := a.MaxAlias
	if limit <= 0 {
		limit = 5
	}
	out := append([]string(nil), known...)
	for _, line := range strings.Split(resp.Text(), "\n") {
		name := strings.TrimSpace(strings.TrimLeft(line, "-*•0123456789. "))
		if name == "" || strings.EqualFold(name, "none") || strings.EqualFold(name, subject) {
			continue
		}
		out = append(out, name)
		if len(out)-len(known) >= limit {
			break
		}
	}
	return out, nil
}
