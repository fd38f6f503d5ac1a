// Package firecrawl is a minimal client for the Firecrawl v2 batch scrape API.
package firecrawl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultBaseURL is the Firecrawl v2 API root.
const DefaultBaseURL = "https://api.firecrawl.dev/v2"

// Batch job states reported by GET /batch/scrape/{id}.
const (
	StatusScraping  = "scraping"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Client is the subset of Firecrawl used to fetch candidate documents.
type Client interface {
	BatchScrape(ctx context.Context, req BatchScrapeRequest) (*BatchScrapeResponse, error)
	GetBatchScrapeStatus(ctx context.Context, id string) (*BatchScrapeStatus, error)
}

// BatchScrapeRequest is the body for POST /batch/scrape.
type BatchScrapeRequest struct {
	URLs            []string `json:"urls"`
	Formats         []string `json:"formats,omitempty"`
	OnlyMainContent bool     `json:"onlyMainContent,omitempty"`
	IgnoreInvalid   bool     `json:"ignoreInvalidURLs,omitempty"`
}

// BatchScrapeResponse acknowledges a queued batch job.
type BatchScrapeResponse struct {
	Success     bool     `json:"success"`
	ID          string   `json:"id"`
	InvalidURLs []string `json:"invalidURLs,omitempty"`
}

// BatchScrapeStatus is one poll of a batch job.
type BatchScrapeStatus struct {
	Status    string     `json:"status"`
	Total     int        `json:"total"`
	Completed int        `json:"completed"`
	Data      []Document `json:"data"`
}

// Done reports whether the job reached a terminal state.
func (s *BatchScrapeStatus) Done() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Document is a scraped page.
type Document struct {
	Markdown string   `json:"markdown"`
	Metadata Metadata `json:"metadata"`
}

// Metadata carries the page fields the pipeline reads.
type Metadata struct {
	Title         string `json:"title"`
	Language      string `json:"language"`
	SourceURL     string `json:"sourceURL"`
	URL           string `json:"url"`
	StatusCode    int    `json:"statusCode"`
	PublishedTime string `json:"publishedTime"`
	Error         string `json:"error,omitempty"`
}

// Location returns the final URL of the page, falling back to the requested one.
func (d Document) Location() string {
	if d.Metadata.URL != "" {
		return d.Metadata.URL
	}
	return d.Metadata.SourceURL
}

// APIError is a non-2xx Firecrawl response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("firecrawl: HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithHTTPClient sets the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient returns a Client authenticated with apiKey.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) BatchScrape(ctx context.Context, req BatchScrapeRequest) (*BatchScrapeResponse, error) {
	if len(req.URLs) == 0 {
		return nil, eris.New("firecrawl: batch scrape requires at least one url")
	}
	if len(req.Formats) == 0 {
		req.Formats = []string{"markdown"}
	}
	var resp BatchScrapeResponse
	if err := c.call(ctx, http.MethodPost, "/batch/scrape", req, &resp); err != nil {
		return nil, eris.Wrap(err, "firecrawl: start batch scrape")
	}
	if resp.ID == "" {
		return nil, eris.New("firecrawl: batch scrape returned no job id")
	}
	return &resp, nil
}

func (c *httpClient) GetBatchScrapeStatus(ctx context.Context, id string) (*BatchScrapeStatus, error) {
	var resp BatchScrapeStatus
	if err := c.call(ctx, http.MethodGet, "/batch/scrape/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, eris.Wrapf(err, "firecrawl: batch scrape status %s", id)
	}
	return &resp, nil
}

func (c *httpClient) call(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "marshal request")
		}
		rdr = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	return eris.Wrap(json.Unmarshal(data, out), "decode response")
}
