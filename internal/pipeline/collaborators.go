package pipeline

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/sells-group/persona-cli/internal/model"
)

// DiscoveryQuery is what the Source Discovery stage asks for.
type DiscoveryQuery struct {
	Subject    string
	TimeWindow string
	Aliases    []string
	Languages  []string
	Queries    []string
	Limit      int
}

// Candidate is a discovered page that may be fetched.
type Candidate struct {
	URL     string
	Title   string
	Snippet string
	Query   string
	Date    string
}

// Snapshot is the fetched content of one candidate.
type Snapshot struct {
	URL        string
	Title      string
	Content    string
	Language   string
	Published  string
	StatusCode int
	Origin     model.SourceKey
}

// OK reports whether the fetch produced usable content.
func (s Snapshot) OK() bool {
	return (s.StatusCode == 0 || (s.StatusCode >= 200 && s.StatusCode < 300)) && s.Content != ""
}

// FetchPlan is the schedule produced by Compliance & Scheduling. Limiter
// bounds the request rate to content hosts.
type FetchPlan struct {
	Subject    string
	Languages  []string
	Candidates []Candidate
	Limiter    *rate.Limiter
}

// Discoverer finds candidate pages about a subject.
type Discoverer interface {
	Discover(ctx context.Context, q DiscoveryQuery) ([]Candidate, error)
}

// Fetcher retrieves the content of scheduled candidates.
type Fetcher interface {
	Fetch(ctx context.Context, plan FetchPlan) ([]Snapshot, error)
}

// AliasExpander proposes alternative names for a subject.
type AliasExpander interface {
	ExpandAliases(ctx context.Context, subject string, known []string) ([]string, error)
}

// CollaboratorError is a failed or timed-out call to an external
// collaborator. It halts the run at Stage.
type CollaboratorError struct {
	Stage        model.StageKey
	Collaborator string
	Timeout      time.Duration
	Err          error
}

func (e *CollaboratorError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("%s: %s timed out after %s", e.Stage, e.Collaborator, e.Timeout)
	}
	return fmt.Sprintf("%s: %s failed: %v", e.Stage, e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
