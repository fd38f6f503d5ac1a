// Package review appends owner and reviewer events to a run's audit log.
package review

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/store"
)

// Ledger records review actions. Appends are serialised so concurrent
// reviewers never lose an entry written through the same Ledger.
type Ledger struct {
	repo store.Repository
	now  func() time.Time
	mu   sync.Mutex
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a Ledger writing through repo.
func New(repo store.Repository, opts ...Option) *Ledger {
	l := &Ledger{repo: repo, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Approve records a reviewer approval.
func (l *Ledger) Approve(ctx context.Context, runID, comment string) (*model.RunRecord, error) {
	return l.append(ctx, runID, model.ActorReviewer, model.ActionApprove, comment)
}

// RequestChanges records a reviewer's request for changes.
func (l *Ledger) RequestChanges(ctx context.Context, runID, comment string) (*model.RunRecord, error) {
	return l.append(ctx, runID, model.ActorReviewer, model.ActionRequestChanges, comment)
}

// Comment records a free-form note. The comment must not be blank.
func (l *Ledger) Comment(ctx context.Context, runID string, actor model.Actor, comment string) (*model.RunRecord, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, &model.ValidationError{Field: "comment", Reason: "must not be empty"}
	}
	return l.append(ctx, runID, actor, model.ActionComment, comment)
}

func (l *Ledger) append(ctx context.Context, runID string, actor model.Actor, action model.AuditAction, comment string) (*model.RunRecord, error) {
	if !actor.Valid() {
		return nil, &model.ValidationError{Field: "actor", Reason: "must be owner or reviewer"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.repo.Get(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "review: load run %s", runID)
	}

	rec.AuditLog = append(rec.AuditLog, model.AuditLogEntry{
		At:      l.now().UTC(),
		Actor:   actor,
		Action:  action,
		Comment: strings.TrimSpace(comment),
	})
	if err := l.repo.Upsert(ctx, rec); err != nil {
		return nil, eris.Wrapf(err, "review: save run %s", runID)
	}

	zap.L().Info("review: recorded",
		zap.String("run_id", runID),
		zap.String("actor", string(actor)),
		zap.String("action", string(action)),
	)
	return rec, nil
}

// Entries returns the audit log newest first.
func Entries(rec model.RunRecord) []model.AuditLogEntry {
	out := make([]model.AuditLogEntry, len(rec.AuditLog))
	for i, e := range rec.AuditLog {
		out[len(out)-1-i] = e
	}
	return out
}
