package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/persona-cli/internal/model"
)

// DefaultListLimit caps List when the filter sets no limit.
const DefaultListLimit = 100

// ErrNotFound is returned by Get when no run has the requested id.
var ErrNotFound = eris.New("store: run not found")

// PersistenceError wraps a backend failure. The in-memory record the caller
// holds is still valid when one is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Subject string `json:"subject,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Repository persists run records keyed by id. Upserting an existing id
// replaces it and moves it to the front; List and GetLatest return records in
// most-recently-upserted order. Writes are serialised; the last writer wins.
type Repository interface {
	Upsert(ctx context.Context, rec *model.RunRecord) error
	Get(ctx context.Context, id string) (*model.RunRecord, error)
	List(ctx context.Context, filter RunFilter) ([]model.RunRecord, error)
	// GetLatest returns nil without error when the repository is empty.
	GetLatest(ctx context.Context) (*model.RunRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func validateRecord(rec *model.RunRecord) error {
	if rec == nil {
		return eris.New("store: nil run record")
	}
	if rec.ID == "" {
		return &model.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	return nil
}

func encodeRecord(rec *model.RunRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal run record")
	}
	return data, nil
}

func decodeRecord(data []byte) (*model.RunRecord, error) {
	var rec model.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal run record")
	}
	return &rec, nil
}

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return DefaultListLimit
	}
	return filter.Limit
}
