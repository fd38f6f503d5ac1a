package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/persona-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testRecord(id, subject string) *model.RunRecord {
	created := time.Date(2026, 5, 6, 7, 8, 9, 123000000, time.UTC)
	rec := &model.RunRecord{
		ID:            id,
		Subject:       subject,
		Aliases:       []string{subject + " Jr."},
		TimeWindow:    "last 3 years",
		Languages:     []string{"en", "es"},
		CreatedAt:     created,
		Stages:        model.NewStages(),
		Fusion:        model.DefaultFusion(),
		SourceWeights: model.DefaultSources(),
		AuditLog:      []model.AuditLogEntry{},
	}
	rec.Stages[0].Status = model.StageDone
	rec.Stages[0].StartedAt = &created
	rec.Stages[0].FinishedAt = &created
	rec.Stages[0].Logs = []string{"Subject: " + subject}
	return rec
}

// repositories returns every backend that can run without external services.
func repositories(t *testing.T) map[string]Repository {
	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": newTestSQLiteStore(t),
	}
}

func TestRepository_UpsertAndGetRoundTrip(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := testRecord("run-1", "Ada Lovelace")
			rec.Persona = &model.PersonaResult{
				Role:           "Analyst",
				Quotes:         []model.QuoteEvidence{{Attribute: model.AttrRole, Quote: "q, \"quoted\"", Weight: 0.9}},
				Confidence:     0.595,
				ConfidenceBand: model.BandLow,
			}
			rec.Stats = &model.RunStats{Coverage: model.Coverage{Kept: 3, Languages: map[string]int{"en": 3}}}
			rec.QuestionnaireAnswers = map[string]int{"risk_tolerance": 70}

			require.NoError(t, repo.Upsert(ctx, rec))

			got, err := repo.Get(ctx, "run-1")
			require.NoError(t, err)
			assert.Equal(t, rec, got)

			latest, err := repo.GetLatest(ctx)
			require.NoError(t, err)
			assert.Equal(t, rec, latest)
		})
	}
}

func TestRepository_UpsertReplacesAndMovesToFront(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := testRecord("a", "Alpha")
			b := testRecord("b", "Beta")
			require.NoError(t, repo.Upsert(ctx, a))
			require.NoError(t, repo.Upsert(ctx, b))

			list, err := repo.List(ctx, RunFilter{})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "b", list[0].ID)

			a.AuditLog = append(a.AuditLog, model.AuditLogEntry{At: a.CreatedAt, Actor: model.ActorReviewer, Action: model.ActionApprove})
			require.NoError(t, repo.Upsert(ctx, a))

			list, err = repo.List(ctx, RunFilter{})
			require.NoError(t, err)
			require.Len(t, list, 2, "upsert must not duplicate")
			assert.Equal(t, "a", list[0].ID)
			assert.Equal(t, "b", list[1].ID)
			assert.Len(t, list[0].AuditLog, 1)

			latest, err := repo.GetLatest(ctx)
			require.NoError(t, err)
			assert.Equal(t, "a", latest.ID)
		})
	}
}

func TestRepository_ListLimitAndSubject(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := range 5 {
				subject := "Alpha"
				if i%2 == 1 {
					subject = "Beta"
				}
				require.NoError(t, repo.Upsert(ctx, testRecord(fmt.Sprintf("r%d", i), subject)))
			}

			list, err := repo.List(ctx, RunFilter{Limit: 2})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "r4", list[0].ID)
			assert.Equal(t, "r3", list[1].ID)

			list, err = repo.List(ctx, RunFilter{Subject: "Beta"})
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "r3", list[0].ID)
			assert.Equal(t, "r1", list[1].ID)
		})
	}
}

func TestRepository_EmptyAndMissing(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			latest, err := repo.GetLatest(ctx)
			require.NoError(t, err)
			assert.Nil(t, latest)

			list, err := repo.List(ctx, RunFilter{})
			require.NoError(t, err)
			assert.Empty(t, list)

			_, err = repo.Get(ctx, "nope")
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestRepository_RejectsInvalidRecord(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			assert.Error(t, repo.Upsert(ctx, nil))

			var ve *model.ValidationError
			assert.True(t, errors.As(repo.Upsert(ctx, testRecord("", "x")), &ve))
		})
	}
}

func TestMemoryStore_IsolatesCallerCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	rec := testRecord("iso", "Iso")
	require.NoError(t, s.Upsert(ctx, rec))

	rec.Stages[0].Logs[0] = "mutated"
	got, err := s.Get(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, "Subject: Iso", got.Stages[0].Logs[0])

	got.Subject = "changed"
	again, err := s.Get(ctx, "iso")
	require.NoError(t, err)
	assert.Equal(t, "Iso", again.Subject)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "durable.db")

	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	require.NoError(t, st.Upsert(ctx, testRecord("durable", "Durable")))
	require.NoError(t, st.Close())

	st, err = NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	got, err := st.GetLatest(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "durable", got.ID)
}

func TestSQLiteStore_ClosedReturnsPersistenceError(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Close())

	err := st.Upsert(context.Background(), testRecord("x", "X"))
	var pe *PersistenceError
	require.True(t, errors.As(err, &pe))
	assert.Contains(t, pe.Op, "sqlite: upsert run x")
}
