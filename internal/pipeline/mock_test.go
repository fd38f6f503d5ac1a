package pipeline

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/persona-cli/internal/model"
	"github.com/sells-group/persona-cli/internal/store"
)

// --- Collaborator mocks ---

type mockDiscoverer struct {
	mock.Mock
}

func (m *mockDiscoverer) Discover(ctx context.Context, q DiscoveryQuery) ([]Candidate, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Candidate), args.Error(1)
}

type mockFetcher struct {
	mock.Mock
}

func (m *mockFetcher) Fetch(ctx context.Context, plan FetchPlan) ([]Snapshot, error) {
	args := m.Called(ctx, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Snapshot), args.Error(1)
}

type mockAliasExpander struct {
	mock.Mock
}

func (m *mockAliasExpander) ExpandAliases(ctx context.Context, subject string, known []string) ([]string, error) {
	args := m.Called(ctx, subject, known)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type discoverFunc func(ctx context.Context, q DiscoveryQuery) ([]Candidate, error)

func (f discoverFunc) Discover(ctx context.Context, q DiscoveryQuery) ([]Candidate, error) {
	return f(ctx, q)
}

type fetchFunc func(ctx context.Context, plan FetchPlan) ([]Snapshot, error)

func (f fetchFunc) Fetch(ctx context.Context, plan FetchPlan) ([]Snapshot, error) {
	return f(ctx, plan)
}

// --- Repository mock ---

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Upsert(ctx context.Context, rec *model.RunRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *mockRepository) Get(ctx context.Context, id string) (*model.RunRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunRecord), args.Error(1)
}

func (m *mockRepository) List(ctx context.Context, filter store.RunFilter) ([]model.RunRecord, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]model.RunRecord), args.Error(1)
}

func (m *mockRepository) GetLatest(ctx context.Context) (*model.RunRecord, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.RunRecord), args.Error(1)
}

func (m *mockRepository) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }

func (m *mockRepository) Close() error { return m.Called().Error(0) }

// --- Helpers ---

var testEpoch = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

// steppingClock advances one millisecond per call from testEpoch.
func steppingClock() func() time.Time {
	t := testEpoch
	return func() time.Time {
		t = t.Add(time.Millisecond)
		return t
	}
}

func newTestOrchestrator(repo store.Repository, opts ...Option) *Orchestrator {
	base := []Option{
		WithClock(steppingClock()),
		WithFetcher(SimulatedFetcher{Clock: func() time.Time { return testEpoch }}),
	}
	return New(repo, append(base, opts...)...)
}

func stageStatuses(rec model.RunRecord) []model.StageStatus {
	out := make([]model.StageStatus, len(rec.Stages))
	for i, s := range rec.Stages {
		out[i] = s.Status
	}
	return out
}
