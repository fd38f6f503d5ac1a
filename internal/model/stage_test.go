package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageCatalogOrder(t *testing.T) {
	t.Parallel()

	keys := StageKeys()
	require.Len(t, keys, 17)
	assert.Equal(t, StageInitialize, keys[0])
	assert.Equal(t, StageSourceDiscovery, keys[3])
	assert.Equal(t, StageFetchingSnapshotting, keys[5])
	assert.Equal(t, StageStatisticsVerify, keys[16])

	for i, k := range keys {
		assert.Equal(t, i, k.Index(), k)
		assert.True(t, k.Valid())
	}
}

func TestStageLabelsAndPhases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key   StageKey
		label string
		phase Phase
	}{
		{StageInitialize, "Initialize", PhaseInitialization},
		{StageSeedAliases, "Seed & Alias Expansion", PhaseDiscovery},
		{StageComplianceScheduling, "Compliance & Scheduling", PhaseCollection},
		{StageDeduplication, "Deduplication", PhaseProcessing},
		{StageContradictions, "Contradictions", PhaseAnalysis},
		{StageQuestionnaireFusion, "Questionnaire Fusion (Optional)", PhaseValidation},
		{StageStatisticsVerify, "Statistics & Verification", PhaseValidation},
	}

	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.label, tt.key.Label())
			assert.Equal(t, tt.phase, tt.key.Phase())
		})
	}

	assert.Equal(t, -1, StageKey("bogus").Index())
	assert.Equal(t, "bogus", StageKey("bogus").Label())
}

func TestNewStagesAllIdle(t *testing.T) {
	t.Parallel()

	stages := NewStages()
	require.Len(t, stages, 17)
	for _, s := range stages {
		assert.Equal(t, StageIdle, s.Status)
		assert.NotNil(t, s.Logs)
		assert.Empty(t, s.Logs)
		assert.Nil(t, s.StartedAt)
	}
}

func TestStageDuration(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	s := Stage{StartedAt: &start, FinishedAt: &end}
	assert.Equal(t, 1500*time.Millisecond, s.Duration())
	assert.Zero(t, Stage{StartedAt: &start}.Duration())
}

func TestStageStatusTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, StageIdle.Terminal())
	assert.False(t, StageRunning.Terminal())
	assert.True(t, StageDone.Terminal())
	assert.True(t, StageError.Terminal())
}
