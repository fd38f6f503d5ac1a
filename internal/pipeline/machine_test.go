package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/persona-cli/internal/model"
)

func newRecord() model.RunRecord {
	return model.RunRecord{ID: "r1", Subject: "Ada", Stages: model.NewStages()}
}

func TestAdvance_Lifecycle(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := newRecord()

	next, err := Advance(rec, Transition{Stage: model.StageInitialize, To: model.StageRunning, Logs: []string{"start"}, At: at})
	require.NoError(t, err)
	assert.Equal(t, model.StageIdle, rec.Stages[0].Status, "input must not change")
	assert.Equal(t, model.StageRunning, next.Stages[0].Status)
	assert.Equal(t, at, *next.Stages[0].StartedAt)

	next, err = Advance(next, Transition{Stage: model.StageInitialize, Logs: []string{"more"}, At: at})
	require.NoError(t, err)

	done, err := Advance(next, Transition{Stage: model.StageInitialize, To: model.StageDone, At: at.Add(time.Second)})
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, done.Stages[0].Status)
	assert.Equal(t, []string{"start", "more"}, done.Stages[0].Logs)
	assert.Equal(t, time.Second, done.Stages[0].Duration())
}

func TestAdvance_Illegal(t *testing.T) {
	t.Parallel()

	rec := newRecord()
	running, err := Advance(rec, Transition{Stage: model.StageInitialize, To: model.StageRunning})
	require.NoError(t, err)
	finished, err := Advance(running, Transition{Stage: model.StageInitialize, To: model.StageError})
	require.NoError(t, err)

	tests := []struct {
		name string
		rec  model.RunRecord
		t    Transition
	}{
		{"unknown stage", rec, Transition{Stage: "bogus", To: model.StageRunning}},
		{"skip ahead", rec, Transition{Stage: model.StageSeedAliases, To: model.StageRunning}},
		{"idle to done", rec, Transition{Stage: model.StageInitialize, To: model.StageDone}},
		{"logs before start", rec, Transition{Stage: model.StageInitialize, Logs: []string{"x"}}},
		{"restart running", running, Transition{Stage: model.StageInitialize, To: model.StageRunning}},
		{"reopen terminal", finished, Transition{Stage: model.StageInitialize, To: model.StageRunning}},
		{"error to done", finished, Transition{Stage: model.StageInitialize, To: model.StageDone}},
		{"next after error", finished, Transition{Stage: model.StageSeedAliases, To: model.StageRunning}},
		{"unknown status", running, Transition{Stage: model.StageInitialize, To: "paused"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Advance(tt.rec, tt.t)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIllegalTransition)
		})
	}
}

func TestAdvance_LogsAfterTerminal(t *testing.T) {
	t.Parallel()

	rec := newRecord()
	rec, err := Advance(rec, Transition{Stage: model.StageInitialize, To: model.StageRunning})
	require.NoError(t, err)
	rec, err = Advance(rec, Transition{Stage: model.StageInitialize, To: model.StageDone})
	require.NoError(t, err)
	rec, err = Advance(rec, Transition{Stage: model.StageInitialize, Logs: []string{"late note"}})
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, rec.Stages[0].Status)
	assert.Equal(t, []string{"late note"}, rec.Stages[0].Logs)
}

func TestResetStages(t *testing.T) {
	t.Parallel()

	rec := newRecord()
	rec, _ = Advance(rec, Transition{Stage: model.StageInitialize, To: model.StageRunning, Logs: []string{"x"}})
	rec.Persona = &model.PersonaResult{Role: "r"}
	rec.Stats = &model.RunStats{}

	out := ResetStages(rec)
	assert.Nil(t, out.Persona)
	assert.Nil(t, out.Stats)
	for _, s := range out.Stages {
		assert.Equal(t, model.StageIdle, s.Status)
		assert.Empty(t, s.Logs)
		assert.Nil(t, s.StartedAt)
	}
	assert.Equal(t, model.StageRunning, rec.Stages[0].Status)
}
