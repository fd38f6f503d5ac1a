package pipeline

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/persona-cli/internal/model"
)

// ErrIllegalTransition is returned by Advance for a move the stage lifecycle
// does not allow.
var ErrIllegalTransition = eris.New("pipeline: illegal stage transition")

// Transition is one change to a run's trace. An empty To appends Logs to a
// stage that has already started without changing its status.
type Transition struct {
	Stage model.StageKey
	To    model.StageStatus
	Logs  []string
	At    time.Time
}

// Advance applies t to rec and returns the new record; rec is left untouched.
// Stages move idle -> running -> done|error, one at a time and in order: a
// stage may only start once every earlier stage is done.
func Advance(rec model.RunRecord, t Transition) (model.RunRecord, error) {
	idx := t.Stage.Index()
	if idx < 0 || idx >= len(rec.Stages) || rec.Stages[idx].Key != t.Stage {
		return rec, eris.Wrapf(ErrIllegalTransition, "unknown stage %q", t.Stage)
	}
	cur := rec.Stages[idx].Status

	switch t.To {
	case "":
		if cur == model.StageIdle {
			return rec, eris.Wrapf(ErrIllegalTransition, "%s: logs before start", t.Stage)
		}
	case model.StageRunning:
		if cur != model.StageIdle {
			return rec, eris.Wrapf(ErrIllegalTransition, "%s: %s -> running", t.Stage, cur)
		}
		for _, prev := range rec.Stages[:idx] {
			if prev.Status != model.StageDone {
				return rec, eris.Wrapf(ErrIllegalTransition, "%s: %s is %s", t.Stage, prev.Key, prev.Status)
			}
		}
	case model.StageDone, model.StageError:
		if cur != model.StageRunning {
			return rec, eris.Wrapf(ErrIllegalTransition, "%s: %s -> %s", t.Stage, cur, t.To)
		}
	default:
		return rec, eris.Wrapf(ErrIllegalTransition, "%s: unknown status %q", t.Stage, t.To)
	}

	out := rec.Clone()
	st := &out.Stages[idx]
	at := t.At
	switch t.To {
	case model.StageRunning:
		st.StartedAt = &at
	case model.StageDone, model.StageError:
		st.FinishedAt = &at
	}
	if t.To != "" {
		st.Status = t.To
	}
	st.Logs = append(st.Logs, t.Logs...)
	return out, nil
}

// ResetStages returns rec with every stage idle and empty, and with any
// persona or stats removed.
func ResetStages(rec model.RunRecord) model.RunRecord {
	out := rec.Clone()
	out.Stages = model.NewStages()
	out.Persona = nil
	out.Stats = nil
	return out
}
