package model

import (
	"time"
)

// Actor identifies who wrote an audit entry.
type Actor string

const (
	ActorOwner    Actor = "owner"
	ActorReviewer Actor = "reviewer"
)

// Valid reports whether a is a known actor.
func (a Actor) Valid() bool { return a == ActorOwner || a == ActorReviewer }

// AuditAction is the kind of review event recorded.
type AuditAction string

const (
	ActionApprove        AuditAction = "approve"
	ActionRequestChanges AuditAction = "request_changes"
	ActionComment        AuditAction = "comment"
)

// AuditLogEntry is one review event on a run.
type AuditLogEntry struct {
	At      time.Time   `json:"at"`
	Actor   Actor       `json:"actor"`
	Action  AuditAction `json:"action"`
	Comment string      `json:"comment,omitempty"`
}

// RunRecord is the persisted state of one persona-building run.
type RunRecord struct {
	ID                   string          `json:"id"`
	Subject              string          `json:"subject"`
	Aliases              []string        `json:"aliases"`
	TimeWindow           string          `json:"timeWindow"`
	Languages            []string        `json:"languages"`
	CreatedAt            time.Time       `json:"createdAt"`
	Stages               []Stage         `json:"stages"`
	Fusion               FusionWeights   `json:"fusion"`
	SourceWeights        []Source        `json:"sourceWeights"`
	Persona              *PersonaResult  `json:"persona,omitempty"`
	Stats                *RunStats       `json:"stats,omitempty"`
	QuestionnaireAnswers map[string]int  `json:"questionnaireAnswers,omitempty"`
	AuditLog             []AuditLogEntry `json:"auditLog"`
}

// Stage returns the stage with the given key, or nil.
func (r *RunRecord) Stage(key StageKey) *Stage {
	for i := range r.Stages {
		if r.Stages[i].Key == key {
			return &r.Stages[i]
		}
	}
	return nil
}

// Complete reports whether every stage finished successfully.
func (r *RunRecord) Complete() bool {
	if len(r.Stages) == 0 {
		return false
	}
	for _, s := range r.Stages {
		if s.Status != StageDone {
			return false
		}
	}
	return true
}

// Failed returns the key of the stage that errored, if any.
func (r *RunRecord) Failed() (StageKey, bool) {
	for _, s := range r.Stages {
		if s.Status == StageError {
			return s.Key, true
		}
	}
	return "", false
}

// Status summarises the trace: idle, running, done, or error.
func (r *RunRecord) Status() StageStatus {
	if _, failed := r.Failed(); failed {
		return StageError
	}
	if r.Complete() {
		return StageDone
	}
	for _, s := range r.Stages {
		if s.Status != StageIdle {
			return StageRunning
		}
	}
	return StageIdle
}

// Clone returns a deep copy of the record.
func (r RunRecord) Clone() RunRecord {
	out := r
	out.Aliases = cloneStrings(r.Aliases)
	out.Languages = cloneStrings(r.Languages)
	out.Fusion = r.Fusion.Clone()

	out.Stages = make([]Stage, len(r.Stages))
	for i, s := range r.Stages {
		s.Logs = cloneStrings(s.Logs)
		if s.Logs == nil {
			s.Logs = []string{}
		}
		s.StartedAt = cloneTime(s.StartedAt)
		s.FinishedAt = cloneTime(s.FinishedAt)
		out.Stages[i] = s
	}

	if r.SourceWeights != nil {
		out.SourceWeights = append([]Source(nil), r.SourceWeights...)
	}
	if r.Persona != nil {
		p := *r.Persona
		p.Quotes = append([]QuoteEvidence(nil), r.Persona.Quotes...)
		out.Persona = &p
	}
	if r.Stats != nil {
		s := *r.Stats
		s.Coverage.Languages = cloneMap(r.Stats.Coverage.Languages)
		s.EvidenceStrength.QuotesPerAttribute = cloneMap(r.Stats.EvidenceStrength.QuotesPerAttribute)
		out.Stats = &s
	}
	if r.QuestionnaireAnswers != nil {
		out.QuestionnaireAnswers = cloneMap(r.QuestionnaireAnswers)
	}
	if r.AuditLog != nil {
		out.AuditLog = append([]AuditLogEntry(nil), r.AuditLog...)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	if in == nil {
		return nil
	}
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
