package model

import "time"

// StageKey identifies one of the seventeen pipeline stages.
type StageKey string

const (
	StageInitialize            StageKey = "initialize"
	StageSeedAliases           StageKey = "seed_aliases"
	StageQueryGeneration       StageKey = "query_generation"
	StageSourceDiscovery       StageKey = "source_discovery"
	StageComplianceScheduling  StageKey = "compliance_scheduling"
	StageFetchingSnapshotting  StageKey = "fetching_snapshotting"
	StageNormalization         StageKey = "normalization"
	StageQualityScoring        StageKey = "quality_scoring"
	StageDeduplication         StageKey = "deduplication"
	StageSegmentationEmbedding StageKey = "segmentation_embedding"
	StageTargetedRetrieval     StageKey = "targeted_retrieval"
	StageAttributeExtraction   StageKey = "attribute_extraction"
	StageContradictions        StageKey = "contradictions"
	StageQuestionnaireFusion   StageKey = "questionnaire_fusion"
	StageFusionConfidence      StageKey = "fusion_confidence"
	StagePersonaAssembly       StageKey = "persona_assembly"
	StageStatisticsVerify      StageKey = "statistics_verification"
)

// StageStatus is the lifecycle state of a stage.
type StageStatus string

const (
	StageIdle    StageStatus = "idle"
	StageRunning StageStatus = "running"
	StageDone    StageStatus = "done"
	StageError   StageStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s StageStatus) Terminal() bool {
	return s == StageDone || s == StageError
}

// Phase groups stages for presentation.
type Phase string

const (
	PhaseInitialization Phase = "initialization"
	PhaseDiscovery      Phase = "discovery"
	PhaseCollection     Phase = "collection"
	PhaseProcessing     Phase = "processing"
	PhaseAnalysis       Phase = "analysis"
	PhaseValidation     Phase = "validation"
)

type stageDef struct {
	key   StageKey
	label string
	phase Phase
}

var stageDefs = []stageDef{
	{StageInitialize, "Initialize", PhaseInitialization},
	{StageSeedAliases, "Seed & Alias Expansion", PhaseDiscovery},
	{StageQueryGeneration, "Query Generation", PhaseDiscovery},
	{StageSourceDiscovery, "Source Discovery", PhaseDiscovery},
	{StageComplianceScheduling, "Compliance & Scheduling", PhaseCollection},
	{StageFetchingSnapshotting, "Fetching & Snapshotting", PhaseCollection},
	{StageNormalization, "Normalization", PhaseProcessing},
	{StageQualityScoring, "Quality Scoring", PhaseProcessing},
	{StageDeduplication, "Deduplication", PhaseProcessing},
	{StageSegmentationEmbedding, "Segmentation & Embedding", PhaseAnalysis},
	{StageTargetedRetrieval, "Targeted Retrieval", PhaseAnalysis},
	{StageAttributeExtraction, "Attribute Extraction", PhaseAnalysis},
	{StageContradictions, "Contradictions", PhaseAnalysis},
	{StageQuestionnaireFusion, "Questionnaire Fusion (Optional)", PhaseValidation},
	{StageFusionConfidence, "Fusion & Confidence", PhaseValidation},
	{StagePersonaAssembly, "Persona Card Assembly", PhaseValidation},
	{StageStatisticsVerify, "Statistics & Verification", PhaseValidation},
}

// StageKeys returns every stage key in execution order.
func StageKeys() []StageKey {
	keys := make([]StageKey, len(stageDefs))
	for i, d := range stageDefs {
		keys[i] = d.key
	}
	return keys
}

// Index returns the zero-based execution position of the key, or -1.
func (k StageKey) Index() int {
	for i, d := range stageDefs {
		if d.key == k {
			return i
		}
	}
	return -1
}

// Valid reports whether k names a known stage.
func (k StageKey) Valid() bool { return k.Index() >= 0 }

// Label returns the human-readable stage label.
func (k StageKey) Label() string {
	if i := k.Index(); i >= 0 {
		return stageDefs[i].label
	}
	return string(k)
}

// Phase returns the presentation phase the stage belongs to.
func (k StageKey) Phase() Phase {
	if i := k.Index(); i >= 0 {
		return stageDefs[i].phase
	}
	return ""
}

// Stage is one entry in a run's execution trace.
type Stage struct {
	Key        StageKey    `json:"key"`
	Label      string      `json:"label"`
	Status     StageStatus `json:"status"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	Logs       []string    `json:"logs"`
}

// NewStages returns the full catalogue of stages in order, all idle.
func NewStages() []Stage {
	stages := make([]Stage, len(stageDefs))
	for i, d := range stageDefs {
		stages[i] = Stage{
			Key:    d.key,
			Label:  d.label,
			Status: StageIdle,
			Logs:   []string{},
		}
	}
	return stages
}

// Duration returns the wall time spent in the stage, or zero if it has not finished.
func (s Stage) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}
