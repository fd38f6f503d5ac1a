package model

// RunStats summarises the evidence behind a completed run.
type RunStats struct {
	Coverage           Coverage           `json:"coverage"`
	QualityRecency     QualityRecency     `json:"qualityRecency"`
	EvidenceStrength   EvidenceStrength   `json:"evidenceStrength"`
	AgreementConflicts AgreementConflicts `json:"agreementConflicts"`
	Confidence         float64            `json:"confidence"`
}

// Coverage counts how much material flowed through collection and processing.
type Coverage struct {
	Discovered    int            `json:"discovered"`
	Fetched       int            `json:"fetched"`
	Kept          int            `json:"kept"`
	UniqueDomains int            `json:"uniqueDomains"`
	Documents     int            `json:"documents"`
	Chunks        int            `json:"chunks"`
	Tokens        int            `json:"tokens"`
	Languages     map[string]int `json:"languages"`
}

// QualityRecency describes the kept documents.
type QualityRecency struct {
	QualityMedian       float64 `json:"qualityMedian"`
	FirstPersonRatio    float64 `json:"firstPersonRatio"`
	FreshnessDaysMedian float64 `json:"freshnessDaysMedian"`
}

// EvidenceStrength describes the quotes backing the persona.
type EvidenceStrength struct {
	QuotesPerAttribute map[AttributeKey]int `json:"quotesPerAttribute"`
	UniqueSources      int                  `json:"uniqueSources"`
	DomainDiversity    float64              `json:"domainDiversity"`
}

// AgreementConflicts reports how consistent the extracted evidence is.
type AgreementConflicts struct {
	AgreementIndex float64 `json:"agreementIndex"`
	Conflicts      int     `json:"conflicts"`
}
