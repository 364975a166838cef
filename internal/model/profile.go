package model

import "time"

// PassOutcome records how an extraction pass ended.
type PassOutcome string

const (
	PassOutcomeSuccess PassOutcome = "success"
	PassOutcomePartial PassOutcome = "partial"
	PassOutcomeFailure PassOutcome = "failure"
)

// PassStatus tracks the lifecycle of a pass.
type PassStatus string

const (
	PassStatusOpen      PassStatus = "open"
	PassStatusFinalized PassStatus = "finalized"
)

// ExtractionPass is an immutable record of one extraction attempt against a
// house type. Passes are append-only; a failed pass contributes no facts but
// stays on record for audit.
type ExtractionPass struct {
	ID          string      `json:"id"`
	Scope       Scope       `json:"scope"`
	Method      string      `json:"method"`
	Status      PassStatus  `json:"status"`
	Outcome     PassOutcome `json:"outcome,omitempty"`
	FactCount   int         `json:"fact_count"`
	CostCents   int         `json:"cost_cents"`
	StartedAt   time.Time   `json:"started_at"`
	FinalizedAt *time.Time  `json:"finalized_at,omitempty"`
}

// Profile is a versioned snapshot of the ai_document_profile tier for one
// house type. Exactly one version per house type is current at any time.
type Profile struct {
	ID              string          `json:"id"`
	Scope           Scope           `json:"scope"`
	Version         int             `json:"version"`
	IsCurrent       bool            `json:"is_current"`
	QualityScore    float64         `json:"quality_score"`
	Facts           map[string]Fact `json:"facts"`
	Passes          []ExtractionPass `json:"passes"`
	SourceDocuments []string        `json:"source_documents,omitempty"`
	SupersededBy    string          `json:"superseded_by,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}
