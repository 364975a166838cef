package store

import (
	"context"

	"github.com/openhouse-labs/scheme-intel/internal/model"
)

// FactFilter narrows fact listings.
type FactFilter struct {
	Key           string       `json:"key,omitempty"`
	Source        model.Source `json:"source,omitempty"`
	FinalizedOnly bool         `json:"finalized_only,omitempty"`
	Limit         int          `json:"limit,omitempty"`
}

// Store defines the persistence interface for the knowledge resolution engine.
// Facts are append-mostly: superseded by newer writes, never edited in place.
type Store interface {
	// Facts
	InsertFact(ctx context.Context, fact model.Fact) (*model.Fact, error)
	ListFacts(ctx context.Context, scope model.Scope, filter FactFilter) ([]model.Fact, error)

	// Passes
	CreatePass(ctx context.Context, scope model.Scope, method string) (*model.ExtractionPass, error)
	GetPass(ctx context.Context, passID string) (*model.ExtractionPass, error)
	FinalizePass(ctx context.Context, passID string, outcome model.PassOutcome, factCount, costCents int) error
	ListPasses(ctx context.Context, scope model.Scope) ([]model.ExtractionPass, error)

	// Profiles. PublishProfile performs the transactional current-version
	// swap: it succeeds only when the stored current version still equals
	// expectedPrev (0 when no version exists yet), otherwise it returns
	// model.ErrPublishConflict and changes nothing.
	GetCurrentProfile(ctx context.Context, scope model.Scope) (*model.Profile, error)
	ListProfileVersions(ctx context.Context, scope model.Scope) ([]model.Profile, error)
	PublishProfile(ctx context.Context, profile model.Profile, expectedPrev int) (*model.Profile, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
