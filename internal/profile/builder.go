// Package profile builds and publishes versioned intelligence profiles from
// extraction-pass facts.
package profile

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/store"
)

// FactInput is one fact submitted to an open pass. Source and pass binding
// are applied by the builder.
type FactInput struct {
	Key        string
	Value      any
	Unit       string
	UnitID     string
	Confidence float64
}

// Builder runs the pass lifecycle and publishes profile versions. Publishes
// for the same house type serialize on an in-process lock; the store's
// conditional version swap guards against other writers.
type Builder struct {
	store   store.Store
	weights WeightTable

	mu        sync.Mutex
	scopeLock map[string]*sync.Mutex
	factTally map[string]int // open-pass fact counts, keyed by pass ID
}

// NewBuilder creates a Builder with the given weight table.
func NewBuilder(st store.Store, weights WeightTable) *Builder {
	return &Builder{
		store:     st,
		weights:   weights,
		scopeLock: make(map[string]*sync.Mutex),
		factTally: make(map[string]int),
	}
}

// BeginPass opens a new extraction pass for the house type.
func (b *Builder) BeginPass(ctx context.Context, scope model.Scope, method string) (*model.ExtractionPass, error) {
	if method == "" {
		return nil, eris.New("begin pass: empty method")
	}
	pass, err := b.store.CreatePass(ctx, scope, method)
	if err != nil {
		return nil, err
	}
	zap.L().Info("extraction pass opened",
		zap.String("pass_id", pass.ID),
		zap.String("house_type", scope.HouseType),
		zap.String("method", method))
	return pass, nil
}

// RecordFacts writes facts into an open pass. All facts land in the fact
// store tagged ai_document_profile and bound to the pass; they stay invisible
// to resolution until the pass is finalized.
func (b *Builder) RecordFacts(ctx context.Context, passID string, facts []FactInput) error {
	pass, err := b.store.GetPass(ctx, passID)
	if err != nil {
		return err
	}
	if pass.Status != model.PassStatusOpen {
		return eris.Wrapf(model.ErrPassNotOpen, "pass %s", passID)
	}

	for _, in := range facts {
		scope := pass.Scope
		scope.UnitID = in.UnitID
		_, err := b.store.InsertFact(ctx, model.Fact{
			Scope:      scope,
			Key:        in.Key,
			Value:      in.Value,
			Unit:       in.Unit,
			Source:     model.SourceAIDocumentProfile,
			Confidence: in.Confidence,
			PassID:     passID,
			RecordedAt: time.Now().UTC(),
		})
		if err != nil {
			return eris.Wrapf(err, "record fact %s for pass %s", in.Key, passID)
		}
	}

	b.mu.Lock()
	b.factTally[passID] += len(facts)
	b.mu.Unlock()
	return nil
}

// FinalizePass closes a pass with its outcome and cost. Finalizing a pass
// that is not open returns ErrPassNotOpen.
func (b *Builder) FinalizePass(ctx context.Context, passID string, outcome model.PassOutcome, costCents int) error {
	b.mu.Lock()
	count := b.factTally[passID]
	b.mu.Unlock()

	if err := b.store.FinalizePass(ctx, passID, outcome, count, costCents); err != nil {
		return err
	}

	b.mu.Lock()
	delete(b.factTally, passID)
	b.mu.Unlock()

	zap.L().Info("extraction pass finalized",
		zap.String("pass_id", passID),
		zap.String("outcome", string(outcome)),
		zap.Int("facts", count),
		zap.Int("cost_cents", costCents))
	return nil
}

// AbandonPass records a cancelled or crashed pass as a failure so it never
// lingers open.
func (b *Builder) AbandonPass(ctx context.Context, passID string) error {
	return b.FinalizePass(ctx, passID, model.PassOutcomeFailure, 0)
}

// PublishVersion snapshots all finalized-pass facts for the house type into
// a new profile version and flips it current. Concurrent publishes for the
// same house type serialize; a writer that raced past us loses with
// ErrPublishConflict.
func (b *Builder) PublishVersion(ctx context.Context, scope model.Scope) (*model.Profile, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	lock := b.lockFor(scope)
	lock.Lock()
	defer lock.Unlock()

	passes, err := b.store.ListPasses(ctx, scope)
	if err != nil {
		return nil, err
	}
	finalized := make([]model.ExtractionPass, 0, len(passes))
	passStart := make(map[string]time.Time, len(passes))
	for _, p := range passes {
		if p.Status != model.PassStatusFinalized {
			continue
		}
		finalized = append(finalized, p)
		passStart[p.ID] = p.StartedAt
	}

	facts, err := b.store.ListFacts(ctx, scope, store.FactFilter{
		Source:        model.SourceAIDocumentProfile,
		FinalizedOnly: true,
	})
	if err != nil {
		return nil, err
	}

	snapshot := snapshotFacts(facts, passStart)
	if len(snapshot) == 0 {
		return nil, eris.Wrapf(model.ErrEmptyProfile, "house type %s", scope.HouseType)
	}

	current, err := b.store.GetCurrentProfile(ctx, scope)
	if err != nil {
		return nil, err
	}
	expectedPrev := 0
	if current != nil {
		expectedPrev = current.Version
	}

	published, err := b.store.PublishProfile(ctx, model.Profile{
		Scope:        scope,
		QualityScore: b.qualityScore(snapshot),
		Facts:        snapshot,
		Passes:       finalized,
	}, expectedPrev)
	if err != nil {
		return nil, err
	}

	zap.L().Info("profile version published",
		zap.String("house_type", scope.HouseType),
		zap.Int("version", published.Version),
		zap.Float64("quality", published.QualityScore),
		zap.Int("facts", len(snapshot)))
	return published, nil
}

// snapshotFacts keeps one fact per key: the one from the most recently
// started pass, with the fact's own timestamp as tie-break for facts outside
// any pass.
func snapshotFacts(facts []model.Fact, passStart map[string]time.Time) map[string]model.Fact {
	snapshot := make(map[string]model.Fact)
	factTime := func(f model.Fact) time.Time {
		if t, ok := passStart[f.PassID]; ok {
			return t
		}
		return f.RecordedAt
	}
	for _, f := range facts {
		existing, ok := snapshot[f.Key]
		if !ok {
			snapshot[f.Key] = f
			continue
		}
		et, ft := factTime(existing), factTime(f)
		if ft.After(et) || (ft.Equal(et) && f.RecordedAt.After(existing.RecordedAt)) {
			snapshot[f.Key] = f
		}
	}
	return snapshot
}

// qualityScore is the confidence-weighted mean over the snapshot.
func (b *Builder) qualityScore(snapshot map[string]model.Fact) float64 {
	var weighted, total float64
	for key, f := range snapshot {
		w := b.weights.WeightFor(key)
		weighted += f.Confidence * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func (b *Builder) lockFor(scope model.Scope) *sync.Mutex {
	key := scope.TenantID + "|" + scope.DevelopmentID + "|" + scope.HouseType
	b.mu.Lock()
	defer b.mu.Unlock()
	lock, ok := b.scopeLock[key]
	if !ok {
		lock = &sync.Mutex{}
		b.scopeLock[key] = lock
	}
	return lock
}
