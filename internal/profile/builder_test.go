package profile

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/store"
)

func newTestBuilder(t *testing.T) (*Builder, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return NewBuilder(st, DefaultWeights()), st
}

func scope() model.Scope {
	return model.Scope{TenantID: "tenant-1", DevelopmentID: "oak-park", HouseType: "bd01"}
}

func runPass(t *testing.T, b *Builder, sc model.Scope, facts ...FactInput) *model.ExtractionPass {
	t.Helper()
	ctx := context.Background()
	pass, err := b.BeginPass(ctx, sc, "document_extraction")
	require.NoError(t, err)
	require.NoError(t, b.RecordFacts(ctx, pass.ID, facts))
	require.NoError(t, b.FinalizePass(ctx, pass.ID, model.PassOutcomeSuccess, 5))
	return pass
}

func TestPublishVersion_FirstPublish(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()
	sc := scope()

	runPass(t, b, sc,
		FactInput{Key: "kitchen.area_sqm", Value: 14.2, Unit: "sqm", Confidence: 0.9},
		FactInput{Key: "bedroom_1.area_sqm", Value: 11.8, Unit: "sqm", Confidence: 0.8},
	)

	published, err := b.PublishVersion(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, 1, published.Version)
	assert.True(t, published.IsCurrent)
	assert.Len(t, published.Facts, 2)
	assert.Len(t, published.Passes, 1)
	assert.InDelta(t, 0.85, published.QualityScore, 0.001)

	current, err := st.GetCurrentProfile(ctx, sc)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, published.ID, current.ID)
}

func TestPublishVersion_NoFacts(t *testing.T) {
	b, _ := newTestBuilder(t)

	_, err := b.PublishVersion(context.Background(), scope())
	require.ErrorIs(t, err, model.ErrEmptyProfile)
}

func TestPublishVersion_FailedPassContributesNothing(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := context.Background()
	sc := scope()

	pass, err := b.BeginPass(ctx, sc, "document_extraction")
	require.NoError(t, err)
	require.NoError(t, b.RecordFacts(ctx, pass.ID, []FactInput{
		{Key: "kitchen.area_sqm", Value: 14.2, Confidence: 0.9},
	}))
	require.NoError(t, b.AbandonPass(ctx, pass.ID))

	// The abandoned pass is audited but its facts never become eligible.
	passes, err := b.store.ListPasses(ctx, sc)
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, model.PassOutcomeFailure, passes[0].Outcome)

	_, err = b.PublishVersion(ctx, sc)
	require.ErrorIs(t, err, model.ErrEmptyProfile)
}

func TestPublishVersion_OpenPassInvisible(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := context.Background()
	sc := scope()

	runPass(t, b, sc, FactInput{Key: "kitchen.area_sqm", Value: 14.2, Confidence: 0.9})

	// A second, still-open pass must not leak into the snapshot.
	open, err := b.BeginPass(ctx, sc, "vision_extraction")
	require.NoError(t, err)
	require.NoError(t, b.RecordFacts(ctx, open.ID, []FactInput{
		{Key: "kitchen.area_sqm", Value: 99.0, Confidence: 0.99},
	}))

	published, err := b.PublishVersion(ctx, sc)
	require.NoError(t, err)
	assert.InDelta(t, 14.2, published.Facts["kitchen.area_sqm"].Value, 0.001)
	assert.Len(t, published.Passes, 1)
}

func TestPublishVersion_NewestPassWinsPerKey(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := context.Background()
	sc := scope()

	runPass(t, b, sc,
		FactInput{Key: "kitchen.area_sqm", Value: 13.0, Confidence: 0.7},
		FactInput{Key: "bedroom_1.area_sqm", Value: 11.8, Confidence: 0.8},
	)
	runPass(t, b, sc,
		FactInput{Key: "kitchen.area_sqm", Value: 14.2, Confidence: 0.9},
	)

	published, err := b.PublishVersion(ctx, sc)
	require.NoError(t, err)
	require.Len(t, published.Facts, 2)
	assert.InDelta(t, 14.2, published.Facts["kitchen.area_sqm"].Value, 0.001,
		"the later pass's value wins for the shared key")
	assert.InDelta(t, 11.8, published.Facts["bedroom_1.area_sqm"].Value, 0.001,
		"keys only the earlier pass produced survive")
}

func TestPublishVersion_IncrementsAndRetires(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()
	sc := scope()

	runPass(t, b, sc, FactInput{Key: "kitchen.area_sqm", Value: 14.2, Confidence: 0.9})
	v1, err := b.PublishVersion(ctx, sc)
	require.NoError(t, err)

	runPass(t, b, sc, FactInput{Key: "kitchen.area_sqm", Value: 14.4, Confidence: 0.95})
	v2, err := b.PublishVersion(ctx, sc)
	require.NoError(t, err)
	assert.Equal(t, 2, v2.Version)

	versions, err := st.ListProfileVersions(ctx, sc)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.False(t, versions[0].IsCurrent)
	assert.Equal(t, v2.ID, versions[0].SupersededBy)
	_ = v1
}

func TestPublishVersion_ConcurrentSameHouseType(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()
	sc := scope()
	sc.HouseType = "bd02"

	runPass(t, b, sc, FactInput{Key: "kitchen.area_sqm", Value: 14.2, Confidence: 0.9})

	// Two builders sharing one store model two processes racing on publish.
	other := NewBuilder(st, DefaultWeights())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, builder := range []*Builder{b, other} {
		wg.Add(1)
		go func(i int, builder *Builder) {
			defer wg.Done()
			_, errs[i] = builder.PublishVersion(ctx, sc)
		}(i, builder)
	}
	wg.Wait()

	// Exactly one wins; the loser sees a publish conflict.
	var conflicts, successes int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, model.ErrPublishConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	versions, err := st.ListProfileVersions(ctx, sc)
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestRecordFacts_FinalizedPassRejected(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := context.Background()

	pass, err := b.BeginPass(ctx, scope(), "document_extraction")
	require.NoError(t, err)
	require.NoError(t, b.FinalizePass(ctx, pass.ID, model.PassOutcomeSuccess, 0))

	err = b.RecordFacts(ctx, pass.ID, []FactInput{{Key: "kitchen.area_sqm", Value: 14.2, Confidence: 0.9}})
	require.ErrorIs(t, err, model.ErrPassNotOpen)
}

func TestFinalizePass_RecordsCostAndCount(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()
	sc := scope()

	pass, err := b.BeginPass(ctx, sc, "document_extraction")
	require.NoError(t, err)
	require.NoError(t, b.RecordFacts(ctx, pass.ID, []FactInput{
		{Key: "kitchen.area_sqm", Value: 14.2, Confidence: 0.9},
		{Key: "hall.area_sqm", Value: 4.1, Confidence: 0.7},
	}))
	require.NoError(t, b.FinalizePass(ctx, pass.ID, model.PassOutcomePartial, 12))

	got, err := st.GetPass(ctx, pass.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.FactCount)
	assert.Equal(t, 12, got.CostCents)
}

func TestQualityScore_WeightedMean(t *testing.T) {
	b, _ := newTestBuilder(t)

	snapshot := map[string]model.Fact{
		"kitchen.area_sqm": {Confidence: 0.9}, // weight 1.0
		"hall.area_sqm":    {Confidence: 0.5}, // weight 0.5
	}
	// (0.9*1.0 + 0.5*0.5) / 1.5 = 1.15/1.5
	assert.InDelta(t, 1.15/1.5, b.qualityScore(snapshot), 0.0001)
}

func TestSyncTemplates_Idempotent(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := context.Background()
	sc := scope()

	templates := []TemplateFact{
		{Key: "kitchen.area_sqm", Value: 12.0, Unit: "sqm"},
		{Key: "bedroom_1.area_sqm", Value: 11.0, Unit: "sqm"},
	}

	written, err := b.SyncTemplates(ctx, sc, templates)
	require.NoError(t, err)
	assert.Equal(t, 2, written)

	written, err = b.SyncTemplates(ctx, sc, templates)
	require.NoError(t, err)
	assert.Equal(t, 0, written)

	facts, err := b.store.ListFacts(ctx, sc, store.FactFilter{Source: model.SourceTemplateDefault})
	require.NoError(t, err)
	assert.Len(t, facts, 2)
}
