package resolver

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedFacts(t *testing.T, st store.Store, facts ...model.Fact) {
	t.Helper()
	for _, f := range facts {
		_, err := st.InsertFact(context.Background(), f)
		require.NoError(t, err)
	}
}

func scope() model.Scope {
	return model.Scope{TenantID: "tenant-1", DevelopmentID: "oak-park", HouseType: "type-b"}
}

func TestResolve_HigherTierWins(t *testing.T) {
	st := newTestStore(t)
	sc := scope()
	seedFacts(t, st,
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 12.0, Source: model.SourceTemplateDefault, Confidence: 1.0},
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 14.2, Source: model.SourceVisionExtraction, Confidence: 0.92},
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 13.5, Source: model.SourceAIDocumentProfile, Confidence: 0.97},
	)

	res, err := New(st).Resolve(context.Background(), sc, "kitchen.area_sqm")
	require.NoError(t, err)
	require.True(t, res.Found)
	// Vision wins even though the document profile is more confident.
	assert.Equal(t, model.SourceVisionExtraction, res.Source)
	assert.InDelta(t, 14.2, res.Value, 0.001)
	assert.Equal(t, 3, res.Considered)
}

func TestResolve_ConfidenceFloorExcludesFact(t *testing.T) {
	st := newTestStore(t)
	sc := scope()
	seedFacts(t, st,
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 9.9, Source: model.SourceVisionExtraction, Confidence: 0.2},
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 12.0, Source: model.SourceTemplateDefault, Confidence: 1.0},
	)

	res, err := New(st).Resolve(context.Background(), sc, "kitchen.area_sqm")
	require.NoError(t, err)
	require.True(t, res.Found)
	// The low-confidence vision fact drops out; the tier falls through.
	assert.Equal(t, model.SourceTemplateDefault, res.Source)
	assert.Equal(t, 1, res.Considered)
}

func TestResolve_AllBelowFloor(t *testing.T) {
	st := newTestStore(t)
	sc := scope()
	seedFacts(t, st,
		model.Fact{Scope: sc, Key: "hall.area_sqm", Value: 4.1, Source: model.SourceVisionExtraction, Confidence: 0.1},
	)

	res, err := New(st).Resolve(context.Background(), sc, "hall.area_sqm")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestResolve_TieBrokenByConfidenceThenRecency(t *testing.T) {
	st := newTestStore(t)
	sc := scope()
	older := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	seedFacts(t, st,
		model.Fact{Scope: sc, Key: "living.area_sqm", Value: 18.0, Source: model.SourceVisionExtraction, Confidence: 0.85, RecordedAt: newer},
		model.Fact{Scope: sc, Key: "living.area_sqm", Value: 18.4, Source: model.SourceVisionExtraction, Confidence: 0.9, RecordedAt: older},
	)

	res, err := New(st).Resolve(context.Background(), sc, "living.area_sqm")
	require.NoError(t, err)
	assert.InDelta(t, 18.4, res.Value, 0.001, "higher confidence wins within a tier")

	// Equal confidence: most recent wins.
	st2 := newTestStore(t)
	seedFacts(t, st2,
		model.Fact{Scope: sc, Key: "living.area_sqm", Value: 18.0, Source: model.SourceVisionExtraction, Confidence: 0.9, RecordedAt: newer},
		model.Fact{Scope: sc, Key: "living.area_sqm", Value: 18.4, Source: model.SourceVisionExtraction, Confidence: 0.9, RecordedAt: older},
	)
	res, err = New(st2).Resolve(context.Background(), sc, "living.area_sqm")
	require.NoError(t, err)
	assert.InDelta(t, 18.0, res.Value, 0.001)
}

func TestResolve_MissingKeyIsNotAnError(t *testing.T) {
	st := newTestStore(t)

	res, err := New(st).Resolve(context.Background(), scope(), "attic.area_sqm")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Nil(t, res.Value)
}

func TestResolve_InvalidScope(t *testing.T) {
	st := newTestStore(t)

	_, err := New(st).Resolve(context.Background(), model.Scope{TenantID: "t"}, "kitchen.area_sqm")
	require.ErrorIs(t, err, model.ErrInvalidScope)
}

func TestResolve_Idempotent(t *testing.T) {
	st := newTestStore(t)
	sc := scope()
	seedFacts(t, st,
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 14.2, Source: model.SourceVisionExtraction, Confidence: 0.92},
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 12.0, Source: model.SourceTemplateDefault, Confidence: 1.0},
	)
	r := New(st)

	first, err := r.Resolve(context.Background(), sc, "kitchen.area_sqm")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), sc, "kitchen.area_sqm")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestResolve_UnitOverrideBeatsHouseType(t *testing.T) {
	st := newTestStore(t)
	sc := scope()
	unitScope := sc
	unitScope.UnitID = "unit-12"
	seedFacts(t, st,
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 12.0, Source: model.SourceTemplateDefault, Confidence: 1.0},
		model.Fact{Scope: unitScope, Key: "kitchen.area_sqm", Value: 14.5, Source: model.SourceVisionExtraction, Confidence: 0.9},
	)

	res, err := New(st).Resolve(context.Background(), unitScope, "kitchen.area_sqm")
	require.NoError(t, err)
	assert.InDelta(t, 14.5, res.Value, 0.001)

	// The plain house-type scope never sees the unit fact.
	res, err = New(st).Resolve(context.Background(), sc, "kitchen.area_sqm")
	require.NoError(t, err)
	assert.InDelta(t, 12.0, res.Value, 0.001)
}

func TestResolveAll_OneWinnerPerKey(t *testing.T) {
	st := newTestStore(t)
	sc := scope()
	seedFacts(t, st,
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 14.2, Source: model.SourceVisionExtraction, Confidence: 0.92},
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 12.0, Source: model.SourceTemplateDefault, Confidence: 1.0},
		model.Fact{Scope: sc, Key: "bedroom_1.area_sqm", Value: 11.8, Source: model.SourceAIDocumentProfile, Confidence: 0.85},
		model.Fact{Scope: sc, Key: "hall.area_sqm", Value: 4.1, Source: model.SourceVisionExtraction, Confidence: 0.1},
	)

	all, err := New(st).ResolveAll(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, all, 2, "below-floor keys are omitted")
	assert.Equal(t, model.SourceVisionExtraction, all["kitchen.area_sqm"].Source)
	assert.Equal(t, model.SourceAIDocumentProfile, all["bedroom_1.area_sqm"].Source)
}

func TestResolve_CustomFloor(t *testing.T) {
	st := newTestStore(t)
	sc := scope()
	seedFacts(t, st,
		model.Fact{Scope: sc, Key: "kitchen.area_sqm", Value: 14.2, Source: model.SourceVisionExtraction, Confidence: 0.5},
	)

	res, err := New(st, WithConfidenceFloor(0.6)).Resolve(context.Background(), sc, "kitchen.area_sqm")
	require.NoError(t, err)
	assert.False(t, res.Found)
}
