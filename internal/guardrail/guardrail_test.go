package guardrail

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/resolver"
	"github.com/openhouse-labs/scheme-intel/internal/store"
)

func newTestGuardrail(t *testing.T, settings Settings) (*Guardrail, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return New(resolver.New(st), settings), st
}

func seedDimension(t *testing.T, st store.Store, sc model.Scope, key string, value, confidence float64) {
	t.Helper()
	_, err := st.InsertFact(context.Background(), model.Fact{
		Scope: sc, Key: key, Value: value, Unit: "m",
		Source: model.SourceVisionExtraction, Confidence: confidence,
	})
	require.NoError(t, err)
}

func scope() model.Scope {
	return model.Scope{TenantID: "tenant-1", DevelopmentID: "oak-park", HouseType: "BD01"}
}

func TestIsDimensionQuestion(t *testing.T) {
	tests := []struct {
		question string
		want     bool
	}{
		{"How big is the kitchen?", true},
		{"What size is the master bedroom?", true},
		{"What are the dimensions of the living room?", true},
		{"What is the floor area of bedroom 2?", true},
		{"What is the BER rating?", false},
		{"How does the heating system work?", false},
		{"Who is the kitchen supplier?", false},
		{"How big is the development?", false}, // no room reference
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDimensionQuestion(tt.question))
		})
	}
}

func TestExtractRoomKey(t *testing.T) {
	tests := []struct {
		question string
		want     string
	}{
		{"how big is the master bedroom?", "bedroom_1"},
		{"size of the open plan kitchen?", "kitchen_dining"},
		{"dimensions of the kitchen?", "kitchen"},
		{"how large is the lounge?", "living_room"},
		{"what about the hot press?", "hotpress"},
		{"no room here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractRoomKey(tt.question))
		})
	}
}

func TestDisplayRoomName(t *testing.T) {
	assert.Equal(t, "Bedroom 1", DisplayRoomName("bedroom_1"))
	assert.Equal(t, "Living Room", DisplayRoomName("living_room"))
}

func TestApply_GroundedAnswer(t *testing.T) {
	g, st := newTestGuardrail(t, DefaultSettings())
	sc := scope()
	seedDimension(t, st, sc, "kitchen.length_m", 3.6, 0.92)
	seedDimension(t, st, sc, "kitchen.width_m", 3.1, 0.92)
	seedDimension(t, st, sc, "kitchen.area_sqm", 11.2, 0.92)

	res, err := g.Apply(context.Background(), sc, "How big is the kitchen?")
	require.NoError(t, err)
	assert.True(t, res.Intercept)
	assert.True(t, res.LookupSuccessful)
	assert.Contains(t, res.GroundedAnswer, "3.60m x 3.10m")
	assert.Contains(t, res.GroundedAnswer, "11.2 sqm")
	assert.Contains(t, res.GroundedAnswer, "guide only")
}

func TestApply_LowConfidenceFallsBack(t *testing.T) {
	g, st := newTestGuardrail(t, DefaultSettings())
	sc := scope()
	seedDimension(t, st, sc, "kitchen.length_m", 3.6, 0.5)

	res, err := g.Apply(context.Background(), sc, "How big is the kitchen?")
	require.NoError(t, err)
	assert.True(t, res.Intercept)
	assert.False(t, res.LookupSuccessful)
	assert.True(t, res.SuggestFloorplan)
	assert.Contains(t, res.GroundedAnswer, "floor plan")
}

func TestApply_NoDataFallsBack(t *testing.T) {
	g, _ := newTestGuardrail(t, DefaultSettings())

	res, err := g.Apply(context.Background(), scope(), "What size is bedroom 2?")
	require.NoError(t, err)
	assert.True(t, res.Intercept)
	assert.False(t, res.LookupSuccessful)
	assert.Contains(t, res.GroundedAnswer, "Bedroom 2")
}

func TestApply_NonDimensionQuestionPassesThrough(t *testing.T) {
	g, _ := newTestGuardrail(t, DefaultSettings())

	res, err := g.Apply(context.Background(), scope(), "When are the bins collected?")
	require.NoError(t, err)
	assert.False(t, res.Intercept)
}

func TestApply_FeatureDisabled(t *testing.T) {
	settings := DefaultSettings()
	settings.Enabled = false
	g, st := newTestGuardrail(t, settings)
	sc := scope()
	seedDimension(t, st, sc, "kitchen.length_m", 3.6, 0.95)

	res, err := g.Apply(context.Background(), sc, "How big is the kitchen?")
	require.NoError(t, err)
	assert.True(t, res.Intercept)
	assert.False(t, res.LookupSuccessful)
	assert.Contains(t, res.GroundedAnswer, "floor plan")
}

func TestContainsFabricatedDimensions(t *testing.T) {
	assert.True(t, ContainsFabricatedDimensions("The kitchen is 3.6m x 3.1m.", false))
	assert.True(t, ContainsFabricatedDimensions("It measures 3.6 metres by 3.1 metres overall.", false))
	assert.True(t, ContainsFabricatedDimensions("Approximately 11.2 sqm of space.", false))
	assert.False(t, ContainsFabricatedDimensions("Check the floor plan in your Documents section.", false))
	// A successful lookup legitimizes dimension values.
	assert.False(t, ContainsFabricatedDimensions("The kitchen is 3.6m x 3.1m.", true))
}

func TestValidateResponse_ReplacesFabrication(t *testing.T) {
	g, _ := newTestGuardrail(t, DefaultSettings())

	sanitized, ok := g.ValidateResponse(
		"Your kitchen is about 4.2m x 3.8m.",
		"How big is the kitchen?",
		false,
	)
	assert.False(t, ok)
	assert.Contains(t, sanitized, "floor plan")

	resp, ok := g.ValidateResponse("The bins go out on Tuesday.", "When are bins collected?", false)
	assert.True(t, ok)
	assert.Equal(t, "The bins go out on Tuesday.", resp)
}
