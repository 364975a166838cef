package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhouse-labs/scheme-intel/internal/guardrail"
	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/profile"
	"github.com/openhouse-labs/scheme-intel/internal/resolver"
	"github.com/openhouse-labs/scheme-intel/internal/retrieval"
	"github.com/openhouse-labs/scheme-intel/internal/router"
	"github.com/openhouse-labs/scheme-intel/internal/store"
)

func newTestAPI(t *testing.T) (*apiServer, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	rt, err := router.New(nil, nil)
	require.NoError(t, err)

	res := resolver.New(st)
	return &apiServer{
		store:     st,
		resolver:  res,
		builder:   profile.NewBuilder(st, profile.DefaultWeights()),
		router:    rt,
		guardrail: guardrail.New(res, guardrail.DefaultSettings()),
		retriever: retrieval.NewRetriever(nil, nil),
	}, st
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestHandleResolve_Found(t *testing.T) {
	api, st := newTestAPI(t)
	_, err := st.InsertFact(context.Background(), model.Fact{
		Scope:      model.Scope{TenantID: "t1", DevelopmentID: "d1", HouseType: "BD01"},
		Key:        "kitchen.area_sqm",
		Value:      14.2,
		Source:     model.SourceVisionExtraction,
		Confidence: 0.92,
	})
	require.NoError(t, err)

	rec := postJSON(t, api.handleResolve,
		`{"tenant_id":"t1","development_id":"d1","house_type":"BD01","key":"kitchen.area_sqm"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res resolver.Resolution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Found)
	assert.Equal(t, model.SourceVisionExtraction, res.Source)
}

func TestHandleResolve_InvalidScope(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := postJSON(t, api.handleResolve, `{"tenant_id":"t1","key":"kitchen.area_sqm"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleRoute_FallbackDecision(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := postJSON(t, api.handleRoute, `{"question":"how many units are registered?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var decision model.RouteDecision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.Equal(t, []model.Layer{model.LayerData}, decision.Layers)
	assert.Equal(t, []string{"getRegistrationRate"}, decision.Functions)
}

func TestHandleRoute_MissingQuestion(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := postJSON(t, api.handleRoute, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePublish_EmptyProfile(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := postJSON(t, api.handlePublish,
		`{"tenant_id":"t1","development_id":"d1","house_type":"BD01"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandlePublish_Success(t *testing.T) {
	api, _ := newTestAPI(t)
	ctx := context.Background()
	scope := model.Scope{TenantID: "t1", DevelopmentID: "d1", HouseType: "BD01"}

	pass, err := api.builder.BeginPass(ctx, scope, "document_extraction")
	require.NoError(t, err)
	require.NoError(t, api.builder.RecordFacts(ctx, pass.ID, []profile.FactInput{
		{Key: "kitchen.area_sqm", Value: 14.2, Confidence: 0.9},
	}))
	require.NoError(t, api.builder.FinalizePass(ctx, pass.ID, model.PassOutcomeSuccess, 3))

	rec := postJSON(t, api.handlePublish,
		`{"tenant_id":"t1","development_id":"d1","house_type":"BD01"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var published model.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &published))
	assert.Equal(t, 1, published.Version)
	assert.True(t, published.IsCurrent)
}

func TestHandleCurrentProfile_NotFound(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := postJSON(t, api.handleCurrentProfile,
		`{"tenant_id":"t1","development_id":"d1","house_type":"BD01"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleAsk_GroundedDimensionAnswer(t *testing.T) {
	api, st := newTestAPI(t)
	ctx := context.Background()
	scope := model.Scope{TenantID: "t1", DevelopmentID: "d1", HouseType: "BD01"}

	for key, value := range map[string]float64{
		"kitchen.length_m": 4.2,
		"kitchen.width_m":  3.5,
		"kitchen.area_sqm": 14.7,
	} {
		_, err := st.InsertFact(ctx, model.Fact{
			Scope: scope, Key: key, Value: value, Unit: "m",
			Source: model.SourceVisionExtraction, Confidence: 0.9,
		})
		require.NoError(t, err)
	}

	rec := postJSON(t, api.handleAsk,
		`{"tenant_id":"t1","development_id":"d1","house_type":"BD01","question":"how big is the kitchen?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Answer   string `json:"answer"`
		Grounded bool   `json:"grounded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Grounded)
	assert.Contains(t, resp.Answer, "4.20m x 3.50m")
	assert.Contains(t, resp.Answer, "14.7 sqm")
}

func TestHandleAsk_DimensionFallbackWithoutFacts(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := postJSON(t, api.handleAsk,
		`{"tenant_id":"t1","development_id":"d1","house_type":"BD01","question":"what size is bedroom 2?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Answer   string `json:"answer"`
		Grounded bool   `json:"grounded"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Grounded)
	assert.Contains(t, resp.Answer, "floor plan")
}

func TestHandleAsk_NonDimensionQuestionRoutes(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := postJSON(t, api.handleAsk,
		`{"tenant_id":"t1","development_id":"d1","house_type":"BD01","question":"how many units are registered?"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Answer   string               `json:"answer"`
		Decision *model.RouteDecision `json:"decision"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Answer)
	require.NotNil(t, resp.Decision)
	assert.Equal(t, []string{"getRegistrationRate"}, resp.Decision.Functions)
}

func TestHandleAsk_MissingQuestion(t *testing.T) {
	api, _ := newTestAPI(t)

	rec := postJSON(t, api.handleAsk, `{"tenant_id":"t1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	api, _ := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	api.handleHealth(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
