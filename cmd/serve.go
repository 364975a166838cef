package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openhouse-labs/scheme-intel/internal/guardrail"
	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/profile"
	"github.com/openhouse-labs/scheme-intel/internal/resolver"
	"github.com/openhouse-labs/scheme-intel/internal/retrieval"
	"github.com/openhouse-labs/scheme-intel/internal/router"
	"github.com/openhouse-labs/scheme-intel/internal/store"
	"github.com/openhouse-labs/scheme-intel/pkg/anthropic"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res := resolver.New(st, resolver.WithConfidenceFloor(cfg.Resolver.ConfidenceFloor))
		builder := profile.NewBuilder(st, loadWeights())

		var classifier router.Classifier
		if cfg.Anthropic.Key != "" {
			client := anthropic.NewClient(cfg.Anthropic.Key)
			classifier = router.NewClaudeClassifier(client, router.NewRegistry(), cfg.Anthropic.ClassifierModel)
		}
		rt, err := router.New(classifier, nil,
			router.WithClassifyTimeout(cfg.Router.ClassifyTimeout()))
		if err != nil {
			return err
		}

		api := &apiServer{
			store:     st,
			resolver:  res,
			builder:   builder,
			router:    rt,
			guardrail: guardrail.New(res, guardrail.DefaultSettings()),
			retriever: retrieval.NewRetriever(nil, nil),
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", api.handleHealth)
		r.Route("/v1", func(r chi.Router) {
			r.Post("/resolve", api.handleResolve)
			r.Post("/route", api.handleRoute)
			r.Post("/ask", api.handleAsk)
			r.Post("/profiles/publish", api.handlePublish)
			r.Post("/profiles/current", api.handleCurrentProfile)
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

type apiServer struct {
	store     store.Store
	resolver  *resolver.Resolver
	builder   *profile.Builder
	router    *router.Router
	guardrail *guardrail.Guardrail
	retriever *retrieval.Retriever
}

type scopeRequest struct {
	TenantID      string `json:"tenant_id"`
	DevelopmentID string `json:"development_id"`
	HouseType     string `json:"house_type"`
	UnitID        string `json:"unit_id"`
}

func (s scopeRequest) scope() model.Scope {
	return model.Scope{
		TenantID:      s.TenantID,
		DevelopmentID: s.DevelopmentID,
		HouseType:     s.HouseType,
		UnitID:        s.UnitID,
	}
}

func (a *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *apiServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		scopeRequest
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Key == "" {
		all, err := a.resolver.ResolveAll(r.Context(), req.scope())
		if err != nil {
			writeResolutionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, all)
		return
	}

	res, err := a.resolver.Resolve(r.Context(), req.scope(), req.Key)
	if err != nil {
		writeResolutionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *apiServer) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string             `json:"question"`
		Context  model.QueryContext `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	writeJSON(w, http.StatusOK, a.router.Route(r.Context(), req.Question, req.Context))
}

// handleAsk runs the full question pipeline: the dimension guardrail first,
// then routing, then passage retrieval for whatever layers the decision asks
// for. Grounded dimension answers short-circuit before any routing happens.
func (a *apiServer) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		scopeRequest
		Question string             `json:"question"`
		Context  model.QueryContext `json:"context"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	type askResponse struct {
		Answer   string               `json:"answer,omitempty"`
		Grounded bool                 `json:"grounded"`
		Decision *model.RouteDecision `json:"decision,omitempty"`
		Passages []retrieval.Passage  `json:"passages,omitempty"`
	}

	verdict, err := a.guardrail.Apply(r.Context(), req.scope(), req.Question)
	if err != nil {
		if errors.Is(err, model.ErrInvalidScope) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("guardrail failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "question pipeline failed")
		return
	}
	if verdict.Intercept {
		writeJSON(w, http.StatusOK, askResponse{
			Answer:   verdict.GroundedAnswer,
			Grounded: verdict.LookupSuccessful,
		})
		return
	}

	decision := a.router.Route(r.Context(), req.Question, req.Context)
	passages, err := a.retriever.Fetch(r.Context(), req.scope(), decision)
	if err != nil {
		zap.L().Error("retrieval failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "question pipeline failed")
		return
	}

	writeJSON(w, http.StatusOK, askResponse{Decision: decision, Passages: passages})
}

func (a *apiServer) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req scopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	published, err := a.builder.PublishVersion(r.Context(), req.scope())
	switch {
	case errors.Is(err, model.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrEmptyProfile):
		writeError(w, http.StatusUnprocessableEntity, "no eligible facts to publish")
	case errors.Is(err, model.ErrPublishConflict):
		writeError(w, http.StatusConflict, "a concurrent publish won; retry with refreshed state")
	case err != nil:
		zap.L().Error("publish failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "publish failed")
	default:
		writeJSON(w, http.StatusOK, published)
	}
}

func (a *apiServer) handleCurrentProfile(w http.ResponseWriter, r *http.Request) {
	var req scopeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	current, err := a.store.GetCurrentProfile(r.Context(), req.scope())
	switch {
	case errors.Is(err, model.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		zap.L().Error("get current profile failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed")
	case current == nil:
		writeError(w, http.StatusNotFound, "no current profile for this house type")
	default:
		writeJSON(w, http.StatusOK, current)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeResolutionError(w http.ResponseWriter, err error) {
	if errors.Is(err, model.ErrInvalidScope) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	zap.L().Error("resolve failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "resolve failed")
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
