package router

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/resilience"
	"github.com/openhouse-labs/scheme-intel/pkg/anthropic"
)

const classificationPrompt = `You are a query router for a property developer intelligence system. Classify the developer's question into the appropriate knowledge layer(s).

LAYERS:
- data: Live data queries (unit counts, registration rates, pipeline status, revenue, handovers, messages, documents, snags, kitchen selections). Use when the question asks about numbers, stats, or current data.
- documents: Scheme-specific document search (uploaded documents for this development: specs, plans, fire certs, drawings). Use when asking about specific scheme documents or specifications.
- unit: Unit-specific knowledge (individual unit details, purchaser info, room dimensions). Use when asking about a specific unit or house type.
- regulatory: Irish building regulations and compliance (Part B fire, Part F ventilation, Part L energy, Part M access, BCAR, HomeBond, GDPR). Use when asking about regulations, building codes, compliance requirements.
- briefing: Daily briefing summary. Use when asking for "today's briefing", "morning update", "what do I need to know today".

AVAILABLE DATA FUNCTIONS:
%s

Return JSON only. Examples:
{"layers":["data"],"functions":["getRegistrationRate"],"search_query":null,"regulatory":false}
{"layers":["regulatory"],"functions":null,"search_query":"Part F ventilation requirements residential","regulatory":true}
{"layers":["data","documents"],"functions":["getDocumentCoverage"],"search_query":"fire safety certificates","regulatory":false}
{"layers":["briefing"],"functions":null,"search_query":null,"regulatory":false}`

// ClaudeClassifier classifies questions with an Anthropic model. Calls are
// rate limited so a chat burst cannot exhaust the API quota owned by
// extraction passes.
type ClaudeClassifier struct {
	client   anthropic.Client
	registry *Registry
	model    string
	limiter  *rate.Limiter
}

// NewClaudeClassifier creates a classifier using the given model.
func NewClaudeClassifier(client anthropic.Client, registry *Registry, modelID string) *ClaudeClassifier {
	return &ClaudeClassifier{
		client:   client,
		registry: registry,
		model:    modelID,
		limiter:  rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Classify submits the question and context summary, then validates the
// response strictly against the closed layer set and the function registry.
// Any malformed or out-of-set response is an error; the caller falls back.
func (c *ClaudeClassifier) Classify(ctx context.Context, question string, qctx model.QueryContext) (*model.RouteDecision, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "classify: rate limit wait")
	}

	scheme := qctx.SchemeName
	if scheme == "" {
		scheme = "All Schemes"
	}
	userMsg := fmt.Sprintf("Context: Scheme %q, %d units.\n\nQuestion: %s", scheme, qctx.TotalUnits, question)

	temp := 0.0
	req := anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   200,
		System:      fmt.Sprintf(classificationPrompt, strings.Join(c.registry.Names(), "\n")),
		Messages:    []anthropic.Message{{Role: "user", Content: userMsg}},
		Temperature: &temp,
	}

	// One quick retry on transient failures; the deadline is tight and the
	// keyword fallback is waiting behind us.
	var resp *anthropic.MessageResponse
	err := resilience.Do(ctx, resilience.RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     100 * time.Millisecond,
		Multiplier:     2,
	}, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.client.CreateMessage(ctx, req)
		return callErr
	})
	if err != nil {
		return nil, eris.Wrap(err, "classify: create message")
	}

	decision, err := parseDecision(resp.Text)
	if err != nil {
		return nil, err
	}
	for _, fn := range decision.Functions {
		if !c.registry.Has(fn) {
			return nil, eris.Errorf("classify: unregistered function %q", fn)
		}
	}
	return decision, nil
}

// parseDecision decodes the classifier's JSON and rejects anything outside
// the closed layer set.
func parseDecision(text string) (*model.RouteDecision, error) {
	text = strings.TrimSpace(text)
	// Models sometimes wrap JSON in a code fence.
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	var raw struct {
		Layers      []string `json:"layers"`
		Functions   []string `json:"functions"`
		SearchQuery *string  `json:"search_query"`
		Regulatory  bool     `json:"regulatory"`
	}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, eris.Wrap(err, "classify: decode response")
	}
	if len(raw.Layers) == 0 {
		return nil, eris.New("classify: empty layer set")
	}

	decision := &model.RouteDecision{
		Functions:  raw.Functions,
		Regulatory: raw.Regulatory,
	}
	for _, l := range raw.Layers {
		layer := model.Layer(l)
		if !layer.Valid() {
			return nil, eris.Errorf("classify: unknown layer %q", l)
		}
		decision.Layers = append(decision.Layers, layer)
	}
	if raw.SearchQuery != nil {
		decision.SearchQuery = *raw.SearchQuery
	}
	return decision, nil
}
