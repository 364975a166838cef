// Package router classifies natural-language questions into knowledge
// layers, with a deterministic keyword fallback when classification fails.
package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openhouse-labs/scheme-intel/internal/model"
)

// DefaultClassifyTimeout bounds the classifier call. The fallback makes a
// long wait pointless.
const DefaultClassifyTimeout = 400 * time.Millisecond

// Classifier turns one question into a route decision. Implementations may
// fail or time out; the Router absorbs that.
type Classifier interface {
	Classify(ctx context.Context, question string, qctx model.QueryContext) (*model.RouteDecision, error)
}

// Router routes questions. Safe for concurrent use.
type Router struct {
	classifier Classifier
	registry   *Registry
	timeout    time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithClassifyTimeout overrides the classification timeout.
func WithClassifyTimeout(d time.Duration) Option {
	return func(r *Router) { r.timeout = d }
}

// New creates a Router. classifier may be nil, in which case every question
// takes the fallback path. Registry misconfiguration is a startup error.
func New(classifier Classifier, registry *Registry, opts ...Option) (*Router, error) {
	if registry == nil {
		registry = NewRegistry()
	}
	if err := registry.Validate(); err != nil {
		return nil, err
	}
	r := &Router{
		classifier: classifier,
		registry:   registry,
		timeout:    DefaultClassifyTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Route decides which layers should answer the question. It never fails for
// unrecognized input: classification errors degrade to the keyword fallback,
// and the worst case is the default hybrid decision.
func (r *Router) Route(ctx context.Context, question string, qctx model.QueryContext) *model.RouteDecision {
	if r.classifier != nil {
		cctx, cancel := context.WithTimeout(ctx, r.timeout)
		decision, err := r.classifier.Classify(cctx, question, qctx)
		cancel()
		if err == nil {
			return decision
		}
		zap.L().Debug("classification failed, using fallback",
			zap.String("question", question),
			zap.Error(err))
	}
	return fallbackRoute(question)
}
