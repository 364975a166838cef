// Package resolver merges multi-source facts into canonical values under
// tier precedence.
package resolver

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/store"
)

// DefaultConfidenceFloor excludes facts below this confidence from
// resolution entirely.
const DefaultConfidenceFloor = 0.3

// Resolution is the outcome of resolving one fact key.
type Resolution struct {
	Found      bool        `json:"found"`
	Key        string      `json:"key"`
	Value      any         `json:"value,omitempty"`
	Unit       string      `json:"unit,omitempty"`
	Source     model.Source `json:"source,omitempty"`
	Confidence float64     `json:"confidence,omitempty"`
	// Considered counts candidates that survived the confidence floor.
	Considered int `json:"considered"`
}

// Resolver picks the canonical value for each fact key within a scope.
type Resolver struct {
	store store.Store
	floor float64
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithConfidenceFloor overrides the default confidence floor.
func WithConfidenceFloor(floor float64) Option {
	return func(r *Resolver) { r.floor = floor }
}

// New creates a Resolver backed by the given store.
func New(st store.Store, opts ...Option) *Resolver {
	r := &Resolver{store: st, floor: DefaultConfidenceFloor}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the canonical fact for a single key. A missing key is not
// an error: the Resolution comes back with Found=false.
func (r *Resolver) Resolve(ctx context.Context, scope model.Scope, key string) (*Resolution, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, eris.New("resolve: empty fact key")
	}

	facts, err := r.store.ListFacts(ctx, scope, store.FactFilter{Key: key, FinalizedOnly: true})
	if err != nil {
		return nil, eris.Wrapf(err, "resolve %s", key)
	}

	candidates := r.eligible(facts)
	if len(candidates) == 0 {
		return &Resolution{Key: key}, nil
	}

	winner := pickWinner(candidates)
	zap.L().Debug("fact resolved",
		zap.String("key", key),
		zap.String("source", string(winner.Source)),
		zap.Float64("confidence", winner.Confidence),
		zap.Int("candidates", len(candidates)))

	return &Resolution{
		Found:      true,
		Key:        key,
		Value:      winner.Value,
		Unit:       winner.Unit,
		Source:     winner.Source,
		Confidence: winner.Confidence,
		Considered: len(candidates),
	}, nil
}

// ResolveAll resolves every fact key recorded for the scope in one pass.
// Keys whose candidates all fall below the floor are omitted.
func (r *Resolver) ResolveAll(ctx context.Context, scope model.Scope) (map[string]Resolution, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	facts, err := r.store.ListFacts(ctx, scope, store.FactFilter{FinalizedOnly: true})
	if err != nil {
		return nil, eris.Wrap(err, "resolve all")
	}

	byKey := make(map[string][]model.Fact)
	for _, f := range r.eligible(facts) {
		byKey[f.Key] = append(byKey[f.Key], f)
	}

	out := make(map[string]Resolution, len(byKey))
	for key, candidates := range byKey {
		winner := pickWinner(candidates)
		out[key] = Resolution{
			Found:      true,
			Key:        key,
			Value:      winner.Value,
			Unit:       winner.Unit,
			Source:     winner.Source,
			Confidence: winner.Confidence,
			Considered: len(candidates),
		}
	}
	return out, nil
}

// eligible filters out facts below the confidence floor or carrying an
// unknown source.
func (r *Resolver) eligible(facts []model.Fact) []model.Fact {
	out := facts[:0:0]
	for _, f := range facts {
		if !f.Source.Valid() {
			continue
		}
		if f.Confidence < r.floor {
			continue
		}
		out = append(out, f)
	}
	return out
}

// pickWinner orders candidates by tier, then confidence, then recency.
// The caller guarantees len(candidates) > 0.
func pickWinner(candidates []model.Fact) model.Fact {
	sorted := make([]model.Fact, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Source.Tier() != b.Source.Tier() {
			return a.Source.Tier() > b.Source.Tier()
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.RecordedAt.After(b.RecordedAt)
	})
	return sorted[0]
}
