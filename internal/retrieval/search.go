package retrieval

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openhouse-labs/scheme-intel/internal/model"
)

// Passage is one ranked text chunk from a search collaborator.
type Passage struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	DocumentID string         `json:"document_id,omitempty"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// DocumentSearcher finds passages in the scheme's uploaded documents.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, scope model.Scope, query string, limit int) ([]Passage, error)
}

// RegulatorySearcher finds passages in the building-regulations corpus.
type RegulatorySearcher interface {
	SearchRegulations(ctx context.Context, query string, limit int) ([]Passage, error)
}

// DefaultPassageLimit is the passage cap per search.
const DefaultPassageLimit = 12

// Retriever expands queries and dispatches them to the right collaborator
// based on a route decision.
type Retriever struct {
	docs  DocumentSearcher
	regs  RegulatorySearcher
	limit int
}

// NewRetriever wires the two search collaborators. Either may be nil when
// the deployment lacks that corpus.
func NewRetriever(docs DocumentSearcher, regs RegulatorySearcher) *Retriever {
	return &Retriever{docs: docs, regs: regs, limit: DefaultPassageLimit}
}

// Fetch runs the searches a route decision asks for. A decision without
// document or regulatory layers returns no passages and no error.
func (r *Retriever) Fetch(ctx context.Context, scope model.Scope, decision *model.RouteDecision) ([]Passage, error) {
	if decision == nil || decision.SearchQuery == "" {
		return nil, nil
	}

	query := ExpandQuery(decision.SearchQuery)
	intents := DetectIntents(decision.SearchQuery)
	zap.L().Debug("retrieval dispatch",
		zap.String("query", query),
		zap.Int("intents", len(intents)),
		zap.Bool("regulatory", decision.Regulatory))

	var passages []Passage
	if decision.Regulatory && r.regs != nil {
		found, err := r.regs.SearchRegulations(ctx, query, r.limit)
		if err != nil {
			return nil, eris.Wrap(err, "regulatory search")
		}
		passages = append(passages, found...)
	}
	if decision.HasLayer(model.LayerDocuments) && r.docs != nil {
		found, err := r.docs.SearchDocuments(ctx, scope, query, r.limit)
		if err != nil {
			return nil, eris.Wrap(err, "document search")
		}
		passages = append(passages, found...)
	}
	return passages, nil
}
