package profile

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/openhouse-labs/scheme-intel/internal/model"
	"github.com/openhouse-labs/scheme-intel/internal/store"
)

// TemplateFact is one baseline value from a house-type template.
type TemplateFact struct {
	Key   string `yaml:"key" json:"key"`
	Value any    `yaml:"value" json:"value"`
	Unit  string `yaml:"unit" json:"unit"`
}

// SyncTemplates writes template_default facts for any template key the scope
// does not yet have at that tier. Existing template facts are left alone so
// repeated syncs are cheap and idempotent. Returns the number of facts
// written.
func (b *Builder) SyncTemplates(ctx context.Context, scope model.Scope, templates []TemplateFact) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	existing, err := b.store.ListFacts(ctx, scope, store.FactFilter{Source: model.SourceTemplateDefault})
	if err != nil {
		return 0, eris.Wrap(err, "sync templates: list existing")
	}
	have := make(map[string]bool, len(existing))
	for _, f := range existing {
		have[f.Key] = true
	}

	written := 0
	for _, tmpl := range templates {
		if tmpl.Key == "" || have[tmpl.Key] {
			continue
		}
		_, err := b.store.InsertFact(ctx, model.Fact{
			Scope:      scope,
			Key:        tmpl.Key,
			Value:      tmpl.Value,
			Unit:       tmpl.Unit,
			Source:     model.SourceTemplateDefault,
			Confidence: 1.0,
		})
		if err != nil {
			return written, eris.Wrapf(err, "sync templates: insert %s", tmpl.Key)
		}
		written++
	}

	if written > 0 {
		zap.L().Info("templates synced",
			zap.String("house_type", scope.HouseType),
			zap.Int("written", written))
	}
	return written, nil
}
