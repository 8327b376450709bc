// Package template materializes rule templates into concrete per-scope
// rules. Application is a one-time copy: later edits to the template never
// propagate to scopes it was applied to.
package template

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"slotforge/internal/model"
)

// Store is the persistence surface the applier needs.
type Store interface {
	GetTemplate(ctx context.Context, tenantID, templateID int64) (*model.AvailabilityTemplate, error)
	ListTemplateRules(ctx context.Context, templateID int64) ([]model.TemplateRule, error)
	HasActiveRules(ctx context.Context, scope model.Scope) (bool, error)
	DeactivateRules(ctx context.Context, scope model.Scope) error
	CreateRules(ctx context.Context, rules []model.AvailabilityRule) ([]model.AvailabilityRule, error)
}

// Applier copies template blueprints into scope-bound rules.
type Applier struct {
	store  Store
	logger *zerolog.Logger
}

// NewApplier creates a template applier.
func NewApplier(store Store, logger *zerolog.Logger) *Applier {
	return &Applier{store: store, logger: logger}
}

// Apply materializes the template into rules owned by target.
//
// Returns model.ErrTemplateNotFound if the template id is unknown to the
// tenant, and model.ErrScopeConflict if the target already has active rules
// and overwrite is false. With overwrite, existing active rules are retired
// first so two authoritative rule sets are never merged.
func (a *Applier) Apply(ctx context.Context, templateID int64, target model.Scope, overwrite bool) ([]model.AvailabilityRule, error) {
	tmpl, err := a.store.GetTemplate(ctx, target.TenantID, templateID)
	if err != nil {
		return nil, err
	}

	blueprints, err := a.store.ListTemplateRules(ctx, tmpl.ID)
	if err != nil {
		return nil, fmt.Errorf("list template rules: %w", err)
	}

	hasRules, err := a.store.HasActiveRules(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("check scope rules: %w", err)
	}
	if hasRules {
		if !overwrite {
			return nil, model.ErrScopeConflict
		}
		if err := a.store.DeactivateRules(ctx, target); err != nil {
			return nil, fmt.Errorf("deactivate scope rules: %w", err)
		}
	}

	rules := make([]model.AvailabilityRule, 0, len(blueprints))
	for _, b := range blueprints {
		rules = append(rules, b.Materialize(target))
	}

	created, err := a.store.CreateRules(ctx, rules)
	if err != nil {
		return nil, fmt.Errorf("materialize template %d: %w", tmpl.ID, err)
	}

	a.logger.Info().
		Int64("template_id", tmpl.ID).
		Str("scope", target.String()).
		Int("rules", len(created)).
		Bool("overwrite", overwrite).
		Msg("template applied")

	return created, nil
}
