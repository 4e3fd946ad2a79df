package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wastebroker/ops-platform/internal/models"
)

// SettingsDefaults are applied the first time a tenant is reconciled
type SettingsDefaults struct {
	FuzzyMatchThreshold      float64
	PriceTolerancePercentage float64
	AutoApproveExactMatches  bool
}

// DefaultSettings returns the business defaults
func DefaultSettings() SettingsDefaults {
	return SettingsDefaults{
		FuzzyMatchThreshold:      80,
		PriceTolerancePercentage: 5,
		AutoApproveExactMatches:  false,
	}
}

// SettingsProvider lazily creates per-tenant settings
type SettingsProvider struct {
	defaults SettingsDefaults
}

// NewSettingsProvider creates a provider seeded with defaults
func NewSettingsProvider(defaults SettingsDefaults) *SettingsProvider {
	return &SettingsProvider{defaults: defaults}
}

// Get returns the tenant's settings, inserting defaults if none exist.
// The store performs insert-or-fetch so concurrent first access cannot
// produce two rows.
func (p *SettingsProvider) Get(ctx context.Context, store Store, orgID uuid.UUID) (*models.ReconciliationSettings, error) {
	settings, err := store.EnsureReconciliationSettings(ctx, models.ReconciliationSettings{
		OrganizationID:           orgID,
		FuzzyMatchThreshold:      decimal.NewFromFloat(p.defaults.FuzzyMatchThreshold),
		PriceTolerancePercentage: decimal.NewFromFloat(p.defaults.PriceTolerancePercentage),
		AutoApproveExactMatches:  p.defaults.AutoApproveExactMatches,
	})
	if err != nil {
		return nil, wrapError(err, CodeInternal, "failed to load reconciliation settings")
	}
	return settings, nil
}

// Apply merges an update into current settings and validates the result
func (p *SettingsProvider) Apply(current *models.ReconciliationSettings, req *models.UpdateReconciliationSettingsRequest) (*models.ReconciliationSettings, error) {
	updated := *current
	if req.FuzzyMatchThreshold != nil {
		updated.FuzzyMatchThreshold = decimal.NewFromFloat(*req.FuzzyMatchThreshold)
	}
	if req.PriceTolerancePercentage != nil {
		updated.PriceTolerancePercentage = decimal.NewFromFloat(*req.PriceTolerancePercentage)
	}
	if req.AutoApproveExactMatches != nil {
		updated.AutoApproveExactMatches = *req.AutoApproveExactMatches
	}

	if !inPercentRange(updated.FuzzyMatchThreshold) {
		return nil, newError(CodeInvalidSettings, "fuzzy_match_threshold must be between 0 and 100")
	}
	if !inPercentRange(updated.PriceTolerancePercentage) {
		return nil, newError(CodeInvalidSettings, "price_tolerance_percentage must be between 0 and 100")
	}

	return &updated, nil
}

func inPercentRange(d decimal.Decimal) bool {
	return !d.IsNegative() && d.LessThanOrEqual(hundred)
}
