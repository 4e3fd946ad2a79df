package database

import (
	"context"

	"github.com/wastebroker/ops-platform/internal/models"
)

// EnsureReconciliationSettings inserts defaults for a tenant that has no
// settings row yet and returns whatever row exists afterwards. The unique
// organization_id constraint makes concurrent first access safe.
func (q *Queries) EnsureReconciliationSettings(ctx context.Context, defaults models.ReconciliationSettings) (*models.ReconciliationSettings, error) {
	_, err := q.q.Exec(ctx, `
		INSERT INTO reconciliation_settings (organization_id, fuzzy_match_threshold, price_tolerance_percentage, auto_approve_exact_matches)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id) DO NOTHING
	`, defaults.OrganizationID, defaults.FuzzyMatchThreshold, defaults.PriceTolerancePercentage, defaults.AutoApproveExactMatches)
	if err != nil {
		return nil, err
	}

	s := &models.ReconciliationSettings{}
	err = q.q.QueryRow(ctx, `
		SELECT organization_id, fuzzy_match_threshold, price_tolerance_percentage, auto_approve_exact_matches,
		       created_at, updated_at
		FROM reconciliation_settings
		WHERE organization_id = $1
	`, defaults.OrganizationID).Scan(
		&s.OrganizationID, &s.FuzzyMatchThreshold, &s.PriceTolerancePercentage, &s.AutoApproveExactMatches,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// SaveReconciliationSettings upserts a tenant's settings
func (q *Queries) SaveReconciliationSettings(ctx context.Context, s *models.ReconciliationSettings) error {
	return q.q.QueryRow(ctx, `
		INSERT INTO reconciliation_settings (organization_id, fuzzy_match_threshold, price_tolerance_percentage, auto_approve_exact_matches)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id) DO UPDATE
		SET fuzzy_match_threshold = EXCLUDED.fuzzy_match_threshold,
		    price_tolerance_percentage = EXCLUDED.price_tolerance_percentage,
		    auto_approve_exact_matches = EXCLUDED.auto_approve_exact_matches,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`, s.OrganizationID, s.FuzzyMatchThreshold, s.PriceTolerancePercentage, s.AutoApproveExactMatches,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
}
