package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReviewDecision is the human sign-off state of a match record
// (column match_status on match_records).
type ReviewDecision string

const (
	DecisionPending  ReviewDecision = "pending"
	DecisionApproved ReviewDecision = "approved"
	DecisionRejected ReviewDecision = "rejected"
)

// RecommendedAction is what the engine suggests doing with a line item
type RecommendedAction string

const (
	ActionAutoApprove     RecommendedAction = "auto_approve"
	ActionReview          RecommendedAction = "review"
	ActionFlagDiscrepancy RecommendedAction = "flag_discrepancy"
)

// DiscrepancyType classifies why a line item needs attention
type DiscrepancyType string

const (
	DiscrepancyNoMatch       DiscrepancyType = "no_match"
	DiscrepancyNoPO          DiscrepancyType = "no_po"
	DiscrepancyPriceMismatch DiscrepancyType = "price_mismatch"
	DiscrepancyRejectedMatch DiscrepancyType = "rejected_match"
)

// EngineDiscrepancyTypes are raised by matching runs. A re-run supersedes
// only these; rejected_match is left to the resolution workflow.
var EngineDiscrepancyTypes = []DiscrepancyType{
	DiscrepancyNoMatch,
	DiscrepancyNoPO,
	DiscrepancyPriceMismatch,
}

// Severity of a discrepancy
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
)

// DiscrepancyStatus is managed by the external resolution workflow; the
// engine only opens discrepancies and supersedes its own on re-match.
type DiscrepancyStatus string

const (
	DiscrepancyOpen       DiscrepancyStatus = "open"
	DiscrepancyResolved   DiscrepancyStatus = "resolved"
	DiscrepancySuperseded DiscrepancyStatus = "superseded"
)

// MatchRecord is the persisted decision for one vendor line item
type MatchRecord struct {
	ID                        uuid.UUID         `json:"id"`
	OrganizationID            uuid.UUID         `json:"organization_id"`
	VendorInvoiceID           uuid.UUID         `json:"vendor_invoice_id"`
	VendorLineItemID          uuid.UUID         `json:"vendor_line_item_id"`
	PurchaseOrderID           *uuid.UUID        `json:"purchase_order_id,omitempty"`
	POLineItemID              *uuid.UUID        `json:"po_line_item_id,omitempty"`
	Outcome                   ComparisonOutcome `json:"match_type"`
	SimilarityScore           decimal.Decimal   `json:"similarity_score"`
	PriceDifferencePercentage decimal.Decimal   `json:"price_difference_percentage"`
	Decision                  ReviewDecision    `json:"match_status"`
	MatchedBy                 *uuid.UUID        `json:"matched_by,omitempty"`
	MatchedAt                 *time.Time        `json:"matched_at,omitempty"`
	Notes                     *string           `json:"notes,omitempty"`
	SupersededAt              *time.Time        `json:"superseded_at,omitempty"`
	CreatedAt                 time.Time         `json:"created_at"`
	UpdatedAt                 time.Time         `json:"updated_at"`
}

// IsActive reports whether the record is the current decision for its line item
func (m *MatchRecord) IsActive() bool {
	return m.SupersededAt == nil
}

// Discrepancy is an exception raised for a line item
type Discrepancy struct {
	ID               uuid.UUID         `json:"id"`
	OrganizationID   uuid.UUID         `json:"organization_id"`
	VendorInvoiceID  uuid.UUID         `json:"vendor_invoice_id"`
	VendorLineItemID *uuid.UUID        `json:"vendor_line_item_id,omitempty"`
	MatchRecordID    *uuid.UUID        `json:"match_record_id,omitempty"`
	Type             DiscrepancyType   `json:"discrepancy_type"`
	ExpectedValue    *string           `json:"expected_value,omitempty"`
	ActualValue      *string           `json:"actual_value,omitempty"`
	AmountDifference decimal.Decimal   `json:"amount_difference"`
	Severity         Severity          `json:"severity"`
	Status           DiscrepancyStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
}

// ReconciliationSettings holds one tenant's tunable thresholds
type ReconciliationSettings struct {
	OrganizationID           uuid.UUID       `json:"organization_id"`
	FuzzyMatchThreshold      decimal.Decimal `json:"fuzzy_match_threshold"`
	PriceTolerancePercentage decimal.Decimal `json:"price_tolerance_percentage"`
	AutoApproveExactMatches  bool            `json:"auto_approve_exact_matches"`
	CreatedAt                time.Time       `json:"created_at"`
	UpdatedAt                time.Time       `json:"updated_at"`
}

// UpdateReconciliationSettingsRequest is used by administrators
type UpdateReconciliationSettingsRequest struct {
	FuzzyMatchThreshold      *float64 `json:"fuzzy_match_threshold,omitempty" validate:"omitempty,gte=0,lte=100"`
	PriceTolerancePercentage *float64 `json:"price_tolerance_percentage,omitempty" validate:"omitempty,gte=0,lte=100"`
	AutoApproveExactMatches  *bool    `json:"auto_approve_exact_matches,omitempty"`
}
