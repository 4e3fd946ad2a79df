package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/wastebroker/ops-platform/internal/logger"
	"github.com/wastebroker/ops-platform/internal/models"
)

// Config tunes the engine; zero values fall back to package defaults
type Config struct {
	DateWindowDays      int
	MaxDescriptionRunes int
	Defaults            SettingsDefaults
}

// Service is the reconciliation engine's entry point. It holds no state
// between calls; every operation runs in its own transaction.
type Service struct {
	tx       Transactor
	settings *SettingsProvider
	resolver *Resolver
	matcher  *Matcher
	now      func() time.Time
	log      zerolog.Logger
}

// NewService creates the engine over a transaction runner
func NewService(tx Transactor, cfg Config) *Service {
	return &Service{
		tx:       tx,
		settings: NewSettingsProvider(cfg.Defaults),
		resolver: DefaultResolver(cfg.DateWindowDays),
		matcher:  NewMatcher(cfg.MaxDescriptionRunes),
		now:      time.Now,
		log:      logger.WithComponent("reconcile"),
	}
}

// Resolver exposes the candidate resolver so intake can link POs with the
// same heuristic the engine uses
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// AutoMatchRequest starts a reconciliation run
type AutoMatchRequest struct {
	VendorInvoiceID uuid.UUID  `json:"vendor_invoice_id" validate:"required"`
	POID            *uuid.UUID `json:"po_id,omitempty"`
}

// MatchResult is the engine's decision for one vendor line item
type MatchResult struct {
	VendorLineItemID          uuid.UUID                `json:"vendor_line_item_id"`
	POLineItemID              *uuid.UUID               `json:"po_line_item_id"`
	MatchType                 models.ComparisonOutcome `json:"match_type"`
	SimilarityScore           float64                  `json:"similarity_score"`
	PriceDifference           decimal.Decimal          `json:"price_difference"`
	PriceDifferencePercentage decimal.Decimal          `json:"price_difference_percentage"`
	RecommendedAction         models.RecommendedAction `json:"recommended_action"`
	OverallScore              float64                  `json:"overall_score"`
	MatchRecordID             uuid.UUID                `json:"match_record_id"`
	DiscrepancyID             *uuid.UUID               `json:"discrepancy_id,omitempty"`
	PurchaseOrderID           *uuid.UUID               `json:"purchase_order_id,omitempty"`
	ResolutionStrategy        string                   `json:"resolution_strategy,omitempty"`
}

// AutoMatchInvoice reconciles every line item of an invoice against the
// resolved purchase order. Either every line item gets a record or nothing
// is written.
func (s *Service) AutoMatchInvoice(ctx context.Context, orgID uuid.UUID, req AutoMatchRequest) ([]MatchResult, error) {
	var results []MatchResult

	err := s.tx.InTx(ctx, func(store Store) error {
		results = nil

		settings, err := s.settings.Get(ctx, store, orgID)
		if err != nil {
			return err
		}

		invoice, err := store.LockVendorInvoice(ctx, orgID, req.VendorInvoiceID)
		if err != nil {
			if isNotFound(err) {
				return newError(CodeInvoiceNotFound, "vendor invoice not found")
			}
			return wrapError(err, CodeInternal, "failed to load vendor invoice")
		}

		items, err := store.ListVendorLineItems(ctx, invoice.ID)
		if err != nil {
			return wrapError(err, CodeInternal, "failed to load vendor line items")
		}
		if len(items) == 0 {
			return newError(CodeNoLineItems, "vendor invoice has no line items")
		}

		now := s.now()
		if err := s.supersedeActive(ctx, store, orgID, invoice.ID, now); err != nil {
			return err
		}

		resolution, err := s.resolver.Resolve(ctx, store, resolveRequestFor(invoice, req.POID))
		if err != nil {
			return err
		}

		counts := make(map[models.ComparisonOutcome]int)
		for _, item := range items {
			result, err := s.matchAndRecord(ctx, store, orgID, invoice, item, resolution, settings, now)
			if err != nil {
				return err
			}
			counts[result.MatchType]++
			results = append(results, *result)
		}

		event := s.log.Info().
			Str("organization_id", orgID.String()).
			Str("vendor_invoice_id", invoice.ID.String()).
			Int("line_items", len(items)).
			Int("exact", counts[models.OutcomeExact]).
			Int("fuzzy", counts[models.OutcomeFuzzy]).
			Int("unmatched", counts[models.OutcomeUnmatched])
		if resolution.Found() {
			event = event.
				Str("purchase_order_id", resolution.PurchaseOrder.ID.String()).
				Str("strategy", resolution.Strategy)
		}
		event.Msg("auto-match completed")

		return nil
	})
	if err != nil {
		return nil, wrapError(err, CodeInternal, "auto-match failed")
	}

	return results, nil
}

func resolveRequestFor(invoice *models.VendorInvoice, override *uuid.UUID) ResolveRequest {
	req := ResolveRequest{
		OrganizationID: invoice.OrganizationID,
		VendorID:       invoice.VendorID,
		ClientID:       invoice.ClientID,
		SiteID:         invoice.SiteID,
		ExplicitPOID:   invoice.POID,
		InvoiceDate:    invoice.InvoiceDate,
		InvoiceTotal:   invoice.Total,
	}
	if override != nil {
		req.ExplicitPOID = override
	}
	if invoice.RawText != nil {
		req.RawText = *invoice.RawText
	}
	return req
}

// supersedeActive retires the invoice's current records before a re-run.
// Human-approved records block the run.
func (s *Service) supersedeActive(ctx context.Context, store Store, orgID, invoiceID uuid.UUID, now time.Time) error {
	active, err := store.ListActiveMatchRecords(ctx, orgID, invoiceID)
	if err != nil {
		return wrapError(err, CodeInternal, "failed to load existing match records")
	}
	if len(active) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(active))
	for _, record := range active {
		if record.Decision == models.DecisionApproved {
			return newError(CodeMatchLocked, "invoice has approved matches; reject them before re-matching")
		}
		ids = append(ids, record.ID)
	}

	if err := store.SupersedeMatchRecords(ctx, ids, now); err != nil {
		return wrapError(err, CodeInternal, "failed to supersede match records")
	}
	if err := store.SetDiscrepancyStatusForMatches(ctx, ids, models.DiscrepancyOpen, models.DiscrepancySuperseded, models.EngineDiscrepancyTypes); err != nil {
		return wrapError(err, CodeInternal, "failed to supersede discrepancies")
	}

	s.log.Debug().
		Str("vendor_invoice_id", invoiceID.String()).
		Int("records", len(ids)).
		Msg("superseded prior match records")
	return nil
}

func (s *Service) matchAndRecord(
	ctx context.Context,
	store Store,
	orgID uuid.UUID,
	invoice *models.VendorInvoice,
	item models.VendorLineItem,
	resolution *Resolution,
	settings *models.ReconciliationSettings,
	now time.Time,
) (*MatchResult, error) {
	match := s.matcher.MatchLineItem(item, resolution.Items, settings)

	record := &models.MatchRecord{
		ID:                        uuid.New(),
		OrganizationID:            orgID,
		VendorInvoiceID:           invoice.ID,
		VendorLineItemID:          item.ID,
		Outcome:                   match.Outcome,
		SimilarityScore:           decimal.Zero,
		PriceDifferencePercentage: decimal.Zero,
		Decision:                  models.DecisionPending,
	}
	if resolution.Found() {
		poID := resolution.PurchaseOrder.ID
		record.PurchaseOrderID = &poID
	}

	result := &MatchResult{
		VendorLineItemID:          item.ID,
		MatchType:                 match.Outcome,
		PriceDifference:           decimal.Zero,
		PriceDifferencePercentage: decimal.Zero,
		RecommendedAction:         match.Action,
		MatchRecordID:             record.ID,
		PurchaseOrderID:           record.PurchaseOrderID,
		ResolutionStrategy:        resolution.Strategy,
	}

	if match.Best != nil {
		record.SimilarityScore = decimal.NewFromFloat(match.Best.DescriptionSimilarity).Round(2)
		record.PriceDifferencePercentage = match.Best.PriceDifferencePercentage.Round(2)

		result.SimilarityScore = match.Best.DescriptionSimilarity
		result.PriceDifference = match.Best.PriceDifference
		result.PriceDifferencePercentage = match.Best.PriceDifferencePercentage
		result.OverallScore = match.Best.OverallScore

		if match.Matched() {
			poLineID := match.Best.POLineItem.ID
			record.POLineItemID = &poLineID
			result.POLineItemID = &poLineID
		}
	}

	if match.Action == models.ActionAutoApprove {
		record.Decision = models.DecisionApproved
		record.MatchedAt = &now
	}

	if err := store.CreateMatchRecord(ctx, record); err != nil {
		return nil, wrapError(err, CodeInternal, "failed to save match record")
	}
	if err := store.SetLineItemOutcome(ctx, item.ID, match.Outcome, record.POLineItemID); err != nil {
		return nil, wrapError(err, CodeInternal, "failed to update line item")
	}

	if match.Action != models.ActionAutoApprove {
		d := engineDiscrepancy(record, item, match, resolution.Found())
		if err := store.CreateDiscrepancy(ctx, d); err != nil {
			return nil, wrapError(err, CodeInternal, "failed to save discrepancy")
		}
		result.DiscrepancyID = &d.ID
	}

	s.log.Debug().
		Str("vendor_line_item_id", item.ID.String()).
		Str("match_type", string(match.Outcome)).
		Str("action", string(match.Action)).
		Float64("similarity", result.SimilarityScore).
		Float64("overall", result.OverallScore).
		Msg("line item matched")

	return result, nil
}

// engineDiscrepancy explains why a line item was not auto-approved
func engineDiscrepancy(record *models.MatchRecord, item models.VendorLineItem, match LineItemMatch, poFound bool) *models.Discrepancy {
	d := &models.Discrepancy{
		ID:               uuid.New(),
		OrganizationID:   record.OrganizationID,
		VendorInvoiceID:  record.VendorInvoiceID,
		VendorLineItemID: &record.VendorLineItemID,
		MatchRecordID:    &record.ID,
		ActualValue:      amountString(item.Amount),
		AmountDifference: item.Amount,
		Status:           models.DiscrepancyOpen,
	}

	if match.Best != nil {
		d.ExpectedValue = amountString(match.Best.POLineItem.Amount)
		d.AmountDifference = match.Best.PriceDifference
	}

	switch {
	case !poFound:
		d.Type = models.DiscrepancyNoPO
		d.Severity = models.SeverityHigh
	case match.Action == models.ActionFlagDiscrepancy && match.SimilarityGateOK && !match.PriceToleranceOK:
		d.Type = models.DiscrepancyPriceMismatch
		d.Severity = models.SeverityHigh
	case match.Action == models.ActionFlagDiscrepancy:
		d.Type = models.DiscrepancyNoMatch
		d.Severity = models.SeverityHigh
	case !d.AmountDifference.IsZero():
		d.Type = models.DiscrepancyPriceMismatch
		d.Severity = models.SeverityMedium
	default:
		d.Type = models.DiscrepancyNoMatch
		d.Severity = models.SeverityMedium
	}

	return d
}

func amountString(d decimal.Decimal) *string {
	s := d.StringFixed(2)
	return &s
}

// GetSettings returns the tenant's settings, creating defaults on first use
func (s *Service) GetSettings(ctx context.Context, orgID uuid.UUID) (*models.ReconciliationSettings, error) {
	var settings *models.ReconciliationSettings
	err := s.tx.InTx(ctx, func(store Store) error {
		var err error
		settings, err = s.settings.Get(ctx, store, orgID)
		return err
	})
	if err != nil {
		return nil, wrapError(err, CodeInternal, "failed to load settings")
	}
	return settings, nil
}

// UpdateSettings applies an administrator's change
func (s *Service) UpdateSettings(ctx context.Context, orgID uuid.UUID, req *models.UpdateReconciliationSettingsRequest) (*models.ReconciliationSettings, error) {
	var updated *models.ReconciliationSettings
	err := s.tx.InTx(ctx, func(store Store) error {
		current, err := s.settings.Get(ctx, store, orgID)
		if err != nil {
			return err
		}

		updated, err = s.settings.Apply(current, req)
		if err != nil {
			return err
		}

		if err := store.SaveReconciliationSettings(ctx, updated); err != nil {
			return wrapError(err, CodeInternal, "failed to save settings")
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err, CodeInternal, "failed to update settings")
	}

	s.log.Info().
		Str("organization_id", orgID.String()).
		Str("fuzzy_match_threshold", updated.FuzzyMatchThreshold.String()).
		Str("price_tolerance_percentage", updated.PriceTolerancePercentage.String()).
		Bool("auto_approve_exact_matches", updated.AutoApproveExactMatches).
		Msg("reconciliation settings updated")

	return updated, nil
}

// ListMatches returns the invoice's active match records
func (s *Service) ListMatches(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.MatchRecord, error) {
	var records []models.MatchRecord
	err := s.tx.InTx(ctx, func(store Store) error {
		if err := requireInvoice(ctx, store, orgID, invoiceID); err != nil {
			return err
		}
		var err error
		records, err = store.ListActiveMatchRecords(ctx, orgID, invoiceID)
		return err
	})
	if err != nil {
		return nil, wrapError(err, CodeInternal, "failed to list match records")
	}
	return records, nil
}

// ListDiscrepancies returns every discrepancy raised for the invoice
func (s *Service) ListDiscrepancies(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.Discrepancy, error) {
	var discrepancies []models.Discrepancy
	err := s.tx.InTx(ctx, func(store Store) error {
		if err := requireInvoice(ctx, store, orgID, invoiceID); err != nil {
			return err
		}
		var err error
		discrepancies, err = store.ListDiscrepancies(ctx, orgID, invoiceID)
		return err
	})
	if err != nil {
		return nil, wrapError(err, CodeInternal, "failed to list discrepancies")
	}
	return discrepancies, nil
}

func requireInvoice(ctx context.Context, store Store, orgID, invoiceID uuid.UUID) error {
	if _, err := store.GetVendorInvoice(ctx, orgID, invoiceID); err != nil {
		if isNotFound(err) {
			return newError(CodeInvoiceNotFound, "vendor invoice not found")
		}
		return wrapError(err, CodeInternal, "failed to load vendor invoice")
	}
	return nil
}
