package reconcile

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wastebroker/ops-platform/internal/models"
)

// ReviewRequest carries an optional reviewer note
type ReviewRequest struct {
	Notes *string `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ManualMatchRequest links a vendor line item to a PO line item by hand
type ManualMatchRequest struct {
	VendorLineItemID uuid.UUID `json:"vendor_line_item_id" validate:"required"`
	POLineItemID     uuid.UUID `json:"po_line_item_id" validate:"required"`
	Notes            *string   `json:"notes,omitempty" validate:"omitempty,max=2000"`
}

// ApproveMatch signs off a pending match record. References are left as the
// engine wrote them.
func (s *Service) ApproveMatch(ctx context.Context, orgID, userID, matchID uuid.UUID, req ReviewRequest) (*models.MatchRecord, error) {
	var record *models.MatchRecord
	err := s.tx.InTx(ctx, func(store Store) error {
		var err error
		record, err = loadReviewable(ctx, store, orgID, matchID)
		if err != nil {
			return err
		}
		if record.Decision != models.DecisionPending {
			return newError(CodeInvalidTransition, "only pending matches can be approved")
		}

		now := s.now()
		record.Decision = models.DecisionApproved
		record.MatchedBy = &userID
		record.MatchedAt = &now
		if req.Notes != nil {
			record.Notes = req.Notes
		}

		if err := store.UpdateMatchDecision(ctx, record); err != nil {
			return wrapError(err, CodeInternal, "failed to approve match")
		}
		if err := store.SetDiscrepancyStatusForMatches(ctx, []uuid.UUID{record.ID}, models.DiscrepancyOpen, models.DiscrepancyResolved, nil); err != nil {
			return wrapError(err, CodeInternal, "failed to resolve discrepancies")
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err, CodeInternal, "approve failed")
	}

	s.log.Info().
		Str("match_record_id", matchID.String()).
		Str("user_id", userID.String()).
		Msg("match approved")

	return record, nil
}

// RejectMatch turns down a pending or approved match. The line item goes
// back to unmatched and a rejected_match discrepancy is raised so the item
// can be matched again.
func (s *Service) RejectMatch(ctx context.Context, orgID, userID, matchID uuid.UUID, req ReviewRequest) (*models.MatchRecord, *models.Discrepancy, error) {
	var (
		record      *models.MatchRecord
		discrepancy *models.Discrepancy
	)
	err := s.tx.InTx(ctx, func(store Store) error {
		var err error
		record, err = loadReviewable(ctx, store, orgID, matchID)
		if err != nil {
			return err
		}
		if record.Decision == models.DecisionRejected {
			return newError(CodeInvalidTransition, "match is already rejected")
		}

		item, err := store.GetVendorLineItem(ctx, orgID, record.VendorLineItemID)
		if err != nil {
			if isNotFound(err) {
				return newError(CodeLineItemNotFound, "vendor line item not found")
			}
			return wrapError(err, CodeInternal, "failed to load vendor line item")
		}

		var expected *models.POLineItem
		if record.POLineItemID != nil {
			expected, err = store.GetPOLineItem(ctx, orgID, *record.POLineItemID)
			if err != nil && !isNotFound(err) {
				return wrapError(err, CodeInternal, "failed to load PO line item")
			}
		}

		now := s.now()
		record.Decision = models.DecisionRejected
		record.MatchedBy = &userID
		record.MatchedAt = &now
		if req.Notes != nil {
			record.Notes = req.Notes
		}

		if err := store.UpdateMatchDecision(ctx, record); err != nil {
			return wrapError(err, CodeInternal, "failed to reject match")
		}
		if err := store.SetLineItemOutcome(ctx, item.ID, models.OutcomeUnmatched, nil); err != nil {
			return wrapError(err, CodeInternal, "failed to reset line item")
		}
		if err := store.SetDiscrepancyStatusForMatches(ctx, []uuid.UUID{record.ID}, models.DiscrepancyOpen, models.DiscrepancyResolved, nil); err != nil {
			return wrapError(err, CodeInternal, "failed to resolve discrepancies")
		}

		discrepancy = rejectionDiscrepancy(record, item, expected)
		if err := store.CreateDiscrepancy(ctx, discrepancy); err != nil {
			return wrapError(err, CodeInternal, "failed to save discrepancy")
		}
		return nil
	})
	if err != nil {
		return nil, nil, wrapError(err, CodeInternal, "reject failed")
	}

	s.log.Info().
		Str("match_record_id", matchID.String()).
		Str("user_id", userID.String()).
		Msg("match rejected")

	return record, discrepancy, nil
}

func rejectionDiscrepancy(record *models.MatchRecord, item *models.VendorLineItem, expected *models.POLineItem) *models.Discrepancy {
	d := &models.Discrepancy{
		ID:               uuid.New(),
		OrganizationID:   record.OrganizationID,
		VendorInvoiceID:  record.VendorInvoiceID,
		VendorLineItemID: &record.VendorLineItemID,
		MatchRecordID:    &record.ID,
		Type:             models.DiscrepancyRejectedMatch,
		ActualValue:      amountString(item.Amount),
		AmountDifference: item.Amount,
		Severity:         models.SeverityMedium,
		Status:           models.DiscrepancyOpen,
	}
	if expected != nil {
		d.ExpectedValue = amountString(expected.Amount)
		d.AmountDifference = item.Amount.Sub(expected.Amount)
	}
	return d
}

// ManualMatch records a reviewer's own pairing. It supersedes whatever the
// engine decided for the line item and is approved on creation.
func (s *Service) ManualMatch(ctx context.Context, orgID, userID uuid.UUID, req ManualMatchRequest) (*models.MatchRecord, error) {
	var record *models.MatchRecord
	err := s.tx.InTx(ctx, func(store Store) error {
		item, err := store.GetVendorLineItem(ctx, orgID, req.VendorLineItemID)
		if err != nil {
			if isNotFound(err) {
				return newError(CodeLineItemNotFound, "vendor line item not found")
			}
			return wrapError(err, CodeInternal, "failed to load vendor line item")
		}

		poItem, err := store.GetPOLineItem(ctx, orgID, req.POLineItemID)
		if err != nil {
			if isNotFound(err) {
				return newError(CodePOLineItemNotFound, "PO line item not found")
			}
			return wrapError(err, CodeInternal, "failed to load PO line item")
		}

		// Serialize with auto-match runs on the same invoice
		if _, err := store.LockVendorInvoice(ctx, orgID, item.VendorInvoiceID); err != nil {
			if isNotFound(err) {
				return newError(CodeInvoiceNotFound, "vendor invoice not found")
			}
			return wrapError(err, CodeInternal, "failed to lock vendor invoice")
		}

		active, err := store.ListActiveMatchRecords(ctx, orgID, item.VendorInvoiceID)
		if err != nil {
			return wrapError(err, CodeInternal, "failed to load existing match records")
		}
		var prior []uuid.UUID
		for _, r := range active {
			if r.VendorLineItemID != item.ID {
				continue
			}
			if r.Decision == models.DecisionApproved {
				return newError(CodeMatchLocked, "line item already has an approved match")
			}
			prior = append(prior, r.ID)
		}

		now := s.now()
		if len(prior) > 0 {
			if err := store.SupersedeMatchRecords(ctx, prior, now); err != nil {
				return wrapError(err, CodeInternal, "failed to supersede match records")
			}
			if err := store.SetDiscrepancyStatusForMatches(ctx, prior, models.DiscrepancyOpen, models.DiscrepancySuperseded, models.EngineDiscrepancyTypes); err != nil {
				return wrapError(err, CodeInternal, "failed to supersede discrepancies")
			}
		}
		if err := store.SetDiscrepancyStatusForLineItem(ctx, item.ID, models.DiscrepancyOpen, models.DiscrepancyResolved); err != nil {
			return wrapError(err, CodeInternal, "failed to resolve discrepancies")
		}

		score := s.matcher.Score(*item, *poItem)
		poID := poItem.PurchaseOrderID
		poLineID := poItem.ID
		record = &models.MatchRecord{
			ID:                        uuid.New(),
			OrganizationID:            orgID,
			VendorInvoiceID:           item.VendorInvoiceID,
			VendorLineItemID:          item.ID,
			PurchaseOrderID:           &poID,
			POLineItemID:              &poLineID,
			Outcome:                   models.OutcomeManual,
			SimilarityScore:           decimal.NewFromFloat(score.DescriptionSimilarity).Round(2),
			PriceDifferencePercentage: score.PriceDifferencePercentage.Round(2),
			Decision:                  models.DecisionApproved,
			MatchedBy:                 &userID,
			MatchedAt:                 &now,
			Notes:                     req.Notes,
		}

		if err := store.CreateMatchRecord(ctx, record); err != nil {
			return wrapError(err, CodeInternal, "failed to save match record")
		}
		if err := store.SetLineItemOutcome(ctx, item.ID, models.OutcomeManual, &poLineID); err != nil {
			return wrapError(err, CodeInternal, "failed to update line item")
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err, CodeInternal, "manual match failed")
	}

	s.log.Info().
		Str("match_record_id", record.ID.String()).
		Str("vendor_line_item_id", req.VendorLineItemID.String()).
		Str("po_line_item_id", req.POLineItemID.String()).
		Msg("manual match recorded")

	return record, nil
}

// loadReviewable fetches a record under lock; superseded records are history
// and cannot be reviewed
func loadReviewable(ctx context.Context, store Store, orgID, matchID uuid.UUID) (*models.MatchRecord, error) {
	record, err := store.GetMatchRecordForUpdate(ctx, orgID, matchID)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(CodeMatchNotFound, "match record not found")
		}
		return nil, wrapError(err, CodeInternal, "failed to load match record")
	}
	if !record.IsActive() {
		return nil, newError(CodeInvalidTransition, "match record has been superseded")
	}
	return record, nil
}
