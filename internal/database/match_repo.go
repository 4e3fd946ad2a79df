package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wastebroker/ops-platform/internal/models"
)

var ErrMatchRecordNotFound = errors.New("match record not found")

const matchRecordColumns = `
	id, organization_id, vendor_invoice_id, vendor_line_item_id, purchase_order_id, po_line_item_id,
	match_type, similarity_score, price_difference_percentage, match_status, matched_by, matched_at,
	notes, superseded_at, created_at, updated_at`

func scanMatchRecord(row pgx.Row, m *models.MatchRecord) error {
	return row.Scan(
		&m.ID, &m.OrganizationID, &m.VendorInvoiceID, &m.VendorLineItemID, &m.PurchaseOrderID, &m.POLineItemID,
		&m.Outcome, &m.SimilarityScore, &m.PriceDifferencePercentage, &m.Decision, &m.MatchedBy, &m.MatchedAt,
		&m.Notes, &m.SupersededAt, &m.CreatedAt, &m.UpdatedAt,
	)
}

// CreateMatchRecord inserts a record. The caller assigns the ID so results
// can reference it before the transaction commits.
func (q *Queries) CreateMatchRecord(ctx context.Context, m *models.MatchRecord) error {
	return q.q.QueryRow(ctx, `
		INSERT INTO match_records (id, organization_id, vendor_invoice_id, vendor_line_item_id, purchase_order_id,
		                           po_line_item_id, match_type, similarity_score, price_difference_percentage,
		                           match_status, matched_by, matched_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at
	`, m.ID, m.OrganizationID, m.VendorInvoiceID, m.VendorLineItemID, m.PurchaseOrderID,
		m.POLineItemID, m.Outcome, m.SimilarityScore, m.PriceDifferencePercentage,
		m.Decision, m.MatchedBy, m.MatchedAt, m.Notes,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
}

// ListActiveMatchRecords returns the invoice's non-superseded records
func (q *Queries) ListActiveMatchRecords(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.MatchRecord, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+matchRecordColumns+`
		FROM match_records
		WHERE organization_id = $1 AND vendor_invoice_id = $2 AND superseded_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.MatchRecord{}
	for rows.Next() {
		m := models.MatchRecord{}
		if err := scanMatchRecord(rows, &m); err != nil {
			return nil, err
		}
		records = append(records, m)
	}

	return records, rows.Err()
}

// GetMatchRecordForUpdate retrieves a record and locks it for review
func (q *Queries) GetMatchRecordForUpdate(ctx context.Context, orgID, matchID uuid.UUID) (*models.MatchRecord, error) {
	m := &models.MatchRecord{}
	err := scanMatchRecord(q.q.QueryRow(ctx, `
		SELECT `+matchRecordColumns+`
		FROM match_records
		WHERE id = $1 AND organization_id = $2
		FOR UPDATE
	`, matchID, orgID), m)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatchRecordNotFound
		}
		return nil, err
	}
	return m, nil
}

// UpdateMatchDecision stores a review decision
func (q *Queries) UpdateMatchDecision(ctx context.Context, m *models.MatchRecord) error {
	err := q.q.QueryRow(ctx, `
		UPDATE match_records
		SET match_status = $2, matched_by = $3, matched_at = $4, notes = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`, m.ID, m.Decision, m.MatchedBy, m.MatchedAt, m.Notes).Scan(&m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrMatchRecordNotFound
		}
		return err
	}
	return nil
}

// SupersedeMatchRecords retires records replaced by a newer decision
func (q *Queries) SupersedeMatchRecords(ctx context.Context, matchIDs []uuid.UUID, at time.Time) error {
	if len(matchIDs) == 0 {
		return nil
	}
	_, err := q.q.Exec(ctx, `
		UPDATE match_records
		SET superseded_at = $2, updated_at = NOW()
		WHERE id = ANY($1) AND superseded_at IS NULL
	`, matchIDs, at)
	return err
}

const discrepancyColumns = `
	id, organization_id, vendor_invoice_id, vendor_line_item_id, match_record_id, discrepancy_type,
	expected_value, actual_value, amount_difference, severity, status, created_at`

// CreateDiscrepancy inserts a discrepancy with a caller-assigned ID
func (q *Queries) CreateDiscrepancy(ctx context.Context, d *models.Discrepancy) error {
	return q.q.QueryRow(ctx, `
		INSERT INTO discrepancies (id, organization_id, vendor_invoice_id, vendor_line_item_id, match_record_id,
		                           discrepancy_type, expected_value, actual_value, amount_difference, severity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`, d.ID, d.OrganizationID, d.VendorInvoiceID, d.VendorLineItemID, d.MatchRecordID,
		d.Type, d.ExpectedValue, d.ActualValue, d.AmountDifference, d.Severity, d.Status,
	).Scan(&d.CreatedAt)
}

// SetDiscrepancyStatusForMatches moves discrepancies raised for the given
// records from one status to another. A nil types slice matches every type.
func (q *Queries) SetDiscrepancyStatusForMatches(ctx context.Context, matchIDs []uuid.UUID, from, to models.DiscrepancyStatus, types []models.DiscrepancyType) error {
	if len(matchIDs) == 0 {
		return nil
	}
	typeNames := make([]string, 0, len(types))
	for _, t := range types {
		typeNames = append(typeNames, string(t))
	}
	_, err := q.q.Exec(ctx, `
		UPDATE discrepancies
		SET status = $3, updated_at = NOW()
		WHERE match_record_id = ANY($1) AND status = $2
		  AND (cardinality($4::text[]) = 0 OR discrepancy_type = ANY($4::text[]))
	`, matchIDs, from, to, typeNames)
	return err
}

// SetDiscrepancyStatusForLineItem moves every discrepancy on a line item from
// one status to another
func (q *Queries) SetDiscrepancyStatusForLineItem(ctx context.Context, lineItemID uuid.UUID, from, to models.DiscrepancyStatus) error {
	_, err := q.q.Exec(ctx, `
		UPDATE discrepancies
		SET status = $3, updated_at = NOW()
		WHERE vendor_line_item_id = $1 AND status = $2
	`, lineItemID, from, to)
	return err
}

// ListDiscrepancies returns an invoice's discrepancies, oldest first
func (q *Queries) ListDiscrepancies(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.Discrepancy, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+discrepancyColumns+`
		FROM discrepancies
		WHERE organization_id = $1 AND vendor_invoice_id = $2
		ORDER BY created_at ASC, id ASC
	`, orgID, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	discrepancies := []models.Discrepancy{}
	for rows.Next() {
		d := models.Discrepancy{}
		err := rows.Scan(
			&d.ID, &d.OrganizationID, &d.VendorInvoiceID, &d.VendorLineItemID, &d.MatchRecordID, &d.Type,
			&d.ExpectedValue, &d.ActualValue, &d.AmountDifference, &d.Severity, &d.Status, &d.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		discrepancies = append(discrepancies, d)
	}

	return discrepancies, rows.Err()
}
