package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wastebroker/ops-platform/internal/models"
)

var (
	ErrVendorInvoiceNotFound = errors.New("vendor invoice not found")
	ErrLineItemNotFound      = errors.New("vendor line item not found")
)

const vendorInvoiceColumns = `
	id, organization_id, vendor_id, client_id, site_id, po_id, invoice_number, invoice_date,
	subtotal, total, raw_text, document_bucket, document_key, created_at, updated_at`

func scanVendorInvoice(row pgx.Row) (*models.VendorInvoice, error) {
	inv := &models.VendorInvoice{}
	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.VendorID, &inv.ClientID, &inv.SiteID, &inv.POID,
		&inv.InvoiceNumber, &inv.InvoiceDate, &inv.Subtotal, &inv.Total, &inv.RawText,
		&inv.DocumentBucket, &inv.DocumentKey, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVendorInvoiceNotFound
		}
		return nil, err
	}
	return inv, nil
}

// CreateVendorInvoice persists an extracted invoice and its line items.
// Line numbers follow the request order starting at 1.
func (q *Queries) CreateVendorInvoice(ctx context.Context, req *models.CreateVendorInvoiceRequest) (*models.VendorInvoiceWithItems, error) {
	inv, err := scanVendorInvoice(q.q.QueryRow(ctx, `
		INSERT INTO vendor_invoices (organization_id, vendor_id, client_id, site_id, po_id, invoice_number,
		                             invoice_date, subtotal, total, raw_text, document_bucket, document_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+vendorInvoiceColumns,
		req.OrganizationID, req.VendorID, req.ClientID, req.SiteID, req.POID, req.InvoiceNumber,
		req.InvoiceDate, req.Subtotal, req.Total, req.RawText, req.DocumentBucket, req.DocumentKey,
	))
	if err != nil {
		return nil, err
	}

	result := &models.VendorInvoiceWithItems{
		VendorInvoice: *inv,
		Items:         make([]models.VendorLineItem, 0, len(req.Items)),
	}

	for i, line := range req.Items {
		item := models.VendorLineItem{}
		err := q.q.QueryRow(ctx, `
			INSERT INTO vendor_line_items (vendor_invoice_id, line_number, description, quantity, unit_price, amount)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, vendor_invoice_id, line_number, description, quantity, unit_price, amount,
			          match_status, po_line_item_id, created_at, updated_at
		`, inv.ID, i+1, line.Description, line.Quantity, line.UnitPrice, line.Amount).Scan(
			&item.ID, &item.VendorInvoiceID, &item.LineNumber, &item.Description, &item.Quantity,
			&item.UnitPrice, &item.Amount, &item.ComparisonOutcome, &item.POLineItemID,
			&item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		result.Items = append(result.Items, item)
	}

	return result, nil
}

// GetVendorInvoice retrieves a tenant's invoice
func (q *Queries) GetVendorInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.VendorInvoice, error) {
	return scanVendorInvoice(q.q.QueryRow(ctx, `
		SELECT `+vendorInvoiceColumns+`
		FROM vendor_invoices
		WHERE id = $1 AND organization_id = $2
	`, invoiceID, orgID))
}

// LockVendorInvoice retrieves an invoice and holds a row lock until the
// surrounding transaction ends
func (q *Queries) LockVendorInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.VendorInvoice, error) {
	return scanVendorInvoice(q.q.QueryRow(ctx, `
		SELECT `+vendorInvoiceColumns+`
		FROM vendor_invoices
		WHERE id = $1 AND organization_id = $2
		FOR UPDATE
	`, invoiceID, orgID))
}

const vendorLineItemColumns = `
	li.id, li.vendor_invoice_id, li.line_number, li.description, li.quantity, li.unit_price, li.amount,
	li.match_status, li.po_line_item_id, li.created_at, li.updated_at`

func scanVendorLineItem(row pgx.Row, item *models.VendorLineItem) error {
	return row.Scan(
		&item.ID, &item.VendorInvoiceID, &item.LineNumber, &item.Description, &item.Quantity,
		&item.UnitPrice, &item.Amount, &item.ComparisonOutcome, &item.POLineItemID,
		&item.CreatedAt, &item.UpdatedAt,
	)
}

// ListVendorLineItems returns an invoice's line items in line order
func (q *Queries) ListVendorLineItems(ctx context.Context, invoiceID uuid.UUID) ([]models.VendorLineItem, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+vendorLineItemColumns+`
		FROM vendor_line_items li
		WHERE li.vendor_invoice_id = $1
		ORDER BY li.line_number ASC, li.id ASC
	`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.VendorLineItem{}
	for rows.Next() {
		item := models.VendorLineItem{}
		if err := scanVendorLineItem(rows, &item); err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// GetVendorLineItem retrieves a line item on one of the tenant's invoices
func (q *Queries) GetVendorLineItem(ctx context.Context, orgID, lineItemID uuid.UUID) (*models.VendorLineItem, error) {
	item := &models.VendorLineItem{}
	err := scanVendorLineItem(q.q.QueryRow(ctx, `
		SELECT `+vendorLineItemColumns+`
		FROM vendor_line_items li
		JOIN vendor_invoices vi ON vi.id = li.vendor_invoice_id
		WHERE li.id = $1 AND vi.organization_id = $2
	`, lineItemID, orgID), item)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLineItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// SetLineItemOutcome records the comparison outcome and the PO line it was
// matched to; a nil poLineItemID clears the reference
func (q *Queries) SetLineItemOutcome(ctx context.Context, lineItemID uuid.UUID, outcome models.ComparisonOutcome, poLineItemID *uuid.UUID) error {
	tag, err := q.q.Exec(ctx, `
		UPDATE vendor_line_items
		SET match_status = $2, po_line_item_id = $3, updated_at = NOW()
		WHERE id = $1
	`, lineItemID, outcome, poLineItemID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLineItemNotFound
	}
	return nil
}
