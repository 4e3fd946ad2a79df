package database

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wastebroker/ops-platform/internal/models"
)

var (
	ErrPurchaseOrderNotFound = errors.New("purchase order not found")
	ErrPOLineItemNotFound    = errors.New("PO line item not found")
)

const purchaseOrderColumns = `
	id, organization_id, po_number, vendor_id, client_id, site_id, po_date, expected_delivery_date,
	total, status, service_scope, deleted_at, created_at, updated_at`

func scanPurchaseOrder(row pgx.Row) (*models.PurchaseOrder, error) {
	po := &models.PurchaseOrder{}
	err := row.Scan(
		&po.ID, &po.OrganizationID, &po.PONumber, &po.VendorID, &po.ClientID, &po.SiteID,
		&po.PODate, &po.ExpectedDeliveryDate, &po.Total, &po.Status, &po.ServiceScope,
		&po.DeletedAt, &po.CreatedAt, &po.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPurchaseOrderNotFound
		}
		return nil, err
	}
	return po, nil
}

// GetPurchaseOrder retrieves a tenant's non-deleted purchase order by ID
func (q *Queries) GetPurchaseOrder(ctx context.Context, orgID, poID uuid.UUID) (*models.PurchaseOrder, error) {
	return scanPurchaseOrder(q.q.QueryRow(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, poID, orgID))
}

// GetPurchaseOrderByNumber looks up a PO number case-insensitively
func (q *Queries) GetPurchaseOrderByNumber(ctx context.Context, orgID uuid.UUID, poNumber string) (*models.PurchaseOrder, error) {
	return scanPurchaseOrder(q.q.QueryRow(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE organization_id = $1 AND UPPER(po_number) = UPPER($2) AND deleted_at IS NULL
		LIMIT 1
	`, orgID, poNumber))
}

// SearchPurchaseOrders returns open non-recurring POs for a vendor and site
// dated (or due) inside the search window
func (q *Queries) SearchPurchaseOrders(ctx context.Context, search models.PurchaseOrderSearch) ([]models.PurchaseOrder, error) {
	rows, err := q.q.Query(ctx, `
		SELECT `+purchaseOrderColumns+`
		FROM purchase_orders
		WHERE organization_id = $1
		  AND vendor_id = $2
		  AND site_id = $3
		  AND ($4::uuid IS NULL OR client_id = $4)
		  AND deleted_at IS NULL
		  AND service_scope = 'non_recurring'
		  AND status IN ('draft', 'sent', 'approved')
		  AND (po_date BETWEEN $5 AND $6 OR expected_delivery_date BETWEEN $5 AND $6)
		ORDER BY po_date DESC
	`, search.OrganizationID, search.VendorID, search.SiteID, search.ClientID, search.From, search.To)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pos []models.PurchaseOrder
	for rows.Next() {
		po, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, err
		}
		pos = append(pos, *po)
	}

	return pos, rows.Err()
}

// ListPOLineItems returns a PO's line items in line order
func (q *Queries) ListPOLineItems(ctx context.Context, poID uuid.UUID) ([]models.POLineItem, error) {
	rows, err := q.q.Query(ctx, `
		SELECT id, purchase_order_id, line_number, description, quantity, unit_price, amount
		FROM po_line_items
		WHERE purchase_order_id = $1
		ORDER BY line_number ASC, id ASC
	`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.POLineItem{}
	for rows.Next() {
		item := models.POLineItem{}
		err := rows.Scan(
			&item.ID, &item.PurchaseOrderID, &item.LineNumber, &item.Description,
			&item.Quantity, &item.UnitPrice, &item.Amount,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

// GetPOLineItem retrieves a PO line item belonging to one of the tenant's
// non-deleted purchase orders
func (q *Queries) GetPOLineItem(ctx context.Context, orgID, poLineItemID uuid.UUID) (*models.POLineItem, error) {
	item := &models.POLineItem{}
	err := q.q.QueryRow(ctx, `
		SELECT li.id, li.purchase_order_id, li.line_number, li.description, li.quantity, li.unit_price, li.amount
		FROM po_line_items li
		JOIN purchase_orders po ON po.id = li.purchase_order_id
		WHERE li.id = $1 AND po.organization_id = $2 AND po.deleted_at IS NULL
	`, poLineItemID, orgID).Scan(
		&item.ID, &item.PurchaseOrderID, &item.LineNumber, &item.Description,
		&item.Quantity, &item.UnitPrice, &item.Amount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPOLineItemNotFound
		}
		return nil, err
	}
	return item, nil
}

// CreatePurchaseOrder inserts a PO with its line items. Used by the seeder.
func (q *Queries) CreatePurchaseOrder(ctx context.Context, po *models.PurchaseOrderWithItems) error {
	err := q.q.QueryRow(ctx, `
		INSERT INTO purchase_orders (organization_id, po_number, vendor_id, client_id, site_id, po_date,
		                             expected_delivery_date, total, status, service_scope)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`, po.OrganizationID, po.PONumber, po.VendorID, po.ClientID, po.SiteID, po.PODate,
		po.ExpectedDeliveryDate, po.Total, po.Status, po.ServiceScope,
	).Scan(&po.ID, &po.CreatedAt, &po.UpdatedAt)
	if err != nil {
		return err
	}

	for i := range po.Items {
		item := &po.Items[i]
		item.PurchaseOrderID = po.ID
		err := q.q.QueryRow(ctx, `
			INSERT INTO po_line_items (purchase_order_id, line_number, description, quantity, unit_price, amount)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`, po.ID, item.LineNumber, item.Description, item.Quantity, item.UnitPrice, item.Amount).Scan(&item.ID)
		if err != nil {
			return err
		}
	}

	return nil
}
