package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/wastebroker/ops-platform/internal/database"
	"github.com/wastebroker/ops-platform/internal/models"
)

// POReader is the tenant-scoped purchase order lookup used by the resolver.
// Lookups by id and number return database.ErrPurchaseOrderNotFound on a miss.
type POReader interface {
	GetPurchaseOrder(ctx context.Context, orgID, poID uuid.UUID) (*models.PurchaseOrder, error)
	GetPurchaseOrderByNumber(ctx context.Context, orgID uuid.UUID, poNumber string) (*models.PurchaseOrder, error)
	SearchPurchaseOrders(ctx context.Context, search models.PurchaseOrderSearch) ([]models.PurchaseOrder, error)
	ListPOLineItems(ctx context.Context, poID uuid.UUID) ([]models.POLineItem, error)
}

// Store is everything the engine reads and writes inside one unit of work
type Store interface {
	POReader

	EnsureReconciliationSettings(ctx context.Context, defaults models.ReconciliationSettings) (*models.ReconciliationSettings, error)
	SaveReconciliationSettings(ctx context.Context, settings *models.ReconciliationSettings) error

	GetVendorInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.VendorInvoice, error)
	LockVendorInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.VendorInvoice, error)
	ListVendorLineItems(ctx context.Context, invoiceID uuid.UUID) ([]models.VendorLineItem, error)
	GetVendorLineItem(ctx context.Context, orgID, lineItemID uuid.UUID) (*models.VendorLineItem, error)
	SetLineItemOutcome(ctx context.Context, lineItemID uuid.UUID, outcome models.ComparisonOutcome, poLineItemID *uuid.UUID) error
	GetPOLineItem(ctx context.Context, orgID, poLineItemID uuid.UUID) (*models.POLineItem, error)

	ListActiveMatchRecords(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.MatchRecord, error)
	GetMatchRecordForUpdate(ctx context.Context, orgID, matchID uuid.UUID) (*models.MatchRecord, error)
	CreateMatchRecord(ctx context.Context, record *models.MatchRecord) error
	UpdateMatchDecision(ctx context.Context, record *models.MatchRecord) error
	SupersedeMatchRecords(ctx context.Context, matchIDs []uuid.UUID, at time.Time) error

	CreateDiscrepancy(ctx context.Context, d *models.Discrepancy) error
	SetDiscrepancyStatusForMatches(ctx context.Context, matchIDs []uuid.UUID, from, to models.DiscrepancyStatus, types []models.DiscrepancyType) error
	SetDiscrepancyStatusForLineItem(ctx context.Context, lineItemID uuid.UUID, from, to models.DiscrepancyStatus) error
	ListDiscrepancies(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.Discrepancy, error)
}

// Transactor runs fn inside a single transaction. Any error returned by fn
// rolls back every write made through the Store it was handed.
type Transactor interface {
	InTx(ctx context.Context, fn func(Store) error) error
}

var _ Store = (*database.Queries)(nil)

type pgTransactor struct {
	db *database.DB
}

// NewPostgresTransactor adapts the database pool to the engine
func NewPostgresTransactor(db *database.DB) Transactor {
	return pgTransactor{db: db}
}

func (t pgTransactor) InTx(ctx context.Context, fn func(Store) error) error {
	return t.db.InTx(ctx, func(q *database.Queries) error {
		return fn(q)
	})
}

func isNotFound(err error) bool {
	return errors.Is(err, database.ErrPurchaseOrderNotFound) ||
		errors.Is(err, database.ErrVendorInvoiceNotFound) ||
		errors.Is(err, database.ErrLineItemNotFound) ||
		errors.Is(err, database.ErrPOLineItemNotFound) ||
		errors.Is(err, database.ErrMatchRecordNotFound)
}
