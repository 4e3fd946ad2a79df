package reconcile

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/wastebroker/ops-platform/internal/models"
)

// DefaultDateWindowDays is how far an invoice date may sit from a PO's
// po_date or expected_delivery_date
const DefaultDateWindowDays = 45

// ResolveRequest describes the invoice a purchase order is sought for
type ResolveRequest struct {
	OrganizationID uuid.UUID
	VendorID       uuid.UUID
	ClientID       *uuid.UUID
	SiteID         *uuid.UUID
	ExplicitPOID   *uuid.UUID
	InvoiceDate    time.Time
	InvoiceTotal   decimal.Decimal
	RawText        string
}

// Resolution is the single PO whose line items are the match candidates.
// PurchaseOrder is nil when no strategy resolved one.
type Resolution struct {
	PurchaseOrder *models.PurchaseOrder
	Items         []models.POLineItem
	Strategy      string
}

// Found reports whether a purchase order was resolved
func (r *Resolution) Found() bool {
	return r != nil && r.PurchaseOrder != nil
}

// Strategy is one step of the resolution chain. Returning a nil PO with a
// nil error passes control to the next strategy.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, store POReader, req ResolveRequest) (*models.PurchaseOrder, error)
}

// Resolver tries its strategies in order; the first PO found wins
type Resolver struct {
	strategies []Strategy
}

// NewResolver builds a resolver over an explicit strategy chain
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// DefaultResolver returns explicit id, then OCR PO number, then date window
func DefaultResolver(windowDays int) *Resolver {
	return NewResolver(
		ExplicitPOStrategy{},
		NewPONumberStrategy(NewPONumberExtractor()),
		DateWindowStrategy{WindowDays: windowDays},
	)
}

// Resolve runs the chain and loads the winning PO's line items
func (r *Resolver) Resolve(ctx context.Context, store POReader, req ResolveRequest) (*Resolution, error) {
	for _, strategy := range r.strategies {
		po, err := strategy.Resolve(ctx, store, req)
		if err != nil {
			return nil, wrapError(err, CodeInternal, "purchase order resolution failed")
		}
		if po == nil {
			continue
		}

		items, err := store.ListPOLineItems(ctx, po.ID)
		if err != nil {
			return nil, wrapError(err, CodeInternal, "failed to load purchase order line items")
		}

		return &Resolution{
			PurchaseOrder: po,
			Items:         items,
			Strategy:      strategy.Name(),
		}, nil
	}

	return &Resolution{}, nil
}

// eligible holds for every strategy: recurring-service POs are standing
// contracts and never match candidates.
func eligible(po *models.PurchaseOrder, orgID uuid.UUID) bool {
	return po != nil &&
		po.OrganizationID == orgID &&
		po.DeletedAt == nil &&
		!po.IsRecurring()
}

// ExplicitPOStrategy uses a PO id supplied by the caller or already linked
// on the invoice
type ExplicitPOStrategy struct{}

func (ExplicitPOStrategy) Name() string { return "explicit_po" }

func (ExplicitPOStrategy) Resolve(ctx context.Context, store POReader, req ResolveRequest) (*models.PurchaseOrder, error) {
	if req.ExplicitPOID == nil {
		return nil, nil
	}

	po, err := store.GetPurchaseOrder(ctx, req.OrganizationID, *req.ExplicitPOID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !eligible(po, req.OrganizationID) {
		return nil, nil
	}
	return po, nil
}

// PONumberStrategy looks up a PO number printed on the invoice
type PONumberStrategy struct {
	extractor *PONumberExtractor
}

// NewPONumberStrategy creates the OCR text strategy
func NewPONumberStrategy(extractor *PONumberExtractor) PONumberStrategy {
	return PONumberStrategy{extractor: extractor}
}

func (PONumberStrategy) Name() string { return "ocr_po_number" }

func (s PONumberStrategy) Resolve(ctx context.Context, store POReader, req ResolveRequest) (*models.PurchaseOrder, error) {
	number, ok := s.extractor.Extract(req.RawText)
	if !ok {
		return nil, nil
	}

	po, err := store.GetPurchaseOrderByNumber(ctx, req.OrganizationID, number)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if !eligible(po, req.OrganizationID) {
		return nil, nil
	}
	return po, nil
}

// DateWindowStrategy picks the open PO for the vendor and site whose total
// is closest to the invoice total, among POs dated near the invoice
type DateWindowStrategy struct {
	WindowDays int
}

func (DateWindowStrategy) Name() string { return "date_window" }

func (s DateWindowStrategy) Resolve(ctx context.Context, store POReader, req ResolveRequest) (*models.PurchaseOrder, error) {
	if req.SiteID == nil {
		return nil, nil
	}

	days := s.WindowDays
	if days <= 0 {
		days = DefaultDateWindowDays
	}
	from := req.InvoiceDate.AddDate(0, 0, -days)
	to := req.InvoiceDate.AddDate(0, 0, days)

	candidates, err := store.SearchPurchaseOrders(ctx, models.PurchaseOrderSearch{
		OrganizationID: req.OrganizationID,
		VendorID:       req.VendorID,
		SiteID:         *req.SiteID,
		ClientID:       req.ClientID,
		From:           from,
		To:             to,
	})
	if err != nil {
		return nil, err
	}

	var admitted []models.PurchaseOrder
	for i := range candidates {
		po := &candidates[i]
		if !eligible(po, req.OrganizationID) || !isOpen(po.Status) || !withinWindow(po, from, to) {
			continue
		}
		if po.VendorID != req.VendorID || po.SiteID == nil || *po.SiteID != *req.SiteID {
			continue
		}
		if req.ClientID != nil && (po.ClientID == nil || *po.ClientID != *req.ClientID) {
			continue
		}
		admitted = append(admitted, *po)
	}

	if len(admitted) == 0 {
		return nil, nil
	}

	RankPurchaseOrders(admitted, req.InvoiceTotal)
	best := admitted[0]
	return &best, nil
}

// RankPurchaseOrders orders POs by absolute total delta to the invoice
// total, then by most recent po_date
func RankPurchaseOrders(pos []models.PurchaseOrder, invoiceTotal decimal.Decimal) {
	sort.SliceStable(pos, func(i, j int) bool {
		di := pos[i].Total.Sub(invoiceTotal).Abs()
		dj := pos[j].Total.Sub(invoiceTotal).Abs()
		if !di.Equal(dj) {
			return di.LessThan(dj)
		}
		return pos[i].PODate.After(pos[j].PODate)
	})
}

func isOpen(status models.POStatus) bool {
	for _, s := range models.OpenPOStatuses {
		if status == s {
			return true
		}
	}
	return false
}

func withinWindow(po *models.PurchaseOrder, from, to time.Time) bool {
	in := func(t time.Time) bool {
		return !t.Before(from) && !t.After(to)
	}
	if in(po.PODate) {
		return true
	}
	return po.ExpectedDeliveryDate != nil && in(*po.ExpectedDeliveryDate)
}
