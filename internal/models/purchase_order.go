package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// POStatus represents the lifecycle status of a purchase order
type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusSent      POStatus = "sent"
	POStatusApproved  POStatus = "approved"
	POStatusCompleted POStatus = "completed"
	POStatusCancelled POStatus = "cancelled"
)

// ServiceScope separates standing contracts from one-off purchases
type ServiceScope string

const (
	ServiceScopeRecurring    ServiceScope = "recurring"
	ServiceScopeNonRecurring ServiceScope = "non_recurring"
)

// OpenPOStatuses are the statuses a PO can be in to be matched by date window
var OpenPOStatuses = []POStatus{POStatusDraft, POStatusSent, POStatusApproved}

// PurchaseOrder is read-only input to reconciliation
type PurchaseOrder struct {
	ID                   uuid.UUID       `json:"id"`
	OrganizationID       uuid.UUID       `json:"organization_id"`
	PONumber             string          `json:"po_number"`
	VendorID             uuid.UUID       `json:"vendor_id"`
	ClientID             *uuid.UUID      `json:"client_id,omitempty"`
	SiteID               *uuid.UUID      `json:"site_id,omitempty"`
	PODate               time.Time       `json:"po_date"`
	ExpectedDeliveryDate *time.Time      `json:"expected_delivery_date,omitempty"`
	Total                decimal.Decimal `json:"total"`
	Status               POStatus        `json:"status"`
	ServiceScope         ServiceScope    `json:"service_scope"`
	DeletedAt            *time.Time      `json:"deleted_at,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// IsRecurring reports whether the PO covers a standing service contract
func (po *PurchaseOrder) IsRecurring() bool {
	return po.ServiceScope != ServiceScopeNonRecurring
}

// POLineItem is one ordered line of a purchase order
type POLineItem struct {
	ID              uuid.UUID           `json:"id"`
	PurchaseOrderID uuid.UUID           `json:"purchase_order_id"`
	LineNumber      int                 `json:"line_number"`
	Description     string              `json:"description"`
	Quantity        decimal.Decimal     `json:"quantity"`
	UnitPrice       decimal.NullDecimal `json:"unit_price"`
	Amount          decimal.Decimal     `json:"amount"`
}

// PurchaseOrderWithItems is a PO with its line items in line order
type PurchaseOrderWithItems struct {
	PurchaseOrder
	Items []POLineItem `json:"items"`
}

// PurchaseOrderSearch narrows POs for date-window resolution
type PurchaseOrderSearch struct {
	OrganizationID uuid.UUID
	VendorID       uuid.UUID
	SiteID         uuid.UUID
	ClientID       *uuid.UUID
	From           time.Time
	To             time.Time
}
