package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ComparisonOutcome is the result of comparing a vendor line item with PO
// line items. It is stored on the vendor line item (column match_status) and
// must not be confused with ReviewDecision, which tracks human sign-off.
type ComparisonOutcome string

const (
	OutcomePending   ComparisonOutcome = "pending"
	OutcomeExact     ComparisonOutcome = "exact"
	OutcomeFuzzy     ComparisonOutcome = "fuzzy"
	OutcomeManual    ComparisonOutcome = "manual"
	OutcomeUnmatched ComparisonOutcome = "unmatched"
)

// VendorInvoice is a vendor's bill, created by the intake pipeline
type VendorInvoice struct {
	ID             uuid.UUID        `json:"id"`
	OrganizationID uuid.UUID        `json:"organization_id"`
	VendorID       uuid.UUID        `json:"vendor_id"`
	ClientID       *uuid.UUID       `json:"client_id,omitempty"`
	SiteID         *uuid.UUID       `json:"site_id,omitempty"`
	POID           *uuid.UUID       `json:"po_id,omitempty"`
	InvoiceNumber  *string          `json:"invoice_number,omitempty"`
	InvoiceDate    time.Time        `json:"invoice_date"`
	Subtotal       *decimal.Decimal `json:"subtotal,omitempty"`
	Total          decimal.Decimal  `json:"total"`
	RawText        *string          `json:"-"`
	DocumentBucket *string          `json:"document_bucket,omitempty"`
	DocumentKey    *string          `json:"document_key,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// VendorLineItem is one line of a vendor invoice
type VendorLineItem struct {
	ID                uuid.UUID           `json:"id"`
	VendorInvoiceID   uuid.UUID           `json:"vendor_invoice_id"`
	LineNumber        int                 `json:"line_number"`
	Description       string              `json:"description"`
	Quantity          decimal.Decimal     `json:"quantity"`
	UnitPrice         decimal.NullDecimal `json:"unit_price"`
	Amount            decimal.Decimal     `json:"amount"`
	ComparisonOutcome ComparisonOutcome   `json:"match_status"`
	POLineItemID      *uuid.UUID          `json:"po_line_item_id,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// VendorInvoiceWithItems includes the invoice's line items
type VendorInvoiceWithItems struct {
	VendorInvoice
	Items       []VendorLineItem `json:"items"`
	DocumentURL *string          `json:"document_url,omitempty"`
}

// CreateVendorInvoiceRequest carries extracted invoice fields into storage
type CreateVendorInvoiceRequest struct {
	OrganizationID uuid.UUID                     `json:"-"`
	VendorID       uuid.UUID                     `json:"vendor_id" validate:"required"`
	ClientID       *uuid.UUID                    `json:"client_id,omitempty"`
	SiteID         *uuid.UUID                    `json:"site_id,omitempty"`
	POID           *uuid.UUID                    `json:"po_id,omitempty"`
	InvoiceNumber  *string                       `json:"invoice_number,omitempty"`
	InvoiceDate    time.Time                     `json:"invoice_date" validate:"required"`
	Subtotal       *decimal.Decimal              `json:"subtotal,omitempty"`
	Total          decimal.Decimal               `json:"total"`
	RawText        *string                       `json:"raw_text,omitempty"`
	DocumentBucket *string                       `json:"-"`
	DocumentKey    *string                       `json:"-"`
	Items          []CreateVendorLineItemRequest `json:"items" validate:"dive"`
}

// CreateVendorLineItemRequest is one extracted line
type CreateVendorLineItemRequest struct {
	Description string              `json:"description" validate:"required"`
	Quantity    decimal.Decimal     `json:"quantity"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	Amount      decimal.Decimal     `json:"amount"`
}
