package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wastebroker/ops-platform/internal/database"
	"github.com/wastebroker/ops-platform/internal/logger"
	"github.com/wastebroker/ops-platform/internal/models"
	"github.com/wastebroker/ops-platform/internal/reconcile"
)

var (
	ErrDocumentNotFound   = errors.New("invoice has no stored document")
	ErrStorageUnavailable = errors.New("document storage is not configured")
)

// IntakeStore is what intake needs from the database inside one transaction
type IntakeStore interface {
	reconcile.POReader
	CreateVendorInvoice(ctx context.Context, req *models.CreateVendorInvoiceRequest) (*models.VendorInvoiceWithItems, error)
	GetVendorInvoice(ctx context.Context, orgID, invoiceID uuid.UUID) (*models.VendorInvoice, error)
}

// IntakeTransactor runs fn in a transaction
type IntakeTransactor interface {
	InTx(ctx context.Context, fn func(IntakeStore) error) error
}

// AutoMatcher runs reconciliation for a freshly stored invoice
type AutoMatcher interface {
	AutoMatchInvoice(ctx context.Context, orgID uuid.UUID, req reconcile.AutoMatchRequest) ([]reconcile.MatchResult, error)
}

type pgIntakeTransactor struct {
	db *database.DB
}

// NewPostgresIntakeTransactor adapts the database pool to intake
func NewPostgresIntakeTransactor(db *database.DB) IntakeTransactor {
	return pgIntakeTransactor{db: db}
}

func (t pgIntakeTransactor) InTx(ctx context.Context, fn func(IntakeStore) error) error {
	return t.db.InTx(ctx, func(q *database.Queries) error {
		return fn(q)
	})
}

// IntakeRequest is one uploaded invoice: extracted fields plus the document
type IntakeRequest struct {
	Invoice      *models.CreateVendorInvoiceRequest
	Document     io.Reader
	DocumentSize int64
	ContentType  string
	AutoMatch    bool
}

// IntakeResult reports what intake stored and, if requested, the match run
type IntakeResult struct {
	Invoice            *models.VendorInvoiceWithItems `json:"invoice"`
	ResolutionStrategy string                         `json:"resolution_strategy,omitempty"`
	Matches            []reconcile.MatchResult        `json:"matches,omitempty"`
	MatchError         *string                        `json:"match_error,omitempty"`
}

// InvoiceIntake stores vendor invoices and links them to purchase orders
type InvoiceIntake struct {
	tx          IntakeTransactor
	documents   DocumentStore
	resolver    *reconcile.Resolver
	matcher     AutoMatcher
	documentTTL time.Duration
	log         zerolog.Logger
}

// NewInvoiceIntake creates the intake service. documents may be nil when
// storage is not configured; uploads then fail with ErrStorageUnavailable.
func NewInvoiceIntake(tx IntakeTransactor, documents DocumentStore, resolver *reconcile.Resolver, matcher AutoMatcher, documentTTL time.Duration) *InvoiceIntake {
	return &InvoiceIntake{
		tx:          tx,
		documents:   documents,
		resolver:    resolver,
		matcher:     matcher,
		documentTTL: documentTTL,
		log:         logger.WithComponent("intake"),
	}
}

// Intake uploads the document, persists the invoice with its resolved PO and
// optionally runs auto-match. The stored object is removed again if the
// database write fails.
func (s *InvoiceIntake) Intake(ctx context.Context, req IntakeRequest) (*IntakeResult, error) {
	inv := req.Invoice
	var key string

	if req.Document != nil {
		if s.documents == nil {
			return nil, ErrStorageUnavailable
		}
		doc := InvoiceDocument{
			OrganizationID: inv.OrganizationID,
			VendorID:       inv.VendorID,
			Body:           req.Document,
			Size:           req.DocumentSize,
			ContentType:    req.ContentType,
		}
		if inv.InvoiceNumber != nil {
			doc.InvoiceNumber = *inv.InvoiceNumber
		}
		stored, err := s.documents.PutInvoiceDocument(ctx, doc)
		if err != nil {
			return nil, fmt.Errorf("failed to store invoice document: %w", err)
		}
		key = stored.Key
		inv.DocumentBucket = &stored.Bucket
		inv.DocumentKey = &stored.Key
	}

	result := &IntakeResult{}
	err := s.tx.InTx(ctx, func(store IntakeStore) error {
		resolveReq := reconcile.ResolveRequest{
			OrganizationID: inv.OrganizationID,
			VendorID:       inv.VendorID,
			ClientID:       inv.ClientID,
			SiteID:         inv.SiteID,
			ExplicitPOID:   inv.POID,
			InvoiceDate:    inv.InvoiceDate,
			InvoiceTotal:   inv.Total,
		}
		if inv.RawText != nil {
			resolveReq.RawText = *inv.RawText
		}

		resolution, err := s.resolver.Resolve(ctx, store, resolveReq)
		if err != nil {
			return err
		}
		inv.POID = nil
		if resolution.Found() {
			poID := resolution.PurchaseOrder.ID
			inv.POID = &poID
			result.ResolutionStrategy = resolution.Strategy
		}

		created, err := store.CreateVendorInvoice(ctx, inv)
		if err != nil {
			return fmt.Errorf("failed to save vendor invoice: %w", err)
		}
		result.Invoice = created
		return nil
	})
	if err != nil {
		if key != "" {
			if deleteErr := s.documents.RemoveInvoiceDocument(ctx, key); deleteErr != nil {
				s.log.Warn().Err(deleteErr).Str("key", key).Msg("failed to clean up invoice document after save failure")
			}
		}
		return nil, err
	}

	event := s.log.Info().
		Str("organization_id", inv.OrganizationID.String()).
		Str("vendor_invoice_id", result.Invoice.ID.String()).
		Int("line_items", len(result.Invoice.Items))
	if result.Invoice.POID != nil {
		event = event.Str("po_id", result.Invoice.POID.String()).Str("strategy", result.ResolutionStrategy)
	}
	event.Msg("vendor invoice stored")

	if req.AutoMatch && s.matcher != nil {
		matches, err := s.matcher.AutoMatchInvoice(ctx, inv.OrganizationID, reconcile.AutoMatchRequest{
			VendorInvoiceID: result.Invoice.ID,
		})
		if err != nil {
			s.log.Warn().Err(err).Str("vendor_invoice_id", result.Invoice.ID.String()).Msg("auto-match after intake failed")
			msg := err.Error()
			result.MatchError = &msg
		} else {
			result.Matches = matches
		}
	}

	return result, nil
}

// DocumentURL returns a short-lived download link for an invoice's document
func (s *InvoiceIntake) DocumentURL(ctx context.Context, orgID, invoiceID uuid.UUID) (string, error) {
	if s.documents == nil {
		return "", ErrStorageUnavailable
	}

	var inv *models.VendorInvoice
	err := s.tx.InTx(ctx, func(store IntakeStore) error {
		var err error
		inv, err = store.GetVendorInvoice(ctx, orgID, invoiceID)
		return err
	})
	if err != nil {
		return "", err
	}
	if inv.DocumentKey == nil {
		return "", ErrDocumentNotFound
	}

	return s.documents.InvoiceDocumentURL(ctx, *inv.DocumentKey, s.documentTTL)
}
