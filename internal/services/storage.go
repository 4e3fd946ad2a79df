package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wastebroker/ops-platform/internal/config"
)

// InvoiceDocumentContentType is the only format accepted for invoice documents
const InvoiceDocumentContentType = "application/pdf"

const invoiceDocumentPrefix = "vendor-invoices/"

var ErrUnsupportedDocumentType = errors.New("invoice documents must be application/pdf")

// InvoiceDocument is an uploaded vendor invoice file waiting to be stored
type InvoiceDocument struct {
	OrganizationID uuid.UUID
	VendorID       uuid.UUID
	InvoiceNumber  string
	Body           io.Reader
	Size           int64
	ContentType    string
}

// StoredDocument locates a stored invoice document
type StoredDocument struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

// DocumentStore keeps the PDF behind each vendor invoice. S3DocumentStore is
// the production implementation.
type DocumentStore interface {
	PutInvoiceDocument(ctx context.Context, doc InvoiceDocument) (*StoredDocument, error)
	InvoiceDocumentURL(ctx context.Context, key string, expiry time.Duration) (string, error)
	RemoveInvoiceDocument(ctx context.Context, key string) error
}

// S3DocumentStore stores invoice documents in an S3-compatible bucket
type S3DocumentStore struct {
	client *minio.Client
	bucket string
	region string
}

// NewS3DocumentStore creates a store for the configured bucket. No request
// is made until the first upload or EnsureBucket.
func NewS3DocumentStore(cfg *config.Config) (*S3DocumentStore, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &S3DocumentStore{
		client: client,
		bucket: cfg.S3Bucket,
		region: cfg.S3Region,
	}, nil
}

// EnsureBucket creates the invoice bucket if it doesn't exist
func (s *S3DocumentStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// PutInvoiceDocument uploads a PDF under a fresh key in the tenant's prefix,
// tagging the object with the tenant and vendor it belongs to
func (s *S3DocumentStore) PutInvoiceDocument(ctx context.Context, doc InvoiceDocument) (*StoredDocument, error) {
	if err := checkDocumentType(doc.ContentType); err != nil {
		return nil, err
	}
	if doc.OrganizationID == uuid.Nil {
		return nil, errors.New("invoice document has no organization")
	}

	size := doc.Size
	if size <= 0 {
		size = -1
	}

	key := InvoiceDocumentKey(doc.OrganizationID)
	info, err := s.client.PutObject(ctx, s.bucket, key, doc.Body, size, minio.PutObjectOptions{
		ContentType:  InvoiceDocumentContentType,
		UserMetadata: documentMetadata(doc),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload invoice document: %w", err)
	}

	bucket := info.Bucket
	if bucket == "" {
		bucket = s.bucket
	}
	return &StoredDocument{
		Bucket: bucket,
		Key:    key,
		Size:   info.Size,
		ETag:   info.ETag,
	}, nil
}

// InvoiceDocumentURL presigns a download link that renders the PDF inline
func (s *S3DocumentStore) InvoiceDocumentURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !strings.HasPrefix(key, invoiceDocumentPrefix) {
		return "", fmt.Errorf("not an invoice document key: %q", key)
	}

	params := url.Values{}
	params.Set("response-content-type", InvoiceDocumentContentType)
	params.Set("response-content-disposition", "inline")

	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, params)
	if err != nil {
		return "", fmt.Errorf("failed to presign invoice document: %w", err)
	}
	return u.String(), nil
}

// RemoveInvoiceDocument deletes a stored document, e.g. when the invoice
// insert that referenced it rolled back
func (s *S3DocumentStore) RemoveInvoiceDocument(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove invoice document: %w", err)
	}
	return nil
}

// InvoiceDocumentKey returns vendor-invoices/<org>/<uuid>.pdf
func InvoiceDocumentKey(orgID uuid.UUID) string {
	return fmt.Sprintf("%s%s/%s.pdf", invoiceDocumentPrefix, orgID, uuid.New())
}

// checkDocumentType accepts application/pdf with or without parameters. An
// empty type is taken as PDF; the upload handler has already checked it.
func checkDocumentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || mediaType != InvoiceDocumentContentType {
		return ErrUnsupportedDocumentType
	}
	return nil
}

func documentMetadata(doc InvoiceDocument) map[string]string {
	meta := map[string]string{
		"organization-id": doc.OrganizationID.String(),
	}
	if doc.VendorID != uuid.Nil {
		meta["vendor-id"] = doc.VendorID.String()
	}
	if doc.InvoiceNumber != "" {
		meta["invoice-number"] = doc.InvoiceNumber
	}
	return meta
}
