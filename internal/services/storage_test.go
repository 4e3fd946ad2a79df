package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastebroker/ops-platform/internal/config"
)

func testDocumentStore(t *testing.T) *S3DocumentStore {
	t.Helper()
	store, err := NewS3DocumentStore(&config.Config{
		S3Endpoint:  "localhost:9000",
		S3AccessKey: "minio",
		S3SecretKey: "minio-secret",
		S3Bucket:    "vendor-invoices",
		S3Region:    "us-east-1",
	})
	require.NoError(t, err)
	return store
}

func TestInvoiceDocumentKey(t *testing.T) {
	orgID := uuid.New()
	key := InvoiceDocumentKey(orgID)

	assert.True(t, strings.HasPrefix(key, "vendor-invoices/"+orgID.String()+"/"))
	assert.True(t, strings.HasSuffix(key, ".pdf"))
	assert.NotEqual(t, key, InvoiceDocumentKey(orgID))
}

func TestCheckDocumentType(t *testing.T) {
	tests := []struct {
		contentType string
		ok          bool
	}{
		{"application/pdf", true},
		{"application/pdf; name=invoice.pdf", true},
		{"", true},
		{"image/png", false},
		{"text/plain", false},
		{"not a media type;;", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			err := checkDocumentType(tt.contentType)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsupportedDocumentType)
			}
		})
	}
}

func TestDocumentMetadata(t *testing.T) {
	orgID, vendorID := uuid.New(), uuid.New()

	meta := documentMetadata(InvoiceDocument{OrganizationID: orgID, VendorID: vendorID, InvoiceNumber: "MH-88412"})
	assert.Equal(t, map[string]string{
		"organization-id": orgID.String(),
		"vendor-id":       vendorID.String(),
		"invoice-number":  "MH-88412",
	}, meta)

	meta = documentMetadata(InvoiceDocument{OrganizationID: orgID})
	assert.Equal(t, map[string]string{"organization-id": orgID.String()}, meta)
}

func TestPutInvoiceDocument_RejectsBeforeUpload(t *testing.T) {
	store := testDocumentStore(t)

	_, err := store.PutInvoiceDocument(context.Background(), InvoiceDocument{
		OrganizationID: uuid.New(),
		Body:           strings.NewReader("GIF89a"),
		ContentType:    "image/gif",
	})
	assert.ErrorIs(t, err, ErrUnsupportedDocumentType)

	_, err = store.PutInvoiceDocument(context.Background(), InvoiceDocument{
		Body:        strings.NewReader("%PDF"),
		ContentType: "application/pdf",
	})
	assert.ErrorContains(t, err, "no organization")
}

func TestInvoiceDocumentURL(t *testing.T) {
	store := testDocumentStore(t)
	key := InvoiceDocumentKey(uuid.New())

	u, err := store.InvoiceDocumentURL(context.Background(), key, 15*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, u, key)
	assert.Contains(t, u, "X-Amz-Expires=900")
	assert.Contains(t, u, "response-content-type=application%2Fpdf")

	_, err = store.InvoiceDocumentURL(context.Background(), "receipts/other.png", time.Minute)
	assert.ErrorContains(t, err, "not an invoice document key")
}
