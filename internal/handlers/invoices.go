package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/wastebroker/ops-platform/internal/database"
	"github.com/wastebroker/ops-platform/internal/logger"
	"github.com/wastebroker/ops-platform/internal/middleware"
	"github.com/wastebroker/ops-platform/internal/models"
	"github.com/wastebroker/ops-platform/internal/services"
)

// CreateVendorInvoice stores an uploaded invoice. The multipart form carries
// the extracted fields as JSON in "invoice" and the PDF in "document".
func (h *Handler) CreateVendorInvoice(c *fiber.Ctx) error {
	raw := c.FormValue("invoice")
	if raw == "" {
		return Error(c, fiber.StatusBadRequest, "invoice field is required")
	}

	var inv models.CreateVendorInvoiceRequest
	if err := json.Unmarshal([]byte(raw), &inv); err != nil {
		return Error(c, fiber.StatusBadRequest, "invoice field is not valid JSON")
	}
	if err := validateRequest(&inv); err != nil {
		return err
	}
	inv.OrganizationID = middleware.GetOrgID(c)

	autoMatch := h.cfg.Reconciliation.AutoMatchOnIntakeDefault
	if v := c.FormValue("auto_match"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return Error(c, fiber.StatusBadRequest, "auto_match must be true or false")
		}
		autoMatch = parsed
	}

	req := services.IntakeRequest{Invoice: &inv, AutoMatch: autoMatch}

	// The document is optional; invoices keyed in by hand have none
	if file, err := c.FormFile("document"); err == nil {
		contentType := file.Header.Get("Content-Type")
		if contentType != services.InvoiceDocumentContentType {
			return Error(c, fiber.StatusBadRequest, "invalid document type. Supported: PDF")
		}
		if limit := h.cfg.Reconciliation.MaxUploadBytes; limit > 0 && file.Size > limit {
			return Error(c, fiber.StatusBadRequest, fmt.Sprintf("document too large. Maximum size is %dMB", limit>>20))
		}

		src, err := file.Open()
		if err != nil {
			return Error(c, fiber.StatusInternalServerError, "failed to read document")
		}
		defer src.Close()

		req.Document = src
		req.DocumentSize = file.Size
		req.ContentType = contentType
	}

	result, err := h.intake.Intake(c.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrStorageUnavailable) {
			return Error(c, fiber.StatusServiceUnavailable, "document storage is not configured")
		}
		if errors.Is(err, services.ErrUnsupportedDocumentType) {
			return Error(c, fiber.StatusUnsupportedMediaType, "invalid document type. Supported: PDF")
		}
		log := logger.Get()
		log.Error().Err(err).Str("organization_id", inv.OrganizationID.String()).Msg("vendor invoice intake failed")
		return Error(c, fiber.StatusInternalServerError, "failed to store vendor invoice")
	}

	return c.Status(fiber.StatusCreated).JSON(APIResponse{Success: true, Data: result})
}

// GetVendorInvoiceDocument returns a short-lived URL for the invoice PDF
func (h *Handler) GetVendorInvoiceDocument(c *fiber.Ctx) error {
	invoiceID, ok := uuidParam(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid vendor invoice ID")
	}

	url, err := h.intake.DocumentURL(c.Context(), middleware.GetOrgID(c), invoiceID)
	switch {
	case err == nil:
		return Success(c, fiber.Map{"url": url})
	case errors.Is(err, database.ErrVendorInvoiceNotFound):
		return Error(c, fiber.StatusNotFound, "vendor invoice not found")
	case errors.Is(err, services.ErrDocumentNotFound):
		return Error(c, fiber.StatusNotFound, "vendor invoice has no document")
	case errors.Is(err, services.ErrStorageUnavailable):
		return Error(c, fiber.StatusServiceUnavailable, "document storage is not configured")
	default:
		return Error(c, fiber.StatusInternalServerError, "failed to generate document URL")
	}
}
