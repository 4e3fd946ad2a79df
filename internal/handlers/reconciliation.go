package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wastebroker/ops-platform/internal/middleware"
	"github.com/wastebroker/ops-platform/internal/models"
	"github.com/wastebroker/ops-platform/internal/reconcile"
)

// AutoMatch runs the reconciliation engine over one vendor invoice
func (h *Handler) AutoMatch(c *fiber.Ctx) error {
	var req reconcile.AutoMatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	results, err := h.engine.AutoMatchInvoice(c.Context(), middleware.GetOrgID(c), req)
	if err != nil {
		return engineError(c, err)
	}

	return SuccessWithTotal(c, results, len(results))
}

// ListMatches returns the active match records of an invoice
func (h *Handler) ListMatches(c *fiber.Ctx) error {
	invoiceID, ok := uuidParam(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid vendor invoice ID")
	}

	records, err := h.engine.ListMatches(c.Context(), middleware.GetOrgID(c), invoiceID)
	if err != nil {
		return engineError(c, err)
	}
	if records == nil {
		records = []models.MatchRecord{}
	}

	return SuccessWithTotal(c, records, len(records))
}

// ListDiscrepancies returns every discrepancy raised for an invoice
func (h *Handler) ListDiscrepancies(c *fiber.Ctx) error {
	invoiceID, ok := uuidParam(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid vendor invoice ID")
	}

	discrepancies, err := h.engine.ListDiscrepancies(c.Context(), middleware.GetOrgID(c), invoiceID)
	if err != nil {
		return engineError(c, err)
	}
	if discrepancies == nil {
		discrepancies = []models.Discrepancy{}
	}

	return SuccessWithTotal(c, discrepancies, len(discrepancies))
}

// ApproveMatch signs off a pending match record
func (h *Handler) ApproveMatch(c *fiber.Ctx) error {
	matchID, ok := uuidParam(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid match ID")
	}

	var req reconcile.ReviewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	record, err := h.engine.ApproveMatch(c.Context(), middleware.GetOrgID(c), middleware.GetUserID(c), matchID, req)
	if err != nil {
		return engineError(c, err)
	}

	return Success(c, record)
}

// RejectMatch rejects a match record and opens a rejected_match discrepancy
func (h *Handler) RejectMatch(c *fiber.Ctx) error {
	matchID, ok := uuidParam(c, "id")
	if !ok {
		return Error(c, fiber.StatusBadRequest, "invalid match ID")
	}

	var req reconcile.ReviewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	record, discrepancy, err := h.engine.RejectMatch(c.Context(), middleware.GetOrgID(c), middleware.GetUserID(c), matchID, req)
	if err != nil {
		return engineError(c, err)
	}

	return Success(c, fiber.Map{
		"match":       record,
		"discrepancy": discrepancy,
	})
}

// ManualMatch links a vendor line item to a PO line item chosen by a reviewer
func (h *Handler) ManualMatch(c *fiber.Ctx) error {
	var req reconcile.ManualMatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	record, err := h.engine.ManualMatch(c.Context(), middleware.GetOrgID(c), middleware.GetUserID(c), req)
	if err != nil {
		return engineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(APIResponse{Success: true, Data: record})
}

// GetReconciliationSettings returns the tenant's thresholds, creating defaults on first read
func (h *Handler) GetReconciliationSettings(c *fiber.Ctx) error {
	settings, err := h.engine.GetSettings(c.Context(), middleware.GetOrgID(c))
	if err != nil {
		return engineError(c, err)
	}
	return Success(c, settings)
}

// UpdateReconciliationSettings changes the tenant's thresholds
func (h *Handler) UpdateReconciliationSettings(c *fiber.Ctx) error {
	var req models.UpdateReconciliationSettingsRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	settings, err := h.engine.UpdateSettings(c.Context(), middleware.GetOrgID(c), &req)
	if err != nil {
		return engineError(c, err)
	}
	return Success(c, settings)
}
