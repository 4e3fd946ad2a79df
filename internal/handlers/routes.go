package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/wastebroker/ops-platform/internal/middleware"
)

// Register mounts the API on app. Every /api route is tenant-scoped by the
// org_id claim of the bearer token.
func (h *Handler) Register(app *fiber.App) {
	app.Get("/health", Health)

	api := app.Group("/api", middleware.AuthRequired(h.cfg.JWTSecret))

	// Reconciliation (reviewers trigger runs and sign off)
	recon := api.Group("/reconciliation")
	recon.Post("/auto-match", middleware.ReviewerRequired(), h.AutoMatch)
	recon.Get("/settings", h.GetReconciliationSettings)

	matches := api.Group("/matches", middleware.ReviewerRequired())
	matches.Post("/manual", h.ManualMatch)
	matches.Post("/:id/approve", h.ApproveMatch)
	matches.Post("/:id/reject", h.RejectMatch)

	// Vendor invoices
	invoices := api.Group("/vendor-invoices")
	invoices.Post("/", middleware.ReviewerRequired(), h.CreateVendorInvoice)
	invoices.Get("/:id/matches", h.ListMatches)
	invoices.Get("/:id/discrepancies", h.ListDiscrepancies)
	invoices.Get("/:id/document", h.GetVendorInvoiceDocument)

	// Admin
	admin := api.Group("/admin", middleware.AdminRequired())
	admin.Put("/reconciliation/settings", h.UpdateReconciliationSettings)
}
