package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/wastebroker/ops-platform/internal/config"
	"github.com/wastebroker/ops-platform/internal/logger"
	"github.com/wastebroker/ops-platform/internal/models"
	"github.com/wastebroker/ops-platform/internal/reconcile"
	"github.com/wastebroker/ops-platform/internal/services"
)

var validate = validator.New()

// Reconciler is the engine surface the handlers drive
type Reconciler interface {
	AutoMatchInvoice(ctx context.Context, orgID uuid.UUID, req reconcile.AutoMatchRequest) ([]reconcile.MatchResult, error)
	ListMatches(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.MatchRecord, error)
	ListDiscrepancies(ctx context.Context, orgID, invoiceID uuid.UUID) ([]models.Discrepancy, error)
	ApproveMatch(ctx context.Context, orgID, userID, matchID uuid.UUID, req reconcile.ReviewRequest) (*models.MatchRecord, error)
	RejectMatch(ctx context.Context, orgID, userID, matchID uuid.UUID, req reconcile.ReviewRequest) (*models.MatchRecord, *models.Discrepancy, error)
	ManualMatch(ctx context.Context, orgID, userID uuid.UUID, req reconcile.ManualMatchRequest) (*models.MatchRecord, error)
	GetSettings(ctx context.Context, orgID uuid.UUID) (*models.ReconciliationSettings, error)
	UpdateSettings(ctx context.Context, orgID uuid.UUID, req *models.UpdateReconciliationSettingsRequest) (*models.ReconciliationSettings, error)
}

// Intaker stores uploaded vendor invoices
type Intaker interface {
	Intake(ctx context.Context, req services.IntakeRequest) (*services.IntakeResult, error)
	DocumentURL(ctx context.Context, orgID, invoiceID uuid.UUID) (string, error)
}

// Handler holds all handler dependencies
type Handler struct {
	cfg    *config.Config
	engine Reconciler
	intake Intaker
}

// New creates a new Handler instance
func New(cfg *config.Config, engine Reconciler, intake Intaker) *Handler {
	return &Handler{
		cfg:    cfg,
		engine: engine,
		intake: intake,
	}
}

// ErrorHandler is a custom error handler for Fiber
func ErrorHandler(c *fiber.Ctx, err error) error {
	// Default to 500
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	// Check if it's a Fiber error
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}

	return c.Status(code).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// APIResponse is a standard API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// Meta contains list metadata
type Meta struct {
	Total int `json:"total"`
}

// Success returns a successful response
func Success(c *fiber.Ctx, data interface{}) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
	})
}

// SuccessWithTotal returns a list response with its size
func SuccessWithTotal(c *fiber.Ctx, data interface{}, total int) error {
	return c.JSON(APIResponse{
		Success: true,
		Data:    data,
		Meta:    &Meta{Total: total},
	})
}

// Error returns an error response
func Error(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
	})
}

// ErrorWithCode returns an error response carrying a stable error code
func ErrorWithCode(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(APIResponse{
		Success: false,
		Error:   message,
		Code:    code,
	})
}

// statusForCode maps engine codes onto HTTP status
func statusForCode(code reconcile.Code) int {
	switch code {
	case reconcile.CodeInvoiceNotFound, reconcile.CodeMatchNotFound,
		reconcile.CodeLineItemNotFound, reconcile.CodePOLineItemNotFound:
		return fiber.StatusNotFound
	case reconcile.CodeInvalidTransition, reconcile.CodeMatchLocked:
		return fiber.StatusConflict
	case reconcile.CodeNoLineItems, reconcile.CodeInvalidSettings:
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// engineError renders an engine failure. Internal causes are logged, never returned.
func engineError(c *fiber.Ctx, err error) error {
	code := reconcile.CodeOf(err)
	status := statusForCode(code)

	message := "internal error"
	var engineErr *reconcile.Error
	if errors.As(err, &engineErr) && status != fiber.StatusInternalServerError {
		message = engineErr.Message
	}
	if status == fiber.StatusInternalServerError {
		log := logger.Get()
		log.Error().Stack().Err(err).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("reconciliation request failed")
	}

	return ErrorWithCode(c, status, string(code), message)
}

// parseBody decodes and validates a JSON request body. The returned
// *fiber.Error is rendered by ErrorHandler. An empty body is validated as is.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return validateRequest(out)
	}
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return validateRequest(out)
}

func validateRequest(out interface{}) error {
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return "invalid " + fe.Field() + ": failed " + fe.Tag() + " check"
	}
	return err.Error()
}

func uuidParam(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Health reports liveness
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok", "time": time.Now().UTC()})
}
