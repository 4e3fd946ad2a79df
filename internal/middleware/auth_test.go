package middleware

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wastebroker/ops-platform/internal/models"
)

const testSecret = "test-secret"

func newTestApp() *fiber.App {
	app := fiber.New()
	api := app.Group("/api", AuthRequired(testSecret))
	api.Get("/whoami", func(c *fiber.Ctx) error {
		return c.SendString(GetOrgID(c).String() + "|" + GetUserID(c).String() + "|" + string(GetUserRole(c)))
	})
	api.Post("/review", ReviewerRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	api.Put("/admin", AdminRequired(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func request(t *testing.T, app *fiber.App, method, path, token string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func token(t *testing.T, secret string, role models.Role, ttl time.Duration) (string, models.Principal) {
	t.Helper()
	p := models.Principal{UserID: uuid.New(), OrganizationID: uuid.New(), Role: role}
	tok, err := IssueToken(secret, p, ttl)
	require.NoError(t, err)
	return tok, p
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp()

	tok, p := token(t, testSecret, models.RoleViewer, time.Hour)
	status, body := request(t, app, fiber.MethodGet, "/api/whoami", tok)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, p.OrganizationID.String()+"|"+p.UserID.String()+"|viewer", body)

	status, _ = request(t, app, fiber.MethodGet, "/api/whoami", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	wrongKey, _ := token(t, "other-secret", models.RoleAdmin, time.Hour)
	status, _ = request(t, app, fiber.MethodGet, "/api/whoami", wrongKey)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	expired, _ := token(t, testSecret, models.RoleAdmin, -time.Minute)
	status, _ = request(t, app, fiber.MethodGet, "/api/whoami", expired)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestAuthRequired_RejectsTokenWithoutTenant(t *testing.T) {
	tok, err := IssueToken(testSecret, models.Principal{UserID: uuid.New(), Role: models.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	status, body := request(t, newTestApp(), fiber.MethodGet, "/api/whoami", tok)

	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Contains(t, body, "organization")
}

func TestRoleGuards(t *testing.T) {
	app := newTestApp()

	tests := []struct {
		role       models.Role
		reviewCode int
		adminCode  int
	}{
		{models.RoleViewer, fiber.StatusForbidden, fiber.StatusForbidden},
		{models.RoleReviewer, fiber.StatusNoContent, fiber.StatusForbidden},
		{models.RoleAdmin, fiber.StatusNoContent, fiber.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			tok, _ := token(t, testSecret, tt.role, time.Hour)

			status, _ := request(t, app, fiber.MethodPost, "/api/review", tok)
			assert.Equal(t, tt.reviewCode, status)

			status, _ = request(t, app, fiber.MethodPut, "/api/admin", tok)
			assert.Equal(t, tt.adminCode, status)
		})
	}
}
