package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/spec-kit/credential-service/pkg/util"
)

func newGuardedApp(t *testing.T, hash string) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			de := apperrors.ToDomainError(err)
			return c.Status(de.HTTPStatus).SendString(de.Code)
		},
	})
	guard := NewAdminGuard(hash, nil)
	app.Get("/admin", guard.Handle, func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		if !ok || !p.Admin {
			return fiber.ErrForbidden
		}
		return c.SendString("ok")
	})
	return app
}

func TestAdminGuard(t *testing.T) {
	hash, err := HashAPIKey("s3cret", bcrypt.MinCost)
	require.NoError(t, err)
	app := newGuardedApp(t, hash)

	cases := map[string]struct {
		key    string
		status int
	}{
		"missing": {"", fiber.StatusUnauthorized},
		"wrong":   {"nope", fiber.StatusUnauthorized},
		"correct": {"s3cret", fiber.StatusOK},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin", nil)
			if tc.key != "" {
				req.Header.Set(AdminKeyHeader, tc.key)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestAdminGuard_DisabledWithoutHash(t *testing.T) {
	app := newGuardedApp(t, "")
	resp, err := app.Test(httptest.NewRequest("GET", "/admin", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
