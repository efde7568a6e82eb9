package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/credential-service/pkg/util"
)

const (
	principalKey = "auth_principal"
	// AdminKeyHeader carries the admin API key.
	AdminKeyHeader = "X-Admin-Key"
)

// Principal represents the authenticated caller.
type Principal struct {
	Admin bool
}

// AdminGuard protects issuance and revocation routes with a bcrypt-hashed API key.
type AdminGuard struct {
	hash   string
	logger *zap.Logger
}

// NewAdminGuard constructs the guard. An empty hash disables it, which is only meant for
// local development.
func NewAdminGuard(hash string, logger *zap.Logger) *AdminGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hash == "" {
		logger.Warn("ADMIN_API_KEY_HASH not set; admin routes are unprotected")
	}
	return &AdminGuard{hash: hash, logger: logger}
}

// Enabled reports whether a key is required.
func (g *AdminGuard) Enabled() bool {
	return g.hash != ""
}

// Handle enforces the admin key on protected routes.
func (g *AdminGuard) Handle(c *fiber.Ctx) error {
	if !g.Enabled() {
		c.Locals(principalKey, &Principal{Admin: true})
		return c.Next()
	}

	key := strings.TrimSpace(c.Get(AdminKeyHeader))
	if key == "" {
		return apperrors.NewUnauthorized("missing admin key")
	}
	if err := CompareAPIKey(g.hash, key); err != nil {
		g.logger.Warn("admin key rejected", zap.String("ip", c.IP()), zap.String("path", c.Path()))
		return apperrors.NewUnauthorized("invalid admin key")
	}

	c.Locals(principalKey, &Principal{Admin: true})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
