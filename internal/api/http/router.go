package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/credential-service/internal/api/http/handlers"
	"github.com/spec-kit/credential-service/internal/auth"
	"github.com/spec-kit/credential-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health      *handlers.HealthHandler
	CheckIn     *handlers.CheckInHandler
	Verify      *handlers.VerifyHandler
	Credentials *handlers.CredentialsHandler
	Shares      *handlers.SharesHandler
	Issuer      *handlers.IssuerHandler
	AdminGuard  *auth.AdminGuard
	RateLimiter *IPRateLimiter
	Metrics     *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1")
	api.Get("/issuer", cfg.Issuer.Get)

	limit := cfg.RateLimiter.Handler()
	api.Post("/checkin", limit, cfg.CheckIn.CheckIn)
	api.Post("/verify", limit, cfg.Verify.Verify)

	api.Get("/shares/:token", cfg.Shares.View)
	api.Get("/credentials/:id", cfg.Credentials.Get)
	api.Get("/credentials/:id/verify", cfg.Credentials.Verify)

	// Route-level guards; a Group("") middleware would leak onto every /api/v1 route.
	admin := cfg.AdminGuard.Handle
	api.Post("/credentials", admin, cfg.Credentials.Issue)
	api.Post("/memberships/credentials", admin, cfg.Credentials.IssueMembership)
	api.Post("/credentials/:id/revoke", admin, cfg.Credentials.Revoke)
	api.Post("/credentials/:id/reissue", admin, cfg.Credentials.Reissue)
	api.Post("/shares", admin, cfg.Shares.Create)
	api.Post("/tokens/checkin", admin, cfg.CheckIn.MintToken)
}
