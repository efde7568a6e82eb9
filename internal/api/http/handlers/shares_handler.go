package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"

	"github.com/spec-kit/credential-service/internal/api/dto"
	"github.com/spec-kit/credential-service/internal/service"
)

// SharesPath is where share links are served; the token is appended.
const SharesPath = "/api/v1/shares/"

// SharesHandler creates and serves time-limited share links.
type SharesHandler struct {
	shares *service.ShareService
	clock  clockwork.Clock
}

// NewSharesHandler constructs handler.
func NewSharesHandler(shares *service.ShareService, clock clockwork.Clock) *SharesHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SharesHandler{shares: shares, clock: clock}
}

// Create POST /shares.
func (h *SharesHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateShareRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tok, err := h.shares.CreateShare(c.UserContext(), req.CredentialID, req.ExpiresInHours)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.ShareResponse{
		Token:        tok.Token,
		CredentialID: req.CredentialID,
		ExpiresAt:    tok.ExpiresAt,
		URL:          SharesPath + tok.Token,
	}})
}

// View GET /shares/:token.
func (h *SharesHandler) View(c *fiber.Ctx) error {
	shared, err := h.shares.ViewShare(c.UserContext(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SharedCredentialResponse{
		LinkExpiresAt: shared.Token.ExpiresAt,
		Verification:  sharedVerification(shared.Verification, h.clock.Now()),
	}})
}
