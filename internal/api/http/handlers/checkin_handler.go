package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/credential-service/internal/api/dto"
	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/service"
)

// CheckInHandler serves the scanning device and the member app's rotating token.
type CheckInHandler struct {
	verifier *service.VerificationService
	tokens   *service.TokenBroker
}

// NewCheckInHandler constructs handler.
func NewCheckInHandler(verifier *service.VerificationService, tokens *service.TokenBroker) *CheckInHandler {
	return &CheckInHandler{verifier: verifier, tokens: tokens}
}

// CheckIn POST /checkin. Every outcome is rendered as {success, data|error}.
func (h *CheckInHandler) CheckIn(c *fiber.Ctx) error {
	var req dto.CheckInRequest
	if err := c.BodyParser(&req); err != nil {
		return checkInFailure(c, fiber.StatusBadRequest, "", "invalid request")
	}
	if err := dto.Validate(req); err != nil {
		return checkInFailure(c, fiber.StatusBadRequest, "", "token is required")
	}

	res, err := h.verifier.CheckIn(c.UserContext(), req.Token)
	switch {
	case errors.Is(err, domain.ErrCheckInTimeout):
		return checkInFailure(c, fiber.StatusGatewayTimeout, "", service.ReasonTimeout)
	case err != nil:
		return checkInFailure(c, fiber.StatusServiceUnavailable, "", service.ReasonUnavailable)
	}

	if !res.Success {
		return checkInFailure(c, deniedStatus(res.Decision), res.Decision, res.Reason)
	}

	data := &dto.CheckInData{
		Credentials:   make([]dto.CheckInCredential, 0, len(res.Credentials)),
		BenefitName:   res.BenefitName,
		UserName:      res.UserName,
		ExpiryDate:    res.ExpiryDate,
		UsesRemaining: res.UsesRemaining,
	}
	for _, cred := range res.Credentials {
		data.Credentials = append(data.Credentials, dto.CheckInCredential{
			ID:            cred.ID,
			BenefitID:     cred.BenefitID,
			BenefitName:   cred.BenefitName,
			BenefitType:   cred.BenefitType,
			ValidUntil:    cred.ValidUntil,
			UsesRemaining: cred.UsesRemaining,
		})
	}
	return c.JSON(dto.CheckInResponse{Success: true, Data: data})
}

// MintToken POST /tokens/checkin issues a fresh short-lived token for the member's countdown.
// The route is admin-guarded; the wallet backend refreshes on the holder's behalf.
func (h *CheckInHandler) MintToken(c *fiber.Ctx) error {
	var req dto.MintCheckInTokenRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	tok, err := h.tokens.MintCheckIn(c.UserContext(), req.CredentialIDs)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": tokenResponse(tok)})
}

func checkInFailure(c *fiber.Ctx, status int, decision domain.Decision, reason string) error {
	return c.Status(status).JSON(dto.CheckInResponse{Success: false, Decision: decision, Error: reason})
}

func deniedStatus(d domain.Decision) int {
	switch d {
	case domain.DecisionNotFound:
		return fiber.StatusNotFound
	case domain.DecisionExpired:
		return fiber.StatusGone
	case domain.DecisionUsageExceeded:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusForbidden
	}
}
