package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"

	"github.com/spec-kit/credential-service/internal/api/dto"
	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/service"
)

// CredentialsHandler manages credential issuance, lookup and lifecycle endpoints.
type CredentialsHandler struct {
	issuer   *service.IssuerService
	verifier *service.VerificationService
	clock    clockwork.Clock
}

// NewCredentialsHandler constructs handler.
func NewCredentialsHandler(issuer *service.IssuerService, verifier *service.VerificationService, clock clockwork.Clock) *CredentialsHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CredentialsHandler{issuer: issuer, verifier: verifier, clock: clock}
}

// Issue POST /credentials.
func (h *CredentialsHandler) Issue(c *fiber.Ctx) error {
	var req dto.IssueCredentialRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cred, err := h.issuer.Issue(c.UserContext(), service.IssueInput{
		Subject: domain.SubjectClaims{
			ID:           req.HolderDID,
			HolderName:   req.HolderName,
			MembershipID: req.MembershipID,
			Benefit:      req.Benefit.ToBenefitClaims(),
			Gym:          req.Gym.ToGymInfo(),
			Extensions:   req.Extensions,
		},
		ValidFrom:  derefTime(req.ValidFrom),
		ValidUntil: req.ValidUntil,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": credentialResponse(cred, h.clock.Now())})
}

// IssueMembership POST /memberships/credentials.
func (h *CredentialsHandler) IssueMembership(c *fiber.Ctx) error {
	var req dto.IssueMembershipRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	benefits := make([]domain.BenefitClaims, 0, len(req.Benefits))
	for _, b := range req.Benefits {
		benefits = append(benefits, b.ToBenefitClaims())
	}
	issued, err := h.issuer.IssueMembership(c.UserContext(), service.MembershipInput{
		HolderDID:    req.HolderDID,
		HolderName:   req.HolderName,
		MembershipID: req.MembershipID,
		Gym:          req.Gym.ToGymInfo(),
		Benefits:     benefits,
		Extensions:   req.Extensions,
		ValidFrom:    derefTime(req.ValidFrom),
		ValidUntil:   req.ValidUntil,
	})
	if err != nil {
		return err
	}

	now := h.clock.Now()
	resp := dto.MembershipIssuanceResponse{
		Credentials:  make([]dto.CredentialResponse, 0, len(issued.Credentials)),
		CheckInToken: tokenResponse(issued.Token),
	}
	for _, cred := range issued.Credentials {
		resp.Credentials = append(resp.Credentials, credentialResponse(cred, now))
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": resp})
}

// Get GET /credentials/:id.
func (h *CredentialsHandler) Get(c *fiber.Ctx) error {
	cred, err := h.issuer.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": credentialResponse(cred, h.clock.Now())})
}

// Revoke POST /credentials/:id/revoke.
func (h *CredentialsHandler) Revoke(c *fiber.Ctx) error {
	var req dto.RevokeCredentialRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}
	cred, err := h.issuer.Revoke(c.UserContext(), c.Params("id"), req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": credentialResponse(cred, h.clock.Now())})
}

// Reissue POST /credentials/:id/reissue.
func (h *CredentialsHandler) Reissue(c *fiber.Ctx) error {
	var req dto.ReissueCredentialRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	in := service.ReissueInput{
		HolderName: req.HolderName,
		Extensions: req.Extensions,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
	}
	if req.Benefit != nil {
		benefit := req.Benefit.ToBenefitClaims()
		in.Benefit = &benefit
	}
	if req.Gym != nil {
		gym := req.Gym.ToGymInfo()
		in.Gym = &gym
	}
	cred, err := h.issuer.Reissue(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": credentialResponse(cred, h.clock.Now())})
}

// Verify GET /credentials/:id/verify runs the online pipeline without recording usage.
func (h *CredentialsHandler) Verify(c *fiber.Ctx) error {
	res, err := h.verifier.VerifyCredential(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": verificationResponse(res, h.clock.Now())})
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
