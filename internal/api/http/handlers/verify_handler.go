package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/credential-service/internal/api/dto"
	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/vc"
)

// SignatureVerifier checks a bare signed credential without touching any store.
type SignatureVerifier interface {
	VerifySignature(token string) (*vc.Verified, error)
}

// VerifyHandler checks a presented signed credential with the issuer public key alone.
type VerifyHandler struct {
	verifier SignatureVerifier
}

// NewVerifyHandler constructs handler.
func NewVerifyHandler(verifier SignatureVerifier) *VerifyHandler {
	return &VerifyHandler{verifier: verifier}
}

// Verify POST /verify.
func (h *VerifyHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	return c.JSON(OfflineResult(h.verifier.VerifySignature(req.Credential)))
}

// OfflineResult renders a VerifyAt outcome. Header and payload are only included once the
// signature has been checked.
func OfflineResult(v *vc.Verified, err error) dto.VerifyResponse {
	switch {
	case err == nil:
		return dto.VerifyResponse{Valid: true, Header: v.Header, Payload: v.Payload}
	case errors.Is(err, domain.ErrExpired) && v != nil:
		return dto.VerifyResponse{Header: v.Header, Payload: v.Payload, Error: domain.DecisionExpired.Reason()}
	default:
		return dto.VerifyResponse{Error: domain.DecisionSignatureInvalid.Reason()}
	}
}
