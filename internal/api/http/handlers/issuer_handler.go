package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/credential-service/internal/api/dto"
	"github.com/spec-kit/credential-service/internal/keys"
	apperrors "github.com/spec-kit/credential-service/pkg/util"
)

// IssuerHandler publishes the verification key for offline verifiers.
type IssuerHandler struct {
	keys *keys.KeyMaterial
}

// NewIssuerHandler constructs handler.
func NewIssuerHandler(km *keys.KeyMaterial) *IssuerHandler {
	return &IssuerHandler{keys: km}
}

// Get GET /issuer.
func (h *IssuerHandler) Get(c *fiber.Ctx) error {
	pemBytes, err := h.keys.PublicKeyPEM()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	c.Set(fiber.HeaderCacheControl, "public, max-age=300")
	return c.JSON(fiber.Map{"data": dto.IssuerResponse{
		DID:          h.keys.IssuerDID(),
		KeyID:        h.keys.KeyID(),
		Algorithm:    "EdDSA",
		PublicKeyPEM: string(pemBytes),
		PublicKeyJWK: h.keys.JWK(),
	}})
}
