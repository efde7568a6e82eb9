package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/credential-service/internal/api/dto"
	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/service"
	apperrors "github.com/spec-kit/credential-service/pkg/util"
)

// parseBody decodes the JSON body into req and runs struct validation.
func parseBody(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	return dto.Validate(req)
}

func credentialResponse(cred *domain.Credential, now time.Time) dto.CredentialResponse {
	s := cred.Subject
	return dto.CredentialResponse{
		ID:               cred.ID,
		Issuer:           cred.Issuer,
		Type:             cred.Types,
		Status:           cred.EffectiveStatus(now),
		HolderDID:        s.ID,
		HolderName:       s.HolderName,
		MembershipID:     s.MembershipID,
		Benefit:          s.Benefit,
		Gym:              s.Gym,
		Extensions:       s.Extensions,
		ValidFrom:        cred.ValidFrom,
		ValidUntil:       cred.ValidUntil,
		IssuedAt:         cred.IssuedAt,
		RevokedAt:        cred.RevokedAt,
		RevocationReason: cred.RevocationReason,
		Credential:       cred.SignedToken,
	}
}

func tokenResponse(tok *domain.ReferenceToken) dto.TokenResponse {
	return dto.TokenResponse{
		Token:         tok.Token,
		Kind:          tok.Kind,
		CredentialIDs: tok.CredentialIDs,
		ExpiresAt:     tok.ExpiresAt,
		ExpiresIn:     int(tok.ExpiresAt.Sub(tok.CreatedAt) / time.Second),
	}
}

func verificationResponse(v *service.CredentialVerification, now time.Time) dto.CredentialVerificationResponse {
	out := dto.CredentialVerificationResponse{
		CredentialID:  v.CredentialID,
		Valid:         v.Valid(),
		Decision:      v.Decision,
		Reason:        v.Decision.Reason(),
		UsedThisMonth: v.UsedThisMonth,
		UsesRemaining: v.UsesRemaining,
	}
	// Forged records are never echoed back.
	if v.Credential != nil && v.Decision != domain.DecisionSignatureInvalid {
		cred := credentialResponse(v.Credential, now)
		out.Credential = &cred
	}
	return out
}

func sharedVerification(v *service.CredentialVerification, now time.Time) dto.SharedVerification {
	out := dto.SharedVerification{
		Valid:         v.Valid(),
		Decision:      v.Decision,
		Reason:        v.Decision.Reason(),
		UsedThisMonth: v.UsedThisMonth,
		UsesRemaining: v.UsesRemaining,
	}
	if v.Credential == nil || v.Decision == domain.DecisionSignatureInvalid {
		return out
	}
	cred := v.Credential
	out.Issuer = cred.Issuer
	out.Status = cred.EffectiveStatus(now)
	out.HolderName = cred.Subject.HolderName
	out.Benefit = &cred.Subject.Benefit
	out.Gym = &cred.Subject.Gym
	out.ValidFrom = &cred.ValidFrom
	out.ValidUntil = &cred.ValidUntil
	return out
}
