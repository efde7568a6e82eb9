package dto

import (
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
)

// CreateShareRequest payload for POST /shares.
type CreateShareRequest struct {
	CredentialID   string `json:"credentialId" validate:"required,notblank"`
	ExpiresInHours int    `json:"expiresInHours" validate:"required,min=1"`
}

// ShareResponse describes a created share link.
type ShareResponse struct {
	Token        string    `json:"token"`
	CredentialID string    `json:"credentialId"`
	ExpiresAt    time.Time `json:"expiresAt"`
	URL          string    `json:"url"`
}

// SharedCredentialResponse is what a share link viewer sees. Link and credential validity are
// reported separately.
type SharedCredentialResponse struct {
	LinkExpiresAt time.Time          `json:"linkExpiresAt"`
	Verification  SharedVerification `json:"verification"`
}

// SharedVerification is the read-only projection of a verification. It never carries the
// credential id or the signed token, which would let a viewer act as the holder.
type SharedVerification struct {
	Valid         bool                    `json:"valid"`
	Decision      domain.Decision         `json:"decision"`
	Reason        string                  `json:"reason,omitempty"`
	UsedThisMonth int                     `json:"usedThisMonth"`
	UsesRemaining *int                    `json:"usesRemaining,omitempty"`
	Issuer        string                  `json:"issuer,omitempty"`
	Status        domain.CredentialStatus `json:"status,omitempty"`
	HolderName    string                  `json:"holderName,omitempty"`
	Benefit       *domain.BenefitClaims   `json:"benefit,omitempty"`
	Gym           *domain.GymInfo         `json:"gym,omitempty"`
	ValidFrom     *time.Time              `json:"validFrom,omitempty"`
	ValidUntil    *time.Time              `json:"validUntil,omitempty"`
}

// IssuerResponse publishes the issuer identity and verification key.
type IssuerResponse struct {
	DID          string            `json:"did"`
	KeyID        string            `json:"keyId"`
	Algorithm    string            `json:"alg"`
	PublicKeyPEM string            `json:"publicKeyPem"`
	PublicKeyJWK map[string]string `json:"publicKeyJwk"`
}
