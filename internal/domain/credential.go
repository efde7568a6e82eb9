package domain

import "time"

// CredentialStatus is the persisted lifecycle state of a credential.
type CredentialStatus string

const (
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusRevoked CredentialStatus = "revoked"
	// CredentialStatusExpired is never persisted; it is derived from ValidUntil on read.
	CredentialStatusExpired CredentialStatus = "expired"
)

// Credential is an issued, signed verifiable credential for a single membership benefit.
type Credential struct {
	ID               string
	Issuer           string
	Types            []string
	Subject          SubjectClaims
	SignedToken      string
	Status           CredentialStatus
	RevocationReason *string
	RevokedAt        *time.Time
	ValidFrom        time.Time
	ValidUntil       time.Time
	IssuedAt         time.Time
}

// EffectiveStatus folds the validity window into the persisted status.
// Revocation wins over expiry.
func (c *Credential) EffectiveStatus(now time.Time) CredentialStatus {
	if c.Status == CredentialStatusRevoked {
		return CredentialStatusRevoked
	}
	if !c.WithinValidity(now) {
		return CredentialStatusExpired
	}
	return CredentialStatusActive
}

// WithinValidity reports whether now lies in [ValidFrom, ValidUntil].
func (c *Credential) WithinValidity(now time.Time) bool {
	return !now.Before(c.ValidFrom) && !now.After(c.ValidUntil)
}

// HolderDID is a shorthand for the credential subject identifier.
func (c *Credential) HolderDID() string {
	return c.Subject.ID
}

// BenefitID is a shorthand for the benefit the credential grants.
func (c *Credential) BenefitID() string {
	return c.Subject.Benefit.ID
}
