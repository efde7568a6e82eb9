package dto

import (
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
)

// GymRequest identifies the gym honouring a benefit.
type GymRequest struct {
	ID       string `json:"id" validate:"required,notblank,max=128"`
	Name     string `json:"name" validate:"required,notblank,max=256"`
	Location string `json:"location" validate:"max=256"`
}

// BenefitRequest is one benefit of a membership. Exactly the detail block matching Type may be set.
type BenefitRequest struct {
	ID              string                   `json:"id" validate:"required,notblank,max=128"`
	Name            string                   `json:"name" validate:"required,notblank,max=256"`
	Type            domain.BenefitType       `json:"type" validate:"required,oneof=gym_access group_class personal_training amenity guest_pass"`
	MaxUsesPerMonth int                      `json:"maxUsesPerMonth" validate:"min=0"`
	Access          *domain.AccessDetails    `json:"access,omitempty"`
	Class           *domain.ClassDetails     `json:"class,omitempty"`
	Training        *domain.TrainingDetails  `json:"training,omitempty"`
	Amenity         *domain.AmenityDetails   `json:"amenity,omitempty"`
	GuestPass       *domain.GuestPassDetails `json:"guestPass,omitempty"`
}

// IssueCredentialRequest payload for POST /credentials.
type IssueCredentialRequest struct {
	HolderDID    string            `json:"holderDid" validate:"required,startswith=did:"`
	HolderName   string            `json:"holderName" validate:"max=256"`
	MembershipID string            `json:"membershipId" validate:"required,notblank,max=128"`
	Gym          GymRequest        `json:"gym" validate:"required"`
	Benefit      BenefitRequest    `json:"benefit" validate:"required"`
	Extensions   map[string]string `json:"extensions" validate:"max=16"`
	ValidFrom    *time.Time        `json:"validFrom"`
	ValidUntil   time.Time         `json:"validUntil" validate:"required"`
}

// IssueMembershipRequest payload for POST /memberships/credentials.
type IssueMembershipRequest struct {
	HolderDID    string            `json:"holderDid" validate:"required,startswith=did:"`
	HolderName   string            `json:"holderName" validate:"max=256"`
	MembershipID string            `json:"membershipId" validate:"required,notblank,max=128"`
	Gym          GymRequest        `json:"gym" validate:"required"`
	Benefits     []BenefitRequest  `json:"benefits" validate:"required,min=1,max=32,dive"`
	Extensions   map[string]string `json:"extensions" validate:"max=16"`
	ValidFrom    *time.Time        `json:"validFrom"`
	ValidUntil   time.Time         `json:"validUntil" validate:"required"`
}

// ReissueCredentialRequest payload for POST /credentials/:id/reissue. Omitted fields carry over.
type ReissueCredentialRequest struct {
	HolderName *string           `json:"holderName" validate:"omitempty,max=256"`
	Gym        *GymRequest       `json:"gym"`
	Benefit    *BenefitRequest   `json:"benefit"`
	Extensions map[string]string `json:"extensions" validate:"max=16"`
	ValidFrom  *time.Time        `json:"validFrom"`
	ValidUntil *time.Time        `json:"validUntil"`
}

// RevokeCredentialRequest payload for POST /credentials/:id/revoke.
type RevokeCredentialRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=512"`
}

// CredentialResponse describes a stored credential, including its compact signed form.
type CredentialResponse struct {
	ID               string                  `json:"id"`
	Issuer           string                  `json:"issuer"`
	Type             []string                `json:"type"`
	Status           domain.CredentialStatus `json:"status"`
	HolderDID        string                  `json:"holderDid"`
	HolderName       string                  `json:"holderName,omitempty"`
	MembershipID     string                  `json:"membershipId"`
	Benefit          domain.BenefitClaims    `json:"benefit"`
	Gym              domain.GymInfo          `json:"gym"`
	Extensions       map[string]string       `json:"extensions,omitempty"`
	ValidFrom        time.Time               `json:"validFrom"`
	ValidUntil       time.Time               `json:"validUntil"`
	IssuedAt         time.Time               `json:"issuedAt"`
	RevokedAt        *time.Time              `json:"revokedAt,omitempty"`
	RevocationReason *string                 `json:"revocationReason,omitempty"`
	Credential       string                  `json:"credential"`
}

// TokenResponse describes a minted reference token.
type TokenResponse struct {
	Token         string           `json:"token"`
	Kind          domain.TokenKind `json:"kind"`
	CredentialIDs []string         `json:"credentialIds"`
	ExpiresAt     time.Time        `json:"expiresAt"`
	ExpiresIn     int              `json:"expiresIn"`
}

// MembershipIssuanceResponse is returned when a whole membership is issued.
type MembershipIssuanceResponse struct {
	Credentials  []CredentialResponse `json:"credentials"`
	CheckInToken TokenResponse        `json:"checkInToken"`
}

// CredentialVerificationResponse is the outcome of an online verification by id.
type CredentialVerificationResponse struct {
	CredentialID  string              `json:"credentialId"`
	Valid         bool                `json:"valid"`
	Decision      domain.Decision     `json:"decision"`
	Reason        string              `json:"reason,omitempty"`
	UsedThisMonth int                 `json:"usedThisMonth"`
	UsesRemaining *int                `json:"usesRemaining,omitempty"`
	Credential    *CredentialResponse `json:"credential,omitempty"`
}

// ToBenefitClaims converts the request shape into domain claims.
func (b BenefitRequest) ToBenefitClaims() domain.BenefitClaims {
	return domain.BenefitClaims{
		ID:              b.ID,
		Name:            b.Name,
		Type:            b.Type,
		MaxUsesPerMonth: b.MaxUsesPerMonth,
		Access:          b.Access,
		Class:           b.Class,
		Training:        b.Training,
		Amenity:         b.Amenity,
		GuestPass:       b.GuestPass,
	}
}

// ToGymInfo converts the request shape into domain gym info.
func (g GymRequest) ToGymInfo() domain.GymInfo {
	return domain.GymInfo{ID: g.ID, Name: g.Name, Location: g.Location}
}
