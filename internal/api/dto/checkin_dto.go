package dto

import (
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
)

// CheckInRequest payload for POST /checkin.
type CheckInRequest struct {
	Token string `json:"token" validate:"required,notblank,max=64"`
}

// MintCheckInTokenRequest payload for POST /tokens/checkin.
type MintCheckInTokenRequest struct {
	CredentialIDs []string `json:"credentialIds" validate:"required,min=1,max=32,dive,required,notblank"`
}

// VerifyRequest payload for POST /verify.
type VerifyRequest struct {
	Credential string `json:"credential" validate:"required,notblank"`
}

// CheckInCredential is one admitted credential on the scanning device display.
type CheckInCredential struct {
	ID            string             `json:"id"`
	BenefitID     string             `json:"benefitId"`
	BenefitName   string             `json:"benefitName"`
	BenefitType   domain.BenefitType `json:"benefitType"`
	ValidUntil    time.Time          `json:"validUntil"`
	UsesRemaining *int               `json:"usesRemaining,omitempty"`
}

// CheckInData is the payload of a successful check-in.
type CheckInData struct {
	Credentials   []CheckInCredential `json:"credentials"`
	BenefitName   string              `json:"benefitName"`
	UserName      string              `json:"userName,omitempty"`
	ExpiryDate    *time.Time          `json:"expiryDate,omitempty"`
	UsesRemaining *int                `json:"usesRemaining,omitempty"`
}

// CheckInResponse is either {success:true,data} or {success:false,error}.
type CheckInResponse struct {
	Success  bool            `json:"success"`
	Data     *CheckInData    `json:"data,omitempty"`
	Decision domain.Decision `json:"decision,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// VerifyResponse is the offline verification result.
type VerifyResponse struct {
	Valid   bool           `json:"valid"`
	Header  map[string]any `json:"header,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	Error   string         `json:"error,omitempty"`
}
