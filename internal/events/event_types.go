package events

import (
	"time"

	"github.com/spec-kit/credential-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCredentialIssued  EventType = "credential.issued"
	EventCredentialRevoked EventType = "credential.revoked"
	EventCheckInAccepted   EventType = "checkin.accepted"
	EventCheckInDenied     EventType = "checkin.denied"
)

// AllTypes lists every event type in publication order of the credential lifecycle.
var AllTypes = []EventType{
	EventCredentialIssued,
	EventCredentialRevoked,
	EventCheckInAccepted,
	EventCheckInDenied,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Subject   string      `json:"subject"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CredentialIssuedPayload payload.
type CredentialIssuedPayload struct {
	CredentialID string             `json:"credential_id"`
	HolderDID    string             `json:"holder_did"`
	BenefitID    string             `json:"benefit_id"`
	BenefitType  domain.BenefitType `json:"benefit_type"`
	ValidUntil   time.Time          `json:"valid_until"`
	ReissuedFrom string             `json:"reissued_from,omitempty"`
}

// CredentialRevokedPayload payload.
type CredentialRevokedPayload struct {
	CredentialID string  `json:"credential_id"`
	Reason       *string `json:"reason,omitempty"`
}

// CheckInPayload is shared by accepted and denied check-ins. The token itself is never included.
type CheckInPayload struct {
	CredentialIDs []string        `json:"credential_ids"`
	Admitted      []string        `json:"admitted,omitempty"`
	Decision      domain.Decision `json:"decision"`
	Reason        string          `json:"reason,omitempty"`
}
