package domain

import "time"

// TokenKind governs the default TTL and resolution rules of a reference token.
type TokenKind string

const (
	TokenKindCheckIn TokenKind = "checkin"
	TokenKindShare   TokenKind = "share"
)

// Valid reports whether k is a known token kind.
func (k TokenKind) Valid() bool {
	return k == TokenKindCheckIn || k == TokenKindShare
}

// ReferenceToken is an opaque, time-bounded handle standing in for one or more credential ids.
// Values are immutable once created; stores hand out copies.
type ReferenceToken struct {
	Token         string
	Kind          TokenKind
	CredentialIDs []string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	ConsumedAt    *time.Time
}

// ExpiredAt reports whether the token is past its expiry at now.
// A token is still live at exactly ExpiresAt.
func (t *ReferenceToken) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Clone returns a deep copy so callers never share the id slice.
func (t *ReferenceToken) Clone() *ReferenceToken {
	if t == nil {
		return nil
	}
	out := *t
	out.CredentialIDs = append([]string(nil), t.CredentialIDs...)
	if t.ConsumedAt != nil {
		consumed := *t.ConsumedAt
		out.ConsumedAt = &consumed
	}
	return &out
}
