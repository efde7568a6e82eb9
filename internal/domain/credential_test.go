package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredential_EffectiveStatus(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := from.Add(30 * 24 * time.Hour)
	cred := &Credential{Status: CredentialStatusActive, ValidFrom: from, ValidUntil: until}

	assert.Equal(t, CredentialStatusExpired, cred.EffectiveStatus(from.Add(-time.Second)))
	assert.Equal(t, CredentialStatusActive, cred.EffectiveStatus(from))
	assert.Equal(t, CredentialStatusActive, cred.EffectiveStatus(until))
	assert.Equal(t, CredentialStatusExpired, cred.EffectiveStatus(until.Add(time.Second)))

	cred.Status = CredentialStatusRevoked
	assert.Equal(t, CredentialStatusRevoked, cred.EffectiveStatus(until.Add(time.Second)))
}

func TestReferenceToken_ExpiredAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tok := &ReferenceToken{Token: "ABC", ExpiresAt: now.Add(time.Minute), CredentialIDs: []string{"a"}}

	assert.False(t, tok.ExpiredAt(tok.ExpiresAt.Add(-time.Second)))
	assert.False(t, tok.ExpiredAt(tok.ExpiresAt))
	assert.True(t, tok.ExpiredAt(tok.ExpiresAt.Add(time.Second)))

	clone := tok.Clone()
	clone.CredentialIDs[0] = "b"
	assert.Equal(t, "a", tok.CredentialIDs[0])
}

func TestUsagePeriod(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	assert.Equal(t, "2026-02", UsagePeriod(time.Date(2026, 3, 1, 1, 0, 0, 0, loc)))
	assert.Equal(t, "2026-03", UsagePeriod(time.Date(2026, 3, 1, 4, 0, 0, 0, loc)))
}
