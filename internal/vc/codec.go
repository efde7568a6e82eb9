// Package vc encodes credentials as Ed25519-signed VC-JWTs and verifies them.
package vc

import (
	"crypto"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/keys"
)

const (
	TypeVerifiableCredential = "VerifiableCredential"
	TypeGymMembership        = "GymMembershipCredential"
	contextV2                = "https://www.w3.org/ns/credentials/v2"
)

// Context lists the JSON-LD contexts placed on every credential.
var Context = []string{contextV2, "https://gym.example/credentials/v1"}

// Payload is the vc claim of the signed token.
type Payload struct {
	Context           []string             `json:"@context"`
	Type              []string             `json:"type"`
	ValidFrom         string               `json:"validFrom"`
	ValidUntil        string               `json:"validUntil"`
	CredentialSubject domain.SubjectClaims `json:"credentialSubject"`
}

// Claims is the full JWT payload.
type Claims struct {
	VC Payload `json:"vc"`
	jwt.RegisteredClaims
}

// Verified is a token whose signature and issuer have been checked.
type Verified struct {
	Claims  *Claims
	Header  map[string]any
	Payload map[string]any
}

// CredentialID returns the jti claim.
func (v *Verified) CredentialID() string {
	return v.Claims.ID
}

// Types builds the type list for a benefit.
func Types(benefit domain.BenefitType) []string {
	return []string{TypeVerifiableCredential, TypeGymMembership, benefit.CredentialTypeName()}
}

// Codec signs and verifies credentials for a single issuer.
type Codec struct {
	issuer string
	keyID  string
	signer crypto.Signer
	public ed25519.PublicKey
	parser *jwt.Parser
}

// NewCodec builds a codec able to sign and verify.
func NewCodec(km *keys.KeyMaterial) *Codec {
	c := NewVerifier(km.PublicKey(), km.IssuerDID())
	c.signer = keySigner{km: km}
	return c
}

// keySigner routes JWS signing through KeyMaterial.Sign so the private key never leaves keys.
type keySigner struct {
	km *keys.KeyMaterial
}

func (s keySigner) Public() crypto.PublicKey {
	return s.km.PublicKey()
}

// Sign signs the raw message; Ed25519 takes no pre-hash, so opts must be crypto.Hash(0).
func (s keySigner) Sign(_ io.Reader, msg []byte, opts crypto.SignerOpts) ([]byte, error) {
	if opts != nil && opts.HashFunc() != crypto.Hash(0) {
		return nil, errors.New("vc: ed25519 signs unhashed messages only")
	}
	return s.km.Sign(msg)
}

// NewVerifier builds a verify-only codec from the issuer public key, as used offline.
func NewVerifier(public ed25519.PublicKey, issuerDID string) *Codec {
	return &Codec{
		issuer: issuerDID,
		keyID:  keys.KeyIDFor(issuerDID),
		public: public,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithStrictDecoding(),
		),
	}
}

// Issuer returns the issuer DID the codec trusts.
func (c *Codec) Issuer() string {
	return c.issuer
}

// Sign produces the compact JWS for cred. Only the claim fields of cred are read.
func (c *Codec) Sign(cred *domain.Credential) (string, error) {
	if c.signer == nil {
		return "", errors.New("vc: codec has no signing key")
	}
	claims := &Claims{
		VC: Payload{
			Context:           Context,
			Type:              cred.Types,
			ValidFrom:         cred.ValidFrom.UTC().Format(time.RFC3339),
			ValidUntil:        cred.ValidUntil.UTC().Format(time.RFC3339),
			CredentialSubject: cred.Subject,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   cred.Subject.ID,
			ID:        cred.ID,
			IssuedAt:  jwt.NewNumericDate(cred.IssuedAt),
			NotBefore: jwt.NewNumericDate(cred.ValidFrom),
			ExpiresAt: jwt.NewNumericDate(cred.ValidUntil),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = c.keyID
	signed, err := token.SignedString(c.signer)
	if err != nil {
		return "", fmt.Errorf("vc: sign credential: %w", err)
	}
	return signed, nil
}

// Verify checks the signature over the transmitted header and payload bytes, then the issuer.
// Expiry is left to the caller. Every failure is ErrSignatureInvalid.
func (c *Codec) Verify(token string) (*Verified, error) {
	token = strings.TrimSpace(token)
	claims := &Claims{}
	parsed, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.public, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	if !parsed.Valid {
		return nil, domain.ErrSignatureInvalid
	}
	if claims.Issuer != c.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", domain.ErrSignatureInvalid, claims.Issuer)
	}
	if kid, ok := parsed.Header["kid"].(string); ok && kid != c.keyID {
		return nil, fmt.Errorf("%w: unexpected key id %q", domain.ErrSignatureInvalid, kid)
	}
	if claims.Subject != claims.VC.CredentialSubject.ID {
		return nil, fmt.Errorf("%w: subject mismatch", domain.ErrSignatureInvalid)
	}

	payload, err := c.decodePayload(token)
	if err != nil {
		return nil, err
	}
	return &Verified{Claims: claims, Header: parsed.Header, Payload: payload}, nil
}

func (c *Codec) decodePayload(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, domain.ErrSignatureInvalid
	}
	raw, err := c.parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	return payload, nil
}

// ValidityWindow parses the validFrom/validUntil claims.
func (p Payload) ValidityWindow() (time.Time, time.Time, error) {
	from, err := time.Parse(time.RFC3339, p.ValidFrom)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("vc: validFrom: %w", err)
	}
	until, err := time.Parse(time.RFC3339, p.ValidUntil)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("vc: validUntil: %w", err)
	}
	return from, until, nil
}

// VerifyAt is the offline check: Verify plus the validity window at now, inclusive on both ends.
// The verified token is returned alongside ErrExpired so callers can still display it.
func (c *Codec) VerifyAt(token string, now time.Time) (*Verified, error) {
	v, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	from, until, err := v.Claims.VC.ValidityWindow()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSignatureInvalid, err)
	}
	if now.Before(from) || now.After(until) {
		return v, fmt.Errorf("%w: outside %s..%s", domain.ErrExpired, v.Claims.VC.ValidFrom, v.Claims.VC.ValidUntil)
	}
	return v, nil
}
