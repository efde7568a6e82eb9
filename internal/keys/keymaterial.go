package keys

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

const keyFragment = "#key-1"

// KeyMaterial holds the single issuer keypair. It is built once at startup and never mutated.
type KeyMaterial struct {
	issuerDID string
	private   ed25519.PrivateKey
	public    ed25519.PublicKey
}

// New wraps an existing private key.
func New(private ed25519.PrivateKey, issuerDID string) (*KeyMaterial, error) {
	if len(private) != ed25519.PrivateKeySize {
		return nil, errors.New("keys: invalid ed25519 private key")
	}
	if !strings.HasPrefix(issuerDID, "did:") {
		return nil, fmt.Errorf("keys: issuer %q is not a DID", issuerDID)
	}
	public, ok := private.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("keys: unable to derive public key")
	}
	return &KeyMaterial{issuerDID: issuerDID, private: private, public: public}, nil
}

// Generate creates a throwaway keypair, used by tests and local development.
func Generate(issuerDID string) (*KeyMaterial, error) {
	_, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	return New(private, issuerDID)
}

// LoadFromFiles reads a PKCS#8 private key and a PKIX public key from PEM files
// and checks that they belong together.
func LoadFromFiles(privatePath, publicPath, issuerDID string) (*KeyMaterial, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("keys: read private key: %w", err)
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("keys: parse private key: %w", err)
	}
	private, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("keys: private key is not ed25519")
	}

	km, err := New(private, issuerDID)
	if err != nil {
		return nil, err
	}

	if publicPath == "" {
		return km, nil
	}
	public, err := LoadPublicKey(publicPath)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(public, km.public) {
		return nil, errors.New("keys: public key does not match private key")
	}
	return km, nil
}

// LoadPublicKey reads a PKIX ed25519 public key from a PEM file.
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keys: read public key: %w", err)
	}
	return ParsePublicKeyPEM(raw)
}

// ParsePublicKeyPEM decodes a PKIX ed25519 public key.
func ParsePublicKeyPEM(raw []byte) (ed25519.PublicKey, error) {
	parsed, err := jwt.ParseEdPublicKeyFromPEM(raw)
	if err != nil {
		return nil, fmt.Errorf("keys: parse public key: %w", err)
	}
	public, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("keys: public key is not ed25519")
	}
	return public, nil
}

// Sign signs msg with the issuer private key.
func (k *KeyMaterial) Sign(msg []byte) ([]byte, error) {
	if k == nil || len(k.private) == 0 {
		return nil, errors.New("keys: no private key loaded")
	}
	return ed25519.Sign(k.private, msg), nil
}

// PublicKey returns the issuer verification key.
func (k *KeyMaterial) PublicKey() ed25519.PublicKey {
	return k.public
}

// IssuerDID returns the DID placed in the iss claim.
func (k *KeyMaterial) IssuerDID() string {
	return k.issuerDID
}

// KeyID returns the kid header value.
func (k *KeyMaterial) KeyID() string {
	return KeyIDFor(k.issuerDID)
}

// KeyIDFor derives the kid for an issuer DID.
func KeyIDFor(issuerDID string) string {
	return issuerDID + keyFragment
}

// PublicKeyPEM encodes the public key as a PKIX PEM block.
func (k *KeyMaterial) PublicKeyPEM() ([]byte, error) {
	return MarshalPublicKeyPEM(k.public)
}

// PrivateKeyPEM encodes the private key as PKCS#8 PEM, for writing generated keys to disk.
func (k *KeyMaterial) PrivateKeyPEM() ([]byte, error) {
	return MarshalPrivateKeyPEM(k.private)
}

// JWK returns the public key as an OKP JSON Web Key.
func (k *KeyMaterial) JWK() map[string]string {
	return map[string]string{
		"kty": "OKP",
		"crv": "Ed25519",
		"x":   base64.RawURLEncoding.EncodeToString(k.public),
		"kid": k.KeyID(),
		"alg": "EdDSA",
		"use": "sig",
	}
}

// MarshalPublicKeyPEM encodes an ed25519 public key as PKIX PEM.
func MarshalPublicKeyPEM(public ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// MarshalPrivateKeyPEM encodes an ed25519 private key as PKCS#8 PEM.
func MarshalPrivateKeyPEM(private ed25519.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(private)
	if err != nil {
		return nil, fmt.Errorf("keys: marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
