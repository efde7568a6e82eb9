package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/keys"
	"github.com/spec-kit/credential-service/internal/vc"
)

const issuer = "did:web:gym.example"

var issued = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func signedFixture(t *testing.T) (token, pubPath string) {
	t.Helper()
	km, err := keys.Generate(issuer)
	require.NoError(t, err)
	pemBytes, err := km.PublicKeyPEM()
	require.NoError(t, err)
	pubPath = filepath.Join(t.TempDir(), "issuer.pub.pem")
	require.NoError(t, os.WriteFile(pubPath, pemBytes, 0o600))

	token, err = vc.NewCodec(km).Sign(&domain.Credential{
		ID:     "urn:uuid:0d5a1c1e-93a4-4a3b-8f3e-6a1f0c2b9d10",
		Issuer: issuer,
		Types:  vc.Types(domain.BenefitGymAccess),
		Subject: domain.SubjectClaims{
			ID:           "did:example:bob",
			MembershipID: "m-9",
			Benefit:      domain.BenefitClaims{ID: "access", Name: "Access", Type: domain.BenefitGymAccess},
			Gym:          domain.GymInfo{ID: "g", Name: "Gym"},
		},
		ValidFrom:  issued,
		ValidUntil: issued.AddDate(1, 0, 0),
		IssuedAt:   issued,
	})
	require.NoError(t, err)
	return token, pubPath
}

func at(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestRun_ValidToken(t *testing.T) {
	token, pub := signedFixture(t)
	var out, errOut bytes.Buffer

	code := run([]string{"-pubkey", pub, token}, nil, &out, &errOut, at(issued.Add(time.Hour)))
	require.Equal(t, 0, code, errOut.String())

	var res map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, true, res["valid"])
	assert.Equal(t, "EdDSA", res["header"].(map[string]any)["alg"])
}

func TestRun_FromStdin(t *testing.T) {
	token, pub := signedFixture(t)
	var out bytes.Buffer
	code := run([]string{"-pubkey", pub, "-"}, strings.NewReader(token+"\n"), &out, &bytes.Buffer{}, at(issued))
	assert.Equal(t, 0, code)
}

func TestRun_InvalidAndExpired(t *testing.T) {
	token, pub := signedFixture(t)

	var out bytes.Buffer
	code := run([]string{"-pubkey", pub, "-issuer", "did:web:other.example", token}, nil, &out, &bytes.Buffer{}, at(issued))
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), domain.DecisionSignatureInvalid.Reason())

	out.Reset()
	code = run([]string{"-pubkey", pub, token}, nil, &out, &bytes.Buffer{}, at(issued.AddDate(2, 0, 0)))
	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), domain.DecisionExpired.Reason())
}

func TestRun_Usage(t *testing.T) {
	var errOut bytes.Buffer
	assert.Equal(t, 2, run(nil, nil, &bytes.Buffer{}, &errOut, time.Now))
	assert.Contains(t, errOut.String(), "usage: vc-verify")
}
