package dto

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/credential-service/pkg/util"
)

func validIssueRequest() IssueCredentialRequest {
	return IssueCredentialRequest{
		HolderDID:    "did:example:alice",
		MembershipID: "m-1",
		Gym:          GymRequest{ID: "g-1", Name: "Downtown"},
		Benefit:      BenefitRequest{ID: "b-1", Name: "Gym access", Type: "gym_access"},
		ValidUntil:   time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestValidate_AcceptsValidRequest(t *testing.T) {
	require.NoError(t, Validate(validIssueRequest()))
}

func TestValidate_Failures(t *testing.T) {
	cases := map[string]struct {
		mutate  func(r *IssueCredentialRequest)
		message string
	}{
		"missing holder": {func(r *IssueCredentialRequest) { r.HolderDID = "" }, "holderDid is required"},
		"holder not did": {func(r *IssueCredentialRequest) { r.HolderDID = "alice" }, `holderDid must start with "did:"`},
		"blank gym name": {func(r *IssueCredentialRequest) { r.Gym.Name = "   " }, "name must not be blank"},
		"bad type":       {func(r *IssueCredentialRequest) { r.Benefit.Type = "spa" }, "type must be one of"},
		"negative cap":   {func(r *IssueCredentialRequest) { r.Benefit.MaxUsesPerMonth = -1 }, "maxUsesPerMonth must be at least 0"},
		"no validUntil":  {func(r *IssueCredentialRequest) { r.ValidUntil = time.Time{} }, "validUntil is required"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := validIssueRequest()
			tc.mutate(&req)
			err := Validate(req)
			require.Error(t, err)
			de := apperrors.ToDomainError(err)
			assert.Equal(t, http.StatusBadRequest, de.HTTPStatus)
			assert.Equal(t, "VALIDATION_FAILED", de.Code)
			assert.Contains(t, de.Message, tc.message)
		})
	}
}

func TestValidate_MintTokenBounds(t *testing.T) {
	assert.Error(t, Validate(MintCheckInTokenRequest{}))
	assert.Error(t, Validate(MintCheckInTokenRequest{CredentialIDs: []string{" "}}))
	assert.NoError(t, Validate(MintCheckInTokenRequest{CredentialIDs: []string{"urn:uuid:1"}}))

	ids := make([]string, 33)
	for i := range ids {
		ids[i] = "id"
	}
	assert.Error(t, Validate(MintCheckInTokenRequest{CredentialIDs: ids}))
}
