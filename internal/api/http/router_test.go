package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/credential-service/internal/api/http/handlers"
	"github.com/spec-kit/credential-service/internal/auth"
	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/events"
	"github.com/spec-kit/credential-service/internal/keys"
	"github.com/spec-kit/credential-service/internal/observability"
	"github.com/spec-kit/credential-service/internal/repository/memory"
	"github.com/spec-kit/credential-service/internal/service"
	"github.com/spec-kit/credential-service/internal/vc"
)

const (
	testIssuer   = "did:web:gym.example"
	testAdminKey = "admin-secret"
)

type apiHarness struct {
	app   *fiber.App
	clock clockwork.FakeClock
	usage *memory.UsageLog
}

func newAPIHarness(t *testing.T, ratePerSecond int) *apiHarness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC))
	km, err := keys.Generate(testIssuer)
	require.NoError(t, err)
	hash, err := auth.HashAPIKey(testAdminKey, bcrypt.MinCost)
	require.NoError(t, err)

	codec := vc.NewCodec(km)
	credentials := memory.NewCredentialStore()
	usage := memory.NewUsageLog()
	dispatcher := events.NewInMemoryDispatcher()
	metrics := observability.NewMetrics()

	broker := service.NewTokenBroker(service.TokenBrokerDependencies{
		Store: memory.NewTokenStore(),
		Clock: clock,
	})
	issuer := service.NewIssuerService(service.IssuerDependencies{
		Credentials: credentials, Tokens: broker, Codec: codec, Dispatcher: dispatcher, Clock: clock,
	})
	verifier := service.NewVerificationService(service.VerificationDependencies{
		Credentials: credentials, Usage: usage, Tokens: broker, Codec: codec,
		Dispatcher: dispatcher, Clock: clock, Metrics: metrics,
	})
	shares := service.NewShareService(service.ShareDependencies{
		Credentials: credentials, Tokens: broker, Verifier: verifier,
	})

	app := fiber.New()
	logger := zap.NewNop()
	RegisterMiddlewares(app, logger, metrics, MiddlewareConfig{Timeout: 5 * time.Second})
	RegisterRoutes(app, RouteConfig{
		Health:      handlers.NewHealthHandler("credential-service", "test", nil),
		CheckIn:     handlers.NewCheckInHandler(verifier, broker),
		Verify:      handlers.NewVerifyHandler(verifier),
		Credentials: handlers.NewCredentialsHandler(issuer, verifier, clock),
		Shares:      handlers.NewSharesHandler(shares, clock),
		Issuer:      handlers.NewIssuerHandler(km),
		AdminGuard:  auth.NewAdminGuard(hash, logger),
		RateLimiter: NewIPRateLimiter(ratePerSecond, ratePerSecond, clock),
		Metrics:     metrics,
	})
	return &apiHarness{app: app, clock: clock, usage: usage}
}

func (h *apiHarness) do(t *testing.T, method, path string, body any, admin bool) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set(auth.AdminKeyHeader, testAdminKey)
	}
	resp, err := h.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func membershipBody() map[string]any {
	return map[string]any{
		"holderDid":    "did:example:alice",
		"holderName":   "Alice",
		"membershipId": "mem-1",
		"gym":          map[string]any{"id": "gym-1", "name": "Downtown"},
		"benefits": []map[string]any{
			{"id": "access", "name": "Gym access", "type": "gym_access"},
			{"id": "yoga", "name": "Yoga", "type": "group_class", "maxUsesPerMonth": 5, "class": map[string]any{"category": "yoga"}},
		},
		"validUntil": "2027-06-15T12:00:00Z",
	}
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "missing data in %v", body)
	return d
}

func TestAPI_MembershipCheckInEndToEnd(t *testing.T) {
	h := newAPIHarness(t, 0)

	status, body := h.do(t, "POST", "/api/v1/memberships/credentials", membershipBody(), true)
	require.Equal(t, fiber.StatusCreated, status, body)
	issued := data(t, body)
	creds := issued["credentials"].([]any)
	require.Len(t, creds, 2)
	token := issued["checkInToken"].(map[string]any)["token"].(string)
	assert.EqualValues(t, 60, issued["checkInToken"].(map[string]any)["expiresIn"])

	status, body = h.do(t, "POST", "/api/v1/checkin", map[string]any{"token": token}, false)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["success"])
	result := data(t, body)
	assert.Equal(t, "Gym access, Yoga", result["benefitName"])
	assert.Equal(t, "Alice", result["userName"])
	assert.EqualValues(t, 4, result["usesRemaining"])

	period := domain.UsagePeriod(h.clock.Now())
	for _, id := range []string{"access", "yoga"} {
		n, err := h.usage.CountThisMonth(context.Background(), id, "did:example:alice", period)
		require.NoError(t, err)
		assert.Equal(t, 1, n, id)
	}
}

func TestAPI_CheckInFailuresAreStructured(t *testing.T) {
	h := newAPIHarness(t, 0)

	status, body := h.do(t, "POST", "/api/v1/checkin", map[string]any{"token": "ZZZZZZZZ"}, false)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, service.ReasonTokenNotFound, body["error"])

	status, body = h.do(t, "POST", "/api/v1/checkin", map[string]any{}, false)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])

	_, body = h.do(t, "POST", "/api/v1/memberships/credentials", membershipBody(), true)
	token := data(t, body)["checkInToken"].(map[string]any)["token"].(string)
	h.clock.Advance(61 * time.Second)
	status, body = h.do(t, "POST", "/api/v1/checkin", map[string]any{"token": token}, false)
	assert.Equal(t, fiber.StatusGone, status)
	assert.Equal(t, service.ReasonTokenExpired, body["error"])
}

func TestAPI_AdminRoutesRequireKey(t *testing.T) {
	h := newAPIHarness(t, 0)
	status, body := h.do(t, "POST", "/api/v1/memberships/credentials", membershipBody(), false)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])

	status, _ = h.do(t, "GET", "/api/v1/issuer", nil, false)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestAPI_RevokeThenVerify(t *testing.T) {
	h := newAPIHarness(t, 0)
	_, body := h.do(t, "POST", "/api/v1/memberships/credentials", membershipBody(), true)
	issued := data(t, body)
	cred := issued["credentials"].([]any)[0].(map[string]any)
	id := cred["id"].(string)
	token := issued["checkInToken"].(map[string]any)["token"].(string)

	status, body := h.do(t, "POST", "/api/v1/credentials/"+id+"/revoke", map[string]any{"reason": "lost phone"}, true)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "revoked", data(t, body)["status"])

	status, body = h.do(t, "POST", "/api/v1/credentials/"+id+"/revoke", nil, true)
	assert.Equal(t, fiber.StatusConflict, status, body)

	status, body = h.do(t, "GET", "/api/v1/credentials/"+id+"/verify", nil, false)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "revoked", data(t, body)["decision"])
	assert.Equal(t, false, data(t, body)["valid"])

	status, body = h.do(t, "POST", "/api/v1/checkin", map[string]any{"token": token}, false)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, domain.DecisionRevoked.Reason(), body["error"])

	status, _ = h.do(t, "GET", "/api/v1/credentials/urn:uuid:missing", nil, false)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAPI_OfflineVerify(t *testing.T) {
	h := newAPIHarness(t, 0)
	_, body := h.do(t, "POST", "/api/v1/memberships/credentials", membershipBody(), true)
	signed := data(t, body)["credentials"].([]any)[0].(map[string]any)["credential"].(string)

	status, body := h.do(t, "POST", "/api/v1/verify", map[string]any{"credential": signed}, false)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["valid"])
	assert.Equal(t, testIssuer, body["payload"].(map[string]any)["iss"])

	raw := []byte(signed)
	idx := len(raw) - 10
	if raw[idx] == 'A' {
		raw[idx] = 'B'
	} else {
		raw[idx] = 'A'
	}
	tampered := string(raw)
	_, body = h.do(t, "POST", "/api/v1/verify", map[string]any{"credential": tampered}, false)
	assert.Equal(t, false, body["valid"])
	assert.Equal(t, domain.DecisionSignatureInvalid.Reason(), body["error"])
	assert.Nil(t, body["payload"])
}

func TestAPI_ShareLink(t *testing.T) {
	h := newAPIHarness(t, 0)
	_, body := h.do(t, "POST", "/api/v1/memberships/credentials", membershipBody(), true)
	id := data(t, body)["credentials"].([]any)[1].(map[string]any)["id"].(string)

	status, body := h.do(t, "POST", "/api/v1/shares", map[string]any{"credentialId": id, "expiresInHours": 2}, true)
	require.Equal(t, fiber.StatusCreated, status, body)
	url := data(t, body)["url"].(string)

	status, body = h.do(t, "GET", url, nil, false)
	require.Equal(t, fiber.StatusOK, status, body)
	verification := data(t, body)["verification"].(map[string]any)
	assert.Equal(t, "valid", verification["decision"])

	h.clock.Advance(2*time.Hour + time.Second)
	status, _ = h.do(t, "GET", url, nil, false)
	assert.Equal(t, fiber.StatusGone, status)
}

func TestAPI_ShareViewerCannotActAsHolder(t *testing.T) {
	h := newAPIHarness(t, 0)
	_, body := h.do(t, "POST", "/api/v1/memberships/credentials", membershipBody(), true)
	id := data(t, body)["credentials"].([]any)[1].(map[string]any)["id"].(string)

	status, body := h.do(t, "POST", "/api/v1/shares", map[string]any{"credentialId": id, "expiresInHours": 48}, true)
	require.Equal(t, fiber.StatusCreated, status, body)
	url := data(t, body)["url"].(string)

	h.clock.Advance(24 * time.Hour)
	status, body = h.do(t, "GET", url, nil, false)
	require.Equal(t, fiber.StatusOK, status, body)
	verification := data(t, body)["verification"].(map[string]any)
	assert.Equal(t, "valid", verification["decision"])
	assert.NotContains(t, verification, "credentialId")
	assert.NotContains(t, verification, "credential")
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), id)

	mint := map[string]any{"credentialIds": []string{id}}
	status, body = h.do(t, "POST", "/api/v1/tokens/checkin", mint, false)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["error"].(map[string]any)["code"])

	status, body = h.do(t, "POST", "/api/v1/tokens/checkin", mint, true)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "checkin", data(t, body)["kind"])
}

func TestAPI_ValidationErrors(t *testing.T) {
	h := newAPIHarness(t, 0)
	bad := membershipBody()
	bad["holderDid"] = "alice"
	status, body := h.do(t, "POST", "/api/v1/memberships/credentials", bad, true)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", body["error"].(map[string]any)["code"])
}

func TestAPI_RateLimitOnCheckIn(t *testing.T) {
	h := newAPIHarness(t, 2)
	for i := 0; i < 2; i++ {
		status, _ := h.do(t, "POST", "/api/v1/checkin", map[string]any{"token": "ZZZZZZZZ"}, false)
		assert.Equal(t, fiber.StatusNotFound, status)
	}
	status, body := h.do(t, "POST", "/api/v1/checkin", map[string]any{"token": "ZZZZZZZZ"}, false)
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "RATE_LIMITED", body["error"].(map[string]any)["code"])

	// Other routes are not limited.
	status, _ = h.do(t, "GET", "/api/v1/issuer", nil, false)
	assert.Equal(t, fiber.StatusOK, status)

	h.clock.Advance(time.Second)
	status, _ = h.do(t, "POST", "/api/v1/checkin", map[string]any{"token": "ZZZZZZZZ"}, false)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	h := newAPIHarness(t, 0)
	status, body := h.do(t, "GET", "/health/ready", nil, false)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	status, _ = h.do(t, "GET", "/metrics", nil, false)
	assert.Equal(t, fiber.StatusOK, status)

	status, body = h.do(t, "GET", "/nope", nil, false)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}
