package service

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/events"
	"github.com/spec-kit/credential-service/internal/keys"
	"github.com/spec-kit/credential-service/internal/repository"
	"github.com/spec-kit/credential-service/internal/repository/memory"
	"github.com/spec-kit/credential-service/internal/vc"
)

const testIssuer = "did:web:gym.example"

var testStart = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	clock       clockwork.FakeClock
	credentials *memory.CredentialStore
	tokenStore  *memory.TokenStore
	usage       *memory.UsageLog
	dispatcher  events.Dispatcher
	codec       *vc.Codec
	broker      *TokenBroker
	issuer      *IssuerService
	verifier    *VerificationService
	shares      *ShareService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	policy      domain.BundlePolicy
	singleUse   bool
	credentials repository.CredentialStore
	timeout     time.Duration
}

func withPolicy(p domain.BundlePolicy) harnessOption {
	return func(c *harnessConfig) { c.policy = p }
}

func withSingleUse() harnessOption {
	return func(c *harnessConfig) { c.singleUse = true }
}

func withCredentialStore(store repository.CredentialStore, timeout time.Duration) harnessOption {
	return func(c *harnessConfig) {
		c.credentials = store
		c.timeout = timeout
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{policy: domain.BundleAllOrNothing, timeout: 3 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	km, err := keys.Generate(testIssuer)
	require.NoError(t, err)

	h := &harness{
		clock:       clockwork.NewFakeClockAt(testStart),
		credentials: memory.NewCredentialStore(),
		tokenStore:  memory.NewTokenStore(),
		usage:       memory.NewUsageLog(),
		dispatcher:  events.NewInMemoryDispatcher(),
		codec:       vc.NewCodec(km),
	}
	var credStore repository.CredentialStore = h.credentials
	if cfg.credentials != nil {
		credStore = cfg.credentials
	}

	h.broker = NewTokenBroker(TokenBrokerDependencies{
		Store: h.tokenStore,
		Clock: h.clock,
		Config: TokenBrokerConfig{
			CheckInTTL: 60 * time.Second,
			SingleUse:  cfg.singleUse,
		},
	})
	h.issuer = NewIssuerService(IssuerDependencies{
		Credentials: h.credentials,
		Tokens:      h.broker,
		Codec:       h.codec,
		Dispatcher:  h.dispatcher,
		Clock:       h.clock,
	})
	h.verifier = NewVerificationService(VerificationDependencies{
		Credentials: credStore,
		Usage:       h.usage,
		Tokens:      h.broker,
		Codec:       h.codec,
		Dispatcher:  h.dispatcher,
		Clock:       h.clock,
		Config: VerificationConfig{
			CheckInTimeout: cfg.timeout,
			BundlePolicy:   cfg.policy,
		},
	})
	h.shares = NewShareService(ShareDependencies{
		Credentials: h.credentials,
		Tokens:      h.broker,
		Verifier:    h.verifier,
	})
	return h
}

func benefit(id string, typ domain.BenefitType, limit int) domain.BenefitClaims {
	b := domain.BenefitClaims{ID: id, Name: id, Type: typ, MaxUsesPerMonth: limit}
	switch typ {
	case domain.BenefitGroupClass:
		b.Class = &domain.ClassDetails{Category: "yoga"}
	case domain.BenefitAmenity:
		b.Amenity = &domain.AmenityDetails{Amenity: "sauna"}
	}
	return b
}

func subject(b domain.BenefitClaims) domain.SubjectClaims {
	return domain.SubjectClaims{
		ID:           "did:example:holder-1",
		HolderName:   "Ada Lovelace",
		MembershipID: "mem-1",
		Benefit:      b,
		Gym:          domain.GymInfo{ID: "gym-1", Name: "Downtown"},
	}
}

func (h *harness) issue(t *testing.T, b domain.BenefitClaims) *domain.Credential {
	t.Helper()
	cred, err := h.issuer.Issue(context.Background(), IssueInput{
		Subject:    subject(b),
		ValidUntil: testStart.Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	return cred
}

// blockingCredentialStore waits for the context before answering reads.
type blockingCredentialStore struct {
	repository.CredentialStore
}

func (s blockingCredentialStore) Get(ctx context.Context, _ string) (*domain.Credential, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingCredentialStore fails every read.
type failingCredentialStore struct {
	repository.CredentialStore
	err error
}

func (s failingCredentialStore) Get(context.Context, string) (*domain.Credential, error) {
	return nil, s.err
}
