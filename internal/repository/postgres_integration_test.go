//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/persistence"
	"github.com/spec-kit/credential-service/internal/repository"
	"github.com/spec-kit/credential-service/internal/testutil/containers"
	"github.com/spec-kit/credential-service/migrations"
)

type PostgresStoreSuite struct {
	suite.Suite
	pool        *pgxpool.Pool
	credentials repository.CredentialStore
	tokens      repository.ReferenceTokenStore
	usage       repository.UsageLog
	now         time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pool = containers.NewPostgres(s.T())
	s.credentials = repository.NewCredentialRepository(s.pool)
	s.tokens = repository.NewReferenceTokenRepository(s.pool)
	s.usage = repository.NewUsageRepository(s.pool)
	s.now = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := containers.TruncateTables(context.Background(), s.pool,
		"checkin_events", "usage_counters", "reference_tokens", "credentials")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) saveCredential(id string, limit int) *domain.Credential {
	cred := &domain.Credential{
		ID:     id,
		Issuer: "did:web:gym.example",
		Types:  []string{"VerifiableCredential", "GymMembershipCredential"},
		Subject: domain.SubjectClaims{
			ID:           "did:example:holder",
			HolderName:   "Holder",
			MembershipID: "mem-1",
			Benefit: domain.BenefitClaims{
				ID: "yoga", Name: "Yoga", Type: domain.BenefitGroupClass, MaxUsesPerMonth: limit,
				Class: &domain.ClassDetails{Category: "yoga"},
			},
			Gym:        domain.GymInfo{ID: "gym-1", Name: "Downtown"},
			Extensions: map[string]string{"tier": "gold"},
		},
		SignedToken: "header.payload.sig",
		Status:      domain.CredentialStatusActive,
		ValidFrom:   s.now,
		ValidUntil:  s.now.AddDate(1, 0, 0),
		IssuedAt:    s.now,
	}
	s.Require().NoError(s.credentials.Save(context.Background(), cred))
	return cred
}

func (s *PostgresStoreSuite) TestCredentialRoundTripAndRevoke() {
	ctx := context.Background()
	cred := s.saveCredential("urn:uuid:pg-1", 8)
	s.ErrorIs(s.credentials.Save(ctx, cred), domain.ErrConflict)

	got, err := s.credentials.Get(ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal(cred.Subject, got.Subject)
	s.Equal(cred.Types, got.Types)
	s.True(cred.ValidUntil.Equal(got.ValidUntil))

	reason := "lost"
	s.Require().NoError(s.credentials.SetStatus(ctx, cred.ID, domain.CredentialStatusRevoked, &reason, s.now))
	s.ErrorIs(s.credentials.SetStatus(ctx, cred.ID, domain.CredentialStatusRevoked, &reason, s.now), domain.ErrConflict)
	s.ErrorIs(s.credentials.SetStatus(ctx, "urn:uuid:none", domain.CredentialStatusRevoked, nil, s.now), domain.ErrNotFound)

	got, err = s.credentials.Get(ctx, cred.ID)
	s.Require().NoError(err)
	s.Equal(domain.CredentialStatusRevoked, got.Status)
	s.Equal(reason, *got.RevocationReason)

	_, err = s.credentials.Get(ctx, "urn:uuid:none")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresStoreSuite) TestReferenceTokenLifecycle() {
	ctx := context.Background()
	tok := &domain.ReferenceToken{
		Token:         "ABCDEFGHJK",
		Kind:          domain.TokenKindCheckIn,
		CredentialIDs: []string{"a", "b"},
		CreatedAt:     s.now,
		ExpiresAt:     s.now.Add(time.Minute),
	}
	s.Require().NoError(s.tokens.Create(ctx, tok))
	s.ErrorIs(s.tokens.Create(ctx, tok), domain.ErrConflict)

	got, err := s.tokens.Get(ctx, tok.Token)
	s.Require().NoError(err)
	s.Equal(tok.CredentialIDs, got.CredentialIDs)
	s.Nil(got.ConsumedAt)

	_, err = s.tokens.Consume(ctx, tok.Token, s.now.Add(2*time.Minute))
	s.ErrorIs(err, domain.ErrExpired)
	_, err = s.tokens.Consume(ctx, tok.Token, s.now.Add(time.Second))
	s.Require().NoError(err)
	_, err = s.tokens.Consume(ctx, tok.Token, s.now.Add(2*time.Second))
	s.ErrorIs(err, domain.ErrConflict)
	_, err = s.tokens.Consume(ctx, "NOPE", s.now)
	s.ErrorIs(err, domain.ErrNotFound)

	n, err := s.tokens.PurgeExpired(ctx, s.now)
	s.Require().NoError(err)
	s.Zero(n)
	n, err = s.tokens.PurgeExpired(ctx, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.EqualValues(1, n)
	_, err = s.tokens.Get(ctx, tok.Token)
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresStoreSuite) record(credID, benefitID string, limit int) domain.UsageRecord {
	return domain.UsageRecord{
		Event: domain.CheckInEvent{
			ID:           fmt.Sprintf("ev-%d", time.Now().UnixNano()),
			CredentialID: credID,
			BenefitID:    benefitID,
			HolderDID:    "did:example:holder",
			Period:       domain.UsagePeriod(s.now),
			OccurredAt:   s.now,
		},
		Cap: limit,
	}
}

// TestConcurrentCheckInsRespectCap verifies exactly cap increments win under contention.
func (s *PostgresStoreSuite) TestConcurrentCheckInsRespectCap() {
	ctx := context.Background()
	cred := s.saveCredential("urn:uuid:pg-cap", 5)

	var wins atomic.Int32
	var seq atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := s.record(cred.ID, "yoga", 5)
			rec.Event.ID = fmt.Sprintf("ev-cap-%d", seq.Add(1))
			if _, err := s.usage.Record(ctx, rec); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.EqualValues(5, wins.Load())
	count, err := s.usage.CountThisMonth(ctx, "yoga", "did:example:holder", domain.UsagePeriod(s.now))
	s.Require().NoError(err)
	s.Equal(5, count)
}

func (s *PostgresStoreSuite) TestBatchIsAllOrNothing() {
	ctx := context.Background()
	capped := s.saveCredential("urn:uuid:pg-capped", 1)
	open := s.saveCredential("urn:uuid:pg-open", 0)

	first := s.record(capped.ID, "yoga", 1)
	first.Event.ID = "ev-batch-1"
	_, err := s.usage.Record(ctx, first)
	s.Require().NoError(err)

	a := s.record(open.ID, "access", 0)
	a.Event.ID = "ev-batch-2"
	b := s.record(capped.ID, "yoga", 1)
	b.Event.ID = "ev-batch-3"
	_, err = s.usage.RecordCheckIns(ctx, []domain.UsageRecord{a, b})
	s.ErrorIs(err, domain.ErrUsageExceeded)

	count, err := s.usage.CountThisMonth(ctx, "access", "did:example:holder", domain.UsagePeriod(s.now))
	s.Require().NoError(err)
	s.Zero(count, "rolled back with the batch")

	// Uncapped benefits still count up.
	counts, err := s.usage.RecordCheckIns(ctx, []domain.UsageRecord{a})
	s.Require().NoError(err)
	s.Equal([]int{1}, counts)
}

func (s *PostgresStoreSuite) TestMigrationsAreRecordedOnce() {
	ctx := context.Background()
	s.Require().NoError(persistence.RunMigrations(ctx, s.pool, migrations.FS, zap.NewNop()))

	var n int
	s.Require().NoError(s.pool.QueryRow(ctx, `SELECT count(*) FROM schema_migrations`).Scan(&n))
	s.Equal(3, n)
}
