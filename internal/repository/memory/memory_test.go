package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/credential-service/internal/domain"
	"github.com/spec-kit/credential-service/internal/repository"
)

var (
	_ repository.CredentialStore     = (*CredentialStore)(nil)
	_ repository.ReferenceTokenStore = (*TokenStore)(nil)
	_ repository.UsageLog            = (*UsageLog)(nil)
)

func TestCredentialStore_SaveGetRevoke(t *testing.T) {
	ctx := context.Background()
	store := NewCredentialStore()
	cred := &domain.Credential{
		ID:      "urn:uuid:1",
		Status:  domain.CredentialStatusActive,
		Types:   []string{"VerifiableCredential"},
		Subject: domain.SubjectClaims{ID: "did:example:a", Extensions: map[string]string{"k": "v"}},
	}
	require.NoError(t, store.Save(ctx, cred))
	assert.ErrorIs(t, store.Save(ctx, cred), domain.ErrConflict)

	got, err := store.Get(ctx, cred.ID)
	require.NoError(t, err)
	got.Types[0] = "mutated"
	got.Subject.Extensions["k"] = "mutated"

	again, err := store.Get(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, "VerifiableCredential", again.Types[0])
	assert.Equal(t, "v", again.Subject.Extensions["k"])

	reason := "lost card"
	now := time.Now()
	require.NoError(t, store.SetStatus(ctx, cred.ID, domain.CredentialStatusRevoked, &reason, now))
	assert.ErrorIs(t, store.SetStatus(ctx, cred.ID, domain.CredentialStatusRevoked, &reason, now), domain.ErrConflict)
	assert.ErrorIs(t, store.SetStatus(ctx, "missing", domain.CredentialStatusRevoked, nil, now), domain.ErrNotFound)

	revoked, err := store.Get(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CredentialStatusRevoked, revoked.Status)
	require.NotNil(t, revoked.RevocationReason)
	assert.Equal(t, reason, *revoked.RevocationReason)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTokenStore_CreateConsumePurge(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	tok := &domain.ReferenceToken{
		Token:         "ABCDEFGHJK",
		Kind:          domain.TokenKindCheckIn,
		CredentialIDs: []string{"a", "b"},
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Minute),
	}
	require.NoError(t, store.Create(ctx, tok))
	assert.ErrorIs(t, store.Create(ctx, tok), domain.ErrConflict)

	_, err := store.Consume(ctx, tok.Token, now.Add(2*time.Minute))
	assert.ErrorIs(t, err, domain.ErrExpired)

	consumed, err := store.Consume(ctx, tok.Token, now.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, consumed.ConsumedAt)

	_, err = store.Consume(ctx, tok.Token, now.Add(2*time.Second))
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = store.Consume(ctx, "missing", now)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = store.PurgeExpired(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Zero(t, store.Len())
}

func TestTokenStore_ConcurrentConsumeSingleWinner(t *testing.T) {
	ctx := context.Background()
	store := NewTokenStore()
	now := time.Now()
	require.NoError(t, store.Create(ctx, &domain.ReferenceToken{
		Token: "X", Kind: domain.TokenKindCheckIn, CredentialIDs: []string{"a"},
		CreatedAt: now, ExpiresAt: now.Add(time.Minute),
	}))

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, "X", now); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins)
}

func usageRecord(benefit string, limit int) domain.UsageRecord {
	return domain.UsageRecord{
		Event: domain.CheckInEvent{
			ID:        fmt.Sprintf("ev-%s", benefit),
			BenefitID: benefit,
			HolderDID: "did:example:holder",
			Period:    "2026-04",
		},
		Cap: limit,
	}
}

func TestUsageLog_CapIsAtomicUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	log := NewUsageLog()

	var ok, exceeded int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := log.Record(ctx, usageRecord("yoga", 5))
			switch {
			case err == nil:
				atomic.AddInt32(&ok, 1)
			case assert.ErrorIs(t, err, domain.ErrUsageExceeded):
				atomic.AddInt32(&exceeded, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 5, ok)
	assert.EqualValues(t, 95, exceeded)
	count, err := log.CountThisMonth(ctx, "yoga", "did:example:holder", "2026-04")
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Len(t, log.Events(), 5)
}

func TestUsageLog_BatchIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	log := NewUsageLog()
	_, err := log.Record(ctx, usageRecord("sauna", 1))
	require.NoError(t, err)

	_, err = log.RecordCheckIns(ctx, []domain.UsageRecord{usageRecord("yoga", 5), usageRecord("sauna", 1)})
	assert.ErrorIs(t, err, domain.ErrUsageExceeded)

	count, err := log.CountThisMonth(ctx, "yoga", "did:example:holder", "2026-04")
	require.NoError(t, err)
	assert.Zero(t, count)

	counts, err := log.RecordCheckIns(ctx, []domain.UsageRecord{usageRecord("yoga", 5), usageRecord("pool", 0)})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, counts)
}
