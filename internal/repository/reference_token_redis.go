package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/credential-service/internal/domain"
)

const refTokenKeyPrefix = "reftoken:"

// MinRedisRetention is the shortest time a key outlives its token. Without it Redis would drop
// the key at expiry and a late lookup would report not found instead of expired.
const MinRedisRetention = time.Minute

type redisTokenRecord struct {
	Token         string     `json:"token"`
	Kind          string     `json:"kind"`
	CredentialIDs []string   `json:"credentialIds"`
	CreatedAt     time.Time  `json:"createdAt"`
	ExpiresAt     time.Time  `json:"expiresAt"`
	ConsumedAt    *time.Time `json:"consumedAt,omitempty"`
}

type redisTokenRepository struct {
	client    *redis.Client
	retention time.Duration
}

// NewRedisReferenceTokenRepository stores tokens as JSON values. Keys outlive the token by
// retention, floored at MinRedisRetention, so stale lookups still report expired.
func NewRedisReferenceTokenRepository(client *redis.Client, retention time.Duration) ReferenceTokenStore {
	return newRedisTokenRepository(client, retention)
}

func newRedisTokenRepository(client *redis.Client, retention time.Duration) *redisTokenRepository {
	if retention < MinRedisRetention {
		retention = MinRedisRetention
	}
	return &redisTokenRepository{client: client, retention: retention}
}

func (r *redisTokenRepository) keyTTL(tok *domain.ReferenceToken) time.Duration {
	return tok.ExpiresAt.Sub(tok.CreatedAt) + r.retention
}

func refTokenKey(token string) string {
	return refTokenKeyPrefix + token
}

func toRedisRecord(tok *domain.ReferenceToken) redisTokenRecord {
	return redisTokenRecord{
		Token:         tok.Token,
		Kind:          string(tok.Kind),
		CredentialIDs: tok.CredentialIDs,
		CreatedAt:     tok.CreatedAt.UTC(),
		ExpiresAt:     tok.ExpiresAt.UTC(),
		ConsumedAt:    tok.ConsumedAt,
	}
}

func (r redisTokenRecord) toDomain() *domain.ReferenceToken {
	return &domain.ReferenceToken{
		Token:         r.Token,
		Kind:          domain.TokenKind(r.Kind),
		CredentialIDs: r.CredentialIDs,
		CreatedAt:     r.CreatedAt,
		ExpiresAt:     r.ExpiresAt,
		ConsumedAt:    r.ConsumedAt,
	}
}

func (r *redisTokenRepository) Create(ctx context.Context, tok *domain.ReferenceToken) error {
	data, err := json.Marshal(toRedisRecord(tok))
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	ok, err := r.client.SetNX(ctx, refTokenKey(tok.Token), data, r.keyTTL(tok)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: token exists", domain.ErrConflict)
	}
	return nil
}

func (r *redisTokenRepository) Get(ctx context.Context, token string) (*domain.ReferenceToken, error) {
	raw, err := r.client.Get(ctx, refTokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	var rec redisTokenRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	return rec.toDomain(), nil
}

func (r *redisTokenRepository) Consume(ctx context.Context, token string, at time.Time) (*domain.ReferenceToken, error) {
	key := refTokenKey(token)
	var consumed *domain.ReferenceToken

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec redisTokenRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return fmt.Errorf("decode token: %w", err)
		}
		if rec.ConsumedAt != nil {
			return domain.ErrConflict
		}
		if at.After(rec.ExpiresAt) {
			return domain.ErrExpired
		}

		stamp := at.UTC()
		rec.ConsumedAt = &stamp
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal token: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SetArgs(ctx, key, data, redis.SetArgs{KeepTTL: true})
			return nil
		})
		if err != nil {
			return err
		}
		consumed = rec.toDomain()
		return nil
	}, key)

	switch {
	case err == nil:
		return consumed, nil
	case errors.Is(err, redis.TxFailedErr):
		// another caller redeemed the token between WATCH and EXEC
		return nil, domain.ErrConflict
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrExpired):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
}

// PurgeExpired is a no-op: Redis drops keys once their TTL lapses.
func (r *redisTokenRepository) PurgeExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
