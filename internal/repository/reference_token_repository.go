package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/credential-service/internal/domain"
)

type referenceTokenRepository struct {
	pool *pgxpool.Pool
}

// NewReferenceTokenRepository builds the Postgres reference token store.
func NewReferenceTokenRepository(pool *pgxpool.Pool) ReferenceTokenStore {
	return &referenceTokenRepository{pool: pool}
}

func (r *referenceTokenRepository) Create(ctx context.Context, tok *domain.ReferenceToken) error {
	const query = `
        INSERT INTO reference_tokens (token, kind, credential_ids, created_at, expires_at)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := r.pool.Exec(ctx, query,
		tok.Token,
		tok.Kind,
		tok.CredentialIDs,
		tok.CreatedAt,
		tok.ExpiresAt,
	)
	return mapPgError(err)
}

func (r *referenceTokenRepository) Get(ctx context.Context, token string) (*domain.ReferenceToken, error) {
	const query = `
        SELECT token, kind, credential_ids, created_at, expires_at, consumed_at
        FROM reference_tokens WHERE token=$1`
	var tok domain.ReferenceToken
	if err := r.pool.QueryRow(ctx, query, token).Scan(
		&tok.Token,
		&tok.Kind,
		&tok.CredentialIDs,
		&tok.CreatedAt,
		&tok.ExpiresAt,
		&tok.ConsumedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	return &tok, nil
}

func (r *referenceTokenRepository) Consume(ctx context.Context, token string, at time.Time) (*domain.ReferenceToken, error) {
	const query = `
        UPDATE reference_tokens SET consumed_at=$2
        WHERE token=$1 AND consumed_at IS NULL AND expires_at >= $2
        RETURNING token, kind, credential_ids, created_at, expires_at, consumed_at`
	var tok domain.ReferenceToken
	err := r.pool.QueryRow(ctx, query, token, at).Scan(
		&tok.Token,
		&tok.Kind,
		&tok.CredentialIDs,
		&tok.CreatedAt,
		&tok.ExpiresAt,
		&tok.ConsumedAt,
	)
	if err == nil {
		return &tok, nil
	}
	if err = mapPgError(err); !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	existing, err := r.Get(ctx, token)
	if err != nil {
		return nil, err
	}
	if existing.ConsumedAt != nil {
		return nil, domain.ErrConflict
	}
	return nil, domain.ErrExpired
}

func (r *referenceTokenRepository) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM reference_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapPgError(err)
	}
	return cmd.RowsAffected(), nil
}
