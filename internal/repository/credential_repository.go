package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/credential-service/internal/domain"
)

type credentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository builds the Postgres credential store.
func NewCredentialRepository(pool *pgxpool.Pool) CredentialStore {
	return &credentialRepository{pool: pool}
}

func (r *credentialRepository) Save(ctx context.Context, cred *domain.Credential) error {
	subject, err := json.Marshal(cred.Subject)
	if err != nil {
		return fmt.Errorf("marshal subject: %w", err)
	}
	const query = `
        INSERT INTO credentials (id, issuer, types, holder_did, benefit_id, subject, signed_token,
            status, revocation_reason, revoked_at, valid_from, valid_until, issued_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`
	_, err = r.pool.Exec(ctx, query,
		cred.ID,
		cred.Issuer,
		cred.Types,
		cred.HolderDID(),
		cred.BenefitID(),
		subject,
		cred.SignedToken,
		cred.Status,
		cred.RevocationReason,
		cred.RevokedAt,
		cred.ValidFrom,
		cred.ValidUntil,
		cred.IssuedAt,
	)
	return mapPgError(err)
}

func (r *credentialRepository) Get(ctx context.Context, id string) (*domain.Credential, error) {
	const query = `
        SELECT id, issuer, types, subject, signed_token, status, revocation_reason, revoked_at,
            valid_from, valid_until, issued_at
        FROM credentials WHERE id=$1`
	var (
		cred    domain.Credential
		subject []byte
	)
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&cred.ID,
		&cred.Issuer,
		&cred.Types,
		&subject,
		&cred.SignedToken,
		&cred.Status,
		&cred.RevocationReason,
		&cred.RevokedAt,
		&cred.ValidFrom,
		&cred.ValidUntil,
		&cred.IssuedAt,
	); err != nil {
		return nil, mapPgError(err)
	}
	if err := json.Unmarshal(subject, &cred.Subject); err != nil {
		return nil, fmt.Errorf("decode subject for %s: %w", id, err)
	}
	return &cred, nil
}

func (r *credentialRepository) SetStatus(ctx context.Context, id string, status domain.CredentialStatus, reason *string, at time.Time) error {
	const query = `
        UPDATE credentials SET status=$2, revocation_reason=$3, revoked_at=$4
        WHERE id=$1 AND status <> $2`
	cmd, err := r.pool.Exec(ctx, query, id, status, reason, at)
	if err != nil {
		return mapPgError(err)
	}
	if cmd.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM credentials WHERE id=$1)`, id).Scan(&exists); err != nil {
		return mapPgError(err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return fmt.Errorf("%w: credential already %s", domain.ErrConflict, status)
}
