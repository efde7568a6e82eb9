package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/credential-service/internal/domain"
)

// CredentialStore persists issued credentials.
type CredentialStore interface {
	Save(ctx context.Context, cred *domain.Credential) error
	Get(ctx context.Context, id string) (*domain.Credential, error)
	SetStatus(ctx context.Context, id string, status domain.CredentialStatus, reason *string, at time.Time) error
}

// ReferenceTokenStore persists reference tokens. Get never filters on expiry; callers decide.
type ReferenceTokenStore interface {
	Create(ctx context.Context, tok *domain.ReferenceToken) error
	Get(ctx context.Context, token string) (*domain.ReferenceToken, error)
	// Consume marks a live token redeemed. Returns ErrExpired past expiry and ErrConflict
	// if it was already redeemed.
	Consume(ctx context.Context, token string, at time.Time) (*domain.ReferenceToken, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// UsageLog counts check-ins per benefit, holder and month.
type UsageLog interface {
	CountThisMonth(ctx context.Context, benefitID, holderDID, period string) (int, error)
	// Record applies a single conditional increment and returns the new count.
	Record(ctx context.Context, rec domain.UsageRecord) (int, error)
	// RecordCheckIns applies every increment or none; ErrUsageExceeded aborts the whole batch.
	RecordCheckIns(ctx context.Context, recs []domain.UsageRecord) ([]int, error)
}

const pgUniqueViolation = "23505"

// mapPgError translates driver errors to domain sentinels.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.ErrNotFound
	case errors.Is(err, domain.ErrUsageExceeded), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrConflict):
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrConflict, pgErr.ConstraintName)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
