package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/credential-service/internal/domain"
)

// The WHERE clause on the conflict branch is evaluated against the locked row,
// so concurrent check-ins can never push count past the cap.
const incrementUsageQuery = `
        INSERT INTO usage_counters (benefit_id, holder_did, period, count, updated_at)
        VALUES ($1,$2,$3,1,$5)
        ON CONFLICT (benefit_id, holder_did, period) DO UPDATE
        SET count = usage_counters.count + 1, updated_at = EXCLUDED.updated_at
        WHERE $4::int = 0 OR usage_counters.count < $4::int
        RETURNING count`

const insertCheckInQuery = `
        INSERT INTO checkin_events (id, credential_id, benefit_id, holder_did, period, occurred_at)
        VALUES ($1,$2,$3,$4,$5,$6)`

type usageRepository struct {
	pool *pgxpool.Pool
}

// NewUsageRepository builds the Postgres usage log.
func NewUsageRepository(pool *pgxpool.Pool) UsageLog {
	return &usageRepository{pool: pool}
}

func (r *usageRepository) CountThisMonth(ctx context.Context, benefitID, holderDID, period string) (int, error) {
	const query = `
        SELECT count FROM usage_counters
        WHERE benefit_id=$1 AND holder_did=$2 AND period=$3`
	var count int
	err := r.pool.QueryRow(ctx, query, benefitID, holderDID, period).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, mapPgError(err)
	}
	return count, nil
}

func (r *usageRepository) Record(ctx context.Context, rec domain.UsageRecord) (int, error) {
	counts, err := r.RecordCheckIns(ctx, []domain.UsageRecord{rec})
	if err != nil {
		return 0, err
	}
	return counts[0], nil
}

func (r *usageRepository) RecordCheckIns(ctx context.Context, recs []domain.UsageRecord) ([]int, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, mapPgError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	counts := make([]int, 0, len(recs))
	for _, rec := range recs {
		ev := rec.Event
		var count int
		err := tx.QueryRow(ctx, incrementUsageQuery,
			ev.BenefitID,
			ev.HolderDID,
			ev.Period,
			rec.Cap,
			ev.OccurredAt,
		).Scan(&count)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUsageExceeded
		}
		if err != nil {
			return nil, mapPgError(err)
		}
		if _, err := tx.Exec(ctx, insertCheckInQuery,
			ev.ID,
			ev.CredentialID,
			ev.BenefitID,
			ev.HolderDID,
			ev.Period,
			ev.OccurredAt,
		); err != nil {
			return nil, mapPgError(err)
		}
		counts = append(counts, count)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, mapPgError(err)
	}
	return counts, nil
}
