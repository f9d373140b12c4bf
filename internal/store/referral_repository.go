/**
 * @description
 * This file implements the data access layer for referrals. The referrals
 * table is the authoritative record of who invited whom, and its unique
 * index is the real guard against duplicate referrals: the workflow's
 * pre-check can race with a concurrent insert, so a unique violation on
 * insert is translated to the same ErrDuplicateReferral the pre-check
 * reports.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver and connection pool manager.
 *
 * @notes
 * - Postgres treats NULLs as distinct in unique constraints, so the index
 *   coalesces a NULL group_id to the zero UUID. One general (no group)
 *   referral per referred user, one per targeted group.
 */
package store

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VineMe-App/vineme-backend/internal/domain"
)

// ReferralRepository defines the referral storage operations used by the
// provisioning workflow.
type ReferralRepository interface {
	FindReferral(ctx context.Context, referredUserID uuid.UUID, groupID *uuid.UUID) (*domain.Referral, error)
	CreateReferral(ctx context.Context, referral *domain.Referral) error
}

// PostgresReferralRepository is the PostgreSQL implementation of ReferralRepository.
type PostgresReferralRepository struct {
	db *pgxpool.Pool
}

// NewPostgresReferralRepository creates a new instance of PostgresReferralRepository.
func NewPostgresReferralRepository(db *pgxpool.Pool) *PostgresReferralRepository {
	return &PostgresReferralRepository{db: db}
}

// EnsureReferralsTable creates the referrals table and its dedup index.
func (r *PostgresReferralRepository) EnsureReferralsTable(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS referrals (
            id UUID PRIMARY KEY,
            referrer_id UUID NOT NULL,
            referred_user_id UUID NOT NULL,
            group_id UUID,
            note TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )
    `
	if _, err := r.db.Exec(ctx, query); err != nil {
		return err
	}

	indexQuery := `
        CREATE UNIQUE INDEX IF NOT EXISTS referrals_referred_group_uniq
        ON referrals (referred_user_id, COALESCE(group_id, '00000000-0000-0000-0000-000000000000'::uuid))
    `
	_, err := r.db.Exec(ctx, indexQuery)
	return err
}

// FindReferral looks up an existing referral for the (referred user, group)
// pair. A nil groupID matches the general referral only.
func (r *PostgresReferralRepository) FindReferral(ctx context.Context, referredUserID uuid.UUID, groupID *uuid.UUID) (*domain.Referral, error) {
	query := `
        SELECT id, referrer_id, referred_user_id, group_id, note, created_at
        FROM referrals
        WHERE referred_user_id = $1
          AND COALESCE(group_id, '00000000-0000-0000-0000-000000000000'::uuid) =
              COALESCE($2, '00000000-0000-0000-0000-000000000000'::uuid)
        LIMIT 1
    `
	var ref domain.Referral
	row := r.db.QueryRow(ctx, query, referredUserID, groupID)
	err := row.Scan(&ref.ID, &ref.ReferrerID, &ref.ReferredUserID, &ref.GroupID, &ref.Note, &ref.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		log.Printf("Error finding referral for user %s: %v", referredUserID, err)
		return nil, err
	}
	return &ref, nil
}

// CreateReferral inserts the referral row. A unique violation on the dedup
// index is returned as ErrDuplicateReferral so callers see the same error
// kind regardless of whether the pre-check or the constraint caught it.
func (r *PostgresReferralRepository) CreateReferral(ctx context.Context, referral *domain.Referral) error {
	query := `
        INSERT INTO referrals (id, referrer_id, referred_user_id, group_id, note, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.db.Exec(ctx, query,
		referral.ID, referral.ReferrerID, referral.ReferredUserID,
		referral.GroupID, referral.Note, referral.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateReferral
		}
		log.Printf("Error creating referral for user %s: %v", referral.ReferredUserID, err)
		return err
	}
	return nil
}
