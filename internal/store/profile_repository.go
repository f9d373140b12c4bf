/**
 * @description
 * This file implements the data access layer for user profiles. The
 * profiles table is one-to-one with the identity provider's auth users and
 * carries church/service affiliation, the newcomer flag, and the
 * "could not find a group" follow-up markers.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver and connection pool manager.
 *
 * @notes
 * - Profiles are created at most once per auth user and never deleted by
 *   this service; rollback on provisioning failure removes the auth user,
 *   not the profile row.
 */
package store

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VineMe-App/vineme-backend/internal/domain"
)

// ProfileRepository defines the profile storage operations used by the
// provisioning workflow and the follow-up sweeper.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error)
	CreateProfile(ctx context.Context, profile *domain.Profile) error
	MarkCannotFindGroup(ctx context.Context, userID uuid.UUID, at time.Time) error
	ListUnplacedProfiles(ctx context.Context, flaggedBefore time.Time) ([]domain.Profile, error)
}

// PostgresProfileRepository is the PostgreSQL implementation of ProfileRepository.
type PostgresProfileRepository struct {
	db *pgxpool.Pool
}

// NewPostgresProfileRepository creates a new instance of PostgresProfileRepository.
func NewPostgresProfileRepository(db *pgxpool.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

// EnsureProfilesTable creates the profiles table if it does not exist yet.
func (r *PostgresProfileRepository) EnsureProfilesTable(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS profiles (
            id UUID PRIMARY KEY,
            first_name TEXT NOT NULL DEFAULT '',
            last_name TEXT NOT NULL DEFAULT '',
            email TEXT NOT NULL DEFAULT '',
            phone TEXT,
            church_id UUID,
            service_id UUID,
            newcomer BOOLEAN NOT NULL DEFAULT FALSE,
            onboarding_complete BOOLEAN NOT NULL DEFAULT FALSE,
            cannot_find_group BOOLEAN NOT NULL DEFAULT FALSE,
            cannot_find_group_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )
    `
	_, err := r.db.Exec(ctx, query)
	return err
}

// GetProfile loads a single profile by its auth user ID.
func (r *PostgresProfileRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*domain.Profile, error) {
	query := `
        SELECT id, first_name, last_name, email, phone, church_id, service_id,
               newcomer, onboarding_complete, cannot_find_group, cannot_find_group_at,
               created_at, updated_at
        FROM profiles
        WHERE id = $1
    `
	var p domain.Profile
	row := r.db.QueryRow(ctx, query, userID)
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
		&p.ChurchID, &p.ServiceID, &p.Newcomer, &p.OnboardingComplete,
		&p.CannotFindGroup, &p.CannotFindGroupAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		log.Printf("Error fetching profile %s: %v", userID, err)
		return nil, err
	}
	return &p, nil
}

// CreateProfile inserts a new profile row. The caller is responsible for
// rolling back the auth user if this fails for a freshly created account.
func (r *PostgresProfileRepository) CreateProfile(ctx context.Context, profile *domain.Profile) error {
	query := `
        INSERT INTO profiles (id, first_name, last_name, email, phone, church_id, service_id, newcomer, onboarding_complete)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := r.db.Exec(ctx, query,
		profile.ID, profile.FirstName, profile.LastName, profile.Email, profile.Phone,
		profile.ChurchID, profile.ServiceID, profile.Newcomer, profile.OnboardingComplete,
	)
	if err != nil {
		log.Printf("Error creating profile for user %s: %v", profile.ID, err)
		return err
	}
	return nil
}

// MarkCannotFindGroup flags a profile for staff follow-up when a referral
// was made without a target group.
func (r *PostgresProfileRepository) MarkCannotFindGroup(ctx context.Context, userID uuid.UUID, at time.Time) error {
	query := `
        UPDATE profiles
        SET cannot_find_group = TRUE, cannot_find_group_at = $1, updated_at = NOW()
        WHERE id = $2
    `
	commandTag, err := r.db.Exec(ctx, query, at, userID)
	if err != nil {
		log.Printf("Error flagging cannot_find_group for user %s: %v", userID, err)
		return err
	}
	if commandTag.RowsAffected() == 0 {
		log.Printf("Warning: no profile found for user %s when flagging cannot_find_group", userID)
	}
	return nil
}

// ListUnplacedProfiles returns profiles still flagged cannot_find_group
// whose flag is older than the given cutoff. Used by the follow-up sweeper.
func (r *PostgresProfileRepository) ListUnplacedProfiles(ctx context.Context, flaggedBefore time.Time) ([]domain.Profile, error) {
	query := `
        SELECT id, first_name, last_name, email, phone, church_id, service_id,
               newcomer, onboarding_complete, cannot_find_group, cannot_find_group_at,
               created_at, updated_at
        FROM profiles
        WHERE cannot_find_group = TRUE AND cannot_find_group_at <= $1
        ORDER BY cannot_find_group_at ASC
    `
	rows, err := r.db.Query(ctx, query, flaggedBefore)
	if err != nil {
		log.Printf("Error listing unplaced profiles: %v", err)
		return nil, err
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(
			&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone,
			&p.ChurchID, &p.ServiceID, &p.Newcomer, &p.OnboardingComplete,
			&p.CannotFindGroup, &p.CannotFindGroupAt, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
