/**
 * @description
 * This file implements the data access layer for group memberships. The
 * provisioning workflow only ever creates pending memberships as a side
 * effect of a group-targeted referral; approval happens elsewhere.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver and connection pool manager.
 */
package store

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/VineMe-App/vineme-backend/internal/domain"
)

// MembershipRepository defines the membership storage operations used by
// the provisioning workflow.
type MembershipRepository interface {
	HasMembership(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	CreateMembership(ctx context.Context, membership *domain.GroupMembership) error
}

// PostgresMembershipRepository is the PostgreSQL implementation of MembershipRepository.
type PostgresMembershipRepository struct {
	db *pgxpool.Pool
}

// NewPostgresMembershipRepository creates a new instance of PostgresMembershipRepository.
func NewPostgresMembershipRepository(db *pgxpool.Pool) *PostgresMembershipRepository {
	return &PostgresMembershipRepository{db: db}
}

// EnsureMembershipsTable creates the group_memberships table if missing.
func (r *PostgresMembershipRepository) EnsureMembershipsTable(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS group_memberships (
            id UUID PRIMARY KEY,
            group_id UUID NOT NULL,
            user_id UUID NOT NULL,
            referral_id UUID,
            role TEXT NOT NULL DEFAULT 'member',
            status TEXT NOT NULL DEFAULT 'pending',
            journey_status TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            UNIQUE (group_id, user_id)
        )
    `
	_, err := r.db.Exec(ctx, query)
	return err
}

// HasMembership reports whether any membership row exists for the
// (group, user) pair, regardless of status.
func (r *PostgresMembershipRepository) HasMembership(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM group_memberships WHERE group_id = $1 AND user_id = $2)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&exists); err != nil {
		log.Printf("Error checking membership for group %s user %s: %v", groupID, userID, err)
		return false, err
	}
	return exists, nil
}

// CreateMembership inserts a membership row.
func (r *PostgresMembershipRepository) CreateMembership(ctx context.Context, membership *domain.GroupMembership) error {
	query := `
        INSERT INTO group_memberships (id, group_id, user_id, referral_id, role, status, journey_status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	_, err := r.db.Exec(ctx, query,
		membership.ID, membership.GroupID, membership.UserID, membership.ReferralID,
		membership.Role, membership.Status, membership.JourneyStatus, membership.CreatedAt,
	)
	if err != nil {
		log.Printf("Error creating membership for group %s user %s: %v", membership.GroupID, membership.UserID, err)
		return err
	}
	return nil
}
