/**
 * @description
 * This file implements the data access layer for the contact privacy gate:
 * a user's sharing preferences, the group-leadership permission check, and
 * the audit log of granted accesses.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5/pgxpool: The PostgreSQL driver and connection pool manager.
 *
 * @notes
 * - Missing privacy rows default to everything-off. The gate only opens on
 *   an explicit opt-in.
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

// ContactRepository defines the storage operations behind the contact
// privacy gate.
type ContactRepository interface {
	GetPrivacySettings(ctx context.Context, userID uuid.UUID) (*domain.ContactPrivacySettings, error)
	IsGroupLeader(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
	GetContactDetails(ctx context.Context, userID uuid.UUID) (*domain.ContactDetails, error)
	InsertAccessLog(ctx context.Context, entry *domain.ContactAccessLog) error
}

// PostgresContactRepository is the PostgreSQL implementation of ContactRepository.
type PostgresContactRepository struct {
	db *pgxpool.Pool
}

// NewPostgresContactRepository creates a new instance of PostgresContactRepository.
func NewPostgresContactRepository(db *pgxpool.Pool) *PostgresContactRepository {
	return &PostgresContactRepository{db: db}
}

// EnsureContactTables creates the privacy settings and audit tables.
func (r *PostgresContactRepository) EnsureContactTables(ctx context.Context) error {
	settingsQuery := `
        CREATE TABLE IF NOT EXISTS contact_privacy_settings (
            user_id UUID PRIMARY KEY,
            allow_email_sharing BOOLEAN NOT NULL DEFAULT FALSE,
            allow_phone_sharing BOOLEAN NOT NULL DEFAULT FALSE,
            allow_contact_by_leaders BOOLEAN NOT NULL DEFAULT FALSE
        )
    `
	if _, err := r.db.Exec(ctx, settingsQuery); err != nil {
		return err
	}

	auditQuery := `
        CREATE TABLE IF NOT EXISTS contact_access_log (
            id UUID PRIMARY KEY,
            accessor_id UUID NOT NULL,
            accessed_user_id UUID NOT NULL,
            fields TEXT[] NOT NULL,
            access_type TEXT NOT NULL,
            group_id UUID,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )
    `
	_, err := r.db.Exec(ctx, auditQuery)
	return err
}

// GetPrivacySettings loads a user's sharing preferences. A missing row is
// returned as all-false defaults rather than an error.
func (r *PostgresContactRepository) GetPrivacySettings(ctx context.Context, userID uuid.UUID) (*domain.ContactPrivacySettings, error) {
	query := `
        SELECT user_id, allow_email_sharing, allow_phone_sharing, allow_contact_by_leaders
        FROM contact_privacy_settings
        WHERE user_id = $1
    `
	var s domain.ContactPrivacySettings
	row := r.db.QueryRow(ctx, query, userID)
	err := row.Scan(&s.UserID, &s.AllowEmailSharing, &s.AllowPhoneSharing, &s.AllowContactByLeader)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.ContactPrivacySettings{UserID: userID}, nil
		}
		log.Printf("Error fetching privacy settings for user %s: %v", userID, err)
		return nil, err
	}
	return &s, nil
}

// IsGroupLeader reports whether the user holds an active leader role in the
// group.
func (r *PostgresContactRepository) IsGroupLeader(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	query := `
        SELECT EXISTS (
            SELECT 1 FROM group_memberships
            WHERE group_id = $1 AND user_id = $2 AND role = 'leader' AND status = 'active'
        )
    `
	var isLeader bool
	if err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&isLeader); err != nil {
		log.Printf("Error checking leadership for group %s user %s: %v", groupID, userID, err)
		return false, err
	}
	return isLeader, nil
}

// GetContactDetails loads the contact fields from the profile row.
func (r *PostgresContactRepository) GetContactDetails(ctx context.Context, userID uuid.UUID) (*domain.ContactDetails, error) {
	query := `SELECT email, phone FROM profiles WHERE id = $1`
	var email *string
	var phone *string
	if err := r.db.QueryRow(ctx, query, userID).Scan(&email, &phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		log.Printf("Error fetching contact details for user %s: %v", userID, err)
		return nil, err
	}
	return &domain.ContactDetails{Email: email, Phone: phone}, nil
}

// InsertAccessLog records one granted contact access.
func (r *PostgresContactRepository) InsertAccessLog(ctx context.Context, entry *domain.ContactAccessLog) error {
	query := `
        INSERT INTO contact_access_log (id, accessor_id, accessed_user_id, fields, access_type, group_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.AccessorID, entry.AccessedUserID, entry.Fields,
		entry.AccessType, entry.GroupID, entry.CreatedAt,
	)
	if err != nil {
		log.Printf("Error writing contact access log for accessor %s: %v", entry.AccessorID, err)
		return err
	}
	return nil
}
