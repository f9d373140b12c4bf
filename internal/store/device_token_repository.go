/**
 * @description
 * This file implements the data access layer for registered push device
 * tokens. The push fan-out loads every token for a user and submits them in
 * one batch; expired tokens are reported by the gateway but not pruned here.
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

// DeviceTokenRepository defines the token storage operations used by the
// push fan-out.
type DeviceTokenRepository interface {
	ListDeviceTokens(ctx context.Context, userID uuid.UUID) ([]domain.DeviceToken, error)
}

// PostgresDeviceTokenRepository is the PostgreSQL implementation of DeviceTokenRepository.
type PostgresDeviceTokenRepository struct {
	db *pgxpool.Pool
}

// NewPostgresDeviceTokenRepository creates a new instance of PostgresDeviceTokenRepository.
func NewPostgresDeviceTokenRepository(db *pgxpool.Pool) *PostgresDeviceTokenRepository {
	return &PostgresDeviceTokenRepository{db: db}
}

// EnsureDeviceTokensTable creates the device_tokens table if missing.
func (r *PostgresDeviceTokenRepository) EnsureDeviceTokensTable(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS device_tokens (
            user_id UUID NOT NULL,
            token TEXT NOT NULL,
            platform TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (user_id, token)
        )
    `
	_, err := r.db.Exec(ctx, query)
	return err
}

// ListDeviceTokens returns every registered token for the user.
func (r *PostgresDeviceTokenRepository) ListDeviceTokens(ctx context.Context, userID uuid.UUID) ([]domain.DeviceToken, error) {
	query := `SELECT user_id, token, platform, created_at FROM device_tokens WHERE user_id = $1`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		log.Printf("Error listing device tokens for user %s: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.DeviceToken
	for rows.Next() {
		var t domain.DeviceToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.Platform, &t.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
