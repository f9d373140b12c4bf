/**
 * @description
 * Sentinel errors shared by the repositories, plus the Postgres error
 * translation helper used to map unique-constraint violations onto the
 * duplicate-referral error the workflow layer distinguishes.
 */
package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrDuplicateReferral is returned when a referral already exists for
	// the same (referred user, group) pair, whether detected by the
	// pre-check or by the unique index on insert.
	ErrDuplicateReferral = errors.New("store: duplicate referral")
)

// uniqueViolationCode is the Postgres SQLSTATE for unique_violation.
const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationCode
	}
	return false
}
