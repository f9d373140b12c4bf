/**
 * @description
 * This file defines the referral and group-membership domain models. A
 * referral links an existing member (the referrer) to the account that was
 * provisioned on their behalf, optionally targeting a group. A pending
 * membership row is the side effect of a group-targeted referral.
 *
 * @dependencies
 * - github.com/google/uuid: For entity identifiers.
 *
 * @notes
 * - At most one referral may exist per (referred_user_id, group-or-null)
 *   pair. The database enforces this with a unique index; the service-level
 *   pre-check is advisory only.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MembershipStatus is the lifecycle state of a group membership.
type MembershipStatus string

const (
	MembershipPending MembershipStatus = "pending"
	MembershipActive  MembershipStatus = "active"
	MembershipDenied  MembershipStatus = "denied"
)

// Referral links a referrer to the account provisioned for the person they
// referred. GroupID is nil for general (no target group) referrals.
type Referral struct {
	ID             uuid.UUID  `json:"id"`
	ReferrerID     uuid.UUID  `json:"referrer_id"`
	ReferredUserID uuid.UUID  `json:"referred_user_id"`
	GroupID        *uuid.UUID `json:"group_id,omitempty"`
	Note           string     `json:"note,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// GroupMembership is a user's membership in a group. Memberships created by
// the provisioning workflow start in the pending state and reference the
// referral that produced them.
type GroupMembership struct {
	ID            uuid.UUID        `json:"id"`
	GroupID       uuid.UUID        `json:"group_id"`
	UserID        uuid.UUID        `json:"user_id"`
	ReferralID    *uuid.UUID       `json:"referral_id,omitempty"`
	Role          string           `json:"role"`
	Status        MembershipStatus `json:"status"`
	JourneyStatus string           `json:"journey_status,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}
