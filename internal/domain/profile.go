/**
 * @description
 * This file defines the domain models owned by the community database:
 * user profiles, contact privacy preferences, contact access audit rows,
 * and registered push device tokens.
 *
 * @dependencies
 * - github.com/google/uuid: For entity identifiers.
 *
 * @notes
 * - Profile.ID is the identity provider's auth user ID; the profile row is
 *   one-to-one with the auth account and is never deleted by this service.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Profile is the application-side record for an auth account.
type Profile struct {
	ID                 uuid.UUID  `json:"id"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	Email              string     `json:"email"`
	Phone              *string    `json:"phone,omitempty"`
	ChurchID           *uuid.UUID `json:"church_id,omitempty"`
	ServiceID          *uuid.UUID `json:"service_id,omitempty"`
	Newcomer           bool       `json:"newcomer"`
	OnboardingComplete bool       `json:"onboarding_complete"`
	CannotFindGroup    bool       `json:"cannot_find_group"`
	CannotFindGroupAt  *time.Time `json:"cannot_find_group_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// ContactPrivacySettings holds a user's sharing preferences. All three
// booleans must be satisfied (per requested field) before a leader may see
// contact details.
type ContactPrivacySettings struct {
	UserID               uuid.UUID `json:"user_id"`
	AllowEmailSharing    bool      `json:"allow_email_sharing"`
	AllowPhoneSharing    bool      `json:"allow_phone_sharing"`
	AllowContactByLeader bool      `json:"allow_contact_by_leaders"`
}

// ContactAccessLog records one granted access to a user's contact fields.
type ContactAccessLog struct {
	ID             uuid.UUID  `json:"id"`
	AccessorID     uuid.UUID  `json:"accessor_id"`
	AccessedUserID uuid.UUID  `json:"accessed_user_id"`
	Fields         []string   `json:"fields"`
	AccessType     string     `json:"access_type"`
	GroupID        *uuid.UUID `json:"group_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ContactDetails is the field set returned to a leader after a granted
// access. Only the fields the owner shares are populated.
type ContactDetails struct {
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// DeviceToken is a registered push token for one of a user's devices.
type DeviceToken struct {
	UserID    uuid.UUID `json:"user_id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"created_at"`
}
