/**
 * @description
 * This file defines the event payloads published to the community_events
 * exchange. They are consumed by downstream tooling (staff dashboards,
 * notification pipelines) and act as a contract between services.
 *
 * @dependencies
 * - None. These are plain Go structs.
 */
package domain

import "time"

// ReferralCreatedEvent is published after a referral row is persisted.
type ReferralCreatedEvent struct {
	ReferralID     string    `json:"referral_id"`
	ReferrerID     string    `json:"referrer_id"`
	ReferredUserID string    `json:"referred_user_id"`
	GroupID        *string   `json:"group_id,omitempty"`
	ReusedAccount  bool      `json:"reused_existing_user"`
	CreatedAt      time.Time `json:"created_at"`
}

// ContactAccessedEvent is published after a leader is granted access to a
// user's contact fields.
type ContactAccessedEvent struct {
	AccessorID     string    `json:"accessor_id"`
	AccessedUserID string    `json:"accessed_user_id"`
	Fields         []string  `json:"fields"`
	GroupID        *string   `json:"group_id,omitempty"`
	AccessedAt     time.Time `json:"accessed_at"`
}

// GroupFollowUpDueEvent is published by the follow-up sweeper for each
// referred profile still flagged as unable to find a group.
type GroupFollowUpDueEvent struct {
	UserID    string    `json:"user_id"`
	ChurchID  *string   `json:"church_id,omitempty"`
	FlaggedAt time.Time `json:"flagged_at"`
}
