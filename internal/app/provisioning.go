/**
 * @description
 * This file contains the referred-user provisioning workflow, the core
 * application logic of the functions backend. Given a referrer and a
 * candidate's contact details it produces a usable auth account, a profile
 * row, and a recorded referral, without duplicating accounts or referrals,
 * and without requiring the candidate to have pre-registered.
 *
 * @dependencies
 * - github.com/VineMe-App/vineme-backend/internal/domain: Domain model definitions.
 * - github.com/VineMe-App/vineme-backend/internal/store: Repository interfaces.
 *
 * @notes
 * - Failure policy: new-account creation failures roll back the auth user
 *   this run created; reused accounts are never rolled back. Membership
 *   creation, event publishing, and the no-group flag are non-fatal — a
 *   referral can succeed while its membership does not, and callers must
 *   handle that split outcome.
 * - The duplicate-referral pre-check is advisory. The unique index in the
 *   referrals table is the authoritative guard; a unique violation on
 *   insert is reported as the same error kind.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/VineMe-App/vineme-backend/internal/domain"
	"github.com/VineMe-App/vineme-backend/internal/store"
	"github.com/VineMe-App/vineme-backend/pkg/authadmin"
)

// communityEventsExchange is the topic exchange all community events use.
const communityEventsExchange = "community_events"

var (
	// ErrReferrerNotFound is returned when the referrer has no profile.
	ErrReferrerNotFound = errors.New("referrer profile not found")

	// ErrChurchRequired is returned when the referrer has no church
	// affiliation; one is required to place the candidate.
	ErrChurchRequired = errors.New("referrer must belong to a church before referring")

	// ErrEmailRequired is returned when the candidate email is missing.
	ErrEmailRequired = errors.New("candidate email is required")
)

// IdentityAdmin is the slice of the identity provider's admin API the
// workflow depends on.
type IdentityAdmin interface {
	ListUsers(ctx context.Context, page, perPage int) (*domain.AuthUserPage, error)
	InviteUserByEmail(ctx context.Context, req domain.InviteUserRequest) (*domain.AuthUser, error)
	GenerateLink(ctx context.Context, req domain.GenerateLinkRequest) (*domain.GenerateLinkResponse, error)
	UpdateUser(ctx context.Context, userID string, req domain.UpdateAuthUserRequest) (*domain.AuthUser, error)
	DeleteUser(ctx context.Context, userID string) error
}

// EventPublisher publishes community events. A nil publisher disables
// publishing.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, payload interface{}) error
}

// ProvisionInput carries the validated request for one provisioning run.
type ProvisionInput struct {
	ReferrerID uuid.UUID
	Email      string
	Phone      string
	FirstName  string
	LastName   string
	Note       string
	GroupID    *uuid.UUID
}

// ProvisionResult reports the split outcome of a provisioning run.
type ProvisionResult struct {
	UserID             uuid.UUID
	ReferralID         *uuid.UUID
	ReferralCreated    bool
	MembershipCreated  bool
	ReusedExistingUser bool
}

// ProvisioningService implements the referred-user provisioning workflow.
type ProvisioningService struct {
	profiles    store.ProfileRepository
	referrals   store.ReferralRepository
	memberships store.MembershipRepository
	identity    IdentityAdmin
	publisher   EventPublisher

	pageSize    int
	maxPages    int
	redirectURL string
}

// NewProvisioningService creates a new instance of ProvisioningService.
func NewProvisioningService(
	profiles store.ProfileRepository,
	referrals store.ReferralRepository,
	memberships store.MembershipRepository,
	identity IdentityAdmin,
	publisher EventPublisher,
	pageSize int,
	maxPages int,
	redirectURL string,
) *ProvisioningService {
	if pageSize <= 0 {
		pageSize = 200
	}
	if maxPages <= 0 {
		maxPages = 50
	}
	return &ProvisioningService{
		profiles:    profiles,
		referrals:   referrals,
		memberships: memberships,
		identity:    identity,
		publisher:   publisher,
		pageSize:    pageSize,
		maxPages:    maxPages,
		redirectURL: redirectURL,
	}
}

// ProvisionReferredUser runs the full workflow. Duplicate referrals are
// reported as store.ErrDuplicateReferral whichever guard caught them.
func (s *ProvisioningService) ProvisionReferredUser(ctx context.Context, input ProvisionInput) (*ProvisionResult, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, ErrEmailRequired
	}
	phone := normalizePhone(input.Phone)

	// The referrer's church affiliation is required to place the candidate.
	referrer, err := s.profiles.GetProfile(ctx, input.ReferrerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrReferrerNotFound
		}
		return nil, fmt.Errorf("failed to load referrer profile: %w", err)
	}
	if referrer.ChurchID == nil {
		return nil, ErrChurchRequired
	}

	existing, err := s.findExistingAuthUser(ctx, email, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to search for an existing account: %w", err)
	}

	var userID uuid.UUID
	var createdByUs bool

	if existing != nil {
		userID, err = uuid.Parse(existing.ID)
		if err != nil {
			return nil, fmt.Errorf("identity provider returned a malformed user id %q: %w", existing.ID, err)
		}
		log.Printf("Reusing existing auth user %s for referral by %s", userID, input.ReferrerID)

		if err := s.ensureReusedAccountReachable(ctx, existing, email); err != nil {
			return nil, err
		}
	} else {
		created, err := s.inviteNewAccount(ctx, email, phone, input)
		if err != nil {
			return nil, err
		}
		userID, err = uuid.Parse(created.ID)
		if err != nil {
			return nil, fmt.Errorf("identity provider returned a malformed user id %q: %w", created.ID, err)
		}
		createdByUs = true
		log.Printf("Invited new auth user %s for referral by %s", userID, input.ReferrerID)
	}

	if err := s.ensureProfile(ctx, userID, email, phone, input, referrer, createdByUs); err != nil {
		return nil, err
	}

	// Advisory pre-check: the unique index on insert is the real guard, so
	// a failed lookup here is logged and the insert proceeds regardless.
	if _, err := s.referrals.FindReferral(ctx, userID, input.GroupID); err == nil {
		return nil, store.ErrDuplicateReferral
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("Warning: duplicate-referral pre-check failed for user %s, relying on unique index: %v", userID, err)
	}

	referral := &domain.Referral{
		ID:             uuid.New(),
		ReferrerID:     input.ReferrerID,
		ReferredUserID: userID,
		GroupID:        input.GroupID,
		Note:           strings.TrimSpace(input.Note),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.referrals.CreateReferral(ctx, referral); err != nil {
		if errors.Is(err, store.ErrDuplicateReferral) {
			return nil, store.ErrDuplicateReferral
		}
		return nil, fmt.Errorf("failed to record referral: %w", err)
	}

	result := &ProvisionResult{
		UserID:             userID,
		ReferralID:         &referral.ID,
		ReferralCreated:    true,
		ReusedExistingUser: existing != nil,
	}

	s.publishReferralCreated(ctx, referral, result.ReusedExistingUser)

	if input.GroupID != nil {
		result.MembershipCreated = s.createPendingMembership(ctx, *input.GroupID, userID, referral.ID)
	} else {
		if err := s.profiles.MarkCannotFindGroup(ctx, userID, time.Now().UTC()); err != nil {
			log.Printf("Warning: failed to flag cannot_find_group for user %s: %v", userID, err)
		}
	}

	return result, nil
}

// findExistingAuthUser pages through the admin user list looking for the
// candidate by email, then by phone. Matching by email and matching by
// phone are the same dedup class: either means the account is reused. The
// scan is bounded by maxPages; exhausting the bound is treated as no match
// and logged, since a false negative here would create a duplicate account.
func (s *ProvisioningService) findExistingAuthUser(ctx context.Context, email, phone string) (*domain.AuthUser, error) {
	var phoneMatch *domain.AuthUser

	for page := 1; page <= s.maxPages; page++ {
		userPage, err := s.identity.ListUsers(ctx, page, s.pageSize)
		if err != nil {
			return nil, err
		}

		for i := range userPage.Users {
			user := &userPage.Users[i]
			if strings.EqualFold(strings.TrimSpace(user.Email), email) {
				return user, nil
			}
			if phone != "" && phoneMatch == nil && phoneDigits(user.Phone) == phoneDigits(phone) {
				match := *user
				phoneMatch = &match
			}
		}

		if len(userPage.Users) < s.pageSize {
			return phoneMatch, nil
		}
		if page == s.maxPages {
			log.Printf("Warning: auth user scan hit the %d-page ceiling without finishing; treating as no email match", s.maxPages)
		}
	}

	return phoneMatch, nil
}

// ensureReusedAccountReachable makes sure a reused account can actually
// receive the invitation: link a missing email and trigger verification, or
// re-send verification for an unverified one. Already-verified accounts get
// no mail.
func (s *ProvisioningService) ensureReusedAccountReachable(ctx context.Context, user *domain.AuthUser, email string) error {
	switch {
	case strings.TrimSpace(user.Email) == "":
		// Phone-matched account with no email: link the candidate's email
		// so the invitation can reach them.
		if _, err := s.identity.UpdateUser(ctx, user.ID, domain.UpdateAuthUserRequest{Email: email}); err != nil {
			return fmt.Errorf("failed to link email to existing account: %w", err)
		}
		s.sendVerificationMail(ctx, email, "magiclink")
	case user.EmailConfirmedAt == nil:
		s.sendVerificationMail(ctx, email, "magiclink")
	default:
		// Verified account: nothing to send. A "you were referred"
		// notification for verified users is handled by the notification
		// pipeline, not here.
	}
	return nil
}

// inviteNewAccount provisions a brand-new auth user. The provider sends its
// own invitation mail; a signup link is requested as well in case the
// invite mail is filtered, and the phone is attached for phone sign-in.
func (s *ProvisioningService) inviteNewAccount(ctx context.Context, email, phone string, input ProvisionInput) (*domain.AuthUser, error) {
	invite := domain.InviteUserRequest{
		Email: email,
		Data: map[string]interface{}{
			"first_name":  strings.TrimSpace(input.FirstName),
			"last_name":   strings.TrimSpace(input.LastName),
			"referred_by": input.ReferrerID.String(),
			"newcomer":    true,
		},
	}
	created, err := s.identity.InviteUserByEmail(ctx, invite)
	if err != nil {
		if errors.Is(err, authadmin.ErrEmailExists) {
			// Lost a race with a concurrent registration. The scan missed
			// it, so surface the conflict rather than duplicating anything.
			return nil, fmt.Errorf("account appeared during provisioning, retry the referral: %w", err)
		}
		return nil, fmt.Errorf("failed to invite new account: %w", err)
	}

	s.sendVerificationMail(ctx, email, "signup")

	if phone != "" {
		if _, err := s.identity.UpdateUser(ctx, created.ID, domain.UpdateAuthUserRequest{Phone: phone}); err != nil {
			log.Printf("Warning: failed to attach phone to new account %s: %v", created.ID, err)
		}
	}

	return created, nil
}

// ensureProfile creates the profile row when missing. On failure the auth
// user is rolled back only if this run created it; reused accounts are
// never deleted.
func (s *ProvisioningService) ensureProfile(ctx context.Context, userID uuid.UUID, email, phone string, input ProvisionInput, referrer *domain.Profile, createdByUs bool) error {
	if _, err := s.profiles.GetProfile(ctx, userID); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to check for existing profile: %w", err)
	}

	profile := &domain.Profile{
		ID:        userID,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Email:     email,
		ChurchID:  referrer.ChurchID,
		ServiceID: referrer.ServiceID,
		Newcomer:  true,
	}
	if phone != "" {
		profile.Phone = &phone
	}

	if err := s.profiles.CreateProfile(ctx, profile); err != nil {
		if createdByUs {
			if delErr := s.identity.DeleteUser(ctx, userID.String()); delErr != nil {
				log.Printf("ERROR: rollback of auth user %s failed after profile creation error: %v", userID, delErr)
			} else {
				log.Printf("Rolled back auth user %s after profile creation failure", userID)
			}
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// createPendingMembership inserts the pending membership side effect.
// Failures are non-fatal: the referral stands, the membership does not.
func (s *ProvisioningService) createPendingMembership(ctx context.Context, groupID, userID, referralID uuid.UUID) bool {
	has, err := s.memberships.HasMembership(ctx, groupID, userID)
	if err != nil {
		log.Printf("Warning: membership pre-check failed for group %s user %s: %v", groupID, userID, err)
		return false
	}
	if has {
		log.Printf("User %s already has a membership in group %s, skipping", userID, groupID)
		return false
	}

	membership := &domain.GroupMembership{
		ID:         uuid.New(),
		GroupID:    groupID,
		UserID:     userID,
		ReferralID: &referralID,
		Role:       "member",
		Status:     domain.MembershipPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.memberships.CreateMembership(ctx, membership); err != nil {
		log.Printf("Warning: membership creation failed for group %s user %s: %v", groupID, userID, err)
		return false
	}
	return true
}

func (s *ProvisioningService) sendVerificationMail(ctx context.Context, email, linkType string) {
	if _, err := s.identity.GenerateLink(ctx, domain.GenerateLinkRequest{
		Type:       linkType,
		Email:      email,
		RedirectTo: s.redirectURL,
	}); err != nil {
		log.Printf("Warning: failed to send %s verification mail to %s: %v", linkType, email, err)
	}
}

func (s *ProvisioningService) publishReferralCreated(ctx context.Context, referral *domain.Referral, reused bool) {
	if s.publisher == nil {
		return
	}
	event := domain.ReferralCreatedEvent{
		ReferralID:     referral.ID.String(),
		ReferrerID:     referral.ReferrerID.String(),
		ReferredUserID: referral.ReferredUserID.String(),
		ReusedAccount:  reused,
		CreatedAt:      referral.CreatedAt,
	}
	if referral.GroupID != nil {
		groupID := referral.GroupID.String()
		event.GroupID = &groupID
	}
	if err := s.publisher.Publish(ctx, communityEventsExchange, "referral.created", event); err != nil {
		log.Printf("Warning: failed to publish referral.created for %s: %v", referral.ID, err)
	}
}

// normalizePhone strips formatting so stored and supplied numbers compare
// equal. A leading + is preserved.
func normalizePhone(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	var b strings.Builder
	for i, r := range trimmed {
		if r == '+' && i == 0 {
			b.WriteRune(r)
			continue
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// phoneDigits reduces a phone number to its digits for comparison, since
// the identity provider stores numbers without the leading +.
func phoneDigits(raw string) string {
	return strings.TrimPrefix(normalizePhone(raw), "+")
}
