/**
 * @description
 * This file implements the contact privacy gate: group leaders may see a
 * member's contact fields only if every relevant preference allows it and
 * the accessor actually leads the group. Every granted access is written to
 * the audit log.
 *
 * @dependencies
 * - github.com/VineMe-App/vineme-backend/internal/domain: Domain model definitions.
 * - github.com/VineMe-App/vineme-backend/internal/store: Repository interfaces.
 *
 * @notes
 * - This is a permission gate plus a log, not a policy engine: the checks
 *   compose with boolean AND and there is no precedence or override.
 * - Denials are not audited; only grants are.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/VineMe-App/vineme-backend/internal/domain"
	"github.com/VineMe-App/vineme-backend/internal/store"
)

// ErrContactAccessDenied is returned for every denied access, without
// revealing which check failed.
var ErrContactAccessDenied = errors.New("contact access denied")

// Contact field names accepted by the gate.
const (
	ContactFieldEmail = "email"
	ContactFieldPhone = "phone"
)

// ContactAccessRequest describes one access attempt by a group leader.
type ContactAccessRequest struct {
	AccessorID uuid.UUID
	TargetID   uuid.UUID
	GroupID    uuid.UUID
	Fields     []string
	AccessType string
}

// ContactAccessService gates and audits leader access to contact fields.
type ContactAccessService struct {
	contacts  store.ContactRepository
	publisher EventPublisher
}

// NewContactAccessService creates a new instance of ContactAccessService.
func NewContactAccessService(contacts store.ContactRepository, publisher EventPublisher) *ContactAccessService {
	return &ContactAccessService{contacts: contacts, publisher: publisher}
}

// RequestContactAccess checks every gate and, when all pass, records the
// access and returns the permitted contact fields.
func (s *ContactAccessService) RequestContactAccess(ctx context.Context, req ContactAccessRequest) (*domain.ContactDetails, error) {
	if len(req.Fields) == 0 {
		return nil, fmt.Errorf("at least one contact field must be requested")
	}
	for _, field := range req.Fields {
		if field != ContactFieldEmail && field != ContactFieldPhone {
			return nil, fmt.Errorf("unknown contact field %q", field)
		}
	}

	settings, err := s.contacts.GetPrivacySettings(ctx, req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load privacy settings: %w", err)
	}
	if !settings.AllowContactByLeader {
		return nil, ErrContactAccessDenied
	}
	for _, field := range req.Fields {
		if field == ContactFieldEmail && !settings.AllowEmailSharing {
			return nil, ErrContactAccessDenied
		}
		if field == ContactFieldPhone && !settings.AllowPhoneSharing {
			return nil, ErrContactAccessDenied
		}
	}

	isLeader, err := s.contacts.IsGroupLeader(ctx, req.GroupID, req.AccessorID)
	if err != nil {
		return nil, fmt.Errorf("failed to check group leadership: %w", err)
	}
	if !isLeader {
		return nil, ErrContactAccessDenied
	}

	details, err := s.contacts.GetContactDetails(ctx, req.TargetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load contact details: %w", err)
	}
	filtered := &domain.ContactDetails{}
	for _, field := range req.Fields {
		switch field {
		case ContactFieldEmail:
			filtered.Email = details.Email
		case ContactFieldPhone:
			filtered.Phone = details.Phone
		}
	}

	accessType := req.AccessType
	if accessType == "" {
		accessType = "leader_view"
	}
	now := time.Now().UTC()
	entry := &domain.ContactAccessLog{
		ID:             uuid.New(),
		AccessorID:     req.AccessorID,
		AccessedUserID: req.TargetID,
		Fields:         req.Fields,
		AccessType:     accessType,
		GroupID:        &req.GroupID,
		CreatedAt:      now,
	}
	if err := s.contacts.InsertAccessLog(ctx, entry); err != nil {
		// An unaudited grant is worse than a failed request.
		return nil, fmt.Errorf("failed to record contact access: %w", err)
	}

	s.publishContactAccessed(ctx, entry)

	return filtered, nil
}

func (s *ContactAccessService) publishContactAccessed(ctx context.Context, entry *domain.ContactAccessLog) {
	if s.publisher == nil {
		return
	}
	groupID := entry.GroupID.String()
	event := domain.ContactAccessedEvent{
		AccessorID:     entry.AccessorID.String(),
		AccessedUserID: entry.AccessedUserID.String(),
		Fields:         entry.Fields,
		GroupID:        &groupID,
		AccessedAt:     entry.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, communityEventsExchange, "contact.accessed", event); err != nil {
		log.Printf("Warning: failed to publish contact.accessed for accessor %s: %v", entry.AccessorID, err)
	}
}
