/**
 * @description
 * This file implements the follow-up sweeper. Referrals made without a
 * target group flag the referred profile; on a cron schedule the sweeper
 * finds profiles that have carried the flag for long enough and publishes a
 * follow-up event per profile for staff tooling to pick up.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: For the schedule.
 * - github.com/VineMe-App/vineme-backend/internal/store: Profile repository.
 *
 * @notes
 * - Sweep errors are logged and never fatal; the next run retries.
 */
package app

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/VineMe-App/vineme-backend/internal/domain"
	"github.com/VineMe-App/vineme-backend/internal/store"
)

// FollowUpSweeper periodically reports profiles still waiting for a group.
type FollowUpSweeper struct {
	profiles  store.ProfileRepository
	publisher EventPublisher
	minAge    time.Duration
	cron      *cron.Cron
}

// NewFollowUpSweeper creates a sweeper that flags profiles older than
// minAge.
func NewFollowUpSweeper(profiles store.ProfileRepository, publisher EventPublisher, minAge time.Duration) *FollowUpSweeper {
	if minAge <= 0 {
		minAge = 48 * time.Hour
	}
	return &FollowUpSweeper{
		profiles:  profiles,
		publisher: publisher,
		minAge:    minAge,
	}
}

// Start registers the sweep on the given cron spec and begins the schedule.
func (s *FollowUpSweeper) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	log.Printf("Follow-up sweeper scheduled with spec %q", spec)
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *FollowUpSweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one pass: every profile flagged cannot_find_group for longer
// than minAge produces one group.followup.due event.
func (s *FollowUpSweeper) Sweep(ctx context.Context) {
	if s.publisher == nil {
		return
	}

	cutoff := time.Now().UTC().Add(-s.minAge)
	profiles, err := s.profiles.ListUnplacedProfiles(ctx, cutoff)
	if err != nil {
		log.Printf("Follow-up sweep failed to list unplaced profiles: %v", err)
		return
	}
	if len(profiles) == 0 {
		return
	}

	published := 0
	for _, profile := range profiles {
		event := domain.GroupFollowUpDueEvent{
			UserID: profile.ID.String(),
		}
		if profile.ChurchID != nil {
			churchID := profile.ChurchID.String()
			event.ChurchID = &churchID
		}
		if profile.CannotFindGroupAt != nil {
			event.FlaggedAt = *profile.CannotFindGroupAt
		}
		if err := s.publisher.Publish(ctx, communityEventsExchange, "group.followup.due", event); err != nil {
			log.Printf("Follow-up sweep failed to publish for user %s: %v", profile.ID, err)
			continue
		}
		published++
	}
	log.Printf("Follow-up sweep published %d of %d due profiles", published, len(profiles))
}
