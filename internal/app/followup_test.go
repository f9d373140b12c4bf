package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/VineMe-App/vineme-backend/internal/domain"
)

func TestSweepPublishesOneEventPerUnplacedProfile(t *testing.T) {
	flaggedAt := time.Now().UTC().Add(-72 * time.Hour)
	churchID := uuid.New()
	profiles := newStubProfileRepo()
	profiles.unplaced = []domain.Profile{
		{ID: uuid.New(), ChurchID: &churchID, CannotFindGroup: true, CannotFindGroupAt: &flaggedAt},
		{ID: uuid.New(), CannotFindGroup: true, CannotFindGroupAt: &flaggedAt},
	}
	publisher := &stubPublisher{}
	sweeper := NewFollowUpSweeper(profiles, publisher, 48*time.Hour)

	sweeper.Sweep(context.Background())

	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(publisher.events))
	}
	for _, e := range publisher.events {
		if e.routingKey != "group.followup.due" {
			t.Fatalf("expected group.followup.due routing key, got %q", e.routingKey)
		}
	}
	first, ok := publisher.events[0].payload.(domain.GroupFollowUpDueEvent)
	if !ok {
		t.Fatalf("expected a GroupFollowUpDueEvent payload, got %T", publisher.events[0].payload)
	}
	if first.ChurchID == nil || *first.ChurchID != churchID.String() {
		t.Fatal("expected the church to be carried on the event")
	}
	if !first.FlaggedAt.Equal(flaggedAt) {
		t.Fatalf("expected the flag time on the event, got %v", first.FlaggedAt)
	}
}

func TestSweepUsesTheConfiguredMinimumAge(t *testing.T) {
	profiles := newStubProfileRepo()
	sweeper := NewFollowUpSweeper(profiles, &stubPublisher{}, 48*time.Hour)

	before := time.Now().UTC().Add(-48 * time.Hour)
	sweeper.Sweep(context.Background())
	after := time.Now().UTC().Add(-48 * time.Hour)

	if profiles.unplacedAt.Before(before) || profiles.unplacedAt.After(after) {
		t.Fatalf("expected a cutoff 48h in the past, got %v", profiles.unplacedAt)
	}
}

func TestSweepWithoutPublisherIsANoOp(t *testing.T) {
	profiles := newStubProfileRepo()
	profiles.unplaced = []domain.Profile{{ID: uuid.New()}}
	sweeper := NewFollowUpSweeper(profiles, nil, time.Hour)

	// Must not panic and must not touch the repository.
	sweeper.Sweep(context.Background())
	if !profiles.unplacedAt.IsZero() {
		t.Fatal("expected no repository access without a publisher")
	}
}
