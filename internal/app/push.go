/**
 * @description
 * This file implements the push notification fan-out: one logical
 * notification becomes a single batch request covering every registered
 * device token for the target user.
 *
 * @dependencies
 * - github.com/VineMe-App/vineme-backend/internal/store: Device token repository.
 * - github.com/VineMe-App/vineme-backend/pkg/pushgateway: The push gateway client.
 *
 * @notes
 * - No retry and no per-token failure isolation: a malformed or expired
 *   token is reported back by the gateway but not removed here. This is a
 *   thin fan-out, not a delivery-guarantee system.
 */
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/VineMe-App/vineme-backend/internal/store"
	"github.com/VineMe-App/vineme-backend/pkg/pushgateway"
)

// PushSender is the slice of the push gateway client the fan-out uses.
type PushSender interface {
	Send(ctx context.Context, messages []pushgateway.Message) ([]pushgateway.Ticket, error)
}

// PushService fans a notification out to all of a user's devices.
type PushService struct {
	tokens store.DeviceTokenRepository
	sender PushSender
}

// NewPushService creates a new instance of PushService.
func NewPushService(tokens store.DeviceTokenRepository, sender PushSender) *PushService {
	return &PushService{tokens: tokens, sender: sender}
}

// NotifyUser loads every device token for the user and submits one batch.
// It returns the number of messages accepted by the gateway. A user with no
// registered devices is a successful no-op.
func (s *PushService) NotifyUser(ctx context.Context, userID uuid.UUID, title, body string, data map[string]interface{}) (int, error) {
	tokens, err := s.tokens.ListDeviceTokens(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		log.Printf("No device tokens registered for user %s, nothing to send", userID)
		return 0, nil
	}

	messages := make([]pushgateway.Message, 0, len(tokens))
	for _, token := range tokens {
		messages = append(messages, pushgateway.Message{
			To:    token.Token,
			Title: title,
			Body:  body,
			Data:  data,
			Sound: "default",
		})
	}

	tickets, err := s.sender.Send(ctx, messages)
	if err != nil {
		return 0, fmt.Errorf("push gateway rejected the batch: %w", err)
	}

	sent := 0
	for i, ticket := range tickets {
		if ticket.Status == "ok" {
			sent++
			continue
		}
		// The gateway reports dead tokens here; pruning them is a separate
		// concern, so the failure is only logged.
		if i < len(messages) {
			log.Printf("Push ticket error for user %s token %s: %s (%s)", userID, messages[i].To, ticket.Message, ticket.Details.Error)
		}
	}
	return sent, nil
}
