package services

import (
	"context"
	"fmt"
	"log"

	"learnquestAPI/internal/events"
	"learnquestAPI/internal/storage"
)

// PushNotificationProvider is the outbound push boundary; the FCM client in
// internal/notification implements it.
type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}

// NotificationService sends the "challenge completed" push. Push delivery is
// best effort; a provider failure is the subscriber's problem, never the
// progress write's.
type NotificationService struct {
	users        storage.UserStore
	pushProvider PushNotificationProvider
}

func NewNotificationService(users storage.UserStore) *NotificationService {
	return &NotificationService{users: users}
}

// SetPushProvider injects the real provider from main; without one the
// service quietly does nothing.
func (s *NotificationService) SetPushProvider(provider PushNotificationProvider) {
	s.pushProvider = provider
}

// HandleChallengeCompleted is the push subscriber on the completion event.
func (s *NotificationService) HandleChallengeCompleted(ctx context.Context, ev events.ChallengeCompleted) error {
	if s.pushProvider == nil {
		return nil
	}

	tokens, err := s.users.DeviceTokens(ctx, ev.UserID)
	if err != nil {
		return fmt.Errorf("failed to load device tokens for user %s: %w", ev.UserID, err)
	}
	if len(tokens) == 0 {
		return nil
	}

	title := "Challenge complete!"
	body := fmt.Sprintf("You finished %q and earned %d points. Claim your reward!", ev.Title, ev.Points)
	data := map[string]string{
		"type":         "challenge_completed",
		"challenge_id": ev.ChallengeID.String(),
	}

	if err := s.pushProvider.SendPush(ctx, tokens, title, body, data); err != nil {
		return fmt.Errorf("push failed for user %s: %w", ev.UserID, err)
	}

	log.Printf("Sent challenge-completed push to user %s (%d devices)", ev.UserID, len(tokens))
	return nil
}
