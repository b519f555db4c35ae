package services

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"learnquestAPI/internal/events"
	"learnquestAPI/internal/storage"
)

// PointsService credits challenge rewards to the user's gamification profile.
type PointsService struct {
	users storage.UserStore
}

func NewPointsService(users storage.UserStore) *PointsService {
	return &PointsService{users: users}
}

func (s *PointsService) AwardPoints(ctx context.Context, userID uuid.UUID, amount int, reason string) error {
	if amount <= 0 {
		return nil
	}

	if err := s.users.AddPoints(ctx, userID, amount); err != nil {
		return fmt.Errorf("failed to award %d points to user %s: %w", amount, userID, err)
	}

	log.Printf("Awarded %d points to user %s (%s)", amount, userID, reason)
	return nil
}

// HandleChallengeCompleted is the points subscriber on the completion event.
func (s *PointsService) HandleChallengeCompleted(ctx context.Context, ev events.ChallengeCompleted) error {
	return s.AwardPoints(ctx, ev.UserID, ev.Points, "challenge: "+ev.Title)
}
