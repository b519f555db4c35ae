package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"learnquestAPI/internal/events"
	"learnquestAPI/internal/storage"
	"learnquestAPI/internal/types/gamification"
)

// AchievementService rechecks a user's lifetime numbers against the
// achievement catalog and records unlocks. Unlock inserts are conflict-safe,
// so rechecking is idempotent.
type AchievementService struct {
	achievements storage.AchievementStore
	progress     storage.ProgressStore
	users        storage.UserStore

	now func() time.Time
}

func NewAchievementService(achievements storage.AchievementStore, progress storage.ProgressStore, users storage.UserStore) *AchievementService {
	return &AchievementService{
		achievements: achievements,
		progress:     progress,
		users:        users,
		now:          time.Now,
	}
}

// RecheckForUser evaluates every achievement criterion and unlocks the ones
// newly met, returning how many unlocked in this pass.
func (s *AchievementService) RecheckForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	catalog, err := s.achievements.ListAchievements(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load achievement catalog: %w", err)
	}
	if len(catalog) == 0 {
		return 0, nil
	}

	lifetime, err := s.progress.CompletionStats(ctx, userID, time.Time{})
	if err != nil {
		return 0, fmt.Errorf("failed to load lifetime stats for user %s: %w", userID, err)
	}

	profile, err := s.users.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("failed to load profile for user %s: %w", userID, err)
		}
		profile = &gamification.Profile{UserID: userID, Level: 1}
	}

	unlocked := 0
	for _, a := range catalog {
		if !s.criteriaMet(a, lifetime.CompletedChallenges, profile) {
			continue
		}

		isNew, err := s.achievements.Unlock(ctx, userID, a.ID, s.now())
		if err != nil {
			log.Printf("Recheck: failed to unlock %q for user %s: %v", a.Name, userID, err)
			continue
		}
		if isNew {
			log.Printf("User %s unlocked achievement %q", userID, a.Name)
			unlocked++
		}
	}

	return unlocked, nil
}

func (s *AchievementService) criteriaMet(a *gamification.Achievement, completedChallenges int, profile *gamification.Profile) bool {
	switch a.CriteriaType {
	case gamification.CriteriaChallengesCompleted:
		return completedChallenges >= a.CriteriaValue
	case gamification.CriteriaPointsEarned:
		return profile.Points >= a.CriteriaValue
	case gamification.CriteriaStreakDays:
		return profile.LongestStreak >= a.CriteriaValue
	default:
		return false
	}
}

// HandleChallengeCompleted is the achievements subscriber on the completion
// event.
func (s *AchievementService) HandleChallengeCompleted(ctx context.Context, ev events.ChallengeCompleted) error {
	_, err := s.RecheckForUser(ctx, ev.UserID)
	return err
}
