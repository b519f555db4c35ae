package gamification

import (
	"time"

	"github.com/google/uuid"
)

// Profile carries the per-user numbers the difficulty scaler and the points
// award read and write.
type Profile struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Level         int       `json:"level" db:"level"`
	XP            int       `json:"xp" db:"xp"`
	Points        int       `json:"points" db:"points"`
	CurrentStreak int       `json:"current_streak" db:"current_streak"`
	LongestStreak int       `json:"longest_streak" db:"longest_streak"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type CriteriaType string

const (
	CriteriaChallengesCompleted CriteriaType = "challenges_completed"
	CriteriaPointsEarned        CriteriaType = "points_earned"
	CriteriaStreakDays          CriteriaType = "streak_days"
)

type Achievement struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Name          string       `json:"name" db:"name"`
	Description   string       `json:"description" db:"description"`
	Icon          string       `json:"icon" db:"icon"`
	CriteriaType  CriteriaType `json:"criteria_type" db:"criteria_type"`
	CriteriaValue int          `json:"criteria_value" db:"criteria_value"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
}

type UserAchievement struct {
	ID            uuid.UUID `json:"id" db:"id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	AchievementID uuid.UUID `json:"achievement_id" db:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at" db:"unlocked_at"`
}
