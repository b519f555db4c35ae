package challenge

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeReviewCount    Type = "review_count"
	TypeReviewAccuracy Type = "review_accuracy"
	TypeMemoryCreated  Type = "memory_created"
	TypeStreakDays     Type = "streak_days"
	TypeCategoryFocus  Type = "category_focus"
)

// ConditionTag names an extra qualifying predicate a challenge carries on top
// of its numeric target. Empty means the challenge is plain progress counting.
type ConditionTag string

const (
	ConditionNone             ConditionTag = ""
	ConditionTimeLimit        ConditionTag = "time_limit"
	ConditionConsecutiveDays  ConditionTag = "consecutive_days"
	ConditionVariety          ConditionTag = "variety"
	ConditionWeekendOnly      ConditionTag = "weekend_only"
	ConditionWeeklyCompletion ConditionTag = "weekly_completion"
)

type Challenge struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	Title       string       `json:"title" db:"title"`
	Description string       `json:"description" db:"description"`
	Type        Type         `json:"type" db:"type"`
	Target      int          `json:"target" db:"target"`
	Points      int          `json:"points" db:"points"`
	Date        time.Time    `json:"date" db:"date"`
	Condition   ConditionTag `json:"condition,omitempty" db:"condition"`
	IsActive    bool         `json:"is_active" db:"is_active"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// UserChallengeProgress is a user's record against one challenge. At most one
// row exists per (user_id, challenge_id); the store enforces that uniqueness.
// Progress is a percentage 0-100 and completion means progress >= 100.
type UserChallengeProgress struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	ChallengeID uuid.UUID  `json:"challenge_id" db:"challenge_id"`
	Progress    int        `json:"progress" db:"progress"`
	Completed   bool       `json:"completed" db:"completed"`
	CompletedAt *time.Time `json:"completed_at" db:"completed_at"`
	Claimed     bool       `json:"claimed" db:"claimed"`
	ClaimedAt   *time.Time `json:"claimed_at" db:"claimed_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

type ProgressWithChallenge struct {
	UserChallengeProgress
	Challenge *Challenge `json:"challenge"`
}

type ProgressUpdate struct {
	ChallengeID uuid.UUID `json:"challenge_id"`
	Progress    int       `json:"progress"`
}
