package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"learnquestAPI/internal/stats"
	"learnquestAPI/internal/types/challenge"
	"learnquestAPI/internal/types/gamification"
	"learnquestAPI/internal/types/leaderboard"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert loses a uniqueness race. Callers are
// expected to recover by fetching the winner's row, never to surface it.
var ErrConflict = errors.New("conflict")

// ChallengeStore holds the per-day challenge instances.
type ChallengeStore interface {
	// FindByDate returns all challenges whose date equals the given day
	// (midnight-normalized). Empty slice when none exist yet.
	FindByDate(ctx context.Context, date time.Time) ([]*challenge.Challenge, error)
	FindByID(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error)
	// CreateBatch persists a day's challenge set in one logical batch and
	// returns ErrConflict if another caller already generated for that day.
	CreateBatch(ctx context.Context, batch []*challenge.Challenge) error
	// DeactivateBefore flips is_active=false for challenges dated before the
	// given day and reports how many rows changed.
	DeactivateBefore(ctx context.Context, day time.Time) (int64, error)
}

// ProgressStore holds the per-(user, challenge) progress rows. The store's
// uniqueness constraint on (user_id, challenge_id) is the sole exclusion
// mechanism for concurrent callers.
type ProgressStore interface {
	// Create inserts a new progress row, returning ErrConflict when a row for
	// the same (user, challenge) already exists.
	Create(ctx context.Context, p *challenge.UserChallengeProgress) error
	FindByUserAndChallenge(ctx context.Context, userID, challengeID uuid.UUID) (*challenge.UserChallengeProgress, error)
	// FindByUserForDate returns the user's progress rows joined with their
	// challenges for one day.
	FindByUserForDate(ctx context.Context, userID uuid.UUID, day time.Time) ([]*challenge.ProgressWithChallenge, error)
	// SetProgress overwrites the progress value and returns the updated row.
	SetProgress(ctx context.Context, userID, challengeID uuid.UUID, progress int) (*challenge.UserChallengeProgress, error)
	// MarkCompleted performs the one-way completion transition. It reports
	// true only for the single caller that actually flipped completed, so a
	// losing concurrent caller sees false and the row's original completed_at.
	MarkCompleted(ctx context.Context, userID, challengeID uuid.UUID, at time.Time) (*challenge.UserChallengeProgress, bool, error)
	// Claim marks a completed, unclaimed row claimed. ErrNotFound when no row
	// is in that exact state.
	Claim(ctx context.Context, userID, challengeID uuid.UUID, at time.Time) (*challenge.UserChallengeProgress, error)
	// CompletedDays reports, keyed by YYYY-MM-DD of the challenge date, the
	// days in [from, to] on which the user completed at least one challenge.
	// With activeOnly set, only challenges still flagged active count.
	CompletedDays(ctx context.Context, userID uuid.UUID, from, to time.Time, activeOnly bool) (map[string]bool, error)
	// CompletionStats aggregates assigned vs completed counts per day since
	// the given day.
	CompletionStats(ctx context.Context, userID uuid.UUID, from time.Time) (*stats.CompletionRate, error)
	// Leaderboard ranks users by the given kind over rows completed at or
	// after since (nil means all time).
	Leaderboard(ctx context.Context, kind leaderboard.Kind, since *time.Time, limit int) ([]*leaderboard.Entry, error)
}

// ReviewStore reads the study activity the condition evaluator gates on.
type ReviewStore interface {
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
	DistinctCategoriesSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// UserStore resolves identities and holds gamification profiles.
type UserStore interface {
	ResolveClerkID(ctx context.Context, clerkID string) (uuid.UUID, error)
	ListActiveUserIDs(ctx context.Context) ([]uuid.UUID, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*gamification.Profile, error)
	AddPoints(ctx context.Context, userID uuid.UUID, points int) error
	DeviceTokens(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// AchievementStore holds the achievement catalog and unlock records.
type AchievementStore interface {
	ListAchievements(ctx context.Context) ([]*gamification.Achievement, error)
	// Unlock records an unlock, reporting false when it was already unlocked.
	Unlock(ctx context.Context, userID, achievementID uuid.UUID, at time.Time) (bool, error)
}
