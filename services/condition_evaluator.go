package services

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"learnquestAPI/internal/storage"
	"learnquestAPI/internal/types/challenge"
)

const (
	timeLimitWindow    = 30 * time.Minute
	timeLimitReviews   = 5
	varietyCategories  = 3
	conditionStreakLen = 7 // days, today included
)

// ConditionEvaluator answers the qualifying predicates advanced challenges
// carry. It is strictly read-only and fails closed: any query error is logged
// and evaluates to false, because this predicate gates reward eligibility
// inside progress-update flows that must not crash on it.
type ConditionEvaluator struct {
	progress storage.ProgressStore
	reviews  storage.ReviewStore

	now func() time.Time
}

func NewConditionEvaluator(progress storage.ProgressStore, reviews storage.ReviewStore) *ConditionEvaluator {
	return &ConditionEvaluator{
		progress: progress,
		reviews:  reviews,
		now:      time.Now,
	}
}

func (e *ConditionEvaluator) Evaluate(ctx context.Context, userID uuid.UUID, tag challenge.ConditionTag, challengeID uuid.UUID) bool {
	switch tag {
	case challenge.ConditionTimeLimit:
		since := e.now().Add(-timeLimitWindow)
		count, err := e.reviews.CountSince(ctx, userID, since)
		if err != nil {
			log.Printf("EvaluateCondition %s: review count failed for user %s challenge %s: %v", tag, userID, challengeID, err)
			return false
		}
		return count >= timeLimitReviews

	case challenge.ConditionConsecutiveDays:
		return e.completedEachRecentDay(ctx, userID, challengeID, tag, false)

	case challenge.ConditionVariety:
		midnight := startOfDay(e.now())
		categories, err := e.reviews.DistinctCategoriesSince(ctx, userID, midnight)
		if err != nil {
			log.Printf("EvaluateCondition %s: category count failed for user %s challenge %s: %v", tag, userID, challengeID, err)
			return false
		}
		return categories >= varietyCategories

	case challenge.ConditionWeekendOnly:
		return isWeekend(e.now())

	case challenge.ConditionWeeklyCompletion:
		// Same per-day existence check, restricted to the week's still-active
		// challenge set.
		return e.completedEachRecentDay(ctx, userID, challengeID, tag, true)

	default:
		log.Printf("EvaluateCondition: unknown condition tag %q for challenge %s", tag, challengeID)
		return false
	}
}

// completedEachRecentDay is the shared streak check: true only when every one
// of the last 7 local days (today and 6 prior) has at least one completed
// challenge dated that day. A single gap day fails the whole predicate.
func (e *ConditionEvaluator) completedEachRecentDay(ctx context.Context, userID, challengeID uuid.UUID, tag challenge.ConditionTag, activeOnly bool) bool {
	today := startOfDay(e.now())
	from := today.AddDate(0, 0, -(conditionStreakLen - 1))

	days, err := e.progress.CompletedDays(ctx, userID, from, today, activeOnly)
	if err != nil {
		log.Printf("EvaluateCondition %s: completed-days query failed for user %s challenge %s: %v", tag, userID, challengeID, err)
		return false
	}

	for i := 0; i < conditionStreakLen; i++ {
		day := from.AddDate(0, 0, i).Format("2006-01-02")
		if !days[day] {
			return false
		}
	}
	return true
}
