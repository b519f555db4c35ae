package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"learnquestAPI/internal/storage"
	"learnquestAPI/internal/types/challenge"
	"learnquestAPI/internal/types/review"
)

func newTestEvaluator(store *storage.Memory, now time.Time) *ConditionEvaluator {
	e := NewConditionEvaluator(store, store)
	e.now = func() time.Time { return now }
	return e
}

func seedReview(store *storage.Memory, userID uuid.UUID, category string, at time.Time) {
	store.AddReview(&review.Review{
		ID:         uuid.New(),
		UserID:     userID,
		Category:   category,
		Correct:    true,
		ReviewedAt: at,
	})
}

// seedCompletedDay inserts one challenge dated day with a completed progress
// row for the user.
func seedCompletedDay(t *testing.T, store *storage.Memory, userID uuid.UUID, day time.Time, active bool) {
	t.Helper()
	day = startOfDay(day)
	ch := &challenge.Challenge{
		ID:       uuid.New(),
		Title:    "seed " + day.Format("2006-01-02"),
		Type:     challenge.TypeReviewCount,
		Target:   1,
		Points:   10,
		Date:     day,
		IsActive: active,
	}
	if err := store.CreateBatch(context.Background(), []*challenge.Challenge{ch}); err != nil {
		t.Fatalf("seed challenge: %v", err)
	}
	row := &challenge.UserChallengeProgress{ID: uuid.New(), UserID: userID, ChallengeID: ch.ID, Progress: 100}
	if err := store.Create(context.Background(), row); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
	if _, _, err := store.MarkCompleted(context.Background(), userID, ch.ID, day); err != nil {
		t.Fatalf("seed completion: %v", err)
	}
}

func TestEvaluateTimeLimit(t *testing.T) {
	store := storage.NewMemory()
	e := newTestEvaluator(store, weekday)
	userID := store.AddUser("clerk_tl", "tl", true)
	challengeID := uuid.New()

	// 4 recent reviews plus one outside the window: not enough.
	for i := 0; i < 4; i++ {
		seedReview(store, userID, "math", weekday.Add(-time.Duration(i)*time.Minute))
	}
	seedReview(store, userID, "math", weekday.Add(-45*time.Minute))

	if e.Evaluate(context.Background(), userID, challenge.ConditionTimeLimit, challengeID) {
		t.Fatal("time_limit met with only 4 reviews in the window")
	}

	seedReview(store, userID, "math", weekday.Add(-10*time.Minute))
	if !e.Evaluate(context.Background(), userID, challenge.ConditionTimeLimit, challengeID) {
		t.Fatal("time_limit not met with 5 reviews in the window")
	}
}

func TestEvaluateVariety(t *testing.T) {
	store := storage.NewMemory()
	e := newTestEvaluator(store, weekday)
	userID := store.AddUser("clerk_var", "var", true)
	challengeID := uuid.New()

	seedReview(store, userID, "math", weekday.Add(-time.Hour))
	seedReview(store, userID, "history", weekday.Add(-2*time.Hour))
	// Third category reviewed yesterday must not count.
	seedReview(store, userID, "spanish", weekday.AddDate(0, 0, -1))

	if e.Evaluate(context.Background(), userID, challenge.ConditionVariety, challengeID) {
		t.Fatal("variety met with 2 categories today")
	}

	seedReview(store, userID, "chemistry", weekday.Add(-time.Minute))
	if !e.Evaluate(context.Background(), userID, challenge.ConditionVariety, challengeID) {
		t.Fatal("variety not met with 3 categories today")
	}
}

func TestEvaluateWeekendOnly(t *testing.T) {
	store := storage.NewMemory()
	userID := store.AddUser("clerk_we", "we", true)
	challengeID := uuid.New()

	if newTestEvaluator(store, weekday).Evaluate(context.Background(), userID, challenge.ConditionWeekendOnly, challengeID) {
		t.Fatal("weekend_only met on a Wednesday")
	}
	if !newTestEvaluator(store, weekend).Evaluate(context.Background(), userID, challenge.ConditionWeekendOnly, challengeID) {
		t.Fatal("weekend_only not met on a Saturday")
	}
}

func TestEvaluateConsecutiveDays(t *testing.T) {
	store := storage.NewMemory()
	e := newTestEvaluator(store, weekday)
	userID := store.AddUser("clerk_cd", "cd", true)
	challengeID := uuid.New()

	// 7 straight days, today included.
	for i := 0; i < 7; i++ {
		seedCompletedDay(t, store, userID, weekday.AddDate(0, 0, -i), true)
	}
	if !e.Evaluate(context.Background(), userID, challenge.ConditionConsecutiveDays, challengeID) {
		t.Fatal("consecutive_days not met with 7 straight completed days")
	}
}

func TestEvaluateConsecutiveDaysGapFails(t *testing.T) {
	store := storage.NewMemory()
	e := newTestEvaluator(store, weekday)
	userID := store.AddUser("clerk_gap", "gap", true)
	challengeID := uuid.New()

	for i := 0; i < 7; i++ {
		if i == 3 {
			continue // the gap
		}
		seedCompletedDay(t, store, userID, weekday.AddDate(0, 0, -i), true)
	}
	if e.Evaluate(context.Background(), userID, challenge.ConditionConsecutiveDays, challengeID) {
		t.Fatal("consecutive_days met despite a gap day")
	}
}

func TestEvaluateWeeklyCompletionIgnoresInactive(t *testing.T) {
	store := storage.NewMemory()
	e := newTestEvaluator(store, weekday)
	userID := store.AddUser("clerk_wk", "wk", true)
	challengeID := uuid.New()

	// Day -3 is only covered by a deactivated challenge: consecutive_days
	// still passes, weekly_completion does not.
	for i := 0; i < 7; i++ {
		seedCompletedDay(t, store, userID, weekday.AddDate(0, 0, -i), i != 3)
	}

	if !e.Evaluate(context.Background(), userID, challenge.ConditionConsecutiveDays, challengeID) {
		t.Fatal("consecutive_days should count inactive challenges")
	}
	if e.Evaluate(context.Background(), userID, challenge.ConditionWeeklyCompletion, challengeID) {
		t.Fatal("weekly_completion should not count inactive challenges")
	}
}

func TestEvaluateUnknownTagIsFalse(t *testing.T) {
	store := storage.NewMemory()
	e := newTestEvaluator(store, weekday)
	userID := store.AddUser("clerk_unk", "unk", true)

	if e.Evaluate(context.Background(), userID, challenge.ConditionTag("moon_phase"), uuid.New()) {
		t.Fatal("unknown condition tag evaluated to true")
	}
}

func TestEvaluateFailsClosedOnStoreErrors(t *testing.T) {
	store := storage.NewMemory()
	e := newTestEvaluator(store, weekday)
	userID := store.AddUser("clerk_err", "err", true)
	challengeID := uuid.New()

	// Enough data to satisfy every predicate if reads worked.
	for i := 0; i < 5; i++ {
		seedReview(store, userID, "cat"+string(rune('a'+i)), weekday.Add(-time.Duration(i)*time.Minute))
	}
	for i := 0; i < 7; i++ {
		seedCompletedDay(t, store, userID, weekday.AddDate(0, 0, -i), true)
	}

	store.FailReads = errors.New("connection reset")
	for _, tag := range []challenge.ConditionTag{
		challenge.ConditionTimeLimit,
		challenge.ConditionConsecutiveDays,
		challenge.ConditionVariety,
		challenge.ConditionWeeklyCompletion,
	} {
		if e.Evaluate(context.Background(), userID, tag, challengeID) {
			t.Errorf("%s evaluated to true while the store is failing", tag)
		}
	}
}
