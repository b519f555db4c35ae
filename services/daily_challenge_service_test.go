package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"learnquestAPI/internal/events"
	"learnquestAPI/internal/storage"
	"learnquestAPI/internal/types/challenge"
	"learnquestAPI/internal/types/gamification"
	"learnquestAPI/internal/types/leaderboard"
)

var (
	weekday = time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)  // Wednesday
	weekend = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC) // Saturday
)

func newTestService(store *storage.Memory, bus *events.Bus, now time.Time) *DailyChallengeService {
	if bus == nil {
		bus = events.NewBus()
	}
	s := NewDailyChallengeService(store, store, store, bus)
	s.now = func() time.Time { return now }
	s.pick = func(n int) int { return 0 }
	return s
}

func findByTitle(t *testing.T, challenges []*challenge.Challenge, title string) *challenge.Challenge {
	t.Helper()
	for _, c := range challenges {
		if c.Title == title {
			return c
		}
	}
	t.Fatalf("challenge %q not in generated set", title)
	return nil
}

func TestGenerateChallengesWeekdayCount(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)

	challenges, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}
	if len(challenges) != 5 {
		t.Fatalf("expected 4 base + 1 advanced = 5 challenges, got %d", len(challenges))
	}
	for _, c := range challenges {
		if !c.IsActive {
			t.Errorf("challenge %q generated inactive", c.Title)
		}
		if c.Title == "Weekend Warrior" {
			t.Errorf("weekend challenge generated on a Wednesday")
		}
	}
}

func TestGenerateChallengesWeekendAddsWarrior(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekend)

	challenges, err := s.GenerateChallenges(context.Background(), weekend, nil)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}
	if len(challenges) != 6 {
		t.Fatalf("expected 6 challenges on a Saturday, got %d", len(challenges))
	}
	warrior := findByTitle(t, challenges, "Weekend Warrior")
	if warrior.Condition != challenge.ConditionWeekendOnly {
		t.Errorf("Weekend Warrior condition = %q, want %q", warrior.Condition, challenge.ConditionWeekendOnly)
	}
}

func TestGenerateChallengesIdempotent(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)

	first, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("first generation: %v", err)
	}
	second, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("second generation: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("second generation returned %d challenges, want %d", len(second), len(first))
	}

	ids := make(map[uuid.UUID]bool, len(first))
	for _, c := range first {
		ids[c.ID] = true
	}
	for _, c := range second {
		if !ids[c.ID] {
			t.Errorf("second generation produced a new challenge %q (%s)", c.Title, c.ID)
		}
	}
}

func TestGenerateChallengesScalesForHighLevelUser(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)

	userID := store.AddUser("clerk_pro", "pro", true)
	store.SetProfile(&gamification.Profile{UserID: userID, Level: 10})

	// One completed assignment yesterday puts the 30-day rate at 1.0, so the
	// multiplier is 1.5 * 1.2.
	yesterday := weekday.AddDate(0, 0, -1)
	past := &challenge.Challenge{
		ID: uuid.New(), Title: "Daily Reviewer", Type: challenge.TypeReviewCount,
		Target: 10, Points: 50, Date: yesterday, IsActive: true,
	}
	if err := store.CreateBatch(context.Background(), []*challenge.Challenge{past}); err != nil {
		t.Fatalf("seed challenge: %v", err)
	}
	row := &challenge.UserChallengeProgress{ID: uuid.New(), UserID: userID, ChallengeID: past.ID, Progress: 100}
	if err := store.Create(context.Background(), row); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
	if _, _, err := store.MarkCompleted(context.Background(), userID, past.ID, yesterday); err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	challenges, err := s.GenerateChallenges(context.Background(), weekday, &userID)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}

	reviewer := findByTitle(t, challenges, "Daily Reviewer")
	if reviewer.Target != 18 {
		t.Errorf("Daily Reviewer target = %d, want 18 (10 * 1.8)", reviewer.Target)
	}
	if reviewer.Points != 90 {
		t.Errorf("Daily Reviewer points = %d, want 90 (50 * 1.8)", reviewer.Points)
	}
	if reviewer.Description != "Complete 18 reviews today" {
		t.Errorf("description not rescaled: %q", reviewer.Description)
	}
}

func TestGenerateChallengesNewUserKeepsBaseDifficulty(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)

	// No profile and no history: the low-completion penalty must not apply.
	userID := store.AddUser("clerk_new", "newbie", true)

	challenges, err := s.GenerateChallenges(context.Background(), weekday, &userID)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}
	reviewer := findByTitle(t, challenges, "Daily Reviewer")
	if reviewer.Target != 10 || reviewer.Points != 50 {
		t.Errorf("new user got target=%d points=%d, want base 10/50", reviewer.Target, reviewer.Points)
	}
}

func TestAssignToUserIdempotent(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)
	userID := store.AddUser("clerk_a", "a", true)

	first, err := s.AssignToUser(context.Background(), userID, weekday)
	if err != nil {
		t.Fatalf("first assign: %v", err)
	}
	second, err := s.AssignToUser(context.Background(), userID, weekday)
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}
	if len(first) != 5 || len(second) != 5 {
		t.Fatalf("assign counts = %d, %d, want 5 each", len(first), len(second))
	}

	ids := make(map[uuid.UUID]bool, len(first))
	for _, p := range first {
		ids[p.ID] = true
	}
	for _, p := range second {
		if !ids[p.ID] {
			t.Errorf("second assign created a new progress row %s", p.ID)
		}
	}
}

func TestAssignToUserConcurrent(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)
	userID := store.AddUser("clerk_racer", "racer", true)

	const callers = 8
	results := make([][]*challenge.UserChallengeProgress, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.AssignToUser(context.Background(), userID, weekday)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}

	rows, err := s.GetUserChallenges(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetUserChallenges: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("user has %d progress rows after %d concurrent assigns, want 5", len(rows), callers)
	}
	for i := range results {
		if len(results[i]) != 5 {
			t.Errorf("caller %d saw %d rows, want 5", i, len(results[i]))
		}
	}
}

func TestUpdateProgressCompletionFiresOnce(t *testing.T) {
	store := storage.NewMemory()
	bus := events.NewBus()
	var fired int32
	var last events.ChallengeCompleted
	bus.Subscribe(func(_ context.Context, ev events.ChallengeCompleted) error {
		atomic.AddInt32(&fired, 1)
		last = ev
		return nil
	})

	s := newTestService(store, bus, weekday)
	userID := store.AddUser("clerk_b", "b", true)

	challenges, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}
	target := findByTitle(t, challenges, "Daily Reviewer")

	row, err := s.UpdateProgress(context.Background(), userID, target.ID, 40)
	if err != nil {
		t.Fatalf("UpdateProgress(40): %v", err)
	}
	if row.Completed {
		t.Fatal("completed at 40%")
	}
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("completion event fired before the threshold")
	}

	row, err = s.UpdateProgress(context.Background(), userID, target.ID, 100)
	if err != nil {
		t.Fatalf("UpdateProgress(100): %v", err)
	}
	if !row.Completed || row.CompletedAt == nil {
		t.Fatal("row not completed at 100%")
	}
	completedAt := *row.CompletedAt

	// Re-sending the same progress must not re-fire or move the timestamp.
	row, err = s.UpdateProgress(context.Background(), userID, target.ID, 100)
	if err != nil {
		t.Fatalf("repeat UpdateProgress(100): %v", err)
	}
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("completion event fired %d times, want 1", n)
	}
	if !row.Completed {
		t.Fatal("completed flag dropped on repeat update")
	}
	if !row.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt moved from %v to %v", completedAt, *row.CompletedAt)
	}

	if last.ChallengeID != target.ID || last.Points != target.Points {
		t.Errorf("event = %+v, want challenge %s / %d points", last, target.ID, target.Points)
	}
}

func TestUpdateProgressConcurrentCompletionFiresOnce(t *testing.T) {
	store := storage.NewMemory()
	bus := events.NewBus()
	var fired int32
	bus.Subscribe(func(_ context.Context, ev events.ChallengeCompleted) error {
		atomic.AddInt32(&fired, 1)
		return nil
	})

	s := newTestService(store, bus, weekday)
	userID := store.AddUser("clerk_c", "c", true)

	challenges, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}
	target := challenges[0]

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.UpdateProgress(context.Background(), userID, target.ID, 100)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("completion event fired %d times under contention, want 1", n)
	}
}

func TestUpdateProgressUnknownChallenge(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)
	userID := store.AddUser("clerk_d", "d", true)

	_, err := s.UpdateProgress(context.Background(), userID, uuid.New(), 50)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestBatchUpdateProgressSkipsFailingItems(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)
	userID := store.AddUser("clerk_e", "e", true)

	challenges, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}

	updates := []challenge.ProgressUpdate{
		{ChallengeID: challenges[0].ID, Progress: 60},
		{ChallengeID: uuid.New(), Progress: 60}, // not a real challenge
		{ChallengeID: challenges[1].ID, Progress: 100},
	}
	results, err := s.BatchUpdateProgress(context.Background(), userID, updates)
	if err != nil {
		t.Fatalf("BatchUpdateProgress: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d applied updates, want 2", len(results))
	}

	allBad := []challenge.ProgressUpdate{
		{ChallengeID: uuid.New(), Progress: 10},
		{ChallengeID: uuid.New(), Progress: 20},
	}
	if _, err := s.BatchUpdateProgress(context.Background(), userID, allBad); err == nil {
		t.Fatal("expected error when every update fails")
	}
}

func TestClaimRewardGating(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)
	userID := store.AddUser("clerk_f", "f", true)

	challenges, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}
	target := challenges[0]

	// No progress row at all.
	if _, err := s.ClaimReward(context.Background(), userID, target.ID); !errors.Is(err, ErrInvalidClaim) {
		t.Fatalf("claim without progress: err = %v, want ErrInvalidClaim", err)
	}

	// Incomplete.
	if _, err := s.UpdateProgress(context.Background(), userID, target.ID, 50); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if _, err := s.ClaimReward(context.Background(), userID, target.ID); !errors.Is(err, ErrInvalidClaim) {
		t.Fatalf("claim while incomplete: err = %v, want ErrInvalidClaim", err)
	}

	// Completed: first claim succeeds, second fails.
	if _, err := s.UpdateProgress(context.Background(), userID, target.ID, 100); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	claimed, err := s.ClaimReward(context.Background(), userID, target.ID)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if !claimed.Claimed || claimed.ClaimedAt == nil {
		t.Fatal("claim did not set claimed state")
	}
	if _, err := s.ClaimReward(context.Background(), userID, target.ID); !errors.Is(err, ErrInvalidClaim) {
		t.Fatalf("second claim: err = %v, want ErrInvalidClaim", err)
	}
}

func TestAutoAssignDailyChallengesToAllUsers(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)

	alice := store.AddUser("clerk_alice", "alice", true)
	store.AddUser("clerk_bob", "bob", true)
	store.AddUser("clerk_gone", "gone", false) // inactive, never touched

	// Alice already has today's set; re-running must count her as success
	// without duplicating rows.
	if _, err := s.AssignToUser(context.Background(), alice, weekday); err != nil {
		t.Fatalf("pre-assign: %v", err)
	}

	success, failed, err := s.AutoAssignDailyChallengesToAllUsers(context.Background())
	if err != nil {
		t.Fatalf("AutoAssign: %v", err)
	}
	if success != 2 || failed != 0 {
		t.Fatalf("success=%d failed=%d, want 2/0", success, failed)
	}

	rows, err := s.GetUserChallenges(context.Background(), alice)
	if err != nil {
		t.Fatalf("GetUserChallenges: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("alice has %d rows after auto-assign, want 5", len(rows))
	}
}

func TestResetExpiredChallenges(t *testing.T) {
	store := storage.NewMemory()
	yesterday := weekday.AddDate(0, 0, -1)

	sPast := newTestService(store, nil, yesterday)
	if _, err := sPast.GenerateChallenges(context.Background(), yesterday, nil); err != nil {
		t.Fatalf("generate yesterday: %v", err)
	}

	sToday := newTestService(store, nil, weekday)
	if _, err := sToday.GenerateChallenges(context.Background(), weekday, nil); err != nil {
		t.Fatalf("generate today: %v", err)
	}

	if err := sToday.ResetExpiredChallenges(context.Background()); err != nil {
		t.Fatalf("ResetExpiredChallenges: %v", err)
	}

	old, err := store.FindByDate(context.Background(), yesterday)
	if err != nil {
		t.Fatalf("FindByDate: %v", err)
	}
	for _, c := range old {
		if c.IsActive {
			t.Errorf("yesterday's challenge %q still active", c.Title)
		}
	}

	current, err := store.FindByDate(context.Background(), weekday)
	if err != nil {
		t.Fatalf("FindByDate: %v", err)
	}
	for _, c := range current {
		if !c.IsActive {
			t.Errorf("today's challenge %q deactivated", c.Title)
		}
	}
}

func TestGetUserChallengeCompletionRate(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)
	userID := store.AddUser("clerk_g", "g", true)

	challenges, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}
	if _, err := s.AssignToUser(context.Background(), userID, weekday); err != nil {
		t.Fatalf("AssignToUser: %v", err)
	}
	if _, err := s.UpdateProgress(context.Background(), userID, challenges[0].ID, 100); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	rate, err := s.GetUserChallengeCompletionRate(context.Background(), userID, 30)
	if err != nil {
		t.Fatalf("GetUserChallengeCompletionRate: %v", err)
	}
	if rate.TotalChallenges != 5 || rate.CompletedChallenges != 1 {
		t.Fatalf("totals = %d/%d, want 5 total 1 completed", rate.TotalChallenges, rate.CompletedChallenges)
	}
	if rate.CompletionRate != 0.2 {
		t.Errorf("rate = %v, want 0.2", rate.CompletionRate)
	}
	if len(rate.DailyStats) != 1 {
		t.Errorf("daily breakdown has %d entries, want 1", len(rate.DailyStats))
	}
}

func TestGetChallengeLeaderboard(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)

	alice := store.AddUser("clerk_lb_a", "alice", true)
	bob := store.AddUser("clerk_lb_b", "bob", true)

	challenges, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}
	for _, u := range []uuid.UUID{alice, bob} {
		if _, err := s.AssignToUser(context.Background(), u, weekday); err != nil {
			t.Fatalf("AssignToUser: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := s.UpdateProgress(context.Background(), alice, challenges[i].ID, 100); err != nil {
			t.Fatalf("UpdateProgress: %v", err)
		}
	}
	if _, err := s.UpdateProgress(context.Background(), bob, challenges[0].ID, 100); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	lb, err := s.GetChallengeLeaderboard(context.Background(), leaderboard.KindCompletion, leaderboard.PeriodWeekly, 10)
	if err != nil {
		t.Fatalf("GetChallengeLeaderboard: %v", err)
	}
	if len(lb.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(lb.Entries))
	}
	if lb.Entries[0].UserID != alice || lb.Entries[0].Rank != 1 {
		t.Errorf("top entry = %s rank %d, want alice rank 1", lb.Entries[0].Username, lb.Entries[0].Rank)
	}

	if _, err := s.GetChallengeLeaderboard(context.Background(), "bogus", leaderboard.PeriodWeekly, 10); err == nil {
		t.Fatal("expected error for unknown leaderboard type")
	}
	if _, err := s.GetChallengeLeaderboard(context.Background(), leaderboard.KindPoints, "fortnight", 10); err == nil {
		t.Fatal("expected error for unknown leaderboard period")
	}
}
