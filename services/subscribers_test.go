package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"learnquestAPI/internal/events"
	"learnquestAPI/internal/storage"
	"learnquestAPI/internal/types/gamification"
)

func TestPointsSubscriberCreditsProfile(t *testing.T) {
	store := storage.NewMemory()
	userID := store.AddUser("clerk_pts", "pts", true)

	svc := NewPointsService(store)
	ev := events.ChallengeCompleted{UserID: userID, ChallengeID: uuid.New(), Title: "Daily Reviewer", Points: 50, CompletedAt: weekday}

	if err := svc.HandleChallengeCompleted(context.Background(), ev); err != nil {
		t.Fatalf("HandleChallengeCompleted: %v", err)
	}
	if err := svc.HandleChallengeCompleted(context.Background(), ev); err != nil {
		t.Fatalf("second HandleChallengeCompleted: %v", err)
	}

	profile, err := store.GetProfile(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.Points != 100 || profile.XP != 100 {
		t.Errorf("profile points/xp = %d/%d, want 100/100", profile.Points, profile.XP)
	}
}

func TestAwardPointsIgnoresNonPositive(t *testing.T) {
	store := storage.NewMemory()
	userID := store.AddUser("clerk_zero", "zero", true)

	svc := NewPointsService(store)
	if err := svc.AwardPoints(context.Background(), userID, 0, "noop"); err != nil {
		t.Fatalf("AwardPoints(0): %v", err)
	}
	if _, err := store.GetProfile(context.Background(), userID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("zero award created a profile: err = %v", err)
	}
}

func TestAchievementRecheckUnlocksOnce(t *testing.T) {
	store := storage.NewMemory()
	s := newTestService(store, nil, weekday)
	userID := store.AddUser("clerk_ach", "ach", true)

	store.AddAchievement(&gamification.Achievement{
		ID: uuid.New(), Name: "First Steps",
		CriteriaType: gamification.CriteriaChallengesCompleted, CriteriaValue: 1,
	})
	store.AddAchievement(&gamification.Achievement{
		ID: uuid.New(), Name: "Point Hoarder",
		CriteriaType: gamification.CriteriaPointsEarned, CriteriaValue: 1000,
	})

	challenges, err := s.GenerateChallenges(context.Background(), weekday, nil)
	if err != nil {
		t.Fatalf("GenerateChallenges: %v", err)
	}
	if _, err := s.UpdateProgress(context.Background(), userID, challenges[0].ID, 100); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	achievements := NewAchievementService(store, store, store)
	achievements.now = func() time.Time { return weekday }

	unlocked, err := achievements.RecheckForUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("RecheckForUser: %v", err)
	}
	if unlocked != 1 {
		t.Fatalf("unlocked %d achievements, want 1 (points criterion unmet)", unlocked)
	}

	unlocked, err = achievements.RecheckForUser(context.Background(), userID)
	if err != nil {
		t.Fatalf("second RecheckForUser: %v", err)
	}
	if unlocked != 0 {
		t.Errorf("recheck re-unlocked %d achievements, want 0", unlocked)
	}
}

type fakePushProvider struct {
	calls  int
	tokens []string
	body   string
	err    error
}

func (f *fakePushProvider) SendPush(_ context.Context, tokens []string, _, body string, _ map[string]string) error {
	f.calls++
	f.tokens = tokens
	f.body = body
	return f.err
}

func TestNotificationSubscriberSendsPush(t *testing.T) {
	store := storage.NewMemory()
	userID := store.AddUser("clerk_push", "push", true)
	store.AddDeviceToken(userID, "token-1")
	store.AddDeviceToken(userID, "token-2")

	provider := &fakePushProvider{}
	svc := NewNotificationService(store)
	svc.SetPushProvider(provider)

	ev := events.ChallengeCompleted{UserID: userID, ChallengeID: uuid.New(), Title: "Sharp Mind", Points: 75, CompletedAt: weekday}
	if err := svc.HandleChallengeCompleted(context.Background(), ev); err != nil {
		t.Fatalf("HandleChallengeCompleted: %v", err)
	}
	if provider.calls != 1 || len(provider.tokens) != 2 {
		t.Fatalf("push calls=%d tokens=%v, want 1 call with 2 tokens", provider.calls, provider.tokens)
	}
}

func TestNotificationSubscriberSkipsWithoutTokensOrProvider(t *testing.T) {
	store := storage.NewMemory()
	userID := store.AddUser("clerk_quiet", "quiet", true)
	ev := events.ChallengeCompleted{UserID: userID, ChallengeID: uuid.New(), Title: "Sharp Mind", Points: 75, CompletedAt: weekday}

	// No provider wired.
	svc := NewNotificationService(store)
	if err := svc.HandleChallengeCompleted(context.Background(), ev); err != nil {
		t.Fatalf("no provider: %v", err)
	}

	// Provider wired but the user has no devices.
	provider := &fakePushProvider{}
	svc.SetPushProvider(provider)
	if err := svc.HandleChallengeCompleted(context.Background(), ev); err != nil {
		t.Fatalf("no tokens: %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("push sent to a user with no device tokens")
	}
}

func TestBusIsolatesFailingSubscriber(t *testing.T) {
	bus := events.NewBus()
	var reached bool
	bus.Subscribe(func(context.Context, events.ChallengeCompleted) error {
		return errors.New("subscriber down")
	})
	bus.Subscribe(func(context.Context, events.ChallengeCompleted) error {
		panic("subscriber panicked")
	})
	bus.Subscribe(func(context.Context, events.ChallengeCompleted) error {
		reached = true
		return nil
	})

	bus.Publish(context.Background(), events.ChallengeCompleted{UserID: uuid.New()})
	if !reached {
		t.Fatal("a failing subscriber blocked later subscribers")
	}
}
