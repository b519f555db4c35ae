package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"learnquestAPI/internal/events"
	"learnquestAPI/internal/stats"
	"learnquestAPI/internal/storage"
	"learnquestAPI/internal/types/challenge"
	"learnquestAPI/internal/types/leaderboard"
	"learnquestAPI/utils"
)

// ErrInvalidClaim rejects a reward claim on a missing, incomplete or
// already-claimed progress row.
var ErrInvalidClaim = errors.New("invalid claim")

// completionThreshold: progress is a percentage, a challenge is complete once
// the caller reports 100 or more.
const completionThreshold = 100

// completionRateWindow is how far back the generator looks when scaling
// difficulty from a user's history.
const completionRateWindow = 30 // days

// DailyChallengeService owns the daily challenge lifecycle: generation,
// per-user assignment, progress tracking, reward claims and the read-only
// rollups on top of them.
type DailyChallengeService struct {
	challenges storage.ChallengeStore
	progress   storage.ProgressStore
	users      storage.UserStore
	bus        *events.Bus

	now  func() time.Time
	pick func(n int) int
}

func NewDailyChallengeService(
	challenges storage.ChallengeStore,
	progress storage.ProgressStore,
	users storage.UserStore,
	bus *events.Bus,
) *DailyChallengeService {
	return &DailyChallengeService{
		challenges: challenges,
		progress:   progress,
		users:      users,
		bus:        bus,
		now:        time.Now,
		pick:       rand.Intn,
	}
}

// ResolveUser maps an authenticated clerk ID to the internal user id.
func (s *DailyChallengeService) ResolveUser(ctx context.Context, clerkID string) (uuid.UUID, error) {
	return s.users.ResolveClerkID(ctx, clerkID)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// GenerateChallenges returns the canonical challenge set for a day, creating
// it when absent. Generation is idempotent: a scheduling job and an ad-hoc
// user request may both trigger it for the same day and must converge on one
// persisted set.
func (s *DailyChallengeService) GenerateChallenges(ctx context.Context, date time.Time, userID *uuid.UUID) ([]*challenge.Challenge, error) {
	day := startOfDay(date)

	existing, err := s.challenges.FindByDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing challenges: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	multiplier := s.difficultyMultiplier(ctx, userID)
	templates := s.selectTemplates(day)

	batch := make([]*challenge.Challenge, 0, len(templates))
	for _, tpl := range templates {
		target := scale(tpl.BaseTarget, multiplier)
		if target < 1 {
			target = 1
		}
		points := scale(tpl.BasePoints, multiplier)

		description := tpl.Description
		if target != tpl.BaseTarget {
			description = strings.Replace(description, strconv.Itoa(tpl.BaseTarget), strconv.Itoa(target), 1)
		}

		batch = append(batch, &challenge.Challenge{
			ID:          uuid.New(),
			Title:       tpl.Title,
			Description: description,
			Type:        tpl.Type,
			Target:      target,
			Points:      points,
			Date:        day,
			Condition:   tpl.Condition,
			IsActive:    true,
			CreatedAt:   s.now(),
		})
	}

	if err := s.challenges.CreateBatch(ctx, batch); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Another caller generated this day first. Discard our batch and
			// hand back the winner's set.
			return s.challenges.FindByDate(ctx, day)
		}
		return nil, fmt.Errorf("failed to persist challenges for %s: %w", day.Format("2006-01-02"), err)
	}

	log.Printf("Generated %d challenges for %s (multiplier %.2f)", len(batch), day.Format("2006-01-02"), multiplier)
	return batch, nil
}

// scale floors base*multiplier. The epsilon keeps stacked multipliers like
// 1.5*1.2 (stored as 1.7999...) from truncating one below the intended value.
func scale(base int, multiplier float64) int {
	return int(math.Floor(float64(base)*multiplier + 1e-9))
}

func (s *DailyChallengeService) selectTemplates(day time.Time) []challenge.Template {
	templates := make([]challenge.Template, 0, len(challenge.BaseTemplates)+2)
	templates = append(templates, challenge.BaseTemplates...)
	if isWeekend(day) {
		templates = append(templates, challenge.WeekendTemplate)
	}
	if len(challenge.AdvancedTemplates) > 0 {
		templates = append(templates, challenge.AdvancedTemplates[s.pick(len(challenge.AdvancedTemplates))])
	}
	return templates
}

// difficultyMultiplier is 1.0 for anonymous generation or when the user's
// history cannot be read; a profile lookup failure must never block the day's
// challenge set.
func (s *DailyChallengeService) difficultyMultiplier(ctx context.Context, userID *uuid.UUID) float64 {
	if userID == nil {
		return 1.0
	}

	level := 1
	profile, err := s.users.GetProfile(ctx, *userID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("GenerateChallenges: failed to load profile for %s: %v", *userID, err)
		}
	} else {
		level = profile.Level
	}

	from := startOfDay(s.now()).AddDate(0, 0, -completionRateWindow)
	history, err := s.progress.CompletionStats(ctx, *userID, from)
	if err != nil {
		log.Printf("GenerateChallenges: failed to load completion history for %s: %v", *userID, err)
		return utils.DifficultyMultiplier(level, 0, false)
	}

	return utils.DifficultyMultiplier(level, history.CompletionRate, history.TotalChallenges > 0)
}

// AssignToUser binds the day's challenges to one user, exactly once per
// (user, challenge) pair. Losing a creation race on one challenge never
// aborts the rest; calling twice returns the same rows.
func (s *DailyChallengeService) AssignToUser(ctx context.Context, userID uuid.UUID, date time.Time) ([]*challenge.UserChallengeProgress, error) {
	challenges, err := s.GenerateChallenges(ctx, date, &userID)
	if err != nil {
		return nil, err
	}

	assigned := make([]*challenge.UserChallengeProgress, 0, len(challenges))
	for _, ch := range challenges {
		now := s.now()
		row := &challenge.UserChallengeProgress{
			ID:          uuid.New(),
			UserID:      userID,
			ChallengeID: ch.ID,
			Progress:    0,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		err := s.progress.Create(ctx, row)
		if err != nil {
			if !errors.Is(err, storage.ErrConflict) {
				return nil, fmt.Errorf("failed to assign challenge %s to user %s: %w", ch.ID, userID, err)
			}
			// Another request created this row first; use theirs.
			row, err = s.progress.FindByUserAndChallenge(ctx, userID, ch.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch existing assignment for challenge %s: %w", ch.ID, err)
			}
		}
		assigned = append(assigned, row)
	}

	return assigned, nil
}

// UpdateProgress records a caller-supplied progress percentage and detects
// the completion transition. Side effects (points, achievements, push) fire
// exactly once, via the event bus, and never roll back the write.
func (s *DailyChallengeService) UpdateProgress(ctx context.Context, userID, challengeID uuid.UUID, progress int) (*challenge.UserChallengeProgress, error) {
	ch, err := s.challenges.FindByID(ctx, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenge %s: %w", challengeID, err)
	}

	row, err := s.progress.FindByUserAndChallenge(ctx, userID, challengeID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		now := s.now()
		row = &challenge.UserChallengeProgress{
			ID:          uuid.New(),
			UserID:      userID,
			ChallengeID: challengeID,
			Progress:    progress,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if createErr := s.progress.Create(ctx, row); createErr != nil {
			if !errors.Is(createErr, storage.ErrConflict) {
				return nil, fmt.Errorf("failed to create progress for challenge %s: %w", challengeID, createErr)
			}
			// Lost the creation race; treat this call as an update instead.
			row, err = s.progress.SetProgress(ctx, userID, challengeID, progress)
			if err != nil {
				return nil, fmt.Errorf("failed to update progress for challenge %s: %w", challengeID, err)
			}
		}
	case err != nil:
		return nil, fmt.Errorf("failed to load progress for challenge %s: %w", challengeID, err)
	default:
		row, err = s.progress.SetProgress(ctx, userID, challengeID, progress)
		if err != nil {
			return nil, fmt.Errorf("failed to update progress for challenge %s: %w", challengeID, err)
		}
	}

	if progress >= completionThreshold {
		completedRow, justCompleted, err := s.progress.MarkCompleted(ctx, userID, challengeID, s.now())
		if err != nil {
			return nil, fmt.Errorf("failed to complete challenge %s: %w", challengeID, err)
		}
		row = completedRow

		if justCompleted {
			s.bus.Publish(ctx, events.ChallengeCompleted{
				UserID:      userID,
				ChallengeID: challengeID,
				Title:       ch.Title,
				Points:      ch.Points,
				CompletedAt: *row.CompletedAt,
			})
		}
	}

	return row, nil
}

// BatchUpdateProgress applies UpdateProgress per item with no cross-item
// atomicity; a failing item is logged and skipped.
func (s *DailyChallengeService) BatchUpdateProgress(ctx context.Context, userID uuid.UUID, updates []challenge.ProgressUpdate) ([]*challenge.UserChallengeProgress, error) {
	results := make([]*challenge.UserChallengeProgress, 0, len(updates))
	var failed int
	for _, u := range updates {
		row, err := s.UpdateProgress(ctx, userID, u.ChallengeID, u.Progress)
		if err != nil {
			log.Printf("BatchUpdateProgress: item failed for user %s challenge %s: %v", userID, u.ChallengeID, err)
			failed++
			continue
		}
		results = append(results, row)
	}

	if failed == len(updates) && failed > 0 {
		return nil, fmt.Errorf("all %d progress updates failed", failed)
	}
	return results, nil
}

// ClaimReward is the sole writer of the claimed flag. It is a one-shot
// transition: a second claim on the same row fails.
func (s *DailyChallengeService) ClaimReward(ctx context.Context, userID, challengeID uuid.UUID) (*challenge.UserChallengeProgress, error) {
	row, err := s.progress.FindByUserAndChallenge(ctx, userID, challengeID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no progress recorded for this challenge", ErrInvalidClaim)
		}
		return nil, fmt.Errorf("failed to load progress for claim: %w", err)
	}
	if !row.Completed {
		return nil, fmt.Errorf("%w: challenge not completed yet", ErrInvalidClaim)
	}
	if row.Claimed {
		return nil, fmt.Errorf("%w: reward already claimed", ErrInvalidClaim)
	}

	claimed, err := s.progress.Claim(ctx, userID, challengeID, s.now())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// A concurrent claim got there between our read and the update.
			return nil, fmt.Errorf("%w: reward already claimed", ErrInvalidClaim)
		}
		return nil, fmt.Errorf("failed to claim reward for challenge %s: %w", challengeID, err)
	}

	return claimed, nil
}

// GetChallenge loads one challenge by id.
func (s *DailyChallengeService) GetChallenge(ctx context.Context, challengeID uuid.UUID) (*challenge.Challenge, error) {
	return s.challenges.FindByID(ctx, challengeID)
}

// GetDailyChallenges lists (generating on demand) the challenge set for a day.
func (s *DailyChallengeService) GetDailyChallenges(ctx context.Context, date time.Time) ([]*challenge.Challenge, error) {
	return s.GenerateChallenges(ctx, date, nil)
}

// GetUserChallenges returns today's progress rows joined with their challenges.
func (s *DailyChallengeService) GetUserChallenges(ctx context.Context, userID uuid.UUID) ([]*challenge.ProgressWithChallenge, error) {
	return s.progress.FindByUserForDate(ctx, userID, startOfDay(s.now()))
}

// AutoAssignDailyChallengesToAllUsers walks every active user, skipping those
// already assigned for today. One user's failure increments the failure
// counter and the run continues.
func (s *DailyChallengeService) AutoAssignDailyChallengesToAllUsers(ctx context.Context) (success, failed int, err error) {
	userIDs, err := s.users.ListActiveUserIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list active users: %w", err)
	}

	today := startOfDay(s.now())
	for _, userID := range userIDs {
		existing, lookupErr := s.progress.FindByUserForDate(ctx, userID, today)
		if lookupErr != nil {
			log.Printf("AutoAssign: failed to check assignments for user %s: %v", userID, lookupErr)
			failed++
			continue
		}
		if len(existing) > 0 {
			success++
			continue
		}

		if _, assignErr := s.AssignToUser(ctx, userID, today); assignErr != nil {
			log.Printf("AutoAssign: failed to assign challenges to user %s: %v", userID, assignErr)
			failed++
			continue
		}
		success++
	}

	log.Printf("AutoAssign: %d users assigned, %d failed", success, failed)
	return success, failed, nil
}

// ResetExpiredChallenges flips is_active off for challenges dated before today.
func (s *DailyChallengeService) ResetExpiredChallenges(ctx context.Context) error {
	count, err := s.challenges.DeactivateBefore(ctx, startOfDay(s.now()))
	if err != nil {
		return fmt.Errorf("failed to reset expired challenges: %w", err)
	}

	if count > 0 {
		log.Printf("Deactivated %d expired challenges", count)
	}
	return nil
}

// GetUserChallengeCompletionRate aggregates the user's last N days of
// assignments into totals, a rate and a per-day breakdown.
func (s *DailyChallengeService) GetUserChallengeCompletionRate(ctx context.Context, userID uuid.UUID, days int) (*stats.CompletionRate, error) {
	if days <= 0 {
		days = completionRateWindow
	}
	from := startOfDay(s.now()).AddDate(0, 0, -(days - 1))

	result, err := s.progress.CompletionStats(ctx, userID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to compute completion rate for user %s: %w", userID, err)
	}
	return result, nil
}

// GetChallengeLeaderboard ranks users by completion rate, points earned or
// streak over the requested period.
func (s *DailyChallengeService) GetChallengeLeaderboard(ctx context.Context, kind leaderboard.Kind, period leaderboard.Period, limit int) (*leaderboard.Leaderboard, error) {
	switch kind {
	case leaderboard.KindCompletion, leaderboard.KindPoints, leaderboard.KindStreak:
	default:
		return nil, fmt.Errorf("unknown leaderboard type: %s", kind)
	}

	var since *time.Time
	today := startOfDay(s.now())
	switch period {
	case leaderboard.PeriodDaily:
		since = &today
	case leaderboard.PeriodWeekly:
		t := today.AddDate(0, 0, -7)
		since = &t
	case leaderboard.PeriodMonthly:
		t := today.AddDate(0, -1, 0)
		since = &t
	case leaderboard.PeriodAllTime:
		since = nil
	default:
		return nil, fmt.Errorf("unknown leaderboard period: %s", period)
	}

	if limit <= 0 || limit > 100 {
		limit = 10
	}

	entries, err := s.progress.Leaderboard(ctx, kind, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s leaderboard: %w", kind, err)
	}

	return &leaderboard.Leaderboard{Kind: kind, Period: period, Entries: entries}, nil
}
