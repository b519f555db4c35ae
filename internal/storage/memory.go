package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"learnquestAPI/internal/stats"
	"learnquestAPI/internal/types/challenge"
	"learnquestAPI/internal/types/gamification"
	"learnquestAPI/internal/types/leaderboard"
	"learnquestAPI/internal/types/review"
)

// Memory is an in-memory implementation of every store interface with the
// same uniqueness and transition semantics as the postgres one. It backs the
// service tests and doubles as a driverless local backend.
type Memory struct {
	mu           sync.Mutex
	challenges   map[uuid.UUID]*challenge.Challenge
	progress     map[progressKey]*challenge.UserChallengeProgress
	reviews      []*review.Review
	users        map[uuid.UUID]*memUser
	clerkIDs     map[string]uuid.UUID
	profiles     map[uuid.UUID]*gamification.Profile
	tokens       map[uuid.UUID][]string
	achievements []*gamification.Achievement
	unlocks      map[progressKey]time.Time // user + achievement

	// FailChallengeReads makes challenge/progress reads error, for exercising
	// fail-closed paths in tests.
	FailReads error
}

type progressKey struct {
	userID uuid.UUID
	other  uuid.UUID
}

type memUser struct {
	id       uuid.UUID
	username string
	active   bool
}

func NewMemory() *Memory {
	return &Memory{
		challenges: make(map[uuid.UUID]*challenge.Challenge),
		progress:   make(map[progressKey]*challenge.UserChallengeProgress),
		users:      make(map[uuid.UUID]*memUser),
		clerkIDs:   make(map[string]uuid.UUID),
		profiles:   make(map[uuid.UUID]*gamification.Profile),
		tokens:     make(map[uuid.UUID][]string),
		unlocks:    make(map[progressKey]time.Time),
	}
}

func cloneChallenge(c *challenge.Challenge) *challenge.Challenge {
	out := *c
	return &out
}

func cloneProgress(p *challenge.UserChallengeProgress) *challenge.UserChallengeProgress {
	out := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		out.CompletedAt = &t
	}
	if p.ClaimedAt != nil {
		t := *p.ClaimedAt
		out.ClaimedAt = &t
	}
	return &out
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func (m *Memory) FindByDate(_ context.Context, date time.Time) ([]*challenge.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}

	out := []*challenge.Challenge{}
	for _, c := range m.challenges {
		if sameDay(c.Date, date) {
			out = append(out, cloneChallenge(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *Memory) FindByID(_ context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}

	c, ok := m.challenges[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneChallenge(c), nil
}

func (m *Memory) CreateBatch(_ context.Context, batch []*challenge.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Unique on (date, title), all or nothing like the SQL transaction.
	for _, c := range batch {
		for _, existing := range m.challenges {
			if existing.Title == c.Title && sameDay(existing.Date, c.Date) {
				return ErrConflict
			}
		}
	}
	for _, c := range batch {
		m.challenges[c.ID] = cloneChallenge(c)
	}
	return nil
}

func (m *Memory) DeactivateBefore(_ context.Context, day time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, c := range m.challenges {
		if c.IsActive && c.Date.Before(day) {
			c.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *Memory) Create(_ context.Context, p *challenge.UserChallengeProgress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := progressKey{p.UserID, p.ChallengeID}
	if _, exists := m.progress[key]; exists {
		return ErrConflict
	}
	m.progress[key] = cloneProgress(p)
	return nil
}

func (m *Memory) FindByUserAndChallenge(_ context.Context, userID, challengeID uuid.UUID) (*challenge.UserChallengeProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}

	p, ok := m.progress[progressKey{userID, challengeID}]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProgress(p), nil
}

func (m *Memory) FindByUserForDate(_ context.Context, userID uuid.UUID, day time.Time) ([]*challenge.ProgressWithChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}

	out := []*challenge.ProgressWithChallenge{}
	for key, p := range m.progress {
		if key.userID != userID {
			continue
		}
		c, ok := m.challenges[p.ChallengeID]
		if !ok || !sameDay(c.Date, day) {
			continue
		}
		out = append(out, &challenge.ProgressWithChallenge{
			UserChallengeProgress: *cloneProgress(p),
			Challenge:             cloneChallenge(c),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Challenge.Title < out[j].Challenge.Title })
	return out, nil
}

func (m *Memory) SetProgress(_ context.Context, userID, challengeID uuid.UUID, progress int) (*challenge.UserChallengeProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.progress[progressKey{userID, challengeID}]
	if !ok {
		return nil, ErrNotFound
	}
	p.Progress = progress
	p.UpdatedAt = time.Now()
	return cloneProgress(p), nil
}

func (m *Memory) MarkCompleted(_ context.Context, userID, challengeID uuid.UUID, at time.Time) (*challenge.UserChallengeProgress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.progress[progressKey{userID, challengeID}]
	if !ok {
		return nil, false, ErrNotFound
	}
	if p.Completed {
		return cloneProgress(p), false, nil
	}
	p.Completed = true
	t := at
	p.CompletedAt = &t
	p.UpdatedAt = at
	return cloneProgress(p), true, nil
}

func (m *Memory) Claim(_ context.Context, userID, challengeID uuid.UUID, at time.Time) (*challenge.UserChallengeProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.progress[progressKey{userID, challengeID}]
	if !ok || !p.Completed || p.Claimed {
		return nil, ErrNotFound
	}
	p.Claimed = true
	t := at
	p.ClaimedAt = &t
	p.UpdatedAt = at
	return cloneProgress(p), nil
}

func (m *Memory) CompletedDays(_ context.Context, userID uuid.UUID, from, to time.Time, activeOnly bool) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return nil, m.FailReads
	}

	days := make(map[string]bool)
	for key, p := range m.progress {
		if key.userID != userID || !p.Completed {
			continue
		}
		c, ok := m.challenges[p.ChallengeID]
		if !ok || c.Date.Before(from) || c.Date.After(to) {
			continue
		}
		if activeOnly && !c.IsActive {
			continue
		}
		days[c.Date.Format("2006-01-02")] = true
	}
	return days, nil
}

func (m *Memory) CompletionStats(_ context.Context, userID uuid.UUID, from time.Time) (*stats.CompletionRate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byDay := make(map[string]*stats.DailyStat)
	for key, p := range m.progress {
		if key.userID != userID {
			continue
		}
		c, ok := m.challenges[p.ChallengeID]
		if !ok || c.Date.Before(from) {
			continue
		}
		day := c.Date.Format("2006-01-02")
		d, ok := byDay[day]
		if !ok {
			d = &stats.DailyStat{Date: day}
			byDay[day] = d
		}
		d.Total++
		if p.Completed {
			d.Completed++
		}
	}

	result := &stats.CompletionRate{DailyStats: []stats.DailyStat{}}
	keys := make([]string, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		d := byDay[k]
		result.DailyStats = append(result.DailyStats, *d)
		result.TotalChallenges += d.Total
		result.CompletedChallenges += d.Completed
	}
	if result.TotalChallenges > 0 {
		result.CompletionRate = float64(result.CompletedChallenges) / float64(result.TotalChallenges)
	}
	return result, nil
}

func (m *Memory) Leaderboard(_ context.Context, kind leaderboard.Kind, since *time.Time, limit int) ([]*leaderboard.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	type agg struct {
		total     int
		completed int
		points    int
	}
	byUser := make(map[uuid.UUID]*agg)
	for key, p := range m.progress {
		if since != nil && (p.CompletedAt == nil || p.CompletedAt.Before(*since)) {
			continue
		}
		a, ok := byUser[key.userID]
		if !ok {
			a = &agg{}
			byUser[key.userID] = a
		}
		a.total++
		if p.Completed {
			a.completed++
			if c, ok := m.challenges[p.ChallengeID]; ok {
				a.points += c.Points
			}
		}
	}

	entries := []*leaderboard.Entry{}
	for id, a := range byUser {
		e := &leaderboard.Entry{
			UserID:         id,
			CompletedCount: a.completed,
			PointsEarned:   a.points,
		}
		if u, ok := m.users[id]; ok {
			e.Username = u.username
		}
		if prof, ok := m.profiles[id]; ok {
			e.BestStreak = prof.CurrentStreak
		}
		if a.total > 0 {
			e.Score = float64(a.completed) / float64(a.total)
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		switch kind {
		case leaderboard.KindPoints:
			return entries[i].PointsEarned > entries[j].PointsEarned
		case leaderboard.KindStreak:
			return entries[i].BestStreak > entries[j].BestStreak
		default:
			if entries[i].Score != entries[j].Score {
				return entries[i].Score > entries[j].Score
			}
			return entries[i].CompletedCount > entries[j].CompletedCount
		}
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i, e := range entries {
		e.Rank = i + 1
	}
	return entries, nil
}

func (m *Memory) CountSince(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return 0, m.FailReads
	}

	count := 0
	for _, r := range m.reviews {
		if r.UserID == userID && !r.ReviewedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) DistinctCategoriesSince(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailReads != nil {
		return 0, m.FailReads
	}

	categories := make(map[string]bool)
	for _, r := range m.reviews {
		if r.UserID == userID && !r.ReviewedAt.Before(since) {
			categories[r.Category] = true
		}
	}
	return len(categories), nil
}

func (m *Memory) ResolveClerkID(_ context.Context, clerkID string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.clerkIDs[clerkID]
	if !ok {
		return uuid.Nil, ErrNotFound
	}
	return id, nil
}

func (m *Memory) ListActiveUserIDs(_ context.Context) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := []uuid.UUID{}
	for id, u := range m.users {
		if u.active {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (m *Memory) GetProfile(_ context.Context, userID uuid.UUID) (*gamification.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *p
	return &out, nil
}

func (m *Memory) AddPoints(_ context.Context, userID uuid.UUID, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.profiles[userID]
	if !ok {
		p = &gamification.Profile{UserID: userID, Level: 1}
		m.profiles[userID] = p
	}
	p.XP += points
	p.Points += points
	p.UpdatedAt = time.Now()
	return nil
}

func (m *Memory) DeviceTokens(_ context.Context, userID uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.tokens[userID]...), nil
}

func (m *Memory) ListAchievements(_ context.Context) ([]*gamification.Achievement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*gamification.Achievement, 0, len(m.achievements))
	for _, a := range m.achievements {
		dup := *a
		out = append(out, &dup)
	}
	return out, nil
}

func (m *Memory) Unlock(_ context.Context, userID, achievementID uuid.UUID, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := progressKey{userID, achievementID}
	if _, exists := m.unlocks[key]; exists {
		return false, nil
	}
	m.unlocks[key] = at
	return true, nil
}

// Seeding helpers for tests and the driverless backend.

func (m *Memory) AddUser(clerkID, username string, active bool) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New()
	m.users[id] = &memUser{id: id, username: username, active: active}
	if clerkID != "" {
		m.clerkIDs[clerkID] = id
	}
	return id
}

func (m *Memory) SetProfile(p *gamification.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *p
	m.profiles[p.UserID] = &dup
}

func (m *Memory) AddReview(r *review.Review) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *r
	m.reviews = append(m.reviews, &dup)
}

func (m *Memory) AddDeviceToken(userID uuid.UUID, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID] = append(m.tokens[userID], token)
}

func (m *Memory) AddAchievement(a *gamification.Achievement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dup := *a
	m.achievements = append(m.achievements, &dup)
}
