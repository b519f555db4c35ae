package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"learnquestAPI/internal/stats"
	"learnquestAPI/internal/types/challenge"
	"learnquestAPI/internal/types/gamification"
	"learnquestAPI/internal/types/leaderboard"
)

const uniqueViolation = "23505"

// Postgres implements every store interface against one pgx pool.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

const challengeColumns = `id, title, description, type, target, points, date, condition, is_active, created_at`

func scanChallenge(row pgx.Row) (*challenge.Challenge, error) {
	c := &challenge.Challenge{}
	err := row.Scan(
		&c.ID,
		&c.Title,
		&c.Description,
		&c.Type,
		&c.Target,
		&c.Points,
		&c.Date,
		&c.Condition,
		&c.IsActive,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Postgres) FindByDate(ctx context.Context, date time.Time) ([]*challenge.Challenge, error) {
	query := `
	SELECT ` + challengeColumns + `
	FROM challenges
	WHERE date = $1
	ORDER BY created_at, title
	`

	rows, err := s.db.Query(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch challenges for date: %w", err)
	}
	defer rows.Close()

	challenges := []*challenge.Challenge{}
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}

	return challenges, nil
}

func (s *Postgres) FindByID(ctx context.Context, id uuid.UUID) (*challenge.Challenge, error) {
	query := `
	SELECT ` + challengeColumns + `
	FROM challenges
	WHERE id = $1
	`

	c, err := scanChallenge(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	return c, nil
}

func (s *Postgres) CreateBatch(ctx context.Context, batch []*challenge.Challenge) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin challenge batch: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
	INSERT INTO challenges (id, title, description, type, target, points, date, condition, is_active, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	for _, c := range batch {
		_, err := tx.Exec(ctx, query,
			c.ID, c.Title, c.Description, c.Type, c.Target, c.Points, c.Date, c.Condition, c.IsActive, c.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrConflict
			}
			return fmt.Errorf("failed to insert challenge %s: %w", c.Title, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("failed to commit challenge batch: %w", err)
	}

	return nil
}

func (s *Postgres) DeactivateBefore(ctx context.Context, day time.Time) (int64, error) {
	result, err := s.db.Exec(ctx, `
	UPDATE challenges
	SET is_active = false
	WHERE date < $1 AND is_active = true
	`, day)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate expired challenges: %w", err)
	}

	return result.RowsAffected(), nil
}

const progressColumns = `id, user_id, challenge_id, progress, completed, completed_at, claimed, claimed_at, created_at, updated_at`

func scanProgress(row pgx.Row) (*challenge.UserChallengeProgress, error) {
	p := &challenge.UserChallengeProgress{}
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.ChallengeID,
		&p.Progress,
		&p.Completed,
		&p.CompletedAt,
		&p.Claimed,
		&p.ClaimedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Postgres) Create(ctx context.Context, p *challenge.UserChallengeProgress) error {
	// ON CONFLICT DO NOTHING plus a RETURNING check lets the losing side of a
	// concurrent create see the conflict without an error round-trip.
	query := `
	INSERT INTO user_challenge_progress (id, user_id, challenge_id, progress, completed, completed_at, claimed, claimed_at, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (user_id, challenge_id) DO NOTHING
	RETURNING id
	`

	var id uuid.UUID
	err := s.db.QueryRow(ctx, query,
		p.ID, p.UserID, p.ChallengeID, p.Progress, p.Completed, p.CompletedAt, p.Claimed, p.ClaimedAt, p.CreatedAt, p.UpdatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrConflict
		}
		return fmt.Errorf("failed to create progress row: %w", err)
	}

	return nil
}

func (s *Postgres) FindByUserAndChallenge(ctx context.Context, userID, challengeID uuid.UUID) (*challenge.UserChallengeProgress, error) {
	query := `
	SELECT ` + progressColumns + `
	FROM user_challenge_progress
	WHERE user_id = $1 AND challenge_id = $2
	`

	p, err := scanProgress(s.db.QueryRow(ctx, query, userID, challengeID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get progress row: %w", err)
	}

	return p, nil
}

func (s *Postgres) FindByUserForDate(ctx context.Context, userID uuid.UUID, day time.Time) ([]*challenge.ProgressWithChallenge, error) {
	query := `
	SELECT
		p.id, p.user_id, p.challenge_id, p.progress, p.completed, p.completed_at, p.claimed, p.claimed_at, p.created_at, p.updated_at,
		c.id, c.title, c.description, c.type, c.target, c.points, c.date, c.condition, c.is_active, c.created_at
	FROM user_challenge_progress p
	INNER JOIN challenges c ON c.id = p.challenge_id
	WHERE p.user_id = $1 AND c.date = $2
	ORDER BY c.created_at, c.title
	`

	rows, err := s.db.Query(ctx, query, userID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user challenges: %w", err)
	}
	defer rows.Close()

	list := []*challenge.ProgressWithChallenge{}
	for rows.Next() {
		pc := &challenge.ProgressWithChallenge{Challenge: &challenge.Challenge{}}
		p := &pc.UserChallengeProgress
		c := pc.Challenge
		err := rows.Scan(
			&p.ID, &p.UserID, &p.ChallengeID, &p.Progress, &p.Completed, &p.CompletedAt, &p.Claimed, &p.ClaimedAt, &p.CreatedAt, &p.UpdatedAt,
			&c.ID, &c.Title, &c.Description, &c.Type, &c.Target, &c.Points, &c.Date, &c.Condition, &c.IsActive, &c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user challenge: %w", err)
		}
		list = append(list, pc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user challenges: %w", err)
	}

	return list, nil
}

func (s *Postgres) SetProgress(ctx context.Context, userID, challengeID uuid.UUID, progress int) (*challenge.UserChallengeProgress, error) {
	query := `
	UPDATE user_challenge_progress
	SET progress = $3, updated_at = NOW()
	WHERE user_id = $1 AND challenge_id = $2
	RETURNING ` + progressColumns + `
	`

	p, err := scanProgress(s.db.QueryRow(ctx, query, userID, challengeID, progress))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update progress: %w", err)
	}

	return p, nil
}

func (s *Postgres) MarkCompleted(ctx context.Context, userID, challengeID uuid.UUID, at time.Time) (*challenge.UserChallengeProgress, bool, error) {
	// The completed = false guard makes the transition one-way: exactly one of
	// two concurrent callers gets a row back from this UPDATE.
	query := `
	UPDATE user_challenge_progress
	SET completed = true, completed_at = $3, updated_at = $3
	WHERE user_id = $1 AND challenge_id = $2 AND completed = false
	RETURNING ` + progressColumns + `
	`

	p, err := scanProgress(s.db.QueryRow(ctx, query, userID, challengeID, at))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to mark completed: %w", err)
	}

	// Already completed (or the row vanished): return the current state.
	p, err = s.FindByUserAndChallenge(ctx, userID, challengeID)
	if err != nil {
		return nil, false, err
	}
	return p, false, nil
}

func (s *Postgres) Claim(ctx context.Context, userID, challengeID uuid.UUID, at time.Time) (*challenge.UserChallengeProgress, error) {
	query := `
	UPDATE user_challenge_progress
	SET claimed = true, claimed_at = $3, updated_at = $3
	WHERE user_id = $1 AND challenge_id = $2 AND completed = true AND claimed = false
	RETURNING ` + progressColumns + `
	`

	p, err := scanProgress(s.db.QueryRow(ctx, query, userID, challengeID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim reward: %w", err)
	}

	return p, nil
}

func (s *Postgres) CompletedDays(ctx context.Context, userID uuid.UUID, from, to time.Time, activeOnly bool) (map[string]bool, error) {
	query := `
	SELECT DISTINCT TO_CHAR(c.date, 'YYYY-MM-DD')
	FROM user_challenge_progress p
	INNER JOIN challenges c ON c.id = p.challenge_id
	WHERE p.user_id = $1
		AND p.completed = true
		AND c.date >= $2
		AND c.date <= $3
	`
	if activeOnly {
		query += ` AND c.is_active = true`
	}

	rows, err := s.db.Query(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch completed days: %w", err)
	}
	defer rows.Close()

	days := make(map[string]bool)
	for rows.Next() {
		var day string
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("failed to scan completed day: %w", err)
		}
		days[day] = true
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completed days: %w", err)
	}

	return days, nil
}

func (s *Postgres) CompletionStats(ctx context.Context, userID uuid.UUID, from time.Time) (*stats.CompletionRate, error) {
	query := `
	SELECT
		TO_CHAR(c.date, 'YYYY-MM-DD') AS day,
		COUNT(*) AS total,
		COUNT(*) FILTER (WHERE p.completed = true) AS completed
	FROM user_challenge_progress p
	INNER JOIN challenges c ON c.id = p.challenge_id
	WHERE p.user_id = $1 AND c.date >= $2
	GROUP BY day
	ORDER BY day
	`

	rows, err := s.db.Query(ctx, query, userID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch completion stats: %w", err)
	}
	defer rows.Close()

	result := &stats.CompletionRate{DailyStats: []stats.DailyStat{}}
	for rows.Next() {
		var d stats.DailyStat
		if err := rows.Scan(&d.Date, &d.Total, &d.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan daily stat: %w", err)
		}
		result.DailyStats = append(result.DailyStats, d)
		result.TotalChallenges += d.Total
		result.CompletedChallenges += d.Completed
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating daily stats: %w", err)
	}

	if result.TotalChallenges > 0 {
		result.CompletionRate = float64(result.CompletedChallenges) / float64(result.TotalChallenges)
	}

	return result, nil
}

func (s *Postgres) Leaderboard(ctx context.Context, kind leaderboard.Kind, since *time.Time, limit int) ([]*leaderboard.Entry, error) {
	var orderBy string
	switch kind {
	case leaderboard.KindCompletion:
		orderBy = "score DESC, completed_count DESC"
	case leaderboard.KindPoints:
		orderBy = "points_earned DESC"
	case leaderboard.KindStreak:
		orderBy = "best_streak DESC"
	default:
		return nil, fmt.Errorf("unknown leaderboard kind: %s", kind)
	}

	query := `
	SELECT
		u.id,
		u.username,
		u.image_url,
		COUNT(*) FILTER (WHERE p.completed = true) AS completed_count,
		COALESCE(SUM(c.points) FILTER (WHERE p.completed = true), 0) AS points_earned,
		COALESCE(MAX(g.current_streak), 0) AS best_streak,
		COALESCE(COUNT(*) FILTER (WHERE p.completed = true)::float / NULLIF(COUNT(*), 0), 0) AS score
	FROM user_challenge_progress p
	INNER JOIN challenges c ON c.id = p.challenge_id
	INNER JOIN users u ON u.id = p.user_id
	LEFT JOIN gamification_profiles g ON g.user_id = u.id
	WHERE ($1::timestamptz IS NULL OR p.completed_at >= $1)
	GROUP BY u.id, u.username, u.image_url
	ORDER BY ` + orderBy + `
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch leaderboard: %w", err)
	}
	defer rows.Close()

	entries := []*leaderboard.Entry{}
	for rows.Next() {
		e := &leaderboard.Entry{}
		err := rows.Scan(&e.UserID, &e.Username, &e.ImageURL, &e.CompletedCount, &e.PointsEarned, &e.BestStreak, &e.Score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	return entries, nil
}

func (s *Postgres) CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `
	SELECT COUNT(*)
	FROM reviews
	WHERE user_id = $1 AND reviewed_at >= $2
	`

	if err := s.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count reviews: %w", err)
	}

	return count, nil
}

func (s *Postgres) DistinctCategoriesSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `
	SELECT COUNT(DISTINCT category)
	FROM reviews
	WHERE user_id = $1 AND reviewed_at >= $2
	`

	if err := s.db.QueryRow(ctx, query, userID, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count review categories: %w", err)
	}

	return count, nil
}

func (s *Postgres) ResolveClerkID(ctx context.Context, clerkID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to resolve user: %w", err)
	}

	return userID, nil
}

func (s *Postgres) ListActiveUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users WHERE is_active = true ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	defer rows.Close()

	ids := []uuid.UUID{}
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return ids, nil
}

func (s *Postgres) GetProfile(ctx context.Context, userID uuid.UUID) (*gamification.Profile, error) {
	query := `
	SELECT user_id, level, xp, points, current_streak, longest_streak, updated_at
	FROM gamification_profiles
	WHERE user_id = $1
	`

	p := &gamification.Profile{}
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&p.UserID, &p.Level, &p.XP, &p.Points, &p.CurrentStreak, &p.LongestStreak, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return p, nil
}

func (s *Postgres) AddPoints(ctx context.Context, userID uuid.UUID, points int) error {
	query := `
	INSERT INTO gamification_profiles (user_id, level, xp, points, current_streak, longest_streak, updated_at)
	VALUES ($1, 1, $2, $2, 0, 0, NOW())
	ON CONFLICT (user_id)
	DO UPDATE SET
		xp = gamification_profiles.xp + $2,
		points = gamification_profiles.points + $2,
		updated_at = NOW()
	`

	if _, err := s.db.Exec(ctx, query, userID, points); err != nil {
		return fmt.Errorf("failed to add points: %w", err)
	}

	return nil
}

func (s *Postgres) DeviceTokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT token FROM device_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch device tokens: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var token string
		if err := rows.Scan(&token); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, token)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device tokens: %w", err)
	}

	return tokens, nil
}

func (s *Postgres) ListAchievements(ctx context.Context) ([]*gamification.Achievement, error) {
	query := `
	SELECT id, name, description, icon, criteria_type, criteria_value, created_at
	FROM achievements
	ORDER BY criteria_value
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch achievements: %w", err)
	}
	defer rows.Close()

	achievements := []*gamification.Achievement{}
	for rows.Next() {
		a := &gamification.Achievement{}
		err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.Icon, &a.CriteriaType, &a.CriteriaValue, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		achievements = append(achievements, a)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating achievements: %w", err)
	}

	return achievements, nil
}

func (s *Postgres) Unlock(ctx context.Context, userID, achievementID uuid.UUID, at time.Time) (bool, error) {
	query := `
	INSERT INTO user_achievements (id, user_id, achievement_id, unlocked_at)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (user_id, achievement_id) DO NOTHING
	`

	result, err := s.db.Exec(ctx, query, uuid.New(), userID, achievementID, at)
	if err != nil {
		return false, fmt.Errorf("failed to unlock achievement: %w", err)
	}

	return result.RowsAffected() > 0, nil
}
