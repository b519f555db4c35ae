package leaderboard

import "github.com/google/uuid"

type Kind string

const (
	KindCompletion Kind = "completion"
	KindPoints     Kind = "points"
	KindStreak     Kind = "streak"
)

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodAllTime Period = "all_time"
)

type Entry struct {
	Rank           int       `json:"rank" db:"rank"`
	UserID         uuid.UUID `json:"user_id" db:"user_id"`
	Username       string    `json:"username" db:"username"`
	ImageURL       *string   `json:"image_url" db:"image_url"`
	CompletedCount int       `json:"completed_count" db:"completed_count"`
	PointsEarned   int       `json:"points_earned" db:"points_earned"`
	BestStreak     int       `json:"best_streak" db:"best_streak"`
	Score          float64   `json:"score" db:"score"`
}

type Leaderboard struct {
	Kind    Kind     `json:"kind"`
	Period  Period   `json:"period"`
	Entries []*Entry `json:"entries"`
}
