package stats

type DailyStat struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
}

type CompletionRate struct {
	TotalChallenges     int         `json:"total_challenges"`
	CompletedChallenges int         `json:"completed_challenges"`
	CompletionRate      float64     `json:"completion_rate"`
	DailyStats          []DailyStat `json:"daily_stats"`
}

type TypeCompletion struct {
	Type      string `json:"type"`
	Completed int    `json:"completed"`
}
