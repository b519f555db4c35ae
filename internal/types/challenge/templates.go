package challenge

// Template is the static description a daily Challenge is stamped from.
// Templates are not persisted; the generator re-reads the catalog every cycle
// and scales BaseTarget/BasePoints by the user's difficulty multiplier.
type Template struct {
	Title       string
	Description string
	Type        Type
	BaseTarget  int
	BasePoints  int
	Condition   ConditionTag
}

// BaseTemplates are stamped every day for every generation cycle.
var BaseTemplates = []Template{
	{
		Title:       "Daily Reviewer",
		Description: "Complete 10 reviews today",
		Type:        TypeReviewCount,
		BaseTarget:  10,
		BasePoints:  50,
	},
	{
		Title:       "Sharp Mind",
		Description: "Reach 80% accuracy across today's reviews",
		Type:        TypeReviewAccuracy,
		BaseTarget:  80,
		BasePoints:  75,
	},
	{
		Title:       "Memory Maker",
		Description: "Create 3 new memories",
		Type:        TypeMemoryCreated,
		BaseTarget:  3,
		BasePoints:  40,
	},
	{
		Title:       "Keep the Flame",
		Description: "Extend your streak by 1 day",
		Type:        TypeStreakDays,
		BaseTarget:  1,
		BasePoints:  30,
	},
}

// WeekendTemplate is added only when the generation date falls on Sat/Sun.
var WeekendTemplate = Template{
	Title:       "Weekend Warrior",
	Description: "Complete 20 reviews this weekend day",
	Type:        TypeReviewCount,
	BaseTarget:  20,
	BasePoints:  100,
	Condition:   ConditionWeekendOnly,
}

// AdvancedTemplates is the pool one extra challenge is drawn from each day.
// Weekend-only templates never live here.
var AdvancedTemplates = []Template{
	{
		Title:       "Speed Run",
		Description: "Complete 5 reviews within 30 minutes",
		Type:        TypeReviewCount,
		BaseTarget:  5,
		BasePoints:  80,
		Condition:   ConditionTimeLimit,
	},
	{
		Title:       "Week of Discipline",
		Description: "Complete a challenge 7 days in a row",
		Type:        TypeStreakDays,
		BaseTarget:  7,
		BasePoints:  150,
		Condition:   ConditionConsecutiveDays,
	},
	{
		Title:       "Explorer",
		Description: "Review 3 different categories today",
		Type:        TypeCategoryFocus,
		BaseTarget:  3,
		BasePoints:  90,
		Condition:   ConditionVariety,
	},
	{
		Title:       "Full Sweep",
		Description: "Finish every daily challenge 7 days straight",
		Type:        TypeReviewCount,
		BaseTarget:  7,
		BasePoints:  200,
		Condition:   ConditionWeeklyCompletion,
	},
}
