package utils

// DifficultyMultiplier scales challenge targets and points from a user's
// level and 30-day completion rate. Pure function of its inputs.
// Level tiers stack multiplicatively with the completion-rate adjustment:
// a level-10 user above 0.8 gets 1.5 * 1.2 = 1.8, a level-1 user below 0.3
// gets 1.0 * 0.8 = 0.8. hasHistory guards against treating a brand-new user
// (zero assigned challenges) as a chronic non-completer.
func DifficultyMultiplier(level int, completionRate float64, hasHistory bool) float64 {
	multiplier := 1.0

	switch {
	case level >= 10:
		multiplier *= 1.5
	case level >= 5:
		multiplier *= 1.2
	case level >= 3:
		multiplier *= 1.1
	}

	if hasHistory {
		if completionRate > 0.8 {
			multiplier *= 1.2
		} else if completionRate < 0.3 {
			multiplier *= 0.8
		}
	}

	return multiplier
}
