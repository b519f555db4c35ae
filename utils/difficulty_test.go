package utils

import (
	"math"
	"testing"
)

func TestDifficultyMultiplier(t *testing.T) {
	tests := []struct {
		name       string
		level      int
		rate       float64
		hasHistory bool
		want       float64
	}{
		{"new user level 1", 1, 0, false, 1.0},
		{"level 2 below first tier", 2, 0.5, true, 1.0},
		{"level 3 tier", 3, 0.5, true, 1.1},
		{"level 5 tier", 5, 0.5, true, 1.2},
		{"level 10 tier", 10, 0.5, true, 1.5},
		{"high level high completion", 10, 0.85, true, 1.8},
		{"high level low completion", 10, 0.1, true, 1.2},
		{"level 1 low completion", 1, 0.1, true, 0.8},
		{"level 1 high completion", 1, 0.9, true, 1.2},
		{"zero rate without history stays base", 10, 0, false, 1.5},
		{"boundary rate 0.8 is not high", 4, 0.8, true, 1.1},
		{"boundary rate 0.3 is not low", 4, 0.3, true, 1.1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DifficultyMultiplier(tt.level, tt.rate, tt.hasHistory)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("DifficultyMultiplier(%d, %v, %v) = %v, want %v", tt.level, tt.rate, tt.hasHistory, got, tt.want)
			}
		})
	}
}
