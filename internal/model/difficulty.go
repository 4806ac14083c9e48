package model

// Difficulty is the canonical numeric question difficulty (1..5).
// The named levels exist only for display at the boundary.
type Difficulty int

const (
	DifficultyEasy   Difficulty = 1
	DifficultyMedium Difficulty = 2
	DifficultyHard   Difficulty = 3
	DifficultyExpert Difficulty = 4
	DifficultyMaster Difficulty = 5
)

// Label returns the display name for a difficulty level
func (d Difficulty) Label() string {
	switch d {
	case DifficultyEasy:
		return "EASY"
	case DifficultyMedium:
		return "MEDIUM"
	case DifficultyHard:
		return "HARD"
	case DifficultyExpert:
		return "EXPERT"
	case DifficultyMaster:
		return "MASTER"
	default:
		return "UNKNOWN"
	}
}

// Clamp bounds d to [DifficultyEasy, max]
func (d Difficulty) Clamp(max Difficulty) Difficulty {
	if d < DifficultyEasy {
		return DifficultyEasy
	}
	if d > max {
		return max
	}
	return d
}
