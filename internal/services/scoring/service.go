package scoring

import (
	"math"

	"github.com/quizbattle/quizbattle-go/internal/model"
)

const (
	// maxBaseScore is the score for an instant correct answer before
	// the difficulty multiplier
	maxBaseScore = 1000.0
	// scoreDecay is how much of the base score decays linearly as the
	// answer time approaches the limit
	scoreDecay = 900.0
	// minScore floors every correct answer
	minScore = 100
	// difficultyBonus is the per-level score multiplier step
	difficultyBonus = 0.25
	// progressionRoundStep is how many classic rounds share a
	// difficulty level when progression is enabled
	progressionRoundStep = 3
)

// Service computes scores and difficulty targets. Pure arithmetic;
// stateless.
type Service struct{}

// New creates a new scoring service
func New() *Service {
	return &Service{}
}

// Score returns the points for an answer. Faster correct answers score
// up to 1000 before the difficulty multiplier, decaying linearly to 100
// as time approaches the limit. Incorrect or missing answers score 0.
func (s *Service) Score(difficulty model.Difficulty, timeTakenMs, timeLimitMs int64, correct bool) int {
	if !correct || timeLimitMs <= 0 {
		return 0
	}

	ratio := float64(timeTakenMs) / float64(timeLimitMs)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}

	base := maxBaseScore - ratio*scoreDecay
	final := int(math.Floor(base * (1 + float64(difficulty-1)*difficultyBonus)))
	if final < minScore {
		return minScore
	}
	return final
}

// TargetDifficulty returns the difficulty level for a round. Classic
// mode holds the initial level unless progression is enabled, stepping
// up one level every three rounds. Battle royale always climbs by the
// configured increment each round. Both cap at the maximum.
func (s *Service) TargetDifficulty(settings model.RoomSettings, round int) model.Difficulty {
	if round < 1 {
		round = 1
	}

	max := settings.MaxDifficulty
	if max < model.DifficultyEasy {
		max = model.DifficultyMaster
	}

	if settings.Mode == model.ModeBattleRoyale {
		d := settings.InitialDifficulty + model.Difficulty((round-1)*settings.DifficultyIncrement)
		return d.Clamp(max)
	}

	if !settings.DifficultyProgression {
		return settings.InitialDifficulty.Clamp(max)
	}
	d := settings.InitialDifficulty + model.Difficulty((round-1)/progressionRoundStep)
	return d.Clamp(max)
}
