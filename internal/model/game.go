package model

import "time"

// GamePhase represents the current phase of a room's battle state machine
type GamePhase string

const (
	PhaseWaiting  GamePhase = "WAITING"
	PhaseQuestion GamePhase = "QUESTION"
	PhaseResults  GamePhase = "RESULTS"
	PhaseEnded    GamePhase = "ENDED"
)

// QuestionID uniquely identifies a question
type QuestionID string

// Question is a single quiz question, immutable once issued to a round
type Question struct {
	ID            QuestionID `json:"id"`
	Prompt        string     `json:"prompt"`
	Options       []string   `json:"options"`
	CorrectOption string     `json:"correctOption"`
	Difficulty    Difficulty `json:"difficulty"`
}

// Public returns a copy of the question without the correct option,
// safe to broadcast to players.
func (q *Question) Public() Question {
	p := *q
	p.CorrectOption = ""
	return p
}

// GameSnapshot is the transient per-room game record held in the fast store
type GameSnapshot struct {
	Phase         GamePhase        `json:"phase"`
	Round         int              `json:"round"`
	QuestionID    QuestionID       `json:"questionId"`
	QuestionStart time.Time        `json:"questionStart"`
	Answers       map[UserID]int64 `json:"answers"` // user -> time taken (ms)
	Scores        map[UserID]int   `json:"scores"`  // user -> cumulative points
}
