package model

import "encoding/json"

// MessageType identifies a message on the wire, in either direction
type MessageType string

const (
	// Client -> server
	MessageJoin   MessageType = "join"
	MessageReady  MessageType = "ready"
	MessageAnswer MessageType = "answer"
	MessageLeave  MessageType = "leave"

	// Server -> client
	EventState         MessageType = "state"
	EventQuestion      MessageType = "question"
	EventQuestionEnded MessageType = "question_ended"
	EventRoundEnded    MessageType = "round_ended"
	EventEliminated    MessageType = "eliminated"
	EventEnd           MessageType = "end"
	EventError         MessageType = "error"
	EventPlayerLeft    MessageType = "player_left"
)

// Message is the envelope for all websocket traffic
type Message struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewMessage builds an envelope from a payload struct.
// Marshalling a payload defined in this package cannot fail.
func NewMessage(t MessageType, payload any) Message {
	data, _ := json.Marshal(payload)
	return Message{Type: t, Payload: data}
}

// Client payloads

type JoinPayload struct {
	RoomID     RoomID `json:"roomId,omitempty"` // empty -> public matchmaking
	InviteCode string `json:"inviteCode,omitempty"`
}

type AnswerPayload struct {
	SelectedOption string `json:"selectedOption"`
}

// Server payloads

type StatePayload struct {
	Phase       GamePhase `json:"phase"`
	PlayerCount int       `json:"playerCount"`
	Round       int       `json:"round,omitempty"`
}

type QuestionPayload struct {
	Question    Question `json:"question"`
	Round       int      `json:"round"`
	QuestionNo  int      `json:"questionNo"`
	TimeLimitMs int64    `json:"timeLimitMs"`
}

// QuestionResult is one player's outcome for a finished question
type QuestionResult struct {
	UserID      UserID `json:"userId"`
	Correct     bool   `json:"correct"`
	TimeTakenMs int64  `json:"timeTakenMs"`
	Score       int    `json:"score"`
}

// QuestionEndedPayload marks the transition between questions within a
// round. Results are sorted fastest first; players who never answered
// are absent.
type QuestionEndedPayload struct {
	Round         int              `json:"round"`
	QuestionNo    int              `json:"questionNo"`
	CorrectOption string           `json:"correctOption"`
	Results       []QuestionResult `json:"results"`
}

// RoundEndedPayload marks the transition between rounds
type RoundEndedPayload struct {
	Round     int            `json:"round"`
	LastRound bool           `json:"lastRound"`
	Standings map[UserID]int `json:"standings"`
}

type EliminatedPayload struct {
	UserIDs []UserID `json:"userIds"`
	Round   int      `json:"round"`
}

type EndPayload struct {
	WinnerID    UserID         `json:"winnerId,omitempty"`
	FinalScores map[UserID]int `json:"finalScores"`
	Reason      string         `json:"reason,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PlayerLeftPayload struct {
	UserID UserID `json:"userId"`
}

// End reasons
const (
	EndReasonCompleted   = "COMPLETED"
	EndReasonNotEnough   = "NOT_ENOUGH_PLAYERS"
	EndReasonNoQuestions = "NO_QUESTIONS_AVAILABLE"
)
