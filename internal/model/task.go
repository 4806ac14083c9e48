package model

import "encoding/json"

// TaskType tags a unit of deferred durable work
type TaskType string

const (
	TaskAnswer           TaskType = "ANSWER"
	TaskRoomJoin         TaskType = "ROOM_JOIN"
	TaskRoomLeave        TaskType = "ROOM_LEAVE"
	TaskPlayerReady      TaskType = "PLAYER_READY"
	TaskPlayerEliminated TaskType = "PLAYER_ELIMINATED"
	TaskRoomCompletion   TaskType = "ROOM_COMPLETION"
	TaskRoomCreated      TaskType = "ROOM_CREATED"
	TaskRoomStatus       TaskType = "ROOM_STATUS"
)

// TaskID uniquely identifies a queued task
type TaskID string

// Task is a unit of deferred durable work held in the persistence queue
type Task struct {
	ID         TaskID          `json:"id"`
	Type       TaskType        `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  int64           `json:"createdAt"` // unix ms
	RetryCount int             `json:"retryCount"`
	Priority   int             `json:"priority"`
}

// DeadTask is a task that exhausted its retry budget
type DeadTask struct {
	Task
	LastError string `json:"lastError"`
	FailedAt  int64  `json:"failedAt"` // unix ms
}

// Task payloads. These are the durable mirror of gameplay events;
// each carries enough keys for an idempotent upsert.

type AnswerTaskPayload struct {
	RoomID         RoomID     `json:"roomId"`
	UserID         UserID     `json:"userId"`
	QuestionID     QuestionID `json:"questionId"`
	Round          int        `json:"round"`
	SelectedOption string     `json:"selectedOption"`
	Correct        bool       `json:"correct"`
	TimeTakenMs    int64      `json:"timeTakenMs"`
	Score          int        `json:"score"`
	Timestamp      int64      `json:"timestamp"`
}

type RoomCreatedTaskPayload struct {
	Room Room `json:"room"`
}

type RoomStatusTaskPayload struct {
	RoomID    RoomID     `json:"roomId"`
	Status    RoomStatus `json:"status"`
	Timestamp int64      `json:"timestamp"`
}

type MembershipTaskPayload struct {
	RoomID    RoomID `json:"roomId"`
	UserID    UserID `json:"userId"`
	Round     int    `json:"round,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type RoomCompletionTaskPayload struct {
	RoomID      RoomID         `json:"roomId"`
	WinnerID    UserID         `json:"winnerId"`
	FinalScores map[UserID]int `json:"finalScores"`
	EndTime     int64          `json:"endTime"`
}
