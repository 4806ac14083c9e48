package store

import (
	"context"
	"time"

	"github.com/quizbattle/quizbattle-go/internal/model"
)

// Store is the fast shared state store used for cross-process
// coordination. Every check-then-write sequence (join, leave, connection
// tracking, ownership) is a single indivisible operation against the
// backing store; callers never compose them from separate reads and
// writes.
type Store interface {
	// Session operations
	SaveSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, token string) (*model.Session, error)
	DeleteSession(ctx context.Context, token string) error

	// Connection counting. TrackConnection atomically increments the
	// per-user counter unless it is already at max. ReleaseConnection is
	// idempotent; releasing past zero is a no-op.
	TrackConnection(ctx context.Context, userID model.UserID, max int) (bool, error)
	ReleaseConnection(ctx context.Context, userID model.UserID) error

	// Room operations. JoinRoom and LeaveRoom are atomic: membership,
	// per-user room index, and public-room accounting move together.
	SaveRoom(ctx context.Context, room *model.Room) error
	GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error)
	JoinRoom(ctx context.Context, roomID model.RoomID, userID model.UserID) (int, error)
	LeaveRoom(ctx context.Context, roomID model.RoomID, userID model.UserID) (int, error)
	FindPublicRoom(ctx context.Context, capacity int) (model.RoomID, error)
	Members(ctx context.Context, roomID model.RoomID) ([]model.UserID, error)
	MemberCount(ctx context.Context, roomID model.RoomID) (int, error)
	RemoveMember(ctx context.Context, roomID model.RoomID, userID model.UserID) error
	SetMemberStatus(ctx context.Context, roomID model.RoomID, userID model.UserID, status model.PlayerStatus) error
	MemberStatuses(ctx context.Context, roomID model.RoomID) (map[model.UserID]model.PlayerStatus, error)
	SetRoomStatus(ctx context.Context, roomID model.RoomID, status model.RoomStatus) error
	SaveInviteCode(ctx context.Context, code string, roomID model.RoomID) error
	ResolveInviteCode(ctx context.Context, code string) (model.RoomID, error)
	RoomForUser(ctx context.Context, userID model.UserID) (model.RoomID, error)

	// Game state operations
	SetGamePhase(ctx context.Context, roomID model.RoomID, phase model.GamePhase) error
	GetGamePhase(ctx context.Context, roomID model.RoomID) (model.GamePhase, error)
	SetRound(ctx context.Context, roomID model.RoomID, round int) error
	GetRound(ctx context.Context, roomID model.RoomID) (int, error)
	SetCurrentQuestion(ctx context.Context, roomID model.RoomID, questionID model.QuestionID, start time.Time) error
	CurrentQuestion(ctx context.Context, roomID model.RoomID) (model.QuestionID, time.Time, error)
	// RecordAnswerTime stores a player's answer time once; it reports
	// false for duplicate submissions.
	RecordAnswerTime(ctx context.Context, roomID model.RoomID, userID model.UserID, timeTakenMs int64) (bool, error)
	Answers(ctx context.Context, roomID model.RoomID) (map[model.UserID]int64, error)
	ClearAnswers(ctx context.Context, roomID model.RoomID) error
	IncrScore(ctx context.Context, roomID model.RoomID, userID model.UserID, points int) error
	Scores(ctx context.Context, roomID model.RoomID) (map[model.UserID]int, error)
	ClearGame(ctx context.Context, roomID model.RoomID) error

	// Room ownership lease. Exactly one coordinator instance holds the
	// lease for a room at a time; callbacks re-check it before acting.
	AcquireRoomOwner(ctx context.Context, roomID model.RoomID, instanceID string, ttl time.Duration) (bool, error)
	RefreshRoomOwner(ctx context.Context, roomID model.RoomID, instanceID string, ttl time.Duration) (bool, error)
	ReleaseRoomOwner(ctx context.Context, roomID model.RoomID, instanceID string) error

	// Persistence queue operations. The queue is at-least-once: multiple
	// workers may observe the same task, so application must be
	// idempotent.
	EnqueueTask(ctx context.Context, task *model.Task) error
	PeekTasks(ctx context.Context, n int) ([]model.Task, error)
	AckTask(ctx context.Context, task model.Task) error
	RequeueTask(ctx context.Context, old model.Task, updated model.Task) error
	PushDeadLetter(ctx context.Context, dead model.DeadTask) error
	DeadLetters(ctx context.Context) ([]model.DeadTask, error)

	// Question operations
	SaveQuestions(ctx context.Context, questions []model.Question) error
	QuestionsByDifficulty(ctx context.Context, level model.Difficulty) ([]model.Question, error)
}
