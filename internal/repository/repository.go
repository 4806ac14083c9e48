package repository

import (
	"context"
	"time"

	"github.com/quizbattle/quizbattle-go/internal/model"
)

// Repository is the durable system of record behind the persistence
// pipeline. Every write is an idempotent upsert: the queue delivers
// at least once, so replays must be harmless.
type Repository interface {
	CreateRoomRecord(ctx context.Context, room model.Room) error
	UpdateRoomStatus(ctx context.Context, roomID model.RoomID, status model.RoomStatus) error
	CompleteRoom(ctx context.Context, roomID model.RoomID, winnerID model.UserID, finalScores map[model.UserID]int, endTime time.Time) error
	RecordMembershipEvent(ctx context.Context, roomID model.RoomID, userID model.UserID, event model.TaskType, round int, timestamp int64) error
	RecordAnswer(ctx context.Context, answer model.AnswerTaskPayload) error
	IncrementQuestionUsage(ctx context.Context, questionID model.QuestionID) error
	Close() error
}
