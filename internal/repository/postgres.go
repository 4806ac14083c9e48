package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/quizbattle/quizbattle-go/internal/model"
)

// PostgresRepository implements Repository on postgres via gorm
type PostgresRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgres connects to postgres and migrates the schema
func NewPostgres(dsn string, logger *slog.Logger) (*PostgresRepository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := db.AutoMigrate(
		&RoomRecord{},
		&MembershipEvent{},
		&AnswerRecord{},
		&QuestionUsage{},
		&FinalScore{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	repoLogger := logger.With(slog.String("component", "repository"))
	repoLogger.Info("schema migrated")

	return &PostgresRepository{
		db:     db,
		logger: repoLogger,
	}, nil
}

// CreateRoomRecord upserts the room's durable record
func (r *PostgresRepository) CreateRoomRecord(ctx context.Context, room model.Room) error {
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	record := RoomRecord{
		ID:         string(room.ID),
		Visibility: string(room.Visibility),
		Mode:       string(room.Mode),
		Capacity:   room.Capacity,
		Status:     string(room.Status),
		HostID:     string(room.HostID),
		Settings:   string(settings),
		CreatedAt:  room.CreatedAt,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&record).Error
}

// UpdateRoomStatus moves the durable room record through its lifecycle
func (r *PostgresRepository) UpdateRoomStatus(ctx context.Context, roomID model.RoomID, status model.RoomStatus) error {
	return r.db.WithContext(ctx).
		Model(&RoomRecord{}).
		Where("id = ?", string(roomID)).
		Update("status", string(status)).Error
}

// CompleteRoom marks the room ended with its winner and writes the
// final scoreboard.
func (r *PostgresRepository) CompleteRoom(ctx context.Context, roomID model.RoomID, winnerID model.UserID, finalScores map[model.UserID]int, endTime time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&RoomRecord{}).
			Where("id = ?", string(roomID)).
			Updates(map[string]any{
				"status":    string(model.RoomEnded),
				"winner_id": string(winnerID),
				"ended_at":  endTime,
			}).Error; err != nil {
			return err
		}

		for userID, score := range finalScores {
			row := FinalScore{
				RoomID: string(roomID),
				UserID: string(userID),
				Score:  score,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"score"}),
			}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// RecordMembershipEvent appends one membership transition. Replays hit
// the unique index and are dropped.
func (r *PostgresRepository) RecordMembershipEvent(ctx context.Context, roomID model.RoomID, userID model.UserID, event model.TaskType, round int, timestamp int64) error {
	row := MembershipEvent{
		RoomID:    string(roomID),
		UserID:    string(userID),
		Event:     string(event),
		Round:     round,
		Timestamp: timestamp,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
}

// RecordAnswer upserts one submitted answer
func (r *PostgresRepository) RecordAnswer(ctx context.Context, answer model.AnswerTaskPayload) error {
	row := AnswerRecord{
		RoomID:         string(answer.RoomID),
		UserID:         string(answer.UserID),
		QuestionID:     string(answer.QuestionID),
		Round:          answer.Round,
		SelectedOption: answer.SelectedOption,
		Correct:        answer.Correct,
		TimeTakenMs:    answer.TimeTakenMs,
		Score:          answer.Score,
		AnsweredAt:     answer.Timestamp,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "room_id"}, {Name: "user_id"}, {Name: "question_id"}, {Name: "round"},
		},
		DoNothing: true,
	}).Create(&row).Error
}

// IncrementQuestionUsage bumps the issue counter for a question
func (r *PostgresRepository) IncrementQuestionUsage(ctx context.Context, questionID model.QuestionID) error {
	row := QuestionUsage{
		QuestionID: string(questionID),
		UsageCount: 1,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "question_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"usage_count": gorm.Expr("question_usage.usage_count + 1"),
			"updated_at":  time.Now(),
		}),
	}).Create(&row).Error
}

// Close releases the underlying connection pool
func (r *PostgresRepository) Close() error {
	r.logger.Info("closing repository")
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
