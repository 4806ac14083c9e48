package repository

import "time"

// RoomRecord is the durable mirror of a room
type RoomRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	Visibility string `gorm:"size:16"`
	Mode       string `gorm:"size:32"`
	Capacity   int
	Status     string `gorm:"size:16;index"`
	HostID     string `gorm:"size:64;index"`
	Settings   string `gorm:"type:jsonb"`
	WinnerID   string `gorm:"size:64"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	EndedAt    *time.Time
}

func (RoomRecord) TableName() string { return "rooms" }

// MembershipEvent is one durable membership transition. The unique
// index makes replayed tasks no-ops.
type MembershipEvent struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    string `gorm:"size:64;uniqueIndex:idx_membership_event"`
	UserID    string `gorm:"size:64;uniqueIndex:idx_membership_event"`
	Event     string `gorm:"size:32;uniqueIndex:idx_membership_event"`
	Round     int    `gorm:"uniqueIndex:idx_membership_event"`
	Timestamp int64  `gorm:"uniqueIndex:idx_membership_event"` // unix ms
	CreatedAt time.Time
}

func (MembershipEvent) TableName() string { return "membership_events" }

// AnswerRecord is the durable mirror of one submitted answer. One row
// per player per question per round.
type AnswerRecord struct {
	ID             uint   `gorm:"primaryKey"`
	RoomID         string `gorm:"size:64;uniqueIndex:idx_answer"`
	UserID         string `gorm:"size:64;uniqueIndex:idx_answer"`
	QuestionID     string `gorm:"size:64;uniqueIndex:idx_answer"`
	Round          int    `gorm:"uniqueIndex:idx_answer"`
	SelectedOption string `gorm:"size:256"`
	Correct        bool
	TimeTakenMs    int64
	Score          int
	AnsweredAt     int64 // unix ms
	CreatedAt      time.Time
}

func (AnswerRecord) TableName() string { return "answers" }

// QuestionUsage counts how often each question has been issued
type QuestionUsage struct {
	QuestionID string `gorm:"primaryKey;size:64"`
	UsageCount int64
	UpdatedAt  time.Time
}

func (QuestionUsage) TableName() string { return "question_usage" }

// FinalScore is one player's final score for a completed room
type FinalScore struct {
	ID        uint   `gorm:"primaryKey"`
	RoomID    string `gorm:"size:64;uniqueIndex:idx_final_score"`
	UserID    string `gorm:"size:64;uniqueIndex:idx_final_score"`
	Score     int
	CreatedAt time.Time
}

func (FinalScore) TableName() string { return "final_scores" }
