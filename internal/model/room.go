package model

import "time"

// UserID uniquely identifies a player
type UserID string

// RoomID uniquely identifies a room
type RoomID string

// RoomVisibility controls whether a room is joinable through matchmaking
type RoomVisibility string

const (
	RoomPublic  RoomVisibility = "PUBLIC"
	RoomPrivate RoomVisibility = "PRIVATE"
)

// GameMode selects the battle ruleset for a room
type GameMode string

const (
	ModeClassic      GameMode = "CLASSIC"
	ModeBattleRoyale GameMode = "BATTLE_ROYALE"
)

// RoomStatus represents the lifecycle state of a room
type RoomStatus string

const (
	RoomWaiting RoomStatus = "WAITING"
	RoomActive  RoomStatus = "ACTIVE"
	RoomEnded   RoomStatus = "ENDED"
)

// PlayerStatus is a member's per-room status
type PlayerStatus string

const (
	PlayerWaiting    PlayerStatus = "WAITING"
	PlayerReady      PlayerStatus = "READY"
	PlayerActive     PlayerStatus = "ACTIVE"
	PlayerEliminated PlayerStatus = "ELIMINATED"
	PlayerLeft       PlayerStatus = "LEFT"
)

// RoomSettings holds the configurable rules for battles in a room
type RoomSettings struct {
	Mode                  GameMode   `json:"mode"`
	QuestionLimit         int        `json:"questionLimit"`
	QuestionsPerRound     int        `json:"questionsPerRound"`
	TimePerQuestion       int        `json:"timePerQuestion"` // seconds
	EliminationCount      int        `json:"eliminationCount"`
	DifficultyProgression bool       `json:"difficultyProgression"`
	InitialDifficulty     Difficulty `json:"initialDifficulty"`
	MaxDifficulty         Difficulty `json:"maxDifficulty"`
	DifficultyIncrement   int        `json:"difficultyIncrement"`
}

// DefaultSettings returns the default settings for a game mode
func DefaultSettings(mode GameMode) RoomSettings {
	s := RoomSettings{
		Mode:                  mode,
		QuestionLimit:         20,
		QuestionsPerRound:     1,
		TimePerQuestion:       10,
		EliminationCount:      0,
		DifficultyProgression: false,
		InitialDifficulty:     DifficultyEasy,
		MaxDifficulty:         DifficultyMaster,
		DifficultyIncrement:   1,
	}
	if mode == ModeBattleRoyale {
		s.QuestionLimit = 10
		s.EliminationCount = 2
		s.DifficultyProgression = true
	}
	return s
}

// Room is the metadata record for a bounded group of players
type Room struct {
	ID         RoomID         `json:"id"`
	Visibility RoomVisibility `json:"visibility"`
	Mode       GameMode       `json:"mode"`
	Capacity   int            `json:"capacity"`
	Settings   RoomSettings   `json:"settings"`
	Status     RoomStatus     `json:"status"`
	HostID     UserID         `json:"hostId"`
	InviteCode string         `json:"inviteCode,omitempty"` // private rooms only
	CreatedAt  time.Time      `json:"createdAt"`
}
