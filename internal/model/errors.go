package model

import "errors"

// Common errors used across the application
var (
	// Session errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrMaxConnections = errors.New("max connections reached")

	// Room errors
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomFull          = errors.New("room is full")
	ErrAlreadyJoined     = errors.New("user is already in room")
	ErrInvalidInviteCode = errors.New("invalid invite code")

	// Game errors
	ErrNoQuestionsAvailable = errors.New("no questions available")

	// Queue errors
	ErrTaskNotFound = errors.New("task not found")
)
