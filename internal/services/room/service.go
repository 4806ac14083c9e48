package room

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/clock"
	"github.com/quizbattle/quizbattle-go/internal/dependencies/random"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/store"
)

const (
	// DefaultCapacity is the room capacity when none is configured
	DefaultCapacity = 20
	// InviteCodeLength is the length of generated invite codes
	InviteCodeLength = 8
	// InviteCodeAlphabet avoids visually confusing characters
	InviteCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	// roomIDAlphabet is used for the random part of room ids
	roomIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Enqueuer appends deferred durable work. The durable mirror of every
// room mutation goes through it instead of blocking on storage.
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType model.TaskType, payload any, priority int)
}

// Config holds configuration for the room registry
type Config struct {
	DefaultCapacity int
}

// DefaultConfig returns default room configuration
func DefaultConfig() Config {
	return Config{DefaultCapacity: DefaultCapacity}
}

// Service is the room registry: atomic membership management and
// public-room matchmaking. It owns all membership mutation; gameplay
// logic never touches the member set directly.
type Service struct {
	store    store.Store
	clock    clock.Clock
	random   random.Random
	enqueuer Enqueuer
	cfg      Config
	logger   *slog.Logger
}

// New creates a new room registry
func New(store store.Store, clk clock.Clock, rnd random.Random, enqueuer Enqueuer, cfg Config, logger *slog.Logger) *Service {
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = DefaultCapacity
	}
	return &Service{
		store:    store,
		clock:    clk,
		random:   rnd,
		enqueuer: enqueuer,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "room")),
	}
}

// CreateRoom allocates a room and writes its metadata to the fast
// store. The durable mirror is enqueued fire-and-forget; the caller
// never waits on durable storage.
func (s *Service) CreateRoom(ctx context.Context, visibility model.RoomVisibility, mode model.GameMode, hostID model.UserID, settings *model.RoomSettings) (*model.Room, error) {
	finalSettings := model.DefaultSettings(mode)
	if settings != nil {
		finalSettings = mergeSettings(finalSettings, *settings)
	}

	room := &model.Room{
		ID:         s.newRoomID(),
		Visibility: visibility,
		Mode:       mode,
		Capacity:   s.cfg.DefaultCapacity,
		Settings:   finalSettings,
		Status:     model.RoomWaiting,
		HostID:     hostID,
		CreatedAt:  s.clock.Now(),
	}

	if visibility == model.RoomPrivate {
		room.InviteCode = s.random.String(InviteCodeLength, InviteCodeAlphabet)
	}

	if err := s.store.SaveRoom(ctx, room); err != nil {
		return nil, fmt.Errorf("save room: %w", err)
	}
	if room.InviteCode != "" {
		if err := s.store.SaveInviteCode(ctx, room.InviteCode, room.ID); err != nil {
			return nil, fmt.Errorf("save invite code: %w", err)
		}
	}

	s.enqueuer.Enqueue(ctx, model.TaskRoomCreated, model.RoomCreatedTaskPayload{Room: *room}, 0)

	s.logger.Info("room created",
		slog.String("room_id", string(room.ID)),
		slog.String("visibility", string(visibility)),
		slog.String("mode", string(mode)),
		slog.String("host_id", string(hostID)))
	return room, nil
}

// JoinRoom atomically adds the user to the room. The existence,
// membership, and capacity checks and the insertion are one indivisible
// step against the fast store; two racing joins cannot both pass the
// capacity check.
func (s *Service) JoinRoom(ctx context.Context, userID model.UserID, roomID model.RoomID, inviteCode string) (int, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return 0, err
	}

	if room.Visibility == model.RoomPrivate {
		resolved, err := s.store.ResolveInviteCode(ctx, inviteCode)
		if err != nil || resolved != roomID {
			return 0, model.ErrInvalidInviteCode
		}
	}

	count, err := s.store.JoinRoom(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}

	s.enqueuer.Enqueue(ctx, model.TaskRoomJoin, model.MembershipTaskPayload{
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: s.clock.Now().UnixMilli(),
	}, 0)

	s.logger.Info("user joined room",
		slog.String("room_id", string(roomID)),
		slog.String("user_id", string(userID)),
		slog.Int("member_count", count))
	return count, nil
}

// LeaveRoom atomically removes the user. Leaving a room the user is not
// in is a no-op returning the current member count. An emptied public
// room is deindexed and scheduled for cleanup after a grace period.
func (s *Service) LeaveRoom(ctx context.Context, userID model.UserID, roomID model.RoomID) (int, error) {
	count, err := s.store.LeaveRoom(ctx, roomID, userID)
	if err != nil {
		return 0, err
	}

	s.enqueuer.Enqueue(ctx, model.TaskRoomLeave, model.MembershipTaskPayload{
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: s.clock.Now().UnixMilli(),
	}, 0)

	s.logger.Info("user left room",
		slog.String("room_id", string(roomID)),
		slog.String("user_id", string(userID)),
		slog.Int("member_count", count))
	return count, nil
}

// GetPublicRoom returns the least-loaded public room with open
// capacity. When none exists and a user is supplied, a new public
// classic room is created with that user as host; otherwise the result
// is empty.
func (s *Service) GetPublicRoom(ctx context.Context, userID model.UserID) (model.RoomID, error) {
	roomID, err := s.store.FindPublicRoom(ctx, s.cfg.DefaultCapacity)
	if err != nil {
		return "", err
	}
	if roomID != "" {
		return roomID, nil
	}

	if userID == "" {
		return "", nil
	}

	room, err := s.CreateRoom(ctx, model.RoomPublic, model.ModeClassic, userID, nil)
	if err != nil {
		return "", err
	}
	return room.ID, nil
}

// GetRoom returns a room's metadata
func (s *Service) GetRoom(ctx context.Context, roomID model.RoomID) (*model.Room, error) {
	return s.store.GetRoom(ctx, roomID)
}

// Settings returns a room's battle settings
func (s *Service) Settings(ctx context.Context, roomID model.RoomID) (model.RoomSettings, error) {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return model.RoomSettings{}, err
	}
	return room.Settings, nil
}

// SetPlayerReady updates a member's ready status
func (s *Service) SetPlayerReady(ctx context.Context, roomID model.RoomID, userID model.UserID, ready bool) error {
	status := model.PlayerWaiting
	if ready {
		status = model.PlayerReady
	}
	if err := s.store.SetMemberStatus(ctx, roomID, userID, status); err != nil {
		return err
	}

	s.enqueuer.Enqueue(ctx, model.TaskPlayerReady, model.MembershipTaskPayload{
		RoomID:    roomID,
		UserID:    userID,
		Timestamp: s.clock.Now().UnixMilli(),
	}, 0)
	return nil
}

// AreAllPlayersReady reports whether the room can start: at least two
// members, all of them ready.
func (s *Service) AreAllPlayersReady(ctx context.Context, roomID model.RoomID) (bool, error) {
	statuses, err := s.store.MemberStatuses(ctx, roomID)
	if err != nil {
		return false, err
	}
	if len(statuses) < 2 {
		return false, nil
	}
	for _, status := range statuses {
		if status != model.PlayerReady {
			return false, nil
		}
	}
	return true, nil
}

// RemovePlayer removes a member without the public-room bookkeeping of
// LeaveRoom; used by the battle coordinator for eliminations.
func (s *Service) RemovePlayer(ctx context.Context, roomID model.RoomID, userID model.UserID) error {
	return s.store.RemoveMember(ctx, roomID, userID)
}

// MarkEliminated flags a member as eliminated and removes them from the
// member set, mirroring the record durably.
func (s *Service) MarkEliminated(ctx context.Context, roomID model.RoomID, userID model.UserID, round int) error {
	if err := s.store.SetMemberStatus(ctx, roomID, userID, model.PlayerEliminated); err != nil {
		return err
	}
	if err := s.RemovePlayer(ctx, roomID, userID); err != nil {
		return err
	}

	s.enqueuer.Enqueue(ctx, model.TaskPlayerEliminated, model.MembershipTaskPayload{
		RoomID:    roomID,
		UserID:    userID,
		Round:     round,
		Timestamp: s.clock.Now().UnixMilli(),
	}, 0)
	return nil
}

// Members returns the current member set
func (s *Service) Members(ctx context.Context, roomID model.RoomID) ([]model.UserID, error) {
	return s.store.Members(ctx, roomID)
}

// MemberCount returns the current member count
func (s *Service) MemberCount(ctx context.Context, roomID model.RoomID) (int, error) {
	return s.store.MemberCount(ctx, roomID)
}

// RoomForUser returns the room the user is currently in, if any
func (s *Service) RoomForUser(ctx context.Context, userID model.UserID) (model.RoomID, error) {
	return s.store.RoomForUser(ctx, userID)
}

// UpdateStatus moves a room through its lifecycle and mirrors the
// change durably.
func (s *Service) UpdateStatus(ctx context.Context, roomID model.RoomID, status model.RoomStatus) error {
	if err := s.store.SetRoomStatus(ctx, roomID, status); err != nil {
		return err
	}

	s.enqueuer.Enqueue(ctx, model.TaskRoomStatus, model.RoomStatusTaskPayload{
		RoomID:    roomID,
		Status:    status,
		Timestamp: s.clock.Now().UnixMilli(),
	}, 0)
	return nil
}

// newRoomID builds a unique room id from the creation time and a
// random suffix.
func (s *Service) newRoomID() model.RoomID {
	return model.RoomID(fmt.Sprintf("room_%d_%s",
		s.clock.Now().UnixMilli(),
		s.random.String(8, roomIDAlphabet)))
}

// mergeSettings overlays non-zero overrides onto the mode defaults
func mergeSettings(base, override model.RoomSettings) model.RoomSettings {
	merged := base
	if override.QuestionLimit > 0 {
		merged.QuestionLimit = override.QuestionLimit
	}
	if override.QuestionsPerRound > 0 {
		merged.QuestionsPerRound = override.QuestionsPerRound
	}
	if override.TimePerQuestion > 0 {
		merged.TimePerQuestion = override.TimePerQuestion
	}
	if override.EliminationCount > 0 {
		merged.EliminationCount = override.EliminationCount
	}
	if override.DifficultyProgression {
		merged.DifficultyProgression = true
	}
	if override.InitialDifficulty > 0 {
		merged.InitialDifficulty = override.InitialDifficulty
	}
	if override.MaxDifficulty > 0 {
		merged.MaxDifficulty = override.MaxDifficulty
	}
	if override.DifficultyIncrement > 0 {
		merged.DifficultyIncrement = override.DifficultyIncrement
	}
	return merged
}
