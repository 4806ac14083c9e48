package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/mocks"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/persist"
	"github.com/quizbattle/quizbattle-go/internal/store/memory"
	"github.com/quizbattle/quizbattle-go/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	storage *memory.Storage
	random  *mocks.MockRandom
	service *Service
	ctx     context.Context
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.storage = memory.New()
	s.random = &mocks.MockRandom{}
	clk := mocks.NewMockClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	pipeline := persist.NewPipeline(s.storage, clk, s.random, testutil.NopLogger())
	s.service = New(s.storage, clk, s.random, pipeline, Config{DefaultCapacity: 4}, testutil.NopLogger())
	s.ctx = context.Background()
}

func (s *ServiceSuite) taskTypes() []model.TaskType {
	tasks, err := s.storage.PeekTasks(s.ctx, 100)
	s.Require().NoError(err)
	types := make([]model.TaskType, len(tasks))
	for i, task := range tasks {
		types[i] = task.Type
	}
	return types
}

func (s *ServiceSuite) TestCreateRoomDefaults() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host-1", nil)
	s.Require().NoError(err)

	s.NotEmpty(room.ID)
	s.Equal(4, room.Capacity)
	s.Equal(model.RoomWaiting, room.Status)
	s.Equal(model.UserID("host-1"), room.HostID)
	s.Equal(20, room.Settings.QuestionLimit)
	s.Empty(room.InviteCode)

	s.Contains(s.taskTypes(), model.TaskRoomCreated)
}

func (s *ServiceSuite) TestCreateRoomBattleRoyaleDefaults() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeBattleRoyale, "host-1", nil)
	s.Require().NoError(err)

	s.Equal(10, room.Settings.QuestionLimit)
	s.Equal(2, room.Settings.EliminationCount)
	s.True(room.Settings.DifficultyProgression)
}

func (s *ServiceSuite) TestCreateRoomSettingsOverride() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host-1", &model.RoomSettings{
		QuestionLimit:   5,
		TimePerQuestion: 30,
	})
	s.Require().NoError(err)

	s.Equal(5, room.Settings.QuestionLimit)
	s.Equal(30, room.Settings.TimePerQuestion)
	// Untouched fields keep mode defaults
	s.Equal(1, room.Settings.QuestionsPerRound)
}

func (s *ServiceSuite) TestPrivateRoomInviteCode() {
	s.random.StringValues = []string{"roomsfx1", "INVCODE1", "taskid01"}

	room, err := s.service.CreateRoom(s.ctx, model.RoomPrivate, model.ModeClassic, "host-1", nil)
	s.Require().NoError(err)
	s.Equal("INVCODE1", room.InviteCode)

	_, err = s.service.JoinRoom(s.ctx, "user-1", room.ID, "WRONG999")
	s.ErrorIs(err, model.ErrInvalidInviteCode)

	_, err = s.service.JoinRoom(s.ctx, "user-1", room.ID, "")
	s.ErrorIs(err, model.ErrInvalidInviteCode)

	count, err := s.service.JoinRoom(s.ctx, "user-1", room.ID, "INVCODE1")
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *ServiceSuite) TestJoinRoomCapacity() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host-1", nil)
	s.Require().NoError(err)

	for i, user := range []model.UserID{"u1", "u2", "u3", "u4"} {
		count, err := s.service.JoinRoom(s.ctx, user, room.ID, "")
		s.Require().NoError(err)
		s.Equal(i+1, count)
	}

	_, err = s.service.JoinRoom(s.ctx, "u5", room.ID, "")
	s.ErrorIs(err, model.ErrRoomFull)
}

func (s *ServiceSuite) TestJoinRoomTwice() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host-1", nil)
	s.Require().NoError(err)

	_, err = s.service.JoinRoom(s.ctx, "u1", room.ID, "")
	s.Require().NoError(err)

	_, err = s.service.JoinRoom(s.ctx, "u1", room.ID, "")
	s.ErrorIs(err, model.ErrAlreadyJoined)
}

func (s *ServiceSuite) TestJoinEnqueuesMirrorTask() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host-1", nil)
	s.Require().NoError(err)

	_, err = s.service.JoinRoom(s.ctx, "u1", room.ID, "")
	s.Require().NoError(err)

	s.Contains(s.taskTypes(), model.TaskRoomJoin)
}

func (s *ServiceSuite) TestLeaveRoomIdempotent() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host-1", nil)
	s.Require().NoError(err)

	_, err = s.service.JoinRoom(s.ctx, "u1", room.ID, "")
	s.Require().NoError(err)

	count, err := s.service.LeaveRoom(s.ctx, "u1", room.ID)
	s.Require().NoError(err)
	s.Equal(0, count)

	count, err = s.service.LeaveRoom(s.ctx, "u1", room.ID)
	s.Require().NoError(err)
	s.Equal(0, count)
}

func (s *ServiceSuite) TestGetPublicRoomFindsExisting() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host-1", nil)
	s.Require().NoError(err)
	_, err = s.service.JoinRoom(s.ctx, "host-1", room.ID, "")
	s.Require().NoError(err)

	found, err := s.service.GetPublicRoom(s.ctx, "user-2")
	s.Require().NoError(err)
	s.Equal(room.ID, found)
}

func (s *ServiceSuite) TestGetPublicRoomCreatesWhenNoneOpen() {
	found, err := s.service.GetPublicRoom(s.ctx, "user-1")
	s.Require().NoError(err)
	s.NotEmpty(found)

	room, err := s.service.GetRoom(s.ctx, found)
	s.Require().NoError(err)
	s.Equal(model.RoomPublic, room.Visibility)
	s.Equal(model.ModeClassic, room.Mode)
	s.Equal(model.UserID("user-1"), room.HostID)
}

func (s *ServiceSuite) TestGetPublicRoomWithoutUser() {
	found, err := s.service.GetPublicRoom(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(found)
}

func (s *ServiceSuite) TestAreAllPlayersReady() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host-1", nil)
	s.Require().NoError(err)

	_, err = s.service.JoinRoom(s.ctx, "u1", room.ID, "")
	s.Require().NoError(err)

	// One ready player is not enough to start
	s.Require().NoError(s.service.SetPlayerReady(s.ctx, room.ID, "u1", true))
	ready, err := s.service.AreAllPlayersReady(s.ctx, room.ID)
	s.Require().NoError(err)
	s.False(ready)

	_, err = s.service.JoinRoom(s.ctx, "u2", room.ID, "")
	s.Require().NoError(err)

	ready, err = s.service.AreAllPlayersReady(s.ctx, room.ID)
	s.Require().NoError(err)
	s.False(ready)

	s.Require().NoError(s.service.SetPlayerReady(s.ctx, room.ID, "u2", true))
	ready, err = s.service.AreAllPlayersReady(s.ctx, room.ID)
	s.Require().NoError(err)
	s.True(ready)
}

func (s *ServiceSuite) TestMarkEliminated() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeBattleRoyale, "host-1", nil)
	s.Require().NoError(err)

	_, err = s.service.JoinRoom(s.ctx, "u1", room.ID, "")
	s.Require().NoError(err)
	_, err = s.service.JoinRoom(s.ctx, "u2", room.ID, "")
	s.Require().NoError(err)

	s.Require().NoError(s.service.MarkEliminated(s.ctx, room.ID, "u2", 3))

	count, err := s.service.MemberCount(s.ctx, room.ID)
	s.Require().NoError(err)
	s.Equal(1, count)

	statuses, err := s.storage.MemberStatuses(s.ctx, room.ID)
	s.Require().NoError(err)
	s.Equal(model.PlayerEliminated, statuses["u2"])

	s.Contains(s.taskTypes(), model.TaskPlayerEliminated)
}

func (s *ServiceSuite) TestUpdateStatus() {
	room, err := s.service.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host-1", nil)
	s.Require().NoError(err)

	s.Require().NoError(s.service.UpdateStatus(s.ctx, room.ID, model.RoomActive))

	got, err := s.service.GetRoom(s.ctx, room.ID)
	s.Require().NoError(err)
	s.Equal(model.RoomActive, got.Status)

	s.Contains(s.taskTypes(), model.TaskRoomStatus)
}
