package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/mocks"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/persist"
	"github.com/quizbattle/quizbattle-go/internal/services/battle"
	"github.com/quizbattle/quizbattle-go/internal/services/question"
	"github.com/quizbattle/quizbattle-go/internal/services/room"
	"github.com/quizbattle/quizbattle-go/internal/services/scoring"
	"github.com/quizbattle/quizbattle-go/internal/services/session"
	"github.com/quizbattle/quizbattle-go/internal/store/memory"
	"github.com/quizbattle/quizbattle-go/internal/testutil"
)

// HandlerSuite drives the message router directly with in-memory
// services; no real websocket connections are involved.
type HandlerSuite struct {
	suite.Suite
	storage *memory.Storage
	rooms   *room.Service
	handler *Handler
	ctx     context.Context
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.storage = memory.New()
	s.ctx = context.Background()

	clk := mocks.NewMockClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	rnd := &mocks.MockRandom{StringValues: []string{"roomsfx1", "INVCODE1", "taskid01"}}
	logger := testutil.NopLogger()

	pipeline := persist.NewPipeline(s.storage, clk, rnd, logger)
	sessions := session.New(s.storage, clk, session.DefaultConfig(), logger)
	s.rooms = room.New(s.storage, clk, rnd, pipeline, room.DefaultConfig(), logger)
	questions := question.New(s.storage, rnd, logger)

	coordinator := battle.New(s.storage, s.rooms, questions, scoring.New(), clk,
		mocks.NewMockScheduler(), pipeline, battle.Config{InstanceID: "test-instance"}, logger)

	hubs := NewHubManager(logger)
	coordinator.SetBroadcaster(hubs)

	s.handler = NewHandler(sessions, s.rooms, coordinator, hubs, logger)
}

func (s *HandlerSuite) client(userID model.UserID) *Client {
	return newClient(nil, userID, s.handler, testutil.NopLogger())
}

func (s *HandlerSuite) join(c *Client, payload model.JoinPayload) {
	raw, err := json.Marshal(payload)
	s.Require().NoError(err)
	s.handler.route(s.ctx, c, model.Message{Type: model.MessageJoin, Payload: raw})
}

func (s *HandlerSuite) receive(c *Client) model.Message {
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		s.FailNow("expected a message")
		return model.Message{}
	}
}

func (s *HandlerSuite) expectError(c *Client, code string) {
	msg := s.receive(c)
	s.Require().Equal(model.EventError, msg.Type)
	var payload model.ErrorPayload
	s.Require().NoError(json.Unmarshal(msg.Payload, &payload))
	s.Equal(code, payload.Code)
}

func (s *HandlerSuite) TestJoinUnknownRoom() {
	c := s.client("u1")
	s.join(c, model.JoinPayload{RoomID: "room-missing"})

	s.expectError(c, "ROOM_NOT_FOUND")
	s.Empty(c.Room())
}

func (s *HandlerSuite) TestJoinPrivateRoomRequiresInvite() {
	created, err := s.rooms.CreateRoom(s.ctx, model.RoomPrivate, model.ModeClassic, "host", nil)
	s.Require().NoError(err)

	c := s.client("u1")
	s.join(c, model.JoinPayload{RoomID: created.ID, InviteCode: "WRONG123"})
	s.expectError(c, "INVALID_INVITE_CODE")

	s.join(c, model.JoinPayload{RoomID: created.ID, InviteCode: created.InviteCode})
	msg := s.receive(c)
	s.Equal(model.EventState, msg.Type)
	s.Equal(created.ID, c.Room())
}

func (s *HandlerSuite) TestJoinMatchmakingCreatesRoom() {
	c := s.client("u1")
	s.join(c, model.JoinPayload{})

	msg := s.receive(c)
	s.Require().Equal(model.EventState, msg.Type)
	var state model.StatePayload
	s.Require().NoError(json.Unmarshal(msg.Payload, &state))
	s.Equal(model.PhaseWaiting, state.Phase)
	s.Equal(1, state.PlayerCount)
	s.NotEmpty(c.Room())
}

func (s *HandlerSuite) TestReconnectReattaches() {
	created, err := s.rooms.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "u1", nil)
	s.Require().NoError(err)
	_, err = s.rooms.JoinRoom(s.ctx, "u1", created.ID, "")
	s.Require().NoError(err)

	// A fresh connection for a user who is already a member rejoins
	// the same room instead of failing.
	c := s.client("u1")
	s.join(c, model.JoinPayload{})

	msg := s.receive(c)
	s.Equal(model.EventState, msg.Type)
	s.Equal(created.ID, c.Room())

	count, err := s.rooms.MemberCount(s.ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *HandlerSuite) TestJoinDifferentRoomWhileMember() {
	created, err := s.rooms.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "u1", nil)
	s.Require().NoError(err)
	_, err = s.rooms.JoinRoom(s.ctx, "u1", created.ID, "")
	s.Require().NoError(err)

	other, err := s.rooms.CreateRoom(s.ctx, model.RoomPublic, model.ModeClassic, "host", nil)
	s.Require().NoError(err)

	c := s.client("u1")
	s.join(c, model.JoinPayload{RoomID: other.ID})
	s.expectError(c, "ALREADY_JOINED")
	s.Empty(c.Room())
}

func (s *HandlerSuite) TestReadyWithoutRoom() {
	c := s.client("u1")
	s.handler.route(s.ctx, c, model.Message{Type: model.MessageReady})
	s.expectError(c, "NOT_IN_ROOM")
}

func (s *HandlerSuite) TestLeaveClearsRoom() {
	c := s.client("u1")
	s.join(c, model.JoinPayload{})
	s.receive(c) // state event
	roomID := c.Room()
	s.Require().NotEmpty(roomID)

	s.handler.route(s.ctx, c, model.Message{Type: model.MessageLeave})
	s.Empty(c.Room())

	count, err := s.rooms.MemberCount(s.ctx, roomID)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *HandlerSuite) TestUnknownMessageType() {
	c := s.client("u1")
	s.handler.route(s.ctx, c, model.Message{Type: "bogus"})
	s.expectError(c, "UNKNOWN_TYPE")
}
