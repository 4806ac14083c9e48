package battle

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/mocks"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/persist"
	"github.com/quizbattle/quizbattle-go/internal/services/question"
	"github.com/quizbattle/quizbattle-go/internal/services/room"
	"github.com/quizbattle/quizbattle-go/internal/services/scoring"
	"github.com/quizbattle/quizbattle-go/internal/store/memory"
	"github.com/quizbattle/quizbattle-go/internal/testutil"
)

// recordingBroadcaster captures everything broadcast to a room
type recordingBroadcaster struct {
	mu       sync.Mutex
	messages map[model.RoomID][]model.Message
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{messages: make(map[model.RoomID][]model.Message)}
}

func (b *recordingBroadcaster) Broadcast(roomID model.RoomID, msg model.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages[roomID] = append(b.messages[roomID], msg)
}

func (b *recordingBroadcaster) types(roomID model.RoomID) []model.MessageType {
	b.mu.Lock()
	defer b.mu.Unlock()
	types := make([]model.MessageType, len(b.messages[roomID]))
	for i, msg := range b.messages[roomID] {
		types[i] = msg.Type
	}
	return types
}

func (b *recordingBroadcaster) last(roomID model.RoomID, t model.MessageType) (model.Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.messages[roomID]
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Type == t {
			return msgs[i], true
		}
	}
	return model.Message{}, false
}

func (b *recordingBroadcaster) count(roomID model.RoomID, t model.MessageType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, msg := range b.messages[roomID] {
		if msg.Type == t {
			n++
		}
	}
	return n
}

type CoordinatorSuite struct {
	suite.Suite
	storage     *memory.Storage
	clock       *mocks.MockClock
	scheduler   *mocks.MockScheduler
	broadcaster *recordingBroadcaster
	rooms       *room.Service
	coordinator *Coordinator
	ctx         context.Context
}

func TestCoordinatorSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorSuite))
}

func (s *CoordinatorSuite) SetupTest() {
	s.storage = memory.New()
	s.clock = mocks.NewMockClock(time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC))
	s.scheduler = mocks.NewMockScheduler()
	s.broadcaster = newRecordingBroadcaster()
	s.ctx = context.Background()

	rnd := &mocks.MockRandom{IntnValues: []int{0}}
	logger := testutil.NopLogger()
	pipeline := persist.NewPipeline(s.storage, s.clock, rnd, logger)

	s.rooms = room.New(s.storage, s.clock, rnd, pipeline, room.DefaultConfig(), logger)
	questions := question.New(s.storage, rnd, logger)

	s.coordinator = New(s.storage, s.rooms, questions, scoring.New(), s.clock, s.scheduler, pipeline, Config{
		InstanceID: "test-instance",
	}, logger)
	s.coordinator.SetBroadcaster(s.broadcaster)
}

func (s *CoordinatorSuite) seedEasyQuestion() {
	s.Require().NoError(s.storage.SaveQuestions(s.ctx, []model.Question{{
		ID:            "q-easy",
		Prompt:        "2+2?",
		Options:       []string{"3", "4"},
		CorrectOption: "4",
		Difficulty:    model.DifficultyEasy,
	}}))
}

func (s *CoordinatorSuite) createRoom(mode model.GameMode, settings *model.RoomSettings, users ...model.UserID) model.RoomID {
	created, err := s.rooms.CreateRoom(s.ctx, model.RoomPrivate, mode, users[0], settings)
	s.Require().NoError(err)
	for _, user := range users {
		_, err := s.rooms.JoinRoom(s.ctx, user, created.ID, created.InviteCode)
		s.Require().NoError(err)
	}
	return created.ID
}

func (s *CoordinatorSuite) allReady(roomID model.RoomID, users ...model.UserID) {
	for _, user := range users {
		s.Require().NoError(s.coordinator.HandleReady(s.ctx, roomID, user))
	}
}

func (s *CoordinatorSuite) fire(roomID model.RoomID) {
	s.Require().True(s.scheduler.Fire(string(roomID)), "expected a pending timer for the room")
}

func (s *CoordinatorSuite) answer(roomID model.RoomID, user model.UserID, option string, after time.Duration) {
	s.clock.Advance(after)
	s.Require().NoError(s.coordinator.HandleAnswer(s.ctx, roomID, user, option))
}

func (s *CoordinatorSuite) endPayload(roomID model.RoomID) model.EndPayload {
	msg, ok := s.broadcaster.last(roomID, model.EventEnd)
	s.Require().True(ok, "expected an end event")
	var payload model.EndPayload
	s.Require().NoError(json.Unmarshal(msg.Payload, &payload))
	return payload
}

func (s *CoordinatorSuite) TestReadyDoesNotStartUntilAll() {
	s.seedEasyQuestion()
	roomID := s.createRoom(model.ModeClassic, nil, "u1", "u2")

	s.Require().NoError(s.coordinator.HandleReady(s.ctx, roomID, "u1"))
	s.False(s.scheduler.HasPending(string(roomID)))

	s.Require().NoError(s.coordinator.HandleReady(s.ctx, roomID, "u2"))
	s.True(s.scheduler.HasPending(string(roomID)))
	s.Equal(DefaultConfig().StartDelay, s.scheduler.PendingDelay(string(roomID)))

	updated, err := s.rooms.GetRoom(s.ctx, roomID)
	s.Require().NoError(err)
	s.Equal(model.RoomActive, updated.Status)
}

func (s *CoordinatorSuite) TestClassicGameRunsToCompletion() {
	s.seedEasyQuestion()
	roomID := s.createRoom(model.ModeClassic, &model.RoomSettings{QuestionLimit: 2}, "u1", "u2")

	s.allReady(roomID, "u1", "u2")
	s.fire(roomID) // start delay -> round 1 question

	phase, err := s.coordinator.Phase(s.ctx, roomID)
	s.Require().NoError(err)
	s.Equal(model.PhaseQuestion, phase)

	// Round 1: u1 fast and correct, u2 wrong. All answered ends the
	// question without waiting out the timer.
	s.answer(roomID, "u1", "4", time.Second)
	s.answer(roomID, "u2", "3", time.Second)

	s.Equal(1, s.broadcaster.count(roomID, model.EventQuestionEnded))
	s.Equal(1, s.broadcaster.count(roomID, model.EventRoundEnded))

	s.fire(roomID) // round pause -> round 2 question

	s.answer(roomID, "u1", "4", time.Second)
	s.answer(roomID, "u2", "3", time.Second)

	// Round 2 was the last: game over
	payload := s.endPayload(roomID)
	s.Equal(model.UserID("u1"), payload.WinnerID)
	s.Equal(model.EndReasonCompleted, payload.Reason)
	// Two correct answers at 10% of the limit: 910 each
	s.Equal(1820, payload.FinalScores["u1"])

	phase, err = s.coordinator.Phase(s.ctx, roomID)
	s.Require().NoError(err)
	s.Empty(phase) // game state cleared

	updated, err := s.rooms.GetRoom(s.ctx, roomID)
	s.Require().NoError(err)
	s.Equal(model.RoomEnded, updated.Status)

	// Ended exactly once, timers drained
	s.Equal(1, s.broadcaster.count(roomID, model.EventEnd))
	s.False(s.scheduler.HasPending(string(roomID)))
}

func (s *CoordinatorSuite) TestCompletionTaskEnqueued() {
	s.seedEasyQuestion()
	roomID := s.createRoom(model.ModeClassic, &model.RoomSettings{QuestionLimit: 1}, "u1", "u2")

	s.allReady(roomID, "u1", "u2")
	s.fire(roomID)
	s.answer(roomID, "u1", "4", time.Second)
	s.answer(roomID, "u2", "4", 2*time.Second)

	tasks, err := s.storage.PeekTasks(s.ctx, 100)
	s.Require().NoError(err)

	var completion *model.RoomCompletionTaskPayload
	for _, task := range tasks {
		if task.Type == model.TaskRoomCompletion {
			var payload model.RoomCompletionTaskPayload
			s.Require().NoError(json.Unmarshal(task.Payload, &payload))
			completion = &payload
		}
	}
	s.Require().NotNil(completion, "expected a completion task")
	s.Equal(roomID, completion.RoomID)
	s.Equal(model.UserID("u1"), completion.WinnerID)
}

func (s *CoordinatorSuite) TestDuplicateAnswerIgnored() {
	s.seedEasyQuestion()
	roomID := s.createRoom(model.ModeClassic, &model.RoomSettings{QuestionLimit: 1}, "u1", "u2")

	s.allReady(roomID, "u1", "u2")
	s.fire(roomID)

	s.answer(roomID, "u1", "4", time.Second)
	// Second submission changes nothing
	s.answer(roomID, "u1", "4", time.Second)

	scores, err := s.storage.Scores(s.ctx, roomID)
	s.Require().NoError(err)
	s.Equal(910, scores["u1"])
}

func (s *CoordinatorSuite) TestStaleAnswerIgnored() {
	s.seedEasyQuestion()
	roomID := s.createRoom(model.ModeClassic, nil, "u1", "u2")

	// No game running: silently dropped
	s.Require().NoError(s.coordinator.HandleAnswer(s.ctx, roomID, "u1", "4"))

	scores, err := s.storage.Scores(s.ctx, roomID)
	s.Require().NoError(err)
	s.Empty(scores)
}

func (s *CoordinatorSuite) TestAnswerAfterQuestionEndedIgnored() {
	s.seedEasyQuestion()
	roomID := s.createRoom(model.ModeClassic, &model.RoomSettings{QuestionLimit: 2}, "u1", "u2")

	s.allReady(roomID, "u1", "u2")
	s.fire(roomID)

	s.answer(roomID, "u1", "4", time.Second)
	s.answer(roomID, "u2", "4", time.Second)

	// Question is over, round pause pending. A racing answer scores nothing.
	scoresBefore, err := s.storage.Scores(s.ctx, roomID)
	s.Require().NoError(err)
	s.Require().NoError(s.coordinator.HandleAnswer(s.ctx, roomID, "u1", "4"))
	scoresAfter, err := s.storage.Scores(s.ctx, roomID)
	s.Require().NoError(err)
	s.Equal(scoresBefore, scoresAfter)
}

func (s *CoordinatorSuite) TestQuestionTimeoutEndsQuestion() {
	s.seedEasyQuestion()
	roomID := s.createRoom(model.ModeClassic, &model.RoomSettings{QuestionLimit: 2}, "u1", "u2")

	s.allReady(roomID, "u1", "u2")
	s.fire(roomID)

	s.answer(roomID, "u1", "4", time.Second)
	// u2 never answers; the question timer fires
	s.fire(roomID)

	msg, ok := s.broadcaster.last(roomID, model.EventQuestionEnded)
	s.Require().True(ok)
	var payload model.QuestionEndedPayload
	s.Require().NoError(json.Unmarshal(msg.Payload, &payload))
	s.Require().Len(payload.Results, 1)
	s.Equal(model.UserID("u1"), payload.Results[0].UserID)
	s.Equal("4", payload.CorrectOption)
}

func (s *CoordinatorSuite) TestBattleRoyaleElimination() {
	s.seedEasyQuestion()
	settings := &model.RoomSettings{EliminationCount: 1}
	roomID := s.createRoom(model.ModeBattleRoyale, settings, "u1", "u2", "u3")

	s.allReady(roomID, "u1", "u2", "u3")
	s.fire(roomID)

	// Round 1: u3 never answers and is eliminated first
	s.answer(roomID, "u1", "4", time.Second)
	s.answer(roomID, "u2", "4", time.Second)
	s.fire(roomID) // question timeout

	msg, ok := s.broadcaster.last(roomID, model.EventEliminated)
	s.Require().True(ok)
	var eliminated model.EliminatedPayload
	s.Require().NoError(json.Unmarshal(msg.Payload, &eliminated))
	s.Equal([]model.UserID{"u3"}, eliminated.UserIDs)

	count, err := s.rooms.MemberCount(s.ctx, roomID)
	s.Require().NoError(err)
	s.Equal(2, count)

	s.fire(roomID) // round pause -> round 2

	// Round 2: u2 is the slowest answerer and goes out, leaving one
	// player, which ends the game.
	s.answer(roomID, "u1", "4", time.Second)
	s.answer(roomID, "u2", "4", 3*time.Second)

	msg, ok = s.broadcaster.last(roomID, model.EventEliminated)
	s.Require().True(ok)
	s.Require().NoError(json.Unmarshal(msg.Payload, &eliminated))
	s.Equal([]model.UserID{"u2"}, eliminated.UserIDs)

	payload := s.endPayload(roomID)
	s.Equal(model.UserID("u1"), payload.WinnerID)
	s.Equal(1, s.broadcaster.count(roomID, model.EventEnd))
}

func (s *CoordinatorSuite) TestLeaveMidGameEndsWhenTooFew() {
	s.seedEasyQuestion()
	roomID := s.createRoom(model.ModeClassic, nil, "u1", "u2")

	s.allReady(roomID, "u1", "u2")
	s.fire(roomID)

	s.Require().NoError(s.coordinator.HandleLeave(s.ctx, roomID, "u2"))

	s.Equal(1, s.broadcaster.count(roomID, model.EventPlayerLeft))
	payload := s.endPayload(roomID)
	s.Equal(model.EndReasonNotEnough, payload.Reason)
}

func (s *CoordinatorSuite) TestNoQuestionsEndsEarly() {
	// Nothing seeded
	roomID := s.createRoom(model.ModeClassic, nil, "u1", "u2")

	s.allReady(roomID, "u1", "u2")
	s.fire(roomID)

	payload := s.endPayload(roomID)
	s.Equal(model.EndReasonNoQuestions, payload.Reason)
}

func (s *CoordinatorSuite) TestOwnerLeaseBlocksSecondCoordinator() {
	s.seedEasyQuestion()
	roomID := s.createRoom(model.ModeClassic, nil, "u1", "u2")

	held, err := s.storage.AcquireRoomOwner(s.ctx, roomID, "other-instance", time.Minute)
	s.Require().NoError(err)
	s.Require().True(held)

	s.allReady(roomID, "u1", "u2")

	// The lease holder is elsewhere; no timer scheduled here
	s.False(s.scheduler.HasPending(string(roomID)))
}
