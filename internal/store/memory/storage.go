package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/store"
)

// Storage is an in-memory implementation of the store interface. A
// single mutex makes every operation indivisible, which satisfies the
// same atomicity contract the Redis scripts provide. Intended for tests
// and single-process development; TTLs are not enforced except on the
// ownership lease.
type Storage struct {
	mu sync.Mutex

	sessions    map[string]*model.Session
	connections map[model.UserID]int
	rooms       map[model.RoomID]*model.Room
	members     map[model.RoomID]map[model.UserID]bool
	statuses    map[model.RoomID]map[model.UserID]model.PlayerStatus
	userRoom    map[model.UserID]model.RoomID
	inviteCodes map[string]model.RoomID
	owners      map[model.RoomID]ownerLease
	games       map[model.RoomID]*gameState
	queue       []model.Task
	deadLetters []model.DeadTask
	questions   map[model.Difficulty][]model.Question
}

type ownerLease struct {
	instanceID string
	expiresAt  time.Time
}

type gameState struct {
	phase         model.GamePhase
	round         int
	questionID    model.QuestionID
	questionStart time.Time
	answers       map[model.UserID]int64
	scores        map[model.UserID]int
}

// New creates a new in-memory storage instance
func New() *Storage {
	return &Storage{
		sessions:    make(map[string]*model.Session),
		connections: make(map[model.UserID]int),
		rooms:       make(map[model.RoomID]*model.Room),
		members:     make(map[model.RoomID]map[model.UserID]bool),
		statuses:    make(map[model.RoomID]map[model.UserID]model.PlayerStatus),
		userRoom:    make(map[model.UserID]model.RoomID),
		inviteCodes: make(map[string]model.RoomID),
		owners:      make(map[model.RoomID]ownerLease),
		games:       make(map[model.RoomID]*gameState),
		questions:   make(map[model.Difficulty][]model.Question),
	}
}

// Ensure Storage implements the interface
var _ store.Store = (*Storage)(nil)

func (s *Storage) game(roomID model.RoomID) *gameState {
	g, ok := s.games[roomID]
	if !ok {
		g = &gameState{
			answers: make(map[model.UserID]int64),
			scores:  make(map[model.UserID]int),
		}
		s.games[roomID] = g
	}
	return g
}

// Session operations

func (s *Storage) SaveSession(ctx context.Context, session *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = session
	return nil
}

func (s *Storage) GetSession(ctx context.Context, token string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return nil, model.ErrUnauthorized
	}
	return session, nil
}

func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func (s *Storage) TrackConnection(ctx context.Context, userID model.UserID, max int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections[userID] >= max {
		return false, nil
	}
	s.connections[userID]++
	return true, nil
}

func (s *Storage) ReleaseConnection(ctx context.Context, userID model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections[userID] <= 1 {
		delete(s.connections, userID)
	} else {
		s.connections[userID]--
	}
	return nil
}

// Room operations

func (s *Storage) SaveRoom(ctx context.Context, room *model.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *room
	s.rooms[room.ID] = &copied
	if s.members[room.ID] == nil {
		s.members[room.ID] = make(map[model.UserID]bool)
	}
	if s.statuses[room.ID] == nil {
		s.statuses[room.ID] = make(map[model.UserID]model.PlayerStatus)
	}
	return nil
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[id]
	if !ok {
		return nil, model.ErrRoomNotFound
	}
	copied := *room
	return &copied, nil
}

func (s *Storage) JoinRoom(ctx context.Context, roomID model.RoomID, userID model.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return 0, model.ErrRoomNotFound
	}
	if _, joined := s.userRoom[userID]; joined {
		return 0, model.ErrAlreadyJoined
	}
	if len(s.members[roomID]) >= room.Capacity {
		return 0, model.ErrRoomFull
	}

	s.members[roomID][userID] = true
	s.statuses[roomID][userID] = model.PlayerWaiting
	s.userRoom[userID] = roomID
	return len(s.members[roomID]), nil
}

func (s *Storage) LeaveRoom(ctx context.Context, roomID model.RoomID, userID model.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.members[roomID], userID)
	delete(s.statuses[roomID], userID)
	if s.userRoom[userID] == roomID {
		delete(s.userRoom, userID)
	}
	return len(s.members[roomID]), nil
}

func (s *Storage) FindPublicRoom(ctx context.Context, capacity int) (model.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var best model.RoomID
	bestCount := -1
	for id, room := range s.rooms {
		if room.Visibility != model.RoomPublic {
			continue
		}
		count := len(s.members[id])
		if count >= capacity || count == 0 {
			continue
		}
		if bestCount == -1 || count < bestCount {
			best = id
			bestCount = count
		}
	}
	return best, nil
}

func (s *Storage) Members(ctx context.Context, roomID model.RoomID) ([]model.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]model.UserID, 0, len(s.members[roomID]))
	for user := range s.members[roomID] {
		members = append(members, user)
	}
	return members, nil
}

func (s *Storage) MemberCount(ctx context.Context, roomID model.RoomID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members[roomID]), nil
}

func (s *Storage) RemoveMember(ctx context.Context, roomID model.RoomID, userID model.UserID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[roomID], userID)
	if s.userRoom[userID] == roomID {
		delete(s.userRoom, userID)
	}
	return nil
}

func (s *Storage) SetMemberStatus(ctx context.Context, roomID model.RoomID, userID model.UserID, status model.PlayerStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.statuses[roomID] == nil {
		s.statuses[roomID] = make(map[model.UserID]model.PlayerStatus)
	}
	s.statuses[roomID][userID] = status
	return nil
}

func (s *Storage) MemberStatuses(ctx context.Context, roomID model.RoomID) (map[model.UserID]model.PlayerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	statuses := make(map[model.UserID]model.PlayerStatus, len(s.statuses[roomID]))
	for user, status := range s.statuses[roomID] {
		statuses[user] = status
	}
	return statuses, nil
}

func (s *Storage) SetRoomStatus(ctx context.Context, roomID model.RoomID, status model.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return model.ErrRoomNotFound
	}
	room.Status = status
	return nil
}

func (s *Storage) SaveInviteCode(ctx context.Context, code string, roomID model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inviteCodes[code] = roomID
	return nil
}

func (s *Storage) ResolveInviteCode(ctx context.Context, code string) (model.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	roomID, ok := s.inviteCodes[code]
	if !ok {
		return "", model.ErrInvalidInviteCode
	}
	return roomID, nil
}

func (s *Storage) RoomForUser(ctx context.Context, userID model.UserID) (model.RoomID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userRoom[userID], nil
}

// Game state operations

func (s *Storage) SetGamePhase(ctx context.Context, roomID model.RoomID, phase model.GamePhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game(roomID).phase = phase
	return nil
}

func (s *Storage) GetGamePhase(ctx context.Context, roomID model.RoomID) (model.GamePhase, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[roomID]
	if !ok {
		return "", nil
	}
	return g.phase, nil
}

func (s *Storage) SetRound(ctx context.Context, roomID model.RoomID, round int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game(roomID).round = round
	return nil
}

func (s *Storage) GetRound(ctx context.Context, roomID model.RoomID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[roomID]
	if !ok {
		return 0, nil
	}
	return g.round, nil
}

func (s *Storage) SetCurrentQuestion(ctx context.Context, roomID model.RoomID, questionID model.QuestionID, start time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.game(roomID)
	g.questionID = questionID
	g.questionStart = start
	return nil
}

func (s *Storage) CurrentQuestion(ctx context.Context, roomID model.RoomID) (model.QuestionID, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[roomID]
	if !ok {
		return "", time.Time{}, nil
	}
	return g.questionID, g.questionStart, nil
}

func (s *Storage) RecordAnswerTime(ctx context.Context, roomID model.RoomID, userID model.UserID, timeTakenMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := s.game(roomID)
	if _, answered := g.answers[userID]; answered {
		return false, nil
	}
	g.answers[userID] = timeTakenMs
	return true, nil
}

func (s *Storage) Answers(ctx context.Context, roomID model.RoomID) (map[model.UserID]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[roomID]
	if !ok {
		return map[model.UserID]int64{}, nil
	}
	answers := make(map[model.UserID]int64, len(g.answers))
	for user, ms := range g.answers {
		answers[user] = ms
	}
	return answers, nil
}

func (s *Storage) ClearAnswers(ctx context.Context, roomID model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.games[roomID]; ok {
		g.answers = make(map[model.UserID]int64)
	}
	return nil
}

func (s *Storage) IncrScore(ctx context.Context, roomID model.RoomID, userID model.UserID, points int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.game(roomID).scores[userID] += points
	return nil
}

func (s *Storage) Scores(ctx context.Context, roomID model.RoomID) (map[model.UserID]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.games[roomID]
	if !ok {
		return map[model.UserID]int{}, nil
	}
	scores := make(map[model.UserID]int, len(g.scores))
	for user, points := range g.scores {
		scores[user] = points
	}
	return scores, nil
}

func (s *Storage) ClearGame(ctx context.Context, roomID model.RoomID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.games, roomID)
	return nil
}

// Room ownership lease

func (s *Storage) AcquireRoomOwner(ctx context.Context, roomID model.RoomID, instanceID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, held := s.owners[roomID]
	if held && time.Now().Before(lease.expiresAt) && lease.instanceID != instanceID {
		return false, nil
	}
	s.owners[roomID] = ownerLease{instanceID: instanceID, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *Storage) RefreshRoomOwner(ctx context.Context, roomID model.RoomID, instanceID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lease, held := s.owners[roomID]
	if !held || lease.instanceID != instanceID || time.Now().After(lease.expiresAt) {
		return false, nil
	}
	s.owners[roomID] = ownerLease{instanceID: instanceID, expiresAt: time.Now().Add(ttl)}
	return true, nil
}

func (s *Storage) ReleaseRoomOwner(ctx context.Context, roomID model.RoomID, instanceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lease, held := s.owners[roomID]; held && lease.instanceID == instanceID {
		delete(s.owners, roomID)
	}
	return nil
}

// Persistence queue operations

func (s *Storage) EnqueueTask(ctx context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, *task)
	return nil
}

func (s *Storage) PeekTasks(ctx context.Context, n int) ([]model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > len(s.queue) {
		n = len(s.queue)
	}
	tasks := make([]model.Task, n)
	copy(tasks, s.queue[:n])
	return tasks, nil
}

func (s *Storage) AckTask(ctx context.Context, task model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queue {
		if s.queue[i].ID == task.ID && s.queue[i].RetryCount == task.RetryCount {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return nil
		}
	}
	return model.ErrTaskNotFound
}

func (s *Storage) RequeueTask(ctx context.Context, old model.Task, updated model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.queue {
		if s.queue[i].ID == old.ID && s.queue[i].RetryCount == old.RetryCount {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			break
		}
	}
	s.queue = append(s.queue, updated)
	return nil
}

func (s *Storage) PushDeadLetter(ctx context.Context, dead model.DeadTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetters = append(s.deadLetters, dead)
	return nil
}

func (s *Storage) DeadLetters(ctx context.Context) ([]model.DeadTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dead := make([]model.DeadTask, len(s.deadLetters))
	copy(dead, s.deadLetters)
	return dead, nil
}

// Question operations

func (s *Storage) SaveQuestions(ctx context.Context, questions []model.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range questions {
		s.questions[q.Difficulty] = append(s.questions[q.Difficulty], q)
	}
	return nil
}

func (s *Storage) QuestionsByDifficulty(ctx context.Context, level model.Difficulty) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	questions := make([]model.Question, len(s.questions[level]))
	copy(questions, s.questions[level])
	return questions, nil
}
