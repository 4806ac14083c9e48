package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/store"
)

// Storage is a Redis-backed implementation of the store interface
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ensure Storage implements the interface
var _ store.Store = (*Storage)(nil)

// Session operations

func (s *Storage) SaveSession(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKey(session.Token), data, s.cfg.SessionTTL).Err()
}

func (s *Storage) GetSession(ctx context.Context, token string) (*model.Session, error) {
	data, err := s.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrUnauthorized
		}
		return nil, err
	}

	var session model.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Storage) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKey(token)).Err()
}

func (s *Storage) TrackConnection(ctx context.Context, userID model.UserID, max int) (bool, error) {
	res, err := trackConnectionScript.Run(ctx, s.client,
		[]string{connectionKey(userID)},
		max, int(s.cfg.ConnectionTTL.Seconds()),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *Storage) ReleaseConnection(ctx context.Context, userID model.UserID) error {
	return releaseConnectionScript.Run(ctx, s.client,
		[]string{connectionKey(userID)},
	).Err()
}

// Room operations

func (s *Storage) SaveRoom(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}

	// The meta hash is what the atomic scripts read; keep it in lockstep
	// with the JSON record.
	pipe := s.client.Pipeline()
	pipe.Set(ctx, roomKey(room.ID), data, s.cfg.RoomTTL)
	pipe.HSet(ctx, roomMetaKey(room.ID),
		"capacity", room.Capacity,
		"visibility", string(room.Visibility),
		"status", string(room.Status),
	)
	pipe.Expire(ctx, roomMetaKey(room.ID), s.cfg.RoomTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error) {
	data, err := s.client.Get(ctx, roomKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrRoomNotFound
		}
		return nil, err
	}

	var room model.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, err
	}

	// Status is updated in the meta hash without rewriting the record
	status, err := s.client.HGet(ctx, roomMetaKey(id), "status").Result()
	if err == nil && status != "" {
		room.Status = model.RoomStatus(status)
	}
	return &room, nil
}

func (s *Storage) JoinRoom(ctx context.Context, roomID model.RoomID, userID model.UserID) (int, error) {
	res, err := joinRoomScript.Run(ctx, s.client,
		[]string{
			roomMembersKey(roomID),
			roomMetaKey(roomID),
			roomPlayerStatusKey(roomID),
			userRoomKey(userID),
			publicRoomsKey(),
		},
		string(roomID), string(userID), int(s.cfg.MembershipTTL.Seconds()),
	).Int()
	if err != nil {
		return 0, err
	}

	switch res {
	case -1:
		return 0, model.ErrRoomFull
	case -2:
		return 0, model.ErrRoomNotFound
	case -3:
		return 0, model.ErrAlreadyJoined
	}
	return res, nil
}

func (s *Storage) LeaveRoom(ctx context.Context, roomID model.RoomID, userID model.UserID) (int, error) {
	return leaveRoomScript.Run(ctx, s.client,
		[]string{
			roomMembersKey(roomID),
			roomMetaKey(roomID),
			roomPlayerStatusKey(roomID),
			userRoomKey(userID),
			publicRoomsKey(),
		},
		string(roomID), string(userID), int(s.cfg.EmptyRoomGrace.Seconds()),
	).Int()
}

func (s *Storage) FindPublicRoom(ctx context.Context, capacity int) (model.RoomID, error) {
	// Lowest member count first: the zset is scored by member count, so
	// the first entry under capacity is the least-loaded open room.
	ids, err := s.client.ZRangeByScore(ctx, publicRoomsKey(), &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.Itoa(capacity - 1),
		Offset: 0,
		Count:  1,
	}).Result()
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", nil
	}
	return model.RoomID(ids[0]), nil
}

func (s *Storage) Members(ctx context.Context, roomID model.RoomID) ([]model.UserID, error) {
	raw, err := s.client.SMembers(ctx, roomMembersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	members := make([]model.UserID, len(raw))
	for i, m := range raw {
		members[i] = model.UserID(m)
	}
	return members, nil
}

func (s *Storage) MemberCount(ctx context.Context, roomID model.RoomID) (int, error) {
	count, err := s.client.SCard(ctx, roomMembersKey(roomID)).Result()
	return int(count), err
}

func (s *Storage) RemoveMember(ctx context.Context, roomID model.RoomID, userID model.UserID) error {
	pipe := s.client.Pipeline()
	pipe.SRem(ctx, roomMembersKey(roomID), string(userID))
	pipe.Del(ctx, userRoomKey(userID))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) SetMemberStatus(ctx context.Context, roomID model.RoomID, userID model.UserID, status model.PlayerStatus) error {
	return s.client.HSet(ctx, roomPlayerStatusKey(roomID), string(userID), string(status)).Err()
}

func (s *Storage) MemberStatuses(ctx context.Context, roomID model.RoomID) (map[model.UserID]model.PlayerStatus, error) {
	raw, err := s.client.HGetAll(ctx, roomPlayerStatusKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	statuses := make(map[model.UserID]model.PlayerStatus, len(raw))
	for user, status := range raw {
		statuses[model.UserID(user)] = model.PlayerStatus(status)
	}
	return statuses, nil
}

func (s *Storage) SetRoomStatus(ctx context.Context, roomID model.RoomID, status model.RoomStatus) error {
	return s.client.HSet(ctx, roomMetaKey(roomID), "status", string(status)).Err()
}

func (s *Storage) SaveInviteCode(ctx context.Context, code string, roomID model.RoomID) error {
	return s.client.Set(ctx, inviteCodeKey(code), string(roomID), s.cfg.RoomTTL).Err()
}

func (s *Storage) ResolveInviteCode(ctx context.Context, code string) (model.RoomID, error) {
	id, err := s.client.Get(ctx, inviteCodeKey(code)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", model.ErrInvalidInviteCode
		}
		return "", err
	}
	return model.RoomID(id), nil
}

func (s *Storage) RoomForUser(ctx context.Context, userID model.UserID) (model.RoomID, error) {
	id, err := s.client.Get(ctx, userRoomKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return model.RoomID(id), nil
}

// Game state operations

func (s *Storage) SetGamePhase(ctx context.Context, roomID model.RoomID, phase model.GamePhase) error {
	return s.client.Set(ctx, gamePhaseKey(roomID), string(phase), s.cfg.RoomTTL).Err()
}

func (s *Storage) GetGamePhase(ctx context.Context, roomID model.RoomID) (model.GamePhase, error) {
	phase, err := s.client.Get(ctx, gamePhaseKey(roomID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", err
	}
	return model.GamePhase(phase), nil
}

func (s *Storage) SetRound(ctx context.Context, roomID model.RoomID, round int) error {
	return s.client.Set(ctx, gameRoundKey(roomID), round, s.cfg.RoomTTL).Err()
}

func (s *Storage) GetRound(ctx context.Context, roomID model.RoomID) (int, error) {
	round, err := s.client.Get(ctx, gameRoundKey(roomID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, err
	}
	return round, nil
}

func (s *Storage) SetCurrentQuestion(ctx context.Context, roomID model.RoomID, questionID model.QuestionID, start time.Time) error {
	return s.client.HSet(ctx, gameQuestionKey(roomID),
		"id", string(questionID),
		"start", start.UnixMilli(),
	).Err()
}

func (s *Storage) CurrentQuestion(ctx context.Context, roomID model.RoomID) (model.QuestionID, time.Time, error) {
	fields, err := s.client.HGetAll(ctx, gameQuestionKey(roomID)).Result()
	if err != nil {
		return "", time.Time{}, err
	}
	if len(fields) == 0 {
		return "", time.Time{}, nil
	}

	startMs, err := strconv.ParseInt(fields["start"], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse question start: %w", err)
	}
	return model.QuestionID(fields["id"]), time.UnixMilli(startMs), nil
}

func (s *Storage) RecordAnswerTime(ctx context.Context, roomID model.RoomID, userID model.UserID, timeTakenMs int64) (bool, error) {
	return s.client.HSetNX(ctx, gameAnswersKey(roomID), string(userID), timeTakenMs).Result()
}

func (s *Storage) Answers(ctx context.Context, roomID model.RoomID) (map[model.UserID]int64, error) {
	raw, err := s.client.HGetAll(ctx, gameAnswersKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	answers := make(map[model.UserID]int64, len(raw))
	for user, ms := range raw {
		taken, err := strconv.ParseInt(ms, 10, 64)
		if err != nil {
			continue
		}
		answers[model.UserID(user)] = taken
	}
	return answers, nil
}

func (s *Storage) ClearAnswers(ctx context.Context, roomID model.RoomID) error {
	return s.client.Del(ctx, gameAnswersKey(roomID)).Err()
}

func (s *Storage) IncrScore(ctx context.Context, roomID model.RoomID, userID model.UserID, points int) error {
	return s.client.ZIncrBy(ctx, gameScoresKey(roomID), float64(points), string(userID)).Err()
}

func (s *Storage) Scores(ctx context.Context, roomID model.RoomID) (map[model.UserID]int, error) {
	entries, err := s.client.ZRangeWithScores(ctx, gameScoresKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	scores := make(map[model.UserID]int, len(entries))
	for _, e := range entries {
		scores[model.UserID(e.Member.(string))] = int(e.Score)
	}
	return scores, nil
}

func (s *Storage) ClearGame(ctx context.Context, roomID model.RoomID) error {
	return s.client.Del(ctx,
		gamePhaseKey(roomID),
		gameRoundKey(roomID),
		gameQuestionKey(roomID),
		gameAnswersKey(roomID),
		gameScoresKey(roomID),
	).Err()
}

// Room ownership lease

func (s *Storage) AcquireRoomOwner(ctx context.Context, roomID model.RoomID, instanceID string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, roomOwnerKey(roomID), instanceID, ttl).Result()
}

func (s *Storage) RefreshRoomOwner(ctx context.Context, roomID model.RoomID, instanceID string, ttl time.Duration) (bool, error) {
	res, err := refreshOwnerScript.Run(ctx, s.client,
		[]string{roomOwnerKey(roomID)},
		instanceID, int(ttl.Seconds()),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func (s *Storage) ReleaseRoomOwner(ctx context.Context, roomID model.RoomID, instanceID string) error {
	return releaseOwnerScript.Run(ctx, s.client,
		[]string{roomOwnerKey(roomID)},
		instanceID,
	).Err()
}

// Persistence queue operations

func (s *Storage) EnqueueTask(ctx context.Context, task *model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return s.client.RPush(ctx, taskQueueKey(), data).Err()
}

func (s *Storage) PeekTasks(ctx context.Context, n int) ([]model.Task, error) {
	raw, err := s.client.LRange(ctx, taskQueueKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}

	tasks := make([]model.Task, 0, len(raw))
	for _, item := range raw {
		var task model.Task
		if err := json.Unmarshal([]byte(item), &task); err != nil {
			continue // Skip malformed entries
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *Storage) AckTask(ctx context.Context, task model.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	removed, err := s.client.LRem(ctx, taskQueueKey(), 1, data).Result()
	if err != nil {
		return err
	}
	if removed == 0 {
		return model.ErrTaskNotFound
	}
	return nil
}

func (s *Storage) RequeueTask(ctx context.Context, old model.Task, updated model.Task) error {
	oldData, err := json.Marshal(old)
	if err != nil {
		return err
	}
	newData, err := json.Marshal(updated)
	if err != nil {
		return err
	}

	pipe := s.client.Pipeline()
	pipe.LRem(ctx, taskQueueKey(), 1, oldData)
	pipe.RPush(ctx, taskQueueKey(), newData)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Storage) PushDeadLetter(ctx context.Context, dead model.DeadTask) error {
	data, err := json.Marshal(dead)
	if err != nil {
		return err
	}
	return s.client.LPush(ctx, deadLetterKey(), data).Err()
}

func (s *Storage) DeadLetters(ctx context.Context) ([]model.DeadTask, error) {
	raw, err := s.client.LRange(ctx, deadLetterKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	dead := make([]model.DeadTask, 0, len(raw))
	for _, item := range raw {
		var task model.DeadTask
		if err := json.Unmarshal([]byte(item), &task); err != nil {
			continue
		}
		dead = append(dead, task)
	}
	return dead, nil
}

// Question operations

func (s *Storage) SaveQuestions(ctx context.Context, questions []model.Question) error {
	pipe := s.client.Pipeline()
	for i := range questions {
		data, err := json.Marshal(&questions[i])
		if err != nil {
			return fmt.Errorf("marshal question %s: %w", questions[i].ID, err)
		}
		pipe.SAdd(ctx, questionsKey(questions[i].Difficulty), data)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Storage) QuestionsByDifficulty(ctx context.Context, level model.Difficulty) ([]model.Question, error) {
	raw, err := s.client.SMembers(ctx, questionsKey(level)).Result()
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, 0, len(raw))
	for _, item := range raw {
		var q model.Question
		if err := json.Unmarshal([]byte(item), &q); err != nil {
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}
