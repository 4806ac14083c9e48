package redis

import (
	"fmt"

	"github.com/quizbattle/quizbattle-go/internal/model"
)

// Key prefix for all quiz battle data
const keyPrefix = "qb"

// sessionKey returns the Redis key for a Session
func sessionKey(token string) string {
	return fmt.Sprintf("%s:session:%s", keyPrefix, token)
}

// connectionKey returns the Redis key for a user's connection counter
func connectionKey(userID model.UserID) string {
	return fmt.Sprintf("%s:conn:%s", keyPrefix, userID)
}

// roomKey returns the Redis key for a Room's JSON record
func roomKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s", keyPrefix, id)
}

// roomMetaKey returns the Redis key for the hash the atomic scripts read
// (capacity, visibility, status)
func roomMetaKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:meta", keyPrefix, id)
}

// roomMembersKey returns the Redis key for a room's member set
func roomMembersKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:members", keyPrefix, id)
}

// roomPlayerStatusKey returns the Redis key for the user -> status hash
func roomPlayerStatusKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:pstatus", keyPrefix, id)
}

// roomOwnerKey returns the Redis key for a room's coordinator lease
func roomOwnerKey(id model.RoomID) string {
	return fmt.Sprintf("%s:room:%s:owner", keyPrefix, id)
}

// userRoomKey returns the Redis key for the user -> room index
func userRoomKey(userID model.UserID) string {
	return fmt.Sprintf("%s:user_room:%s", keyPrefix, userID)
}

// publicRoomsKey returns the Redis key for the public-room zset,
// scored by member count
func publicRoomsKey() string {
	return fmt.Sprintf("%s:public_rooms", keyPrefix)
}

// inviteCodeKey returns the Redis key for the invite code -> room index
func inviteCodeKey(code string) string {
	return fmt.Sprintf("%s:invite:%s", keyPrefix, code)
}

// gamePhaseKey returns the Redis key for a room's game phase
func gamePhaseKey(id model.RoomID) string {
	return fmt.Sprintf("%s:game:%s:phase", keyPrefix, id)
}

// gameRoundKey returns the Redis key for a room's round counter
func gameRoundKey(id model.RoomID) string {
	return fmt.Sprintf("%s:game:%s:round", keyPrefix, id)
}

// gameQuestionKey returns the Redis key for the current question hash
func gameQuestionKey(id model.RoomID) string {
	return fmt.Sprintf("%s:game:%s:question", keyPrefix, id)
}

// gameAnswersKey returns the Redis key for the user -> time-taken hash
func gameAnswersKey(id model.RoomID) string {
	return fmt.Sprintf("%s:game:%s:answers", keyPrefix, id)
}

// gameScoresKey returns the Redis key for the score zset
func gameScoresKey(id model.RoomID) string {
	return fmt.Sprintf("%s:game:%s:scores", keyPrefix, id)
}

// taskQueueKey returns the Redis key for the persistence task queue
func taskQueueKey() string {
	return fmt.Sprintf("%s:queue:tasks", keyPrefix)
}

// deadLetterKey returns the Redis key for the dead-letter queue
func deadLetterKey() string {
	return fmt.Sprintf("%s:queue:dead", keyPrefix)
}

// questionsKey returns the Redis key for the question set at a difficulty
func questionsKey(level model.Difficulty) string {
	return fmt.Sprintf("%s:questions:%d", keyPrefix, level)
}
