package redis

import "github.com/redis/go-redis/v9"

// Atomic check-then-write sequences run as server-side scripts. Doing
// the checks from application code would race across server processes.

// joinRoomScript atomically joins a user to a room.
//
// KEYS: members set, meta hash, player status hash, user->room index, public zset
// ARGV: room id, user id, membership TTL seconds
//
// Returns the new member count, or a negative sentinel:
//
//	-1 room full
//	-2 room not found
//	-3 user already in a room
var joinRoomScript = redis.NewScript(`
local capacity = tonumber(redis.call('HGET', KEYS[2], 'capacity'))
if not capacity then
  return -2
end
if redis.call('EXISTS', KEYS[4]) == 1 then
  return -3
end
local count = redis.call('SCARD', KEYS[1])
if count >= capacity then
  return -1
end
redis.call('SADD', KEYS[1], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[2], 'WAITING')
redis.call('SET', KEYS[4], ARGV[1], 'EX', ARGV[3])
if redis.call('HGET', KEYS[2], 'visibility') == 'PUBLIC' then
  redis.call('ZINCRBY', KEYS[5], 1, ARGV[1])
end
return count + 1
`)

// leaveRoomScript atomically removes a user from a room and updates
// public-room accounting. An emptied public room is deindexed and its
// keys are left to expire after the grace period instead of being
// deleted outright.
//
// KEYS: members set, meta hash, player status hash, user->room index, public zset
// ARGV: room id, user id, grace seconds
//
// Returns the remaining member count.
var leaveRoomScript = redis.NewScript(`
local removed = redis.call('SREM', KEYS[1], ARGV[2])
redis.call('HDEL', KEYS[3], ARGV[2])
if redis.call('GET', KEYS[4]) == ARGV[1] then
  redis.call('DEL', KEYS[4])
end
local count = redis.call('SCARD', KEYS[1])
if removed == 1 and redis.call('HGET', KEYS[2], 'visibility') == 'PUBLIC' then
  if count == 0 then
    redis.call('ZREM', KEYS[5], ARGV[1])
    redis.call('EXPIRE', KEYS[1], ARGV[3])
    redis.call('EXPIRE', KEYS[2], ARGV[3])
    redis.call('EXPIRE', KEYS[3], ARGV[3])
  else
    redis.call('ZINCRBY', KEYS[5], -1, ARGV[1])
  end
end
return count
`)

// trackConnectionScript increments the per-user connection counter
// unless it is already at the maximum.
//
// KEYS: connection counter
// ARGV: max connections, TTL seconds
//
// Returns 1 on success, 0 when the user is at the limit.
var trackConnectionScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
  return 0
end
redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// releaseConnectionScript decrements the connection counter, deleting
// the key at zero. Releasing an absent counter is a no-op.
//
// KEYS: connection counter
var releaseConnectionScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 1 then
  redis.call('DEL', KEYS[1])
else
  redis.call('DECR', KEYS[1])
end
return 1
`)

// refreshOwnerScript extends the room ownership lease only if the
// caller still holds it.
//
// KEYS: owner lease
// ARGV: instance id, TTL seconds
var refreshOwnerScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('EXPIRE', KEYS[1], ARGV[2])
  return 1
end
return 0
`)

// releaseOwnerScript deletes the lease only if the caller holds it
//
// KEYS: owner lease
// ARGV: instance id
var releaseOwnerScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  return 1
end
return 0
`)
