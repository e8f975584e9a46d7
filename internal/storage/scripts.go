package storage

import "github.com/redis/go-redis/v9"

// Lua scripts run atomically inside Redis, which makes each of them a single
// linearizable step with respect to every other script touching the same keys.
// All keys share the {mm} hash tag so the scripts also work on a cluster.
//
// Result codes are plain strings mapped to sentinel errors in redis_store.go.

// enqueueScript
// KEYS: pool, entries, active, seen_queued, seq
// ARGV: actorID, entryJSON (without seq), now_ms
// Returns: {"ok", seq} | {"in_conversation"} | {"queued"}
var enqueueScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[3], ARGV[1]) == 1 then
    return {'in_conversation'}
end
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
    return {'queued'}
end
local seq = redis.call('INCR', KEYS[5])
redis.call('ZADD', KEYS[1], seq, ARGV[1])
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
return {'ok', seq}
`)

// dequeueScript
// KEYS: pool, entries, active, seen_queued
// ARGV: actorID, idle_before_ms ("" for an unconditional cancel)
// Returns: "ok" | "not_queued" | "in_conversation" | "active"
var dequeueScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
    if redis.call('HEXISTS', KEYS[3], ARGV[1]) == 1 then
        return 'in_conversation'
    end
    return 'not_queued'
end
if ARGV[2] ~= '' then
    local seen = redis.call('ZSCORE', KEYS[4], ARGV[1])
    if seen and tonumber(seen) >= tonumber(ARGV[2]) then
        return 'active'
    end
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
return 'ok'
`)

// pairScript
// KEYS: pool, entries, active, seen_queued, seen_matched, conv
// ARGV: actorA, actorB, conversationID, created_ms
// Returns: "ok" | "self" | "actor_gone" | "candidate_gone"
var pairScript = redis.NewScript(`
if ARGV[1] == ARGV[2] then
    return 'self'
end
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) or redis.call('HEXISTS', KEYS[3], ARGV[1]) == 1 then
    return 'actor_gone'
end
if not redis.call('ZSCORE', KEYS[1], ARGV[2]) or redis.call('HEXISTS', KEYS[3], ARGV[2]) == 1 then
    return 'candidate_gone'
end
redis.call('ZREM', KEYS[1], ARGV[1], ARGV[2])
redis.call('HDEL', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[3], ARGV[1], ARGV[3], ARGV[2], ARGV[3])
redis.call('HSET', KEYS[6], 'id', ARGV[3], 'actor_a', ARGV[1], 'actor_b', ARGV[2], 'created_at', ARGV[4], 'status', 'active')
redis.call('ZREM', KEYS[4], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[5], ARGV[4], ARGV[1], ARGV[4], ARGV[2])
return 'ok'
`)

// endScript
// KEYS: conv, active, seen_matched
// ARGV: conversationID, reason, ended_ms, initiator ("" for none), retention_seconds
// Returns: "ok" | "not_found" | "not_participant" | "already_ended"
var endScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
    return 'not_found'
end
local fields = redis.call('HMGET', KEYS[1], 'actor_a', 'actor_b', 'status')
local a, b, status = fields[1], fields[2], fields[3]
if ARGV[4] ~= '' and ARGV[4] ~= a and ARGV[4] ~= b then
    return 'not_participant'
end
if status == 'ended' then
    return 'already_ended'
end
redis.call('HSET', KEYS[1], 'status', 'ended', 'end_reason', ARGV[2], 'ended_at', ARGV[3])
if redis.call('HGET', KEYS[2], a) == ARGV[1] then
    redis.call('HDEL', KEYS[2], a)
    redis.call('ZREM', KEYS[3], a)
end
if redis.call('HGET', KEYS[2], b) == ARGV[1] then
    redis.call('HDEL', KEYS[2], b)
    redis.call('ZREM', KEYS[3], b)
end
if tonumber(ARGV[5]) > 0 then
    redis.call('EXPIRE', KEYS[1], ARGV[5])
end
return 'ok'
`)
