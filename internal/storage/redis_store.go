package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strangerchat/backend/internal/models"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	poolKey        = "{mm}:pool"         // Sorted Set: actorID scored by arrival seq
	entriesKey     = "{mm}:entries"      // Hash: actorID -> WaitingPoolEntry JSON
	activeKey      = "{mm}:active"       // Hash: actorID -> active conversation id
	queuedSeenKey  = "{mm}:seen:queued"  // Sorted Set: queued actorID scored by last heartbeat (ms)
	matchedSeenKey = "{mm}:seen:matched" // Sorted Set: matched actorID scored by last heartbeat (ms)
	seqKey         = "{mm}:seq"          // String: arrival counter
	convKeyPrefix  = "{mm}:conv:"        // Hash per conversation
)

func seenKey(state models.ActorState) (string, error) {
	switch state {
	case models.StateQueued:
		return queuedSeenKey, nil
	case models.StateMatched:
		return matchedSeenKey, nil
	default:
		return "", fmt.Errorf("no heartbeats are kept for state %q", state)
	}
}

func convKey(id string) string {
	return convKeyPrefix + id
}

// RedisStore is the production Store. Redis holds the live pool and every
// conversation that is active or recently ended; ended conversations expire
// after endedRetention and are then only available from the archive.
type RedisStore struct {
	Redis          redis.UniversalClient
	endedRetention time.Duration
}

func NewRedisStore(rdb redis.UniversalClient, endedRetention time.Duration) *RedisStore {
	return &RedisStore{Redis: rdb, endedRetention: endedRetention}
}

func (s *RedisStore) Enqueue(ctx context.Context, entry models.WaitingPoolEntry, now time.Time) (models.WaitingPoolEntry, error) {
	entry.Seq = 0
	payload, err := json.Marshal(entry)
	if err != nil {
		return entry, err
	}

	res, err := enqueueScript.Run(ctx, s.Redis,
		[]string{poolKey, entriesKey, activeKey, queuedSeenKey, seqKey},
		entry.ActorID, string(payload), now.UnixMilli(),
	).Slice()
	if err != nil {
		return entry, fmt.Errorf("enqueue %s: %w", entry.ActorID, err)
	}

	switch code, _ := res[0].(string); code {
	case "ok":
		seq, _ := res[1].(int64)
		entry.Seq = seq
		return entry, nil
	case "queued":
		return entry, ErrAlreadyQueued
	case "in_conversation":
		return entry, ErrAlreadyInConversation
	default:
		return entry, fmt.Errorf("enqueue %s: unexpected script result %v", entry.ActorID, res)
	}
}

func (s *RedisStore) Dequeue(ctx context.Context, actorID string) error {
	return s.dequeue(ctx, actorID, "")
}

func (s *RedisStore) Evict(ctx context.Context, actorID string, idleBefore time.Time) error {
	return s.dequeue(ctx, actorID, strconv.FormatInt(idleBefore.UnixMilli(), 10))
}

func (s *RedisStore) dequeue(ctx context.Context, actorID, idleBefore string) error {
	code, err := dequeueScript.Run(ctx, s.Redis,
		[]string{poolKey, entriesKey, activeKey, queuedSeenKey},
		actorID, idleBefore,
	).Text()
	if err != nil {
		return fmt.Errorf("dequeue %s: %w", actorID, err)
	}

	switch code {
	case "ok":
		return nil
	case "not_queued":
		return ErrNotQueued
	case "in_conversation":
		return ErrAlreadyInConversation
	case "active":
		return ErrActorActive
	default:
		return fmt.Errorf("dequeue %s: unexpected script result %q", actorID, code)
	}
}

func (s *RedisStore) Entry(ctx context.Context, actorID string) (models.WaitingPoolEntry, error) {
	var entry models.WaitingPoolEntry

	pipe := s.Redis.Pipeline()
	scoreCmd := pipe.ZScore(ctx, poolKey, actorID)
	dataCmd := pipe.HGet(ctx, entriesKey, actorID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return entry, fmt.Errorf("read entry %s: %w", actorID, err)
	}

	score, err := scoreCmd.Result()
	if errors.Is(err, redis.Nil) {
		return entry, ErrNotQueued
	}
	data, dataErr := dataCmd.Result()
	if errors.Is(dataErr, redis.Nil) {
		return entry, ErrNotQueued
	}
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return entry, fmt.Errorf("decode entry %s: %w", actorID, err)
	}
	entry.Seq = int64(score)
	return entry, nil
}

func (s *RedisStore) EntriesAfter(ctx context.Context, afterSeq int64, limit int) ([]models.WaitingPoolEntry, error) {
	members, err := s.Redis.ZRangeByScoreWithScores(ctx, poolKey, &redis.ZRangeBy{
		Min:   "(" + strconv.FormatInt(afterSeq, 10),
		Max:   "+inf",
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan pool: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i], _ = m.Member.(string)
	}
	values, err := s.Redis.HMGet(ctx, entriesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("read pool entries: %w", err)
	}

	entries := make([]models.WaitingPoolEntry, 0, len(members))
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			// Removed between the two reads.
			continue
		}
		var entry models.WaitingPoolEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			// An undecodable entry can never be paired; drop it so it does not
			// hold a place in the queue forever.
			log.Errorf("ERROR: dropping undecodable pool entry %s: %v", ids[i], err)
			if err := s.Dequeue(ctx, ids[i]); err != nil && !errors.Is(err, ErrNotQueued) {
				log.Warnf("Could not drop pool entry %s: %v", ids[i], err)
			}
			continue
		}
		entry.Seq = int64(members[i].Score)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s *RedisStore) Position(ctx context.Context, actorID string) (int, error) {
	rank, err := s.Redis.ZRank(ctx, poolKey, actorID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrNotQueued
	}
	if err != nil {
		return 0, fmt.Errorf("rank %s: %w", actorID, err)
	}
	return int(rank) + 1, nil
}

func (s *RedisStore) PoolSize(ctx context.Context) (int, error) {
	n, err := s.Redis.ZCard(ctx, poolKey).Result()
	if err != nil {
		return 0, fmt.Errorf("pool size: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) Pair(ctx context.Context, conv models.Conversation) error {
	code, err := pairScript.Run(ctx, s.Redis,
		[]string{poolKey, entriesKey, activeKey, queuedSeenKey, matchedSeenKey, convKey(conv.ID)},
		conv.ActorA, conv.ActorB, conv.ID, conv.CreatedAt.UnixMilli(),
	).Text()
	if err != nil {
		return fmt.Errorf("pair %s with %s: %w", conv.ActorA, conv.ActorB, err)
	}

	switch code {
	case "ok":
		return nil
	case "self":
		return ErrSelfPairing
	case "actor_gone":
		return ErrActorUnavailable
	case "candidate_gone":
		return ErrCandidateUnavailable
	default:
		return fmt.Errorf("pair %s with %s: unexpected script result %q", conv.ActorA, conv.ActorB, code)
	}
}

func (s *RedisStore) End(ctx context.Context, conversationID string, reason models.EndReason, initiator string, at time.Time) (models.Conversation, error) {
	code, err := endScript.Run(ctx, s.Redis,
		[]string{convKey(conversationID), activeKey, matchedSeenKey},
		conversationID, string(reason), at.UnixMilli(), initiator, int64(s.endedRetention/time.Second),
	).Text()
	if err != nil {
		return models.Conversation{}, fmt.Errorf("end %s: %w", conversationID, err)
	}

	switch code {
	case "ok":
		return s.Conversation(ctx, conversationID)
	case "not_found":
		return models.Conversation{}, ErrConversationNotFound
	case "not_participant":
		return models.Conversation{}, ErrNotParticipant
	case "already_ended":
		conv, err := s.Conversation(ctx, conversationID)
		if err != nil {
			return conv, err
		}
		return conv, ErrAlreadyEnded
	default:
		return models.Conversation{}, fmt.Errorf("end %s: unexpected script result %q", conversationID, code)
	}
}

func (s *RedisStore) Conversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	fields, err := s.Redis.HGetAll(ctx, convKey(conversationID)).Result()
	if err != nil {
		return models.Conversation{}, fmt.Errorf("read conversation %s: %w", conversationID, err)
	}
	if len(fields) == 0 {
		return models.Conversation{}, ErrConversationNotFound
	}
	return decodeConversation(fields), nil
}

func (s *RedisStore) ActiveConversation(ctx context.Context, actorID string) (models.Conversation, error) {
	id, err := s.Redis.HGet(ctx, activeKey, actorID).Result()
	if errors.Is(err, redis.Nil) {
		return models.Conversation{}, ErrNoActiveConversation
	}
	if err != nil {
		return models.Conversation{}, fmt.Errorf("read active conversation of %s: %w", actorID, err)
	}
	conv, err := s.Conversation(ctx, id)
	if errors.Is(err, ErrConversationNotFound) {
		return conv, ErrNoActiveConversation
	}
	return conv, err
}

// Touch updates whichever heartbeat set holds the actor. XX never adds a
// member, so a touch racing a state change cannot resurrect a stale entry.
func (s *RedisStore) Touch(ctx context.Context, actorID string, at time.Time) error {
	z := redis.Z{Score: float64(at.UnixMilli()), Member: actorID}
	pipe := s.Redis.Pipeline()
	pipe.ZAddXX(ctx, queuedSeenKey, z)
	pipe.ZAddXX(ctx, matchedSeenKey, z)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch %s: %w", actorID, err)
	}
	return nil
}

func (s *RedisStore) IdleSince(ctx context.Context, state models.ActorState, before time.Time, limit int) ([]string, error) {
	key, err := seenKey(state)
	if err != nil {
		return nil, err
	}
	ids, err := s.Redis.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   "(" + strconv.FormatInt(before.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("scan heartbeats: %w", err)
	}
	return ids, nil
}

func decodeConversation(fields map[string]string) models.Conversation {
	conv := models.Conversation{
		ID:        fields["id"],
		ActorA:    fields["actor_a"],
		ActorB:    fields["actor_b"],
		Status:    models.ConversationStatus(fields["status"]),
		EndReason: models.EndReason(fields["end_reason"]),
	}
	if ms, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		conv.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms, err := strconv.ParseInt(fields["ended_at"], 10, 64); err == nil {
		conv.EndedAt = time.UnixMilli(ms).UTC()
	}
	return conv
}
