package storage

import (
	"context"
	"slices"
	"strangerchat/backend/internal/models"
	"sync"
	"time"
)

// MemoryStore is a single-process Store guarded by one mutex. It is used by
// tests and by single-node deployments that run without Redis.
type MemoryStore struct {
	mu     sync.Mutex
	seq    int64
	queue  []string // actor ids ordered by Seq
	pool   map[string]models.WaitingPoolEntry
	active map[string]string // actorID -> conversationID
	convs  map[string]models.Conversation
	seen   map[string]time.Time

	endedRetention time.Duration
	ended          []endedConversation // ordered by end time
}

type endedConversation struct {
	id string
	at time.Time
}

type MemoryOption func(*MemoryStore)

// WithEndedRetention drops ended conversations once they are older than d,
// the way RedisStore expires them. Zero keeps them for the life of the process.
func WithEndedRetention(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.endedRetention = d
	}
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		pool:   make(map[string]models.WaitingPoolEntry),
		active: make(map[string]string),
		convs:  make(map[string]models.Conversation),
		seen:   make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Enqueue(_ context.Context, entry models.WaitingPoolEntry, now time.Time) (models.WaitingPoolEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.active[entry.ActorID]; ok {
		return entry, ErrAlreadyInConversation
	}
	if _, ok := s.pool[entry.ActorID]; ok {
		return entry, ErrAlreadyQueued
	}

	s.seq++
	entry.Seq = s.seq
	s.pool[entry.ActorID] = entry
	s.queue = append(s.queue, entry.ActorID)
	s.seen[entry.ActorID] = now
	return entry, nil
}

func (s *MemoryStore) Dequeue(_ context.Context, actorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(actorID, time.Time{})
}

func (s *MemoryStore) Evict(_ context.Context, actorID string, idleBefore time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(actorID, idleBefore)
}

func (s *MemoryStore) removeLocked(actorID string, idleBefore time.Time) error {
	if _, ok := s.pool[actorID]; !ok {
		if _, matched := s.active[actorID]; matched {
			return ErrAlreadyInConversation
		}
		return ErrNotQueued
	}
	if !idleBefore.IsZero() {
		if seen, ok := s.seen[actorID]; ok && !seen.Before(idleBefore) {
			return ErrActorActive
		}
	}

	delete(s.pool, actorID)
	delete(s.seen, actorID)
	s.queue = slices.DeleteFunc(s.queue, func(id string) bool { return id == actorID })
	return nil
}

func (s *MemoryStore) Entry(_ context.Context, actorID string) (models.WaitingPoolEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.pool[actorID]
	if !ok {
		return entry, ErrNotQueued
	}
	return entry, nil
}

func (s *MemoryStore) EntriesAfter(_ context.Context, afterSeq int64, limit int) ([]models.WaitingPoolEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.WaitingPoolEntry
	for _, id := range s.queue {
		entry := s.pool[id]
		if entry.Seq <= afterSeq {
			continue
		}
		out = append(out, entry)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Position(_ context.Context, actorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := slices.Index(s.queue, actorID); i >= 0 {
		return i + 1, nil
	}
	return 0, ErrNotQueued
}

func (s *MemoryStore) PoolSize(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue), nil
}

func (s *MemoryStore) Pair(_ context.Context, conv models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if conv.ActorA == conv.ActorB {
		return ErrSelfPairing
	}
	if _, ok := s.pool[conv.ActorA]; !ok {
		return ErrActorUnavailable
	}
	if _, ok := s.active[conv.ActorA]; ok {
		return ErrActorUnavailable
	}
	if _, ok := s.pool[conv.ActorB]; !ok {
		return ErrCandidateUnavailable
	}
	if _, ok := s.active[conv.ActorB]; ok {
		return ErrCandidateUnavailable
	}

	for _, id := range []string{conv.ActorA, conv.ActorB} {
		delete(s.pool, id)
		s.active[id] = conv.ID
		s.seen[id] = conv.CreatedAt
	}
	s.queue = slices.DeleteFunc(s.queue, func(id string) bool {
		return id == conv.ActorA || id == conv.ActorB
	})

	conv.Status = models.ConversationActive
	conv.EndReason = ""
	conv.EndedAt = time.Time{}
	s.convs[conv.ID] = conv
	return nil
}

func (s *MemoryStore) End(_ context.Context, conversationID string, reason models.EndReason, initiator string, at time.Time) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return conv, ErrConversationNotFound
	}
	if initiator != "" && !conv.Has(initiator) {
		return models.Conversation{}, ErrNotParticipant
	}
	if !conv.IsActive() {
		return conv, ErrAlreadyEnded
	}

	conv.Status = models.ConversationEnded
	conv.EndReason = reason
	conv.EndedAt = at
	s.convs[conversationID] = conv

	for _, id := range []string{conv.ActorA, conv.ActorB} {
		if s.active[id] == conversationID {
			delete(s.active, id)
		}
		delete(s.seen, id)
	}
	if s.endedRetention > 0 {
		s.ended = append(s.ended, endedConversation{id: conversationID, at: at})
		s.pruneLocked(at)
	}
	return conv, nil
}

// pruneLocked forgets conversations that ended more than endedRetention before now.
func (s *MemoryStore) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.endedRetention)
	n := 0
	for n < len(s.ended) && !s.ended[n].at.After(cutoff) {
		delete(s.convs, s.ended[n].id)
		n++
	}
	s.ended = s.ended[n:]
}

func (s *MemoryStore) Conversation(_ context.Context, conversationID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.convs[conversationID]
	if !ok {
		return conv, ErrConversationNotFound
	}
	return conv, nil
}

func (s *MemoryStore) ActiveConversation(_ context.Context, actorID string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[actorID]
	if !ok {
		return models.Conversation{}, ErrNoActiveConversation
	}
	return s.convs[id], nil
}

func (s *MemoryStore) Touch(_ context.Context, actorID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[actorID]; ok {
		s.seen[actorID] = at
	}
	return nil
}

func (s *MemoryStore) IdleSince(_ context.Context, state models.ActorState, before time.Time, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type idle struct {
		id   string
		seen time.Time
	}
	var found []idle
	for id, seen := range s.seen {
		if !seen.Before(before) || s.stateLocked(id) != state {
			continue
		}
		found = append(found, idle{id, seen})
	}
	slices.SortFunc(found, func(a, b idle) int { return a.seen.Compare(b.seen) })

	ids := make([]string, 0, min(len(found), limit))
	for _, f := range found {
		if len(ids) == limit {
			break
		}
		ids = append(ids, f.id)
	}
	return ids, nil
}

func (s *MemoryStore) stateLocked(actorID string) models.ActorState {
	if _, ok := s.active[actorID]; ok {
		return models.StateMatched
	}
	if _, ok := s.pool[actorID]; ok {
		return models.StateQueued
	}
	return models.StateIdle
}
