package chathub

import (
	"context"
	"errors"
	"fmt"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const defaultMaxPairAttempts = 8

// MatcherService is the pairing engine. It is the only component that turns
// two waiting entries into a Conversation, and it is safe for concurrent use:
// all coordination happens inside the store's atomic operations.
type MatcherService struct {
	Pool          *WaitingPool
	Store         storage.Store
	Conversations *ConversationManager

	maxAttempts int
	now         func() time.Time
	newID       func() string
}

type MatcherOption func(*MatcherService)

// WithClock replaces time.Now for the engine and its conversation manager.
func WithClock(now func() time.Time) MatcherOption {
	return func(m *MatcherService) { m.now = now }
}

// WithIDGenerator replaces the conversation id generator.
func WithIDGenerator(newID func() string) MatcherOption {
	return func(m *MatcherService) { m.newID = newID }
}

// WithMaxPairAttempts bounds how many claimed candidates one join skips before
// leaving the actor queued for the sweep.
func WithMaxPairAttempts(n int) MatcherOption {
	return func(m *MatcherService) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

func NewMatcherService(s storage.Store, conversations *ConversationManager, opts ...MatcherOption) *MatcherService {
	m := &MatcherService{
		Pool:          NewWaitingPool(s),
		Store:         s,
		Conversations: conversations,
		maxAttempts:   defaultMaxPairAttempts,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	conversations.now = m.now
	return m
}

// Join queues the actor and immediately tries to pair it.
// It fails with models.ErrInvalidFilter, storage.ErrAlreadyQueued or
// storage.ErrAlreadyInConversation; losing a race to another joiner is never
// reported, the actor simply stays queued.
func (m *MatcherService) Join(ctx context.Context, req models.JoinRequest) (models.Status, error) {
	filter := req.Filter.Normalize()
	if err := filter.Validate(); err != nil {
		return models.Status{}, err
	}
	if err := req.Traits.Validate(); err != nil {
		return models.Status{}, err
	}

	now := m.now()
	entry, err := m.Pool.Enqueue(ctx, models.WaitingPoolEntry{
		ActorID:  req.ActorID,
		JoinedAt: now,
		Traits:   req.Traits,
		Filter:   filter,
	}, now)
	if err != nil {
		return models.Status{}, err
	}
	log.Debugf("Actor %s queued with seq %d", entry.ActorID, entry.Seq)

	conv, err := m.tryPair(ctx, entry)
	if err != nil {
		// The actor is queued; the sweep retries the pairing later.
		log.Warnf("Pairing attempt for %s failed: %v", entry.ActorID, err)
	}
	if conv != nil {
		return matchedStatus(*conv, entry.ActorID), nil
	}
	return m.Resync(ctx, entry.ActorID)
}

// tryPair scans candidates oldest first and commits the first pairing the
// store accepts. A nil conversation with a nil error means x stays queued or
// was already taken by someone else; either way the caller resyncs.
func (m *MatcherService) tryPair(ctx context.Context, x models.WaitingPoolEntry) (*models.Conversation, error) {
	attempts := 0
	for y, err := range m.Pool.Candidates(ctx, x) {
		if err != nil {
			return nil, fmt.Errorf("scan candidates for %s: %w", x.ActorID, err)
		}

		conv := models.Conversation{
			ID:        m.newID(),
			ActorA:    x.ActorID,
			ActorB:    y.ActorID,
			CreatedAt: m.now(),
			Status:    models.ConversationActive,
		}
		err := m.Store.Pair(ctx, conv)
		switch {
		case err == nil:
			m.Conversations.created(ctx, conv)
			return &conv, nil
		case errors.Is(err, storage.ErrCandidateUnavailable):
			attempts++
			if attempts >= m.maxAttempts {
				log.Debugf("Actor %s gave up after %d claimed candidates", x.ActorID, attempts)
				return nil, nil
			}
		case errors.Is(err, storage.ErrActorUnavailable):
			return nil, nil
		default:
			return nil, err
		}
	}
	return nil, nil
}

// Cancel removes a queued actor from the pool.
func (m *MatcherService) Cancel(ctx context.Context, actorID string) error {
	if err := m.Pool.Dequeue(ctx, actorID); err != nil {
		return err
	}
	log.Debugf("Actor %s cancelled search", actorID)
	return nil
}

// Leave ends the actor's conversation as an explicit leave. An empty
// conversationID means the actor's current conversation. Leaving a
// conversation that already ended succeeds.
func (m *MatcherService) Leave(ctx context.Context, actorID, conversationID string) (models.Conversation, error) {
	if conversationID == "" {
		conv, err := m.Store.ActiveConversation(ctx, actorID)
		if err != nil {
			return conv, err
		}
		conversationID = conv.ID
	}
	return m.Conversations.End(ctx, conversationID, models.EndExplicitLeave, actorID)
}

// Resync returns the authoritative state of the actor and refreshes its heartbeat.
func (m *MatcherService) Resync(ctx context.Context, actorID string) (models.Status, error) {
	if err := m.Store.Touch(ctx, actorID, m.now()); err != nil {
		log.Warnf("Failed to refresh heartbeat of %s: %v", actorID, err)
	}

	// Two reads are needed; a pairing that commits between them is picked up
	// by the second round.
	for range 2 {
		conv, err := m.Store.ActiveConversation(ctx, actorID)
		if err == nil {
			return matchedStatus(conv, actorID), nil
		}
		if !errors.Is(err, storage.ErrNoActiveConversation) {
			return models.Status{}, err
		}

		pos, err := m.Store.Position(ctx, actorID)
		if err == nil {
			return models.Status{State: models.StateQueued, Position: pos}, nil
		}
		if !errors.Is(err, storage.ErrNotQueued) {
			return models.Status{}, err
		}
	}
	return models.Status{State: models.StateIdle}, nil
}

// Heartbeat records that the actor is still present.
func (m *MatcherService) Heartbeat(ctx context.Context, actorID string) error {
	return m.Store.Touch(ctx, actorID, m.now())
}

func matchedStatus(conv models.Conversation, actorID string) models.Status {
	return models.Status{
		State:          models.StateMatched,
		ConversationID: conv.ID,
		PartnerID:      conv.PartnerOf(actorID),
	}
}
