package storage

import (
	"context"
	"errors"
	"strangerchat/backend/internal/models"
	"time"
)

var (
	ErrAlreadyQueued         = errors.New("actor is already queued")
	ErrAlreadyInConversation = errors.New("actor is already in a conversation")
	ErrNotQueued             = errors.New("actor is not queued")
	ErrActorActive           = errors.New("actor was active after the idle cutoff")
	ErrActorUnavailable      = errors.New("actor is no longer waiting")
	ErrCandidateUnavailable  = errors.New("candidate was claimed concurrently")
	ErrSelfPairing           = errors.New("an actor cannot be paired with itself")
	ErrConversationNotFound  = errors.New("conversation not found")
	ErrNoActiveConversation  = errors.New("actor has no active conversation")
	ErrNotParticipant        = errors.New("actor is not a participant of the conversation")
	ErrAlreadyEnded          = errors.New("conversation already ended")
)

// Store is the single authoritative home of the waiting pool and the
// conversation table. Every method that can affect the exclusivity invariant
// (Enqueue, Dequeue, Evict, Pair, End) is one atomic operation against the
// backing store; callers never compose them from separate reads and writes.
type Store interface {
	// Enqueue inserts the entry if the actor has neither an entry nor an active
	// conversation. It assigns entry.Seq and records a heartbeat at now.
	Enqueue(ctx context.Context, entry models.WaitingPoolEntry, now time.Time) (models.WaitingPoolEntry, error)
	// Dequeue removes the actor's entry. It returns ErrAlreadyInConversation
	// when a pairing committed first, ErrNotQueued otherwise.
	Dequeue(ctx context.Context, actorID string) error
	// Evict is Dequeue conditioned on the last heartbeat being older than idleBefore.
	Evict(ctx context.Context, actorID string, idleBefore time.Time) error
	Entry(ctx context.Context, actorID string) (models.WaitingPoolEntry, error)
	// EntriesAfter returns up to limit entries with Seq > afterSeq, oldest first.
	EntriesAfter(ctx context.Context, afterSeq int64, limit int) ([]models.WaitingPoolEntry, error)
	// Position is the 1-based rank of the actor in the pool.
	Position(ctx context.Context, actorID string) (int, error)
	PoolSize(ctx context.Context) (int, error)

	// Pair removes conv.ActorA and conv.ActorB from the pool and creates conv
	// in one step. ErrActorUnavailable refers to ActorA, ErrCandidateUnavailable to ActorB.
	Pair(ctx context.Context, conv models.Conversation) error
	// End marks the conversation ended and frees both actors. A non-empty
	// initiator must be a participant. Ending twice returns ErrAlreadyEnded
	// together with the stored conversation.
	End(ctx context.Context, conversationID string, reason models.EndReason, initiator string, at time.Time) (models.Conversation, error)
	Conversation(ctx context.Context, conversationID string) (models.Conversation, error)
	ActiveConversation(ctx context.Context, actorID string) (models.Conversation, error)

	// Touch refreshes the heartbeat of an actor that is queued or matched; it is a no-op otherwise.
	Touch(ctx context.Context, actorID string, at time.Time) error
	// IdleSince lists actors currently in state (queued or matched) whose last
	// heartbeat is older than before, oldest first.
	IdleSince(ctx context.Context, state models.ActorState, before time.Time, limit int) ([]string, error)
}
