package models

import "time"

// WaitingPoolEntry is one actor's intent to be matched.
type WaitingPoolEntry struct {
	// ActorID is unique within the pool.
	ActorID string `json:"actor_id"`
	// Seq is the arrival sequence assigned by the store; pool order is Seq ascending.
	Seq int64 `json:"seq"`
	// JoinedAt is informational; ties in wall-clock time are broken by Seq.
	JoinedAt time.Time `json:"joined_at"`
	// Traits are the actor's own attributes.
	Traits Traits `json:"traits"`
	// Filter describes acceptable partners.
	Filter Filter `json:"filter"`
}

// ConversationStatus is the lifecycle state of a Conversation.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationEnded  ConversationStatus = "ended"
)

// EndReason records why a Conversation was ended.
type EndReason string

const (
	EndExplicitLeave     EndReason = "explicit_leave"
	EndDisconnectTimeout EndReason = "disconnect_timeout"
	EndPartnerLeft       EndReason = "partner_left"
)

func (r EndReason) Valid() bool {
	switch r {
	case EndExplicitLeave, EndDisconnectTimeout, EndPartnerLeft:
		return true
	}
	return false
}

// Conversation represents an exclusive 1-on-1 session between two actors.
// Once Ended it is immutable history.
type Conversation struct {
	ID        string             `json:"conversation_id"`
	ActorA    string             `json:"actor_a"`
	ActorB    string             `json:"actor_b"`
	CreatedAt time.Time          `json:"created_at"`
	Status    ConversationStatus `json:"status"`
	EndReason EndReason          `json:"end_reason,omitempty"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
}

// Has reports whether actorID is one of the two participants.
func (c Conversation) Has(actorID string) bool {
	return actorID != "" && (c.ActorA == actorID || c.ActorB == actorID)
}

// PartnerOf returns the other participant, or "" if actorID is not in the conversation.
func (c Conversation) PartnerOf(actorID string) string {
	switch actorID {
	case c.ActorA:
		return c.ActorB
	case c.ActorB:
		return c.ActorA
	}
	return ""
}

func (c Conversation) IsActive() bool {
	return c.Status == ConversationActive
}

// ConversationRecord is the archived copy of a Conversation in PostgreSQL.
// Message content lives with the messaging collaborator, keyed by ConversationID.
type ConversationRecord struct {
	ConversationID string `gorm:"primaryKey"`
	ActorA         string `gorm:"not null;index"`
	ActorB         string `gorm:"not null;index"`
	Status         string `gorm:"not null"`
	EndReason      string
	CreatedAt      time.Time
	EndedAt        *time.Time
}

// ToRecord converts a live Conversation into its archive row.
func (c Conversation) ToRecord() ConversationRecord {
	rec := ConversationRecord{
		ConversationID: c.ID,
		ActorA:         c.ActorA,
		ActorB:         c.ActorB,
		Status:         string(c.Status),
		EndReason:      string(c.EndReason),
		CreatedAt:      c.CreatedAt,
	}
	if !c.EndedAt.IsZero() {
		endedAt := c.EndedAt
		rec.EndedAt = &endedAt
	}
	return rec
}

// Conversation converts an archive row back into the domain type.
func (r ConversationRecord) Conversation() Conversation {
	c := Conversation{
		ID:        r.ConversationID,
		ActorA:    r.ActorA,
		ActorB:    r.ActorB,
		CreatedAt: r.CreatedAt,
		Status:    ConversationStatus(r.Status),
		EndReason: EndReason(r.EndReason),
	}
	if r.EndedAt != nil {
		c.EndedAt = *r.EndedAt
	}
	return c
}
