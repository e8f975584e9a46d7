package models

import "time"

// ActorState is the authoritative matchmaking state of an actor.
type ActorState string

const (
	StateIdle    ActorState = "idle"
	StateQueued  ActorState = "queued"
	StateMatched ActorState = "matched"
)

// Status is what join and resync return to a client.
type Status struct {
	State          ActorState `json:"state"`
	ConversationID string     `json:"conversation_id,omitempty"`
	PartnerID      string     `json:"partner_id,omitempty"`
	// Position is the 1-based place in the waiting pool, only set while queued.
	Position int `json:"position,omitempty"`
}

// EventType names a push notification on an actor's event stream.
type EventType string

const (
	EventMatched           EventType = "matched"
	EventPartnerLeft       EventType = "partner_left"
	EventConversationEnded EventType = "conversation_ended"
	EventQueuePosition     EventType = "queue_position_changed"
	EventQueueExpired      EventType = "queue_expired"
)

// Event is delivered to every connected client of ActorID.
// Events are hints; the authoritative state is always available through resync.
type Event struct {
	Type           EventType `json:"type"`
	ActorID        string    `json:"actor_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	PartnerID      string    `json:"partner_id,omitempty"`
	Position       int       `json:"position,omitempty"`
	Reason         EndReason `json:"reason,omitempty"`
	At             time.Time `json:"at"`
}

// JoinRequest is the input of the pairing engine's join operation.
type JoinRequest struct {
	ActorID string
	Traits  Traits
	Filter  Filter
}
