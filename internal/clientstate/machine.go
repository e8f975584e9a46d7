// Package clientstate is the client side of matchmaking: a state machine kept
// consistent with the server by applying pushed events and resync answers.
package clientstate

import (
	"errors"
	"strangerchat/backend/internal/models"
	"sync"
)

type State string

const (
	Idle    State = "idle"
	Queued  State = "queued"
	Matched State = "matched"
	Leaving State = "leaving"
)

var (
	// ErrResyncRequired is returned by Join while a conversation is known locally.
	ErrResyncRequired = errors.New("local state knows a conversation; resync before joining")
	ErrNotMatched     = errors.New("not in a conversation")
)

// Snapshot is a copy of the machine's state.
type Snapshot struct {
	State          State
	ConversationID string
	PartnerID      string
	Position       int
}

// Machine holds one actor's view. It is safe for concurrent use; OnMatched is
// called without the lock held.
type Machine struct {
	mu   sync.Mutex
	snap Snapshot

	// OnMatched runs on every transition into Matched, including one recovered
	// through resync, and never for a duplicate event of the current
	// conversation. Consumers rebuild their conversation view from scratch in it.
	OnMatched func(conversationID, partnerID string)
}

func NewMachine(onMatched func(conversationID, partnerID string)) *Machine {
	return &Machine{snap: Snapshot{State: Idle}, OnMatched: onMatched}
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// CanJoin reports whether a join request may be sent.
func (m *Machine) CanJoin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.ConversationID != "" {
		return ErrResyncRequired
	}
	return nil
}

// BeginLeave moves Matched to Leaving and returns the conversation to leave.
func (m *Machine) BeginLeave() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.State != Matched {
		return "", ErrNotMatched
	}
	m.snap.State = Leaving
	return m.snap.ConversationID, nil
}

// Left completes a self-leave of conversationID.
func (m *Machine) Left(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.ConversationID == conversationID {
		m.snap = Snapshot{State: Idle}
	}
}

// Cancelled completes a cancel.
func (m *Machine) Cancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap.State == Queued {
		m.snap = Snapshot{State: Idle}
	}
}

// Reconcile replaces local state with the server's answer.
func (m *Machine) Reconcile(status models.Status) {
	m.update(func(Snapshot) (Snapshot, bool) {
		return fromStatus(status), true
	})
}

// ReconcileFrom applies status only if the state is still sent, the snapshot
// taken when the request went out. It reports whether status was applied.
func (m *Machine) ReconcileFrom(sent Snapshot, status models.Status) bool {
	applied := false
	m.update(func(cur Snapshot) (Snapshot, bool) {
		if cur != sent {
			return cur, false
		}
		applied = true
		return fromStatus(status), true
	})
	return applied
}

func fromStatus(status models.Status) Snapshot {
	switch status.State {
	case models.StateMatched:
		return Snapshot{State: Matched, ConversationID: status.ConversationID, PartnerID: status.PartnerID}
	case models.StateQueued:
		return Snapshot{State: Queued, Position: status.Position}
	default:
		return Snapshot{State: Idle}
	}
}

// Apply folds a pushed event into the state. Events about any conversation
// other than the current one are stale and ignored.
func (m *Machine) Apply(ev models.Event) {
	m.update(func(cur Snapshot) (Snapshot, bool) {
		switch ev.Type {
		case models.EventMatched:
			if cur.ConversationID == ev.ConversationID {
				// Duplicate, or a late copy while leaving.
				return cur, false
			}
			return Snapshot{State: Matched, ConversationID: ev.ConversationID, PartnerID: ev.PartnerID}, true

		case models.EventPartnerLeft, models.EventConversationEnded:
			if cur.ConversationID == "" || cur.ConversationID != ev.ConversationID {
				return cur, false
			}
			return Snapshot{State: Idle}, true

		case models.EventQueuePosition:
			if cur.State != Queued {
				return cur, false
			}
			cur.Position = ev.Position
			return cur, true

		case models.EventQueueExpired:
			if cur.State != Queued {
				return cur, false
			}
			return Snapshot{State: Idle}, true
		}
		return cur, false
	})
}

// update applies fn under the lock and runs OnMatched when a new conversation
// became current.
func (m *Machine) update(fn func(cur Snapshot) (Snapshot, bool)) {
	m.mu.Lock()
	prev := m.snap
	next, ok := fn(prev)
	if !ok {
		m.mu.Unlock()
		return
	}
	m.snap = next
	hook := m.OnMatched
	m.mu.Unlock()

	if hook != nil && next.State == Matched && next.ConversationID != prev.ConversationID {
		hook(next.ConversationID, next.PartnerID)
	}
}
