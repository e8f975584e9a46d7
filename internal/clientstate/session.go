package clientstate

import (
	"context"
	"errors"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"

	"github.com/charmbracelet/log"
)

// API is the server surface a Session talks to, already bound to one actor.
type API interface {
	Join(ctx context.Context, traits models.Traits, filter models.Filter) (models.Status, error)
	Cancel(ctx context.Context) error
	Leave(ctx context.Context, conversationID string) error
	Status(ctx context.Context) (models.Status, error)
}

// Session drives a Machine against an API. Every error path ends in a resync
// so the machine never stays on a guess.
type Session struct {
	API     API
	Machine *Machine
}

func NewSession(api API, machine *Machine) *Session {
	return &Session{API: api, Machine: machine}
}

// Join asks the server for a partner. It fails locally with
// ErrResyncRequired while the machine still knows a conversation.
func (s *Session) Join(ctx context.Context, traits models.Traits, filter models.Filter) error {
	if err := s.Machine.CanJoin(); err != nil {
		return err
	}
	sent := s.Machine.Snapshot()

	status, err := s.API.Join(ctx, traits, filter)
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyQueued) || errors.Is(err, storage.ErrAlreadyInConversation) {
			return errors.Join(err, s.Resync(ctx))
		}
		return err
	}
	// A pushed event may have overtaken the answer, which is then older than
	// the local state.
	if !s.Machine.ReconcileFrom(sent, status) {
		return s.Resync(ctx)
	}
	return nil
}

// Cancel leaves the pool. When a pairing won the race the error is returned
// and the machine is already Matched.
func (s *Session) Cancel(ctx context.Context) error {
	if err := s.API.Cancel(ctx); err != nil {
		return errors.Join(err, s.Resync(ctx))
	}
	s.Machine.Cancelled()
	return nil
}

// Leave ends the current conversation.
func (s *Session) Leave(ctx context.Context) error {
	conversationID, err := s.Machine.BeginLeave()
	if err != nil {
		return err
	}
	if err := s.API.Leave(ctx, conversationID); err != nil {
		return errors.Join(err, s.Resync(ctx))
	}
	s.Machine.Left(conversationID)
	return nil
}

// Resync replaces the machine's state with the server's.
func (s *Session) Resync(ctx context.Context) error {
	status, err := s.API.Status(ctx)
	if err != nil {
		return err
	}
	s.Machine.Reconcile(status)
	return nil
}

// Consume applies events until the feed closes or ctx is done. A closed feed
// means the transport dropped, so it resyncs before returning.
func (s *Session) Consume(ctx context.Context, events <-chan models.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				log.Debug("Event feed closed; resyncing")
				return s.Resync(ctx)
			}
			s.Machine.Apply(ev)
		}
	}
}
