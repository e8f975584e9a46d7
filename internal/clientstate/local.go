package clientstate

import (
	"context"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"
)

// Local is an in-process API for one actor, backed directly by the engine.
type Local struct {
	Matcher *chathub.MatcherService
	ActorID string
}

func (l Local) Join(ctx context.Context, traits models.Traits, filter models.Filter) (models.Status, error) {
	return l.Matcher.Join(ctx, models.JoinRequest{ActorID: l.ActorID, Traits: traits, Filter: filter})
}

func (l Local) Cancel(ctx context.Context) error {
	return l.Matcher.Cancel(ctx, l.ActorID)
}

func (l Local) Leave(ctx context.Context, conversationID string) error {
	_, err := l.Matcher.Leave(ctx, l.ActorID, conversationID)
	return err
}

func (l Local) Status(ctx context.Context) (models.Status, error) {
	return l.Matcher.Resync(ctx, l.ActorID)
}
