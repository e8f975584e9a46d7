package chathub

import (
	"context"
	"errors"
	"strangerchat/backend/internal/models"
)

// Notifier delivers an event to whatever channels reach ev.ActorID.
// Delivery is at-least-once at best; consumers recover missed events through resync.
type Notifier interface {
	Notify(ctx context.Context, ev models.Event) error
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, ev models.Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev models.Event) error {
	return f(ctx, ev)
}

// FanOut sends every event to all its notifiers and joins their errors.
type FanOut []Notifier

func (f FanOut) Notify(ctx context.Context, ev models.Event) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type discard struct{}

func (discard) Notify(context.Context, models.Event) error { return nil }
