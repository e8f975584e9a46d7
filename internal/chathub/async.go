package chathub

import (
	"context"
	"errors"
	"strangerchat/backend/internal/models"

	"github.com/charmbracelet/log"
)

var ErrNotifyQueueFull = errors.New("notification queue is full")

// AsyncNotifier hands events to a slow Notifier from a background goroutine,
// so matchmaking never waits on it. Events are dropped while the queue is full;
// clients recover them through resync.
type AsyncNotifier struct {
	next  Notifier
	queue chan models.Event
}

func NewAsyncNotifier(next Notifier, size int) *AsyncNotifier {
	return &AsyncNotifier{next: next, queue: make(chan models.Event, size)}
}

func (a *AsyncNotifier) Notify(_ context.Context, ev models.Event) error {
	select {
	case a.queue <- ev:
		return nil
	default:
		return ErrNotifyQueueFull
	}
}

// Run delivers queued events until ctx is done.
func (a *AsyncNotifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.queue:
			if err := a.next.Notify(ctx, ev); err != nil {
				log.Warnf("Failed to deliver %s to %s: %v", ev.Type, ev.ActorID, err)
			}
		}
	}
}
