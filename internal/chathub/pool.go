package chathub

import (
	"context"
	"iter"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"time"
)

const candidatePageSize = 64

// WaitingPool is the view of the store that holds actors waiting for a partner.
type WaitingPool struct {
	store    storage.Store
	pageSize int
}

func NewWaitingPool(s storage.Store) *WaitingPool {
	return &WaitingPool{store: s, pageSize: candidatePageSize}
}

// Enqueue adds the actor. It fails with storage.ErrAlreadyQueued or
// storage.ErrAlreadyInConversation; neither is retried.
func (p *WaitingPool) Enqueue(ctx context.Context, entry models.WaitingPoolEntry, now time.Time) (models.WaitingPoolEntry, error) {
	return p.store.Enqueue(ctx, entry, now)
}

// Dequeue removes the actor. storage.ErrAlreadyInConversation means a pairing
// committed before the cancel did.
func (p *WaitingPool) Dequeue(ctx context.Context, actorID string) error {
	return p.store.Dequeue(ctx, actorID)
}

// Candidates yields the entries compatible with x, oldest first, never x itself.
func (p *WaitingPool) Candidates(ctx context.Context, x models.WaitingPoolEntry) iter.Seq2[models.WaitingPoolEntry, error] {
	return func(yield func(models.WaitingPoolEntry, error) bool) {
		for y, err := range p.Entries(ctx) {
			if err != nil {
				yield(y, err)
				return
			}
			if y.ActorID == x.ActorID || !models.Compatible(x, y) {
				continue
			}
			if !yield(y, nil) {
				return
			}
		}
	}
}

// Entries yields every waiting entry oldest first. Pages are read lazily, so
// entries that arrive during iteration are seen as long as they sort after
// the current cursor.
func (p *WaitingPool) Entries(ctx context.Context) iter.Seq2[models.WaitingPoolEntry, error] {
	return func(yield func(models.WaitingPoolEntry, error) bool) {
		var cursor int64
		for {
			page, err := p.store.EntriesAfter(ctx, cursor, p.pageSize)
			if err != nil {
				yield(models.WaitingPoolEntry{}, err)
				return
			}
			if len(page) == 0 {
				return
			}
			for _, e := range page {
				cursor = e.Seq
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}
