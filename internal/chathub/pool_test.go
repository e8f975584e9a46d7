package chathub_test

import (
	"context"
	"fmt"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitingPool_Candidates(t *testing.T) {
	s := storage.NewMemoryStore()
	pool := chathub.NewWaitingPool(s)
	ctx := context.Background()
	now := time.Now()

	// Arrange: more entries than fit in one page, alternating genders.
	const n = 150
	for i := range n {
		traits := female
		if i%2 == 1 {
			traits = male
		}
		_, err := pool.Enqueue(ctx, models.WaitingPoolEntry{
			ActorID: fmt.Sprintf("a%03d", i),
			Traits:  traits,
			Filter:  models.AnyFilter(),
		}, now)
		require.NoError(t, err)
	}
	x, err := pool.Enqueue(ctx, models.WaitingPoolEntry{ActorID: "x", Traits: male, Filter: wantsFemale}, now)
	require.NoError(t, err)

	// Act
	var got []string
	for y, err := range pool.Candidates(ctx, x) {
		require.NoError(t, err)
		got = append(got, y.ActorID)
	}

	// Assert: only the females, oldest first, never x itself.
	require.Len(t, got, n/2)
	for i, id := range got {
		assert.Equal(t, fmt.Sprintf("a%03d", i*2), id)
	}
}

func TestWaitingPool_CandidatesStopEarly(t *testing.T) {
	s := storage.NewMemoryStore()
	pool := chathub.NewWaitingPool(s)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := pool.Enqueue(ctx, models.WaitingPoolEntry{ActorID: id, Filter: models.AnyFilter()}, time.Now())
		require.NoError(t, err)
	}

	seen := 0
	for range pool.Candidates(ctx, models.WaitingPoolEntry{ActorID: "z", Filter: models.AnyFilter()}) {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
}

func TestWaitingPool_Dequeue(t *testing.T) {
	pool := chathub.NewWaitingPool(storage.NewMemoryStore())
	ctx := context.Background()

	_, err := pool.Enqueue(ctx, models.WaitingPoolEntry{ActorID: "a", Filter: models.AnyFilter()}, time.Now())
	require.NoError(t, err)

	require.NoError(t, pool.Dequeue(ctx, "a"))
	assert.ErrorIs(t, pool.Dequeue(ctx, "a"), storage.ErrNotQueued)
}
