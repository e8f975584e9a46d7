package chathub_test

import (
	"context"
	"errors"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*chathub.ManagerService, context.CancelFunc) {
	t.Helper()
	hub := chathub.NewManagerService()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func receive(t *testing.T, c *MockClient) models.Event {
	t.Helper()
	select {
	case ev := <-c.RecvChannel:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("client of %s received nothing", c.actorID)
		return models.Event{}
	}
}

func TestManager_RegisterUnregister(t *testing.T) {
	hub, _ := startHub(t)
	clientA := newMockClient("user_A", 10)

	require.True(t, hub.Register(clientA))
	assert.Equal(t, 1, hub.Connected("user_A"))

	hub.Unregister(clientA)
	assert.Equal(t, 0, hub.Connected("user_A"))
	assert.True(t, clientA.IsClosed())
}

func TestManager_DeliversToEveryClientOfTheActor(t *testing.T) {
	hub, _ := startHub(t)
	ctx := context.Background()

	phone := newMockClient("user_A", 10)
	laptop := newMockClient("user_A", 10)
	other := newMockClient("user_B", 10)
	for _, c := range []*MockClient{phone, laptop, other} {
		require.True(t, hub.Register(c))
	}

	require.NoError(t, hub.Notify(ctx, models.Event{Type: models.EventMatched, ActorID: "user_A", ConversationID: "c1"}))

	assert.Equal(t, "c1", receive(t, phone).ConversationID)
	assert.Equal(t, "c1", receive(t, laptop).ConversationID)

	assert.Equal(t, 1, hub.Connected("user_B"))
	assert.Empty(t, other.RecvChannel)
}

func TestManager_DropsSlowClient(t *testing.T) {
	hub, _ := startHub(t)
	ctx := context.Background()

	slow := newMockClient("user_A", 0)
	require.True(t, hub.Register(slow))

	require.NoError(t, hub.Notify(ctx, models.Event{Type: models.EventMatched, ActorID: "user_A"}))

	assert.Eventually(t, func() bool {
		return hub.Connected("user_A") == 0
	}, time.Second, 10*time.Millisecond)
	assert.True(t, slow.IsClosed())
}

func TestManager_StopClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	c := newMockClient("user_A", 10)
	require.True(t, hub.Register(c))

	cancel()

	assert.Eventually(t, c.IsClosed, time.Second, 10*time.Millisecond)
	assert.False(t, hub.Register(newMockClient("user_B", 10)))
	assert.NoError(t, hub.Notify(context.Background(), models.Event{ActorID: "user_A"}))
	hub.Unregister(c)
}

func TestFanOut(t *testing.T) {
	first := &RecordingNotifier{}
	second := &RecordingNotifier{}
	broken := chathub.NotifierFunc(func(context.Context, models.Event) error {
		return errors.New("telegram down")
	})

	fan := chathub.FanOut{first, broken, nil, second}
	err := fan.Notify(context.Background(), models.Event{Type: models.EventPartnerLeft, ActorID: "user_A"})

	assert.EqualError(t, err, "telegram down")
	assert.Len(t, first.For("user_A"), 1)
	assert.Len(t, second.For("user_A"), 1)
}

func TestAsyncNotifierDoesNotBlockOnSlowDelivery(t *testing.T) {
	release := make(chan struct{})
	delivered := &RecordingNotifier{}
	slow := chathub.NotifierFunc(func(ctx context.Context, ev models.Event) error {
		<-release
		return delivered.Notify(ctx, ev)
	})
	async := chathub.NewAsyncNotifier(slow, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go async.Run(ctx)

	// The first event is taken by Run and waits there; the second fills the queue.
	require.NoError(t, async.Notify(ctx, models.Event{Type: models.EventMatched, ActorID: "user_A"}))
	assert.Eventually(t, func() bool {
		return async.Notify(ctx, models.Event{Type: models.EventPartnerLeft, ActorID: "user_A"}) == nil
	}, time.Second, 10*time.Millisecond)
	assert.ErrorIs(t, async.Notify(ctx, models.Event{Type: models.EventMatched, ActorID: "user_B"}), chathub.ErrNotifyQueueFull)

	close(release)
	assert.Eventually(t, func() bool {
		return len(delivered.For("user_A")) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Empty(t, delivered.For("user_B"))
}
