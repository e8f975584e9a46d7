package chathub_test

import (
	"context"
	"strangerchat/backend/internal/chathub"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestConversationManager_ArchivesCreateAndEnd(t *testing.T) {
	s := storage.NewMemoryStore()
	archive := new(MockArchive)
	archive.On("SaveConversation", mock.MatchedBy(func(c models.Conversation) bool {
		return c.Status == models.ConversationActive
	})).Return(nil).Once()
	archive.On("SaveConversation", mock.MatchedBy(func(c models.Conversation) bool {
		return c.Status == models.ConversationEnded && c.EndReason == models.EndExplicitLeave
	})).Return(nil).Once()

	notifier := &RecordingNotifier{}
	conversations := chathub.NewConversationManager(s, archive, notifier)
	matcher := chathub.NewMatcherService(s, conversations)
	ctx := context.Background()

	_, err := matcher.Join(ctx, models.JoinRequest{ActorID: "A", Filter: models.AnyFilter()})
	require.NoError(t, err)
	status, err := matcher.Join(ctx, models.JoinRequest{ActorID: "B", Filter: models.AnyFilter()})
	require.NoError(t, err)

	_, err = conversations.End(ctx, status.ConversationID, models.EndExplicitLeave, "B")
	require.NoError(t, err)

	archive.AssertExpectations(t)
}

func TestConversationManager_ArchiveFailureDoesNotUndoEnd(t *testing.T) {
	s := storage.NewMemoryStore()
	archive := new(MockArchive)
	archive.On("SaveConversation", mock.Anything).Return(assert.AnError)

	conversations := chathub.NewConversationManager(s, archive, nil)
	matcher := chathub.NewMatcherService(s, conversations)
	ctx := context.Background()

	_, err := matcher.Join(ctx, models.JoinRequest{ActorID: "A", Filter: models.AnyFilter()})
	require.NoError(t, err)
	status, err := matcher.Join(ctx, models.JoinRequest{ActorID: "B", Filter: models.AnyFilter()})
	require.NoError(t, err)
	require.Equal(t, models.StateMatched, status.State)

	conv, err := conversations.End(ctx, status.ConversationID, models.EndExplicitLeave, "A")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationEnded, conv.Status)
}

func TestConversationManager_AdministrativeEndNotifiesBothAsPartnerLeft(t *testing.T) {
	f := newFixture(t, storage.NewMemoryStore())
	ctx := context.Background()

	f.join(t, "A", female, models.AnyFilter())
	b := f.join(t, "B", male, models.AnyFilter())

	_, err := f.matcher.Conversations.End(ctx, b.ConversationID, models.EndPartnerLeft, "")
	require.NoError(t, err)

	assert.Equal(t, []models.EventType{models.EventMatched, models.EventPartnerLeft}, f.notifier.Types("A"))
	assert.Equal(t, []models.EventType{models.EventMatched, models.EventPartnerLeft}, f.notifier.Types("B"))
}

func TestConversationManager_GetFallsBackToArchive(t *testing.T) {
	archived := models.Conversation{
		ID:        "old",
		ActorA:    "A",
		ActorB:    "B",
		CreatedAt: time.Now().Add(-time.Hour),
		Status:    models.ConversationEnded,
		EndReason: models.EndDisconnectTimeout,
	}
	archive := new(MockArchive)
	archive.On("FindConversation", "old").Return(archived, nil)
	archive.On("FindConversation", "missing").Return(models.Conversation{}, storage.ErrConversationNotFound)

	conversations := chathub.NewConversationManager(storage.NewMemoryStore(), archive, nil)
	ctx := context.Background()

	conv, err := conversations.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, archived, conv)

	_, err = conversations.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrConversationNotFound)
}
