package storage

import (
	"context"
	"errors"
	"fmt"
	"strangerchat/backend/internal/identity"
	"strangerchat/backend/internal/models"

	"gorm.io/gorm"
)

// ErrUserNotFound is returned when a profile row does not exist.
var ErrUserNotFound = errors.New("user not found")

// Archive is the PostgreSQL side: conversation history and read-only access
// to user profiles owned by the profile collaborator.
type Archive struct {
	DB *gorm.DB
}

func NewArchive(db *gorm.DB) *Archive {
	return &Archive{DB: db}
}

// Migrate creates the tables the archive writes to or reads from.
func (a *Archive) Migrate() error {
	return a.DB.AutoMigrate(&models.ConversationRecord{}, &models.User{})
}

// SaveConversation upserts the archive row; it is called on create and again on end.
func (a *Archive) SaveConversation(ctx context.Context, conv models.Conversation) error {
	rec := conv.ToRecord()
	if err := a.DB.WithContext(ctx).Save(&rec).Error; err != nil {
		return fmt.Errorf("archive conversation %s: %w", conv.ID, err)
	}
	return nil
}

func (a *Archive) FindConversation(ctx context.Context, conversationID string) (models.Conversation, error) {
	var rec models.ConversationRecord
	err := a.DB.WithContext(ctx).Where("conversation_id = ?", conversationID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}
	return rec.Conversation(), nil
}

// UserForActor loads the profile behind an authenticated actor id.
// Anonymous actors have no profile and get ErrUserNotFound.
func (a *Archive) UserForActor(ctx context.Context, actorID string) (*models.User, error) {
	userID, ok := identity.UserID(actorID)
	if !ok {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := a.DB.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Traits implements the profile lookup used when an authenticated user joins.
func (a *Archive) Traits(ctx context.Context, actorID string) (models.Traits, error) {
	user, err := a.UserForActor(ctx, actorID)
	if err != nil {
		return models.Traits{}, err
	}
	return user.Traits(), nil
}

// TelegramChat returns the linked chat id and preferred language of an actor.
// ok is false when the actor has no linked Telegram account.
func (a *Archive) TelegramChat(ctx context.Context, actorID string) (chatID int64, lang string, ok bool, err error) {
	user, err := a.UserForActor(ctx, actorID)
	if errors.Is(err, ErrUserNotFound) {
		return 0, "", false, nil
	}
	if err != nil {
		return 0, "", false, err
	}
	if user.TelegramID == 0 {
		return 0, "", false, nil
	}
	return user.TelegramID, user.Language, true, nil
}

// ConversationsOf lists the most recent archived conversations of an actor, newest first.
func (a *Archive) ConversationsOf(ctx context.Context, actorID string, limit int) ([]models.Conversation, error) {
	var recs []models.ConversationRecord
	err := a.DB.WithContext(ctx).
		Where("actor_a = ? OR actor_b = ?", actorID, actorID).
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, err
	}

	out := make([]models.Conversation, len(recs))
	for i, r := range recs {
		out[i] = r.Conversation()
	}
	return out, nil
}
