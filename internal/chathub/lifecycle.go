package chathub

import (
	"context"
	"errors"
	"strangerchat/backend/internal/models"
	"strangerchat/backend/internal/storage"
	"time"

	"github.com/charmbracelet/log"
)

// Archiver keeps conversation history after the live record expires.
type Archiver interface {
	SaveConversation(ctx context.Context, conv models.Conversation) error
	FindConversation(ctx context.Context, conversationID string) (models.Conversation, error)
}

// ConversationManager owns every transition of a Conversation after it was
// created by the pairing step.
type ConversationManager struct {
	Store    storage.Store
	Archive  Archiver
	Notifier Notifier

	now func() time.Time
}

// NewConversationManager wires the lifecycle. archive and notifier may be nil.
func NewConversationManager(s storage.Store, archive Archiver, notifier Notifier) *ConversationManager {
	if notifier == nil {
		notifier = discard{}
	}
	return &ConversationManager{
		Store:    s,
		Archive:  archive,
		Notifier: notifier,
		now:      time.Now,
	}
}

// End ends the conversation. An empty initiator means an administrative end.
// Ending a conversation that already ended succeeds without side effects.
func (c *ConversationManager) End(ctx context.Context, conversationID string, reason models.EndReason, initiator string) (models.Conversation, error) {
	conv, _, err := c.end(ctx, conversationID, reason, initiator)
	return conv, err
}

// end reports whether this call performed the transition.
func (c *ConversationManager) end(ctx context.Context, conversationID string, reason models.EndReason, initiator string) (models.Conversation, bool, error) {
	conv, err := c.Store.End(ctx, conversationID, reason, initiator, c.now())
	if errors.Is(err, storage.ErrAlreadyEnded) {
		return conv, false, nil
	}
	if err != nil {
		return conv, false, err
	}

	log.Infof("Conversation %s ended (%s) by %q", conv.ID, conv.EndReason, initiator)
	c.archive(ctx, conv)

	for _, actor := range []string{conv.ActorA, conv.ActorB} {
		ev := models.Event{
			Type:           models.EventPartnerLeft,
			ActorID:        actor,
			ConversationID: conv.ID,
			PartnerID:      conv.PartnerOf(actor),
			Reason:         conv.EndReason,
			At:             conv.EndedAt,
		}
		if actor == initiator {
			ev.Type = models.EventConversationEnded
		}
		c.notify(ctx, ev)
	}
	return conv, true, nil
}

// Get returns a live conversation or, once it expired from the store, its archived copy.
func (c *ConversationManager) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	conv, err := c.Store.Conversation(ctx, conversationID)
	if !errors.Is(err, storage.ErrConversationNotFound) || c.Archive == nil {
		return conv, err
	}
	return c.Archive.FindConversation(ctx, conversationID)
}

// created runs after the store committed a pairing.
func (c *ConversationManager) created(ctx context.Context, conv models.Conversation) {
	log.Infof("Match found: %s and %s in conversation %s", conv.ActorA, conv.ActorB, conv.ID)
	c.archive(ctx, conv)

	for _, actor := range []string{conv.ActorA, conv.ActorB} {
		c.notify(ctx, models.Event{
			Type:           models.EventMatched,
			ActorID:        actor,
			ConversationID: conv.ID,
			PartnerID:      conv.PartnerOf(actor),
			At:             conv.CreatedAt,
		})
	}
}

func (c *ConversationManager) archive(ctx context.Context, conv models.Conversation) {
	if c.Archive == nil {
		return
	}
	if err := c.Archive.SaveConversation(ctx, conv); err != nil {
		log.Errorf("Failed to archive conversation %s: %v", conv.ID, err)
	}
}

func (c *ConversationManager) notify(ctx context.Context, ev models.Event) {
	if err := c.Notifier.Notify(ctx, ev); err != nil {
		log.Warnf("Failed to deliver %s to %s: %v", ev.Type, ev.ActorID, err)
	}
}
