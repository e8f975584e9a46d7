package telegram

import (
	"context"
	"fmt"
	"strangerchat/backend/internal/localization"
	"strangerchat/backend/internal/models"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatDirectory finds the Telegram chat linked to an actor.
// ok is false for anonymous actors and users without Telegram.
type ChatDirectory interface {
	TelegramChat(ctx context.Context, actorID string) (chatID int64, lang string, ok bool, err error)
}

// Notifier is a chathub.Notifier that turns events into Telegram messages.
type Notifier struct {
	Bot   Sender
	Chats ChatDirectory
	Texts *localization.Localizer
}

func NewNotifier(bot Sender, chats ChatDirectory, texts *localization.Localizer) *Notifier {
	return &Notifier{Bot: bot, Chats: chats, Texts: texts}
}

func (n *Notifier) Notify(ctx context.Context, ev models.Event) error {
	key := textKey(ev)
	if key == "" {
		return nil
	}

	chatID, lang, ok, err := n.Chats.TelegramChat(ctx, ev.ActorID)
	if err != nil {
		return fmt.Errorf("telegram chat of %s: %w", ev.ActorID, err)
	}
	if !ok {
		return nil
	}

	var text string
	if ev.Type == models.EventQueuePosition {
		text = n.Texts.Format(lang, key, ev.Position)
	} else {
		text = n.Texts.GetString(lang, key)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.Bot.Send(msg); err != nil {
		return fmt.Errorf("telegram send %s to %s: %w", ev.Type, ev.ActorID, err)
	}
	log.Debugf("Telegram %s sent to %s", ev.Type, ev.ActorID)
	return nil
}

func textKey(ev models.Event) string {
	switch ev.Type {
	case models.EventMatched:
		return "matched"
	case models.EventPartnerLeft:
		if ev.Reason == models.EndDisconnectTimeout {
			return "partner_left_timeout"
		}
		return "partner_left"
	case models.EventConversationEnded:
		return "conversation_ended"
	case models.EventQueuePosition:
		return "queue_position"
	case models.EventQueueExpired:
		return "queue_expired"
	}
	return ""
}
