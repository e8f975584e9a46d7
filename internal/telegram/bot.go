// Package telegram delivers matchmaking events to actors whose profile is
// linked to a Telegram chat.
package telegram

import (
	"fmt"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// NewBot authorizes the bot token against the Telegram API.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorize: %w", err)
	}
	bot.Debug = false
	log.Infof("✅ Authorized on account %s", bot.Self.UserName)
	return bot, nil
}
