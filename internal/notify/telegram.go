package notify

import (
	"context"
	"fmt"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
)

// Notifier sends formatted notifications to one recipient chat.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error
}

// TelegramNotifier implements Notifier on the Telegram Bot API.
type TelegramNotifier struct {
	bot *tgbot.Bot
	log logrus.FieldLogger
}

// NewTelegramNotifier wraps an existing bot instance; the bot is shared with
// the command handler, outbound sends need no polling state.
func NewTelegramNotifier(b *tgbot.Bot, logger logrus.FieldLogger) *TelegramNotifier {
	return &TelegramNotifier{
		bot: b,
		log: logger.WithField("component", "notifier"),
	}
}

func (n *TelegramNotifier) SendMessage(ctx context.Context, chatID int64, text string) error {
	_, err := n.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		n.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send message")
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

func (n *TelegramNotifier) SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error {
	_, err := n.bot.SendPhoto(ctx, &tgbot.SendPhotoParams{
		ChatID:    chatID,
		Photo:     &models.InputFileString{Data: photoURL},
		Caption:   caption,
		ParseMode: models.ParseModeMarkdown,
	})
	if err != nil {
		n.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send photo")
		return fmt.Errorf("send photo to %d: %w", chatID, err)
	}
	return nil
}
