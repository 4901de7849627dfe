package bot

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"carwatch/internal/domain"
	"carwatch/internal/storage"
)

// Checker triggers an on-demand check for one chat's subscriptions.
type Checker interface {
	RunOnDemand(ctx context.Context, scope int64) (int, error)
}

// Handler holds dependencies for the Telegram command handlers.
type Handler struct {
	bot     *tgbot.Bot
	repo    storage.Repository
	checker Checker
	send    func(ctx context.Context, chatID int64, text string) error
	log     logrus.FieldLogger
}

// NewHandler registers the command handlers on an existing bot instance.
func NewHandler(b *tgbot.Bot, repo storage.Repository, checker Checker, logger logrus.FieldLogger) *Handler {
	h := &Handler{
		bot:     b,
		repo:    repo,
		checker: checker,
		log:     logger.WithField("component", "bot_handler"),
	}
	h.send = func(ctx context.Context, chatID int64, text string) error {
		_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		return err
	}
	h.registerHandlers()
	h.log.Info("Telegram bot handler initialized")
	return h
}

func (h *Handler) registerHandlers() {
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, h.startHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/add", tgbot.MatchTypePrefix, h.addHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/list", tgbot.MatchTypeExact, h.listHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/remove", tgbot.MatchTypePrefix, h.removeHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "/check", tgbot.MatchTypeExact, h.checkHandler)
	h.bot.RegisterHandler(tgbot.HandlerTypeMessageText, "", tgbot.MatchTypeContains, h.defaultHandler)
}

// Start begins polling for updates. Blocks until the context is cancelled.
func (h *Handler) Start(ctx context.Context) {
	h.log.Info("Starting Telegram bot polling...")
	h.bot.Start(ctx)
	h.log.Info("Telegram bot polling stopped.")
}

func (h *Handler) reply(ctx context.Context, chatID int64, text string) {
	if err := h.send(ctx, chatID, text); err != nil {
		h.log.WithError(err).WithField("chat_id", chatID).Error("Failed to send reply")
	}
}

func (h *Handler) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	h.log.WithField("chat_id", chatID).Info("Received /start command")
	h.reply(ctx, chatID,
		"Hi! I watch car listings for you.\n\n"+
			"/add <search-url> — watch a search\n"+
			"/list — your saved searches\n"+
			"/remove <n> — stop watching\n"+
			"/check — check right now")
}

func (h *Handler) addHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	arg := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/add"))
	log := h.log.WithField("chat_id", chatID)

	u, err := url.Parse(arg)
	if err != nil || u.Scheme == "" || u.Host == "" {
		h.reply(ctx, chatID, "Usage: /add <search-url>")
		return
	}

	sub := domain.SearchSubscription{
		Scope:     chatID,
		ID:        strconv.FormatInt(time.Now().UnixNano(), 36),
		QueryURL:  u.String(),
		Name:      u.Host,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.repo.SaveSubscription(ctx, sub); err != nil {
		log.WithError(err).Error("Failed to save subscription")
		h.reply(ctx, chatID, "Could not save that search, try again later.")
		return
	}
	log.WithField("url", sub.QueryURL).Info("Subscription added")
	h.reply(ctx, chatID, "Watching it. You'll hear from me when new listings match.")
}

func (h *Handler) listHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	subs, err := h.repo.ListSubscriptions(ctx, chatID)
	if err != nil {
		h.log.WithError(err).Error("Failed to list subscriptions")
		h.reply(ctx, chatID, "Could not load your searches, try again later.")
		return
	}

	var active []domain.SearchSubscription
	for _, s := range subs {
		if s.Active {
			active = append(active, s)
		}
	}
	if len(active) == 0 {
		h.reply(ctx, chatID, "No saved searches. Add one with /add <search-url>.")
		return
	}

	var sb strings.Builder
	sb.WriteString("Your searches:\n")
	for i, s := range active {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n", i+1, s.Name, s.QueryURL)
	}
	h.reply(ctx, chatID, sb.String())
}

func (h *Handler) removeHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	arg := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/remove"))

	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		h.reply(ctx, chatID, "Usage: /remove <number from /list>")
		return
	}

	subs, err := h.repo.ListSubscriptions(ctx, chatID)
	if err != nil {
		h.log.WithError(err).Error("Failed to list subscriptions")
		h.reply(ctx, chatID, "Could not load your searches, try again later.")
		return
	}
	var active []domain.SearchSubscription
	for _, s := range subs {
		if s.Active {
			active = append(active, s)
		}
	}
	if n > len(active) {
		h.reply(ctx, chatID, fmt.Sprintf("You only have %d searches.", len(active)))
		return
	}

	target := active[n-1]
	if err := h.repo.DeactivateSubscription(ctx, chatID, target.ID); err != nil {
		h.log.WithError(err).Error("Failed to deactivate subscription")
		h.reply(ctx, chatID, "Could not remove that search, try again later.")
		return
	}
	h.reply(ctx, chatID, "Removed: "+target.Name)
}

func (h *Handler) checkHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	chatID := update.Message.Chat.ID
	h.log.WithField("chat_id", chatID).Info("Received /check command")
	h.reply(ctx, chatID, "Checking now, hold on...")

	// Detached from the update context: polling must not hold this open.
	// The checker applies its own hard timeout.
	go func() {
		n, err := h.checker.RunOnDemand(context.Background(), chatID)
		switch {
		case err != nil:
			h.log.WithError(err).WithField("chat_id", chatID).Warn("On-demand check failed")
			h.reply(context.Background(), chatID, "Check ran into trouble, some searches were skipped.")
		case n == 0:
			h.reply(context.Background(), chatID, "Nothing new since last time.")
		}
		// When n > 0 the listings themselves were just delivered.
	}()
}

func (h *Handler) defaultHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.log.WithFields(logrus.Fields{
		"chat_id": update.Message.Chat.ID,
		"text":    update.Message.Text,
	}).Debug("Received unhandled message (default handler)")
	h.reply(ctx, update.Message.Chat.ID, "I didn't get that. Try /start for the list of commands.")
}
