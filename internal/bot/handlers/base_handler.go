package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/IlyaMakar/cashbook_bot/internal/repository"
	"github.com/IlyaMakar/cashbook_bot/internal/service"
	"github.com/IlyaMakar/cashbook_bot/internal/wizard"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// API is the part of tgbotapi.BotAPI the bot uses.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Deps struct {
	Repo    *repository.SQLiteRepository
	Cache   *repository.Cache
	Wizard  *wizard.Manager
	Service *service.FinanceService
	Reports *ReportGenerator

	// StoreTimeout bounds every store call made while handling one update.
	StoreTimeout time.Duration
}

type Bot struct {
	bot       API
	username  string
	repo      *repository.SQLiteRepository
	cache     *repository.Cache
	wizard    *wizard.Manager
	svc       *service.FinanceService
	reportGen *ReportGenerator
	timeout   time.Duration

	// afterFunc runs best-effort delayed work such as removing an expired
	// undo notification.
	afterFunc func(d time.Duration, f func())

	mu    sync.Mutex
	chats map[int64]*chatState
}

func NewBot(token string, deps Deps) (*Bot, error) {
	logger.Info("Creating new bot instance")
	botAPI, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", "error", err)
		return nil, fmt.Errorf("create bot API: %w", err)
	}

	b := NewBotWithAPI(botAPI, deps)
	b.username = botAPI.Self.UserName
	logger.Info("Bot created successfully", "username", b.username)
	return b, nil
}

func NewBotWithAPI(api API, deps Deps) *Bot {
	b := &Bot{
		bot:       api,
		repo:      deps.Repo,
		cache:     deps.Cache,
		wizard:    deps.Wizard,
		svc:       deps.Service,
		reportGen: deps.Reports,
		timeout:   deps.StoreTimeout,
		chats:     make(map[int64]*chatState),
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
	if b.timeout <= 0 {
		b.timeout = 15 * time.Second
	}
	if b.reportGen == nil {
		b.reportGen = NewReportGenerator(DefaultFontPath)
	}
	return b
}

func (b *Bot) send(chatID int64, c tgbotapi.Chattable) (tgbotapi.Message, bool) {
	msg, err := b.bot.Send(c)
	if err != nil {
		logger.Error("Error sending message", "chat_id", chatID, "error", err)
		return msg, false
	}
	return msg, true
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	b.send(chatID, msg)
}

func (b *Bot) sendError(chatID int64, err error) {
	logger.Warn("Sending error to user", "chat_id", chatID, "error", err)
	b.sendText(chatID, "⚠️ Ошибка: "+userMessage(err))
}

// userMessage maps known errors to chat text.
func userMessage(err error) string {
	switch {
	case errors.Is(err, repository.ErrUnavailable):
		return "таблица недоступна, запись не сохранена"
	case errors.Is(err, repository.ErrStaleRow):
		return "запись уже изменилась, обновите меню"
	case errors.Is(err, repository.ErrRowOutOfRange):
		return "запись не найдена, обновите меню"
	case errors.Is(err, context.DeadlineExceeded):
		return "таблица не ответила вовремя"
	case errors.Is(err, ErrFontMissing):
		return "не найден шрифт для PDF"
	default:
		return "что-то пошло не так"
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := b.bot.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		logger.Debug("Delete message failed", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

// render edits the menu message in place and falls back to a new message
// when the edit is rejected.
func (b *Bot) render(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if messageID != 0 {
		edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
		edit.ParseMode = tgbotapi.ModeHTML
		_, err := b.bot.Send(edit)
		if err == nil || strings.Contains(err.Error(), "message is not modified") {
			b.setMenu(chatID, messageID)
			return
		}
		logger.Debug("Edit failed, sending new message", "chat_id", chatID, "error", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	if sent, ok := b.send(chatID, msg); ok {
		b.setMenu(chatID, sent.MessageID)
	}
}

func (b *Bot) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// Start runs the update loop until ctx is cancelled. Updates are handled one
// at a time. Long polling is stopped before Start returns.
func (b *Bot) Start(ctx context.Context) {
	logger.Info("Bot started", "username", b.username)
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.bot.GetUpdatesChan(u)
	defer b.bot.StopReceivingUpdates()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Bot stopped")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, upd)
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	}
}
