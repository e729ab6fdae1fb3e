package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/IlyaMakar/cashbook_bot/internal/repository"
	"github.com/IlyaMakar/cashbook_bot/internal/wizard"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const reminderText = "⏰ Не забудьте внести записи сегодня!"

// SyncJob refreshes the cache from the sheet and drops stale wizard state.
type SyncJob struct {
	ctx     context.Context
	cache   *repository.Cache
	wizard  *wizard.Manager
	timeout time.Duration
}

func NewSyncJob(ctx context.Context, cache *repository.Cache, w *wizard.Manager, timeout time.Duration) *SyncJob {
	return &SyncJob{ctx: ctx, cache: cache, wizard: w, timeout: timeout}
}

func (j *SyncJob) Name() string { return "sync" }

func (j *SyncJob) Run() error {
	if n := j.wizard.Sweep(); n > 0 {
		logger.Debug("Expired wizard state dropped", "count", n)
	}

	ctx, cancel := context.WithTimeout(j.ctx, j.timeout)
	defer cancel()
	if err := j.cache.Reload(ctx); err != nil && !errors.Is(err, repository.ErrUnavailable) {
		return fmt.Errorf("reload cache: %w", err)
	}
	return nil
}

// ReminderJob nudges every chat with reminders enabled. A failed send is
// logged and the broadcast goes on.
type ReminderJob struct {
	bot *Bot
}

func (b *Bot) ReminderJob() *ReminderJob { return &ReminderJob{bot: b} }

func (j *ReminderJob) Name() string { return "reminder" }

func (j *ReminderJob) Run() error {
	chats, err := j.bot.repo.GetReminderChats()
	if err != nil {
		return fmt.Errorf("load reminder chats: %w", err)
	}

	sent := 0
	for _, chatID := range chats {
		if _, err := j.bot.bot.Send(tgbotapi.NewMessage(chatID, reminderText)); err != nil {
			logger.Warn("Reminder not delivered", "chat_id", chatID, "error", err)
			continue
		}
		sent++
	}
	logger.Info("Reminders sent", "sent", sent, "total", len(chats))
	return nil
}
