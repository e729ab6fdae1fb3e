package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/IlyaMakar/cashbook_bot/internal/repository"
	"github.com/IlyaMakar/cashbook_bot/internal/wizard"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if _, err := b.bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		logger.Debug("Answer callback failed", "error", err)
	}
	if q.Message == nil || q.From == nil {
		return
	}

	chatID := q.Message.Chat.ID
	messageID := q.Message.MessageID
	key := wizard.Key{UserID: q.From.ID, ChatID: chatID}

	logger.LogButtonClick(chatID, q.From.UserName, q.Data)

	a, err := ParseAction(q.Data)
	if err != nil {
		logger.Warn("Unknown callback", "chat_id", chatID, "data", q.Data, "error", err)
		return
	}

	if err := b.repo.UpdateChatActivity(chatID, time.Now()); err != nil {
		logger.Warn("Update chat activity failed", "chat_id", chatID, "error", err)
	}
	if err := b.repo.RecordButtonClick(chatID, a.Kind.String()); err != nil {
		logger.Warn("Record button click failed", "chat_id", chatID, "error", err)
	}

	switch a.Kind {
	case ActionMain:
		b.showMain(chatID, messageID)

	case ActionBack:
		prev := b.popNav(chatID)
		b.showView(chatID, messageID, prev.action, false)

	case ActionYear, ActionMonth, ActionToggleHalf, ActionDay,
		ActionProfit, ActionHistory, ActionKPI, ActionForecast:
		b.showView(chatID, messageID, a, true)

	case ActionGoToday:
		b.reload(ctx, chatID)
		b.showDay(chatID, messageID, b.svc.Today(), true)

	case ActionAddRecord:
		b.setMenu(chatID, messageID)
		b.startWizard(chatID, key, func() error {
			b.wizard.StartAdd(key, nil)
			return nil
		})

	case ActionAddOnDay:
		b.setMenu(chatID, messageID)
		date := a.Date
		b.startWizard(chatID, key, func() error {
			b.wizard.StartAdd(key, &date)
			return nil
		})

	case ActionAddSalary:
		b.setMenu(chatID, messageID)
		b.startWizard(chatID, key, func() error {
			b.wizard.StartSalary(key)
			return nil
		})

	case ActionToday:
		// the date prompt itself carries this button
		b.deleteMessage(chatID, b.takePrompt(chatID, key.UserID))
		sctx, cancel := b.storeContext(ctx)
		res, err := b.wizard.Today(sctx, key)
		cancel()
		b.afterAdvance(chatID, key, res, err)

	case ActionEditRow:
		b.setMenu(chatID, messageID)
		b.handleEditRow(chatID, key, a)

	case ActionDeleteRow:
		b.handleDeleteRow(ctx, chatID, messageID, a)

	case ActionUndo, ActionUndoEdit:
		b.handleUndo(ctx, chatID, key, messageID, a)

	case ActionPDF:
		b.sendPDF(chatID, a.Period)

	case ActionCSV:
		b.sendCSV(chatID, a.Period)

	case ActionReminders:
		b.toggleReminders(chatID)
	}
}

func (b *Bot) reload(ctx context.Context, chatID int64) {
	sctx, cancel := b.storeContext(ctx)
	defer cancel()
	if err := b.cache.Reload(sctx); err != nil {
		logger.Debug("Reload before view failed", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) handleDeleteRow(ctx context.Context, chatID int64, messageID int, a Action) {
	rec, ok := b.cache.Snapshot().Periods.Find(a.Row)
	if !ok || !rec.Date.Equal(a.Date) {
		b.sendText(chatID, "⚠️ Запись не найдена, обновите меню")
		b.showDay(chatID, messageID, a.Date, false)
		return
	}

	sctx, cancel := b.storeContext(ctx)
	defer cancel()
	if err := b.cache.Delete(sctx, rec); err != nil {
		b.sendError(chatID, err)
		if errors.Is(err, repository.ErrStaleRow) {
			b.showDay(chatID, messageID, a.Date, false)
		}
		return
	}
	logger.Info("Record deleted", "chat_id", chatID, "row", a.Row, "date", rec.DateString())
	b.showDay(chatID, messageID, a.Date, false)
}
