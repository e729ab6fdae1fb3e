package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/ledger"
	"github.com/IlyaMakar/cashbook_bot/internal/logger"
	"github.com/IlyaMakar/cashbook_bot/internal/repository"
	"github.com/IlyaMakar/cashbook_bot/internal/wizard"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleMessage(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil {
		return
	}
	logger.LogCommand(m.Chat.ID, m.From.UserName, m.Text)
	if err := b.repo.UpdateChatActivity(m.Chat.ID, time.Now()); err != nil {
		logger.Warn("Update chat activity failed", "chat_id", m.Chat.ID, "error", err)
	}

	key := wizard.Key{UserID: m.From.ID, ChatID: m.Chat.ID}

	switch m.Command() {
	case "start":
		b.handleStart(ctx, m, key)
		return
	case "cancel":
		b.handleCancel(m, key)
		return
	case "reminders":
		b.handleReminders(m)
		return
	}

	if _, ok := b.wizard.Active(key); !ok {
		// free text outside a dialog is ignored
		return
	}
	b.handleWizardInput(ctx, m, key)
}

func (b *Bot) handleStart(ctx context.Context, m *tgbotapi.Message, key wizard.Key) {
	err := b.repo.RegisterChat(repository.Chat{
		ChatID:    m.Chat.ID,
		UserID:    m.From.ID,
		Username:  m.From.UserName,
		FirstName: m.From.FirstName,
	})
	if err != nil {
		logger.LogError(m.Chat.ID, "Register chat failed", err)
	}

	b.wizard.Reset(key)
	b.deleteMessage(m.Chat.ID, b.takePrompt(m.Chat.ID, m.From.ID))

	sctx, cancel := b.storeContext(ctx)
	defer cancel()
	if err := b.cache.Reload(sctx); err != nil && !errors.Is(err, repository.ErrUnavailable) {
		logger.Warn("Reload on /start failed", "chat_id", m.Chat.ID, "error", err)
	}

	b.showMain(m.Chat.ID, 0)
}

// handleReminders serves "/reminders on", "/reminders off" and a bare
// "/reminders", which flips the current setting.
func (b *Bot) handleReminders(m *tgbotapi.Message) {
	chatID := m.Chat.ID
	var enabled bool
	switch arg := strings.ToLower(strings.TrimSpace(m.CommandArguments())); arg {
	case "":
		b.toggleReminders(chatID)
		return
	case "on", "вкл":
		enabled = true
	case "off", "выкл":
	default:
		b.sendText(chatID, "Используйте /reminders on или /reminders off")
		return
	}

	if err := b.repo.SetReminders(chatID, enabled); err != nil {
		b.remindersFailed(chatID, err)
		return
	}
	b.remindersSet(chatID, enabled)
}

func (b *Bot) toggleReminders(chatID int64) {
	enabled, err := b.repo.ToggleReminders(chatID)
	if err != nil {
		b.remindersFailed(chatID, err)
		return
	}
	b.remindersSet(chatID, enabled)
}

func (b *Bot) remindersSet(chatID int64, enabled bool) {
	logger.Info("Reminders switched", "chat_id", chatID, "enabled", enabled)
	if enabled {
		b.sendText(chatID, "🔔 Напоминания включены")
	} else {
		b.sendText(chatID, "🔕 Напоминания выключены")
	}
}

func (b *Bot) remindersFailed(chatID int64, err error) {
	if errors.Is(err, repository.ErrChatNotFound) {
		b.sendText(chatID, "Сначала отправьте /start")
		return
	}
	logger.LogError(chatID, "Switch reminders failed", err)
	b.sendText(chatID, "⚠️ Ошибка: не удалось сохранить настройку")
}

func (b *Bot) handleCancel(m *tgbotapi.Message, key wizard.Key) {
	b.deleteMessage(m.Chat.ID, b.takePrompt(m.Chat.ID, m.From.ID))
	if b.wizard.Cancel(key) {
		b.sendText(m.Chat.ID, "🚫 Ввод отменён")
		return
	}
	b.sendText(m.Chat.ID, "Нечего отменять")
}

func (b *Bot) handleWizardInput(ctx context.Context, m *tgbotapi.Message, key wizard.Key) {
	chatID := m.Chat.ID
	b.deleteMessage(chatID, m.MessageID)
	b.deleteMessage(chatID, b.takePrompt(chatID, key.UserID))

	sctx, cancel := b.storeContext(ctx)
	defer cancel()
	res, err := b.wizard.Advance(sctx, key, m.Text)
	b.afterAdvance(chatID, key, res, err)
}

// afterAdvance answers one wizard step: the next prompt, a retry prompt or the
// commit notice.
func (b *Bot) afterAdvance(chatID int64, key wizard.Key, res wizard.Result, err error) {
	switch {
	case err == nil && res.Commit != nil:
		b.notifyCommit(chatID, key, *res.Commit)
		return
	case err == nil:
		b.promptStep(chatID, key, "")
		return
	}

	var hint string
	switch {
	case errors.Is(err, wizard.ErrInvalidDate):
		hint = "Неверный формат даты"
	case errors.Is(err, wizard.ErrEmptyLabel):
		hint = "Имя не может быть пустым"
	case errors.Is(err, wizard.ErrInvalidAmount):
		hint = "Нужно число"
	case errors.Is(err, wizard.ErrNoSession):
		return
	default:
		logger.LogError(chatID, "Wizard commit failed", err)
		b.sendText(chatID, "⚠️ "+userMessage(err))
		return
	}
	b.promptStep(chatID, key, hint)
}

// promptStep sends the question for the current step of the session.
func (b *Bot) promptStep(chatID int64, key wizard.Key, hint string) {
	s, ok := b.wizard.Active(key)
	if !ok {
		return
	}

	var (
		text   string
		markup interface{}
	)
	switch s.Step {
	case wizard.StepDate:
		text = "📅 Введите дату (ДД.ММ.ГГГГ) или «Сегодня»"
		markup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(button("Сегодня", Action{Kind: ActionToday})),
		)
	case wizard.StepLabel:
		text = "✏️ Введите имя:"
		if s.Mode == wizard.ModeEdit {
			text = fmt.Sprintf("✏️ Введите имя (старое: %s):", html.EscapeString(s.PreviousLabel))
		}
	case wizard.StepAmount:
		switch s.Mode {
		case wizard.ModeEdit:
			text = fmt.Sprintf("💰 Введите сумму (старое: %s):", money(s.PreviousAmount))
		case wizard.ModeSalary:
			text = "💵 Введите сумму зарплаты:"
		default:
			text = "💰 Введите сумму:"
		}
	}
	if hint != "" {
		text = "⚠️ " + hint + "\n" + text
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	if sent, ok := b.send(chatID, msg); ok {
		b.setPrompt(chatID, key.UserID, sent.MessageID)
	}
}

func (b *Bot) notifyCommit(chatID int64, key wizard.Key, c wizard.Commit) {
	var (
		text string
		undo Action
	)
	switch c.Mode {
	case wizard.ModeEdit:
		text = "✅ Данные изменены"
		undo = UndoEditAction(c.Undo.RowID)
	case wizard.ModeSalary:
		text = "✅ Зарплата добавлена: " + money(c.Record.Amount)
		undo = UndoAction(c.Undo.RowID)
	default:
		text = fmt.Sprintf("✅ Добавлено: %s · %s", html.EscapeString(c.Record.Label), money(c.Record.Amount))
		undo = UndoAction(c.Undo.RowID)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(button("↺ Отменить", undo)),
	)
	if sent, ok := b.send(chatID, msg); ok {
		b.afterFunc(b.wizard.UndoWindow(), func() { b.deleteMessage(chatID, sent.MessageID) })
	}

	if c.Mode == wizard.ModeSalary {
		b.showHistory(chatID, b.menu(chatID), true)
		return
	}
	b.showDay(chatID, b.menu(chatID), c.Record.Date, true)
}

// startWizard opens a session from a button and asks the first question.
func (b *Bot) startWizard(chatID int64, key wizard.Key, start func() error) {
	b.deleteMessage(chatID, b.takePrompt(chatID, key.UserID))
	if err := start(); err != nil {
		b.sendError(chatID, err)
		return
	}
	b.promptStep(chatID, key, "")
}

func (b *Bot) handleEditRow(chatID int64, key wizard.Key, a Action) {
	rec, ok := b.cache.Snapshot().Periods.Find(a.Row)
	if !ok || !rec.Date.Equal(a.Date) || rec.Kind != ledger.KindTransaction {
		b.sendText(chatID, "⚠️ Запись не найдена, обновите меню")
		b.showDay(chatID, b.menu(chatID), a.Date, false)
		return
	}
	b.startWizard(chatID, key, func() error {
		_, err := b.wizard.StartEdit(key, rec)
		return err
	})
}

func (b *Bot) handleUndo(ctx context.Context, chatID int64, key wizard.Key, notifyID int, a Action) {
	kind := wizard.UndoInsert
	if a.Kind == ActionUndoEdit {
		kind = wizard.UndoUpdate
	}

	sctx, cancel := b.storeContext(ctx)
	defer cancel()
	tok, err := b.wizard.Undo(sctx, key, a.Row, kind)
	if errors.Is(err, wizard.ErrUndoExpired) {
		b.sendText(chatID, "⏱ Время вышло")
		return
	}
	if err != nil {
		b.sendError(chatID, err)
		return
	}

	b.deleteMessage(chatID, notifyID)
	b.showDay(chatID, b.menu(chatID), tok.Date, true)
}
