package handlers

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/repository"
	"github.com/IlyaMakar/cashbook_bot/internal/service"
	"github.com/IlyaMakar/cashbook_bot/internal/wizard"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChatID = int64(100)
	testUserID = int64(1)
)

type fakeAPI struct {
	mu       sync.Mutex
	nextID   int
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	updates  chan tgbotapi.Update
	stopped  int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: f.nextID, Chat: &tgbotapi.Chat{ID: testChatID}}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updates == nil {
		f.updates = make(chan tgbotapi.Update)
	}
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeAPI) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// texts returns the text of every sent or edited message, oldest first.
func (f *fakeAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (f *fakeAPI) lastText() string {
	t := f.texts()
	if len(t) == 0 {
		return ""
	}
	return t[len(t)-1]
}

// findButton looks up callback data by button text in everything sent so far,
// newest first.
func (f *fakeAPI) findButton(text string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		var markup *tgbotapi.InlineKeyboardMarkup
		switch m := f.sent[i].(type) {
		case tgbotapi.MessageConfig:
			if km, ok := m.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); ok {
				markup = &km
			}
		case tgbotapi.EditMessageTextConfig:
			markup = m.ReplyMarkup
		}
		if markup == nil {
			continue
		}
		for _, row := range markup.InlineKeyboard {
			for _, btn := range row {
				if btn.Text == text && btn.CallbackData != nil {
					return *btn.CallbackData, true
				}
			}
		}
	}
	return "", false
}

func (f *fakeAPI) deleted() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int
	for _, c := range f.requests {
		if d, ok := c.(tgbotapi.DeleteMessageConfig); ok {
			ids = append(ids, d.MessageID)
		}
	}
	return ids
}

type delayed struct {
	after time.Duration
	fn    func()
}

type botFixture struct {
	api     *fakeAPI
	bot     *Bot
	table   *repository.MemoryTable
	cache   *repository.Cache
	repo    *repository.SQLiteRepository
	svc     *service.FinanceService
	now     time.Time
	delayed []delayed
}

func headerRows() [][]string {
	return [][]string{{"Учёт"}, {}, {"Дата", "Имя", "Сумма", "ЗП"}, {}}
}

func newBotFixture(t *testing.T, table repository.Table, memTable *repository.MemoryTable) *botFixture {
	t.Helper()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	require.NoError(t, repository.InitDB(db))
	repo := repository.NewRepository(db)
	t.Cleanup(func() { repo.Close() })

	f := &botFixture{
		api:   &fakeAPI{},
		table: memTable,
		repo:  repo,
		now:   time.Date(2025, 3, 5, 12, 0, 0, 0, time.Local),
	}
	clock := func() time.Time { return f.now }

	f.cache = repository.NewCache(repository.NewStore(table, repository.DefaultHeaderRows))
	_ = f.cache.Reload(context.Background())

	wiz := wizard.NewManager(f.cache, wizard.Options{Now: clock, Location: time.Local})
	f.svc = service.NewService(f.cache, decimal.RequireFromString("0.10"), service.WithClock(clock))

	f.bot = NewBotWithAPI(f.api, Deps{
		Repo:    repo,
		Cache:   f.cache,
		Wizard:  wiz,
		Service: f.svc,
		Reports: NewReportGenerator(filepath.Join(t.TempDir(), "missing.ttf")),
	})
	f.bot.afterFunc = func(d time.Duration, fn func()) {
		f.delayed = append(f.delayed, delayed{after: d, fn: fn})
	}
	return f
}

func newMemoryFixture(t *testing.T, data ...[]string) *botFixture {
	t.Helper()
	table := repository.NewMemoryTable(append(headerRows(), data...)...)
	return newBotFixture(t, table, table)
}

func (f *botFixture) command(cmd string) {
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 9000,
		From:      &tgbotapi.User{ID: testUserID, UserName: "owner", FirstName: "Owner"},
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Text:      cmd,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(cmd)[0])}},
	}})
}

func (f *botFixture) text(s string) {
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 9001,
		From:      &tgbotapi.User{ID: testUserID, UserName: "owner"},
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Text:      s,
	}})
}

func (f *botFixture) click(data string) {
	f.bot.HandleUpdate(context.Background(), tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb",
		From: &tgbotapi.User{ID: testUserID, UserName: "owner"},
		Message: &tgbotapi.Message{
			MessageID: f.bot.menu(testChatID),
			Chat:      &tgbotapi.Chat{ID: testChatID},
		},
		Data: data,
	}})
}

func (f *botFixture) clickButton(t *testing.T, text string) {
	t.Helper()
	data, ok := f.api.findButton(text)
	require.True(t, ok, "button %q not found", text)
	f.click(data)
}

func (f *botFixture) dataRows(t *testing.T) [][]string {
	t.Helper()
	rows, err := f.table.Rows(context.Background())
	require.NoError(t, err)
	return rows[repository.DefaultHeaderRows:]
}

func TestStartRegistersChatAndShowsMenu(t *testing.T) {
	f := newMemoryFixture(t, []string{"01.03.2025", "Анна", "100"})

	f.command("/start")

	assert.Contains(t, f.api.lastText(), "Главное меню")
	assert.NotZero(t, f.bot.menu(testChatID))
	_, ok := f.api.findButton("📅 2025")
	assert.True(t, ok)

	chats, err := f.repo.GetAllChats()
	require.NoError(t, err)
	require.Len(t, chats, 1)
	assert.Equal(t, testChatID, chats[0].ChatID)
	assert.Equal(t, "owner", chats[0].Username)
}

func TestStartHandlesUpdatesAndStopsPolling(t *testing.T) {
	f := newMemoryFixture(t)
	// Start gets the same channel
	f.api.GetUpdatesChan(tgbotapi.UpdateConfig{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.bot.Start(ctx)
		close(done)
	}()

	cmd := "/start"
	f.api.updates <- tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: testUserID, UserName: "owner"},
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Text:      cmd,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
	assert.Equal(t, 1, f.api.stopCount())
	assert.Contains(t, f.api.lastText(), "Главное меню")
}

func TestAddRecordThroughButtons(t *testing.T) {
	f := newMemoryFixture(t)
	f.command("/start")

	f.clickButton(t, "➕ Запись")
	assert.Contains(t, f.api.lastText(), "Введите дату")

	f.clickButton(t, "Сегодня")
	assert.Contains(t, f.api.lastText(), "Введите имя")

	f.text("Иван")
	assert.Contains(t, f.api.lastText(), "Введите сумму")

	f.text("1500,5")

	rows := f.dataRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "05.03.2025", rows[0][0])
	assert.Equal(t, "Иван", rows[0][1])
	assert.Equal(t, "1500,5", rows[0][2])

	texts := f.api.texts()
	var notice string
	for _, s := range texts {
		if strings.HasPrefix(s, "✅ Добавлено") {
			notice = s
		}
	}
	assert.Contains(t, notice, "Иван")

	undoData, ok := f.api.findButton("↺ Отменить")
	require.True(t, ok)
	assert.Equal(t, "undo_5", undoData)

	require.Len(t, f.delayed, 1)
	assert.Equal(t, wizard.DefaultUndoWindow, f.delayed[0].after)

	// the day view follows the commit
	assert.Contains(t, f.api.lastText(), "05.03.2025")
}

func TestInvalidAmountRepromptsWithHint(t *testing.T) {
	f := newMemoryFixture(t)
	f.command("/start")
	f.clickButton(t, "➕ Запись")
	f.text("05.03.2025")
	f.text("Иван")

	f.text("много")
	assert.Contains(t, f.api.lastText(), "Нужно число")
	assert.Empty(t, f.dataRows(t))

	f.text("10")
	assert.Len(t, f.dataRows(t), 1)
}

func TestInvalidDateRepromptsWithHint(t *testing.T) {
	f := newMemoryFixture(t)
	f.command("/start")
	f.clickButton(t, "➕ Запись")

	f.text("32.13.2025")
	assert.Contains(t, f.api.lastText(), "Неверный формат даты")
	assert.Contains(t, f.api.lastText(), "Введите дату")
}

func TestUndoWithinWindowRemovesRow(t *testing.T) {
	f := newMemoryFixture(t, []string{"01.03.2025", "Анна", "100"})
	f.command("/start")
	f.clickButton(t, "➕ Запись")
	f.clickButton(t, "Сегодня")
	f.text("Иван")
	f.text("200")
	require.Len(t, f.dataRows(t), 2)

	f.now = f.now.Add(9 * time.Second)
	f.clickButton(t, "↺ Отменить")

	rows := f.dataRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "Анна", rows[0][1])
}

func TestUndoAfterWindowIsRejected(t *testing.T) {
	f := newMemoryFixture(t)
	f.command("/start")
	f.clickButton(t, "➕ Запись")
	f.clickButton(t, "Сегодня")
	f.text("Иван")
	f.text("200")

	f.now = f.now.Add(wizard.DefaultUndoWindow)
	f.clickButton(t, "↺ Отменить")

	assert.Equal(t, "⏱ Время вышло", f.api.lastText())
	assert.Len(t, f.dataRows(t), 1)
}

func TestEditAndUndoEdit(t *testing.T) {
	f := newMemoryFixture(t, []string{"05.03.2025", "Анна", "100"})
	f.command("/start")
	f.click(DayAction(time.Date(2025, 3, 5, 0, 0, 0, 0, time.Local)).Data())

	f.clickButton(t, "✏️1")
	assert.Contains(t, f.api.lastText(), "старое: Анна")
	f.text("Мария")
	assert.Contains(t, f.api.lastText(), "старое:")
	f.text("250")

	rows := f.dataRows(t)
	assert.Equal(t, "Мария", rows[0][1])
	assert.Equal(t, "250", rows[0][2])

	undoData, ok := f.api.findButton("↺ Отменить")
	require.True(t, ok)
	assert.Equal(t, "undoedit_5", undoData)

	f.click(undoData)
	rows = f.dataRows(t)
	assert.Equal(t, "Анна", rows[0][1])
	assert.Equal(t, "100", rows[0][2])
}

func TestDeleteRowFromDayView(t *testing.T) {
	f := newMemoryFixture(t,
		[]string{"05.03.2025", "Анна", "100"},
		[]string{"05.03.2025", "Иван", "200"},
	)
	f.command("/start")
	f.click(DayAction(time.Date(2025, 3, 5, 0, 0, 0, 0, time.Local)).Data())

	f.clickButton(t, "❌2")

	rows := f.dataRows(t)
	require.Len(t, rows, 1)
	assert.Equal(t, "Анна", rows[0][1])
}

func TestDeleteStaleRowIsRefused(t *testing.T) {
	f := newMemoryFixture(t, []string{"05.03.2025", "Анна", "100"})
	f.command("/start")

	f.click(DeleteRowAction(5, time.Date(2025, 3, 6, 0, 0, 0, 0, time.Local)).Data())

	assert.Len(t, f.dataRows(t), 1)
	assert.Contains(t, f.api.texts(), "⚠️ Запись не найдена, обновите меню")
}

func TestDeleteRowShiftedInSheetIsRefused(t *testing.T) {
	f := newMemoryFixture(t,
		[]string{"05.03.2025", "Анна", "100"},
		[]string{"05.03.2025", "Иван", "200"},
		[]string{"05.03.2025", "Петр", "300"},
	)
	f.command("/start")
	f.click(DayAction(time.Date(2025, 3, 5, 0, 0, 0, 0, time.Local)).Data())
	// the first row is removed by hand in the sheet, the menu still shows it
	require.NoError(t, f.table.DeleteRow(context.Background(), 5))

	f.clickButton(t, "❌2")

	assert.Contains(t, f.api.texts(), "⚠️ Ошибка: запись уже изменилась, обновите меню")
	rows := f.dataRows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "Иван", rows[0][1])
	assert.Equal(t, "Петр", rows[1][1])
}

func TestUndoRefusesShiftedRow(t *testing.T) {
	f := newMemoryFixture(t,
		[]string{"01.03.2025", "Анна", "100"},
		[]string{"10.03.2025", "Петр", "300"},
	)
	f.command("/start")
	f.clickButton(t, "➕ Запись")
	f.clickButton(t, "Сегодня")
	f.text("Иван")
	f.text("200")
	require.Len(t, f.dataRows(t), 3)

	require.NoError(t, f.table.DeleteRow(context.Background(), 5))
	f.clickButton(t, "↺ Отменить")

	assert.Equal(t, "⚠️ Ошибка: запись уже изменилась, обновите меню", f.api.lastText())
	rows := f.dataRows(t)
	require.Len(t, rows, 2)
	assert.Equal(t, "Иван", rows[0][1])
	assert.Equal(t, "Петр", rows[1][1])
}

func TestBackReturnsToPreviousView(t *testing.T) {
	f := newMemoryFixture(t, []string{"05.03.2025", "Анна", "100"})
	f.command("/start")

	f.clickButton(t, "📅 2025")
	f.click(MonthAction("2025-03").Data())
	require.Equal(t, 3, f.bot.navDepth(testChatID))

	f.click(Action{Kind: ActionBack}.Data())
	assert.Equal(t, 2, f.bot.navDepth(testChatID))

	_, ok := f.api.findButton("Март")
	assert.True(t, ok)

	f.clickButton(t, "🏠 Главное")
	assert.Equal(t, 1, f.bot.navDepth(testChatID))
	assert.Contains(t, f.api.lastText(), "Главное меню")
}

func TestCancelDropsDialog(t *testing.T) {
	f := newMemoryFixture(t)
	f.command("/start")
	f.clickButton(t, "➕ Запись")

	f.command("/cancel")
	assert.Equal(t, "🚫 Ввод отменён", f.api.lastText())

	before := len(f.api.texts())
	f.text("Иван")
	assert.Len(t, f.api.texts(), before)

	f.command("/cancel")
	assert.Equal(t, "Нечего отменять", f.api.lastText())
}

func TestDegradedStoreRefusesWrites(t *testing.T) {
	f := newBotFixture(t, nil, nil)
	f.command("/start")
	assert.Contains(t, f.api.lastText(), "Таблица недоступна")

	f.clickButton(t, "💵 Зарплата")
	assert.Contains(t, f.api.lastText(), "сумму зарплаты")

	f.text("100")
	assert.Equal(t, "⚠️ таблица недоступна, запись не сохранена", f.api.lastText())
	assert.Empty(t, f.delayed)
}

func TestWizardMessagesAreCleanedUp(t *testing.T) {
	f := newMemoryFixture(t)
	f.command("/start")
	f.clickButton(t, "➕ Запись")
	prompt := f.bot.menu(testChatID) + 1

	f.text("05.03.2025")

	deleted := f.api.deleted()
	assert.Contains(t, deleted, 9001)
	assert.Contains(t, deleted, prompt)
}

func TestPDFWithoutFontReportsError(t *testing.T) {
	f := newMemoryFixture(t, []string{"05.03.2025", "Анна", "100"})
	f.command("/start")

	f.click(Action{Kind: ActionPDF, Period: "2025-03"}.Data())

	assert.Equal(t, "⚠️ Ошибка: не найден шрифт для PDF", f.api.lastText())
}

func TestCSVIsSentAsDocument(t *testing.T) {
	f := newMemoryFixture(t, []string{"05.03.2025", "Анна", "100"})
	f.command("/start")

	f.click(Action{Kind: ActionCSV, Period: "2025-03"}.Data())

	f.api.mu.Lock()
	last := f.api.sent[len(f.api.sent)-1]
	f.api.mu.Unlock()
	doc, ok := last.(tgbotapi.DocumentConfig)
	require.True(t, ok)
	file, ok := doc.File.(tgbotapi.FileBytes)
	require.True(t, ok)
	assert.Equal(t, "records_2025-03.csv", file.Name)
	assert.Contains(t, string(file.Bytes), "05.03.2025,Анна,100,")
}

func TestReminderJobSendsToEnabledChats(t *testing.T) {
	f := newMemoryFixture(t)
	require.NoError(t, f.repo.RegisterChat(repository.Chat{ChatID: 1, UserID: 1}))
	require.NoError(t, f.repo.RegisterChat(repository.Chat{ChatID: 2, UserID: 2}))
	require.NoError(t, f.repo.SetReminders(2, false))

	job := f.bot.ReminderJob()
	assert.Equal(t, "reminder", job.Name())
	require.NoError(t, job.Run())

	assert.Equal(t, []string{reminderText}, f.api.texts())
}

func TestRemindersCommandAndMenuToggle(t *testing.T) {
	f := newMemoryFixture(t)
	f.command("/start")

	reminderChats := func() []int64 {
		ids, err := f.repo.GetReminderChats()
		require.NoError(t, err)
		return ids
	}
	require.Equal(t, []int64{testChatID}, reminderChats())

	f.command("/reminders off")
	assert.Equal(t, "🔕 Напоминания выключены", f.api.lastText())
	assert.Empty(t, reminderChats())

	f.command("/reminders on")
	assert.Equal(t, "🔔 Напоминания включены", f.api.lastText())
	assert.Equal(t, []int64{testChatID}, reminderChats())

	f.command("/reminders")
	assert.Equal(t, "🔕 Напоминания выключены", f.api.lastText())
	assert.Empty(t, reminderChats())

	f.command("/reminders maybe")
	assert.Contains(t, f.api.lastText(), "/reminders on")
	assert.Empty(t, reminderChats())

	f.command("/start")
	f.clickButton(t, "🔔 Напоминания")
	assert.Equal(t, "🔔 Напоминания включены", f.api.lastText())
	assert.Equal(t, []int64{testChatID}, reminderChats())

	require.NoError(t, f.bot.ReminderJob().Run())
	assert.Equal(t, reminderText, f.api.lastText())
}

func TestRemindersNeedStart(t *testing.T) {
	f := newMemoryFixture(t)
	f.command("/reminders off")
	assert.Equal(t, "Сначала отправьте /start", f.api.lastText())
}

func TestSyncJobPicksUpSheetChanges(t *testing.T) {
	f := newMemoryFixture(t)
	job := NewSyncJob(context.Background(), f.cache, f.bot.wizard, time.Second)
	assert.Equal(t, "sync", job.Name())

	require.NoError(t, f.table.InsertRow(context.Background(), 5, []interface{}{"05.03.2025", "Анна", "100", ""}))
	require.NoError(t, job.Run())

	day := f.svc.Day("2025-03", time.Date(2025, 3, 5, 0, 0, 0, 0, time.Local))
	require.Len(t, day.Records, 1)
	assert.Equal(t, "Анна", day.Records[0].Label)
}

func TestSyncJobToleratesMissingStore(t *testing.T) {
	f := newBotFixture(t, nil, nil)
	job := NewSyncJob(context.Background(), f.cache, f.bot.wizard, time.Second)
	assert.NoError(t, job.Run())
}
