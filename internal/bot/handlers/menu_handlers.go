package handlers

import (
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/ledger"
	"github.com/IlyaMakar/cashbook_bot/internal/service"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
)

const maxNavDepth = 30

var monthNames = [...]string{
	"Январь", "Февраль", "Март", "Апрель", "Май", "Июнь",
	"Июль", "Август", "Сентябрь", "Октябрь", "Ноябрь", "Декабрь",
}

var monthNamesGenitive = [...]string{
	"января", "февраля", "марта", "апреля", "мая", "июня",
	"июля", "августа", "сентября", "октября", "ноября", "декабря",
}

type navEntry struct {
	action Action
	label  string
}

type chatState struct {
	nav     []navEntry
	menuID  int
	prompts map[int64]int
}

func (b *Bot) state(chatID int64) *chatState {
	st, ok := b.chats[chatID]
	if !ok {
		st = &chatState{
			nav:     []navEntry{{action: MainAction(), label: "Главное"}},
			prompts: make(map[int64]int),
		}
		b.chats[chatID] = st
	}
	return st
}

func (b *Bot) setMenu(chatID int64, messageID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state(chatID).menuID = messageID
}

func (b *Bot) menu(chatID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state(chatID).menuID
}

func (b *Bot) setPrompt(chatID, userID int64, messageID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state(chatID).prompts[userID] = messageID
}

func (b *Bot) takePrompt(chatID, userID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(chatID)
	id := st.prompts[userID]
	delete(st.prompts, userID)
	return id
}

func (b *Bot) resetNav(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(chatID)
	st.nav = st.nav[:1]
}

// pushNav records a view. Re-opening the view on top is a no-op and the
// oldest entries above the main menu are dropped past maxNavDepth.
func (b *Bot) pushNav(chatID int64, a Action, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(chatID)
	if st.nav[len(st.nav)-1].action.Data() == a.Data() {
		return
	}
	st.nav = append(st.nav, navEntry{action: a, label: label})
	if len(st.nav) > maxNavDepth {
		st.nav = append(st.nav[:1], st.nav[len(st.nav)-maxNavDepth+1:]...)
	}
}

// replaceNav swaps the view on top, used when a view changes in place.
func (b *Bot) replaceNav(chatID int64, a Action, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(chatID)
	if len(st.nav) == 1 {
		st.nav = append(st.nav, navEntry{action: a, label: label})
		return
	}
	st.nav[len(st.nav)-1] = navEntry{action: a, label: label}
}

func (b *Bot) topNav(chatID int64) Action {
	b.mu.Lock()
	defer b.mu.Unlock()
	nav := b.state(chatID).nav
	return nav[len(nav)-1].action
}

// popNav drops the current view and returns the one below it.
func (b *Bot) popNav(chatID int64) navEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.state(chatID)
	if len(st.nav) > 1 {
		st.nav = st.nav[:len(st.nav)-1]
	}
	return st.nav[len(st.nav)-1]
}

func (b *Bot) navDepth(chatID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.state(chatID).nav)
}

func (b *Bot) navRow(chatID int64, hideBack bool) []tgbotapi.InlineKeyboardButton {
	b.mu.Lock()
	nav := b.state(chatID).nav
	prev := ""
	if len(nav) >= 2 {
		prev = nav[len(nav)-2].label
	}
	b.mu.Unlock()

	var row []tgbotapi.InlineKeyboardButton
	if !hideBack && prev != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("⬅️ "+prev, ActionBack.String()))
	}
	return append(row, tgbotapi.NewInlineKeyboardButtonData("🏠 Главное", MainAction().Data()))
}

func button(text string, a Action) tgbotapi.InlineKeyboardButton {
	return tgbotapi.NewInlineKeyboardButtonData(text, a.Data())
}

func money(d decimal.Decimal) string { return ledger.FormatAmount(d) + " $" }

func monthLabel(year int, month time.Month) string {
	return fmt.Sprintf("%s %d", monthNames[month-1], year)
}

func longDate(t time.Time) string {
	return fmt.Sprintf("%d %s %d", t.Day(), monthNamesGenitive[t.Month()-1], t.Year())
}

func rangeLabel(start, end time.Time) string {
	return ledger.FormatDate(start) + " – " + ledger.FormatDate(end)
}

// showView renders a navigable view into the menu message.
func (b *Bot) showView(chatID int64, messageID int, a Action, push bool) {
	switch a.Kind {
	case ActionMain:
		b.showMain(chatID, messageID)
	case ActionYear:
		b.showYear(chatID, messageID, a.Year, push)
	case ActionMonth:
		b.showMonth(chatID, messageID, a.Period, b.svc.DefaultFirstHalf(a.Period), push)
	case ActionToggleHalf:
		b.showMonth(chatID, messageID, a.Period, a.FirstHalf, push)
	case ActionDay:
		b.showDay(chatID, messageID, a.Date, push)
	case ActionProfit:
		b.showProfit(chatID, messageID, a.Previous, push)
	case ActionHistory:
		b.showHistory(chatID, messageID, push)
	case ActionKPI:
		b.showKPI(chatID, messageID, a.Previous, push)
	case ActionForecast:
		b.showForecast(chatID, messageID, push)
	default:
		b.showMain(chatID, messageID)
	}
}

func (b *Bot) showMain(chatID int64, messageID int) {
	b.resetNav(chatID)

	var rows [][]tgbotapi.InlineKeyboardButton
	var yearRow []tgbotapi.InlineKeyboardButton
	for _, y := range b.svc.Years() {
		yearRow = append(yearRow, button(fmt.Sprintf("📅 %d", y), YearAction(y)))
		if len(yearRow) == 3 {
			rows = append(rows, yearRow)
			yearRow = nil
		}
	}
	if len(yearRow) > 0 {
		rows = append(rows, yearRow)
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(button("📆 Сегодня", Action{Kind: ActionGoToday})),
		tgbotapi.NewInlineKeyboardRow(button("➕ Запись", Action{Kind: ActionAddRecord})),
		tgbotapi.NewInlineKeyboardRow(button("💵 Зарплата", Action{Kind: ActionAddSalary})),
		tgbotapi.NewInlineKeyboardRow(
			button("💰 Текущая ЗП", Action{Kind: ActionProfit}),
			button("💼 Прошлая ЗП", Action{Kind: ActionProfit, Previous: true}),
		),
		tgbotapi.NewInlineKeyboardRow(button("📜 История ЗП", Action{Kind: ActionHistory})),
		tgbotapi.NewInlineKeyboardRow(
			button("📊 KPI тек.", Action{Kind: ActionKPI}),
			button("📊 KPI прош.", Action{Kind: ActionKPI, Previous: true}),
		),
		tgbotapi.NewInlineKeyboardRow(button("📈 Прогноз", Action{Kind: ActionForecast})),
		tgbotapi.NewInlineKeyboardRow(button("🔔 Напоминания", Action{Kind: ActionReminders})),
	)

	text := "<b>📊 Главное меню</b>"
	if !b.svc.Available() {
		text += "\n⚠️ Таблица недоступна, данные могут быть устаревшими"
	}
	b.render(chatID, messageID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) showYear(chatID int64, messageID int, year int, push bool) {
	if push {
		b.pushNav(chatID, YearAction(year), fmt.Sprint(year))
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for q := 0; q < 3; q++ {
		var row []tgbotapi.InlineKeyboardButton
		for m := q*4 + 1; m <= q*4+4; m++ {
			period := ledger.PeriodKey(time.Date(year, time.Month(m), 1, 0, 0, 0, 0, time.Local))
			row = append(row, button(monthNames[m-1], MonthAction(period)))
		}
		rows = append(rows, row)
	}
	rows = append(rows, b.navRow(chatID, false))
	b.render(chatID, messageID, fmt.Sprintf("<b>📆 %d</b>", year), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) showMonth(chatID int64, messageID int, period string, firstHalf bool, push bool) {
	view, err := b.svc.MonthHalf(period, firstHalf)
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	label := monthLabel(view.Year, view.Month)
	if push {
		// switching halves replaces the month entry instead of stacking
		a := ToggleAction(period, firstHalf)
		if top := b.topNav(chatID); top.Period == period && top.Kind == ActionToggleHalf {
			b.replaceNav(chatID, a, label)
		} else {
			b.pushNav(chatID, a, label)
		}
	}

	half, toggle := "16–31", "Вторая половина"
	if firstHalf {
		half, toggle = "01–15", "Первая половина"
	}

	lines := []string{fmt.Sprintf("<b>%s · %s</b>", label, half)}
	var rows [][]tgbotapi.InlineKeyboardButton
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(toggle, ToggleAction(period, !firstHalf))))
	if len(view.Days) == 0 {
		lines = append(lines, "Нет записей")
	}
	for _, d := range view.Days {
		lines = append(lines, fmt.Sprintf("%s · %s", ledger.FormatDate(d.Date), money(d.Total)))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(button(ledger.FormatDate(d.Date), DayAction(d.Date))))
	}
	lines = append(lines, "", fmt.Sprintf("<b>Итого: %s</b>", money(view.Total)))

	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(
			button("📄 PDF", Action{Kind: ActionPDF, Period: period}),
			button("📑 CSV", Action{Kind: ActionCSV, Period: period}),
		),
		b.navRow(chatID, false),
	)
	b.render(chatID, messageID, strings.Join(lines, "\n"), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) showDay(chatID int64, messageID int, date time.Time, push bool) {
	date = ledger.Day(date)
	if push {
		b.pushNav(chatID, DayAction(date), ledger.FormatDate(date))
	}
	view := b.svc.Day(ledger.PeriodKey(date), date)

	lines := []string{fmt.Sprintf("<b>%s</b>", ledger.FormatDate(date))}
	var rows [][]tgbotapi.InlineKeyboardButton
	if len(view.Records) == 0 {
		lines = append(lines, "Нет записей")
	}
	for i, r := range view.Records {
		lines = append(lines, fmt.Sprintf("%d. %s · %s", i+1, html.EscapeString(r.Label), money(r.Amount)))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			button(fmt.Sprintf("❌%d", i+1), DeleteRowAction(r.RowID, date)),
			button(fmt.Sprintf("✏️%d", i+1), EditRowAction(r.RowID, date)),
		))
	}
	lines = append(lines, "", fmt.Sprintf("<b>Итого: %s</b>", money(view.Total)))

	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(button("➕ Запись", AddOnDayAction(date))),
		b.navRow(chatID, false),
	)
	b.render(chatID, messageID, strings.Join(lines, "\n"), tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) halfBounds(previous bool) (time.Time, time.Time) {
	if previous {
		return service.PreviousHalf(b.svc.Today())
	}
	return service.CurrentHalf(b.svc.Today())
}

func (b *Bot) showProfit(chatID int64, messageID int, previous bool, push bool) {
	title := "💰 Текущая ЗП"
	if previous {
		title = "💼 Прошлая ЗП"
	}
	if push {
		b.pushNav(chatID, Action{Kind: ActionProfit, Previous: previous}, title)
	}

	p := b.svc.Profit(b.halfBounds(previous))
	text := fmt.Sprintf("%s (%s)\nОборот: %s\n<b>%s%%: %s</b>",
		title, rangeLabel(p.Start, p.End), money(p.Turnover),
		b.svc.Rate().Shift(2).String(), money(p.Salary))
	b.render(chatID, messageID, text, tgbotapi.NewInlineKeyboardMarkup(b.navRow(chatID, true)))
}

func (b *Bot) showHistory(chatID int64, messageID int, push bool) {
	if push {
		b.pushNav(chatID, Action{Kind: ActionHistory}, "История ЗП")
	}

	hist := b.svc.SalaryHistory()
	text := "История пуста"
	if len(hist) > 0 {
		lines := []string{"<b>📜 История ЗП</b>"}
		for _, r := range hist {
			lines = append(lines, fmt.Sprintf("• %s — %s", longDate(r.Date), money(r.Amount)))
		}
		text = strings.Join(lines, "\n")
	}
	b.render(chatID, messageID, text, tgbotapi.NewInlineKeyboardMarkup(b.navRow(chatID, true)))
}

func (b *Bot) showKPI(chatID int64, messageID int, previous bool, push bool) {
	title := "📊 KPI текущего"
	if previous {
		title = "📊 KPI прошлого"
	}
	if push {
		b.pushNav(chatID, Action{Kind: ActionKPI, Previous: previous}, title)
	}

	k, err := b.svc.KPI(b.halfBounds(previous))
	if errors.Is(err, service.ErrNoData) {
		b.render(chatID, messageID, "Нет данных", tgbotapi.NewInlineKeyboardMarkup(b.navRow(chatID, true)))
		return
	}
	text := strings.Join([]string{
		fmt.Sprintf("%s (%s)", title, rangeLabel(k.Start, k.End)),
		"• Оборот: " + money(k.Turnover),
		fmt.Sprintf("• ЗП %s%%: %s", b.svc.Rate().Shift(2).String(), money(k.Salary)),
		fmt.Sprintf("• Заполнено дней: %d/%d", k.FilledDays, k.HalfDays),
		"• Ср/день: " + money(k.PerDay),
	}, "\n")
	b.render(chatID, messageID, text, tgbotapi.NewInlineKeyboardMarkup(b.navRow(chatID, true)))
}

func (b *Bot) showForecast(chatID int64, messageID int, push bool) {
	title := "📈 Прогноз"
	if push {
		b.pushNav(chatID, Action{Kind: ActionForecast}, title)
	}

	f, err := b.svc.Forecast(b.svc.Today())
	if errors.Is(err, service.ErrNoData) {
		b.render(chatID, messageID, "Нет данных для прогноза", tgbotapi.NewInlineKeyboardMarkup(b.navRow(chatID, true)))
		return
	}
	method := "по тренду"
	if !f.Regression {
		method = "по среднему за день"
	}
	text := strings.Join([]string{
		fmt.Sprintf("%s (%s)", title, rangeLabel(f.Start, f.End)),
		"• Сейчас: " + money(f.Actual),
		fmt.Sprintf("• К концу периода (%s): %s", method, money(f.Projected)),
		"• Ожидаемая ЗП: " + money(f.Salary),
	}, "\n")
	b.render(chatID, messageID, text, tgbotapi.NewInlineKeyboardMarkup(b.navRow(chatID, true)))
}
