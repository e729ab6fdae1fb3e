package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/ledger"
)

var ErrUnknownAction = errors.New("unknown callback action")

type ActionKind int

const (
	ActionUnknown ActionKind = iota
	ActionMain
	ActionBack
	ActionYear
	ActionMonth
	ActionToggleHalf
	ActionDay
	ActionAddOnDay
	ActionAddRecord
	ActionAddSalary
	ActionToday
	ActionGoToday
	ActionDeleteRow
	ActionEditRow
	ActionUndo
	ActionUndoEdit
	ActionProfit
	ActionHistory
	ActionKPI
	ActionForecast
	ActionPDF
	ActionCSV
	ActionReminders
)

var verbs = map[ActionKind]string{
	ActionMain:       "main",
	ActionBack:       "back",
	ActionYear:       "year",
	ActionMonth:      "mon",
	ActionToggleHalf: "tgl",
	ActionDay:        "day",
	ActionAddOnDay:   "add",
	ActionAddRecord:  "addrec",
	ActionAddSalary:  "addsal",
	ActionToday:      "today",
	ActionGoToday:    "gotoday",
	ActionDeleteRow:  "drow",
	ActionEditRow:    "edit",
	ActionUndo:       "undo",
	ActionUndoEdit:   "undoedit",
	ActionProfit:     "profit",
	ActionHistory:    "hist",
	ActionKPI:        "kpi",
	ActionForecast:   "fcst",
	ActionPDF:        "pdf",
	ActionCSV:        "csv",
	ActionReminders:  "rem",
}

var kindsByVerb = func() map[string]ActionKind {
	m := make(map[string]ActionKind, len(verbs))
	for k, v := range verbs {
		m[v] = k
	}
	return m
}()

func (k ActionKind) String() string {
	if v, ok := verbs[k]; ok {
		return v
	}
	return "unknown"
}

// Action is a parsed callback payload. Only the fields its Kind uses are set.
type Action struct {
	Kind      ActionKind
	Year      int
	Period    string
	Date      time.Time
	Row       int
	FirstHalf bool
	Previous  bool
}

func MainAction() Action { return Action{Kind: ActionMain} }

func YearAction(year int) Action { return Action{Kind: ActionYear, Year: year} }

func MonthAction(period string) Action { return Action{Kind: ActionMonth, Period: period} }

func ToggleAction(period string, firstHalf bool) Action {
	return Action{Kind: ActionToggleHalf, Period: period, FirstHalf: firstHalf}
}

func DayAction(date time.Time) Action {
	return Action{Kind: ActionDay, Period: ledger.PeriodKey(date), Date: date}
}

func AddOnDayAction(date time.Time) Action {
	return Action{Kind: ActionAddOnDay, Period: ledger.PeriodKey(date), Date: date}
}

func DeleteRowAction(row int, date time.Time) Action {
	return Action{Kind: ActionDeleteRow, Row: row, Period: ledger.PeriodKey(date), Date: date}
}

func EditRowAction(row int, date time.Time) Action {
	return Action{Kind: ActionEditRow, Row: row, Period: ledger.PeriodKey(date), Date: date}
}

func UndoAction(row int) Action { return Action{Kind: ActionUndo, Row: row} }

func UndoEditAction(row int) Action { return Action{Kind: ActionUndoEdit, Row: row} }

// Data encodes the action as callback data. ParseAction(a.Data()) == a.
func (a Action) Data() string {
	verb := a.Kind.String()
	switch a.Kind {
	case ActionYear:
		return fmt.Sprintf("%s_%d", verb, a.Year)
	case ActionMonth, ActionPDF, ActionCSV:
		return verb + "_" + a.Period
	case ActionToggleHalf:
		half := "second"
		if a.FirstHalf {
			half = "first"
		}
		return verb + "_" + a.Period + "_" + half
	case ActionDay, ActionAddOnDay:
		return verb + "_" + a.Period + "_" + ledger.FormatDate(a.Date)
	case ActionDeleteRow, ActionEditRow:
		return fmt.Sprintf("%s_%d_%s_%s", verb, a.Row, a.Period, ledger.FormatDate(a.Date))
	case ActionUndo, ActionUndoEdit:
		return fmt.Sprintf("%s_%d", verb, a.Row)
	case ActionProfit, ActionKPI:
		if a.Previous {
			return verb + "_prev"
		}
		return verb + "_now"
	default:
		return verb
	}
}

// ParseAction decodes callback data of the form verb_arg1_arg2.
func ParseAction(data string) (Action, error) {
	verb, rest, _ := strings.Cut(data, "_")
	kind, ok := kindsByVerb[verb]
	if !ok {
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, data)
	}
	a := Action{Kind: kind}
	args := []string{}
	if rest != "" {
		args = strings.Split(rest, "_")
	}

	bad := func() (Action, error) {
		return Action{}, fmt.Errorf("%w: malformed %q", ErrUnknownAction, data)
	}
	want := func(n int) bool { return len(args) == n }

	var err error
	switch kind {
	case ActionMain, ActionBack, ActionAddRecord, ActionAddSalary, ActionToday,
		ActionGoToday, ActionHistory, ActionForecast, ActionReminders:
		if !want(0) {
			return bad()
		}

	case ActionYear:
		if !want(1) {
			return bad()
		}
		if a.Year, err = strconv.Atoi(args[0]); err != nil || a.Year < 1900 || a.Year > 9999 {
			return bad()
		}

	case ActionMonth, ActionPDF, ActionCSV:
		if !want(1) || !validPeriod(args[0]) {
			return bad()
		}
		a.Period = args[0]

	case ActionToggleHalf:
		if !want(2) || !validPeriod(args[0]) {
			return bad()
		}
		a.Period = args[0]
		switch args[1] {
		case "first":
			a.FirstHalf = true
		case "second":
		default:
			return bad()
		}

	case ActionDay, ActionAddOnDay:
		if !want(2) {
			return bad()
		}
		if a.Period, a.Date, err = periodDate(args[0], args[1]); err != nil {
			return bad()
		}

	case ActionDeleteRow, ActionEditRow:
		if !want(3) {
			return bad()
		}
		if a.Row, err = strconv.Atoi(args[0]); err != nil || a.Row <= 0 {
			return bad()
		}
		if a.Period, a.Date, err = periodDate(args[1], args[2]); err != nil {
			return bad()
		}

	case ActionUndo, ActionUndoEdit:
		if !want(1) {
			return bad()
		}
		if a.Row, err = strconv.Atoi(args[0]); err != nil || a.Row <= 0 {
			return bad()
		}

	case ActionProfit, ActionKPI:
		if !want(1) {
			return bad()
		}
		switch args[0] {
		case "now":
		case "prev":
			a.Previous = true
		default:
			return bad()
		}
	}
	return a, nil
}

func validPeriod(p string) bool {
	_, _, err := ledger.ParsePeriod(p)
	return err == nil
}

// periodDate parses a period and a date and checks the date lies in it.
func periodDate(period, date string) (string, time.Time, error) {
	if !validPeriod(period) {
		return "", time.Time{}, fmt.Errorf("bad period %q", period)
	}
	d, err := ledger.ParseDate(date)
	if err != nil {
		return "", time.Time{}, err
	}
	if ledger.PeriodKey(d) != period {
		return "", time.Time{}, fmt.Errorf("date %s outside %s", date, period)
	}
	return period, d, nil
}
