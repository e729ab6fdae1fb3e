package service

import (
	"errors"
	"sort"
	"time"

	"github.com/IlyaMakar/cashbook_bot/internal/ledger"
	"github.com/IlyaMakar/cashbook_bot/internal/repository"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

var ErrNoData = errors.New("no data for period")

// DefaultSalaryRate is the share of turnover paid as salary.
var DefaultSalaryRate = decimal.NewFromFloat(0.10)

type Source interface {
	Snapshot() repository.Snapshot
}

type FinanceService struct {
	src  Source
	rate decimal.Decimal
	loc  *time.Location
	now  func() time.Time
}

type Option func(*FinanceService)

func WithClock(now func() time.Time) Option {
	return func(s *FinanceService) { s.now = now }
}

func WithLocation(loc *time.Location) Option {
	return func(s *FinanceService) { s.loc = loc }
}

func NewService(src Source, rate decimal.Decimal, opts ...Option) *FinanceService {
	s := &FinanceService{src: src, rate: rate, loc: time.Local, now: time.Now}
	if !rate.IsPositive() {
		s.rate = DefaultSalaryRate
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *FinanceService) Rate() decimal.Decimal { return s.rate }

// Today is the current calendar day in the configured zone.
func (s *FinanceService) Today() time.Time {
	return ledger.Day(s.now().In(s.loc))
}

type DayTotal struct {
	Date  time.Time
	Total decimal.Decimal
}

type MonthView struct {
	Period    string
	Year      int
	Month     time.Month
	FirstHalf bool
	Days      []DayTotal
	Records   []ledger.Record
	Total     decimal.Decimal
}

type DayView struct {
	Period  string
	Date    time.Time
	Records []ledger.Record
	Total   decimal.Decimal
}

type Profit struct {
	Start    time.Time
	End      time.Time
	Turnover decimal.Decimal
	Salary   decimal.Decimal
}

type KPI struct {
	Start      time.Time
	End        time.Time
	Turnover   decimal.Decimal
	Salary     decimal.Decimal
	FilledDays int
	HalfDays   int
	PerDay     decimal.Decimal
}

type Forecast struct {
	Start      time.Time
	End        time.Time
	Actual     decimal.Decimal
	Projected  decimal.Decimal
	Salary     decimal.Decimal
	FilledDays int
	// Regression is false when the projection fell back to the daily average.
	Regression bool
}

type PeriodTotal struct {
	Period   string
	Turnover decimal.Decimal
	Salary   decimal.Decimal
	Records  int
}

// CurrentHalf returns the 1st..today when today is on or before the 15th and
// the 16th..today otherwise.
func CurrentHalf(now time.Time) (time.Time, time.Time) {
	d := ledger.Day(now)
	if d.Day() <= 15 {
		return d.AddDate(0, 0, 1-d.Day()), d
	}
	return d.AddDate(0, 0, 16-d.Day()), d
}

// PreviousHalf returns the closed half-month before the current one.
func PreviousHalf(now time.Time) (time.Time, time.Time) {
	d := ledger.Day(now)
	first := d.AddDate(0, 0, 1-d.Day())
	if d.Day() <= 15 {
		last := first.AddDate(0, 0, -1)
		return last.AddDate(0, 0, 16-last.Day()), last
	}
	return first, first.AddDate(0, 0, 14)
}

// halfEnd is the last day of the half that start opens.
func halfEnd(start time.Time) time.Time {
	if start.Day() <= 15 {
		return start.AddDate(0, 0, 15-start.Day())
	}
	return start.AddDate(0, 1, -start.Day())
}

func inRange(d, start, end time.Time) bool {
	return !d.Before(start) && !d.After(end)
}

func (s *FinanceService) transactions(start, end time.Time) []ledger.Record {
	var out []ledger.Record
	for _, r := range s.src.Snapshot().Periods.All() {
		if r.Kind == ledger.KindTransaction && inRange(r.Date, start, end) {
			out = append(out, r)
		}
	}
	return out
}

func sum(records []ledger.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.Amount)
	}
	return total
}

func dailyTotals(records []ledger.Record) []DayTotal {
	byDay := make(map[time.Time]decimal.Decimal)
	for _, r := range records {
		byDay[r.Date] = byDay[r.Date].Add(r.Amount)
	}
	days := make([]DayTotal, 0, len(byDay))
	for d, t := range byDay {
		days = append(days, DayTotal{Date: d, Total: t})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date.Before(days[j].Date) })
	return days
}

// DefaultFirstHalf tells which half of period opens by default: the first one
// only for the current month while today is on or before the 15th.
func (s *FinanceService) DefaultFirstHalf(period string) bool {
	today := s.Today()
	return ledger.PeriodKey(today) == period && today.Day() <= 15
}

// MonthHalf lists the transactions of one half of a month with per-day totals.
func (s *FinanceService) MonthHalf(period string, firstHalf bool) (MonthView, error) {
	year, month, err := ledger.ParsePeriod(period)
	if err != nil {
		return MonthView{}, err
	}
	v := MonthView{Period: period, Year: year, Month: month, FirstHalf: firstHalf}
	for _, r := range s.src.Snapshot().Periods[period] {
		if r.Kind != ledger.KindTransaction || (r.Date.Day() <= 15) != firstHalf {
			continue
		}
		v.Records = append(v.Records, r)
	}
	v.Days = dailyTotals(v.Records)
	v.Total = sum(v.Records)
	return v, nil
}

// Month is the whole month, used by the exports.
func (s *FinanceService) Month(period string) (MonthView, error) {
	year, month, err := ledger.ParsePeriod(period)
	if err != nil {
		return MonthView{}, err
	}
	v := MonthView{Period: period, Year: year, Month: month}
	v.Records = append(v.Records, s.src.Snapshot().Periods[period]...)
	var tx []ledger.Record
	for _, r := range v.Records {
		if r.Kind == ledger.KindTransaction {
			tx = append(tx, r)
		}
	}
	v.Days = dailyTotals(tx)
	v.Total = sum(tx)
	return v, nil
}

func (s *FinanceService) Day(period string, date time.Time) DayView {
	date = ledger.Day(date)
	v := DayView{Period: period, Date: date}
	for _, r := range s.src.Snapshot().Periods[period] {
		if r.Kind == ledger.KindTransaction && r.Date.Equal(date) {
			v.Records = append(v.Records, r)
		}
	}
	v.Total = sum(v.Records)
	return v
}

func (s *FinanceService) Profit(start, end time.Time) Profit {
	turnover := sum(s.transactions(start, end))
	return Profit{Start: start, End: end, Turnover: turnover, Salary: turnover.Mul(s.rate)}
}

func (s *FinanceService) KPI(start, end time.Time) (KPI, error) {
	tx := s.transactions(start, end)
	if len(tx) == 0 {
		return KPI{}, ErrNoData
	}
	turnover := sum(tx)
	salary := turnover.Mul(s.rate)
	filled := len(dailyTotals(tx))
	return KPI{
		Start:      start,
		End:        end,
		Turnover:   turnover,
		Salary:     salary,
		FilledDays: filled,
		HalfDays:   halfEnd(start).Day() - start.Day() + 1,
		PerDay:     salary.Div(decimal.NewFromInt(int64(filled))),
	}, nil
}

func (s *FinanceService) SalaryHistory() []ledger.Record {
	var out []ledger.Record
	for _, r := range s.src.Snapshot().Periods.All() {
		if r.Kind == ledger.KindSalary {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Forecast projects the turnover of the current half-month by fitting a line
// through its cumulative daily totals.
func (s *FinanceService) Forecast(now time.Time) (Forecast, error) {
	start, today := CurrentHalf(now.In(s.loc))
	end := halfEnd(start)
	days := dailyTotals(s.transactions(start, today))
	if len(days) == 0 {
		return Forecast{}, ErrNoData
	}

	f := Forecast{Start: start, End: end, FilledDays: len(days)}
	for _, d := range days {
		f.Actual = f.Actual.Add(d.Total)
	}

	halfLen := float64(end.Day() - start.Day() + 1)
	if len(days) < 2 {
		f.Projected = f.Actual.Div(decimal.NewFromInt(int64(len(days)))).Mul(decimal.NewFromFloat(halfLen))
	} else {
		xs := make([]float64, len(days))
		ys := make([]float64, len(days))
		cum := decimal.Zero
		for i, d := range days {
			cum = cum.Add(d.Total)
			xs[i] = float64(d.Date.Day() - start.Day() + 1)
			ys[i] = cum.InexactFloat64()
		}
		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		f.Projected = decimal.NewFromFloat(alpha + beta*halfLen).Round(2)
		f.Regression = true
	}
	if f.Projected.LessThan(f.Actual) {
		f.Projected = f.Actual
	}
	f.Salary = f.Projected.Mul(s.rate)
	return f, nil
}

// Years lists every year with records plus the current one, ascending.
func (s *FinanceService) Years() []int {
	seen := map[int]bool{s.Today().Year(): true}
	for period := range s.src.Snapshot().Periods {
		if y, _, err := ledger.ParsePeriod(period); err == nil {
			seen[y] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// Totals summarizes every period, newest first.
func (s *FinanceService) Totals() []PeriodTotal {
	periods := s.src.Snapshot().Periods
	out := make([]PeriodTotal, 0, len(periods))
	for key, recs := range periods {
		t := PeriodTotal{Period: key, Records: len(recs)}
		for _, r := range recs {
			if r.Kind == ledger.KindSalary {
				t.Salary = t.Salary.Add(r.Amount)
			} else {
				t.Turnover = t.Turnover.Add(r.Amount)
			}
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period > out[j].Period })
	return out
}

func (s *FinanceService) Available() bool {
	return s.src.Snapshot().Available
}
