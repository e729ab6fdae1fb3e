// Package ledger holds the record model shared by the store, the wizard and
// the views: dates in DD.MM.YYYY form, decimal amounts and "YYYY-MM" periods.
package ledger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "02.01.2006"

var dateRx = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)

type Kind int

const (
	KindTransaction Kind = iota + 1
	KindSalary
)

func (k Kind) String() string {
	switch k {
	case KindTransaction:
		return "transaction"
	case KindSalary:
		return "salary"
	default:
		return "unknown"
	}
}

// Record is one committed sheet row. Amount is the transaction amount for
// KindTransaction and the salary figure for KindSalary; a record never carries
// both.
type Record struct {
	Date   time.Time
	RowID  int
	Label  string
	Amount decimal.Decimal
	Kind   Kind
}

func NewTransaction(date time.Time, label string, amount decimal.Decimal) Record {
	return Record{Date: Day(date), Label: label, Amount: amount, Kind: KindTransaction}
}

func NewSalary(date time.Time, amount decimal.Decimal) Record {
	return Record{Date: Day(date), Amount: amount, Kind: KindSalary}
}

// Transaction returns the transaction amount, ok is false for salary records.
func (r Record) Transaction() (decimal.Decimal, bool) {
	if r.Kind != KindTransaction {
		return decimal.Zero, false
	}
	return r.Amount, true
}

// Salary returns the salary amount, ok is false for transactions.
func (r Record) Salary() (decimal.Decimal, bool) {
	if r.Kind != KindSalary {
		return decimal.Zero, false
	}
	return r.Amount, true
}

func (r Record) IsSalary() bool { return r.Kind == KindSalary }

func (r Record) Period() string { return PeriodKey(r.Date) }

func (r Record) DateString() string { return FormatDate(r.Date) }

// PeriodKey groups records by calendar month.
func PeriodKey(t time.Time) string {
	return fmt.Sprintf("%d-%02d", t.Year(), int(t.Month()))
}

// ParsePeriod is the inverse of PeriodKey.
func ParsePeriod(key string) (year int, month time.Month, err error) {
	t, err := time.Parse("2006-01", key)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid period %q: %w", key, err)
	}
	return t.Year(), t.Month(), nil
}

// Day truncates t to midnight in its own location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func IsDate(s string) bool {
	return dateRx.MatchString(strings.TrimSpace(s))
}

// ParseDate accepts only the literal DD.MM.YYYY form.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if !dateRx.MatchString(s) {
		return time.Time{}, fmt.Errorf("date %q is not DD.MM.YYYY", s)
	}
	t, err := time.ParseInLocation(DateLayout, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Periods is the in-memory index of the sheet, keyed by PeriodKey. Records
// keep sheet order inside a period.
type Periods map[string][]Record

func Group(records []Record) Periods {
	p := make(Periods)
	for _, r := range records {
		k := r.Period()
		p[k] = append(p[k], r)
	}
	return p
}

// All returns every record ordered by row position.
func (p Periods) All() []Record {
	var out []Record
	for _, recs := range p {
		out = append(out, recs...)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out
}

func (p Periods) Find(rowID int) (Record, bool) {
	for _, recs := range p {
		for _, r := range recs {
			if r.RowID == rowID {
				return r, true
			}
		}
	}
	return Record{}, false
}

func (p Periods) Len() int {
	n := 0
	for _, recs := range p {
		n += len(recs)
	}
	return n
}
