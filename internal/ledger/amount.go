package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrEmptyAmount = errors.New("empty amount")

var spaceReplacer = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "\t", "", "'", "")

// ParseAmount reads user or sheet input such as "1 000,50", "1000.5" or
// "1,000.50". Spaces are thousands separators; when both ',' and '.' occur the
// last one is the decimal separator. Exponent forms like "1e3" are rejected.
func ParseAmount(s string) (decimal.Decimal, error) {
	v := spaceReplacer.Replace(strings.TrimSpace(s))
	switch v {
	case "", "-", "—":
		return decimal.Zero, ErrEmptyAmount
	}

	// decimal.NewFromString takes exponents, a cashbook does not
	if strings.ContainsAny(v, "eE") {
		return decimal.Zero, fmt.Errorf("parse amount %q: exponent not allowed", s)
	}

	comma, dot := strings.LastIndex(v, ","), strings.LastIndex(v, ".")
	switch {
	case comma >= 0 && dot >= 0 && comma > dot:
		v = strings.ReplaceAll(v, ".", "")
		v = strings.Replace(v, ",", ".", 1)
	case comma >= 0 && dot >= 0:
		v = strings.ReplaceAll(v, ",", "")
	case comma >= 0:
		v = strings.Replace(v, ",", ".", 1)
	}

	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

// FormatAmount renders 1234567.5 as "1.234.567,5": dots group thousands and a
// comma separates at most two decimals.
func FormatAmount(d decimal.Decimal) string {
	d = d.Round(2)
	neg := d.IsNegative()
	d = d.Abs()

	intPart := d.Truncate(0)
	frac := d.Sub(intPart)

	digits := intPart.String()
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := b.String()
	if !frac.IsZero() {
		f := strings.TrimPrefix(frac.StringFixed(2), "0.")
		f = strings.TrimRight(f, "0")
		out += "," + f
	}
	if neg {
		out = "-" + out
	}
	return out
}
