// Package validate normalizes user-supplied form values. Every function is
// total: it returns the canonical value and true, or the zero value and false.
package validate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const isoDateLayout = "2006-01-02"

var (
	isoDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	emailPattern   = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	nonDigits      = regexp.MustCompile(`\D`)
)

// HasText reports whether s contains non-whitespace content.
func HasText(s string) bool {
	return strings.TrimSpace(s) != ""
}

// Text trims s; empty results are rejected.
func Text(s string) (string, bool) {
	t := strings.TrimSpace(s)
	return t, t != ""
}

// Email trims s and accepts a permissive local@domain.tld shape.
func Email(s string) (string, bool) {
	t, ok := Text(s)
	if !ok || !emailPattern.MatchString(t) {
		return "", false
	}
	return t, true
}

// Phone strips non-digits and requires at least 10 of them.
func Phone(s string) (string, bool) {
	d := nonDigits.ReplaceAllString(s, "")
	if len(d) < 10 {
		return "", false
	}
	return d, true
}

// Zip strips non-digits and requires exactly 5 or 9 of them.
func Zip(s string) (string, bool) {
	d := nonDigits.ReplaceAllString(s, "")
	if len(d) != 5 && len(d) != 9 {
		return "", false
	}
	return d, true
}

// ISODate accepts YYYY-MM-DD strings that name a real calendar date.
func ISODate(s string) (string, bool) {
	t, ok := Text(s)
	if !ok || !isoDatePattern.MatchString(t) {
		return "", false
	}
	if _, err := time.Parse(isoDateLayout, t); err != nil {
		return "", false
	}
	return t, true
}

// ParseISODate is ISODate returning the parsed time (UTC midnight).
func ParseISODate(s string) (time.Time, bool) {
	d, ok := ISODate(s)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(isoDateLayout, d)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

var dateTimeLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05", "2006-01-02 15:04", time.RFC3339}

// DateTime parses an HTML datetime-local value (or RFC 3339) in loc.
func DateTime(s string, loc *time.Location) (time.Time, bool) {
	t, ok := Text(s)
	if !ok {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range dateTimeLayouts {
		if v, err := time.ParseInLocation(layout, t, loc); err == nil {
			return v, true
		}
	}
	return time.Time{}, false
}

// Bound restricts the accepted numeric range (inclusive).
type Bound func(*bounds)

type bounds struct {
	min, max       float64
	hasMin, hasMax bool
}

// Min sets an inclusive lower bound.
func Min(v float64) Bound {
	return func(b *bounds) { b.min, b.hasMin = v, true }
}

// Max sets an inclusive upper bound.
func Max(v float64) Bound {
	return func(b *bounds) { b.max, b.hasMax = v, true }
}

func (b bounds) contains(v float64) bool {
	if b.hasMin && v < b.min {
		return false
	}
	if b.hasMax && v > b.max {
		return false
	}
	return true
}

func collect(opts []Bound) bounds {
	var b bounds
	for _, o := range opts {
		o(&b)
	}
	return b
}

// Int parses a base-10 integer within the given bounds. Empty input fails.
func Int(s string, opts ...Bound) (int, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	n, err := strconv.Atoi(t)
	if err != nil {
		return 0, false
	}
	if !collect(opts).contains(float64(n)) {
		return 0, false
	}
	return n, true
}

// Int64 is Int for ids.
func Int64(s string, opts ...Bound) (int64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		return 0, false
	}
	if !collect(opts).contains(float64(n)) {
		return 0, false
	}
	return n, true
}

// Decimal parses a finite number within the given bounds and rounds it to
// two decimal places. Empty input fails.
func Decimal(s string, opts ...Bound) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if !collect(opts).contains(f) {
		return 0, false
	}
	return Round2(f), true
}

// Round2 rounds to cents, half away from zero.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Errors accumulates human-readable validation messages in order.
type Errors []string

// Add appends msg.
func (e *Errors) Add(msg string) { *e = append(*e, msg) }

// Check appends msg when ok is false.
func (e *Errors) Check(ok bool, msg string) {
	if !ok {
		e.Add(msg)
	}
}

// First returns the first message, or "" when there are none.
func (e Errors) First() string {
	if len(e) == 0 {
		return ""
	}
	return e[0]
}

// Any reports whether at least one message was recorded.
func (e Errors) Any() bool { return len(e) > 0 }
