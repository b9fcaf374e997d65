package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHasTextAndText(t *testing.T) {
	assert.False(t, HasText(""))
	assert.False(t, HasText("   \t"))
	assert.True(t, HasText(" x "))

	v, ok := Text("  hello ")
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = Text("   ")
	assert.False(t, ok)
}

func TestEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{" jane@example.org ", "jane@example.org", true},
		{"a@b.co", "a@b.co", true},
		{"no-at-sign.org", "", false},
		{"jane@localhost", "", false},
		{"jane doe@example.org", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Email(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestPhone(t *testing.T) {
	got, ok := Phone("(801) 555-0199")
	assert.True(t, ok)
	assert.Equal(t, "8015550199", got)

	_, ok = Phone("555-0199")
	assert.False(t, ok)
}

func TestZip(t *testing.T) {
	got, ok := Zip("123456789")
	assert.True(t, ok)
	assert.Equal(t, "123456789", got)

	got, ok = Zip("84604-1234")
	assert.True(t, ok)
	assert.Equal(t, "846041234", got)

	got, ok = Zip("84604")
	assert.True(t, ok)
	assert.Equal(t, "84604", got)

	_, ok = Zip("1234")
	assert.False(t, ok)
	_, ok = Zip("1234567")
	assert.False(t, ok)
}

func TestISODate(t *testing.T) {
	_, ok := ISODate("2024-02-30")
	assert.False(t, ok, "invalid calendar date")

	got, ok := ISODate("2024-02-29")
	assert.True(t, ok, "leap day")
	assert.Equal(t, "2024-02-29", got)

	_, ok = ISODate("2023-02-29")
	assert.False(t, ok)
	_, ok = ISODate("2024-2-9")
	assert.False(t, ok)
	_, ok = ISODate("02/09/2024")
	assert.False(t, ok)

	parsed, ok := ParseISODate(" 2024-07-04 ")
	assert.True(t, ok)
	assert.Equal(t, 2024, parsed.Year())
	assert.Equal(t, 4, parsed.Day())
}

func TestInt(t *testing.T) {
	n, ok := Int("3", Min(1), Max(5))
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	_, ok = Int("0", Min(1), Max(5))
	assert.False(t, ok)
	_, ok = Int("6", Min(1), Max(5))
	assert.False(t, ok)
	_, ok = Int("", Min(1))
	assert.False(t, ok)
	_, ok = Int("2.5")
	assert.False(t, ok)

	id, ok := Int64("42", Min(1))
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)
	_, ok = Int64("-1", Min(1))
	assert.False(t, ok)
}

func TestDecimal(t *testing.T) {
	v, ok := Decimal("10.006", Min(0.01))
	assert.True(t, ok)
	assert.InDelta(t, 10.01, v, 1e-9)

	v, ok = Decimal("25", Min(0.01))
	assert.True(t, ok)
	assert.Equal(t, 25.0, v)

	_, ok = Decimal("0", Min(0.01))
	assert.False(t, ok)
	_, ok = Decimal("", Min(0.01))
	assert.False(t, ok)
	_, ok = Decimal("abc")
	assert.False(t, ok)
	_, ok = Decimal("NaN")
	assert.False(t, ok)
	_, ok = Decimal("101", Max(100))
	assert.False(t, ok)
}

func TestErrors(t *testing.T) {
	var errs Errors
	assert.False(t, errs.Any())
	assert.Equal(t, "", errs.First())

	errs.Check(true, "never")
	errs.Check(false, "first")
	errs.Add("second")
	assert.True(t, errs.Any())
	assert.Equal(t, "first", errs.First())
	assert.Len(t, errs, 2)
}

func TestDateTime(t *testing.T) {
	got, ok := DateTime("2025-04-01T18:30", time.UTC)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2025, 4, 1, 18, 30, 0, 0, time.UTC), got)

	_, ok = DateTime("2025-04-01T18:30:00Z", nil)
	assert.True(t, ok)

	for _, bad := range []string{"", "  ", "2025-02-30T10:00", "tomorrow", "2025-04-01"} {
		_, ok := DateTime(bad, time.UTC)
		assert.False(t, ok, bad)
	}
}
