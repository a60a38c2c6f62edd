package date

import (
	"cmp"
	"encoding/json"
	"fmt"
	"time"
)

const layout = "2006-01-02"

// Date is a timezone-naive calendar day. The zero value is not a valid date.
// Dates are comparable with == and can be used as map keys.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New returns the normalized date for the given year, month and day, so
// New(2024, 1, 32) is 2024-02-01.
func New(year int, month time.Month, day int) Date {
	return Of(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// Of truncates t to its calendar day in t's own location.
func Of(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Parse reads a date in ISO 8601 form, e.g. "2024-11-12".
func Parse(s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Of(t), nil
}

func (d Date) String() string {
	return d.Time(time.UTC).Format(layout)
}

func (d Date) IsZero() bool {
	return d == Date{}
}

// Time returns midnight of d in loc.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) AddDays(n int) Date {
	return Of(d.Time(time.UTC).AddDate(0, 0, n))
}

// AddMonths moves d by n months keeping the day of month. When the target
// month is shorter the result is clamped to its last day (Jan 31 + 1 month
// is Feb 28 or 29).
func (d Date) AddMonths(n int) Date {
	first := time.Date(d.Year, d.Month+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	last := first.AddDate(0, 1, -1).Day()
	day := d.Day
	if day > last {
		day = last
	}
	return Date{Year: first.Year(), Month: first.Month(), Day: day}
}

func (d Date) Compare(other Date) int {
	switch {
	case d.Year != other.Year:
		return cmp.Compare(d.Year, other.Year)
	case d.Month != other.Month:
		return cmp.Compare(d.Month, other.Month)
	default:
		return cmp.Compare(d.Day, other.Day)
	}
}

func (d Date) Before(other Date) bool {
	return d.Compare(other) < 0
}

func (d Date) After(other Date) bool {
	return d.Compare(other) > 0
}

func (d Date) Weekday() time.Weekday {
	return d.Time(time.UTC).Weekday()
}

// WeekdayIndex returns the zero-based weekday with Monday as 0 and Sunday as 6.
func (d Date) WeekdayIndex() int {
	return WeekdayIndex(d.Weekday())
}

// WeekdayIndex converts a time.Weekday to its Monday-based index.
func WeekdayIndex(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
