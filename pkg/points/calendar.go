package points

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	dateLayout     = "2006-01-02"
	weekKeyPattern = "%04d-W%02d"
)

// Date is a calendar day without a time of day.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate validates a calendar day.
func NewDate(year int, month time.Month, day int) (Date, error) {
	normalized := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if normalized.Year() != year || normalized.Month() != month || normalized.Day() != day {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d does not exist", ErrInvalidDate, year, int(month), day)
	}
	return Date{year: year, month: month, day: day}, nil
}

// ParseDate accepts YYYY-MM-DD as well as the other layouts understood by dateparse.
// Timestamps are converted into location before the day is taken.
func ParseDate(raw string, location *time.Location) (Date, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Date{}, fmt.Errorf("%w: empty value", ErrInvalidDate)
	}
	if location == nil {
		location = time.UTC
	}
	if parsed, err := time.ParseInLocation(dateLayout, trimmed, location); err == nil {
		return DateOf(parsed, location), nil
	}
	parsed, err := dateparse.ParseIn(trimmed, location)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return DateOf(parsed, location), nil
}

// DateOf returns the calendar day of moment in location.
func DateOf(moment time.Time, location *time.Location) Date {
	if location == nil {
		location = time.UTC
	}
	local := moment.In(location)
	return Date{year: local.Year(), month: local.Month(), day: local.Day()}
}

// String formats the day as YYYY-MM-DD.
func (date Date) String() string {
	if date.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", date.year, int(date.month), date.day)
}

// IsZero reports whether the date is unset.
func (date Date) IsZero() bool {
	return date.year == 0 && date.month == 0 && date.day == 0
}

// Midnight returns the start of the day in location.
func (date Date) Midnight(location *time.Location) time.Time {
	if location == nil {
		location = time.UTC
	}
	return time.Date(date.year, date.month, date.day, 0, 0, 0, 0, location)
}

// AddDays returns the day offset by days.
func (date Date) AddDays(days int) Date {
	shifted := time.Date(date.year, date.month, date.day+days, 0, 0, 0, 0, time.UTC)
	return Date{year: shifted.Year(), month: shifted.Month(), day: shifted.Day()}
}

// Before reports whether date is earlier than other.
func (date Date) Before(other Date) bool {
	return date.Compare(other) < 0
}

// Compare orders two dates.
func (date Date) Compare(other Date) int {
	switch {
	case date.year != other.year:
		return cmp.Compare(date.year, other.year)
	case date.month != other.month:
		return cmp.Compare(date.month, other.month)
	default:
		return cmp.Compare(date.day, other.day)
	}
}

// Week returns the ISO week containing the date.
func (date Date) Week() WeekKey {
	year, week := time.Date(date.year, date.month, date.day, 12, 0, 0, 0, time.UTC).ISOWeek()
	return WeekKey{year: year, week: week}
}

// MarshalText implements encoding.TextMarshaler.
func (date Date) MarshalText() ([]byte, error) {
	return []byte(date.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for YYYY-MM-DD values.
func (date *Date) UnmarshalText(text []byte) error {
	if len(strings.TrimSpace(string(text))) == 0 {
		*date = Date{}
		return nil
	}
	parsed, err := time.Parse(dateLayout, strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, string(text))
	}
	*date = Date{year: parsed.Year(), month: parsed.Month(), day: parsed.Day()}
	return nil
}

// WeekKey identifies an ISO-8601 week (Monday start).
type WeekKey struct {
	year int
	week int
}

// WeekOf returns the ISO week of moment in location.
func WeekOf(moment time.Time, location *time.Location) WeekKey {
	return DateOf(moment, location).Week()
}

// ParseWeekKey parses the YYYY-Www form.
func ParseWeekKey(raw string) (WeekKey, error) {
	trimmed := strings.TrimSpace(raw)
	yearPart, weekPart, found := strings.Cut(trimmed, "-W")
	if !found {
		return WeekKey{}, fmt.Errorf("%w: %q", ErrInvalidWeekKey, raw)
	}
	year, yearErr := strconv.Atoi(yearPart)
	week, weekErr := strconv.Atoi(weekPart)
	if yearErr != nil || weekErr != nil || year <= 0 || week < 1 || week > 53 {
		return WeekKey{}, fmt.Errorf("%w: %q", ErrInvalidWeekKey, raw)
	}
	return WeekKey{year: year, week: week}, nil
}

// String formats the key as YYYY-Www.
func (key WeekKey) String() string {
	return fmt.Sprintf(weekKeyPattern, key.year, key.week)
}

// Year returns the ISO year.
func (key WeekKey) Year() int {
	return key.year
}

// Week returns the ISO week number.
func (key WeekKey) Week() int {
	return key.week
}
